package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/birdlens/birdlens/internal/errors"
)

// GetDefaultConfigPaths lists the directories searched for config.yaml, in priority order.
// When one of them already holds a config.yaml only that directory is returned, so a
// missing file is created in the first directory.
func GetDefaultConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	dirs := []string{filepath.Join(home, ".config", "birdlens"), "/etc/birdlens"}
	if runtime.GOOS == "windows" {
		dirs = []string{filepath.Join(home, "AppData", "Roaming", "birdlens")}
	}

	for _, dir := range dirs {
		if info, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil && info.Mode().IsRegular() {
			return []string{dir}, nil
		}
	}
	return dirs, nil
}
