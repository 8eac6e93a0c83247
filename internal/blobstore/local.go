package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
	bytesPerMB      = 1 << 20
)

// LocalStore keeps objects on the local filesystem beneath a root directory.
type LocalStore struct {
	root     string
	baseURL  string
	minFree  uint64 // bytes
	log      logger.Logger
	freeFunc func(path string) (uint64, error)
}

// NewLocalStore creates a filesystem store rooted at settings.Path.
func NewLocalStore(settings conf.LocalStorageSettings, log logger.Logger) (*LocalStore, error) {
	if settings.Path == "" {
		return nil, errors.Newf("local storage path is required").
			Component("blobstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	root, err := filepath.Abs(settings.Path)
	if err != nil {
		return nil, storeError(err, "resolve_root").Context("path", settings.Path).Build()
	}
	if log == nil {
		log = logger.Global().Module("blobstore")
	}
	return &LocalStore{
		root:     root,
		baseURL:  settings.BaseURL,
		minFree:  settings.MinFreeMB * bytesPerMB,
		log:      log.Module("local"),
		freeFunc: diskFreeSpace,
	}, nil
}

// Name returns the name of this store
func (s *LocalStore) Name() string {
	return "local"
}

// Root returns the absolute directory objects are written under.
func (s *LocalStore) Root() string {
	return s.root
}

// Put writes data atomically: a temporary file in the target directory is renamed into place.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", storeError(err, "put").Category(errors.CategoryCancellation).Build()
	}

	if err := s.checkFreeSpace(len(data)); err != nil {
		return "", err
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return "", storeError(err, "create_directory").Category(errors.CategoryFileIO).Context("key", key).Build()
	}

	if err := atomicWriteFile(target, tempFilePrefix+"*", filePermissions, data); err != nil {
		return "", storeError(err, "write_file").Category(errors.CategoryFileIO).Context("key", key).Build()
	}

	s.log.Debug("stored object", logger.String("key", key), logger.Int("size", len(data)))
	return joinURL(s.baseURL, key), nil
}

// Delete removes the file stored under key.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return storeError(err, "delete").Category(errors.CategoryFileIO).Context("key", key).Build()
	}
	return nil
}

// Validate ensures the root directory exists and is writable.
func (s *LocalStore) Validate() error {
	if err := os.MkdirAll(s.root, dirPermissions); err != nil {
		return storeError(err, "validate").Category(errors.CategoryConfiguration).Context("path", s.root).Build()
	}
	check, err := os.CreateTemp(s.root, tempFilePrefix+"check-*")
	if err != nil {
		return storeError(fmt.Errorf("storage path is not writable: %w", err), "validate").
			Category(errors.CategoryConfiguration).
			Context("path", s.root).
			Build()
	}
	name := check.Name()
	_ = check.Close()
	return os.Remove(name)
}

// atomicWriteFile writes data to a temporary file and then renames it to the target path
func atomicWriteFile(targetPath, tempPattern string, perm os.FileMode, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(targetPath), tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	success = true
	return nil
}

// checkFreeSpace refuses a write of size bytes that would leave less than the configured
// minimum free on the volume holding the root.
func (s *LocalStore) checkFreeSpace(size int) error {
	if s.minFree == 0 {
		return nil
	}
	dir := existingAncestor(s.root)
	free, err := s.freeFunc(dir)
	if err != nil {
		s.log.Warn("free space check failed", logger.String("path", dir), logger.Error(err))
		return nil
	}
	if free < s.minFree+uint64(size) {
		return errors.Newf("insufficient disk space: %d MB free, %d MB required", free/bytesPerMB, s.minFree/bytesPerMB).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	return nil
}

// existingAncestor returns path or its closest parent that exists.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
