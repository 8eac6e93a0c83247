// Package secrets resolves credential values in settings. A value may be a literal, may
// reference environment variables as ${VAR} or ${VAR:-fallback}, or may point at a mounted
// secret file with the "file:" prefix, as Docker and Kubernetes secrets are delivered.
// Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const (
	// FilePrefix marks a value that names a secret file.
	FilePrefix = "file:"

	// maxSecretFileSize limits secret file reads; secrets are tokens, not documents.
	maxSecretFileSize = 64 * 1024
)

func secretError(err error, field string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("field", field)
}

// Expand replaces ${VAR} and ${VAR:-fallback} references with environment values.
// A reference without a fallback to an unset variable is an error.
func Expand(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, dropping trailing newlines. Files readable by group or
// others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Context("path", clean).
			Build()
	}
	switch {
	case !info.Mode().IsRegular():
		return "", errors.Newf("secret path is not a regular file: %s", clean).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	case info.Size() > maxSecretFileSize:
		return "", errors.Newf("secret file exceeds %d bytes: %s", maxSecretFileSize, clean).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", clean).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return secret, nil
}

// Resolve returns the secret that value refers to. Empty values stay empty.
func Resolve(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if path, ok := strings.CutPrefix(value, FilePrefix); ok {
		expanded, err := Expand(path)
		if err != nil {
			return "", err
		}
		return ReadFile(expanded)
	}
	return Expand(value)
}

// ResolveFields resolves every named field in place. Errors name the field, never its value.
func ResolveFields(fields map[string]*string) error {
	var errs []error
	for name, ptr := range fields {
		if ptr == nil {
			continue
		}
		resolved, err := Resolve(*ptr)
		if err != nil {
			errs = append(errs, secretError(err, name).Build())
			continue
		}
		*ptr = resolved
	}
	return errors.Join(errs...)
}
