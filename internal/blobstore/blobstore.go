// Package blobstore stores collection images in a configurable backend: the local
// filesystem, an S3 compatible bucket, an SFTP server or an FTP server.
package blobstore

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeGIF  = "image/gif"
	ContentTypeWebP = "image/webp"

	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
	tempFilePrefix      = ".upload-"
)

// Store writes objects under slash separated keys and reports where they can be fetched.
type Store interface {
	// Name returns the backend name
	Name() string
	// Put stores data under key and returns the URL the object is reachable at
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object stored under key; missing objects are not an error
	Delete(ctx context.Context, key string) error
	// Validate checks the backend configuration without touching the network
	Validate() error
}

var imageTypes = map[string]struct{ contentType, ext string }{
	"jpeg": {ContentTypeJPEG, ".jpg"},
	"png":  {ContentTypePNG, ".png"},
	"gif":  {ContentTypeGIF, ".gif"},
	"webp": {ContentTypeWebP, ".webp"},
}

// ImageType returns the content type and key extension for a format name as reported by
// image.Decode.
func ImageType(format string) (contentType, ext string, ok bool) {
	t, ok := imageTypes[strings.ToLower(format)]
	return t.contentType, t.ext, ok
}

// New builds the store selected by settings.Type.
func New(settings *conf.StorageSettings, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Global().Module("blobstore")
	}

	var (
		store Store
		err   error
	)
	switch strings.ToLower(settings.Type) {
	case "", "local":
		store, err = NewLocalStore(settings.Local, log)
	case "s3":
		store, err = NewS3Store(context.Background(), settings.S3, log)
	case "sftp":
		store, err = NewSFTPStore(settings.SFTP, log)
	case "ftp":
		store, err = NewFTPStore(settings.FTP, log)
	default:
		return nil, errors.Newf("unsupported storage type %q", settings.Type).
			Component("blobstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err != nil {
		return nil, err
	}
	if err := store.Validate(); err != nil {
		return nil, err
	}
	return store, nil
}

// ValidateKey rejects keys that are empty, absolute or escape the store root.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return storeError(errors.NewStd("object key is required"), "validate_key").Build()
	case strings.HasPrefix(key, "/"), strings.Contains(key, "\\"):
		return storeError(errors.NewStd("object key must be a relative slash separated path"), "validate_key").
			Context("key", key).Build()
	}
	for part := range strings.SplitSeq(key, "/") {
		if part == "" || part == "." || part == ".." {
			return storeError(errors.NewStd("object key contains an invalid path segment"), "validate_key").
				Context("key", key).Build()
		}
	}
	return nil
}

// joinURL appends key to a public base URL.
func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + key
}

// remotePath joins a remote base directory and key.
func remotePath(base, key string) string {
	if base == "" {
		return key
	}
	return path.Join(base, key)
}

func storeError(err error, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("blobstore").
		Category(errors.CategoryBlobStorage).
		Context("operation", operation)
}

// transientErrorPatterns contains substrings that indicate a transient/retriable error
var transientErrorPatterns = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"timeout",
	"temporary",
	"broken pipe",
	"no route to host",
	"EOF",
	"ssh: handshake failed",
	"resource temporarily unavailable",
}

// IsTransientError determines if an error is likely transient and can be retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsTimeout(err) {
		return true
	}
	errStr := err.Error()
	for _, pattern := range transientErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// withRetry executes op, retrying transient failures with linear backoff.
func withRetry(ctx context.Context, maxRetries int, backoff time.Duration, log logger.Logger, op func() error) error {
	var lastErr error
	for attempt := range maxRetries {
		if err := ctx.Err(); err != nil {
			return storeError(err, "retry").Category(errors.CategoryCancellation).Build()
		}

		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return err
		}
		lastErr = err
		log.Debug("retrying blob operation",
			logger.Int("attempt", attempt+1),
			logger.Int("max_retries", maxRetries),
			logger.Error(err))

		select {
		case <-time.After(backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return storeError(ctx.Err(), "retry").Category(errors.CategoryCancellation).Build()
		}
	}
	return storeError(lastErr, "retry").Context("attempts", maxRetries).Build()
}
