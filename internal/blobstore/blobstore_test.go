package blobstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(nil, logger.LogLevelError, nil)
}

func TestValidateKey(t *testing.T) {
	t.Parallel()

	valid := []string{"collections/owner-1/abc.jpg", "a.jpg", "a/b/c/d.jpg"}
	for _, key := range valid {
		assert.NoError(t, ValidateKey(key), key)
	}

	invalid := []string{"", "/etc/passwd", "collections/../../etc", "a//b.jpg", "./a.jpg", `a\b.jpg`, "a/"}
	for _, key := range invalid {
		err := ValidateKey(key)
		require.Error(t, err, key)
		assert.True(t, errors.IsCategory(err, errors.CategoryBlobStorage), key)
	}
}

func TestImageType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format, contentType, ext string
	}{
		{"jpeg", ContentTypeJPEG, ".jpg"},
		{"png", ContentTypePNG, ".png"},
		{"GIF", ContentTypeGIF, ".gif"},
		{"webp", ContentTypeWebP, ".webp"},
	}
	for _, tt := range tests {
		contentType, ext, ok := ImageType(tt.format)
		require.True(t, ok, tt.format)
		assert.Equal(t, tt.contentType, contentType)
		assert.Equal(t, tt.ext, ext)
	}

	_, _, ok := ImageType("bmp")
	assert.False(t, ok)
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransientError(nil))
	assert.True(t, IsTransientError(fmt.Errorf("read tcp: connection reset by peer")))
	assert.True(t, IsTransientError(fmt.Errorf("i/o timeout")))
	assert.False(t, IsTransientError(fmt.Errorf("permission denied")))
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("retries transient then succeeds", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := withRetry(t.Context(), 3, time.Millisecond, testLogger(), func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error returned immediately", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := withRetry(t.Context(), 3, time.Millisecond, testLogger(), func() error {
			calls++
			return fmt.Errorf("permission denied")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted retries", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := withRetry(t.Context(), 2, time.Millisecond, testLogger(), func() error {
			calls++
			return fmt.Errorf("broken pipe")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.True(t, errors.IsCategory(err, errors.CategoryBlobStorage))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := withRetry(ctx, 3, time.Millisecond, testLogger(), func() error {
			t.Fatal("operation must not run")
			return nil
		})
		assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	store, err := New(&conf.StorageSettings{
		Type:  "local",
		Local: conf.LocalStorageSettings{Path: t.TempDir(), BaseURL: "/images"},
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "local", store.Name())

	_, err = New(&conf.StorageSettings{Type: "nfs"}, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = New(&conf.StorageSettings{Type: "sftp"}, testLogger())
	require.Error(t, err, "sftp without host fails validation")

	_, err = New(&conf.StorageSettings{Type: "ftp", FTP: conf.FTPStorageSettings{Host: "ftp.example.com"}}, testLogger())
	require.NoError(t, err)
}

func TestFTPStore_Validate(t *testing.T) {
	t.Parallel()

	store, err := NewFTPStore(conf.FTPStorageSettings{}, testLogger())
	require.NoError(t, err)
	assert.Error(t, store.Validate())

	store, err = NewFTPStore(conf.FTPStorageSettings{Host: "h", Password: "secret"}, testLogger())
	require.NoError(t, err)
	assert.Error(t, store.Validate())

	store, err = NewFTPStore(conf.FTPStorageSettings{Host: "h", Username: "u", Password: "p", BasePath: "/srv/"}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Validate())
	assert.Equal(t, defaultFTPPort, store.settings.Port)
	assert.Equal(t, "/srv", store.settings.BasePath)
}
