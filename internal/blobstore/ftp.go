package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jlaffaye/ftp"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const defaultFTPPort = 21

// FTPStore keeps objects on an FTP server.
type FTPStore struct {
	settings conf.FTPStorageSettings
	log      logger.Logger
}

// NewFTPStore creates an FTP store. A connection is opened per operation.
func NewFTPStore(settings conf.FTPStorageSettings, log logger.Logger) (*FTPStore, error) {
	if settings.Port == 0 {
		settings.Port = defaultFTPPort
	}
	if settings.Timeout == 0 {
		settings.Timeout = defaultTimeout
	}
	settings.BasePath = strings.TrimRight(settings.BasePath, "/")
	if log == nil {
		log = logger.Global().Module("blobstore")
	}
	return &FTPStore{settings: settings, log: log.Module("ftp")}, nil
}

// Name returns the name of this store
func (s *FTPStore) Name() string {
	return "ftp"
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(s.settings.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp: connection failed: %w", err)
	}
	if s.settings.Username != "" {
		if err := conn.Login(s.settings.Username, s.settings.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("ftp: login failed: %w", err)
		}
	}
	return conn, nil
}

func (s *FTPStore) session(ctx context.Context, op func(*ftp.ServerConn) error) error {
	return withRetry(ctx, defaultMaxRetries, defaultRetryBackoff, s.log, func() error {
		conn, err := s.connect(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Quit() }()
		return op(conn)
	})
}

// makeDirs creates every directory along dirPath, tolerating ones that already exist.
func makeDirs(conn *ftp.ServerConn, dirPath string) error {
	if dirPath == "" || dirPath == "." || dirPath == "/" {
		return nil
	}
	current := ""
	if strings.HasPrefix(dirPath, "/") {
		current = "/"
	}
	for part := range strings.SplitSeq(strings.Trim(dirPath, "/"), "/") {
		current = path.Join(current, part)
		if err := conn.MakeDir(current); err != nil {
			errStr := strings.ToLower(err.Error())
			if strings.Contains(errStr, "exists") || strings.Contains(errStr, "550") {
				continue
			}
			return fmt.Errorf("ftp: failed to create directory %s: %w", current, err)
		}
	}
	return nil
}

// Put uploads data to a temporary file and renames it into place.
func (s *FTPStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	target := remotePath(s.settings.BasePath, key)

	err := s.session(ctx, func(conn *ftp.ServerConn) error {
		if err := makeDirs(conn, path.Dir(target)); err != nil {
			return err
		}
		temp := path.Join(path.Dir(target), tempFilePrefix+uuid.NewString())
		if err := conn.Stor(temp, bytes.NewReader(data)); err != nil {
			_ = conn.Delete(temp)
			return fmt.Errorf("ftp: failed to store file: %w", err)
		}
		if err := conn.Rename(temp, target); err != nil {
			_ = conn.Delete(temp)
			return fmt.Errorf("ftp: failed to rename temporary file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", storeError(err, "put").NetworkContext("ftp://"+s.settings.Host, s.settings.Timeout).Context("key", key).Build()
	}

	s.log.Debug("stored object", logger.String("key", key), logger.Int("size", len(data)))
	if s.settings.BaseURL != "" {
		return joinURL(s.settings.BaseURL, key), nil
	}
	return fmt.Sprintf("ftp://%s%s", s.settings.Host, path.Join("/", target)), nil
}

// Delete removes the object stored under key.
func (s *FTPStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	target := remotePath(s.settings.BasePath, key)
	err := s.session(ctx, func(conn *ftp.ServerConn) error {
		if err := conn.Delete(target); err != nil && !strings.Contains(err.Error(), "550") {
			return fmt.Errorf("ftp: failed to delete file: %w", err)
		}
		return nil
	})
	if err != nil {
		return storeError(err, "delete").Context("key", key).Build()
	}
	return nil
}

// Validate checks that a host is configured.
func (s *FTPStore) Validate() error {
	if s.settings.Host == "" {
		return storeError(errors.NewStd("ftp host is required"), "validate").Category(errors.CategoryConfiguration).Build()
	}
	if s.settings.Password != "" && s.settings.Username == "" {
		return storeError(errors.NewStd("ftp username is required with a password"), "validate").
			Category(errors.CategoryConfiguration).Build()
	}
	return nil
}
