package blobstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

const defaultSFTPPort = 22

// sftpDialer opens an SFTP session; the returned closer tears down the underlying transport.
type sftpDialer func(ctx context.Context) (*sftp.Client, io.Closer, error)

// SFTPStore keeps objects on an SFTP server.
type SFTPStore struct {
	settings conf.SFTPStorageSettings
	dial     sftpDialer
	log      logger.Logger
}

// NewSFTPStore creates an SFTP store. A connection is opened per operation.
func NewSFTPStore(settings conf.SFTPStorageSettings, log logger.Logger) (*SFTPStore, error) {
	if settings.Port == 0 {
		settings.Port = defaultSFTPPort
	}
	if settings.Timeout == 0 {
		settings.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Global().Module("blobstore")
	}
	s := &SFTPStore{settings: settings, log: log.Module("sftp")}
	s.dial = s.dialSSH
	return s, nil
}

// Name returns the name of this store
func (s *SFTPStore) Name() string {
	return "sftp"
}

func (s *SFTPStore) sshConfig() (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:    s.settings.Username,
		Timeout: s.settings.Timeout,
	}

	switch {
	case s.settings.PrivateKeyPath != "":
		key, err := os.ReadFile(s.settings.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to parse private key: %w", err)
		}
		cfg.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case s.settings.Password != "":
		cfg.Auth = []ssh.AuthMethod{ssh.Password(s.settings.Password)}
	default:
		return nil, fmt.Errorf("sftp: no authentication method provided")
	}

	knownHostsFile := s.settings.KnownHostFile
	if knownHostsFile == "" {
		knownHostsFile = defaultKnownHostsFile()
	}
	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("sftp: failed to load known hosts from %s: %w", knownHostsFile, err)
	}
	cfg.HostKeyCallback = callback

	return cfg, nil
}

func defaultKnownHostsFile() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".ssh", "known_hosts")
}

func (s *SFTPStore) dialSSH(ctx context.Context) (*sftp.Client, io.Closer, error) {
	cfg, err := s.sshConfig()
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(s.settings.Host, strconv.Itoa(s.settings.Port))
	dialer := net.Dialer{Timeout: s.settings.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("sftp: failed to connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("sftp: ssh handshake failed: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	_ = conn.SetDeadline(time.Time{})

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("sftp: failed to create client: %w", err)
	}
	return client, sshClient, nil
}

// session runs op with a fresh connection, retrying transient failures.
func (s *SFTPStore) session(ctx context.Context, op func(*sftp.Client) error) error {
	return withRetry(ctx, defaultMaxRetries, defaultRetryBackoff, s.log, func() error {
		client, closer, err := s.dial(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
			if closer != nil {
				_ = closer.Close()
			}
		}()
		return op(client)
	})
}

// Put uploads data to a temporary file and renames it into place.
func (s *SFTPStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	target := remotePath(s.settings.BasePath, key)

	err := s.session(ctx, func(client *sftp.Client) error {
		if err := client.MkdirAll(path.Dir(target)); err != nil {
			return fmt.Errorf("sftp: failed to create directory: %w", err)
		}

		temp := path.Join(path.Dir(target), tempFilePrefix+uuid.NewString())
		f, err := client.Create(temp)
		if err != nil {
			return fmt.Errorf("sftp: failed to create file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = client.Remove(temp)
			return fmt.Errorf("sftp: failed to write file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = client.Remove(temp)
			return fmt.Errorf("sftp: failed to close file: %w", err)
		}
		if err := client.Rename(temp, target); err != nil {
			_ = client.Remove(temp)
			return fmt.Errorf("sftp: failed to rename file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", storeError(err, "put").NetworkContext("sftp://"+s.settings.Host, s.settings.Timeout).Context("key", key).Build()
	}

	s.log.Debug("stored object", logger.String("key", key), logger.Int("size", len(data)))
	if s.settings.BaseURL != "" {
		return joinURL(s.settings.BaseURL, key), nil
	}
	return fmt.Sprintf("sftp://%s%s", s.settings.Host, path.Join("/", target)), nil
}

// Delete removes the object stored under key.
func (s *SFTPStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	target := remotePath(s.settings.BasePath, key)
	err := s.session(ctx, func(client *sftp.Client) error {
		if err := client.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sftp: failed to delete file: %w", err)
		}
		return nil
	})
	if err != nil {
		return storeError(err, "delete").Context("key", key).Build()
	}
	return nil
}

// Validate checks host and credentials are configured.
func (s *SFTPStore) Validate() error {
	switch {
	case s.settings.Host == "":
		return storeError(errors.NewStd("sftp host is required"), "validate").Category(errors.CategoryConfiguration).Build()
	case s.settings.Username == "":
		return storeError(errors.NewStd("sftp username is required"), "validate").Category(errors.CategoryConfiguration).Build()
	case s.settings.Password == "" && s.settings.PrivateKeyPath == "":
		return storeError(errors.NewStd("sftp password or private key is required"), "validate").
			Category(errors.CategoryConfiguration).Build()
	}
	return nil
}
