package blobstore

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/conf"
)

// inMemorySFTP serves every session from one shared in-memory filesystem.
func inMemorySFTP(handlers sftp.Handlers) sftpDialer {
	return func(context.Context) (*sftp.Client, io.Closer, error) {
		serverConn, clientConn := net.Pipe()
		server := sftp.NewRequestServer(serverConn, handlers)
		go func() { _ = server.Serve() }()

		client, err := sftp.NewClientPipe(clientConn, clientConn)
		if err != nil {
			_ = server.Close()
			return nil, nil, err
		}
		return client, server, nil
	}
}

func newTestSFTPStore(t *testing.T, baseURL string) (*SFTPStore, sftpDialer) {
	t.Helper()

	store, err := NewSFTPStore(conf.SFTPStorageSettings{
		Host:     "sftp.example.com",
		Username: "birder",
		Password: "secret",
		BasePath: "/srv/images",
		BaseURL:  baseURL,
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Validate())

	dial := inMemorySFTP(sftp.InMemHandler())
	store.dial = dial
	return store, dial
}

func readRemote(t *testing.T, dial sftpDialer, path string) string {
	t.Helper()

	client, closer, err := dial(t.Context())
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
		_ = closer.Close()
	}()

	f, err := client.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func TestSFTPStore_Put(t *testing.T) {
	t.Parallel()

	store, dial := newTestSFTPStore(t, "")

	url, err := store.Put(t.Context(), "collections/owner-1/a.jpg", []byte("jpeg-bytes"), ContentTypeJPEG)
	require.NoError(t, err)
	assert.Equal(t, "sftp://sftp.example.com/srv/images/collections/owner-1/a.jpg", url)
	assert.Equal(t, "jpeg-bytes", readRemote(t, dial, "/srv/images/collections/owner-1/a.jpg"))
}

func TestSFTPStore_PutWithBaseURLAndDelete(t *testing.T) {
	t.Parallel()

	store, dial := newTestSFTPStore(t, "https://images.example.com")

	url, err := store.Put(t.Context(), "collections/owner-2/b.jpg", []byte("x"), ContentTypeJPEG)
	require.NoError(t, err)
	assert.Equal(t, "https://images.example.com/collections/owner-2/b.jpg", url)

	require.NoError(t, store.Delete(t.Context(), "collections/owner-2/b.jpg"))

	client, closer, err := dial(t.Context())
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
		_ = closer.Close()
	}()
	_, err = client.Stat("/srv/images/collections/owner-2/b.jpg")
	assert.Error(t, err)
}

func TestSFTPStore_Validate(t *testing.T) {
	t.Parallel()

	store, err := NewSFTPStore(conf.SFTPStorageSettings{Host: "h", Username: "u"}, testLogger())
	require.NoError(t, err)
	assert.Error(t, store.Validate(), "needs a password or key")
	assert.Equal(t, defaultSFTPPort, store.settings.Port)
}
