package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/logger"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	client := New(nil)
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, defaultUserAgent, client.userAgent)

	cfg := Config{DefaultTimeout: 5 * time.Second, UserAgent: "test/1.0"}
	client = New(&cfg)
	assert.Equal(t, 5*time.Second, client.defaultTimeout)
	assert.Equal(t, "test/1.0", client.userAgent)
	assert.Empty(t, cfg.Headers, "caller config is not modified")
}

func TestDo_DefaultHeadersAndUserAgent(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-1", r.Header.Get("X-eBirdApiToken"))
		assert.Equal(t, "birdlens", r.Header.Get("User-Agent"))
		assert.Equal(t, "override", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte("ok"))
	})

	client := New(&Config{Headers: map[string]string{
		"X-eBirdApiToken": "token-1",
		"X-Trace":         "default",
	}})
	defer client.Close()

	resp, err := client.Get(t.Context(), server.URL, map[string]string{"X-Trace": "override"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestDo_DefaultTimeoutApplies(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	client := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	_, err := client.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
}

func TestDo_BodyReadableAfterReturn(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["amerob","blujay"]`))
	})

	client := New(&Config{DefaultTimeout: time.Second})
	resp, err := client.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var codes []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&codes))
	assert.Equal(t, []string{"amerob", "blujay"}, codes)
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := New(nil).Get(ctx, server.URL, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPostJSON_WithMockTransport(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://vision.example.com/v1/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer key", req.Header.Get("Authorization"))
			var body map[string]any
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"model": body["model"]})
		})

	client := New(&Config{Transport: transport})
	resp, err := client.PostJSON(t.Context(), "https://vision.example.com/v1/chat/completions",
		map[string]string{"Authorization": "Bearer key"},
		map[string]any{"model": "gpt-4o"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestPostJSON_MarshalError(t *testing.T) {
	t.Parallel()

	_, err := New(nil).PostJSON(t.Context(), "http://localhost", nil, map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}

func TestDo_LogsExchanges(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	buf := &bytes.Buffer{}
	client := New(&Config{Logger: logger.NewSlogLogger(buf, logger.LogLevelDebug, nil)})

	resp, err := client.Get(t.Context(), server.URL+"/product/spplist/US-NY", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "upstream request", entry["msg"])
	assert.Equal(t, "/product/spplist/US-NY", entry["path"])
	assert.InDelta(t, http.StatusNoContent, entry["status"], 0)
}

func TestDo_NilRequest(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Do(t.Context(), nil)
	require.Error(t, err)
}
