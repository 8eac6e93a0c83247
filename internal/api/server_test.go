package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/observability"
	"github.com/birdlens/birdlens/internal/pipeline"
	"github.com/birdlens/birdlens/internal/species"
	"github.com/birdlens/birdlens/internal/testutil"
)

type runnerFunc func(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	return f(ctx, req)
}

type registryFunc func(ctx context.Context, region string) ([]species.RegistryEntry, error)

func (f registryFunc) FetchRegistry(ctx context.Context, region string) ([]species.RegistryEntry, error) {
	return f(ctx, region)
}

var blueJay = species.Record{CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata", Family: "Corvidae"}

func failingRun(kind pipeline.ErrorKind) runnerFunc {
	return func(context.Context, pipeline.Request) (*pipeline.Outcome, error) {
		return &pipeline.Outcome{RunID: "run-1", State: pipeline.StateFailed, Message: pipeline.UserMessage(kind)},
			&pipeline.Error{Kind: kind, Message: pipeline.UserMessage(kind), Err: errors.NewStd("boom")}
	}
}

type testServer struct {
	server  *Server
	entries *testutil.MemoryCollection
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, runner Runner, registry pipeline.Registry) *testServer {
	t.Helper()
	m, err := observability.NewMetrics()
	require.NoError(t, err)
	entries := testutil.NewMemoryCollection()

	cfg := DefaultConfig()
	cfg.MaxUploadBytes = 1024
	s, err := New(cfg, runner, registry, entries,
		WithLogger(logger.NewSlogLogger(nil, logger.LogLevelError, nil)),
		WithMetrics(m),
		WithBuildInfo(&buildinfo.Context{Version: "1.4.0", BuildDate: "2026-09-30"}))
	require.NoError(t, err)

	return &testServer{server: s, entries: entries, metrics: m}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Echo().ServeHTTP(rec, req)
	return rec
}

func identifyRequest(t *testing.T, owner, region string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if image != nil {
		part, err := w.CreateFormFile(formImage, "bird.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	if region != "" {
		require.NoError(t, w.WriteField(formRegion, region))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identifications", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if owner != "" {
		req.Header.Set(DefaultOwnerHeader, owner)
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestIdentify_Verified(t *testing.T) {
	t.Parallel()

	var got pipeline.Request
	runner := runnerFunc(func(_ context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
		got = req
		entry := &collection.Entry{SlotID: "slot-1", OwnerID: req.OwnerID, CommonName: blueJay.CommonName}
		return &pipeline.Outcome{RunID: "run-1", State: pipeline.StateDone, Verified: true, Species: blueJay, Entry: entry}, nil
	})
	ts := newTestServer(t, runner, nil)

	rec := ts.do(identifyRequest(t, "user-1", "US-NY", []byte("jpeg-bytes")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, "US-NY", got.RegionCode)
	assert.Equal(t, []byte("jpeg-bytes"), got.Image)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "done", out["state"])
	assert.Equal(t, true, out["verified"])
	assert.Equal(t, "Blue Jay", out["species"].(map[string]any)["commonName"])
}

func TestIdentify_Rejected(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(context.Context, pipeline.Request) (*pipeline.Outcome, error) {
		return &pipeline.Outcome{RunID: "run-1", State: pipeline.StateRejected, Species: blueJay, Message: pipeline.RejectedMessage}, nil
	})
	ts := newTestServer(t, runner, nil)

	rec := ts.do(identifyRequest(t, "user-1", "", []byte("jpeg-bytes")))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "rejected", out["state"])
	assert.Equal(t, false, out["verified"])
	assert.Equal(t, pipeline.RejectedMessage, out["message"])
	assert.NotContains(t, out, "entry")
}

func TestIdentify_PipelineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind pipeline.ErrorKind
		want int
	}{
		{pipeline.KindEncoding, http.StatusUnprocessableEntity},
		{pipeline.KindRegistryFetch, http.StatusBadGateway},
		{pipeline.KindIdentification, http.StatusBadGateway},
		{pipeline.KindPersist, http.StatusInternalServerError},
		{pipeline.KindCancelled, http.StatusRequestTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t, failingRun(tt.kind), nil)
			rec := ts.do(identifyRequest(t, "user-1", "US-NY", []byte("jpeg-bytes")))

			assert.Equal(t, tt.want, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.kind.String(), resp.Error)
			assert.Equal(t, pipeline.UserMessage(tt.kind), resp.Message)
			assert.Equal(t, tt.want, resp.Code)
			assert.Equal(t, "run-1", resp.CorrelationID)
		})
	}
}

func TestIdentify_BadRequests(t *testing.T) {
	t.Parallel()

	called := false
	runner := runnerFunc(func(context.Context, pipeline.Request) (*pipeline.Outcome, error) {
		called = true
		return &pipeline.Outcome{}, nil
	})

	tests := []struct {
		name      string
		req       func(t *testing.T) *http.Request
		wantCode  int
		wantError string
	}{
		{
			name:      "missing owner",
			req:       func(t *testing.T) *http.Request { return identifyRequest(t, "", "US-NY", []byte("x")) },
			wantCode:  http.StatusUnauthorized,
			wantError: "missing_owner",
		},
		{
			name:      "missing image",
			req:       func(t *testing.T) *http.Request { return identifyRequest(t, "user-1", "US-NY", nil) },
			wantCode:  http.StatusBadRequest,
			wantError: "missing_image",
		},
		{
			name:      "empty image",
			req:       func(t *testing.T) *http.Request { return identifyRequest(t, "user-1", "US-NY", []byte{}) },
			wantCode:  http.StatusBadRequest,
			wantError: "empty_image",
		},
		{
			name:      "image too large",
			req:       func(t *testing.T) *http.Request { return identifyRequest(t, "user-1", "US-NY", make([]byte, 2048)) },
			wantCode:  http.StatusRequestEntityTooLarge,
			wantError: "image_too_large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, runner, nil)
			rec := ts.do(tt.req(t))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec).Error)
		})
	}
	assert.False(t, called, "pipeline must not run for rejected uploads")
}

func TestListCollection(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, failingRun(pipeline.KindPersist), nil)
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"Blue Jay", "American Crow", "Northern Cardinal"} {
		require.NoError(t, ts.entries.Save(t.Context(), &collection.Entry{
			SlotID: "slot-" + name, OwnerID: "user-1", CommonName: name, CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, ts.entries.Save(t.Context(), &collection.Entry{SlotID: "other", OwnerID: "user-2", CommonName: "Mallard"}))

	t.Run("own collection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/collections/user-1?limit=2", http.NoBody)
		req.Header.Set(DefaultOwnerHeader, "user-1")
		rec := ts.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp CollectionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "user-1", resp.OwnerID)
		assert.Equal(t, int64(3), resp.Total)
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, "Northern Cardinal", resp.Entries[0].CommonName)
	})

	t.Run("empty collection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/collections/user-3", http.NoBody)
		req.Header.Set(DefaultOwnerHeader, "user-3")
		rec := ts.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"entries":[]`)
	})

	t.Run("other owner", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/collections/user-2", http.NoBody)
		req.Header.Set(DefaultOwnerHeader, "user-1")
		rec := ts.do(req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/collections/user-1?limit=lots", http.NoBody)
		req.Header.Set(DefaultOwnerHeader, "user-1")
		rec := ts.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_limit", decodeError(t, rec).Error)
	})
}

func TestGetRegistry(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var gotRegion string
		reg := registryFunc(func(_ context.Context, region string) ([]species.RegistryEntry, error) {
			gotRegion = region
			return []species.RegistryEntry{{SpeciesCode: "blujay", CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata"}}, nil
		})
		ts := newTestServer(t, failingRun(pipeline.KindPersist), reg)

		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/registry/US-NY", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "US-NY", gotRegion)

		var resp RegistryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "blujay", resp.Species[0].SpeciesCode)
	})

	t.Run("empty region list", func(t *testing.T) {
		t.Parallel()
		reg := registryFunc(func(context.Context, string) ([]species.RegistryEntry, error) { return nil, nil })
		ts := newTestServer(t, failingRun(pipeline.KindPersist), reg)

		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/registry/AQ", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"species":[]`)
	})

	t.Run("upstream failure", func(t *testing.T) {
		t.Parallel()
		reg := registryFunc(func(context.Context, string) ([]species.RegistryEntry, error) {
			return nil, errors.Newf("taxonomy returned 503").Category(errors.CategoryRegistry).Build()
		})
		ts := newTestServer(t, failingRun(pipeline.KindPersist), reg)

		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/registry/US-NY", http.NoBody))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "registry_fetch", decodeError(t, rec).Error)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, failingRun(pipeline.KindPersist), nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "1.4.0", health["version"])

	// Generate a request so the HTTP counters have a series.
	ts.do(identifyRequest(t, "", "", []byte("x")))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/v1/identifications",status_code="401"} 1`)
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, failingRun(pipeline.KindPersist), nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/nope", http.NoBody))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.True(t, strings.EqualFold(resp.Error, "Not Found"))
}

func TestConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "21504K", cfg.BodyLimit())

	cfg.OwnerHeader = ""
	assert.Error(t, cfg.Validate())

	_, err := New(cfg, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestServerUsesLoggerForEcho(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, failingRun(pipeline.KindEncoding), nil)
	_, ok := ts.server.Echo().Logger.(*logger.EchoAdapter)
	assert.True(t, ok, "echo logs through the application logger")
}
