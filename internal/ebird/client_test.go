package ebird

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/species"
)

const testAPIKey = "test-api-key"

var testTaxonomy = []TaxonomyEntry{
	{SpeciesCode: "amerob", CommonName: "American Robin", ScientificName: "Turdus migratorius", FamilyComName: "Thrushes and Allies", Category: "species"},
	{SpeciesCode: "blujay", CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata", FamilyComName: "Jays, Magpies, Crows, and Ravens", Category: "species"},
	{SpeciesCode: "norcar", CommonName: "Northern Cardinal", ScientificName: "Cardinalis cardinalis", FamilyComName: "Cardinals and Allies", Category: "species"},
}

// fakeEBird serves spplist and taxonomy responses and counts calls per endpoint.
type fakeEBird struct {
	speciesList   http.HandlerFunc
	taxonomy      http.HandlerFunc
	listCalls     atomic.Int32
	taxonomyCalls atomic.Int32
	lastToken     atomic.Value
}

func (f *fakeEBird) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastToken.Store(r.Header.Get("X-eBirdApiToken"))
	switch {
	case r.URL.Path == "/ref/taxonomy/ebird":
		f.taxonomyCalls.Add(1)
		f.taxonomy(w, r)
	case len(r.URL.Path) > len("/product/spplist/") && r.URL.Path[:len("/product/spplist/")] == "/product/spplist/":
		f.listCalls.Add(1)
		f.speciesList(w, r)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(t *testing.T, v any) http.HandlerFunc {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(body)
	}
}

func writeStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func setupTestClient(t *testing.T, fake *fakeEBird) *Client {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:      testAPIKey,
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
		CacheTTL:    time.Hour,
		RateLimitMS: 1,
		MaxRetries:  3,
	}, WithLogger(logger.NewSlogLogger(nil, logger.LogLevelError, nil)))
	require.NoError(t, err)
	client.retryDelay = time.Millisecond
	t.Cleanup(client.Close)

	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestFetchRegistry_FiltersTaxonomyToRegionCodes(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{}
	fake.speciesList = writeJSON(t, []string{"blujay", "amerob", "notinTaxonomy"})
	fake.taxonomy = writeJSON(t, testTaxonomy)
	client := setupTestClient(t, fake)

	registry, err := client.FetchRegistry(t.Context(), "US-NY")
	require.NoError(t, err)

	assert.Equal(t, []species.RegistryEntry{
		{SpeciesCode: "amerob", CommonName: "American Robin", ScientificName: "Turdus migratorius", FamilyCommonName: "Thrushes and Allies"},
		{SpeciesCode: "blujay", CommonName: "Blue Jay", ScientificName: "Cyanocitta cristata", FamilyCommonName: "Jays, Magpies, Crows, and Ravens"},
	}, registry)
	assert.Equal(t, testAPIKey, fake.lastToken.Load())
}

func TestFetchRegistry_EmptyRegionSkipsTaxonomy(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{}
	fake.speciesList = writeJSON(t, []string{})
	fake.taxonomy = writeJSON(t, testTaxonomy)
	client := setupTestClient(t, fake)

	registry, err := client.FetchRegistry(t.Context(), "AQ")
	require.NoError(t, err)

	assert.NotNil(t, registry)
	assert.Empty(t, registry)
	assert.Equal(t, int32(0), fake.taxonomyCalls.Load())
}

func TestFetchRegistry_TaxonomyIsMemoized(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{}
	fake.speciesList = writeJSON(t, []string{"norcar"})
	fake.taxonomy = writeJSON(t, testTaxonomy)
	client := setupTestClient(t, fake)

	for range 3 {
		registry, err := client.FetchRegistry(t.Context(), "US")
		require.NoError(t, err)
		require.Len(t, registry, 1)
	}

	assert.Equal(t, int32(3), fake.listCalls.Load(), "species list is fetched per run")
	assert.Equal(t, int32(1), fake.taxonomyCalls.Load())

	metrics := client.GetMetrics()
	assert.Equal(t, int64(2), metrics.CacheHits)
	assert.Equal(t, int64(1), metrics.CacheMisses)
	assert.Equal(t, 1, client.CacheItemCount())

	client.ClearCache()
	assert.Equal(t, 0, client.CacheItemCount())
}

func TestFetchRegistry_StageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		speciesList func(t *testing.T) http.HandlerFunc
		taxonomy    func(t *testing.T) http.HandlerFunc
		wantStage   string
	}{
		{
			name:        "species list unauthorized",
			speciesList: func(*testing.T) http.HandlerFunc { return writeStatus(http.StatusUnauthorized, `{"title":"Unauthorized","detail":"bad token"}`) },
			taxonomy:    func(t *testing.T) http.HandlerFunc { return writeJSON(t, testTaxonomy) },
			wantStage:   StageSpeciesList,
		},
		{
			name: "species list malformed",
			speciesList: func(*testing.T) http.HandlerFunc {
				return writeStatus(http.StatusOK, `{"codes":`)
			},
			taxonomy:  func(t *testing.T) http.HandlerFunc { return writeJSON(t, testTaxonomy) },
			wantStage: StageSpeciesList,
		},
		{
			name:        "species list empty body",
			speciesList: func(*testing.T) http.HandlerFunc { return writeStatus(http.StatusOK, "") },
			taxonomy:    func(t *testing.T) http.HandlerFunc { return writeJSON(t, testTaxonomy) },
			wantStage:   StageSpeciesList,
		},
		{
			name: "species list not json",
			speciesList: func(*testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "text/html")
					_, _ = w.Write([]byte("<html>maintenance</html>"))
				}
			},
			taxonomy:  func(t *testing.T) http.HandlerFunc { return writeJSON(t, testTaxonomy) },
			wantStage: StageSpeciesList,
		},
		{
			name:        "taxonomy server error",
			speciesList: func(t *testing.T) http.HandlerFunc { return writeJSON(t, []string{"blujay"}) },
			taxonomy:    func(*testing.T) http.HandlerFunc { return writeStatus(http.StatusInternalServerError, "oops") },
			wantStage:   StageTaxonomy,
		},
		{
			name:        "taxonomy malformed",
			speciesList: func(t *testing.T) http.HandlerFunc { return writeJSON(t, []string{"blujay"}) },
			taxonomy:    func(*testing.T) http.HandlerFunc { return writeStatus(http.StatusOK, `[{"speciesCode":`) },
			wantStage:   StageTaxonomy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeEBird{speciesList: tt.speciesList(t), taxonomy: tt.taxonomy(t)}
			client := setupTestClient(t, fake)

			registry, err := client.FetchRegistry(t.Context(), "US-NY")
			require.Error(t, err)
			assert.Nil(t, registry)

			var enhancedErr *errors.EnhancedError
			require.True(t, errors.As(err, &enhancedErr))
			assert.Equal(t, errors.CategoryRegistry, enhancedErr.Category)
			assert.Equal(t, tt.wantStage, enhancedErr.GetContext()["stage"])
			assert.Equal(t, "US-NY", enhancedErr.GetContext()["region"])
		})
	}
}

func TestDoRequestWithRetry_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fake := &fakeEBird{taxonomy: writeJSON(t, testTaxonomy)}
	fake.speciesList = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeStatus(http.StatusServiceUnavailable, "busy")(w, r)
			return
		}
		writeJSON(t, []string{"amerob"})(w, r)
	}
	client := setupTestClient(t, fake)

	codes, err := client.GetRegionSpecies(t.Context(), "US")
	require.NoError(t, err)
	assert.Equal(t, []string{"amerob"}, codes)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRequestWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{taxonomy: writeJSON(t, testTaxonomy)}
	fake.speciesList = writeStatus(http.StatusBadRequest, `{"title":"Bad Request","detail":"invalid region"}`)
	client := setupTestClient(t, fake)

	_, err := client.GetRegionSpecies(t.Context(), "XX-???")
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.listCalls.Load())
	assert.Contains(t, err.Error(), "invalid region")
}

func TestDoRequestWithRetry_RetriesRateLimit(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{taxonomy: writeJSON(t, testTaxonomy)}
	fake.speciesList = writeStatus(http.StatusTooManyRequests, "slow down")
	client := setupTestClient(t, fake)

	_, err := client.GetRegionSpecies(t.Context(), "US")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
	assert.Equal(t, int32(3), fake.listCalls.Load())
}

func TestGetRegionSpecies_RequiresRegion(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{}
	client := setupTestClient(t, fake)

	_, err := client.GetRegionSpecies(t.Context(), "  ")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, int32(0), fake.listCalls.Load())
}

func TestFetchRegistry_CancelledContext(t *testing.T) {
	t.Parallel()

	fake := &fakeEBird{}
	fake.speciesList = writeJSON(t, []string{"amerob"})
	fake.taxonomy = writeJSON(t, testTaxonomy)
	client := setupTestClient(t, fake)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := client.FetchRegistry(ctx, "US")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRegistry))
}

func TestGetErrorCategory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CategoryConfiguration, statusCategory(http.StatusUnauthorized))
	assert.Equal(t, errors.CategoryConfiguration, statusCategory(http.StatusForbidden))
	assert.Equal(t, errors.CategoryLimit, statusCategory(http.StatusTooManyRequests))
	assert.Equal(t, errors.CategoryNotFound, statusCategory(http.StatusNotFound))
	assert.Equal(t, errors.CategoryHTTP, statusCategory(http.StatusBadGateway))
}
