package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
)

// initForTesting points Sentry at a mock transport. Tests in this file share global
// state and must not run in parallel.
func initForTesting(t *testing.T) *MockTransport {
	t.Helper()

	transport := NewMockTransport()
	require.NoError(t, initialize(sentry.ClientOptions{
		Dsn:         "",
		Transport:   transport,
		Environment: "test",
		Release:     "birdlens@test",
		SampleRate:  1.0,
	}))
	t.Cleanup(func() {
		errors.SetTelemetryReporter(nil)
		errors.SetPrivacyScrubber(nil)
	})
	return transport
}

func TestReportedErrorsReachSentry(t *testing.T) {
	transport := initForTesting(t)

	_ = errors.Newf("write to https://minio.internal:9000/bucket/collections/u1/a.jpg failed").
		Component("persist").
		Category(errors.CategoryPersist).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "persist", events[0].Tags["component"])
	assert.Equal(t, "persist", events[0].Tags["category"])
	assert.NotContains(t, events[0].Message, "minio.internal")
	assert.NotContains(t, events[0].Message, "collections/u1")
}

func TestQuietCategoriesAreDropped(t *testing.T) {
	transport := initForTesting(t)

	_ = errors.Newf("owner id is required").Category(errors.CategoryValidation).Build()
	_ = errors.Newf("caller went away").Category(errors.CategoryCancellation).Build()
	_ = errors.Newf("not a photo").Category(errors.CategoryImageEncode).Build()

	assert.Empty(t, transport.Events())
}

func TestInitSentry_Disabled(t *testing.T) {
	require.NoError(t, InitSentry(&conf.SentrySettings{Enabled: false}, &buildinfo.Context{}))
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestInitSentry_RequiresDSN(t *testing.T) {
	err := InitSentry(&conf.SentrySettings{Enabled: true}, &buildinfo.Context{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		Message:    "fetch https://api.ebird.org/v2/product/spplist/US-NY failed",
		ServerName: "my-laptop",
		User:       sentry.User{ID: "u-1"},
		Tags:       map[string]string{"hostname": "my-laptop", "component": "ebird"},
		Extra:      map[string]any{"component": "ebird", "owner": "u-1"},
		Exception:  []sentry.Exception{{Value: "Bearer abc.def"}},
	}

	out := applyPrivacyFilters(event, nil)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Message, "spplist")
	assert.NotContains(t, out.Tags, "hostname")
	assert.Contains(t, out.Tags, "component")
	assert.NotContains(t, out.Extra, "owner")
	assert.Equal(t, "Bearer [REDACTED]", out.Exception[0].Value)
}
