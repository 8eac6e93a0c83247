package notification

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/observability/metrics"
)

type fakeProvider struct {
	name        string
	enabled     bool
	validateErr error
	sendErr     error
	types       []Type

	mu   sync.Mutex
	sent []*Notification
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Enabled() bool   { return f.enabled }
func (f *fakeProvider) Validate() error { return f.validateErr }

func (f *fakeProvider) Accepts(t Type) bool {
	return len(f.types) == 0 || slices.Contains(f.types, t)
}

func (f *fakeProvider) Send(_ context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.sendErr
}

func (f *fakeProvider) Sent() []*Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Notification(nil), f.sent...)
}

func savedEntry() *collection.Entry {
	return &collection.Entry{
		SlotID:         "slot-1",
		OwnerID:        "user-7",
		CommonName:     "Blue Jay",
		ScientificName: "Cyanocitta cristata",
		Family:         "Corvidae",
		ImageURL:       "https://cdn.example.com/a.jpg",
		CreatedAt:      time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(nil, logger.LogLevelError, nil)
}

func TestService_EntrySaved(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "fake", enabled: true}
	disabled := &fakeProvider{name: "off"}
	m, err := metrics.NewNotificationMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	svc, err := NewService([]Provider{p, disabled}, WithMetrics(m), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ProviderCount())

	require.NoError(t, svc.EntrySaved(t.Context(), savedEntry()))

	sent := p.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, TypeCollection, sent[0].Type)
	assert.Equal(t, "New bird: Blue Jay", sent[0].Title)
	assert.Equal(t, "Blue Jay (Cyanocitta cristata) was added to the collection of user-7. Photo: https://cdn.example.com/a.jpg", sent[0].Message)
	assert.Empty(t, disabled.Sent())

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("fake", "collection", metrics.StatusSuccess)), 0)
}

func TestService_MessageWithoutImage(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "fake", enabled: true}
	svc, err := NewService([]Provider{p}, WithLogger(quietLogger()))
	require.NoError(t, err)

	entry := savedEntry()
	entry.ImageURL = ""
	require.NoError(t, svc.EntrySaved(t.Context(), entry))
	require.Len(t, p.Sent(), 1)
	assert.NotContains(t, p.Sent()[0].Message, "Photo")
}

func TestService_CustomTemplates(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{name: "fake", enabled: true}
	svc, err := NewService([]Provider{p},
		WithTemplates("{{.OwnerID}} found a bird", "{{.Family}}: {{.CommonName}}"),
		WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, svc.EntrySaved(t.Context(), savedEntry()))
	assert.Equal(t, "user-7 found a bird", p.Sent()[0].Title)
	assert.Equal(t, "Corvidae: Blue Jay", p.Sent()[0].Message)
}

func TestService_Failures(t *testing.T) {
	t.Parallel()

	t.Run("invalid provider config", func(t *testing.T) {
		t.Parallel()
		p := &fakeProvider{name: "bad", enabled: true, validateErr: errors.NewStd("bad url")}
		_, err := NewService([]Provider{p})
		require.Error(t, err)
	})

	t.Run("one provider fails, others still run", func(t *testing.T) {
		t.Parallel()
		failing := &fakeProvider{name: "failing", enabled: true, sendErr: errors.NewStd("503")}
		ok := &fakeProvider{name: "ok", enabled: true}
		svc, err := NewService([]Provider{failing, ok}, WithLogger(quietLogger()))
		require.NoError(t, err)

		err = svc.EntrySaved(t.Context(), savedEntry())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryNotification))
		assert.Contains(t, err.Error(), "503")
		assert.Len(t, ok.Sent(), 1)
	})

	t.Run("unsupported type is skipped", func(t *testing.T) {
		t.Parallel()
		p := &fakeProvider{name: "system-only", enabled: true, types: []Type{TypeSystem}}
		svc, err := NewService([]Provider{p}, WithLogger(quietLogger()))
		require.NoError(t, err)
		require.NoError(t, svc.EntrySaved(t.Context(), savedEntry()))
		assert.Empty(t, p.Sent())
	})

	t.Run("broken template", func(t *testing.T) {
		t.Parallel()
		p := &fakeProvider{name: "fake", enabled: true}
		svc, err := NewService([]Provider{p}, WithTemplates("{{.Missing", ""), WithLogger(quietLogger()))
		require.NoError(t, err)
		err = svc.EntrySaved(t.Context(), savedEntry())
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryNotification))
		assert.Empty(t, p.Sent())
	})
}

func TestService_NoProviders(t *testing.T) {
	t.Parallel()

	svc, err := NewService(nil)
	require.NoError(t, err)
	assert.NoError(t, svc.EntrySaved(t.Context(), savedEntry()))
}
