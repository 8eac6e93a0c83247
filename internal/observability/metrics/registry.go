package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RegistryStats is a point-in-time view of the eBird client's counters.
type RegistryStats struct {
	Requests    int64
	Errors      int64
	CacheHits   int64
	CacheMisses int64
	CacheItems  int
}

// RegisterRegistryStats exposes the eBird client's internal counters. stats is called on every scrape.
func RegisterRegistryStats(registry *prometheus.Registry, stats func() RegistryStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "birdlens_ebird_requests_total",
			Help: "Total number of eBird API requests",
		}, func() float64 { return float64(stats().Requests) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "birdlens_ebird_errors_total",
			Help: "Total number of failed eBird API requests",
		}, func() float64 { return float64(stats().Errors) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "birdlens_ebird_cache_hits_total",
			Help: "Taxonomy lookups served from the cache",
		}, func() float64 { return float64(stats().CacheHits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "birdlens_ebird_cache_misses_total",
			Help: "Taxonomy lookups that went to the API",
		}, func() float64 { return float64(stats().CacheMisses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "birdlens_ebird_cache_items",
			Help: "Items currently held in the eBird cache",
		}, func() float64 { return float64(stats().CacheItems) }),
	}

	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("failed to register eBird metrics: %w", err)
		}
	}
	return nil
}
