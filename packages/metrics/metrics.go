// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HarvestsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopharvest_harvests_started_total",
			Help: "Total number of harvests started.",
		},
	)
	HarvestOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopharvest_harvest_outcomes_total",
			Help: "Harvest results labeled by outcome.",
		},
		[]string{"outcome"},
	)
	HarvestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopharvest_harvest_duration_seconds",
			Help:    "Wall-clock duration of one full harvest.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	PagesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopharvest_feed_pages_fetched_total",
			Help: "Total number of feed pages that yielded records.",
		},
	)
	RateLimitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopharvest_rate_limit_retries_total",
			Help: "Total number of 429 back-off retries across all harvests.",
		},
	)
	ProductsHarvested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shopharvest_products_harvested_total",
			Help: "Total number of product records persisted.",
		},
	)
)

func init() {
	prometheus.MustRegister(HarvestsStarted)
	prometheus.MustRegister(HarvestOutcomes)
	prometheus.MustRegister(HarvestDuration)
	prometheus.MustRegister(PagesFetched)
	prometheus.MustRegister(RateLimitRetries)
	prometheus.MustRegister(ProductsHarvested)
}

func ExposeMetrics(addr string) {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
