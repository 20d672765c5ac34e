package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "rides_created_total",
		Help:      "Rides requested by riders.",
	})

	OffersSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "offers_sent_total",
		Help:      "Ride offers fanned out to drivers.",
	})

	OffersResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "offers_resolved_total",
		Help:      "Ride offers by terminal status.",
	}, []string{"status"})

	MatchingRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "matching_rounds_total",
		Help:      "Dispatch rounds by outcome (offered, no_drivers).",
	}, []string{"outcome"})

	PaymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "payments_processed_total",
		Help:      "Payments by method and final status.",
	}, []string{"method", "status"})

	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "location_updates_total",
		Help:      "Accepted driver location reports.",
	})

	LocationFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "location_flush_batch_size",
		Help:      "Location samples written per buffer flush.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100},
	})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Name:      "websocket_connections",
		Help:      "Currently connected websocket clients.",
	})
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// HTTPMetrics records request latency per route.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
