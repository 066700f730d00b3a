// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Notification pipeline metrics
	NotificationsReceived prometheus.Counter
	NotificationsMarkedSeen prometheus.Counter
	FeedReconnects        prometheus.Counter
	FeedConnected         prometheus.Gauge
	APIErrors             *prometheus.CounterVec

	// Balance aggregation metrics
	BalanceRecomputes     prometheus.Counter
	MissingMarketLookups  prometheus.Counter

	// Chart metrics
	ChartFetches *prometheus.CounterVec

	// Health metrics
	ClusterTPS prometheus.Gauge
	DBHealthy  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_desk_gateway"
	}

	return &Metrics{
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_received_total",
			Help:      "Total number of push notifications received",
		}),
		NotificationsMarkedSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_marked_seen_total",
			Help:      "Total number of notifications marked seen",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "feed_reconnects_total",
			Help:      "Total number of push feed reconnect attempts",
		}),
		FeedConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "feed_connected",
			Help:      "Whether the push feed connection is live (1) or not (0)",
		}),
		APIErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "api_errors_total",
			Help:      "Total number of notification API errors",
		}, []string{"operation"}),
		BalanceRecomputes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balances",
			Name:      "recomputes_total",
			Help:      "Total number of spot balance recomputations",
		}),
		MissingMarketLookups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balances",
			Name:      "missing_market_lookups_total",
			Help:      "Total number of memberships referencing unknown markets",
		}),
		ChartFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "charts",
			Name:      "fetches_total",
			Help:      "Total number of chart data fetches by result",
		}, []string{"result"}),
		ClusterTPS: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "cluster_tps",
			Help:      "Most recent cluster transactions per second reading",
		}),
		DBHealthy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "db_healthy",
			Help:      "Whether the offchain data service is healthy (1) or not (0)",
		}),
	}
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotificationReceived increments the notifications received counter.
func RecordNotificationReceived() {
	DefaultMetrics.NotificationsReceived.Inc()
}

// RecordMarkedSeen adds to the marked seen counter.
func RecordMarkedSeen(n int) {
	DefaultMetrics.NotificationsMarkedSeen.Add(float64(n))
}

// RecordFeedReconnect increments the reconnect counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// SetFeedConnected updates the connection gauge.
func SetFeedConnected(connected bool) {
	if connected {
		DefaultMetrics.FeedConnected.Set(1)
	} else {
		DefaultMetrics.FeedConnected.Set(0)
	}
}

// RecordAPIError records a notification API failure.
func RecordAPIError(operation string) {
	DefaultMetrics.APIErrors.WithLabelValues(operation).Inc()
}

// RecordBalanceRecompute records one aggregation pass and its missing-market count.
func RecordBalanceRecompute(missingMarkets int) {
	DefaultMetrics.BalanceRecomputes.Inc()
	DefaultMetrics.MissingMarketLookups.Add(float64(missingMarkets))
}

// RecordChartFetch records a chart fetch outcome ("ok" or "empty").
func RecordChartFetch(result string) {
	DefaultMetrics.ChartFetches.WithLabelValues(result).Inc()
}

// UpdateClusterHealth updates the health gauges.
func UpdateClusterHealth(tps float64, dbGood bool) {
	DefaultMetrics.ClusterTPS.Set(tps)
	if dbGood {
		DefaultMetrics.DBHealthy.Set(1)
	} else {
		DefaultMetrics.DBHealthy.Set(0)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
