// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the recorder.
type Metrics struct {
	// Live stream metrics
	EventsReceived   *prometheus.CounterVec
	EventsAccepted   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	SchemaMismatches *prometheus.CounterVec

	// Batch metrics
	Flushes          prometheus.Counter
	FlushErrors      prometheus.Counter
	RetryRowsDropped *prometheus.CounterVec
	RowsStored       *prometheus.CounterVec
	PendingBatchSize prometheus.Gauge
	FlushLatency     prometheus.Histogram

	// Queue metrics
	QueueDepth         prometheus.Gauge
	QueueOverflowDrops prometheus.Counter

	// Backfill metrics
	BackfillPages             prometheus.Counter
	BoundaryLastTradeID       prometheus.Gauge
	BoundaryLastKlineOpenTime prometheus.Gauge

	// Exchange metrics
	RESTCallLatency *prometheus.HistogramVec

	// Cache metrics
	CachePublishErrors prometheus.Counter

	// Health metrics
	LastSuccessfulFlush prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "binance_recorder"
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_received_total",
			Help:      "Total number of live events received by kind",
		}, []string{"kind"}),
		EventsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_accepted_total",
			Help:      "Total number of live events accepted past the boundary by kind",
		}, []string{"kind"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_rejected_total",
			Help:      "Total number of live events rejected by kind and reason",
		}, []string{"kind", "reason"}),
		SchemaMismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "schema_mismatches_total",
			Help:      "Total number of live payloads dropped for missing or malformed fields",
		}, []string{"event"}),

		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "flushes_total",
			Help:      "Total number of successful batch flushes",
		}),
		FlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "flush_errors_total",
			Help:      "Total number of failed batch flushes",
		}),
		RetryRowsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "retry_rows_dropped_total",
			Help:      "Rows dropped after their retry flush also failed",
		}, []string{"kind"}),
		RowsStored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "rows_stored_total",
			Help:      "Rows written to the store by kind and stage",
		}, []string{"kind", "stage"}),
		PendingBatchSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "pending_records",
			Help:      "Accepted records waiting for the next flush",
		}),
		FlushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "flush_latency_seconds",
			Help:      "Batch flush latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Events waiting in the delivery queue",
		}),
		QueueOverflowDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "overflow_drops_total",
			Help:      "Events evicted by the drop_oldest overflow policy",
		}),

		BackfillPages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "kline_pages_total",
			Help:      "Candlestick pages fetched during backfill",
		}),
		BoundaryLastTradeID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "boundary_last_trade_id",
			Help:      "Highest trade id persisted by backfill",
		}),
		BoundaryLastKlineOpenTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "boundary_last_kline_open_time_ms",
			Help:      "Open time of the last candle persisted by backfill",
		}),

		RESTCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "rest_call_latency_seconds",
			Help:      "Exchange REST call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),

		CachePublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "publish_errors_total",
			Help:      "Failed latest-record snapshot publishes",
		}),

		LastSuccessfulFlush: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of last successful batch flush",
		}),
	}
}

// Handler returns HTTP handler for Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordEventReceived increments received events for kind.
func RecordEventReceived(kind string) {
	DefaultMetrics.EventsReceived.WithLabelValues(kind).Inc()
}

// RecordEventAccepted increments accepted events for kind.
func RecordEventAccepted(kind string) {
	DefaultMetrics.EventsAccepted.WithLabelValues(kind).Inc()
}

// RecordEventRejected increments rejected events for kind and reason.
func RecordEventRejected(kind, reason string) {
	DefaultMetrics.EventsRejected.WithLabelValues(kind, reason).Inc()
}

// RecordSchemaMismatch increments schema mismatches for event.
func RecordSchemaMismatch(event string) {
	DefaultMetrics.SchemaMismatches.WithLabelValues(event).Inc()
}

// RecordFlush records a flush attempt and its latency.
func RecordFlush(seconds float64, err error) {
	DefaultMetrics.FlushLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.FlushErrors.Inc()
		return
	}
	DefaultMetrics.Flushes.Inc()
	DefaultMetrics.LastSuccessfulFlush.Set(float64(time.Now().Unix()))
}

// RecordRetryDropped counts rows given up after a failed retry.
func RecordRetryDropped(kind string, n int) {
	DefaultMetrics.RetryRowsDropped.WithLabelValues(kind).Add(float64(n))
}

// RecordRowsStored counts rows written by stage (backfill or live).
func RecordRowsStored(kind, stage string, n int) {
	DefaultMetrics.RowsStored.WithLabelValues(kind, stage).Add(float64(n))
}

// UpdatePendingBatch sets the pending batch gauge.
func UpdatePendingBatch(n int) {
	DefaultMetrics.PendingBatchSize.Set(float64(n))
}

// UpdateQueueDepth sets the delivery queue depth gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordQueueOverflowDrop counts one evicted queue entry.
func RecordQueueOverflowDrop() {
	DefaultMetrics.QueueOverflowDrops.Inc()
}

// RecordBackfillPage counts one candlestick page.
func RecordBackfillPage() {
	DefaultMetrics.BackfillPages.Inc()
}

// UpdateBoundary publishes the backfill cutover markers.
func UpdateBoundary(lastTradeID, lastKlineOpenTime int64) {
	DefaultMetrics.BoundaryLastTradeID.Set(float64(lastTradeID))
	DefaultMetrics.BoundaryLastKlineOpenTime.Set(float64(lastKlineOpenTime))
}

// RecordRESTCall records REST call latency by endpoint and outcome.
func RecordRESTCall(endpoint string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.RESTCallLatency.WithLabelValues(endpoint, status).Observe(seconds)
}

// RecordCachePublishError counts one failed snapshot publish.
func RecordCachePublishError() {
	DefaultMetrics.CachePublishErrors.Inc()
}
