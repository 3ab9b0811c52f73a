// Package observability owns the service's Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "activitysync"

var (
	savesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "saves_total",
		Help:      "Number of record saves grouped by origin and result.",
	}, []string{"origin", "result"})

	purgesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "purges_total",
		Help:      "Number of stored copies purged after failing validation, by reason.",
	}, []string{"reason"})

	asyncWritesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "async_writer",
		Name:      "writes_total",
		Help:      "Number of background constructed-content writes, by result.",
	}, []string{"result"})

	asyncWriteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "async_writer",
		Name:      "write_duration_seconds",
		Help:      "Time spent writing one heavy constructed payload across its redundancy set.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	asyncQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "async_writer",
		Name:      "queued_writes",
		Help:      "Current number of heavy writes waiting for the background worker.",
	})

	evictionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "quota_evictions_total",
		Help:      "Number of keys evicted by emergency cleanup after the medium ran out of capacity.",
	})

	collectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "gc_removed_total",
		Help:      "Number of constructed entries removed by garbage collection.",
	})

	externalChangesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "change_feed",
		Name:      "changes_total",
		Help:      "Number of storage changes observed from other processes, by operation.",
	}, []string{"op"})

	lastSavedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_activity_saved_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record saved.",
	})

	storageUsedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "storage_used_bytes",
		Help:      "Bytes held by owned keys at the last stats computation.",
	})
)

func init() {
	prometheus.MustRegister(
		savesCounter,
		purgesCounter,
		asyncWritesCounter,
		asyncWriteDuration,
		asyncQueueGauge,
		evictionsCounter,
		collectedCounter,
		externalChangesCounter,
		lastSavedGauge,
		storageUsedGauge,
	)
}

// RecordSave counts one save attempt and advances the watermark on success.
func RecordSave(origin string, ok bool, ts time.Time) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	savesCounter.WithLabelValues(origin, result).Inc()
	if ok && !ts.IsZero() {
		lastSavedGauge.Set(float64(ts.Unix()))
	}
}

// RecordPurge counts a stored copy removed for reason.
func RecordPurge(reason string) {
	purgesCounter.WithLabelValues(reason).Inc()
}

// RecordAsyncWrite counts one background write and observes its duration.
func RecordAsyncWrite(ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	asyncWritesCounter.WithLabelValues(result).Inc()
	asyncWriteDuration.Observe(elapsed.Seconds())
}

// SetAsyncQueueDepth reports the background writer backlog.
func SetAsyncQueueDepth(n int) {
	asyncQueueGauge.Set(float64(n))
}

// RecordEvictions counts keys removed by emergency cleanup.
func RecordEvictions(n int) {
	if n > 0 {
		evictionsCounter.Add(float64(n))
	}
}

// RecordCollected counts constructed entries removed by garbage collection.
func RecordCollected(n int) {
	if n > 0 {
		collectedCounter.Add(float64(n))
	}
}

// RecordExternalChange counts a change delivered by a change feed.
func RecordExternalChange(op string) {
	if op == "" {
		op = "unknown"
	}
	externalChangesCounter.WithLabelValues(op).Inc()
}

// SetStorageUsage reports the bytes held by owned keys.
func SetStorageUsage(bytes int64) {
	storageUsedGauge.Set(float64(bytes))
}
