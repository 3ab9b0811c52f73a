package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Pipeline messages handled and committed.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Pipeline messages left uncommitted because the handler failed.",
	}, []string{"topic", "event_type"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Handler attempts repeated after a transient failure.",
	}, []string{"topic", "event_type"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "messages_rejected_total",
		Help:      "Messages committed without storing because their content is invalid.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Malformed frames committed without handling.",
	}, []string{"topic"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "handle_duration_seconds",
		Help:      "Time spent in the handler per message.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activitysync",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Broker timestamp of the most recent committed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, retryCounter, rejectedCounter, decodeErrorCounter, handleDuration, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordRetry(msg Message) {
	retryCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordRejected(msg Message) {
	rejectedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func observeHandle(topic string, elapsed time.Duration) {
	handleDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}
