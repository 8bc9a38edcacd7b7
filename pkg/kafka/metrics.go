package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_messages_total",
			Help: "Events handed to Kafka, by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Time spent in WriteMessages per event.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
