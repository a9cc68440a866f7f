package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldx_events_ingested_total",
		Help: "Total number of events persisted by the ingestion API.",
	})

	ActivationsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldx_activations_enqueued_total",
		Help: "Total number of ingested events placed on the activation queue.",
	})

	ActivationsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldx_activations_processed_total",
		Help: "Total number of events whose trigger cascade was evaluated.",
	})

	ActivationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldx_activations_dropped_total",
		Help: "Total number of events not evaluated because the activation queue was full.",
	})

	RulesActivated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldx_rules_activated_total",
		Help: "Total number of rule activations, labelled by target and whether the target is registered.",
	}, []string{"target", "status"})

	CyclesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shieldx_trigger_cycles_detected_total",
		Help: "Total number of trigger edges found closing a cycle during cascade walks.",
	})

	ActivationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shieldx_activation_duration_ms",
		Help:    "Cascade evaluation latency per event in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shieldx_activation_queue_utilization_ratio",
		Help: "Current activation queue utilization (0-1).",
	})

	RelayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldx_relay_messages_total",
		Help: "Messages handled by relay consumers, labelled by queue and outcome.",
	}, []string{"queue", "outcome"})

	RelayReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldx_relay_reconnects_total",
		Help: "Broker sessions opened by relay consumers after the first, labelled by queue.",
	}, []string{"queue"})

	RelayPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldx_relay_published_total",
		Help: "Messages published to the broker, labelled by queue and status.",
	}, []string{"queue", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldx_http_requests_total",
		Help: "HTTP requests served, labelled by route pattern and status code.",
	}, []string{"route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shieldx_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
