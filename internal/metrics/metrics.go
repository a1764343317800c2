package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Parse metrics
	ParseCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "answerview_parse_cache_hits_total",
			Help: "Total number of parsed answers served from the identity cache",
		},
	)

	ParseCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "answerview_parse_cache_misses_total",
			Help: "Total number of answers resolved because their identity was not cached",
		},
	)

	CitationsResolved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answerview_citations_resolved",
			Help:    "Number of citations resolved per answer",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Render metrics
	RendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_renders_total",
			Help: "Total number of rendered answers",
		},
		[]string{"sanitized", "status"},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answerview_render_duration_seconds",
			Help:    "Time spent sanitizing, parsing and rendering one answer",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	CodeBlocksRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_code_blocks_rendered_total",
			Help: "Total number of code blocks rendered, by grammar (none when unhighlighted)",
		},
		[]string{"grammar"},
	)

	CitationActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_citation_activations_total",
			Help: "Total number of citation reference activations",
		},
		[]string{"status"},
	)

	// Feedback metrics
	FeedbackResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_feedback_resolutions_total",
			Help: "Total number of feedback resolutions, by source (table, derived, undefined)",
		},
		[]string{"source"},
	)

	FeedbackUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_feedback_updates_total",
			Help: "Total number of feedback table writes",
		},
		[]string{"category", "origin"},
	)

	FeedbackSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "answerview_feedback_subscribers",
			Help: "Number of active feedback table subscribers",
		},
	)

	FeedbackDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "answerview_feedback_notifications_dropped_total",
			Help: "Total number of feedback notifications dropped for slow subscribers",
		},
	)

	// Speech metrics
	SpeechTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_speech_transitions_total",
			Help: "Total number of speech pipeline state transitions",
		},
		[]string{"from", "to"},
	)

	SpeechRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_speech_requests_total",
			Help: "Total number of speech synthesis requests by outcome",
		},
		[]string{"result"},
	)

	SpeechRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_speech_rejected_total",
			Help: "Total number of speech triggers rejected before any outbound request",
		},
		[]string{"reason"},
	)

	SpeechDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answerview_speech_duration_seconds",
			Help:    "Time from trigger until playback started or the request failed",
			Buckets: prometheus.DefBuckets,
		},
	)

	SpeechPipelines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "answerview_speech_pipelines",
			Help: "Number of answer instances with a speech pipeline",
		},
	)

	// Configuration metrics
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_config_reloads_total",
			Help: "Configuration reloads by outcome",
		},
		[]string{"status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_http_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	RenderInstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "answerview_render_instances",
			Help: "Rendered answer instances held for citation activation and speech",
		},
	)
)
