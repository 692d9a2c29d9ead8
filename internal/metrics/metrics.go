// Package metrics exports Prometheus counters fed by bus events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HexSleeves/pollen/internal/bus"
)

const namespace = "pollen"

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	completions        *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	tokens             *prometheus.CounterVec
	toolCalls          *prometheus.CounterVec
	toolDuration       *prometheus.HistogramVec
	toolsDropped       *prometheus.CounterVec
	streamChunks       prometheus.Counter
	validationFailures prometheus.Counter
	answers            prometheus.Counter
	speech             *prometheus.CounterVec
}

// New builds the collectors on a private registry, alongside the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Chat completion calls by outcome.",
		}, []string{"outcome"}),
		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of chat completion calls.",
			Buckets:   []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"streamed"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Executed tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool executions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"tool"}),
		toolsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_dropped_total",
			Help:      "Tool requests dropped after the round budget was spent.",
		}, []string{"tool"}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Text fragments delivered by streamed completions.",
		}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structured_validation_failures_total",
			Help:      "Structured replies that failed schema validation.",
		}),
		answers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Final answers appended to a conversation.",
		}),
		speech: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_events_total",
			Help:      "Voice loop events by kind.",
		}, []string{"event"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.completions,
		m.completionDuration,
		m.tokens,
		m.toolCalls,
		m.toolDuration,
		m.toolsDropped,
		m.streamChunks,
		m.validationFailures,
		m.answers,
		m.speech,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Attach records every message published on b.
func (m *Metrics) Attach(b *bus.MessageBus) {
	b.SubscribeAll(m.Observe)
}

// Observe updates the collectors for one bus message.
func (m *Metrics) Observe(msg bus.Message) {
	switch msg.Type {
	case bus.MsgCompletionDone:
		m.completions.WithLabelValues("ok").Inc()
		info, ok := msg.Payload.(bus.CompletionInfo)
		if !ok {
			return
		}
		streamed := "false"
		if info.Streamed {
			streamed = "true"
		}
		m.completionDuration.WithLabelValues(streamed).Observe(info.Duration.Seconds())
		m.tokens.WithLabelValues("input").Add(float64(info.InputTokens))
		m.tokens.WithLabelValues("output").Add(float64(info.OutputTokens))
	case bus.MsgCompletionFailed:
		m.completions.WithLabelValues("error").Inc()
	case bus.MsgToolResult:
		outcome := "ok"
		info, ok := msg.Payload.(bus.ToolInfo)
		if ok && info.IsError {
			outcome = "error"
		}
		m.toolCalls.WithLabelValues(msg.Tool, outcome).Inc()
		if ok {
			m.toolDuration.WithLabelValues(msg.Tool).Observe(info.Duration.Seconds())
		}
	case bus.MsgToolsDropped:
		m.toolsDropped.WithLabelValues(msg.Tool).Inc()
	case bus.MsgStreamChunk:
		m.streamChunks.Inc()
	case bus.MsgValidationFailed:
		m.validationFailures.Inc()
	case bus.MsgAnswer:
		m.answers.Inc()
	case bus.MsgSpeechHeard:
		m.speech.WithLabelValues("heard").Inc()
	case bus.MsgSpeechSpoken:
		m.speech.WithLabelValues("spoken").Inc()
	case bus.MsgSpeechFailed:
		m.speech.WithLabelValues("unrecognized").Inc()
	}
}
