// Package metrics exposes Prometheus collectors for the coaching service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	chatTurns     *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	checkinEmails *prometheus.CounterVec
	transcribes   *prometheus.CounterVec
}

// New builds collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "betterme",
			Name:      "chat_turns_total",
			Help:      "Chat turns handled, by routed mode and step.",
		}, []string{"mode", "step"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "betterme",
			Name:      "llm_calls_total",
			Help:      "Model calls, by model and outcome.",
		}, []string{"model", "outcome"}),
		checkinEmails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "betterme",
			Name:      "checkin_emails_total",
			Help:      "Check-in emails attempted, by outcome.",
		}, []string{"outcome"}),
		transcribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "betterme",
			Name:      "transcriptions_total",
			Help:      "Voice transcriptions, by backend and outcome.",
		}, []string{"backend", "outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.chatTurns, m.llmCalls, m.checkinEmails, m.transcribes,
	)
	return m
}

// ObserveTurn counts a routed chat turn.
func (m *Metrics) ObserveTurn(mode, step string) {
	if m == nil {
		return
	}
	if step == "" {
		step = "none"
	}
	m.chatTurns.WithLabelValues(mode, step).Inc()
}

// ObserveLLMCall counts one model attempt.
func (m *Metrics) ObserveLLMCall(model, outcome string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model, outcome).Inc()
}

// ObserveCheckin counts one check-in email attempt.
func (m *Metrics) ObserveCheckin(outcome string) {
	if m == nil {
		return
	}
	m.checkinEmails.WithLabelValues(outcome).Inc()
}

// ObserveTranscription counts one transcription attempt.
func (m *Metrics) ObserveTranscription(backend, outcome string) {
	if m == nil {
		return
	}
	m.transcribes.WithLabelValues(backend, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
