// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storify"

type Metrics struct {
	ListeningDecisions *prometheus.CounterVec
	PaymentsCreated    *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
	WebhookVerify      *prometheus.CounterVec
	Activations        prometheus.Counter

	registry *prometheus.Registry
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ListeningDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listening",
			Name:      "decisions_total",
			Help:      "Listening entitlement decisions by reason and outcome.",
		}, []string{"reason", "outcome"}),
		PaymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "created_total",
			Help:      "Payment transactions created, by gateway and result.",
		}, []string{"gateway", "result"}),
		PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "transitions_total",
			Help:      "Applied payment transitions by target status and source.",
		}, []string{"status", "source"}),
		WebhookVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "verifications_total",
			Help:      "Webhook verification attempts by gateway and result.",
		}, []string{"gateway", "result"}),
		Activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "activations_total",
			Help:      "Subscriptions created from paid transactions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ListeningDecisions,
		m.PaymentsCreated,
		m.PaymentTransitions,
		m.WebhookVerify,
		m.Activations,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The helpers below are nil-safe so services can run without metrics.

func (m *Metrics) ListeningDecision(reason string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.ListeningDecisions.WithLabelValues(reason, outcome).Inc()
}

func (m *Metrics) PaymentCreated(gateway string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PaymentsCreated.WithLabelValues(gateway, result).Inc()
}

func (m *Metrics) PaymentTransition(status, source string) {
	if m == nil {
		return
	}
	m.PaymentTransitions.WithLabelValues(status, source).Inc()
}

func (m *Metrics) WebhookVerification(gateway string, ok bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.WebhookVerify.WithLabelValues(gateway, result).Inc()
}

func (m *Metrics) Activation() {
	if m == nil {
		return
	}
	m.Activations.Inc()
}
