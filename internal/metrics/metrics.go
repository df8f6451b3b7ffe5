// Package metrics exposes prometheus counters for transitions, automation
// outcomes and outbound deliveries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmline",
		Name:      "transitions_total",
		Help:      "Lifecycle mutations by kind, action and result code",
	}, []string{"kind", "action", "result"})

	automationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmline",
		Name:      "automation_outcomes_total",
		Help:      "Per-record automation outcomes by job and result",
	}, []string{"job", "result"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmline",
		Name:      "deliveries_total",
		Help:      "Outbound notifications by channel and result",
	}, []string{"channel", "result"})
)

// Transition counts one mutation. An empty code means success.
func Transition(kind, action, code string) {
	if code == "" {
		code = "ok"
	}
	transitionsTotal.WithLabelValues(kind, action, code).Inc()
}

// Automation counts one per-record outcome.
func Automation(job, result string) {
	automationOutcomes.WithLabelValues(job, result).Inc()
}

// Delivery counts one outbound send.
func Delivery(channel string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	deliveriesTotal.WithLabelValues(channel, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
