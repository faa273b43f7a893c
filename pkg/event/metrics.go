package event

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are per-Router counters. Each Router registers its own collectors
// against a private registry rather than the global default one: a host
// embedding multiple agents must not collide on metric registration.
type metrics struct {
	registry      *prometheus.Registry
	dispatches    prometheus.Counter
	handlerErrors prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentkernel_event_dispatches_total",
			Help: "Total number of EventRouter.Apply dispatches (including those run via Do or ApplySync).",
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentkernel_event_handler_errors_total",
			Help: "Total number of handler errors/panics captured across all dispatches.",
		}),
	}
	reg.MustRegister(m.dispatches, m.handlerErrors)
	return m
}

// Registry exposes the Router's private Prometheus registry so a host can
// mount it under its own /metrics endpoint if desired.
func (r *Router) Registry() *prometheus.Registry {
	return r.metrics.registry
}
