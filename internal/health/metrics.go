// ABOUTME: Prometheus metrics for the maintenance loop
// ABOUTME: Counters registered on a private registry served at /metrics

package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	Cycles        *prometheus.CounterVec
	LoginAttempts prometheus.Counter
	Reauths       prometheus.Counter
	GatewayKills  prometheus.Counter
	Authenticated prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_sentry_maintenance_cycles_total",
			Help: "Maintenance cycles by outcome.",
		}, []string{"outcome"}),
		LoginAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sentry_login_attempts_total",
			Help: "Browser login invocations.",
		}),
		Reauths: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sentry_reauthenticate_calls_total",
			Help: "Reauthenticate calls issued to the gateway.",
		}),
		GatewayKills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sentry_gateway_kills_total",
			Help: "Gateway processes killed after exhausted reauthentication retries.",
		}),
		Authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_sentry_session_authenticated",
			Help: "1 when the last observed session status was authenticated and not competing.",
		}),
	}

	m.registry.MustRegister(m.Cycles, m.LoginAttempts, m.Reauths, m.GatewayKills, m.Authenticated)
	return m
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle records a maintenance cycle outcome.
func (m *Metrics) ObserveCycle(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Cycles.WithLabelValues(outcome).Inc()

	if success {
		m.Authenticated.Set(1)
	} else {
		m.Authenticated.Set(0)
	}
}
