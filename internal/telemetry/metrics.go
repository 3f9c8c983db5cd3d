// Package telemetry exposes the simulation tick statistics as prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several simulations (or tests) can run
// in one process. Label values are bounded: mode and phase only.
type Metrics struct {
	registry *prometheus.Registry

	tickDuration  *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec
	ticks         *prometheus.CounterVec
	agents        prometheus.Gauge
	isolated      prometheus.Gauge
	meanSpeed     prometheus.Gauge
	configReloads prometheus.Counter
	wsClients     prometheus.Gauge
}

var _ simulation.TickObserver = (*Metrics)(nil)

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flock_tick_duration_seconds",
			Help:    "Time spent in one simulation tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"mode"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flock_phase_duration_seconds",
			Help:    "Time spent in the evaluate and apply phases of a tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"phase"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_ticks_total",
			Help: "Completed simulation ticks",
		}, []string{"mode"}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flock_agents",
			Help: "Number of agents in the flock",
		}),
		isolated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flock_isolated_agents",
			Help: "Agents without any neighbour during the last tick",
		}),
		meanSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flock_mean_speed",
			Help: "Mean agent speed after the last tick",
		}),
		configReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flock_config_reloads_total",
			Help: "Configuration hot reloads applied between ticks",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flock_websocket_clients",
			Help: "Connected websocket frame subscribers",
		}),
	}
	reg.MustRegister(
		m.tickDuration, m.phaseDuration, m.ticks,
		m.agents, m.isolated, m.meanSpeed,
		m.configReloads, m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(s simulation.TickStats) {
	mode := s.Mode.String()
	m.tickDuration.WithLabelValues(mode).Observe(s.Total.Seconds())
	m.phaseDuration.WithLabelValues("evaluate").Observe(s.Evaluate.Seconds())
	if s.Mode == simulation.Batch {
		m.phaseDuration.WithLabelValues("apply").Observe(s.Apply.Seconds())
	}
	m.ticks.WithLabelValues(mode).Inc()
	m.agents.Set(float64(s.Agents))
	m.isolated.Set(float64(s.Isolated))
	m.meanSpeed.Set(s.MeanSpeed)
}

// ConfigReloaded counts one applied hot reload.
func (m *Metrics) ConfigReloaded() {
	m.configReloads.Inc()
}

// SetWebsocketClients reports the number of frame subscribers.
func (m *Metrics) SetWebsocketClients(n int) {
	m.wsClients.Set(float64(n))
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
