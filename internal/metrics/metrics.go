package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SimulationRuns counts finished runs by policy and status
	SimulationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "simulation_runs_total", Help: "Simulation runs by policy and status."},
		[]string{"policy", "status"},
	)
	// SimulationDuration tracks wall time of whole runs, restarts included
	SimulationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "simulation_duration_seconds", Help: "Simulation wall time in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
		[]string{"policy"},
	)
	// SimulationScore is the score of the most recent completed run per policy
	SimulationScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "simulation_score", Help: "Score of the last completed simulation."},
		[]string{"policy"},
	)
	// RidesCompleted accumulates completed rides over all runs
	RidesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "simulation_rides_completed_total", Help: "Rides completed across simulation runs."},
	)

	// Notifications counts outbound notification outcomes by sink and status
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Outbound notifications by sink and status."},
		[]string{"sink", "status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SimulationRuns)
		Registry.MustRegister(SimulationDuration)
		Registry.MustRegister(SimulationScore)
		Registry.MustRegister(RidesCompleted)
		Registry.MustRegister(Notifications)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
