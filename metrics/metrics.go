// Package metrics exposes Prometheus collectors for the botloft daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstancesRunning tracks the number of instances with a live process.
	InstancesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botloft_instances_running",
		Help: "Number of bot instances currently running.",
	})

	// InstanceStarts counts successful instance start requests.
	InstanceStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botloft_instance_starts_total",
		Help: "Total number of instance starts.",
	})

	// InstanceStops counts instance stop events, including process exits.
	InstanceStops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botloft_instance_stops_total",
		Help: "Total number of instance stops.",
	})

	// LogLinesBroadcast counts console lines fanned out to observers.
	LogLinesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botloft_log_lines_broadcast_total",
		Help: "Total number of log lines broadcast through the hub.",
	})

	// ObserversConnected tracks currently attached log observers.
	ObserversConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botloft_observers_connected",
		Help: "Number of websocket observers currently attached.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
