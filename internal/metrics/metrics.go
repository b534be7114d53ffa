// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livepoll_actions_total",
		Help: "Inbound room actions by name and outcome.",
	}, []string{"action", "outcome"})

	RoomsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livepoll_rooms_open",
		Help: "Rooms currently in the registry.",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livepoll_connections",
		Help: "Open signal connections.",
	})

	Votes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_votes_total",
		Help: "Accepted votes.",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_broadcast_dropped_total",
		Help: "Events not delivered because a connection queue was full.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
