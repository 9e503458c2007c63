// Package metrics holds the Prometheus collectors shared by the registry
// server and the chain client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StartupsRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_startups_registered_total",
			Help: "Total number of startups registered",
		},
	)

	CapTableUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdant_cap_table_updates_total",
			Help: "Cap table replacement attempts by result",
		},
		[]string{"result"},
	)

	ChainCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdant_chain_calls_total",
			Help: "Wallet provider calls by method and result",
		},
		[]string{"method", "result"},
	)

	EnumerationSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdant_enumeration_skips_total",
			Help: "Startup ids skipped during registry enumeration",
		},
		[]string{"reason"},
	)

	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdant_event_subscribers",
			Help: "Connected registry event stream clients",
		},
	)
)

func init() {
	prometheus.MustRegister(StartupsRegistered, CapTableUpdates, ChainCalls, EnumerationSkips, EventSubscribers)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
