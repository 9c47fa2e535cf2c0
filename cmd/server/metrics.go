package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orpheusplus_server_connections_total",
		Help: "Accepted client connections",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orpheusplus_server_active_connections",
		Help: "Open client connections",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orpheusplus_server_requests_total",
		Help: "Statements handled by response type and outcome",
	}, []string{"type", "outcome"})

	authTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orpheusplus_server_auth_total",
		Help: "AUTH commands by outcome",
	}, []string{"outcome"})
)

// metricsHandler serves the default registry, which also holds the
// engine's metrics.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
