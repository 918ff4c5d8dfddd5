// Package server wires HTTP handlers into a ServeMux for the GeoPulse
// application.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the ServeMux with all application
// routes: health check, WebSocket endpoint, Prometheus metrics, and the
// demo page.
func SetupRoutes(hub *Hub, registry *Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", NewHealthHandler(registry))
	mux.HandleFunc("/ws", NewWebSocketHandler(hub))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/demo", DemoPageHandler)
	return mux
}
