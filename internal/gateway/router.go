// Package gateway is the untrusted HTTP front end. It validates and routes
// requests; every location-bearing operation crosses into the trusted worker
// over the command channel.
package gateway

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// NewRouter assembles the HTTP handler chain: routes, CORS, request logging
// and metrics.
func NewRouter(h *Handler, reporter StateReporter, logger zerolog.Logger, metrics *Metrics, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/location/register", h.RegisterLocation)
	mux.HandleFunc("POST /api/location/get", h.GetLocation)
	mux.HandleFunc("POST /api/heatmap", h.GenerateHeatmap)
	mux.HandleFunc("POST /api/heatmap/synthetic", h.GenerateSyntheticHeatmap)
	mux.HandleFunc("POST /api/analytics/visits", h.VisitAnalytics)
	mux.HandleFunc("POST /api/analytics/daily", h.DailySummary)
	mux.HandleFunc("POST /reward", h.Reward)
	mux.HandleFunc("GET /health", h.Health(reporter))

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	return loggingMiddleware(logger, metrics, c.Handler(mux))
}
