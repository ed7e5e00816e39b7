package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsCfg.Enabled {
		r.Handle(s.metricsPath(), s.metricsHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleGetDeviceHistory)
				r.Post("/commands", s.handleSendCommand)
			})
		})

		r.Get("/commands/{cmd_id}", s.handleGetCommand)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports server, broker and hub status. The endpoint always
// answers 200; a lost broker session shows as status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	mqttConnected := s.broker != nil && s.broker.IsConnected()
	if s.broker != nil && !mqttConnected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           s.version,
		"mqtt_connected":    mqttConnected,
		"websocket_clients": s.hub.ClientCount(),
	})
}
