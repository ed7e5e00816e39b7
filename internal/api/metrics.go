package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsPath = "/metrics"

func (s *Server) metricsPath() string {
	if s.metricsCfg.Path == "" {
		return defaultMetricsPath
	}
	return s.metricsCfg.Path
}

// metricsHandler serves the Prometheus exposition format for the
// configured gatherer.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog:      promLogger{s},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger adapts the server logger to promhttp.Logger.
type promLogger struct{ s *Server }

func (l promLogger) Println(v ...any) {
	l.s.logger.Warn("metrics exposition error", "detail", v)
}
