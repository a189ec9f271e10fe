// Package exporters exposes the logging metrics over HTTP and the event bus.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// errorLog adapts slog to promhttp's Println logger.
type errorLog struct {
	logger *slog.Logger
}

func (l errorLog) Println(v ...any) {
	l.logger.Error("Metrics scrape failed", "error", fmt.Sprint(v...))
}

// HTTPHandler serves the default registry in text or OpenMetrics format.
// Scrape errors are logged and the remaining metrics are still served.
func HTTPHandler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	handler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          errorLog{logger: logger},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer, handler)
}
