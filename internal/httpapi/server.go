package httpapi

import (
	"net/http"
	"time"

	"stationlog/internal/config"
	"stationlog/internal/metrics"
)

func NewServer(cfg config.Config, handler http.Handler, m *metrics.Metrics) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(handler, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
