package measurements

import (
	"database/sql"
	"log/slog"

	"stationlog/internal/actionlog"
	"stationlog/internal/config"
	"stationlog/internal/export"
	"stationlog/internal/httpapi"
	"stationlog/internal/metrics"
	"stationlog/internal/modules/measurements/controller"
	"stationlog/internal/modules/measurements/repository"
	"stationlog/internal/modules/measurements/service"
	"stationlog/internal/mqtt"
)

// RegisterFeature wires the measurement store, ingestion and export into the router.
// subscriber may be nil when MQTT ingestion is disabled.
func RegisterFeature(mux *httpapi.Router, db *sql.DB, cfg config.Config, m *metrics.Metrics, subscriber mqtt.MQTTSubscriber, logger *slog.Logger) *service.Service {
	measurementRepository := repository.NewRepository(db)
	measurementService := service.NewService(measurementRepository, m, logger)
	if subscriber != nil {
		measurementService.Register(subscriber)
	}
	exporter := export.NewService(measurementRepository, actionlog.New(cfg.LogDir), m, logger)
	measurementController := controller.NewMeasurementController(measurementService, exporter, cfg.Stations)
	measurementController.RegisterRoutes(mux)
	return measurementService
}
