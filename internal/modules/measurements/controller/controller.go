package controller

import (
	"time"

	"stationlog/internal/export"
	"stationlog/internal/httpapi"
	"stationlog/internal/modules/measurements/repository"
	"stationlog/internal/modules/measurements/service"
)

type MeasurementController interface {
	RegisterRoutes(mux *httpapi.Router)
}

type measurementControllerImpl struct {
	service    *service.Service
	repository repository.MeasurementRepository
	exporter   *export.Service
	stations   []string
	now        func() time.Time
}

// NewMeasurementController serves ingestion, the HTML pages and the JSON API.
// stations are the configured names listed before any discovered from stored devices.
func NewMeasurementController(svc *service.Service, exporter *export.Service, stations []string) MeasurementController {
	return &measurementControllerImpl{
		service:    svc,
		repository: svc.Repository(),
		exporter:   exporter,
		stations:   stations,
		now:        time.Now,
	}
}

func (c *measurementControllerImpl) RegisterRoutes(mux *httpapi.Router) {
	mux.HandleFunc("GET /{$}", c.handleIndex)
	mux.HandleFunc("POST /receive_batch", c.handleReceiveBatch)
	mux.HandleFunc("GET /data", c.handleData)
	mux.HandleFunc("GET /time", c.handleTime)

	mux.HandleFunc("GET /api/v1/devices", c.handleDevices)
	mux.HandleFunc("GET /api/v1/devices/{device}/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1/stations/{name}/dates", c.handleDates)
	mux.HandleFunc("GET /api/v1/stations/{name}/readings", c.handleReadings)
	mux.HandleFunc("GET /api/v1/export", c.handleExport)
}
