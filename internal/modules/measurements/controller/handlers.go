package controller

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"stationlog/internal/export"
	"stationlog/internal/modules/measurements/service"
	"stationlog/internal/modules/measurements/types"
	"stationlog/internal/modules/measurements/views"
	"stationlog/internal/navigation"
	"stationlog/internal/utils"
)

func (c *measurementControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.DistinctDevices(r.Context())
	if err != nil {
		// The index still renders with the configured stations only.
		slog.Warn("index: list devices failed", "error", err)
	}
	data := &views.IndexData{Title: "Données capteurs", Stations: types.Stations(devices, c.stations)}
	c.renderHTML(w, "index", func(buf *bytes.Buffer) error { return views.RenderIndex(buf, data) })
}

func (c *measurementControllerImpl) handleReceiveBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.WriteError(w, http.StatusRequestEntityTooLarge, "batch too large")
			return
		}
		utils.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	n, err := c.service.IngestBatch(r.Context(), body)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusOK, insertedResponse{Inserted: n})
	case errors.Is(err, service.ErrMalformedBatch):
		slog.Warn("receive_batch: rejected payload", "error", err)
		utils.WriteError(w, http.StatusBadRequest, malformedBatchMessage)
	default:
		slog.Error("receive_batch: store failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to store batch")
	}
}

func (c *measurementControllerImpl) handleData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	devices, err := c.repository.DistinctDevices(ctx)
	if err != nil {
		slog.Error("data: list devices failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	page := &views.DataPage{
		Title:   "Données : 24 dernières mesures par appareil",
		Devices: make([]views.DeviceTable, 0, len(devices)),
	}
	for _, d := range devices {
		rows, err := c.repository.LatestN(ctx, d, dataPageRows)
		if err != nil {
			slog.Error("data: latest rows failed", "device", d, "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
			return
		}
		page.Devices = append(page.Devices, views.DeviceTable{Device: d, Rows: rows})
	}
	c.renderHTML(w, "data", func(buf *bytes.Buffer) error { return views.RenderData(buf, page) })
}

func (c *measurementControllerImpl) handleTime(w http.ResponseWriter, _ *http.Request) {
	now := c.now()
	utils.WriteJSON(w, http.StatusOK, timeResponse{
		Year:   now.Year(),
		Month:  int(now.Month()),
		Day:    now.Day(),
		Hour:   now.Hour(),
		Minute: now.Minute(),
	})
}

func (c *measurementControllerImpl) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.DistinctDevices(r.Context())
	if err != nil {
		slog.Error("devices: list failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load devices")
		return
	}
	utils.WriteJSON(w, http.StatusOK, devices)
}

func (c *measurementControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	devices, err := c.repository.DistinctDevices(r.Context())
	if err != nil {
		slog.Error("stations: list devices failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, types.Stations(devices, c.stations))
}

func (c *measurementControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	if device == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing device")
		return
	}
	limit, err := parseLatestQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := c.repository.LatestN(r.Context(), device, limit)
	if err != nil {
		slog.Error("latest: query failed", "device", device, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}
	utils.WriteJSON(w, http.StatusOK, rows)
}

func (c *measurementControllerImpl) handleDates(w http.ResponseWriter, r *http.Request) {
	station := r.PathValue("name")
	dates, err := c.repository.DistinctDates(r.Context(), types.StationDevices(station))
	if err != nil {
		slog.Error("dates: query failed", "station", station, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load dates")
		return
	}
	sorted := navigation.NewIndex(dates).Sorted()
	out := make([]string, 0, len(sorted))
	for _, d := range sorted {
		out = append(out, d.Format(types.DateLayout))
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *measurementControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	station := r.PathValue("name")
	date, err := parseDateParam(r, "date")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	renderer := navigation.WindowRenderer{Query: c.repository}
	win, err := renderer.Window(r.Context(), station, date)
	if err != nil {
		slog.Error("readings: query failed", "station", station, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load measurements")
		return
	}
	utils.WriteJSON(w, http.StatusOK, newReadingsResponse(win))
}

func (c *measurementControllerImpl) handleExport(w http.ResponseWriter, r *http.Request) {
	start, err := parseDateParam(r, "start")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDateParam(r, "end")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Buffered so that a failure can still be reported with a proper status.
	var buf bytes.Buffer
	name := exportFilename(start, end)
	_, err = c.exporter.Export(r.Context(), start, end, export.WriterSink{W: &buf, Name: "http:" + name})
	switch {
	case err == nil:
	case errors.Is(err, export.ErrInvalidRange):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, export.ErrNoData):
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	default:
		slog.Error("export failed", "start", start, "end", end, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to export")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("export: write response failed", "error", err)
	}
}

func (c *measurementControllerImpl) renderHTML(w http.ResponseWriter, page string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error("template render failed", "page", page, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("write response failed", "page", page, "error", err)
	}
}
