package controller

import (
	"errors"
	"net/http"
	"time"

	"stationlog/internal/modules/measurements/types"
	"stationlog/internal/navigation"
	"stationlog/internal/utils"
)

const (
	// maxBatchBytes bounds a /receive_batch body.
	maxBatchBytes = 10 << 20
	// dataPageRows is how many rows per device the /data page shows.
	dataPageRows  = 24
	defaultLatest = 24
	maxLatest     = 1000
)

const malformedBatchMessage = "batch must be a JSON array"

type insertedResponse struct {
	Inserted int `json:"inserted"`
}

type timeResponse struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type deviceReadings struct {
	Device string              `json:"device"`
	Rows   []types.Measurement `json:"rows"`
}

type readingsResponse struct {
	Station string           `json:"station"`
	Date    string           `json:"date"`
	Devices []deviceReadings `json:"devices"`
}

func newReadingsResponse(w navigation.Window) readingsResponse {
	resp := readingsResponse{
		Station: w.Station,
		Date:    w.Date.Format(types.DateLayout),
		Devices: make([]deviceReadings, 0, len(w.Series)),
	}
	for _, s := range w.Series {
		rows := s.Rows
		if rows == nil {
			rows = []types.Measurement{}
		}
		resp.Devices = append(resp.Devices, deviceReadings{Device: s.Device, Rows: rows})
	}
	return resp
}

func parseLatestQuery(r *http.Request) (int, error) {
	limit, ok := utils.QueryInt(r, "limit", defaultLatest, maxLatest)
	if !ok {
		return 0, errors.New("invalid 'limit' (expected a positive integer)")
	}
	return limit, nil
}

// parseDateParam reads a required YYYY-MM-DD query parameter.
func parseDateParam(r *http.Request, key string) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return time.Time{}, errors.New("missing '" + key + "' (expected YYYY-MM-DD)")
	}
	d, err := types.ParseDate(s)
	if err != nil {
		return time.Time{}, errors.New("invalid '" + key + "' (expected YYYY-MM-DD)")
	}
	return d, nil
}

func exportFilename(start, end time.Time) string {
	return "export_" + start.Format("20060102") + "_" + end.Format("20060102") + ".csv"
}
