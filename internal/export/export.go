// Package export writes measurement ranges as CSV and records each export in the action log.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stationlog/internal/actionlog"
	"stationlog/internal/metrics"
	"stationlog/internal/modules/measurements/types"
)

var (
	ErrInvalidRange = errors.New("start date is after end date")
	ErrNoData       = errors.New("no data in range")
)

// Header is the first line of every export.
var Header = []string{"id", "device", "timestamp", "temperature", "humidity", "pressure"}

// RangeQuerier is the slice of the measurement repository the export needs.
type RangeQuerier interface {
	RangeByDevices(ctx context.Context, devices []string, start, end time.Time) ([]types.Measurement, error)
}

// Sink is an export destination. Open is only called when there is data to write.
type Sink interface {
	Open() (io.WriteCloser, error)
	// Destination names the sink in the action log.
	Destination() string
}

// Discarder is implemented by sinks that can remove a partially written export.
type Discarder interface {
	Discard() error
}

// FileSink writes to Path, creating parent directories.
type FileSink struct {
	Path string
}

func (s FileSink) Open() (io.WriteCloser, error) {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	return f, nil
}

func (s FileSink) Destination() string { return s.Path }

// Discard removes the file. A missing file is not an error.
func (s FileSink) Discard() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove partial export: %w", err)
	}
	return nil
}

// WriterSink writes to an existing writer such as an HTTP response; it is never closed.
type WriterSink struct {
	W    io.Writer
	Name string
}

func (s WriterSink) Open() (io.WriteCloser, error) {
	return nopCloser{s.W}, nil
}

func (s WriterSink) Destination() string { return s.Name }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type Result struct {
	Rows        int
	Destination string
	Start, End  time.Time
}

type Service struct {
	repo    RangeQuerier
	log     actionlog.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(repo RangeQuerier, log actionlog.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, log: log, metrics: m, logger: logger}
}

// Export writes every measurement of every device whose timestamp falls on a calendar
// day between start and end, both included. start and end are truncated to their dates.
func (s *Service) Export(ctx context.Context, start, end time.Time, sink Sink) (Result, error) {
	start, end = types.Date(start), types.Date(end)
	if start.After(end) {
		s.count("invalid")
		return Result{}, ErrInvalidRange
	}

	rows, err := s.repo.RangeByDevices(ctx, nil, start, end.AddDate(0, 0, 1))
	if err != nil {
		s.count("error")
		return Result{}, fmt.Errorf("query export range: %w", err)
	}
	if len(rows) == 0 {
		s.count("empty")
		return Result{}, ErrNoData
	}

	w, err := sink.Open()
	if err != nil {
		s.count("error")
		return Result{}, err
	}
	if err := WriteCSV(w, rows); err != nil {
		_ = w.Close()
		s.discard(sink)
		s.count("error")
		return Result{}, err
	}
	if err := w.Close(); err != nil {
		s.discard(sink)
		s.count("error")
		return Result{}, fmt.Errorf("close export: %w", err)
	}

	res := Result{Rows: len(rows), Destination: sink.Destination(), Start: start, End: end}
	msg := fmt.Sprintf("Export CSV : %s (%s → %s) %d lignes",
		res.Destination, start.Format(types.DateLayout), end.Format(types.DateLayout), res.Rows)
	if s.log != nil {
		if err := s.log.Record(msg); err != nil {
			// The file is already written.
			s.logger.Error("write action log", "error", err)
		}
	}
	s.count("ok")
	s.logger.Info("export written", "destination", res.Destination, "rows", res.Rows)
	return res, nil
}

// WriteCSV writes the header and one line per measurement. NULL values become empty cells.
func WriteCSV(w io.Writer, rows []types.Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range rows {
		if err := cw.Write(record(m)); err != nil {
			return fmt.Errorf("write csv row %d: %w", m.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func record(m types.Measurement) []string {
	rec := []string{strconv.FormatInt(m.ID, 10), "", "", "", "", ""}
	if m.Device != nil {
		rec[1] = *m.Device
	}
	if m.Timestamp != nil {
		rec[2] = m.Timestamp.String()
	}
	for i, v := range []*float64{m.Temperature, m.Humidity, m.Pressure} {
		if v != nil {
			rec[3+i] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	return rec
}

// discard drops what a failed export left behind, if the sink can.
func (s *Service) discard(sink Sink) {
	d, ok := sink.(Discarder)
	if !ok {
		return
	}
	if err := d.Discard(); err != nil {
		s.logger.Error("discard failed export", "destination", sink.Destination(), "error", err)
	}
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.ExportsTotal.WithLabelValues(outcome).Inc()
	}
}
