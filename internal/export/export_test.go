package export

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"stationlog/internal/actionlog"
	"stationlog/internal/metrics"
	"stationlog/internal/migrate"
	"stationlog/internal/modules/measurements/repository"
	"stationlog/internal/modules/measurements/types"
)

func setupRepo(t *testing.T) repository.MeasurementRepository {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	_, err = migrate.Run(context.Background(), db)
	require.NoError(t, err)
	return repository.NewRepository(db)
}

func insert(t *testing.T, repo repository.MeasurementRepository, device, ts string) {
	t.Helper()
	parsed, err := types.ParseTimestamp(ts)
	require.NoError(t, err)
	_, err = repo.Insert(context.Background(), types.Entry{
		Device:      types.StringPtr(device),
		Temperature: types.FloatPtr(21.5),
		Humidity:    types.FloatPtr(48),
		Timestamp:   &parsed,
	})
	require.NoError(t, err)
}

func day(s string) time.Time {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func logLines(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		n += strings.Count(string(data), "\n")
	}
	return n
}

func TestExport_ToFile(t *testing.T) {
	repo := setupRepo(t)
	devices := []string{"mangue_BME1", "mangue_BME2", "prune_BME1"}
	for i := 0; i < 10; i++ {
		ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 4 * time.Hour)
		insert(t, repo, devices[i%3], types.NewTimestamp(ts).String())
	}
	// Outside [2024-01-01, 2024-01-03).
	insert(t, repo, "mangue_BME1", "2023-12-31 23:59:59")
	insert(t, repo, "mangue_BME1", "2024-01-03 00:00:00")

	logDir := filepath.Join(t.TempDir(), "logs")
	m := metrics.New()
	svc := NewService(repo, actionlog.New(logDir), m, discardLogger())
	out := filepath.Join(t.TempDir(), "exports", "range.csv")

	res, err := svc.Export(context.Background(), day("2024-01-01"), day("2024-01-02"), FileSink{Path: out})
	require.NoError(t, err)
	require.Equal(t, 10, res.Rows)
	require.Equal(t, out, res.Destination)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 11)
	require.Equal(t, "id,device,timestamp,temperature,humidity,pressure", lines[0])
	require.Equal(t, "1,mangue_BME1,2024-01-01 00:00:00,21.5,48,", lines[1])

	require.Equal(t, 1, logLines(t, logDir))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ExportsTotal.WithLabelValues("ok")))
}

type countingSink struct {
	opened int
	buf    bytes.Buffer
}

func (s *countingSink) Open() (io.WriteCloser, error) {
	s.opened++
	return nopCloser{&s.buf}, nil
}

func (s *countingSink) Destination() string { return "memory" }

type failingQuerier struct{ called bool }

func (f *failingQuerier) RangeByDevices(context.Context, []string, time.Time, time.Time) ([]types.Measurement, error) {
	f.called = true
	return nil, errors.New("boom")
}

func TestExport_InvalidRange(t *testing.T) {
	q := &failingQuerier{}
	logDir := t.TempDir()
	svc := NewService(q, actionlog.New(logDir), nil, discardLogger())
	sink := &countingSink{}

	_, err := svc.Export(context.Background(), day("2024-01-03"), day("2024-01-01"), sink)
	require.ErrorIs(t, err, ErrInvalidRange)
	require.False(t, q.called, "no query on invalid range")
	require.Zero(t, sink.opened)
	require.Zero(t, logLines(t, logDir))
}

func TestExport_NoData(t *testing.T) {
	repo := setupRepo(t)
	insert(t, repo, "mangue_BME1", "2024-02-01 00:00:00")
	logDir := t.TempDir()
	svc := NewService(repo, actionlog.New(logDir), nil, discardLogger())
	sink := &countingSink{}

	_, err := svc.Export(context.Background(), day("2024-01-01"), day("2024-01-31"), sink)
	require.ErrorIs(t, err, ErrNoData)
	require.Zero(t, sink.opened, "sink must not be opened without data")
	require.Zero(t, logLines(t, logDir))
}

func TestExport_SameDayAndWriterSink(t *testing.T) {
	repo := setupRepo(t)
	insert(t, repo, "prune_BME2", "2024-01-01 23:59:59")
	var buf bytes.Buffer
	svc := NewService(repo, nil, nil, discardLogger())

	res, err := svc.Export(context.Background(), day("2024-01-01"), day("2024-01-01"), WriterSink{W: &buf, Name: "http"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Rows)
	require.Equal(t, "id,device,timestamp,temperature,humidity,pressure\n1,prune_BME2,2024-01-01 23:59:59,21.5,48,\n", buf.String())
}

func TestExport_QueryError(t *testing.T) {
	svc := NewService(&failingQuerier{}, nil, nil, discardLogger())
	_, err := svc.Export(context.Background(), day("2024-01-01"), day("2024-01-02"), &countingSink{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoData)
}

var errShortWrite = errors.New("device full")

// shortFileSink writes the first half of the export to the real file, then fails.
type shortFileSink struct {
	FileSink
}

func (s shortFileSink) Open() (io.WriteCloser, error) {
	w, err := s.FileSink.Open()
	if err != nil {
		return nil, err
	}
	return &shortWriter{WriteCloser: w}, nil
}

type shortWriter struct {
	io.WriteCloser
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p[:len(p)/2])
	if err != nil {
		return n, err
	}
	return n, errShortWrite
}

func TestExport_FailedWriteRemovesFile(t *testing.T) {
	repo := setupRepo(t)
	insert(t, repo, "mangue_BME1", "2024-01-01 08:00:00")
	insert(t, repo, "mangue_BME2", "2024-01-01 09:00:00")
	logDir := t.TempDir()
	m := metrics.New()
	svc := NewService(repo, actionlog.New(logDir), m, discardLogger())
	out := filepath.Join(t.TempDir(), "partial.csv")

	_, err := svc.Export(context.Background(), day("2024-01-01"), day("2024-01-01"), shortFileSink{FileSink{Path: out}})
	require.ErrorIs(t, err, errShortWrite)

	_, statErr := os.Stat(out)
	require.ErrorIs(t, statErr, os.ErrNotExist, "partial export must be removed")
	require.Zero(t, logLines(t, logDir))
	require.Equal(t, float64(1), testutil.ToFloat64(m.ExportsTotal.WithLabelValues("error")))
}

func TestFileSink_DiscardMissingFile(t *testing.T) {
	require.NoError(t, FileSink{Path: filepath.Join(t.TempDir(), "never.csv")}.Discard())
}

func TestWriteCSV_NullCells(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []types.Measurement{{ID: 7}}))
	require.Equal(t, "id,device,timestamp,temperature,humidity,pressure\n7,,,,,\n", buf.String())
}
