package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stationlog/internal/modules/measurements/types"
)

//go:embed sql/insert-measurement.sql
var insertMeasurementSQL string

//go:embed sql/get-distinct-devices.sql
var getDistinctDevicesSQL string

//go:embed sql/get-latest-measurements.sql
var getLatestMeasurementsSQL string

//go:embed sql/get-range.sql
var getRangeSQL string

//go:embed sql/get-distinct-dates.sql
var getDistinctDatesSQL string

//go:embed sql/get-bounds.sql
var getBoundsSQL string

const devicesPlaceholder = "/*devices*/"

// ErrBatchClosed is returned when a batch is used after Commit or Rollback.
var ErrBatchClosed = errors.New("batch already committed or rolled back")

// MeasurementRepository is the append-only measurement store together with the
// queries every viewer relies on. There are no update or delete operations.
type MeasurementRepository interface {
	// BeginBatch opens one unit of work; its rows become visible on Commit only.
	BeginBatch(ctx context.Context) (Batch, error)
	// Insert stores a single row in its own unit of work.
	Insert(ctx context.Context, entry types.Entry) (int64, error)

	DistinctDevices(ctx context.Context) ([]string, error)
	LatestN(ctx context.Context, device string, limit int) ([]types.Measurement, error)
	// RangeByDevices returns rows with start <= timestamp < end, ascending.
	// An empty device list matches every device.
	RangeByDevices(ctx context.Context, devices []string, start, end time.Time) ([]types.Measurement, error)
	DistinctDates(ctx context.Context, devices []string) ([]time.Time, error)
	// Bounds reports the earliest and latest timestamps; ok is false when nothing matches.
	Bounds(ctx context.Context, devices []string) (minTS, maxTS time.Time, ok bool, err error)
}

type Batch interface {
	Insert(ctx context.Context, entry types.Entry) (int64, error)
	Commit() error
	Rollback() error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) MeasurementRepository {
	return &repositoryImpl{db: db}
}

type batchImpl struct {
	tx   *sql.Tx
	stmt *sql.Stmt
	done bool
}

func (r *repositoryImpl) BeginBatch(ctx context.Context) (Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertMeasurementSQL)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &batchImpl{tx: tx, stmt: stmt}, nil
}

func (b *batchImpl) Insert(ctx context.Context, entry types.Entry) (int64, error) {
	if b.done {
		return 0, ErrBatchClosed
	}
	var ts any
	if entry.Timestamp != nil {
		ts = entry.Timestamp.Unix()
	}
	res, err := b.stmt.ExecContext(ctx,
		nullable(entry.Device),
		nullable(entry.Temperature),
		nullable(entry.Humidity),
		nullable(entry.Pressure),
		ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert measurement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert measurement id: %w", err)
	}
	return id, nil
}

func (b *batchImpl) Commit() error {
	if b.done {
		return ErrBatchClosed
	}
	b.done = true
	if err := b.stmt.Close(); err != nil {
		slog.Error("close insert statement", "error", err)
	}
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback discards every row inserted through the batch. It is a no-op after Commit.
func (b *batchImpl) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.stmt.Close(); err != nil {
		slog.Error("close insert statement", "error", err)
	}
	if err := b.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

func (r *repositoryImpl) Insert(ctx context.Context, entry types.Entry) (int64, error) {
	batch, err := r.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}
	id, err := batch.Insert(ctx, entry)
	if err != nil {
		_ = batch.Rollback()
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repositoryImpl) DistinctDevices(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, getDistinctDevicesSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close devices rows", "error", err)
		}
	}()
	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) LatestN(ctx context.Context, device string, limit int) ([]types.Measurement, error) {
	if limit <= 0 {
		return []types.Measurement{}, nil
	}
	rows, err := r.db.QueryContext(ctx, getLatestMeasurementsSQL, device, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest rows", "error", err)
		}
	}()
	out, err := scanMeasurements(rows)
	if err != nil {
		return nil, err
	}
	// Fetched newest first; displayed oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *repositoryImpl) RangeByDevices(ctx context.Context, devices []string, start, end time.Time) ([]types.Measurement, error) {
	query, args := withDevices(getRangeSQL, devices, start.Unix(), end.Unix())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close range rows", "error", err)
		}
	}()
	return scanMeasurements(rows)
}

func (r *repositoryImpl) DistinctDates(ctx context.Context, devices []string) ([]time.Time, error) {
	query, args := withDevices(getDistinctDatesSQL, devices)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close dates rows", "error", err)
		}
	}()
	out := []time.Time{}
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		d, err := types.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", day, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) Bounds(ctx context.Context, devices []string) (time.Time, time.Time, bool, error) {
	query, args := withDevices(getBoundsSQL, devices)
	var lo, hi sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return types.FromUnix(lo.Int64).Time, types.FromUnix(hi.Int64).Time, true, nil
}

// withDevices fills the device filter of query. Leading args are kept in front of the
// device names, matching the placeholder order of the SQL files.
func withDevices(query string, devices []string, leading ...any) (string, []any) {
	args := append([]any{}, leading...)
	if len(devices) == 0 {
		return strings.Replace(query, devicesPlaceholder, "", 1), args
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(devices)), ", ")
	for _, d := range devices {
		args = append(args, d)
	}
	return strings.Replace(query, devicesPlaceholder, "AND device IN ("+marks+")", 1), args
}

func scanMeasurements(rows *sql.Rows) ([]types.Measurement, error) {
	out := []types.Measurement{}
	for rows.Next() {
		var (
			m                types.Measurement
			device           sql.NullString
			temp, hum, press sql.NullFloat64
			ts               sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &device, &temp, &hum, &press, &ts); err != nil {
			return nil, err
		}
		if device.Valid {
			m.Device = types.StringPtr(device.String)
		}
		m.Temperature = floatOrNil(temp)
		m.Humidity = floatOrNil(hum)
		m.Pressure = floatOrNil(press)
		if ts.Valid {
			t := types.FromUnix(ts.Int64)
			m.Timestamp = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return types.FloatPtr(v.Float64)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
