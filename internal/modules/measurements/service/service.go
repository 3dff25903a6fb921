package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stationlog/internal/metrics"
	"stationlog/internal/modules/measurements/repository"
	"stationlog/internal/modules/measurements/types"
)

var (
	// ErrMalformedBatch means the payload is absent or not a JSON array. Nothing is stored.
	ErrMalformedBatch = errors.New("malformed batch")
	// ErrStorage wraps any failure of the store; the batch was rolled back.
	ErrStorage = errors.New("storage failure")
)

const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

type Service struct {
	repository repository.MeasurementRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds the ingestion service. m may be nil when metrics are not collected.
func NewService(repository repository.MeasurementRepository, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, metrics: m, logger: logger, now: time.Now}
}

func (s *Service) Repository() repository.MeasurementRepository {
	return s.repository
}

// IngestBatch decodes a raw JSON array of entries and stores it as one unit.
func (s *Service) IngestBatch(ctx context.Context, raw []byte) (int, error) {
	return s.ingestRaw(ctx, SourceHTTP, raw)
}

// Ingest stores every entry in a single transaction and returns how many were inserted.
// Either all entries are persisted or none are.
func (s *Service) Ingest(ctx context.Context, entries []types.Entry) (int, error) {
	return s.ingest(ctx, SourceHTTP, entries)
}

func (s *Service) ingestRaw(ctx context.Context, source string, raw []byte) (int, error) {
	entries, err := DecodeBatch(raw)
	if err != nil {
		s.observe(source, "malformed", 0)
		return 0, err
	}
	return s.ingest(ctx, source, entries)
}

// DecodeBatch parses a batch payload. An empty array is valid and yields no entries.
// Elements are never validated; see types.Entry for how odd values are bound.
func DecodeBatch(raw []byte) ([]types.Entry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedBatch)
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrMalformedBatch)
	}
	var entries []types.Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	return entries, nil
}

func (s *Service) ingest(ctx context.Context, source string, entries []types.Entry) (int, error) {
	start := s.now()

	batch, err := s.repository.BeginBatch(ctx)
	if err != nil {
		s.observe(source, "error", 0)
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	for i, e := range entries {
		if _, err := batch.Insert(ctx, e); err != nil {
			if rbErr := batch.Rollback(); rbErr != nil {
				s.logger.Error("rollback batch", "source", source, "error", rbErr)
			}
			s.observe(source, "error", 0)
			return 0, fmt.Errorf("%w: entry %d: %w", ErrStorage, i, err)
		}
	}
	if err := batch.Commit(); err != nil {
		s.observe(source, "error", 0)
		return 0, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if s.metrics != nil {
		s.metrics.IngestDuration.Observe(s.now().Sub(start).Seconds())
		s.metrics.LastIngestUnixSec.Set(float64(s.now().Unix()))
	}
	s.observe(source, "ok", len(entries))
	s.logger.Debug("batch stored", "source", source, "rows", len(entries))
	return len(entries), nil
}

func (s *Service) observe(source, outcome string, rows int) {
	if s.metrics == nil {
		return
	}
	s.metrics.BatchesIngested.WithLabelValues(source, outcome).Inc()
	if rows > 0 {
		s.metrics.RowsInserted.WithLabelValues(source).Add(float64(rows))
	}
}
