package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"stationlog/internal/config"
	"stationlog/internal/metrics"
)

// historySize bounds the statuses kept for History.
const historySize = 20

// Status reports the outcome of one send.
type Status struct {
	Time      time.Time
	Station   string
	Transport string
	Rows      int
	Err       error
}

func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s error: %v", s.Time.Format("15:04:05"), s.Err)
	}
	return fmt.Sprintf("%s sent %d measurements for %s via %s", s.Time.Format("15:04:05"), s.Rows, s.Station, s.Transport)
}

type Simulator struct {
	cfg     config.Simulator
	sender  Sender
	gen     *Generator
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	status chan Status

	mu      sync.Mutex
	history *deque.Deque[Status]
}

type Option func(*Simulator)

func WithGenerator(g *Generator) Option {
	return func(s *Simulator) { s.gen = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

func New(cfg config.Simulator, sender Sender, logger *slog.Logger, opts ...Option) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Simulator{
		cfg:     cfg,
		sender:  sender,
		logger:  logger,
		now:     time.Now,
		status:  make(chan Status, 16),
		history: deque.New[Status](0, historySize+1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = NewGenerator(nil)
	}
	return s
}

// Status delivers one message per send. Messages are dropped when the reader lags.
func (s *Simulator) Status() <-chan Status {
	return s.status
}

// History returns the most recent statuses, oldest first.
func (s *Simulator) History() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, s.history.Len())
	for i := range s.history.Len() {
		out = append(out, s.history.At(i))
	}
	return out
}

// SendOnce generates one batch and sends it. It returns the number of entries sent.
func (s *Simulator) SendOnce(ctx context.Context) (int, error) {
	start := s.cfg.Start
	if start.IsZero() {
		start = CurrentHour(s.now())
	}
	entries := s.gen.Batch(s.cfg.Station, start, s.cfg.Count, s.cfg.Step)
	payload, err := json.Marshal(entries)
	if err != nil {
		return 0, fmt.Errorf("encode batch: %w", err)
	}

	err = s.sender.Send(ctx, s.cfg.Station, payload)
	st := Status{Time: s.now(), Station: s.cfg.Station, Transport: s.sender.Transport(), Rows: len(entries), Err: err}
	s.report(st)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Run sends a batch immediately and then every Interval until ctx is cancelled.
// A send in progress is never interrupted and failures do not stop the loop.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulator started",
		"station", s.cfg.Station,
		"transport", s.sender.Transport(),
		"interval", s.cfg.Interval,
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.SendOnce(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("simulator send failed", "station", s.cfg.Station, "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Simulator) report(st Status) {
	outcome := "ok"
	if st.Err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.SimulatorSends.WithLabelValues(st.Transport, outcome).Inc()
	}

	s.mu.Lock()
	s.history.PushBack(st)
	if s.history.Len() > historySize {
		s.history.PopFront()
	}
	s.mu.Unlock()

	select {
	case s.status <- st:
	default:
	}
}
