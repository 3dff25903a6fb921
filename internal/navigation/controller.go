// Package navigation implements date browsing over one station's measurements: jumps,
// bounds clamping and click-and-hold scrolling that speeds up while held.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stationlog/internal/modules/measurements/types"
)

var (
	ErrInvalidDateFormat = errors.New("invalid date, expected YYYY-MM-DD")
	ErrOutOfRange        = errors.New("date outside the station's data range")
	ErrNoDataForDate     = errors.New("no data for date")
	ErrInvalidDirection  = errors.New("scroll direction must be -7, -1, 1 or 7")
	ErrNoStation         = errors.New("no station selected")
	ErrNoDate            = errors.New("no date displayed yet")
)

// RepeatDelay separates two steps of a held scroll.
const RepeatDelay = 500 * time.Millisecond

// multipliers scale the step at acceleration levels 0, 1 and 2.
var multipliers = [...]int{1, 5, 25}

const maxLevel = len(multipliers) - 1

// Store is the slice of the query engine navigation reads.
type Store interface {
	Bounds(ctx context.Context, devices []string) (minTS, maxTS time.Time, ok bool, err error)
	DistinctDates(ctx context.Context, devices []string) ([]time.Time, error)
}

// State is a snapshot of the controller.
type State struct {
	Station     string
	CurrentDate time.Time
	MinDate     time.Time
	MaxDate     time.Time
	HasData     bool
	Level       int
	Scrolling   bool
	Direction   int
}

// Controller holds the navigation state of one viewer. It is not safe for concurrent
// use: drive it from a single goroutine such as a Loop, which should also be its Scheduler.
type Controller struct {
	store     Store
	renderer  Renderer
	scheduler Scheduler
	now       func() time.Time
	logger    *slog.Logger

	station string
	current time.Time
	minDate time.Time
	maxDate time.Time
	hasData bool
	index   *Index

	level     int
	direction int
	pending   Handle
	// generation invalidates callbacks that belong to an earlier scroll.
	generation uint64
}

type Option func(*Controller)

// WithClock replaces time.Now, used for "today".
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func NewController(store Store, renderer Renderer, scheduler Scheduler, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		renderer:  renderer,
		scheduler: scheduler,
		now:       time.Now,
		logger:    slog.Default(),
		index:     NewIndex(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) today() time.Time {
	return types.Date(c.now())
}

// SelectStation resets the state from the station's data bounds and rebuilds the date
// index. Any scroll in progress is cancelled. Nothing is rendered and no date is chosen.
func (c *Controller) SelectStation(ctx context.Context, name string) error {
	c.cancelScroll()
	c.station = name
	c.current = time.Time{}
	if err := c.load(ctx); err != nil {
		return err
	}
	c.logger.Debug("station selected", "station", name, "min", c.minDate, "max", c.maxDate, "days", c.index.Len())
	return nil
}

func (c *Controller) load(ctx context.Context) error {
	devices := types.StationDevices(c.station)
	lo, hi, ok, err := c.store.Bounds(ctx, devices)
	if err != nil {
		return fmt.Errorf("load bounds for %s: %w", c.station, err)
	}
	dates, err := c.store.DistinctDates(ctx, devices)
	if err != nil {
		return fmt.Errorf("load dates for %s: %w", c.station, err)
	}
	c.hasData = ok
	if ok {
		c.minDate, c.maxDate = types.Date(lo), types.Date(hi)
	} else {
		c.minDate, c.maxDate = c.today(), c.today()
	}
	c.index = NewIndex(dates)
	return nil
}

// InitialDate is today when it has data, otherwise the earliest date.
func (c *Controller) InitialDate() time.Time {
	if today := c.today(); c.index.Has(today) {
		return today
	}
	return c.minDate
}

// ShowInitial displays InitialDate.
func (c *Controller) ShowInitial(ctx context.Context) error {
	if c.station == "" {
		return ErrNoStation
	}
	return c.show(ctx, c.InitialDate())
}

// GoToDate jumps to a "YYYY-MM-DD" date inside the station's bounds.
// Acceleration and any pending repeat are left untouched.
func (c *Controller) GoToDate(ctx context.Context, s string) error {
	if c.station == "" {
		return ErrNoStation
	}
	d, err := types.ParseDate(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	if d.Before(c.minDate) || d.After(c.maxDate) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrOutOfRange, s,
			c.minDate.Format(types.DateLayout), c.maxDate.Format(types.DateLayout))
	}
	return c.show(ctx, d)
}

// SelectToday shows today without checking bounds or data.
func (c *Controller) SelectToday(ctx context.Context) error {
	if c.station == "" {
		return ErrNoStation
	}
	return c.show(ctx, c.today())
}

// SelectAvailableDate is the calendar pick: only dates with data are accepted.
func (c *Controller) SelectAvailableDate(ctx context.Context, d time.Time) error {
	if c.station == "" {
		return ErrNoStation
	}
	if !c.index.Has(d) {
		return fmt.Errorf("%w: %s", ErrNoDataForDate, d.Format(types.DateLayout))
	}
	return c.show(ctx, types.Date(d))
}

// StartScroll begins a held scroll of direction days (±1 or ±7): one step now, then one
// every RepeatDelay, each larger than the last until the top speed.
func (c *Controller) StartScroll(ctx context.Context, direction int) error {
	switch direction {
	case -7, -1, 1, 7:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidDirection, direction)
	}
	if c.station == "" {
		return ErrNoStation
	}
	if c.current.IsZero() {
		return ErrNoDate
	}
	c.cancelScroll()
	c.direction = direction
	c.level = 0
	c.generation++
	c.step(ctx, c.generation)
	return nil
}

func (c *Controller) step(ctx context.Context, gen uint64) {
	if gen != c.generation || c.direction == 0 {
		return
	}
	delta := c.direction * multipliers[min(c.level, maxLevel)]
	next := c.clamp(c.current.AddDate(0, 0, delta))
	if err := c.show(ctx, next); err != nil {
		c.logger.Error("render during scroll", "station", c.station, "date", next.Format(types.DateLayout), "error", err)
	}
	c.level = min(c.level+1, maxLevel)
	c.pending = c.scheduler.AfterFunc(RepeatDelay, func() { c.step(ctx, gen) })
}

// StopScroll ends a held scroll. The displayed date stays where it is.
func (c *Controller) StopScroll() {
	c.cancelScroll()
}

func (c *Controller) cancelScroll() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.direction = 0
	c.level = 0
	c.generation++
}

// Refresh reloads bounds and available dates after new data arrived, keeping the
// displayed date, and renders it again.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.station == "" {
		return ErrNoStation
	}
	if err := c.load(ctx); err != nil {
		return err
	}
	if c.current.IsZero() {
		return nil
	}
	return c.render(ctx)
}

func (c *Controller) clamp(d time.Time) time.Time {
	if d.Before(c.minDate) {
		return c.minDate
	}
	if d.After(c.maxDate) {
		return c.maxDate
	}
	return d
}

func (c *Controller) show(ctx context.Context, d time.Time) error {
	c.current = d
	return c.render(ctx)
}

func (c *Controller) render(ctx context.Context) error {
	if c.renderer == nil {
		return nil
	}
	if err := c.renderer.Render(ctx, c.station, c.current); err != nil {
		return fmt.Errorf("render %s %s: %w", c.station, c.current.Format(types.DateLayout), err)
	}
	return nil
}

// Index exposes the available dates of the selected station.
func (c *Controller) Index() *Index {
	return c.index
}

func (c *Controller) State() State {
	return State{
		Station:     c.station,
		CurrentDate: c.current,
		MinDate:     c.minDate,
		MaxDate:     c.maxDate,
		HasData:     c.hasData,
		Level:       c.level,
		Scrolling:   c.direction != 0,
		Direction:   c.direction,
	}
}
