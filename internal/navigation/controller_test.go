package navigation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stationlog/internal/modules/measurements/types"
)

func date(s string) time.Time {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dates(ss ...string) []time.Time {
	out := make([]time.Time, 0, len(ss))
	for _, s := range ss {
		out = append(out, date(s))
	}
	return out
}

type fakeStore struct {
	lo, hi   time.Time
	ok       bool
	days     []time.Time
	err      error
	requests [][]string
}

func (f *fakeStore) Bounds(_ context.Context, devices []string) (time.Time, time.Time, bool, error) {
	f.requests = append(f.requests, devices)
	return f.lo, f.hi, f.ok, f.err
}

func (f *fakeStore) DistinctDates(context.Context, []string) ([]time.Time, error) {
	return f.days, f.err
}

type recordingRenderer struct {
	station string
	dates   []time.Time
	err     error
}

func (r *recordingRenderer) Render(_ context.Context, station string, d time.Time) error {
	r.station = station
	r.dates = append(r.dates, d)
	return r.err
}

func (r *recordingRenderer) formatted() []string {
	out := make([]string, 0, len(r.dates))
	for _, d := range r.dates {
		out = append(out, d.Format(types.DateLayout))
	}
	return out
}

type fakeHandle struct {
	fn      func()
	delay   time.Duration
	stopped bool
	fired   bool
}

func (h *fakeHandle) Stop() bool {
	pending := !h.stopped && !h.fired
	h.stopped = true
	return pending
}

// fakeScheduler only runs callbacks when the test fires them.
type fakeScheduler struct {
	handles []*fakeHandle
}

func (s *fakeScheduler) AfterFunc(delay time.Duration, fn func()) Handle {
	h := &fakeHandle{fn: fn, delay: delay}
	s.handles = append(s.handles, h)
	return h
}

func (s *fakeScheduler) pending() []*fakeHandle {
	var out []*fakeHandle
	for _, h := range s.handles {
		if !h.stopped && !h.fired {
			out = append(out, h)
		}
	}
	return out
}

// fire runs the oldest pending callback and reports whether there was one.
func (s *fakeScheduler) fire() bool {
	p := s.pending()
	if len(p) == 0 {
		return false
	}
	p[0].fired = true
	p[0].fn()
	return true
}

type fixture struct {
	store    *fakeStore
	renderer *recordingRenderer
	sched    *fakeScheduler
	ctrl     *Controller
}

func newFixture(t *testing.T, store *fakeStore, today string) *fixture {
	t.Helper()
	f := &fixture{store: store, renderer: &recordingRenderer{}, sched: &fakeScheduler{}}
	now := date(today).Add(15 * time.Hour)
	f.ctrl = NewController(store, f.renderer, f.sched,
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

// wideStore has data from 2023-01-01 to 2024-12-31 so clamping does not interfere.
func wideStore() *fakeStore {
	return &fakeStore{
		lo:   time.Date(2023, 1, 1, 6, 0, 0, 0, time.UTC),
		hi:   time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC),
		ok:   true,
		days: dates("2023-01-01", "2024-01-10", "2024-12-31"),
	}
}

func TestSelectStation_Bounds(t *testing.T) {
	store := &fakeStore{
		lo:   time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC),
		hi:   time.Date(2024, 1, 3, 23, 55, 0, 0, time.UTC),
		ok:   true,
		days: dates("2024-01-01", "2024-01-02", "2024-01-03"),
	}
	f := newFixture(t, store, "2024-06-01")

	require.NoError(t, f.ctrl.SelectStation(context.Background(), "prune"))

	st := f.ctrl.State()
	require.Equal(t, "prune", st.Station)
	require.Equal(t, date("2024-01-01"), st.MinDate)
	require.Equal(t, date("2024-01-03"), st.MaxDate)
	require.True(t, st.HasData)
	require.False(t, st.Scrolling)
	require.True(t, st.CurrentDate.IsZero(), "SelectStation must not choose a date")
	require.Equal(t, dates("2024-01-01", "2024-01-02", "2024-01-03"), f.ctrl.Index().Sorted())
	require.Equal(t, [][]string{{"prune_BME1", "prune_BME2"}}, store.requests)
	require.Empty(t, f.renderer.dates, "SelectStation must not render")
}

func TestSelectStation_NoData(t *testing.T) {
	f := newFixture(t, &fakeStore{}, "2024-06-01")

	require.NoError(t, f.ctrl.SelectStation(context.Background(), "ananas"))

	st := f.ctrl.State()
	require.False(t, st.HasData)
	require.Equal(t, date("2024-06-01"), st.MinDate)
	require.Equal(t, date("2024-06-01"), st.MaxDate)
	require.Equal(t, 0, f.ctrl.Index().Len())
}

func TestSelectStation_StoreError(t *testing.T) {
	boom := errors.New("db locked")
	f := newFixture(t, &fakeStore{err: boom}, "2024-06-01")
	require.ErrorIs(t, f.ctrl.SelectStation(context.Background(), "prune"), boom)
}

func TestInitialDate(t *testing.T) {
	store := &fakeStore{
		lo: date("2024-01-01"), hi: date("2024-01-05"), ok: true,
		days: dates("2024-01-01", "2024-01-05"),
	}
	ctx := context.Background()

	f := newFixture(t, store, "2024-01-05")
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))
	require.Equal(t, date("2024-01-05"), f.ctrl.InitialDate())

	f = newFixture(t, store, "2024-01-03")
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))
	require.Equal(t, date("2024-01-01"), f.ctrl.InitialDate())
	require.NoError(t, f.ctrl.ShowInitial(ctx))
	require.Equal(t, []string{"2024-01-01"}, f.renderer.formatted())
}

func TestStartScroll_AcceleratesAndClamps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, wideStore(), "2024-06-01")
	require.NoError(t, f.ctrl.SelectStation(ctx, "mangue"))
	require.NoError(t, f.ctrl.GoToDate(ctx, "2024-01-10"))
	f.renderer.dates = nil

	require.NoError(t, f.ctrl.StartScroll(ctx, -1))
	require.True(t, f.sched.fire())
	require.True(t, f.sched.fire())

	require.Equal(t, []string{"2024-01-09", "2024-01-04", "2023-12-10"}, f.renderer.formatted())
	require.Equal(t, 2, f.ctrl.State().Level)
	require.True(t, f.ctrl.State().Scrolling)
	for _, h := range f.sched.handles {
		require.Equal(t, RepeatDelay, h.delay)
	}

	// Level stays capped at 25 days per step.
	require.True(t, f.sched.fire())
	require.Equal(t, "2023-11-15", f.renderer.formatted()[3])

	// GoToDate while scrolling leaves the repeat in place.
	require.ErrorIs(t, f.ctrl.GoToDate(ctx, "2024-13-40"), ErrInvalidDateFormat)
	require.Equal(t, date("2023-11-15"), f.ctrl.State().CurrentDate)
	require.Len(t, f.sched.pending(), 1)
}

func TestStartScroll_ClampsAtBounds(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{lo: date("2024-01-01"), hi: date("2024-01-20"), ok: true, days: dates("2024-01-01", "2024-01-20")}
	f := newFixture(t, store, "2024-01-15")
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))
	require.NoError(t, f.ctrl.GoToDate(ctx, "2024-01-15"))
	f.renderer.dates = nil

	require.NoError(t, f.ctrl.StartScroll(ctx, 7))
	require.True(t, f.sched.fire())
	require.Equal(t, []string{"2024-01-20", "2024-01-20"}, f.renderer.formatted())

	f.ctrl.StopScroll()
	f.renderer.dates = nil
	require.NoError(t, f.ctrl.StartScroll(ctx, -7))
	require.True(t, f.sched.fire())
	require.Equal(t, []string{"2024-01-13", "2024-01-01"}, f.renderer.formatted())
}

func TestStopScroll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, wideStore(), "2024-06-01")
	require.NoError(t, f.ctrl.SelectStation(ctx, "mangue"))

	// Idle: no-op.
	f.ctrl.StopScroll()
	require.False(t, f.ctrl.State().Scrolling)

	require.NoError(t, f.ctrl.GoToDate(ctx, "2024-03-01"))
	require.NoError(t, f.ctrl.StartScroll(ctx, 1))
	require.True(t, f.sched.fire())
	rendered := len(f.renderer.dates)

	f.ctrl.StopScroll()
	st := f.ctrl.State()
	require.False(t, st.Scrolling)
	require.Equal(t, 0, st.Level)
	require.Equal(t, date("2024-03-07"), st.CurrentDate)
	require.Empty(t, f.sched.pending())
	require.False(t, f.sched.fire())
	require.Len(t, f.renderer.dates, rendered, "StopScroll must not render")
}

func TestStartScroll_ReplacesPendingRepeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, wideStore(), "2024-06-01")
	require.NoError(t, f.ctrl.SelectStation(ctx, "mangue"))
	require.NoError(t, f.ctrl.GoToDate(ctx, "2024-03-01"))

	require.NoError(t, f.ctrl.StartScroll(ctx, 1))
	first := f.sched.handles[0]
	require.NoError(t, f.ctrl.StartScroll(ctx, -1))

	require.True(t, first.stopped)
	require.Len(t, f.sched.pending(), 1)
	require.Equal(t, date("2024-03-01"), f.ctrl.State().CurrentDate)
	require.Equal(t, 1, f.ctrl.State().Level)

	// A stale callback that slipped through does nothing.
	before := len(f.renderer.dates)
	first.fn()
	require.Len(t, f.renderer.dates, before)
}

func TestStartScroll_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, wideStore(), "2024-06-01")

	require.ErrorIs(t, f.ctrl.StartScroll(ctx, 1), ErrNoStation)
	require.NoError(t, f.ctrl.SelectStation(ctx, "mangue"))
	require.ErrorIs(t, f.ctrl.StartScroll(ctx, 1), ErrNoDate)

	require.NoError(t, f.ctrl.SelectToday(ctx))
	for _, d := range []int{0, 2, -3, 14} {
		require.ErrorIs(t, f.ctrl.StartScroll(ctx, d), ErrInvalidDirection)
	}
	require.Empty(t, f.sched.handles)
}

func TestGoToDate(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{lo: date("2024-01-01").Add(8 * time.Hour), hi: date("2024-01-31").Add(20 * time.Hour), ok: true}
	f := newFixture(t, store, "2024-06-01")
	require.ErrorIs(t, f.ctrl.GoToDate(ctx, "2024-01-05"), ErrNoStation)
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))

	tests := []struct {
		in      string
		wantErr error
	}{
		{in: "2024-01-01"},
		{in: "2024-01-31"},
		{in: " 2024-01-15 "},
		{in: "2023-12-31", wantErr: ErrOutOfRange},
		{in: "2024-02-01", wantErr: ErrOutOfRange},
		{in: "2024-13-40", wantErr: ErrInvalidDateFormat},
		{in: "15/01/2024", wantErr: ErrInvalidDateFormat},
		{in: "", wantErr: ErrInvalidDateFormat},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			before := f.ctrl.State().CurrentDate
			err := f.ctrl.GoToDate(ctx, tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, before, f.ctrl.State().CurrentDate)
				return
			}
			require.NoError(t, err)
			require.Equal(t, date(tt.in), f.ctrl.State().CurrentDate)
			require.Equal(t, "prune", f.renderer.station)
		})
	}
}

func TestSelectToday_Unchecked(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{lo: date("2024-01-01"), hi: date("2024-01-03"), ok: true}
	f := newFixture(t, store, "2025-07-14")
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))

	require.NoError(t, f.ctrl.SelectToday(ctx))
	require.Equal(t, date("2025-07-14"), f.ctrl.State().CurrentDate)
	require.Equal(t, []string{"2025-07-14"}, f.renderer.formatted())
}

func TestSelectAvailableDate(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{lo: date("2024-01-01"), hi: date("2024-01-03"), ok: true, days: dates("2024-01-01", "2024-01-03")}
	f := newFixture(t, store, "2024-06-01")
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))

	require.ErrorIs(t, f.ctrl.SelectAvailableDate(ctx, date("2024-01-02")), ErrNoDataForDate)
	require.NoError(t, f.ctrl.SelectAvailableDate(ctx, date("2024-01-03")))
	require.Equal(t, date("2024-01-03"), f.ctrl.State().CurrentDate)
	require.Equal(t, dates("2024-01-02"), f.ctrl.Index().EmptyDays(f.ctrl.State().MinDate, f.ctrl.State().MaxDate))
}

func TestRefresh_KeepsCurrentDate(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{lo: date("2024-01-01"), hi: date("2024-01-03"), ok: true, days: dates("2024-01-01", "2024-01-03")}
	f := newFixture(t, store, "2024-06-01")
	require.NoError(t, f.ctrl.SelectStation(ctx, "prune"))
	require.NoError(t, f.ctrl.GoToDate(ctx, "2024-01-02"))

	store.hi = date("2024-01-09")
	store.days = append(store.days, date("2024-01-09"))
	require.NoError(t, f.ctrl.Refresh(ctx))

	st := f.ctrl.State()
	require.Equal(t, date("2024-01-02"), st.CurrentDate)
	require.Equal(t, date("2024-01-09"), st.MaxDate)
	require.True(t, f.ctrl.Index().Has(date("2024-01-09")))
	require.Equal(t, []string{"2024-01-02", "2024-01-02"}, f.renderer.formatted())
}

func TestRenderError_Reported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, wideStore(), "2024-06-01")
	require.NoError(t, f.ctrl.SelectStation(ctx, "mangue"))
	f.renderer.err = errors.New("no display")

	require.Error(t, f.ctrl.SelectToday(ctx))
	require.Equal(t, date("2024-06-01"), f.ctrl.State().CurrentDate)

	// Scrolling keeps going when a frame fails.
	require.NoError(t, f.ctrl.StartScroll(ctx, 1))
	require.Len(t, f.sched.pending(), 1)
}
