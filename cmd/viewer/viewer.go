package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stationlog/internal/export"
	"stationlog/internal/modules/measurements/types"
	"stationlog/internal/navigation"
)

const help = `commands:
  stations                 list known stations
  station <name>           select a station and show its initial date
  today                    show today
  goto <YYYY-MM-DD>        jump to a date inside the station's range
  pick <YYYY-MM-DD>        jump to a date that has data
  dates                    list dates with data
  empty                    list days without data between the bounds
  step <-7|-1|1|7>         move once, clamped to the station's range
  hold <-7|-1|1|7>         start scrolling (speeds up 1, 5, 25 while held)
  release                  stop scrolling
  refresh                  reload bounds and dates, show the same date again
  channels <a,b>           temperature, humidity, pressure (empty for all)
  export <start> <end>     write a CSV of every device over [start, end]
  state                    print the navigation state
  quit
`

// store is what the viewer reads from the measurement repository.
type store interface {
	navigation.Store
	navigation.RangeQuerier
	DistinctDevices(ctx context.Context) ([]string, error)
}

// viewer owns the navigation state. Its methods must run on the navigation loop.
type viewer struct {
	store     store
	ctrl      *navigation.Controller
	renderer  *navigation.WindowRenderer
	exporter  *export.Service
	stations  []string
	exportDir string
	out       io.Writer
}

var errQuit = errors.New("quit")

func newViewer(st store, sched navigation.Scheduler, exporter *export.Service, stations []string, exportDir string, out io.Writer, opts ...navigation.Option) *viewer {
	v := &viewer{
		store:     st,
		exporter:  exporter,
		stations:  stations,
		exportDir: exportDir,
		out:       out,
	}
	v.renderer = &navigation.WindowRenderer{Query: st, Show: v.show}
	v.ctrl = navigation.NewController(st, v.renderer, sched, opts...)
	return v
}

// exec runs one command line. It returns errQuit on "quit".
func (v *viewer) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprint(v.out, help)
		return nil
	case "quit", "exit":
		v.ctrl.StopScroll()
		return errQuit
	case "stations":
		return v.listStations(ctx)
	case "station":
		if len(args) != 1 {
			return errors.New("usage: station <name>")
		}
		if err := v.ctrl.SelectStation(ctx, args[0]); err != nil {
			return err
		}
		if !v.ctrl.State().HasData {
			fmt.Fprintf(v.out, "no data for %s\n", args[0])
		}
		return v.ctrl.ShowInitial(ctx)
	case "today":
		return v.ctrl.SelectToday(ctx)
	case "goto":
		if len(args) != 1 {
			return errors.New("usage: goto <YYYY-MM-DD>")
		}
		return v.ctrl.GoToDate(ctx, args[0])
	case "pick":
		if len(args) != 1 {
			return errors.New("usage: pick <YYYY-MM-DD>")
		}
		d, err := types.ParseDate(args[0])
		if err != nil {
			return fmt.Errorf("%w: %q", navigation.ErrInvalidDateFormat, args[0])
		}
		return v.ctrl.SelectAvailableDate(ctx, d)
	case "dates":
		v.printDates(v.ctrl.Index().Sorted())
		return nil
	case "empty":
		st := v.ctrl.State()
		if st.Station == "" {
			return navigation.ErrNoStation
		}
		v.printDates(v.ctrl.Index().EmptyDays(st.MinDate, st.MaxDate))
		return nil
	case "hold", "step":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <-7|-1|1|7>", cmd)
		}
		dir, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %q", navigation.ErrInvalidDirection, args[0])
		}
		if err := v.ctrl.StartScroll(ctx, dir); err != nil {
			return err
		}
		if cmd == "step" {
			v.ctrl.StopScroll()
		}
		return nil
	case "release":
		v.ctrl.StopScroll()
		return nil
	case "refresh":
		return v.ctrl.Refresh(ctx)
	case "channels":
		channels, err := navigation.ParseChannels(strings.Join(args, ","))
		if err != nil {
			return err
		}
		v.renderer.Channels = channels
		return nil
	case "export":
		return v.export(ctx, args)
	case "state":
		v.printState()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (v *viewer) listStations(ctx context.Context) error {
	devices, err := v.store.DistinctDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, s := range types.Stations(devices, v.stations) {
		fmt.Fprintln(v.out, s)
	}
	return nil
}

func (v *viewer) export(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: export <YYYY-MM-DD> <YYYY-MM-DD>")
	}
	start, err := types.ParseDate(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q", navigation.ErrInvalidDateFormat, args[0])
	}
	end, err := types.ParseDate(args[1])
	if err != nil {
		return fmt.Errorf("%w: %q", navigation.ErrInvalidDateFormat, args[1])
	}
	name := fmt.Sprintf("export_%s_%s.csv", start.Format("20060102"), end.Format("20060102"))
	res, err := v.exporter.Export(ctx, start, end, export.FileSink{Path: filepath.Join(v.exportDir, name)})
	if err != nil {
		return err
	}
	fmt.Fprintf(v.out, "exported %d rows to %s\n", res.Rows, res.Destination)
	return nil
}

func (v *viewer) show(w navigation.Window) error {
	fmt.Fprintf(v.out, "== %s %s\n", w.Station, w.Date.Format(types.DateLayout))
	if w.Empty() {
		fmt.Fprintln(v.out, "   no measurements")
		return nil
	}
	for _, s := range w.Series {
		fmt.Fprintf(v.out, "   %s: %d rows\n", s.Device, len(s.Rows))
		for _, c := range w.Channels {
			st := s.Stats(c)
			if st.Count == 0 {
				continue
			}
			fmt.Fprintf(v.out, "     %-11s min %.2f  max %.2f  mean %.2f\n", c, st.Min, st.Max, st.Mean)
		}
	}
	return nil
}

func (v *viewer) printDates(dates []time.Time) {
	if len(dates) == 0 {
		fmt.Fprintln(v.out, "(none)")
		return
	}
	for _, d := range dates {
		fmt.Fprintln(v.out, d.Format(types.DateLayout))
	}
}

func (v *viewer) printState() {
	st := v.ctrl.State()
	if st.Station == "" {
		fmt.Fprintln(v.out, "no station selected")
		return
	}
	current := "-"
	if !st.CurrentDate.IsZero() {
		current = st.CurrentDate.Format(types.DateLayout)
	}
	fmt.Fprintf(v.out, "station %s  date %s  range [%s, %s]  days %d  scrolling %t\n",
		st.Station, current, st.MinDate.Format(types.DateLayout), st.MaxDate.Format(types.DateLayout),
		v.ctrl.Index().Len(), st.Scrolling)
}
