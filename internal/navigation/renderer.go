package navigation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stationlog/internal/modules/measurements/types"
)

// Renderer draws the window of one station for one calendar day.
type Renderer interface {
	Render(ctx context.Context, station string, date time.Time) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(ctx context.Context, station string, date time.Time) error

func (f RenderFunc) Render(ctx context.Context, station string, date time.Time) error {
	return f(ctx, station, date)
}

type Channel string

const (
	Temperature Channel = "temperature"
	Humidity    Channel = "humidity"
	Pressure    Channel = "pressure"
)

var AllChannels = []Channel{Temperature, Humidity, Pressure}

// ParseChannels reads a comma-separated channel list; empty means all channels.
func ParseChannels(s string) ([]Channel, error) {
	if strings.TrimSpace(s) == "" {
		return AllChannels, nil
	}
	var out []Channel
	for _, part := range strings.Split(s, ",") {
		switch c := Channel(strings.ToLower(strings.TrimSpace(part))); c {
		case Temperature, Humidity, Pressure:
			out = append(out, c)
		case "":
		default:
			return nil, fmt.Errorf("unknown channel %q (allowed: temperature, humidity, pressure)", part)
		}
	}
	if len(out) == 0 {
		return AllChannels, nil
	}
	return out, nil
}

// Value returns the channel's reading of m, nil when NULL.
func (c Channel) Value(m types.Measurement) *float64 {
	switch c {
	case Temperature:
		return m.Temperature
	case Humidity:
		return m.Humidity
	case Pressure:
		return m.Pressure
	}
	return nil
}

// Series is the day window of one device.
type Series struct {
	Device string
	Rows   []types.Measurement
}

// Stats summarises a channel over the series, skipping NULL values.
type Stats struct {
	Count          int
	Min, Max, Mean float64
}

func (s Series) Stats(c Channel) Stats {
	var st Stats
	var sum float64
	for _, m := range s.Rows {
		v := c.Value(m)
		if v == nil {
			continue
		}
		if st.Count == 0 || *v < st.Min {
			st.Min = *v
		}
		if st.Count == 0 || *v > st.Max {
			st.Max = *v
		}
		sum += *v
		st.Count++
	}
	if st.Count > 0 {
		st.Mean = sum / float64(st.Count)
	}
	return st
}

// Window is what a station looks like on one day: one series per sensor.
type Window struct {
	Station  string
	Date     time.Time
	Series   []Series
	Channels []Channel
}

// Empty reports whether no sensor has a row on that day.
func (w Window) Empty() bool {
	for _, s := range w.Series {
		if len(s.Rows) > 0 {
			return false
		}
	}
	return true
}

// RangeQuerier is the query the window renderer needs.
type RangeQuerier interface {
	RangeByDevices(ctx context.Context, devices []string, start, end time.Time) ([]types.Measurement, error)
}

// WindowRenderer fetches [date, date+1d) for both sensors of the station and hands the
// result to Show.
type WindowRenderer struct {
	Query    RangeQuerier
	Channels []Channel
	Show     func(Window) error
}

func (r *WindowRenderer) Render(ctx context.Context, station string, date time.Time) error {
	w, err := r.Window(ctx, station, date)
	if err != nil {
		return err
	}
	if r.Show == nil {
		return nil
	}
	return r.Show(w)
}

// Window builds the day window without showing it.
func (r *WindowRenderer) Window(ctx context.Context, station string, date time.Time) (Window, error) {
	start := types.Date(date)
	devices := types.StationDevices(station)
	rows, err := r.Query.RangeByDevices(ctx, devices, start, start.AddDate(0, 0, 1))
	if err != nil {
		return Window{}, fmt.Errorf("query window %s %s: %w", station, start.Format(types.DateLayout), err)
	}

	channels := r.Channels
	if len(channels) == 0 {
		channels = AllChannels
	}
	w := Window{Station: station, Date: start, Channels: channels}
	byDevice := make(map[string]int, len(devices))
	for _, d := range devices {
		byDevice[d] = len(w.Series)
		w.Series = append(w.Series, Series{Device: d})
	}
	for _, m := range rows {
		if m.Device == nil {
			continue
		}
		if i, ok := byDevice[*m.Device]; ok {
			w.Series[i].Rows = append(w.Series[i].Rows, m)
		}
	}
	return w, nil
}
