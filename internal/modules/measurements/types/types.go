package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wall-clock format used on the wire, in exports and for display.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date format accepted by navigation and export.
const DateLayout = "2006-01-02"

// SensorSuffixes are the two sensors every station carries.
var SensorSuffixes = []string{"BME1", "BME2"}

// Measurement is one stored row. Nil pointers are SQL NULLs.
type Measurement struct {
	ID          int64      `json:"id"`
	Device      *string    `json:"device"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	Pressure    *float64   `json:"pressure"`
	Timestamp   *Timestamp `json:"timestamp"`
}

// Entry is one element of an ingestion batch. Absent fields stay nil and are stored as NULL.
type Entry struct {
	Device      *string    `json:"device"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	Pressure    *float64   `json:"pressure"`
	Timestamp   *Timestamp `json:"timestamp"`
}

// looseTimestampLayouts are tried, in order, for timestamps received in a batch.
var looseTimestampLayouts = []string{TimestampLayout, "2006-01-02T15:04:05", time.RFC3339}

// UnmarshalJSON never rejects an element. Each field is bound as closely as its column
// allows and is NULL otherwise; an element that is not an object is all NULL.
// Numeric timestamps are Unix seconds.
func (e *Entry) UnmarshalJSON(b []byte) error {
	*e = Entry{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	e.Device = looseString(fields["device"])
	e.Temperature = looseFloat(fields["temperature"])
	e.Humidity = looseFloat(fields["humidity"])
	e.Pressure = looseFloat(fields["pressure"])
	e.Timestamp = looseTimestamp(fields["timestamp"])
	return nil
}

func looseValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func looseString(raw json.RawMessage) *string {
	switch v := looseValue(raw).(type) {
	case string:
		return &v
	case float64, bool:
		s := string(bytes.TrimSpace(raw))
		return &s
	}
	return nil
}

func looseFloat(raw json.RawMessage) *float64 {
	switch v := looseValue(raw).(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func looseTimestamp(raw json.RawMessage) *Timestamp {
	switch v := looseValue(raw).(type) {
	case float64:
		ts := FromUnix(int64(v))
		return &ts
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range looseTimestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				ts := NewTimestamp(t)
				return &ts
			}
		}
	}
	return nil
}

// Timestamp is a second-precision wall-clock value without zone. It is held as UTC
// so that arithmetic and comparisons never shift it.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: WallClock(t)}
}

// WallClock drops the zone and sub-second part, keeping the displayed wall-clock fields.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// ParseTimestamp accepts "YYYY-MM-DD HH:MM:SS".
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(TimestampLayout, strings.TrimSpace(s))
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) String() string {
	return t.Format(TimestampLayout)
}

// FromUnix converts the stored representation (Unix seconds) back to a Timestamp.
func FromUnix(sec int64) Timestamp {
	return Timestamp{Time: time.Unix(sec, 0).UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date truncates t to midnight of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts "YYYY-MM-DD" and rejects impossible dates such as 2024-13-40.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// StationDevices returns the device identifiers of a station.
func StationDevices(station string) []string {
	out := make([]string, 0, len(SensorSuffixes))
	for _, suffix := range SensorSuffixes {
		out = append(out, station+"_"+suffix)
	}
	return out
}

// StationOf returns the station part of a device name ("mangue_BME1" -> "mangue").
// Devices without an underscore are their own station.
func StationOf(device string) string {
	if i := strings.LastIndex(device, "_"); i > 0 {
		return device[:i]
	}
	return device
}

// Stations merges the configured station names with those derived from stored devices.
// Configured names keep their order; discovered ones follow in device order.
func Stations(devices, configured []string) []string {
	seen := make(map[string]struct{}, len(configured)+len(devices))
	out := make([]string, 0, len(configured)+len(devices))
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range configured {
		add(name)
	}
	for _, d := range devices {
		add(StationOf(d))
	}
	return out
}

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }
