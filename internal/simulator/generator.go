// Package simulator stands in for the station gateways: it generates plausible BME280
// batches and sends them over HTTP or MQTT, once or periodically.
package simulator

import (
	"math"
	"math/rand/v2"
	"time"

	"stationlog/internal/modules/measurements/types"
)

// Stations are the names the simulator offers.
var Stations = []string{"mangue", "carambole", "ananas"}

// Nominal values and the half-width of the uniform noise added to them.
const (
	baseTemperature  = 22.0
	noiseTemperature = 2.0
	baseHumidity     = 50.0
	noiseHumidity    = 10.0
	basePressure     = 1013.0
	noisePressure    = 5.0
)

type Generator struct {
	rnd *rand.Rand
}

// NewGenerator uses r for noise, or a randomly seeded source when r is nil.
func NewGenerator(r *rand.Rand) *Generator {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rnd: r}
}

// Batch returns count samples per sensor of station, step apart from start. Entries are
// ordered by time, BME1 before BME2 at each instant.
func (g *Generator) Batch(station string, start time.Time, count int, step time.Duration) []types.Entry {
	devices := types.StationDevices(station)
	out := make([]types.Entry, 0, count*len(devices))
	for i := range count {
		ts := types.NewTimestamp(start.Add(time.Duration(i) * step))
		for _, d := range devices {
			out = append(out, types.Entry{
				Device:      types.StringPtr(d),
				Temperature: types.FloatPtr(g.around(baseTemperature, noiseTemperature)),
				Humidity:    types.FloatPtr(g.around(baseHumidity, noiseHumidity)),
				Pressure:    types.FloatPtr(g.around(basePressure, noisePressure)),
				Timestamp:   &ts,
			})
		}
	}
	return out
}

func (g *Generator) around(base, spread float64) float64 {
	v := base + (g.rnd.Float64()*2-1)*spread
	return math.Round(v*100) / 100
}

// CurrentHour is the default start of a batch.
func CurrentHour(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, now.Hour(), 0, 0, 0, now.Location())
}
