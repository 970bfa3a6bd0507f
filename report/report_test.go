package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sim"
)

// climb builds a run rising at 10 m/s whose altitude estimate is off by
// alternating ±1 m and whose climb-rate estimate is 0.5 m/s fast.
func climb(n int) *Series {
	s := NewSeries("test")
	for i := 0; i < n; i++ {
		tt := float64(i) * 0.1
		tr := sim.Truth{T: tt, Pos: [3]float64{0, 0, -10 * tt}, Vel: [3]float64{0, 0, -10}}
		out := flight.Output{T: tt, Altitude: 10*tt + 1 - 2*float64(i%2), ClimbRate: 10.5, Phase: flightphase.FreeFlight}
		if i == n/2 {
			out.Event = &flightphase.Event{Kind: flightphase.Burnout, From: flightphase.Accelerating, To: flightphase.FreeFlight, T: tt, Altitude: out.Altitude}
		}
		s.AddTruth(out, tr)
	}
	return s
}

func TestSeriesAdd(t *testing.T) {
	s := climb(10)
	require.Len(t, s.Samples, 10)
	require.Len(t, s.Events, 1)
	assert.Equal(t, flightphase.Burnout, s.Events[0].Kind)
	assert.True(t, s.HasTruth())

	assert.InDelta(t, 9, s.Samples[9].TrueAltitude, 1e-9)
	assert.InDelta(t, 10, s.Samples[9].TrueClimbRate, 1e-9)

	s.Add(flight.Output{T: 1})
	assert.False(t, s.HasTruth())
	assert.False(t, NewSeries("empty").HasTruth())
}

func TestApogee(t *testing.T) {
	s := NewSeries("arc")
	for i, alt := range []float64{0, 5, 9, 7, 2} {
		s.Add(flight.Output{T: float64(i), Altitude: alt})
	}
	tt, alt := s.Apogee()
	assert.Equal(t, 2.0, tt)
	assert.Equal(t, 9.0, alt)
}

func TestErrors(t *testing.T) {
	s := climb(100)
	es := s.Errors()
	require.Len(t, es, 2)

	alt := es[0]
	assert.Equal(t, "altitude", alt.Channel)
	assert.Equal(t, 100, alt.N)
	assert.InDelta(t, 0, alt.Mean, 1e-9)
	assert.InDelta(t, 1, alt.RMS, 1e-9)
	assert.InDelta(t, 1, alt.MaxAbs, 1e-9)
	assert.InDelta(t, math.Sqrt(100.0/99), alt.StdDev, 1e-9)

	cr := es[1]
	assert.Equal(t, "climb_rate", cr.Channel)
	assert.InDelta(t, 0.5, cr.Mean, 1e-9)
	assert.InDelta(t, 0, cr.StdDev, 1e-9)
	assert.InDelta(t, 0.5, cr.RMS, 1e-9)
}

func TestErrorsWithoutTruth(t *testing.T) {
	s := NewSeries("live")
	s.Add(flight.Output{T: 0, Altitude: 3})
	for _, es := range s.Errors() {
		assert.Zero(t, es.N)
		assert.True(t, math.IsNaN(es.RMS))
	}

	s = climb(1)
	es := s.Errors()
	assert.Equal(t, 1, es[0].N)
	assert.Zero(t, es[0].StdDev)
}

func TestWritePlots(t *testing.T) {
	dir := t.TempDir()
	files, err := climb(50).WritePlots(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, name := range []string{AltitudePlot, ClimbRatePlot, PhasePlot} {
		assert.Equal(t, filepath.Join(dir, name), files[i])
		b, err := os.ReadFile(files[i])
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(b, []byte("\x89PNG")), name)
	}
}

func TestWritePlotsWithoutTruth(t *testing.T) {
	s := NewSeries("live")
	for i := 0; i < 20; i++ {
		s.Add(flight.Output{T: float64(i), Altitude: float64(i)})
	}
	files, err := s.WritePlots(t.TempDir())
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestEmptySeries(t *testing.T) {
	s := NewSeries("empty")
	_, err := s.WritePlots(t.TempDir())
	assert.ErrorIs(t, err, ErrEmpty)
	assert.ErrorIs(t, s.WriteChart(&bytes.Buffer{}), ErrEmpty)
}

func TestWriteChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, climb(20).WriteChart(&buf))
	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"))
	assert.True(t, strings.Contains(html, "Altitude"))
	assert.True(t, strings.Contains(html, "Climb rate"))
	assert.True(t, strings.Contains(html, "truth"))
	assert.True(t, strings.Contains(html, "Burnout"))
}
