package flightlog

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RocketScienceOfficial/rocket-nav-lib/config"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
	"github.com/RocketScienceOfficial/rocket-nav-lib/geo"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sim"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "flight.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openStore(t)
	origin := geo.Origin{Lat: 32.95, Lon: -106.91, Alt: 1400}
	id, err := s.StartRun("test", config.ModelFull, origin, "filter:\n  model: full\n")
	require.NoError(t, err)

	es := []Estimate{
		{T: 0, Phase: flightphase.Standing, Altitude: 0.1, Vel: [3]float64{0, 0, -0.1}, AltVariance: 0.5},
		{T: 0.01, Phase: flightphase.Accelerating, Altitude: 0.3, ClimbRate: 2, Pos: [3]float64{1, 2, -0.3},
			Roll: 1, Pitch: 2, Heading: 359, Checkpoint: `{"x":[1]}`},
	}
	require.NoError(t, s.AddEstimates(id, es))
	ev := flightphase.Event{Kind: flightphase.Liftoff, From: flightphase.Standing, To: flightphase.Accelerating, T: 0.01, Altitude: 0.3}
	require.NoError(t, s.AddEvent(id, ev))
	require.NoError(t, s.EndRun(id))

	got, err := s.Estimates(id)
	require.NoError(t, err)
	assert.Equal(t, es, got)

	evs, err := s.Events(id)
	require.NoError(t, err)
	assert.Equal(t, []flightphase.Event{ev}, evs)

	run, err := s.Run(id)
	require.NoError(t, err)
	assert.Equal(t, "test", run.Name)
	assert.Equal(t, origin, run.Origin)
	assert.Equal(t, 2, run.Steps)
	assert.True(t, run.Ended.Valid)
	assert.Contains(t, run.Config, "model: full")

	ids, err := s.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestStoreUnknownRun(t *testing.T) {
	s := openStore(t)
	assert.ErrorIs(t, s.EndRun("nope"), ErrNoRun)
	assert.ErrorIs(t, s.SetOrigin("nope", geo.Origin{}), ErrNoRun)
	_, err := s.Run("nope")
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestStoreSimulatedRun(t *testing.T) {
	s := openStore(t)
	sc := sim.FreeFallParachute(200, 0.01, 9.80665, 300, sim.DefaultVariances(), rand.New(rand.NewSource(1)))
	c, err := flight.New(config.Default())
	require.NoError(t, err)

	id, err := s.StartRun(sc.Name, config.ModelFull, geo.Origin{}, "")
	require.NoError(t, err)
	var es []Estimate
	for _, r := range sc.Records {
		out, err := c.Step(r)
		require.NoError(t, err)
		e := FromOutput(out)
		b, err := json.Marshal(c.Checkpoint())
		require.NoError(t, err)
		e.Checkpoint = string(b)
		es = append(es, e)
	}
	o, ok := c.Origin()
	require.True(t, ok)
	require.NoError(t, s.SetOrigin(id, o))
	require.NoError(t, s.AddEstimates(id, es))
	require.NoError(t, s.EndRun(id))

	run, err := s.Run(id)
	require.NoError(t, err)
	assert.Equal(t, 200, run.Steps)
	assert.Equal(t, o, run.Origin)

	got, err := s.Estimates(id)
	require.NoError(t, err)
	require.Len(t, got, 200)
	var cp flight.Checkpoint
	require.NoError(t, json.Unmarshal([]byte(got[199].Checkpoint), &cp))
	assert.Len(t, cp.Filter.X, 13)
}

func TestFromOutputAltitudeModel(t *testing.T) {
	e := FromOutput(flight.Output{T: 2, Altitude: 12, Variances: []float64{0.3}, Phase: flightphase.FreeFall})
	assert.Equal(t, 0.3, e.AltVariance)
	assert.Equal(t, 12.0, e.Altitude)
	assert.Zero(t, e.Heading)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf)
	require.NoError(t, err)
	require.NoError(t, l.LogEstimate(Estimate{T: 1.5, Phase: flightphase.FreeFlight, Altitude: 100}))
	assert.Error(t, l.Log(1, 2))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, len(Columns))
	assert.Equal(t, "1.500000", fields[0])
	assert.Equal(t, "2.000000", fields[1])
	assert.Equal(t, "100.000000", fields[2])
}
