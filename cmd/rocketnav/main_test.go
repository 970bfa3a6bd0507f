package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RocketScienceOfficial/rocket-nav-lib/config"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightlog"
	"github.com/RocketScienceOfficial/rocket-nav-lib/report"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSimParachute(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "run.sqlite")
	records := filepath.Join(dir, "records.csv")
	plots := filepath.Join(dir, "plots")

	out, err := execute(t, "sim", "--steps", "300", "--height", "500",
		"--db", db,
		"--out", filepath.Join(dir, "estimates.csv"),
		"--plot", plots,
		"--chart", filepath.Join(dir, "chart.html"),
		"--records", records,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "parachute")
	assert.Contains(t, out, "Error vs truth")
	assert.Contains(t, out, "flight.steps")

	for _, fn := range []string{report.AltitudePlot, report.ClimbRatePlot, report.PhasePlot} {
		assert.FileExists(t, filepath.Join(plots, fn))
	}
	assert.FileExists(t, filepath.Join(dir, "chart.html"))

	b, err := os.ReadFile(filepath.Join(dir, "estimates.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Len(t, lines, 301)

	s, err := flightlog.Open(db)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	run, err := s.Run(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 300, run.Steps)
	assert.Equal(t, config.ModelFull, run.Model)
	assert.True(t, run.Ended.Valid)

	f, err := os.Open(records)
	require.NoError(t, err)
	defer f.Close()
	recs, err := sensors.ReadRecords(f)
	require.NoError(t, err)
	assert.Len(t, recs, 300)
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	records := filepath.Join(dir, "records.csv")
	_, err := execute(t, "sim", "--steps", "200", "--records", records)
	require.NoError(t, err)

	out, err := execute(t, "replay", "--input", records)
	require.NoError(t, err)
	assert.Contains(t, out, "records.csv")
	assert.NotContains(t, out, "Error vs truth")
}

func TestReplayMissingInput(t *testing.T) {
	_, err := execute(t, "replay", "--input", filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)

	_, err = execute(t, "replay")
	assert.Error(t, err)
}

func TestSimBoost(t *testing.T) {
	out, err := execute(t, "sim", "--scenario", "boost")
	require.NoError(t, err)
	assert.Contains(t, out, "boost")
}

func TestSimUnknownScenario(t *testing.T) {
	_, err := execute(t, "sim", "--scenario", "orbit")
	assert.ErrorContains(t, err, "orbit")
}

func TestConfigCommand(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "nav.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("filter:\n  model: altitude\n"), 0o644))

	out, err := execute(t, "config", "--config", fn)
	require.NoError(t, err)
	cfg, err := config.Decode(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, config.ModelAltitude, cfg.Filter.Model)

	require.NoError(t, os.WriteFile(fn, []byte("filter:\n  dt: -1\n"), 0o644))
	_, err = execute(t, "config", "--config", fn)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestVotingFor(t *testing.T) {
	cfg := config.Default()
	rec := sensors.Record{
		Accel:    make([][3]float64, 2),
		Gyro:     make([][3]float64, 2),
		Pressure: make([]float64, 3),
	}
	got := votingFor(cfg, rec, []float64{100, 40})
	assert.Equal(t, []float64{100, 40}, got.Voting.Accel.Thresholds)
	assert.Len(t, got.Voting.Accel.Variances, 2)
	assert.Len(t, got.Voting.Gyro.Thresholds, 2)
	assert.Len(t, got.Voting.Baro.Variances, 3)
	assert.Equal(t, cfg.Voting.Baro.Variances[0], got.Voting.Baro.Variances[2])
	require.NoError(t, got.Validate())

	// Matching groups are left alone
	same := votingFor(cfg, sensors.Record{Accel: make([][3]float64, 1)}, []float64{1, 2})
	assert.Equal(t, cfg.Voting, same.Voting)

	// The configuration is not shared with the result
	got.Voting.Gyro.Variances[0] = 99
	assert.NotEqual(t, 99.0, cfg.Voting.Gyro.Variances[0])
}

func TestShape(t *testing.T) {
	recs := []sensors.Record{
		{Accel: make([][3]float64, 1)},
		{Pressure: make([]float64, 2)},
		{Accel: make([][3]float64, 2), Gyro: make([][3]float64, 1)},
	}
	r := shape(recs)
	assert.Len(t, r.Accel, 2)
	assert.Len(t, r.Gyro, 1)
	assert.Len(t, r.Pressure, 2)
}
