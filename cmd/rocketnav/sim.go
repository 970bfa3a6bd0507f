package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/RocketScienceOfficial/rocket-nav-lib/config"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sim"
)

const (
	scenarioParachute = "parachute"
	scenarioBoost     = "boost"
)

func doSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	name, _ := f.GetString("scenario")
	seed, _ := f.GetInt64("seed")
	rng := rand.New(rand.NewSource(seed))

	var (
		sc     sim.Scenario
		ranges []float64
	)
	switch name {
	case scenarioParachute:
		steps, _ := f.GetInt("steps")
		height, _ := f.GetFloat64("height")
		sc = sim.FreeFallParachute(steps, cfg.Filter.DT, cfg.Filter.Gravity, height, sim.DefaultVariances(), rng)
	case scenarioBoost:
		bc := sim.DefaultBoostConfig()
		bc.DT, bc.G = cfg.Filter.DT, cfg.Filter.Gravity
		sc, _ = sim.BoostedFlight(bc, rng)
		ranges = bc.IMURanges
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
	if len(sc.Records) == 0 {
		return fmt.Errorf("scenario %q produced no records", name)
	}

	if fn, _ := f.GetString("records"); fn != "" {
		if err := writeRecords(fn, sc.Records); err != nil {
			return err
		}
	}

	cfg = votingFor(cfg, sc.Records[0], ranges)
	p, err := newPipeline(cmd, sc.Name, cfg)
	if err != nil {
		return err
	}
	for i, rec := range sc.Records {
		if err := p.step(rec, &sc.Truth[i]); err != nil {
			p.release()
			return err
		}
	}
	return p.finish()
}

// votingFor sizes the voting groups to the sensors present in rec. A group
// whose size differs from the configuration is rebuilt from its first
// threshold and variance; a rebuilt accelerometer group takes its
// thresholds from ranges when they match the IMU count.
func votingFor(cfg config.Config, rec sensors.Record, ranges []float64) config.Config {
	n := len(rec.Accel)
	if n > 0 && len(cfg.Voting.Accel.Thresholds) != n {
		cfg.Voting.Accel = resize(cfg.Voting.Accel, n)
		if len(ranges) == n {
			cfg.Voting.Accel.Thresholds = append([]float64(nil), ranges...)
		}
	}
	cfg.Voting.Gyro = resize(cfg.Voting.Gyro, len(rec.Gyro))
	cfg.Voting.Baro = resize(cfg.Voting.Baro, len(rec.Pressure))
	return cfg
}

func resize(g config.Group, n int) config.Group {
	if n == 0 || len(g.Thresholds) == n || len(g.Thresholds) == 0 || len(g.Variances) == 0 {
		return g
	}
	out := config.Group{Thresholds: make([]float64, n), Variances: make([]float64, n)}
	for i := 0; i < n; i++ {
		out.Thresholds[i], out.Variances[i] = g.Thresholds[0], g.Variances[0]
	}
	return out
}

func writeRecords(fn string, recs []sensors.Record) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := sensors.WriteRecords(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
