package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
)

func doReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fn, _ := cmd.Flags().GetString("input")
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := sensors.ReadRecords(f)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("%s: no records", fn)
	}

	cfg = votingFor(cfg, shape(recs), nil)
	p, err := newPipeline(cmd, filepath.Base(fn), cfg)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := p.step(rec, nil); err != nil {
			p.release()
			return err
		}
	}
	return p.finish()
}

// shape returns a record carrying as many readings per group as the largest
// record in recs.
func shape(recs []sensors.Record) (r sensors.Record) {
	for _, rec := range recs {
		if len(rec.Accel) > len(r.Accel) {
			r.Accel = rec.Accel
		}
		if len(rec.Gyro) > len(r.Gyro) {
			r.Gyro = rec.Gyro
		}
		if len(rec.Pressure) > len(r.Pressure) {
			r.Pressure = rec.Pressure
		}
	}
	return r
}
