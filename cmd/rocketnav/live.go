package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors/bmp280"
)

func doLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	port, _ := f.GetString("serial")
	baud, _ := f.GetInt("baud")
	bus, _ := f.GetInt("bmp280")

	src, err := sensors.OpenSerial(port, baud)
	if err != nil {
		return err
	}
	defer src.Close()

	var baro <-chan *sensors.BMPData
	if bus >= 0 {
		bmp, err := bmp280.Open(byte(bus), bmp280.Address1, bmp280.StandbyTime63ms)
		if err != nil {
			return err
		}
		defer bmp.Close()
		baro = bmp.Sensor().CBuf
		cfg.Voting.Baro = resize(cfg.Voting.Baro, 1)
	}

	p, err := newPipeline(cmd, port, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := runLive(ctx, p, src.Run(ctx), baro, flight.NewScheduler(cfg.Filter.DT)); err != nil {
		p.release()
		return err
	}
	if err := src.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("rocketnav: serial: %s\n", err)
	}
	return p.finish()
}

// runLive resamples the incoming records onto the filter tick and steps the
// pipeline until the record stream ends. Barometer readings are stamped with
// the time of the latest record.
func runLive(ctx context.Context, p *pipeline, recs <-chan sensors.Record, baro <-chan *sensors.BMPData, sched *flight.Scheduler) error {
	var now float64
	var started bool
	for {
		select {
		case rec, ok := <-recs:
			if !ok {
				return nil
			}
			now, started = rec.T, true
			if !sched.Push(rec) {
				log.Printf("rocketnav: dropped late record at t=%.3f\n", rec.T)
				continue
			}
			for _, r := range sched.Due(now) {
				if err := p.step(r, nil); err != nil {
					return err
				}
			}
		case b, ok := <-baro:
			if !ok {
				baro = nil
				continue
			}
			if !started {
				continue
			}
			sched.Push(sensors.Record{T: now, Pressure: []float64{b.Pressure}, BaroValid: true})
		case <-ctx.Done():
			return nil
		}
	}
}
