package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"

	"github.com/RocketScienceOfficial/rocket-nav-lib/config"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightlog"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightweb"
	"github.com/RocketScienceOfficial/rocket-nav-lib/report"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sim"
)

// storeBatch is the number of estimates written per transaction.
const storeBatch = 500

// pipeline steps a flight computer and fans each output out to the flight
// log, the CSV writer, the telemetry room and the report.
type pipeline struct {
	name  string
	cfg   config.Config
	c     *flight.Computer
	out   io.Writer
	steps int
	fails int

	store   *flightlog.Store
	runID   string
	pending []flightlog.Estimate

	csvFile *os.File
	csv     *flightlog.Logger

	client *flightweb.Client
	series *report.Series

	plotDir, chartFile string
}

func newPipeline(cmd *cobra.Command, name string, cfg config.Config, opts ...flight.Option) (p *pipeline, err error) {
	p = &pipeline{name: name, cfg: cfg, out: cmd.OutOrStdout(), series: report.NewSeries(name)}
	if p.c, err = flight.New(cfg, opts...); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	f := cmd.Flags()
	dbPath, _ := f.GetString("db")
	csvPath, _ := f.GetString("out")
	url, _ := f.GetString("serve")
	p.plotDir, _ = f.GetString("plot")
	p.chartFile, _ = f.GetString("chart")

	if dbPath != "" {
		if p.store, err = flightlog.Open(dbPath); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err = cfg.Write(&buf); err != nil {
			return nil, err
		}
		o, _ := p.c.Origin()
		if p.runID, err = p.store.StartRun(name, cfg.Filter.Model, o, buf.String()); err != nil {
			return nil, err
		}
		log.Printf("rocketnav: logging run %s to %s\n", p.runID, dbPath)
	}
	if csvPath != "" {
		if p.csvFile, err = os.Create(csvPath); err != nil {
			return nil, err
		}
		if p.csv, err = flightlog.NewLogger(p.csvFile); err != nil {
			return nil, err
		}
	}
	if url != "" {
		if p.client, err = flightweb.Dial(url); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// step runs one record through the computer. tr is the true state of a
// simulated run and nil otherwise.
func (p *pipeline) step(rec sensors.Record, tr *sim.Truth) error {
	out, err := p.c.Step(rec)
	if err != nil {
		return fmt.Errorf("step at t=%.3f: %w", rec.T, err)
	}
	p.steps++
	if out.CorrectErr != nil {
		p.fails++
	}
	if out.Event != nil {
		log.Printf("rocketnav: %s\n", out.Event)
	}
	if tr != nil {
		p.series.AddTruth(out, *tr)
	} else {
		p.series.Add(out)
	}

	if p.store == nil && p.csv == nil && p.client == nil {
		return nil
	}
	e := flightlog.FromOutput(out)
	if p.csv != nil {
		if err := p.csv.LogEstimate(e); err != nil {
			return err
		}
	}
	if p.client != nil {
		if err := p.client.Send(flightweb.NewTelemetry(out)); err != nil {
			log.Printf("rocketnav: telemetry: %s\n", err)
		}
	}
	if p.store != nil {
		b, err := json.Marshal(p.c.Checkpoint())
		if err != nil {
			return err
		}
		e.Checkpoint = string(b)
		p.pending = append(p.pending, e)
		if out.Event != nil {
			if err := p.store.AddEvent(p.runID, *out.Event); err != nil {
				return err
			}
		}
		if len(p.pending) >= storeBatch {
			return p.flush()
		}
	}
	return nil
}

func (p *pipeline) flush() error {
	if len(p.pending) == 0 {
		return nil
	}
	err := p.store.AddEstimates(p.runID, p.pending)
	p.pending = p.pending[:0]
	return err
}

// finish completes the flight log, writes the report files and prints the
// summary.
func (p *pipeline) finish() (err error) {
	defer p.release()

	if p.store != nil {
		if err := p.flush(); err != nil {
			return err
		}
		if o, ok := p.c.Origin(); ok {
			if err := p.store.SetOrigin(p.runID, o); err != nil {
				return err
			}
		}
		if err := p.store.EndRun(p.runID); err != nil {
			return err
		}
	}
	if p.plotDir != "" && len(p.series.Samples) > 0 {
		if err := os.MkdirAll(p.plotDir, 0o755); err != nil {
			return err
		}
		files, err := p.series.WritePlots(p.plotDir)
		if err != nil {
			return err
		}
		log.Printf("rocketnav: wrote %d plots to %s\n", len(files), p.plotDir)
	}
	if p.chartFile != "" && len(p.series.Samples) > 0 {
		f, err := os.Create(p.chartFile)
		if err != nil {
			return err
		}
		if err := p.series.WriteChart(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	p.summary()
	return nil
}

func (p *pipeline) release() {
	if p.csvFile != nil {
		p.csvFile.Close()
		p.csvFile = nil
	}
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	if p.store != nil {
		p.store.Close()
		p.store = nil
	}
}

func newTable(w io.Writer, title string, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	style := table.StyleLight
	style.Options.SeparateColumns = true
	style.Options.DrawBorder = true
	t.SetStyle(style)
	t.AppendHeader(table.Row(header))
	return t
}

func (p *pipeline) summary() {
	t := newTable(p.out, p.name, "ITEM", "VALUE")
	t.AppendRow(table.Row{"model", p.cfg.Filter.Model})
	t.AppendRow(table.Row{"steps", p.steps})
	t.AppendRow(table.Row{"singular corrections", p.fails})
	t.AppendRow(table.Row{"final phase", p.c.Phase()})
	if len(p.series.Samples) > 0 {
		at, alt := p.series.Apogee()
		t.AppendRow(table.Row{"apogee", fmt.Sprintf("%.1f m at %.2f s", alt, at)})
	}
	if p.runID != "" {
		t.AppendRow(table.Row{"run", p.runID})
	}
	p.c.Registry().Each(func(name string, m any) {
		if c, ok := m.(metrics.Counter); ok {
			t.AppendRow(table.Row{name, c.Count()})
		}
	})
	t.Render()

	if len(p.series.Events) > 0 {
		t = newTable(p.out, "Events", "EVENT", "T (s)", "ALTITUDE (m)", "PHASE")
		for _, ev := range p.series.Events {
			t.AppendRow(table.Row{ev.Kind, fmt.Sprintf("%.2f", ev.T), fmt.Sprintf("%.1f", ev.Altitude), ev.To})
		}
		t.Render()
	}

	if p.series.HasTruth() {
		t = newTable(p.out, "Error vs truth", "CHANNEL", "MEAN", "STD", "RMS", "MAX")
		for _, es := range p.series.Errors() {
			t.AppendRow(table.Row{es.Channel,
				fmt.Sprintf("%.3f", es.Mean), fmt.Sprintf("%.3f", es.StdDev),
				fmt.Sprintf("%.3f", es.RMS), fmt.Sprintf("%.3f", es.MaxAbs)})
		}
		t.Render()
	}

	stats := p.c.InnovationStats()
	if len(stats) > 0 {
		t = newTable(p.out, "Innovations", "CHANNEL", "N", "MEAN", "VARIANCE")
		for _, s := range stats {
			t.AppendRow(table.Row{s.Name, fmt.Sprintf("%.0f", s.N), fmt.Sprintf("%.4f", s.Mean), fmt.Sprintf("%.4f", s.Variance)})
		}
		t.Render()
	}
}
