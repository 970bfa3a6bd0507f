package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
)

var ErrEmpty = errors.New("report: series is empty")

var (
	estimateColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	truthColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	eventColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Plot file names written by WritePlots.
const (
	AltitudePlot  = "altitude.png"
	ClimbRatePlot = "climb_rate.png"
	PhasePlot     = "phase.png"
)

// WritePlots saves the altitude, climb-rate and phase plots as PNG files in
// dir and returns their paths.
func (s *Series) WritePlots(dir string) ([]string, error) {
	if len(s.Samples) == 0 {
		return nil, ErrEmpty
	}
	plots := []struct {
		name string
		make func() (*plot.Plot, error)
	}{
		{AltitudePlot, s.altitudePlot},
		{ClimbRatePlot, s.climbRatePlot},
		{PhasePlot, s.phasePlot},
	}

	var files []string
	for _, pl := range plots {
		p, err := pl.make()
		if err != nil {
			return files, fmt.Errorf("%s: %w", pl.name, err)
		}
		fn := filepath.Join(dir, pl.name)
		if err := p.Save(10*vg.Inch, 5*vg.Inch, fn); err != nil {
			return files, fmt.Errorf("save %s: %w", pl.name, err)
		}
		files = append(files, fn)
	}
	return files, nil
}

func (s *Series) newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %s", s.Name, title)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

// addLine adds the series picked by y, skipping NaN values.
func (s *Series) addLine(p *plot.Plot, label string, c color.Color, y func(Sample) float64) error {
	pts := make(plotter.XYs, 0, len(s.Samples))
	for _, x := range s.Samples {
		if v := y(x); !math.IsNaN(v) {
			pts = append(pts, plotter.XY{X: x.T, Y: v})
		}
	}
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func (s *Series) altitudePlot() (*plot.Plot, error) {
	p := s.newPlot("Altitude", "Altitude (m)")
	if err := s.addLine(p, "estimate", estimateColor, func(x Sample) float64 { return x.Altitude }); err != nil {
		return nil, err
	}
	if err := s.addLine(p, "truth", truthColor, func(x Sample) float64 { return x.TrueAltitude }); err != nil {
		return nil, err
	}
	if len(s.Events) > 0 {
		pts := make(plotter.XYs, len(s.Events))
		for i, ev := range s.Events {
			pts[i] = plotter.XY{X: ev.T, Y: ev.Altitude}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = eventColor
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add("events", sc)
	}
	return p, nil
}

func (s *Series) climbRatePlot() (*plot.Plot, error) {
	p := s.newPlot("Climb rate", "Climb rate (m/s)")
	if err := s.addLine(p, "estimate", estimateColor, func(x Sample) float64 { return x.ClimbRate }); err != nil {
		return nil, err
	}
	if err := s.addLine(p, "truth", truthColor, func(x Sample) float64 { return x.TrueClimbRate }); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Series) phasePlot() (*plot.Plot, error) {
	p := s.newPlot("Flight phase", "")
	if err := s.addLine(p, "phase", estimateColor, func(x Sample) float64 { return float64(x.Phase) }); err != nil {
		return nil, err
	}
	var ticks plot.ConstantTicks
	for ph := flightphase.Standing; ph <= flightphase.Landed; ph++ {
		ticks = append(ticks, plot.Tick{Value: float64(ph), Label: ph.String()})
	}
	p.Y.Tick.Marker = ticks
	p.Y.Min = float64(flightphase.Standing) - 0.5
	p.Y.Max = float64(flightphase.Landed) + 0.5
	return p, nil
}
