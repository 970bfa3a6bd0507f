package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders an HTML page with altitude and climb-rate line charts.
// Truth lines are drawn only when every sample has truth.
func (s *Series) WriteChart(w io.Writer) error {
	if len(s.Samples) == 0 {
		return ErrEmpty
	}
	x := make([]string, len(s.Samples))
	for i, smp := range s.Samples {
		x[i] = strconv.FormatFloat(smp.T, 'f', 2, 64)
	}
	truth := s.HasTruth()

	alt := s.lineChart("Altitude", "m", x)
	alt.AddSeries("estimate", s.lineData(func(x Sample) float64 { return x.Altitude }))
	if truth {
		alt.AddSeries("truth", s.lineData(func(x Sample) float64 { return x.TrueAltitude }))
	}

	climb := s.lineChart("Climb rate", "m/s", x)
	climb.AddSeries("estimate", s.lineData(func(x Sample) float64 { return x.ClimbRate }))
	if truth {
		climb.AddSeries("truth", s.lineData(func(x Sample) float64 { return x.TrueClimbRate }))
	}

	page := components.NewPage()
	page.AddCharts(alt, climb)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func (s *Series) lineChart(title, unit string, x []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.Name, Width: "1200px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: s.eventSummary()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
	)
	line.SetXAxis(x)
	return line
}

func (s *Series) lineData(y func(Sample) float64) []opts.LineData {
	data := make([]opts.LineData, len(s.Samples))
	for i, smp := range s.Samples {
		data[i] = opts.LineData{Value: y(smp)}
	}
	return data
}

func (s *Series) eventSummary() (sum string) {
	for i, ev := range s.Events {
		if i > 0 {
			sum += ", "
		}
		sum += fmt.Sprintf("%s %.2fs", ev.Kind, ev.T)
	}
	return sum
}
