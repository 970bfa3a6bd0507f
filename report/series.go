// Package report renders a flight run as plots, an HTML chart and error
// statistics against the simulated truth.
package report

import (
	"math"

	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
	"github.com/RocketScienceOfficial/rocket-nav-lib/sim"
)

// Sample is one step of a run. The truth fields are NaN when the run has no truth.
type Sample struct {
	T             float64
	Altitude      float64
	ClimbRate     float64
	Phase         flightphase.Phase
	TrueAltitude  float64
	TrueClimbRate float64
}

// Series collects the estimates of one run.
type Series struct {
	Name    string
	Samples []Sample
	Events  []flightphase.Event
}

func NewSeries(name string) *Series {
	return &Series{Name: name}
}

// Add appends an estimate with no truth.
func (s *Series) Add(out flight.Output) {
	s.add(out, math.NaN(), math.NaN())
}

// AddTruth appends an estimate and the true state at the same step.
func (s *Series) AddTruth(out flight.Output, tr sim.Truth) {
	s.add(out, tr.Altitude(), -tr.Vel[2])
}

func (s *Series) add(out flight.Output, alt, climb float64) {
	s.Samples = append(s.Samples, Sample{
		T:             out.T,
		Altitude:      out.Altitude,
		ClimbRate:     out.ClimbRate,
		Phase:         out.Phase,
		TrueAltitude:  alt,
		TrueClimbRate: climb,
	})
	if out.Event != nil {
		s.Events = append(s.Events, *out.Event)
	}
}

// HasTruth reports whether every sample carries the true state.
func (s *Series) HasTruth() bool {
	if len(s.Samples) == 0 {
		return false
	}
	for _, x := range s.Samples {
		if math.IsNaN(x.TrueAltitude) || math.IsNaN(x.TrueClimbRate) {
			return false
		}
	}
	return true
}

// Apogee returns the highest estimated altitude and its time.
func (s *Series) Apogee() (t, alt float64) {
	alt = math.Inf(-1)
	for _, x := range s.Samples {
		if x.Altitude > alt {
			t, alt = x.T, x.Altitude
		}
	}
	return t, alt
}
