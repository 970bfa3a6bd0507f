// Package flightlog records flight-computer runs: a SQLite store of runs,
// per-step estimates and flight-phase events, and a CSV estimate logger.
package flightlog

import (
	"github.com/RocketScienceOfficial/rocket-nav-lib/ahrs"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
)

// Estimate is one logged step. Attitude, velocity and position are zero for
// the altitude-only model. Angles are degrees.
type Estimate struct {
	T           float64
	Phase       flightphase.Phase
	Altitude    float64
	ClimbRate   float64
	Vel         [3]float64
	Pos         [3]float64
	Roll        float64
	Pitch       float64
	Heading     float64
	AltVariance float64
	Checkpoint  string // JSON, optional
}

// FromOutput flattens one step of a flight computer.
func FromOutput(out flight.Output) Estimate {
	e := Estimate{
		T:         out.T,
		Phase:     out.Phase,
		Altitude:  out.Altitude,
		ClimbRate: out.ClimbRate,
		Vel:       out.Nav.Vel,
		Pos:       out.Nav.Pos,
	}
	switch len(out.Variances) {
	case ahrs.NavStates:
		e.AltVariance = out.Variances[ahrs.IdxPosD]
		e.Roll, e.Pitch, e.Heading = out.Nav.CalcRollPitchHeading()
	case 1:
		e.AltVariance = out.Variances[0]
	}
	return e
}

// Columns names the CSV columns of an Estimate, in Values order.
var Columns = []string{
	"T", "Phase", "Altitude", "ClimbRate",
	"VelN", "VelE", "VelD", "PosN", "PosE", "PosD",
	"Roll", "Pitch", "Heading", "AltVariance",
}

// Values returns e in Columns order, with the phase as its number.
func (e Estimate) Values() []float64 {
	return []float64{
		e.T, float64(e.Phase), e.Altitude, e.ClimbRate,
		e.Vel[0], e.Vel[1], e.Vel[2], e.Pos[0], e.Pos[1], e.Pos[2],
		e.Roll, e.Pitch, e.Heading, e.AltVariance,
	}
}
