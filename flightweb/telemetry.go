// Package flightweb streams flight-computer telemetry over websockets. A
// Room relays every message it receives to all joined clients; a Client
// dials a Room and sends one Telemetry message per step.
package flightweb

import (
	"math"

	"github.com/RocketScienceOfficial/rocket-nav-lib/ahrs"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flight"
	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
)

const (
	Port = 8000
	Path = "/telemetry"
)

// Telemetry is the JSON message sent for every step. Angles are degrees.
type Telemetry struct {
	T         float64    `json:"t"`
	Phase     string     `json:"phase"`
	Altitude  float64    `json:"altitude"`
	ClimbRate float64    `json:"climb_rate"`
	Vel       [3]float64 `json:"vel"`
	Pos       [3]float64 `json:"pos"`
	Mag       [3]float64 `json:"mag"`
	Roll      float64    `json:"roll"`
	Pitch     float64    `json:"pitch"`
	Heading   float64    `json:"heading"`
	DRoll     float64    `json:"droll"`
	DPitch    float64    `json:"dpitch"`
	DHeading  float64    `json:"dheading"`
	Accel     [3]float64 `json:"accel"`
	Gyro      [3]float64 `json:"gyro"`
	Variances []float64  `json:"variances"`

	Event      *flightphase.Event `json:"event,omitempty"`
	CorrectErr string             `json:"correct_err,omitempty"`
}

// NewTelemetry builds the message for one step.
func NewTelemetry(out flight.Output) Telemetry {
	tel := Telemetry{
		T:         out.T,
		Phase:     out.Phase.String(),
		Altitude:  out.Altitude,
		ClimbRate: out.ClimbRate,
		Accel:     out.Accel,
		Gyro:      out.Gyro,
		Variances: clean(out.Variances),
		Event:     out.Event,
	}
	if len(out.Variances) == ahrs.NavStates {
		tel.Vel, tel.Pos, tel.Mag = out.Nav.Vel, out.Nav.Pos, out.Nav.Mag
		tel.Roll, tel.Pitch, tel.Heading = out.Nav.CalcRollPitchHeading()
		tel.DRoll, tel.DPitch, tel.DHeading = out.Nav.CalcRollPitchHeadingUncertainty(out.Variances)
		tel.DRoll, tel.DPitch, tel.DHeading = finite(tel.DRoll), finite(tel.DPitch), finite(tel.DHeading)
	}
	if out.CorrectErr != nil {
		tel.CorrectErr = out.CorrectErr.Error()
	}
	return tel
}

// JSON cannot carry NaN or Inf
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clean(v []float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = finite(v[i])
	}
	return out
}
