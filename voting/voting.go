// Package voting fuses the readings of redundant sensors that measure the
// same quantity. Readings at or beyond their sensor's saturation threshold
// are excluded and the rest are combined by inverse-variance weighting.
package voting

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrConfig reports an unusable voter configuration.
	ErrConfig = errors.New("voting: bad configuration")
	// ErrReadings reports a reading count that does not match the configuration.
	ErrReadings = errors.New("voting: wrong number of readings")
)

// Result is the outcome of one vote.
// When every reading was excluded OK is false and Value and Variance are 0.
type Result struct {
	Value    float64
	Variance float64
	Used     int  // Number of readings that took part
	OK       bool // At least one reading took part
}

// Valid reports whether r carries a usable fused reading.
func (r Result) Valid() bool {
	return r.OK
}

// Voter holds the fixed per-sensor thresholds and variances.
// A Voter keeps no state between votes and is safe for concurrent use.
type Voter struct {
	thresholds []float64
	variances  []float64
}

// New returns a Voter for len(thresholds) redundant sensors.
// Sensor i is saturated when |reading| >= thresholds[i]; an infinite
// threshold never saturates.
func New(thresholds, variances []float64) (*Voter, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("%w: no sensors", ErrConfig)
	}
	if len(thresholds) != len(variances) {
		return nil, fmt.Errorf("%w: %d thresholds but %d variances", ErrConfig, len(thresholds), len(variances))
	}
	for i := range thresholds {
		if math.IsNaN(thresholds[i]) {
			return nil, fmt.Errorf("%w: threshold %d is NaN", ErrConfig, i)
		}
		if !(variances[i] > 0) || math.IsInf(variances[i], 0) {
			return nil, fmt.Errorf("%w: variance %d is %v", ErrConfig, i, variances[i])
		}
	}
	return &Voter{
		thresholds: append([]float64(nil), thresholds...),
		variances:  append([]float64(nil), variances...),
	}, nil
}

// Sensors returns the number of redundant sensors the Voter expects.
func (v *Voter) Sensors() int {
	return len(v.thresholds)
}

// Vote fuses one reading per sensor:
//
//	value    = Σ(r/σ²) / Σ(1/σ²)
//	variance = 1 / Σ(1/σ²)
//
// over the readings with |r| < threshold. A NaN reading never takes part.
func (v *Voter) Vote(readings []float64) (res Result, err error) {
	if len(readings) != len(v.thresholds) {
		return res, fmt.Errorf("%w: got %d, want %d", ErrReadings, len(readings), len(v.thresholds))
	}

	var num, den float64
	for i, r := range readings {
		if !(math.Abs(r) < v.thresholds[i]) {
			continue
		}
		w := 1 / v.variances[i]
		num += r * w
		den += w
		res.Used++
	}
	if res.Used == 0 {
		return res, nil
	}
	res.Value = num / den
	res.Variance = 1 / den
	res.OK = true
	return res, nil
}

// VoteAxes votes each axis of a 3-axis sensor group independently, so one
// saturated axis of a sensor does not exclude its other axes.
func (v *Voter) VoteAxes(readings [][3]float64) (res [3]Result, err error) {
	if len(readings) != len(v.thresholds) {
		return res, fmt.Errorf("%w: got %d, want %d", ErrReadings, len(readings), len(v.thresholds))
	}
	axis := make([]float64, len(readings))
	for j := 0; j < 3; j++ {
		for i := range readings {
			axis[i] = readings[i][j]
		}
		if res[j], err = v.Vote(axis); err != nil {
			return res, err
		}
	}
	return res, nil
}
