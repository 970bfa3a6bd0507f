package report

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrorStats summarizes estimate minus truth over a run.
type ErrorStats struct {
	Channel string
	N       int
	Mean    float64
	StdDev  float64
	RMS     float64
	MaxAbs  float64
}

// Errors returns the altitude and climb-rate error statistics, skipping
// samples without truth. A channel with no samples has NaN statistics.
func (s *Series) Errors() []ErrorStats {
	var alt, climb []float64
	for _, x := range s.Samples {
		if !math.IsNaN(x.TrueAltitude) {
			alt = append(alt, x.Altitude-x.TrueAltitude)
		}
		if !math.IsNaN(x.TrueClimbRate) {
			climb = append(climb, x.ClimbRate-x.TrueClimbRate)
		}
	}
	return []ErrorStats{
		errorStats("altitude", alt),
		errorStats("climb_rate", climb),
	}
}

func errorStats(name string, e []float64) ErrorStats {
	es := ErrorStats{Channel: name, N: len(e)}
	if len(e) == 0 {
		es.Mean, es.StdDev, es.RMS, es.MaxAbs = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return es
	}
	es.Mean, es.StdDev = stat.MeanStdDev(e, nil)
	if len(e) == 1 {
		es.StdDev = 0
	}
	es.RMS = math.Sqrt(floats.Dot(e, e) / float64(len(e)))
	for _, v := range e {
		es.MaxAbs = math.Max(es.MaxAbs, math.Abs(v))
	}
	return es
}
