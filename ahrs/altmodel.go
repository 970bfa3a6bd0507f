package ahrs

import (
	"github.com/skelterjohn/go.matrix"
)

// AltitudeModel is the reduced single-state model: the state is the fused
// altitude and it is carried forward unchanged, with no control input.
// Process noise parameters are [var_process].
type AltitudeModel struct{}

func (AltitudeModel) Transition(x, u []float64, g, dt float64) []float64 {
	if len(x) != 1 {
		return nil
	}
	return []float64{x[0]}
}

func (AltitudeModel) TransitionJacobian(x, u []float64, g, dt float64) *matrix.DenseMatrix {
	return matrix.Eye(1)
}

func (AltitudeModel) ProcessNoise(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix {
	if len(noise) < 1 {
		return nil
	}
	return matrix.Diagonal([]float64{noise[0]})
}

// AltitudeObservation sees the altitude through GPS and barometer:
// h(x) = [x, x]. Measurement noise parameters are [var_gps, var_baro].
type AltitudeObservation struct{}

func (AltitudeObservation) Observe(x []float64) []float64 {
	if len(x) != 1 {
		return nil
	}
	return []float64{x[0], x[0]}
}

func (AltitudeObservation) ObservationJacobian(x []float64) *matrix.DenseMatrix {
	return matrix.MakeDenseMatrix([]float64{1, 1}, AltChannels, 1)
}

func (AltitudeObservation) MeasurementNoise(noise []float64) *matrix.DenseMatrix {
	if len(noise) < 2 {
		return nil
	}
	return matrix.Diagonal([]float64{noise[0], noise[1]})
}
