package ekf

import (
	"github.com/skelterjohn/go.matrix"
)

// ProcessModel supplies the state transition f, its Jacobian F and the
// process noise covariance Q for a Filter.
type ProcessModel interface {
	// Transition returns f(x, u, g, dt), the next state.
	Transition(x, u []float64, g, dt float64) []float64
	// TransitionJacobian returns F(x, u, g, dt) = ∂f/∂x, N×N.
	TransitionJacobian(x, u []float64, g, dt float64) *matrix.DenseMatrix
	// ProcessNoise returns Q(x, u, noise, g, dt), N×N.
	ProcessNoise(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix
}

// ObservationModel supplies the measurement prediction h, its Jacobian H
// and the measurement noise covariance R for a Filter.
type ObservationModel interface {
	// Observe returns h(x), the predicted measurement.
	Observe(x []float64) []float64
	// ObservationJacobian returns H(x) = ∂h/∂x, M×N.
	ObservationJacobian(x []float64) *matrix.DenseMatrix
	// MeasurementNoise returns R(noise), M×M.
	MeasurementNoise(noise []float64) *matrix.DenseMatrix
}

// ProcessFuncs adapts plain functions to a ProcessModel.
type ProcessFuncs struct {
	Fn    func(x, u []float64, g, dt float64) []float64
	Jac   func(x, u []float64, g, dt float64) *matrix.DenseMatrix
	Noise func(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix
}

func (p ProcessFuncs) Transition(x, u []float64, g, dt float64) []float64 {
	return p.Fn(x, u, g, dt)
}

func (p ProcessFuncs) TransitionJacobian(x, u []float64, g, dt float64) *matrix.DenseMatrix {
	return p.Jac(x, u, g, dt)
}

func (p ProcessFuncs) ProcessNoise(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix {
	return p.Noise(x, u, noise, g, dt)
}

// ObservationFuncs adapts plain functions to an ObservationModel.
type ObservationFuncs struct {
	Fn    func(x []float64) []float64
	Jac   func(x []float64) *matrix.DenseMatrix
	Noise func(noise []float64) *matrix.DenseMatrix
}

func (o ObservationFuncs) Observe(x []float64) []float64 {
	return o.Fn(x)
}

func (o ObservationFuncs) ObservationJacobian(x []float64) *matrix.DenseMatrix {
	return o.Jac(x)
}

func (o ObservationFuncs) MeasurementNoise(noise []float64) *matrix.DenseMatrix {
	return o.Noise(noise)
}

// selected restricts an ObservationModel to a subset of its channels.
type selected struct {
	model ObservationModel
	rows  []int
}

// Select returns an ObservationModel that keeps only the channels whose
// mask entry is true, in order. The Filter never gates channels itself:
// callers build the reduced model for each step from their validity mask.
// A mask that is all true returns model unchanged.
func Select(model ObservationModel, mask []bool) ObservationModel {
	rows := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			rows = append(rows, i)
		}
	}
	if len(rows) == len(mask) {
		return model
	}
	return &selected{model: model, rows: rows}
}

// Compact returns the entries of z whose mask entry is true.
func Compact(z []float64, mask []bool) []float64 {
	out := make([]float64, 0, len(z))
	for i, v := range z {
		if i < len(mask) && mask[i] {
			out = append(out, v)
		}
	}
	return out
}

func (s *selected) Observe(x []float64) []float64 {
	h := s.model.Observe(x)
	out := make([]float64, len(s.rows))
	for i, r := range s.rows {
		if r >= len(h) {
			return nil
		}
		out[i] = h[r]
	}
	return out
}

func (s *selected) ObservationJacobian(x []float64) *matrix.DenseMatrix {
	h := s.model.ObservationJacobian(x)
	if h == nil {
		return nil
	}
	out := matrix.Zeros(len(s.rows), h.Cols())
	for i, r := range s.rows {
		if r >= h.Rows() {
			return nil
		}
		for j := 0; j < h.Cols(); j++ {
			out.Set(i, j, h.Get(r, j))
		}
	}
	return out
}

func (s *selected) MeasurementNoise(noise []float64) *matrix.DenseMatrix {
	r := s.model.MeasurementNoise(noise)
	if r == nil {
		return nil
	}
	out := matrix.Zeros(len(s.rows), len(s.rows))
	for i, ri := range s.rows {
		for j, rj := range s.rows {
			if ri >= r.Rows() || rj >= r.Cols() {
				return nil
			}
			out.Set(i, j, r.Get(ri, rj))
		}
	}
	return out
}
