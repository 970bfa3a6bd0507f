// Package ekf implements a generic extended Kalman filter. The process and
// observation models are supplied by the caller; the filter owns the state
// vector x and its covariance P and keeps P symmetric after every step.
package ekf

import (
	"fmt"
	"math"

	"github.com/skelterjohn/go.matrix"
)

// Eps is the machine epsilon used to reject ill-conditioned innovation
// covariances.
const Eps = 2.220446049250313e-16

// Filter holds the state of one extended Kalman filter instance.
// A Filter is not safe for concurrent use.
type Filter struct {
	x *matrix.DenseMatrix // State, N×1
	p *matrix.DenseMatrix // Covariance of state uncertainty, N×N
	y []float64           // Innovation from the last successful Correct

	dt float64
	g  float64

	constrain func(x []float64)
}

// Option configures a Filter.
type Option func(*Filter)

// WithConstraint installs a function applied to the state after every
// Predict and successful Correct, e.g. quaternion renormalization.
func WithConstraint(c func(x []float64)) Option {
	return func(kf *Filter) {
		kf.constrain = c
	}
}

// NewFilter returns a Filter with state x0 and covariance I·p0.
// dt and g are fixed parameters handed to the process model on every Predict.
func NewFilter(x0 []float64, p0, dt, g float64, opts ...Option) (kf *Filter, err error) {
	if len(x0) == 0 {
		return nil, fmt.Errorf("%w: empty initial state", ErrConfig)
	}
	if p0 < 0 || math.IsNaN(p0) || math.IsInf(p0, 0) {
		return nil, fmt.Errorf("%w: initial covariance scale %v", ErrConfig, p0)
	}
	if dt <= 0 || math.IsNaN(dt) {
		return nil, fmt.Errorf("%w: time step %v", ErrConfig, dt)
	}

	kf = new(Filter)
	kf.x = column(x0)
	kf.p = matrix.Scaled(matrix.Eye(len(x0)), p0)
	kf.dt = dt
	kf.g = g
	for _, opt := range opts {
		opt(kf)
	}
	kf.applyConstraint()
	return kf, nil
}

// N returns the length of the state vector.
func (kf *Filter) N() int {
	return kf.x.Rows()
}

// DT returns the fixed time step.
func (kf *Filter) DT() float64 {
	return kf.dt
}

// G returns the gravity parameter.
func (kf *Filter) G() float64 {
	return kf.g
}

// State returns a copy of the state vector.
func (kf *Filter) State() []float64 {
	return kf.x.ColCopy(0)
}

// Covariance returns a copy of P.
func (kf *Filter) Covariance() [][]float64 {
	n := kf.N()
	out := make([][]float64, n)
	for i := range out {
		out[i] = kf.p.RowCopy(i)
	}
	return out
}

// Variances returns the diagonal of P.
func (kf *Filter) Variances() []float64 {
	return kf.p.DiagonalCopy()
}

// Innovation returns the innovation z - h(x) of the last successful Correct.
func (kf *Filter) Innovation() []float64 {
	return append([]float64(nil), kf.y...)
}

// Predict advances the state with x = f(x, u, g, dt) and P = F P Fᵀ + Q.
// It fails only if the model returns outputs of the wrong shape, in which
// case the filter is left untouched.
func (kf *Filter) Predict(u []float64, model ProcessModel, noise []float64) error {
	n := kf.N()
	x := kf.State()

	xn := model.Transition(x, u, kf.g, kf.dt)
	if len(xn) != n {
		return fmt.Errorf("%w: f returned %d values, want %d", ErrDimension, len(xn), n)
	}
	f := model.TransitionJacobian(x, u, kf.g, kf.dt)
	if err := checkShape("F", f, n, n); err != nil {
		return err
	}
	q := model.ProcessNoise(x, u, noise, kf.g, kf.dt)
	if err := checkShape("Q", q, n, n); err != nil {
		return err
	}

	kf.x = column(xn)
	kf.p = matrix.Sum(matrix.Product(f, kf.p, f.Transpose()), q)
	symmetrize(kf.p)
	kf.applyConstraint()
	return nil
}

// Correct fuses the measurement z with
//
//	y = z - h(x)
//	S = H P Hᵀ + R
//	K = P Hᵀ S⁻¹
//	x = x + K y
//	P = (I - K H) P (I - K H)ᵀ + K R Kᵀ
//
// If S is singular to machine precision Correct returns ErrSingular and the
// filter keeps its pre-correct state. An empty z is a no-op.
func (kf *Filter) Correct(z []float64, model ObservationModel, noise []float64) error {
	if len(z) == 0 {
		return nil
	}
	n, m := kf.N(), len(z)
	x := kf.State()

	hx := model.Observe(x)
	if len(hx) != m {
		return fmt.Errorf("%w: h returned %d values for %d measurements", ErrDimension, len(hx), m)
	}
	h := model.ObservationJacobian(x)
	if err := checkShape("H", h, m, n); err != nil {
		return err
	}
	r := model.MeasurementNoise(noise)
	if err := checkShape("R", r, m, m); err != nil {
		return err
	}

	y := matrix.Zeros(m, 1)
	for i := range z {
		y.Set(i, 0, z[i]-hx[i])
	}

	ht := h.Transpose()
	ss := matrix.Sum(matrix.Product(h, kf.p, ht), r)
	si, err := ss.Inverse()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	if !finite(si) || oneNorm(ss)*oneNorm(si)*Eps > 1 {
		return ErrSingular
	}

	kk := matrix.Product(kf.p, ht, si)
	xn := matrix.Sum(kf.x, matrix.Product(kk, y))
	ikh := matrix.Difference(matrix.Eye(n), matrix.Product(kk, h))
	pn := matrix.Sum(
		matrix.Product(ikh, kf.p, ikh.Transpose()),
		matrix.Product(kk, r, kk.Transpose()),
	)
	symmetrize(pn)

	kf.x = xn
	kf.p = pn
	kf.y = y.ColCopy(0)
	kf.applyConstraint()
	return nil
}

// Snapshot is the serializable (x, P, dt, g) tuple of a Filter.
type Snapshot struct {
	X  []float64   `json:"x"`
	P  [][]float64 `json:"p"`
	DT float64     `json:"dt"`
	G  float64     `json:"g"`
}

// Snapshot returns a copy of the filter state.
func (kf *Filter) Snapshot() Snapshot {
	return Snapshot{X: kf.State(), P: kf.Covariance(), DT: kf.dt, G: kf.g}
}

// Verify evaluates both models once at the current state and reports the
// first output whose shape does not match the filter. It lets callers fail
// at construction time rather than on the first step.
// A nil model is skipped.
func Verify(kf *Filter, u []float64, pm ProcessModel, pnoise []float64, om ObservationModel, mnoise []float64) error {
	n := kf.N()
	x := kf.State()
	if pm != nil {
		if xn := pm.Transition(x, u, kf.g, kf.dt); len(xn) != n {
			return fmt.Errorf("%w: f returned %d values, want %d", ErrDimension, len(xn), n)
		}
		if err := checkShape("F", pm.TransitionJacobian(x, u, kf.g, kf.dt), n, n); err != nil {
			return err
		}
		if err := checkShape("Q", pm.ProcessNoise(x, u, pnoise, kf.g, kf.dt), n, n); err != nil {
			return err
		}
	}
	if om != nil {
		m := len(om.Observe(x))
		if m == 0 {
			return fmt.Errorf("%w: h returned no values", ErrDimension)
		}
		if err := checkShape("H", om.ObservationJacobian(x), m, n); err != nil {
			return err
		}
		if err := checkShape("R", om.MeasurementNoise(mnoise), m, m); err != nil {
			return err
		}
	}
	return nil
}

func (kf *Filter) applyConstraint() {
	if kf.constrain == nil {
		return
	}
	x := kf.State()
	kf.constrain(x)
	kf.x = column(x)
}

// symmetrize averages each off-diagonal pair of p in place so that
// p[i][j] == p[j][i] exactly.
func symmetrize(p *matrix.DenseMatrix) {
	n := p.Rows()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (p.Get(i, j) + p.Get(j, i)) / 2
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
	}
}

func checkShape(name string, a *matrix.DenseMatrix, rows, cols int) error {
	if a == nil {
		return fmt.Errorf("%w: %s is nil", ErrDimension, name)
	}
	if a.Rows() != rows || a.Cols() != cols {
		return fmt.Errorf("%w: %s is %dx%d, want %dx%d", ErrDimension, name, a.Rows(), a.Cols(), rows, cols)
	}
	return nil
}

func column(v []float64) *matrix.DenseMatrix {
	c := matrix.Zeros(len(v), 1)
	for i, x := range v {
		c.Set(i, 0, x)
	}
	return c
}

// oneNorm is the maximum absolute column sum.
func oneNorm(a *matrix.DenseMatrix) (norm float64) {
	for j := 0; j < a.Cols(); j++ {
		var s float64
		for i := 0; i < a.Rows(); i++ {
			s += math.Abs(a.Get(i, j))
		}
		norm = math.Max(norm, s)
	}
	return
}

func finite(a *matrix.DenseMatrix) bool {
	for i := 0; i < a.Rows(); i++ {
		for j := 0; j < a.Cols(); j++ {
			v := a.Get(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
