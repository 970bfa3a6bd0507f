package ahrs

import (
	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
)

// NavModel is the 13-state strapdown process model.
//
// State x = [q_w q_x q_y q_z, vel_n vel_e vel_d, pos_n pos_e pos_d, mag_n mag_e mag_d]
// with q rotating body to earth (NED). Control u = [acc_x acc_y acc_z, gyr_x gyr_y gyr_z]
// in the body frame, m/s² and rad/s. g is added to the down axis of the
// rotated specific force, so it is +G for an accelerometer that reads -G on
// the down axis at rest.
//
// Process noise parameters are [var_acc, var_gyr].
type NavModel struct{}

// Transition integrates one step:
//
//	q'   = q ⊗ [1, ωx·dt/2, ωy·dt/2, ωz·dt/2]
//	vel' = vel + (R(q)·a + [0,0,g])·dt
//	pos' = pos + vel·dt
//	mag' = mag
func (NavModel) Transition(x, u []float64, g, dt float64) []float64 {
	if len(x) != NavStates || len(u) != NavControls {
		return nil
	}
	q := quaternion.New(x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ])
	dq := quaternion.New(1, u[CtlGyrX]*dt/2, u[CtlGyrY]*dt/2, u[CtlGyrZ]*dt/2)
	qn := Multiply(q, dq)
	acc := RotateVector(q, [3]float64{u[CtlAccX], u[CtlAccY], u[CtlAccZ]})
	acc[2] += g

	xn := make([]float64, NavStates)
	xn[IdxQW], xn[IdxQX], xn[IdxQY], xn[IdxQZ] = qn.W, qn.X, qn.Y, qn.Z
	for i := 0; i < 3; i++ {
		xn[IdxVelN+i] = x[IdxVelN+i] + acc[i]*dt
		xn[IdxPosN+i] = x[IdxPosN+i] + x[IdxVelN+i]*dt
		xn[IdxMagN+i] = x[IdxMagN+i]
	}
	return xn
}

// TransitionJacobian returns ∂f/∂x.
func (NavModel) TransitionJacobian(x, u []float64, g, dt float64) *matrix.DenseMatrix {
	if len(x) != NavStates || len(u) != NavControls {
		return nil
	}
	q0, q1, q2, q3 := x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ]
	a0, a1, a2 := u[CtlAccX], u[CtlAccY], u[CtlAccZ]
	wx, wy, wz := u[CtlGyrX]*dt/2, u[CtlGyrY]*dt/2, u[CtlGyrZ]*dt/2

	f := matrix.Eye(NavStates)

	// Quaternion integration, q ⊗ w as a linear map of q
	dqdq := [4][4]float64{
		{1, -wx, -wy, -wz},
		{wx, 1, wz, -wy},
		{wy, -wz, 1, wx},
		{wz, wy, -wx, 1},
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			f.Set(IdxQW+i, IdxQW+j, dqdq[i][j])
		}
	}

	// Velocity w.r.t. attitude: dt·∂(R(q)·a)/∂q
	dvdq := [3][4]float64{
		{
			-2*a1*q3 + 2*a2*q2,
			2*a1*q2 + 2*a2*q3,
			-4*a0*q2 + 2*a1*q1 + 2*a2*q0,
			-4*a0*q3 - 2*a1*q0 + 2*a2*q1,
		},
		{
			2*a0*q3 - 2*a2*q1,
			2*a0*q2 - 4*a1*q1 - 2*a2*q0,
			2*a0*q1 + 2*a2*q3,
			2*a0*q0 - 4*a1*q3 + 2*a2*q2,
		},
		{
			-2*a0*q2 + 2*a1*q1,
			2*a0*q3 + 2*a1*q0 - 4*a2*q1,
			-2*a0*q0 + 2*a1*q3 - 4*a2*q2,
			2*a0*q1 + 2*a1*q2,
		},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			f.Set(IdxVelN+i, IdxQW+j, dvdq[i][j]*dt)
		}
		// Position w.r.t. velocity
		f.Set(IdxPosN+i, IdxVelN+i, dt)
	}
	return f
}

// ControlJacobian returns ∂f/∂u, 13×6.
func (NavModel) ControlJacobian(x, u []float64, g, dt float64) *matrix.DenseMatrix {
	if len(x) != NavStates || len(u) != NavControls {
		return nil
	}
	q := quaternion.New(x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ])
	h := dt / 2

	gg := matrix.Zeros(NavStates, NavControls)

	dqdw := [4][3]float64{
		{-q.X, -q.Y, -q.Z},
		{q.W, -q.Z, q.Y},
		{q.Z, q.W, -q.X},
		{-q.Y, q.X, q.W},
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			gg.Set(IdxQW+i, CtlGyrX+j, dqdw[i][j]*h)
		}
	}

	r := RotationMatrix(q)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			gg.Set(IdxVelN+i, CtlAccX+j, r[i][j]*dt)
		}
	}
	return gg
}

// ProcessNoise returns Q = G·diag(var_acc×3, var_gyr×3)·Gᵀ with G = ∂f/∂u.
func (m NavModel) ProcessNoise(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix {
	if len(noise) < 2 {
		return nil
	}
	gg := m.ControlJacobian(x, u, g, dt)
	if gg == nil {
		return nil
	}
	sigma := matrix.Diagonal([]float64{noise[0], noise[0], noise[0], noise[1], noise[1], noise[1]})
	return matrix.Product(gg, sigma, gg.Transpose())
}

// NavObservation observes GPS position, barometric down position and the
// body-frame magnetic field:
//
//	h(x) = [pos_n, pos_e, pos_d, pos_d, R(q)ᵀ·mag]
//
// The magnetometer rows tie the attitude to the earth-frame reference, so
// heading and the tilt about any axis other than the field direction are
// observable.
//
// Measurement noise parameters are [var_gps, var_baro, var_mag].
type NavObservation struct{}

var navPositionRows = [ChanMagX]int{
	ChanGPSN: IdxPosN,
	ChanGPSE: IdxPosE,
	ChanGPSD: IdxPosD,
	ChanBaro: IdxPosD,
}

// rotation returns R(q) for the quaternion part of x.
func rotation(x []float64) [3][3]float64 {
	return RotationMatrix(quaternion.New(x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ]))
}

// rotationPartials returns ∂R/∂q_j for j over w, x, y, z.
func rotationPartials(x []float64) [4][3][3]float64 {
	q0, q1, q2, q3 := 2*x[IdxQW], 2*x[IdxQX], 2*x[IdxQY], 2*x[IdxQZ]
	return [4][3][3]float64{
		{
			{0, -q3, q2},
			{q3, 0, -q1},
			{-q2, q1, 0},
		},
		{
			{0, q2, q3},
			{q2, -2 * q1, -q0},
			{q3, q0, -2 * q1},
		},
		{
			{-2 * q2, q1, q0},
			{q1, 0, q3},
			{-q0, q3, -2 * q2},
		},
		{
			{-2 * q3, -q0, q1},
			{q0, -2 * q3, q2},
			{q1, q2, 0},
		},
	}
}

func (NavObservation) Observe(x []float64) []float64 {
	if len(x) != NavStates {
		return nil
	}
	z := make([]float64, NavChannels)
	for i, j := range navPositionRows {
		z[i] = x[j]
	}
	r := rotation(x)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			z[ChanMagX+i] += r[k][i] * x[IdxMagN+k]
		}
	}
	return z
}

func (NavObservation) ObservationJacobian(x []float64) *matrix.DenseMatrix {
	if len(x) != NavStates {
		return nil
	}
	h := matrix.Zeros(NavChannels, NavStates)
	for i, j := range navPositionRows {
		h.Set(i, j, 1)
	}
	r := rotation(x)
	dr := rotationPartials(x)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			h.Set(ChanMagX+i, IdxMagN+k, r[k][i])
		}
		for j := 0; j < 4; j++ {
			var d float64
			for k := 0; k < 3; k++ {
				d += dr[j][k][i] * x[IdxMagN+k]
			}
			h.Set(ChanMagX+i, IdxQW+j, d)
		}
	}
	return h
}

func (NavObservation) MeasurementNoise(noise []float64) *matrix.DenseMatrix {
	if len(noise) < 3 {
		return nil
	}
	gps, baro, mag := noise[0], noise[1], noise[2]
	return matrix.Diagonal([]float64{gps, gps, gps, baro, mag, mag, mag})
}

// NormalizeAttitude rescales the quaternion part of a navigation state to
// unit norm in place. It is meant to be installed with ekf.WithConstraint.
// A zero quaternion is left alone.
func NormalizeAttitude(x []float64) {
	if len(x) < 4 {
		return
	}
	q, err := Normalize(quaternion.New(x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ]))
	if err != nil {
		return
	}
	x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ] = q.W, q.X, q.Y, q.Z
}
