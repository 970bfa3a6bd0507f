package ahrs

import (
	"log"
	"math"
	"math/rand"
	"testing"

	"github.com/skelterjohn/go.matrix"
	"github.com/westphae/quaternion"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func randomNavState(r *rand.Rand) []float64 {
	x := make([]float64, NavStates)
	for i := range x {
		x[i] = r.NormFloat64()
	}
	NormalizeAttitude(x)
	return x
}

func randomControl(r *rand.Rand) []float64 {
	u := make([]float64, NavControls)
	for i := 0; i < 3; i++ {
		u[CtlAccX+i] = r.NormFloat64() * 20
		u[CtlGyrX+i] = r.NormFloat64() * 2
	}
	return u
}

// compare reports every entry of the closed-form Jacobian that differs from
// the numerical one by more than tol.
func compare(t *testing.T, name string, got *matrix.DenseMatrix, want *mat.Dense, tol float64) {
	t.Helper()
	rows, cols := want.Dims()
	if got.Rows() != rows || got.Cols() != cols {
		t.Fatalf("%s is %dx%d, want %dx%d", name, got.Rows(), got.Cols(), rows, cols)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.Abs(got.Get(i, j)-want.At(i, j)) > tol {
				log.Printf("Error in %s %2d,%2d: Calc %6f, Jacobian was %6f\n", name, i, j, want.At(i, j), got.Get(i, j))
				t.Fail()
			}
		}
	}
}

func TestJacobianState(t *testing.T) {
	const dt, g = 0.01, G
	r := rand.New(rand.NewSource(5))
	var m NavModel
	for n := 0; n < 20; n++ {
		x := randomNavState(r)
		u := randomControl(r)

		num := mat.NewDense(NavStates, NavStates, nil)
		fd.Jacobian(num, func(y, xx []float64) {
			copy(y, m.Transition(xx, u, g, dt))
		}, x, &fd.JacobianSettings{Formula: fd.Central})

		compare(t, "F", m.TransitionJacobian(x, u, g, dt), num, 1e-6)
	}
}

func TestJacobianControl(t *testing.T) {
	const dt, g = 0.01, G
	r := rand.New(rand.NewSource(6))
	var m NavModel
	for n := 0; n < 20; n++ {
		x := randomNavState(r)
		u := randomControl(r)

		num := mat.NewDense(NavStates, NavControls, nil)
		fd.Jacobian(num, func(y, uu []float64) {
			copy(y, m.Transition(x, uu, g, dt))
		}, u, &fd.JacobianSettings{Formula: fd.Central})

		compare(t, "G", m.ControlJacobian(x, u, g, dt), num, 1e-6)
	}
}

func TestJacobianMeasurement(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	var o NavObservation
	for n := 0; n < 20; n++ {
		x := randomNavState(r)

		num := mat.NewDense(NavChannels, NavStates, nil)
		fd.Jacobian(num, func(y, xx []float64) {
			copy(y, o.Observe(xx))
		}, x, &fd.JacobianSettings{Formula: fd.Central})

		compare(t, "H", o.ObservationJacobian(x), num, 1e-6)
	}
}

func TestObserveMagBodyFrame(t *testing.T) {
	var o NavObservation
	s := NavState{Attitude: quaternion.Identity(), Mag: [3]float64{0.5, 0, 0.3}}
	z := o.Observe(s.Vector())
	for i := 0; i < 3; i++ {
		if notSmall(z[ChanMagX+i] - s.Mag[i]) {
			t.Errorf("level, north: mag %d = %f, want %f", i, z[ChanMagX+i], s.Mag[i])
		}
	}

	// Facing east, the northern field comes in from the left
	s.Attitude = FromEuler(0, 0, Pi/2)
	z = o.Observe(s.Vector())
	want := [3]float64{0, -0.5, 0.3}
	for i := 0; i < 3; i++ {
		if math.Abs(z[ChanMagX+i]-want[i]) > 1e-9 {
			t.Errorf("facing east: mag %d = %f, want %f", i, z[ChanMagX+i], want[i])
		}
	}

	// The rotated reading agrees with RotateVector
	s.Attitude = FromEuler(0.3, -0.2, 1.1)
	z = o.Observe(s.Vector())
	back := RotateVector(s.Attitude, [3]float64{z[ChanMagX], z[ChanMagY], z[ChanMagZ]})
	for i := 0; i < 3; i++ {
		if math.Abs(back[i]-s.Mag[i]) > 1e-9 {
			t.Errorf("round trip: mag %d = %f, want %f", i, back[i], s.Mag[i])
		}
	}
}

func TestProcessNoise(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	var m NavModel
	x := randomNavState(r)
	u := randomControl(r)
	q := m.ProcessNoise(x, u, []float64{0.1, 0.01}, G, 0.01)
	if q == nil || q.Rows() != NavStates || q.Cols() != NavStates {
		t.Fatalf("Q has wrong shape")
	}
	for i := 0; i < NavStates; i++ {
		if q.Get(i, i) < 0 {
			t.Errorf("Q[%d][%d] = %f is negative", i, i, q.Get(i, i))
		}
		for j := 0; j < NavStates; j++ {
			if notSmall(q.Get(i, j) - q.Get(j, i)) {
				t.Errorf("Q not symmetric at %d,%d", i, j)
			}
		}
	}
	// Velocity noise is var_acc·dt² per axis since R(q) is orthonormal
	for i := 0; i < 3; i++ {
		if v := q.Get(IdxVelN+i, IdxVelN+i); notSmall(v - 0.1*0.01*0.01) {
			t.Errorf("velocity noise %d = %g, want %g", i, v, 0.1*0.01*0.01)
		}
	}
	// Position and magnetic reference are not driven by the controls
	for i := IdxPosN; i < NavStates; i++ {
		if q.Get(i, i) != 0 {
			t.Errorf("Q[%d][%d] = %g, want 0", i, i, q.Get(i, i))
		}
	}

	if m.ProcessNoise(x, u, []float64{0.1}, G, 0.01) != nil {
		t.Errorf("ProcessNoise accepted a short parameter list")
	}
}

func TestTransitionAtRest(t *testing.T) {
	var m NavModel
	s := NavState{Attitude: FromEuler(0, 0, 0.7), Pos: [3]float64{1, 2, -3}, Mag: [3]float64{0.2, 0, 0.4}}
	x := s.Vector()
	// Level and still: the accelerometer reads -G on the body down axis
	u := []float64{0, 0, -G, 0, 0, 0}
	for i := 0; i < 1000; i++ {
		x = m.Transition(x, u, G, 0.01)
	}
	for i := range x {
		if notSmall(x[i] - s.Vector()[i]) {
			t.Errorf("state %d drifted at rest: %f -> %f", i, s.Vector()[i], x[i])
		}
	}
}

func TestTransitionFreeFall(t *testing.T) {
	var m NavModel
	x := NavState{Attitude: FromEuler(0.2, -0.1, 1.2)}.Vector()
	u := []float64{0, 0, 0, 0, 0, 0}
	const dt = 0.001
	for i := 0; i < 1000; i++ {
		x = m.Transition(x, u, G, dt)
	}
	s, err := NewNavState(x)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.Vel[2]-G) > 1e-6 {
		t.Errorf("after 1 s of free fall vel_d = %f, want %f", s.Vel[2], G)
	}
	// Explicit Euler lags the exact ½gt² by ½g·dt·t
	if math.Abs(s.Pos[2]-G/2) > G*dt {
		t.Errorf("after 1 s of free fall pos_d = %f, want %f", s.Pos[2], G/2)
	}
	if math.Abs(s.Altitude()+s.Pos[2]) > 0 || s.ClimbRate() >= 0 {
		t.Errorf("altitude and climb rate must be positive up")
	}
}

func TestTransitionRotation(t *testing.T) {
	var m NavModel
	x := NavState{Attitude: quaternion.Identity()}.Vector()
	// Quarter turn about the body down axis, in 1000 small steps
	u := []float64{0, 0, -G, 0, 0, Pi / 2}
	for i := 0; i < 1000; i++ {
		x = m.Transition(x, u, G, 0.001)
		NormalizeAttitude(x)
	}
	s, _ := NewNavState(x)
	_, _, yaw := s.CalcRollPitchHeading()
	if math.Abs(yaw-90) > 1e-3 {
		t.Errorf("heading after quarter turn = %f, want 90", yaw)
	}
}

func TestNormalizeAttitude(t *testing.T) {
	x := make([]float64, NavStates)
	x[IdxQW], x[IdxQY] = 3, 4
	NormalizeAttitude(x)
	if notSmall(x[IdxQW]-0.6) || notSmall(x[IdxQY]-0.8) {
		t.Errorf("NormalizeAttitude gave %v", x[:4])
	}
	zero := make([]float64, NavStates)
	NormalizeAttitude(zero)
	for _, v := range zero {
		if v != 0 {
			t.Errorf("zero quaternion modified: %v", zero)
		}
	}
}

func TestInitialNavState(t *testing.T) {
	// Body pitched nose up by 30°: gravity shows on the body x and z axes
	pitch := 30 * Deg
	accel := [3]float64{G * math.Sin(pitch), 0, -G * math.Cos(pitch)}
	s, err := InitialNavState(accel, [3]float64{0.3, 0, 0.1})
	if err != nil {
		t.Fatal(err)
	}
	up := RotateVector(s.Attitude, accel)
	if notSmall(up[0]) || notSmall(up[1]) || notSmall(up[2]+G) {
		t.Errorf("measured specific force rotated to %v, want [0 0 %f]", up, -G)
	}
	if _, err := InitialNavState([3]float64{}, [3]float64{}); err == nil {
		t.Errorf("expected error for zero accelerometer reading")
	}
}

func TestNavStateRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	x := randomNavState(r)
	s, err := NewNavState(x)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range s.Vector() {
		if v != x[i] {
			t.Errorf("index %d: %f != %f", i, v, x[i])
		}
	}
	if _, err := NewNavState(x[:5]); err == nil {
		t.Errorf("expected error for short state")
	}
}
