package ahrs

import (
	"fmt"
	"math"

	"github.com/westphae/quaternion"
)

// NavState is a named view of the 13-element navigation state vector.
// Earth frame is NED: 1 is north; 2 is east; 3 is down.
type NavState struct {
	Attitude quaternion.Quaternion // Rotates body frame to earth frame
	Vel      [3]float64            // Velocity, earth frame, m/s
	Pos      [3]float64            // Position relative to origin, earth frame, m
	Mag      [3]float64            // Magnetic field reference, earth frame, sensor units
}

// NewNavState reads a state vector into a NavState.
func NewNavState(x []float64) (s NavState, err error) {
	if len(x) != NavStates {
		return s, fmt.Errorf("ahrs: navigation state has %d values, want %d", len(x), NavStates)
	}
	s.Attitude = quaternion.New(x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ])
	copy(s.Vel[:], x[IdxVelN:IdxVelN+3])
	copy(s.Pos[:], x[IdxPosN:IdxPosN+3])
	copy(s.Mag[:], x[IdxMagN:IdxMagN+3])
	return s, nil
}

// Vector returns the state vector for s.
func (s NavState) Vector() []float64 {
	x := make([]float64, NavStates)
	x[IdxQW], x[IdxQX], x[IdxQY], x[IdxQZ] = s.Attitude.W, s.Attitude.X, s.Attitude.Y, s.Attitude.Z
	copy(x[IdxVelN:], s.Vel[:])
	copy(x[IdxPosN:], s.Pos[:])
	copy(x[IdxMagN:], s.Mag[:])
	return x
}

// Altitude returns the height above the origin, m.
func (s NavState) Altitude() float64 {
	return -s.Pos[2]
}

// ClimbRate returns the vertical speed, positive up, m/s.
func (s NavState) ClimbRate() float64 {
	return -s.Vel[2]
}

// Speed returns the magnitude of the velocity, m/s.
func (s NavState) Speed() float64 {
	return math.Sqrt(s.Vel[0]*s.Vel[0] + s.Vel[1]*s.Vel[1] + s.Vel[2]*s.Vel[2])
}

// CalcRollPitchHeading returns the current roll, pitch and heading
// estimates for the NavState, in degrees.
func (s NavState) CalcRollPitchHeading() (roll float64, pitch float64, heading float64) {
	roll, pitch, heading = Regularize(ToEuler(s.Attitude))
	return roll / Deg, pitch / Deg, heading / Deg
}

// InitialNavState seeds a navigation state from one accelerometer and one
// magnetometer sample taken at rest: the attitude takes the measured
// specific force onto earth-frame up, and the magnetic reference is the
// magnetometer reading rotated into the earth frame.
func InitialNavState(accel, mag [3]float64) (s NavState, err error) {
	up := [3]float64{0, 0, -1}
	q, err := FromTwoVectors(accel, up)
	if err != nil {
		return s, fmt.Errorf("ahrs: initial attitude: %w", err)
	}
	s.Attitude = q
	s.Mag = RotateVector(q, mag)
	return s, nil
}

// CalcRollPitchHeadingUncertainty returns the standard deviations of roll,
// pitch and heading in degrees, given the diagonal of the state covariance.
func (s NavState) CalcRollPitchHeadingUncertainty(variances []float64) (droll, dpitch, dheading float64) {
	if len(variances) < 4 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	var sd [4]float64
	for i := range sd {
		sd[i] = math.Sqrt(math.Max(variances[IdxQW+i], 0))
	}
	droll, dpitch, dheading = EulerStdDev(s.Attitude, sd)
	return droll / Deg, dpitch / Deg, dheading / Deg
}
