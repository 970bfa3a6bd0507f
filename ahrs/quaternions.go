package ahrs

import (
	"math"

	"github.com/westphae/quaternion"
)

// Normalize returns q scaled to unit norm.
// A zero quaternion cannot be normalized and yields ErrDegenerateQuaternion;
// callers must reject such input upstream rather than clamp it.
func Normalize(q quaternion.Quaternion) (quaternion.Quaternion, error) {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) {
		return q, ErrDegenerateQuaternion
	}
	return q.Scale(1 / n), nil
}

// Multiply returns the Hamilton product p⊗q.
func Multiply(p, q quaternion.Quaternion) quaternion.Quaternion {
	return quaternion.Prod(p, q)
}

// RotationMatrix returns the body→earth rotation matrix of q, expanded
// without normalizing q so that it agrees term for term with the
// navigation model Jacobians.
func RotationMatrix(q quaternion.Quaternion) [3][3]float64 {
	return q.RotMatUnit()
}

// RotateVector rotates v from the body frame to the earth frame.
func RotateVector(q quaternion.Quaternion, v [3]float64) (out [3]float64) {
	r := RotationMatrix(q)
	for i := 0; i < 3; i++ {
		out[i] = r[i][0]*v[0] + r[i][1]*v[1] + r[i][2]*v[2]
	}
	return
}

// FromTwoVectors returns the minimal rotation taking the direction of a onto
// the direction of b: the normalized quaternion [|a||b| + a·b, a×b].
// When a and b are anti-parallel the formula has no axis, so the result is
// a half turn about an axis orthogonal to a.
func FromTwoVectors(a, b [3]float64) (quaternion.Quaternion, error) {
	va := quaternion.Vec3{X: a[0], Y: a[1], Z: a[2]}
	vb := quaternion.Vec3{X: b[0], Y: b[1], Z: b[2]}
	na, nb := va.Norm(), vb.Norm()
	if na < Small || nb < Small {
		return quaternion.Quaternion{}, ErrDegenerateVector
	}

	w := na*nb + va.Dot(vb)
	if w <= Small*na*nb {
		axis := orthogonal(va)
		return quaternion.Pure(axis.X, axis.Y, axis.Z), nil
	}
	c := va.Cross(vb)
	return Normalize(quaternion.New(w, c.X, c.Y, c.Z))
}

// orthogonal returns a unit vector perpendicular to v, built from the basis
// vector least aligned with v.
func orthogonal(v quaternion.Vec3) quaternion.Vec3 {
	x, y, z := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	var e quaternion.Vec3
	switch {
	case x <= y && x <= z:
		e = quaternion.Vec3{X: 1}
	case y <= z:
		e = quaternion.Vec3{Y: 1}
	default:
		e = quaternion.Vec3{Z: 1}
	}
	return v.Cross(e).Normalize()
}

// ToEuler returns roll, pitch and yaw in radians for the body→earth
// quaternion q (NED convention, yaw measured from north).
func ToEuler(q quaternion.Quaternion) (roll, pitch, yaw float64) {
	return q.Euler()
}

// FromEuler returns the body→earth quaternion for roll, pitch and yaw in
// radians.
func FromEuler(roll, pitch, yaw float64) quaternion.Quaternion {
	return quaternion.FromEuler(roll, pitch, yaw)
}

// Regularize ensures that roll, pitch and yaw are in the correct ranges:
// roll in (-π, π], pitch in [-π/2, π/2], yaw in [0, 2π). All in radians.
func Regularize(roll, pitch, yaw float64) (float64, float64, float64) {
	for pitch > Pi {
		pitch -= 2 * Pi
	}
	for pitch <= -Pi {
		pitch += 2 * Pi
	}
	if pitch > Pi/2 {
		pitch = Pi - pitch
		roll -= Pi
		yaw += Pi
	}
	if pitch < -Pi/2 {
		pitch = -Pi - pitch
		roll -= Pi
		yaw += Pi
	}

	for roll > Pi {
		roll -= 2 * Pi
	}
	for roll <= -Pi {
		roll += 2 * Pi
	}

	for yaw >= 2*Pi {
		yaw -= 2 * Pi
	}
	for yaw < 0 {
		yaw += 2 * Pi
	}
	return roll, pitch, yaw
}

// EulerStdDev propagates independent standard deviations of the quaternion
// components (w, x, y, z) to roll, pitch and yaw, in radians. It linearizes
// ToEuler about q by central differences.
func EulerStdDev(q quaternion.Quaternion, sd [4]float64) (droll, dpitch, dyaw float64) {
	const h = 1e-6
	comps := [4]float64{q.W, q.X, q.Y, q.Z}
	var sum [3]float64
	for i := 0; i < 4; i++ {
		hi, lo := comps, comps
		hi[i] += h
		lo[i] -= h
		r1, p1, y1 := ToEuler(quaternion.New(hi[0], hi[1], hi[2], hi[3]).Unit())
		r0, p0, y0 := ToEuler(quaternion.New(lo[0], lo[1], lo[2], lo[3]).Unit())
		d := [3]float64{wrapAngle(r1 - r0), p1 - p0, wrapAngle(y1 - y0)}
		for j := range d {
			g := d[j] / (2 * h) * sd[i]
			sum[j] += g * g
		}
	}
	return math.Sqrt(sum[0]), math.Sqrt(sum[1]), math.Sqrt(sum[2])
}

func wrapAngle(a float64) float64 {
	for a > Pi {
		a -= 2 * Pi
	}
	for a <= -Pi {
		a += 2 * Pi
	}
	return a
}
