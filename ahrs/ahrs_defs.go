// Package ahrs holds the attitude and navigation models used by the flight
// computer: quaternion math, the 13-state navigation model and the reduced
// altitude model, in the form consumed by package ekf.
package ahrs

import (
	"errors"
	"math"
)

const (
	Pi    = math.Pi
	G     = 9.80665 // G is standard gravity, m/s²
	Small = 1e-9
	Big   = 1e9
	Deg   = Pi / 180
)

// Indices into the 13-state navigation vector.
const (
	IdxQW = iota
	IdxQX
	IdxQY
	IdxQZ
	IdxVelN
	IdxVelE
	IdxVelD
	IdxPosN
	IdxPosE
	IdxPosD
	IdxMagN
	IdxMagE
	IdxMagD
	NavStates
)

// Indices into the 6-element control vector of the navigation model.
const (
	CtlAccX = iota
	CtlAccY
	CtlAccZ
	CtlGyrX
	CtlGyrY
	CtlGyrZ
	NavControls
)

// Channels of the navigation measurement vector. The barometer channel is
// expressed in the down axis, i.e. it is the negated barometric altitude.
const (
	ChanGPSN = iota
	ChanGPSE
	ChanGPSD
	ChanBaro
	ChanMagX
	ChanMagY
	ChanMagZ
	NavChannels
)

// Channels of the altitude measurement vector.
const (
	AltChanGPS = iota
	AltChanBaro
	AltChannels
)

var (
	// ErrDegenerateQuaternion is returned when a quaternion with zero norm
	// is normalized.
	ErrDegenerateQuaternion = errors.New("ahrs: quaternion has zero norm")
	// ErrDegenerateVector is returned when an attitude is requested from a
	// zero-length vector.
	ErrDegenerateVector = errors.New("ahrs: vector has zero length")
)
