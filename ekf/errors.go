package ekf

import "errors"

var (
	// ErrSingular is returned by Correct when the innovation covariance
	// cannot be inverted to machine precision.
	ErrSingular = errors.New("ekf: innovation covariance is singular")
	// ErrDimension is returned when a model output does not have the shape
	// the filter expects.
	ErrDimension = errors.New("ekf: dimension mismatch")
	// ErrConfig is returned by NewFilter for unusable parameters.
	ErrConfig = errors.New("ekf: invalid filter configuration")
)
