package ahrs

// VarianceAccumulator keeps an exponentially weighted mean and variance of
// a stream of observations, e.g. the innovations of one measurement
// channel. The zero value is not usable; see NewVarianceAccumulator.
type VarianceAccumulator struct {
	decay float64
	n     float64 // effective number of observations
	m     float64 // mean
	v     float64 // variance
}

// NewVarianceAccumulator returns an accumulator with decay constant decay,
// initialized with the observation init.
func NewVarianceAccumulator(init, decay float64) *VarianceAccumulator {
	return &VarianceAccumulator{decay: decay, n: 1, m: init}
}

// Add accumulates obs and returns the current estimates of the effective
// number of observations, the mean and the variance.
func (a *VarianceAccumulator) Add(obs float64) (n, mean, variance float64) {
	d := obs - a.m
	dm := (1 - a.decay) * d

	a.n = 1 + a.decay*a.n
	a.m += dm
	a.v = a.decay * (a.v + dm*d)
	return a.n, a.m, a.v
}

// N returns the effective number of observations.
func (a *VarianceAccumulator) N() float64 {
	return a.n
}

// Mean returns the current mean.
func (a *VarianceAccumulator) Mean() float64 {
	return a.m
}

// Variance returns the current variance.
func (a *VarianceAccumulator) Variance() float64 {
	return a.v
}
