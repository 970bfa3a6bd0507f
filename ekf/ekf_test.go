package ekf

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/skelterjohn/go.matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identity returns a process model with f(x) = x and Q = noise[0]·I.
func identity(n int) ProcessFuncs {
	return ProcessFuncs{
		Fn: func(x, u []float64, g, dt float64) []float64 {
			return append([]float64(nil), x...)
		},
		Jac: func(x, u []float64, g, dt float64) *matrix.DenseMatrix {
			return matrix.Eye(n)
		},
		Noise: func(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix {
			if len(noise) == 0 {
				return matrix.Zeros(n, n)
			}
			return matrix.Scaled(matrix.Eye(n), noise[0])
		},
	}
}

// direct observes every state component with R = diag(noise).
func direct(n int) ObservationFuncs {
	return ObservationFuncs{
		Fn: func(x []float64) []float64 {
			return append([]float64(nil), x...)
		},
		Jac: func(x []float64) *matrix.DenseMatrix {
			return matrix.Eye(n)
		},
		Noise: func(noise []float64) *matrix.DenseMatrix {
			if len(noise) == 0 {
				return matrix.Zeros(n, n)
			}
			return matrix.Diagonal(noise)
		},
	}
}

// twice observes a scalar state through two channels.
var twice = ObservationFuncs{
	Fn: func(x []float64) []float64 {
		return []float64{x[0], x[0]}
	},
	Jac: func(x []float64) *matrix.DenseMatrix {
		return matrix.MakeDenseMatrix([]float64{1, 1}, 2, 1)
	},
	Noise: func(noise []float64) *matrix.DenseMatrix {
		return matrix.Diagonal(noise)
	},
}

func assertSymmetric(t *testing.T, p [][]float64) {
	t.Helper()
	for i := range p {
		for j := range p {
			if p[i][j] != p[j][i] {
				t.Fatalf("P not symmetric at %d,%d: %v != %v", i, j, p[i][j], p[j][i])
			}
		}
	}
}

func TestNewFilterConfig(t *testing.T) {
	_, err := NewFilter(nil, 1, 0.01, 9.8)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewFilter([]float64{0}, -1, 0.01, 9.8)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewFilter([]float64{0}, 1, 0, 9.8)
	assert.ErrorIs(t, err, ErrConfig)

	kf, err := NewFilter([]float64{1, 2}, 3, 0.01, 9.8)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, kf.State())
	assert.Equal(t, [][]float64{{3, 0}, {0, 3}}, kf.Covariance())
	assert.Equal(t, 0.01, kf.DT())
	assert.Equal(t, 9.8, kf.G())
}

func TestPredictAddsProcessNoise(t *testing.T) {
	kf, err := NewFilter([]float64{0}, 1, 0.0025, -9.80665)
	require.NoError(t, err)
	require.NoError(t, kf.Predict(nil, identity(1), []float64{1}))
	assert.Equal(t, []float64{0}, kf.State())
	assert.InDelta(t, 2.0, kf.Covariance()[0][0], 1e-12)
}

func TestCorrectScalar(t *testing.T) {
	kf, err := NewFilter([]float64{0}, 1, 0.0025, -9.80665)
	require.NoError(t, err)
	require.NoError(t, kf.Predict(nil, identity(1), []float64{1}))
	require.NoError(t, kf.Correct([]float64{10.0, 10.2}, twice, []float64{1.6, 0.9}))

	// Information form: P = 1/(1/2 + 1/1.6 + 1/0.9), x = P·(10/1.6 + 10.2/0.9)
	p := 1 / (1/2.0 + 1/1.6 + 1/0.9)
	x := p * (10/1.6 + 10.2/0.9)
	assert.InDelta(t, x, kf.State()[0], 1e-9)
	assert.InDelta(t, p, kf.Covariance()[0][0], 1e-9)
	assert.InDeltaSlice(t, []float64{10.0, 10.2}, kf.Innovation(), 1e-12)
}

func TestSymmetryAfterEveryStep(t *testing.T) {
	const n = 5
	rng := rand.New(rand.NewSource(7))
	f := matrix.Zeros(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			f.Set(i, j, rng.NormFloat64()*0.3)
		}
		f.Set(i, i, 1)
	}
	pm := ProcessFuncs{
		Fn: func(x, u []float64, g, dt float64) []float64 {
			return matrix.Product(f, column(x)).ColCopy(0)
		},
		Jac: func(x, u []float64, g, dt float64) *matrix.DenseMatrix {
			return f.Copy()
		},
		Noise: func(x, u, noise []float64, g, dt float64) *matrix.DenseMatrix {
			return matrix.Scaled(matrix.Eye(n), noise[0])
		},
	}
	h := matrix.Zeros(2, n)
	for j := 0; j < n; j++ {
		h.Set(0, j, rng.Float64())
		h.Set(1, j, rng.Float64()-0.5)
	}
	om := ObservationFuncs{
		Fn: func(x []float64) []float64 {
			return matrix.Product(h, column(x)).ColCopy(0)
		},
		Jac: func(x []float64) *matrix.DenseMatrix {
			return h.Copy()
		},
		Noise: func(noise []float64) *matrix.DenseMatrix {
			return matrix.Diagonal(noise)
		},
	}

	kf, err := NewFilter([]float64{1, -1, 0.5, 2, 0}, 0.7, 0.01, 9.8)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		require.NoError(t, kf.Predict(nil, pm, []float64{0.01}))
		assertSymmetric(t, kf.Covariance())
		z := []float64{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, kf.Correct(z, om, []float64{0.3, 0.2}))
		assertSymmetric(t, kf.Covariance())
	}
	for i, v := range kf.Variances() {
		assert.Greater(t, v, 0.0, "variance %d", i)
	}
}

func TestExactObservationIsIdempotent(t *testing.T) {
	truth := []float64{1, -2, 3.5}
	kf, err := NewFilter(truth, 1, 0.01, 9.8)
	require.NoError(t, err)

	require.NoError(t, kf.Predict(nil, identity(3), nil))
	require.NoError(t, kf.Correct(truth, direct(3), nil))

	assert.InDeltaSlice(t, truth, kf.State(), 1e-12)
}

func TestSingularCorrectLeavesState(t *testing.T) {
	kf, err := NewFilter([]float64{4}, 0, 0.01, 9.8)
	require.NoError(t, err)
	require.NoError(t, kf.Predict(nil, identity(1), nil))
	before := kf.Snapshot()

	err = kf.Correct([]float64{5}, direct(1), []float64{0})
	assert.True(t, errors.Is(err, ErrSingular), "got %v", err)
	assert.Equal(t, before, kf.Snapshot())
}

func TestIllConditionedCorrect(t *testing.T) {
	kf, err := NewFilter([]float64{0}, 1, 0.01, 9.8)
	require.NoError(t, err)
	before := kf.Snapshot()

	// Two channels with identical rows and no noise: S has rank one.
	err = kf.Correct([]float64{1, 1}, twice, []float64{0, 0})
	assert.ErrorIs(t, err, ErrSingular)
	assert.Equal(t, before, kf.Snapshot())
}

func TestDimensionErrors(t *testing.T) {
	kf, err := NewFilter([]float64{0, 0}, 1, 0.01, 9.8)
	require.NoError(t, err)

	err = kf.Predict(nil, identity(3), []float64{1})
	assert.ErrorIs(t, err, ErrDimension)
	assert.Equal(t, []float64{0, 0}, kf.State())

	err = kf.Correct([]float64{1}, direct(2), []float64{1, 1})
	assert.ErrorIs(t, err, ErrDimension)

	assert.NoError(t, Verify(kf, nil, identity(2), []float64{1}, direct(2), []float64{1, 1}))
	assert.ErrorIs(t, Verify(kf, nil, identity(2), []float64{1}, direct(2), []float64{1}), ErrDimension)
	assert.ErrorIs(t, Verify(kf, nil, identity(1), []float64{1}, nil, nil), ErrDimension)
}

func TestEmptyCorrectIsNoop(t *testing.T) {
	kf, err := NewFilter([]float64{2}, 1, 0.01, 9.8)
	require.NoError(t, err)
	before := kf.Snapshot()
	assert.NoError(t, kf.Correct(nil, direct(1), nil))
	assert.Equal(t, before, kf.Snapshot())
}

func TestSelect(t *testing.T) {
	om := ObservationFuncs{
		Fn: func(x []float64) []float64 {
			return []float64{x[0], 2 * x[0], 3 * x[0]}
		},
		Jac: func(x []float64) *matrix.DenseMatrix {
			return matrix.MakeDenseMatrix([]float64{1, 2, 3}, 3, 1)
		},
		Noise: func(noise []float64) *matrix.DenseMatrix {
			return matrix.Diagonal(noise)
		},
	}
	mask := []bool{true, false, true}
	sel := Select(om, mask)

	assert.Equal(t, []float64{1, 3}, sel.Observe([]float64{1}))
	h := sel.ObservationJacobian([]float64{1})
	require.Equal(t, 2, h.Rows())
	assert.Equal(t, 3.0, h.Get(1, 0))
	r := sel.MeasurementNoise([]float64{0.1, 0.2, 0.3})
	require.Equal(t, 2, r.Rows())
	assert.Equal(t, 0.3, r.Get(1, 1))
	assert.Equal(t, 0.0, r.Get(0, 1))
	assert.Equal(t, []float64{7, 9}, Compact([]float64{7, 8, 9}, mask))

	_, reduced := Select(om, []bool{true, true, true}).(*selected)
	assert.False(t, reduced)

	kf, err := NewFilter([]float64{0}, 1, 0.01, 9.8)
	require.NoError(t, err)
	require.NoError(t, kf.Correct([]float64{1, 3}, sel, []float64{0.1, 0.2, 0.3}))
	assert.InDelta(t, 1.0, kf.State()[0], 0.1)
}

func TestConstraint(t *testing.T) {
	clamp := func(x []float64) {
		x[0] = math.Min(x[0], 1)
	}
	kf, err := NewFilter([]float64{3}, 1, 0.01, 9.8, WithConstraint(clamp))
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, kf.State())

	require.NoError(t, kf.Correct([]float64{10}, direct(1), []float64{0.01}))
	assert.Equal(t, []float64{1}, kf.State())
}
