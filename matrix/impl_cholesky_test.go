// SPDX-License-Identifier: MIT
package matrix_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/scalebp/matrix"
)

func TestCholeskyReconstructs(t *testing.T) {
	a := spd3(t)
	l, err := matrix.Cholesky(a)
	require.NoError(t, err)

	// upper triangle is exactly zero
	require.Equal(t, 0.0, MustAt(t, l, 0, 1))
	require.Equal(t, 0.0, MustAt(t, l, 1, 2))

	lt, err := matrix.Transpose(l)
	require.NoError(t, err)
	llt, err := matrix.Mul(l, lt)
	require.NoError(t, err)
	require.True(t, matrix.AllClose(a, llt, tol))
}

func TestCholeskyRejects(t *testing.T) {
	indefinite := MustRows(t, [][]float64{{1, 2}, {2, 1}})
	_, err := matrix.Cholesky(indefinite)
	require.ErrorIs(t, err, matrix.ErrNotPositiveDefinite)

	skew := MustRows(t, [][]float64{{2, 1}, {0, 2}})
	_, err = matrix.Cholesky(skew)
	require.ErrorIs(t, err, matrix.ErrAsymmetry)

	_, err = matrix.Cholesky(nil)
	require.ErrorIs(t, err, matrix.ErrNilMatrix)
}

func TestCholeskySolveAndInverse(t *testing.T) {
	a := spd3(t)
	l, err := matrix.Cholesky(hide{a})
	require.NoError(t, err)

	b := []float64{1, -2, 0.5}
	x, err := matrix.CholeskySolveVec(l, b)
	require.NoError(t, err)
	ax, err := matrix.MatVec(a, x)
	require.NoError(t, err)
	require.True(t, matrix.VecAllClose(b, ax, 1e-12))

	inv, err := matrix.CholeskyInverse(l)
	require.NoError(t, err)
	prod, err := matrix.Mul(a, inv)
	require.NoError(t, err)
	id, err := matrix.NewIdentity(3)
	require.NoError(t, err)
	require.True(t, matrix.AllClose(id, prod, 1e-12))

	_, err = matrix.CholeskySolveVec(a, b)
	require.ErrorIs(t, err, matrix.ErrNotTriangular)
}

func TestLogDetCholeskyMatchesLU(t *testing.T) {
	a := spd3(t)
	inv, logDet, err := matrix.SPDInverse(a)
	require.NoError(t, err)
	require.NotNil(t, inv)

	logAbs, sign, err := matrix.LogAbsDet(a)
	require.NoError(t, err)
	require.Equal(t, 1.0, sign)
	require.InDelta(t, logAbs, logDet, 1e-12)

	d, err := matrix.NewFromRows([][]float64{{2, 0}, {0, 8}})
	require.NoError(t, err)
	_, logDet, err = matrix.SPDInverse(d)
	require.NoError(t, err)
	require.InDelta(t, math.Log(16), logDet, 1e-12)
}

func TestVectorHelpers(t *testing.T) {
	dot, err := matrix.Dot([]float64{1, 2}, []float64{3, 4})
	require.NoError(t, err)
	require.Equal(t, 11.0, dot)

	_, err = matrix.Dot([]float64{1}, []float64{1, 2})
	require.ErrorIs(t, err, matrix.ErrDimensionMismatch)

	sum, err := matrix.AddVec([]float64{1, 2}, []float64{3, 4})
	require.NoError(t, err)
	require.Equal(t, []float64{4, 6}, sum)

	diff, err := matrix.SubVec([]float64{1, 2}, []float64{3, 4})
	require.NoError(t, err)
	require.Equal(t, []float64{-2, -2}, diff)

	q, err := matrix.QuadForm([]float64{1, 1}, MustRows(t, [][]float64{{2, 1}, {1, 2}}), []float64{1, 1})
	require.NoError(t, err)
	require.Equal(t, 6.0, q)
}
