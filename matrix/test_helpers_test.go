// SPDX-License-Identifier: MIT
// Package matrix_test contains test helpers.
//
// Purpose:
//   - Provide small, deterministic fixtures for the kernels.
//   - Keep all data finite and well-formed to avoid numeric-policy interference.

package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/scalebp/matrix"
)

// tol is the comparison tolerance used across kernel tests.
const tol = 1e-12

// hide wraps any Matrix to hide its concrete type from type assertions, so
// kernels take their interface materialization path.
type hide struct{ matrix.Matrix }

// MustRows builds a *Dense from row literals or fails the test.
func MustRows(t *testing.T, rows [][]float64) *matrix.Dense {
	t.Helper()
	m, err := matrix.NewFromRows(rows)
	require.NoError(t, err)

	return m
}

// MustAt reads m[i,j] or fails the test.
func MustAt(t *testing.T, m matrix.Matrix, i, j int) float64 {
	t.Helper()
	v, err := m.At(i, j)
	require.NoError(t, err)

	return v
}

// spd3 is a well-conditioned symmetric positive definite fixture.
func spd3(t *testing.T) *matrix.Dense {
	t.Helper()

	return MustRows(t, [][]float64{
		{4, 1, 0.5},
		{1, 3, 0.25},
		{0.5, 0.25, 2},
	})
}
