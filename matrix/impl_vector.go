// SPDX-License-Identifier: MIT
// Package matrix: small vector helpers shared by the Gaussian kernels.

package matrix

import "math"

const opVec = "Vec"

// Dot returns Σ x_i·y_i.
// Errors: ErrNilMatrix (nil input), ErrDimensionMismatch (length mismatch).
func Dot(x, y []float64) (float64, error) {
	if err := ValidateVecLen(y, len(x)); err != nil {
		return 0, matrixErrorf(opVec, err)
	}
	sum := ZeroSum
	for i := range x {
		sum += x[i] * y[i]
	}

	return sum, nil
}

// AddVec returns x + y as a fresh slice.
func AddVec(x, y []float64) ([]float64, error) {
	if err := ValidateVecLen(y, len(x)); err != nil {
		return nil, matrixErrorf(opVec, err)
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + y[i]
	}

	return out, nil
}

// SubVec returns x - y as a fresh slice.
func SubVec(x, y []float64) ([]float64, error) {
	if err := ValidateVecLen(y, len(x)); err != nil {
		return nil, matrixErrorf(opVec, err)
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] - y[i]
	}

	return out, nil
}

// CloneVec returns a copy of x (nil stays nil).
func CloneVec(x []float64) []float64 {
	if x == nil {
		return nil
	}
	out := make([]float64, len(x))
	copy(out, x)

	return out
}

// VecFinite reports whether every entry of x is finite.
func VecFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// VecAllClose is the vector counterpart of AllClose.
func VecAllClose(x, y []float64, tol float64) bool {
	if len(x) != len(y) {
		return false
	}
	var scale float64
	for i := range x {
		scale = math.Max(1, math.Max(math.Abs(x[i]), math.Abs(y[i])))
		if math.Abs(x[i]-y[i]) > tol*scale {
			return false
		}
	}

	return true
}
