// SPDX-License-Identifier: MIT
// Package matrix: Cholesky factorization and the solves built on one factor.
//
// Purpose:
//   - Factor a symmetric positive definite A as L·Lᵀ with L lower triangular.
//   - Derive solves, the inverse and log|A| from the same L, so every quantity
//     of one Gaussian computation is consistent with the others.

package matrix

import "math"

// SymmetryTol is the relative tolerance Cholesky applies before factoring.
const SymmetryTol = 1e-9

const (
	opCholesky        = "Cholesky"
	opCholeskySolve   = "CholeskySolve"
	opCholeskyInverse = "CholeskyInverse"
)

// Cholesky returns the lower-triangular factor L with A = L·Lᵀ.
//
// Implementation:
//   - Stage 1: ValidateSymmetric(A, SymmetryTol) on top of the shape checks.
//   - Stage 2: Cholesky–Banachiewicz, row by row, reading only the lower triangle.
//
// Behavior highlights:
//   - A pivot d ≤ 0 (or NaN) stops the factorization with ErrNotPositiveDefinite.
//   - Entries above the diagonal of L are exactly zero.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch, ErrAsymmetry, ErrNotPositiveDefinite.
//
// Determinism:
//   - Fixed i→j→k order.
//
// Complexity:
//   - Time O(n^3/3), Space O(n^2).
func Cholesky(a Matrix) (*Dense, error) {
	if err := ValidateSymmetric(a, SymmetryTol); err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}

	n := da.r
	l, err := NewDense(n, n)
	if err != nil {
		return nil, matrixErrorf(opCholesky, err)
	}
	var (
		i, j, k int
		sum     float64
	)
	for i = 0; i < n; i++ {
		for j = 0; j <= i; j++ {
			sum = da.data[i*n+j]
			for k = 0; k < j; k++ {
				sum -= l.data[i*n+k] * l.data[j*n+k]
			}
			if i == j {
				// !(sum > 0) also rejects NaN
				if !(sum > 0) {
					return nil, matrixErrorf(opCholesky, ErrNotPositiveDefinite)
				}
				l.data[i*n+i] = math.Sqrt(sum)
				continue
			}
			l.data[i*n+j] = sum / l.data[j*n+j]
		}
	}

	return l, nil
}

// validateFactor checks that l is square, non-nil and lower triangular with
// a positive diagonal.
func validateFactor(l *Dense) error {
	if l == nil {
		return ErrNilMatrix
	}
	if l.r != l.c {
		return ErrDimensionMismatch
	}
	n := l.r
	for i := 0; i < n; i++ {
		if !(l.data[i*n+i] > 0) {
			return ErrNotPositiveDefinite
		}
		for j := i + 1; j < n; j++ {
			if l.data[i*n+j] != 0 {
				return ErrNotTriangular
			}
		}
	}

	return nil
}

// solveLower solves L·y = b in place of a fresh y (forward substitution).
func solveLower(l *Dense, b []float64) []float64 {
	n := l.r
	y := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		sum = b[i]
		for k := 0; k < i; k++ {
			sum -= l.data[i*n+k] * y[k]
		}
		y[i] = sum / l.data[i*n+i]
	}

	return y
}

// solveUpperT solves Lᵀ·x = y (back substitution on the transposed factor).
func solveUpperT(l *Dense, y []float64) []float64 {
	n := l.r
	x := make([]float64, n)
	var sum float64
	for i := n - 1; i >= 0; i-- {
		sum = y[i]
		for k := i + 1; k < n; k++ {
			sum -= l.data[k*n+i] * x[k]
		}
		x[i] = sum / l.data[i*n+i]
	}

	return x
}

// CholeskySolveVec solves A·x = b given the factor L of A.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch, ErrNotTriangular, ErrNotPositiveDefinite.
//
// Complexity:
//   - Time O(n^2), Space O(n).
func CholeskySolveVec(l *Dense, b []float64) ([]float64, error) {
	if err := validateFactor(l); err != nil {
		return nil, matrixErrorf(opCholeskySolve, err)
	}
	if err := ValidateVecLen(b, l.r); err != nil {
		return nil, matrixErrorf(opCholeskySolve, err)
	}

	return solveUpperT(l, solveLower(l, b)), nil
}

// CholeskySolve solves A·X = B column by column given the factor L of A.
//
// Errors:
//   - as CholeskySolveVec, plus ErrDimensionMismatch when B.Rows() != n.
//
// Complexity:
//   - Time O(n^2·c), Space O(n·c).
func CholeskySolve(l *Dense, b Matrix) (*Dense, error) {
	if err := validateFactor(l); err != nil {
		return nil, matrixErrorf(opCholeskySolve, err)
	}
	if err := ValidateNotNil(b); err != nil {
		return nil, matrixErrorf(opCholeskySolve, err)
	}
	if b.Rows() != l.r {
		return nil, matrixErrorf(opCholeskySolve, ErrDimensionMismatch)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opCholeskySolve, err)
	}

	n, c := db.r, db.c
	out, err := NewDense(n, c)
	if err != nil {
		return nil, matrixErrorf(opCholeskySolve, err)
	}
	col := make([]float64, n)
	var i, j int
	for j = 0; j < c; j++ {
		for i = 0; i < n; i++ {
			col[i] = db.data[i*c+j]
		}
		x := solveUpperT(l, solveLower(l, col))
		for i = 0; i < n; i++ {
			out.data[i*c+j] = x[i]
		}
	}

	return out, nil
}

// CholeskyInverse returns A⁻¹ from the factor L of A. The result is
// symmetrized so that downstream symmetry checks hold exactly.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch, ErrNotTriangular, ErrNotPositiveDefinite.
//
// Complexity:
//   - Time O(n^3), Space O(n^2).
func CholeskyInverse(l *Dense) (*Dense, error) {
	if err := validateFactor(l); err != nil {
		return nil, matrixErrorf(opCholeskyInverse, err)
	}
	id, err := NewIdentity(l.r)
	if err != nil {
		return nil, matrixErrorf(opCholeskyInverse, err)
	}
	inv, err := CholeskySolve(l, id)
	if err != nil {
		return nil, matrixErrorf(opCholeskyInverse, err)
	}

	return Symmetrize(inv)
}

// LogDetCholesky returns log|A| = 2·Σ log L_ii for the factor L of A.
// The caller guarantees l came from Cholesky.
func LogDetCholesky(l *Dense) float64 {
	n := l.r
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Log(l.data[i*n+i])
	}

	return 2 * sum
}

// SPDInverse factors a once and returns its inverse together with log|A|.
//
// Errors:
//   - as Cholesky.
func SPDInverse(a Matrix) (inv *Dense, logDet float64, err error) {
	l, err := Cholesky(a)
	if err != nil {
		return nil, 0, err
	}
	inv, err = CholeskyInverse(l)
	if err != nil {
		return nil, 0, err
	}

	return inv, LogDetCholesky(l), nil
}
