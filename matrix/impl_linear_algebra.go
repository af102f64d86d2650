// SPDX-License-Identifier: MIT
// Package matrix provides universal operations on any Matrix implementation:
// element-wise addition and subtraction, matrix multiplication, transpose,
// scalar scaling, matrix-vector products and LU-based determinants. All
// functions perform strict fail-fast validation and return clear errors on
// dimension mismatches.
//
// Notes:
//   - Kernels accept any Matrix and always return a freshly allocated *Dense.
//   - Non-Dense operands are materialized once through asDense, so each kernel
//     has a single flat-slice loop.
//   - All kernels use central validators and wrap sentinels via matrixErrorf.

package matrix

import (
	"fmt"
	"math"
)

// ZeroSum is the initial sum value for forward/backward substitution and similar.
const ZeroSum = 0.0

// ZeroPivot is the sentinel for detecting a zero pivot in LU routines.
const ZeroPivot = 0.0

// Operation name constants for unified error wrapping and reducing magic strings.
const (
	opAdd        = "Add"
	opSub        = "Sub"
	opMul        = "Mul"
	opTranspose  = "Transpose"
	opScale      = "Scale"
	opMatVec     = "MatVec"
	opLU         = "LU"
	opLogAbsDet  = "LogAbsDet"
	opSymmetrize = "Symmetrize"
	opTrace      = "Trace"
	opQuadForm   = "QuadForm"
)

// matrixErrorf wraps err with an operation tag, preserving the original error via %w.
// The wrapper keeps a stable "Op: underlying" shape for uniform reporting.
// Use only when err != nil to avoid creating a non-nil wrapper around a nil cause.
//
// Determinism:
//   - Fully deterministic formatting; no data-dependent branches.
//
// Complexity:
//   - Time O(1), Space O(1).
func matrixErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// addSub computes elementwise out = a + sign*b for sign ∈ {+1, -1}.
// Inputs must have identical shapes. A fresh Dense is allocated; operands are not mutated.
//
// Implementation:
//   - Stage 1: ValidateBinarySameShape(a, b).
//   - Stage 2: Materialize both operands as *Dense and run a single flat loop 0..n-1.
//
// Complexity:
//   - Time O(r*c), Space O(r*c) for the new result.
func addSub(a, b Matrix, sign float64, opTag string) (*Dense, error) {
	// Validate shapes match
	if err := ValidateBinarySameShape(a, b); err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opTag, err)
	}

	res, err := NewDense(da.r, da.c)
	if err != nil {
		return nil, matrixErrorf(opTag, err)
	}
	var i int
	for i = 0; i < len(res.data); i++ {
		res.data[i] = da.data[i] + sign*db.data[i]
	}

	return res, nil
}

// Add computes the element-wise sum C = A + B and returns a fresh Dense result.
//
// Errors:
//   - ErrNilMatrix (nil input), ErrDimensionMismatch (shape mismatch).
//
// Complexity:
//   - Time O(r*c), Space O(r*c).
func Add(a, b Matrix) (*Dense, error) { return addSub(a, b, +1, opAdd) }

// Sub computes the element-wise difference C = A - B and returns a fresh Dense result.
//
// Errors:
//   - ErrNilMatrix (nil input), ErrDimensionMismatch (shape mismatch).
func Sub(a, b Matrix) (*Dense, error) { return addSub(a, b, -1, opSub) }

// Mul performs standard matrix multiplication C = A × B (no aliasing).
//
// Implementation:
//   - Stage 1: Validate A,B (not nil) and inner dimensions (A.Cols == B.Rows).
//   - Stage 2: i→k→j with row-major strides, skipping zero A[i,k].
//
// Inputs:
//   - A: left matrix with shape (r × n).
//   - B: right matrix with shape (n × c).
//
// Returns:
//   - *Dense: new C with shape (r × c).
//
// Errors:
//   - ErrNilMatrix (nil input), ErrDimensionMismatch (inner mismatch).
//
// Determinism:
//   - Fixed loop order i→k→j, so identical inputs give bit-identical outputs.
//
// Complexity:
//   - Time O(r*n*c), Space O(r*c).
func Mul(a, b Matrix) (*Dense, error) {
	// Validate inputs via canonical validator
	if err := ValidateMulCompatible(a, b); err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	da, err := asDense(a)
	if err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	db, err := asDense(b)
	if err != nil {
		return nil, matrixErrorf(opMul, err)
	}

	aRows, aCols, bCols := da.r, da.c, db.c
	res, err := NewDense(aRows, bCols)
	if err != nil {
		return nil, matrixErrorf(opMul, err)
	}
	var (
		i, j, k                            int
		av                                 float64
		rowOffsetA, rowOffsetB, rowOffsetR int
	)
	for i = 0; i < aRows; i++ {
		rowOffsetA = i * aCols
		rowOffsetR = i * bCols
		for k = 0; k < aCols; k++ {
			av = da.data[rowOffsetA+k]
			if av == 0 {
				continue // skip zero for performance
			}
			rowOffsetB = k * bCols
			for j = 0; j < bCols; j++ {
				res.data[rowOffsetR+j] += av * db.data[rowOffsetB+j]
			}
		}
	}

	return res, nil
}

// Transpose returns a new matrix with rows and columns swapped (mᵀ).
// The original matrix is never mutated.
//
// Errors:
//   - ErrNilMatrix (from ValidateNotNil).
//
// Complexity:
//   - Time O(r*c), Space O(r*c) for the returned matrix.
func Transpose(m Matrix) (*Dense, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opTranspose, err)
	}
	dm, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opTranspose, err)
	}

	rows, cols := dm.r, dm.c
	res, err := NewDense(cols, rows) // dims flipped
	if err != nil {
		return nil, matrixErrorf(opTranspose, err)
	}
	// data[i*cols + j] → res.data[j*rows + i]
	var i, j, baseSrc int
	for i = 0; i < rows; i++ {
		baseSrc = i * cols
		for j = 0; j < cols; j++ {
			res.data[j*rows+i] = dm.data[baseSrc+j]
		}
	}

	return res, nil
}

// Scale returns alpha·m as a new Dense.
//
// Errors:
//   - ErrNilMatrix, ErrNaNInf when alpha is not finite.
//
// Complexity:
//   - Time O(r*c), Space O(r*c).
func Scale(m Matrix, alpha float64) (*Dense, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opScale, err)
	}
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return nil, matrixErrorf(opScale, ErrNaNInf)
	}
	dm, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opScale, err)
	}
	res := dm.copyDense()
	for i := range res.data {
		res.data[i] *= alpha
	}

	return res, nil
}

// MatVec computes y = m·x for an r×c matrix and a length-c vector.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch when len(x) != m.Cols().
//
// Determinism:
//   - Row-by-row accumulation in ascending column order.
//
// Complexity:
//   - Time O(r*c), Space O(r).
func MatVec(m Matrix, x []float64) ([]float64, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	if err := ValidateVecLen(x, m.Cols()); err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	dm, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}

	y := make([]float64, dm.r)
	var (
		i, j, base int
		sum        float64
	)
	for i = 0; i < dm.r; i++ {
		sum = ZeroSum
		base = i * dm.c
		for j = 0; j < dm.c; j++ {
			sum += dm.data[base+j] * x[j]
		}
		y[i] = sum
	}

	return y, nil
}

// MatTVec computes y = mᵀ·x without materializing the transpose.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch when len(x) != m.Rows().
func MatTVec(m Matrix, x []float64) ([]float64, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	if err := ValidateVecLen(x, m.Rows()); err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}
	dm, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opMatVec, err)
	}

	y := make([]float64, dm.c)
	var i, j, base int
	for i = 0; i < dm.r; i++ {
		base = i * dm.c
		for j = 0; j < dm.c; j++ {
			y[j] += dm.data[base+j] * x[i]
		}
	}

	return y, nil
}

// QuadForm returns xᵀ·m·y for a square m.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch.
func QuadForm(x []float64, m Matrix, y []float64) (float64, error) {
	if err := ValidateNotNil(m); err != nil {
		return 0, matrixErrorf(opQuadForm, err)
	}
	if err := ValidateVecLen(x, m.Rows()); err != nil {
		return 0, matrixErrorf(opQuadForm, err)
	}
	my, err := MatVec(m, y)
	if err != nil {
		return 0, matrixErrorf(opQuadForm, err)
	}

	return Dot(x, my)
}

// Symmetrize returns (m + mᵀ)/2. Covariances built from products drift away
// from exact symmetry by rounding; kernels downstream expect it restored.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch (non-square input).
func Symmetrize(m Matrix) (*Dense, error) {
	if err := ValidateSquareNonNil(m); err != nil {
		return nil, matrixErrorf(opSymmetrize, err)
	}
	dm, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opSymmetrize, err)
	}
	n := dm.r
	res := dm.copyDense()
	var i, j int
	var avg float64
	for i = 0; i < n; i++ {
		for j = i + 1; j < n; j++ {
			avg = 0.5 * (dm.data[i*n+j] + dm.data[j*n+i])
			res.data[i*n+j] = avg
			res.data[j*n+i] = avg
		}
	}

	return res, nil
}

// Trace returns the sum of the main diagonal of a square matrix.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch (non-square input).
func Trace(m Matrix) (float64, error) {
	if err := ValidateSquareNonNil(m); err != nil {
		return 0, matrixErrorf(opTrace, err)
	}
	var (
		sum = ZeroSum
		v   float64
		err error
	)
	for i := 0; i < m.Rows(); i++ {
		if v, err = m.At(i, i); err != nil {
			return 0, matrixErrorf(opTrace, err)
		}
		sum += v
	}

	return sum, nil
}

// AllClose reports whether a and b share a shape and every pair of entries
// satisfies |a-b| ≤ tol·max(1, |a|, |b|). Nil operands are never close.
func AllClose(a, b Matrix, tol float64) bool {
	if ValidateBinarySameShape(a, b) != nil {
		return false
	}
	da, err := asDense(a)
	if err != nil {
		return false
	}
	db, err := asDense(b)
	if err != nil {
		return false
	}
	var scale float64
	for i := range da.data {
		scale = math.Max(1, math.Max(math.Abs(da.data[i]), math.Abs(db.data[i])))
		if math.Abs(da.data[i]-db.data[i]) > tol*scale {
			return false
		}
	}

	return true
}

// LU computes the factorization P·A = L·U with partial (row) pivoting.
// L is unit lower triangular, U upper triangular and perm[i] is the source
// row of A placed at row i. sign is the permutation parity (+1 or -1).
//
// Implementation:
//   - Stage 1: Validate m (not nil, square); copy it into a working buffer.
//   - Stage 2: For each column k pick the row with the largest |a_ik| (ties go
//     to the lowest index), swap, then eliminate below the pivot.
//   - Stage 3: Split the packed buffer into L and U.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch, ErrSingular (a column with no non-zero pivot).
//
// Determinism:
//   - Pivot choice is a deterministic function of the data.
//
// Complexity:
//   - Time O(n^3), Space O(n^2).
func LU(m Matrix) (l, u *Dense, perm []int, sign float64, err error) {
	if err = ValidateSquareNonNil(m); err != nil {
		return nil, nil, nil, 0, matrixErrorf(opLU, err)
	}
	src, err := asDense(m)
	if err != nil {
		return nil, nil, nil, 0, matrixErrorf(opLU, err)
	}
	n := src.r
	w := src.copyDense()
	perm = make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sign = 1

	var (
		i, j, k, p int
		best, f    float64
	)
	for k = 0; k < n; k++ {
		// partial pivot search
		p, best = k, math.Abs(w.data[k*n+k])
		for i = k + 1; i < n; i++ {
			if v := math.Abs(w.data[i*n+k]); v > best {
				p, best = i, v
			}
		}
		if best == ZeroPivot {
			return nil, nil, nil, 0, matrixErrorf(opLU, ErrSingular)
		}
		if p != k {
			for j = 0; j < n; j++ {
				w.data[k*n+j], w.data[p*n+j] = w.data[p*n+j], w.data[k*n+j]
			}
			perm[k], perm[p] = perm[p], perm[k]
			sign = -sign
		}
		for i = k + 1; i < n; i++ {
			f = w.data[i*n+k] / w.data[k*n+k]
			w.data[i*n+k] = f
			if f == 0 {
				continue
			}
			for j = k + 1; j < n; j++ {
				w.data[i*n+j] -= f * w.data[k*n+j]
			}
		}
	}

	l, _ = NewIdentity(n)
	u, _ = NewDense(n, n)
	for i = 0; i < n; i++ {
		for j = 0; j < n; j++ {
			if j < i {
				l.data[i*n+j] = w.data[i*n+j]
			} else {
				u.data[i*n+j] = w.data[i*n+j]
			}
		}
	}

	return l, u, perm, sign, nil
}

// LogAbsDet returns log|det m| and the sign of det m, computed from the
// diagonal of U in the pivoted LU factorization. Summing logs keeps the
// result finite where the plain product would under- or overflow.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch, ErrSingular.
func LogAbsDet(m Matrix) (logAbs, sign float64, err error) {
	_, u, _, sign, err := LU(m)
	if err != nil {
		return 0, 0, matrixErrorf(opLogAbsDet, err)
	}
	n := u.r
	var d float64
	for i := 0; i < n; i++ {
		d = u.data[i*n+i]
		if d < 0 {
			sign = -sign
		}
		logAbs += math.Log(math.Abs(d))
	}

	return logAbs, sign, nil
}
