// SPDX-License-Identifier: MIT
// Package matrix: block assembly and sub-matrix extraction for joint
// (pairwise) Gaussians.

package matrix

const (
	opBlock = "Block"
	opSlice = "Slice"
)

// NewBlock assembles the 2×2 block matrix [[a11, a12], [a21, a22]].
// Row blocks must agree in height and column blocks in width.
//
// Errors:
//   - ErrNilMatrix, ErrDimensionMismatch.
//
// Complexity:
//   - Time O(R*C), Space O(R*C) for the assembled result.
func NewBlock(a11, a12, a21, a22 Matrix) (*Dense, error) {
	for _, m := range []Matrix{a11, a12, a21, a22} {
		if err := ValidateNotNil(m); err != nil {
			return nil, matrixErrorf(opBlock, err)
		}
	}
	if a11.Rows() != a12.Rows() || a21.Rows() != a22.Rows() ||
		a11.Cols() != a21.Cols() || a12.Cols() != a22.Cols() {
		return nil, matrixErrorf(opBlock, ErrDimensionMismatch)
	}

	r1, c1 := a11.Rows(), a11.Cols()
	out, err := NewDense(r1+a21.Rows(), c1+a12.Cols())
	if err != nil {
		return nil, matrixErrorf(opBlock, err)
	}
	place := func(m Matrix, r0, c0 int) error {
		dm, err := asDense(m)
		if err != nil {
			return err
		}
		for i := 0; i < dm.r; i++ {
			copy(out.data[(r0+i)*out.c+c0:(r0+i)*out.c+c0+dm.c], dm.data[i*dm.c:(i+1)*dm.c])
		}
		return nil
	}
	if err = place(a11, 0, 0); err != nil {
		return nil, matrixErrorf(opBlock, err)
	}
	if err = place(a12, 0, c1); err != nil {
		return nil, matrixErrorf(opBlock, err)
	}
	if err = place(a21, r1, 0); err != nil {
		return nil, matrixErrorf(opBlock, err)
	}
	if err = place(a22, r1, c1); err != nil {
		return nil, matrixErrorf(opBlock, err)
	}

	return out, nil
}

// Slice copies rows [r0, r1) and columns [c0, c1) of m into a new Dense.
//
// Errors:
//   - ErrNilMatrix, ErrOutOfRange for bounds outside m or empty ranges.
func Slice(m Matrix, r0, r1, c0, c1 int) (*Dense, error) {
	if err := ValidateNotNil(m); err != nil {
		return nil, matrixErrorf(opSlice, err)
	}
	if r0 < 0 || c0 < 0 || r1 > m.Rows() || c1 > m.Cols() || r0 >= r1 || c0 >= c1 {
		return nil, matrixErrorf(opSlice, ErrOutOfRange)
	}
	dm, err := asDense(m)
	if err != nil {
		return nil, matrixErrorf(opSlice, err)
	}
	out, err := NewDense(r1-r0, c1-c0)
	if err != nil {
		return nil, matrixErrorf(opSlice, err)
	}
	for i := r0; i < r1; i++ {
		copy(out.data[(i-r0)*out.c:(i-r0+1)*out.c], dm.data[i*dm.c+c0:i*dm.c+c1])
	}

	return out, nil
}

// SliceVec copies x[lo:hi] into a fresh slice.
func SliceVec(x []float64, lo, hi int) ([]float64, error) {
	if lo < 0 || hi > len(x) || lo > hi {
		return nil, matrixErrorf(opSlice, ErrOutOfRange)
	}

	return CloneVec(x[lo:hi]), nil
}
