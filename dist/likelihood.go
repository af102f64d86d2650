// SPDX-License-Identifier: MIT

package dist

import (
	"math"

	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

const opLikelihood = "dist.NewLikelihood"

// Likelihood is the Gaussian-family kernel exp(ξᵀx − ½xᵀWx) with W symmetric
// positive semidefinite. It is what a linear-Gaussian factor sends toward its
// input when the output was observed through a matrix without full column
// rank: a function of x that need not integrate to a finite value. Unlike the
// other kinds it is not normalized; a message carrying one keeps every
// constant in its scale.
type Likelihood struct {
	xi []float64
	w  *matrix.Dense
}

var _ Distribution = (*Likelihood)(nil)

func (*Likelihood) Kind() Kind         { return KindLikelihood }
func (*Likelihood) Family() Family     { return FamilyGaussian }
func (l *Likelihood) Dim() int         { return len(l.xi) }
func (*Likelihood) sealed()            {}
func (l *Likelihood) Xi() []float64    { return matrix.CloneVec(l.xi) }
func (l *Likelihood) W() *matrix.Dense { return l.w.Clone().(*matrix.Dense) }

// NewLikelihood builds exp(ξᵀx − ½xᵀWx). W is never factorized: only its
// symmetry, finiteness and a non-negative diagonal are checked.
//
// Errors:
//   - ConfigurationError{ErrDimensionMismatch | ErrInvalidParams} for shape,
//     symmetry or non-finite problems.
//   - NumericalError{ErrNotPositiveDefinite} for a negative diagonal entry.
func NewLikelihood(xi []float64, w matrix.Matrix) (*Likelihood, error) {
	if err := checkSquare(opLikelihood, w); err != nil {
		return nil, err
	}
	if err := checkVec(opLikelihood, xi, w.Rows()); err != nil {
		return nil, err
	}
	if err := matrix.ValidateSymmetric(w, matrix.SymmetryTol); err != nil {
		return nil, fault.FromMatrix(opLikelihood, err)
	}
	sym, err := matrix.Symmetrize(w)
	if err != nil {
		return nil, fault.FromMatrix(opLikelihood, err)
	}
	if !sym.IsFinite() {
		return nil, fault.Configf(opLikelihood, fault.ErrInvalidParams, "W has non-finite entries")
	}
	diag := sym.Diag()
	floor := 1.0
	for _, d := range diag {
		floor = math.Max(floor, math.Abs(d))
	}
	floor *= -matrix.SymmetryTol
	for i, d := range diag {
		if d < floor {
			return nil, fault.Numerical(opLikelihood, fault.ErrNotPositiveDefinite)
		}
		if d < 0 {
			_ = sym.Set(i, i, 0)
		}
	}

	return &Likelihood{xi: matrix.CloneVec(xi), w: sym}, nil
}

// LogKernel returns ξᵀx − ½xᵀWx.
//
// Errors: ConfigurationError{ErrDimensionMismatch} when len(x) != Dim().
func (l *Likelihood) LogKernel(x []float64) (float64, error) {
	if len(x) != l.Dim() {
		return 0, fault.Configf(opLikelihood, fault.ErrDimensionMismatch, "point has length %d, want %d", len(x), l.Dim())
	}
	lin, err := matrix.Dot(l.xi, x)
	if err != nil {
		return 0, fault.FromMatrix(opLikelihood, err)
	}
	q, err := matrix.QuadForm(x, l.w, x)
	if err != nil {
		return 0, fault.FromMatrix(opLikelihood, err)
	}

	return lin - 0.5*q, nil
}
