// SPDX-License-Identifier: MIT

package factorgraph

import (
	"math"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

// Params is the sealed set of factor parameter types.
type Params interface {
	Kind() FactorKind
	params()
}

// Prior is a unary factor carrying a normalized Gaussian or Categorical.
type Prior struct {
	Dist dist.Distribution
}

func (Prior) Kind() FactorKind { return KindPrior }
func (Prior) params()          {}

// NewPrior validates d as a prior: Gaussian or Categorical, never a point mass.
func NewPrior(d dist.Distribution) (Prior, error) {
	switch d.(type) {
	case *dist.Gaussian, *dist.Categorical:
		return Prior{Dist: d}, nil
	default:
		return Prior{}, fault.Configf("factorgraph.NewPrior", fault.ErrInvalidParams, "prior must be gaussian or categorical, got %s", dist.KindOf(d))
	}
}

// GaussianTransition is p(out | in) = N(out; A·in, Q).
type GaussianTransition struct {
	a, q *matrix.Dense
}

func (GaussianTransition) Kind() FactorKind { return KindLinearGaussianTransition }
func (GaussianTransition) params()          {}

// A returns a copy of the transition matrix.
func (p GaussianTransition) A() *matrix.Dense { return p.a.Clone().(*matrix.Dense) }

// Q returns a copy of the noise covariance.
func (p GaussianTransition) Q() *matrix.Dense { return p.q.Clone().(*matrix.Dense) }

// InDim is the dimension of the in variable (columns of A).
func (p GaussianTransition) InDim() int { return p.a.Cols() }

// OutDim is the dimension of the out variable (rows of A).
func (p GaussianTransition) OutDim() int { return p.a.Rows() }

// NewGaussianTransition validates and copies A (m×n) and Q (m×m, SPD).
//
// Errors:
//   - ConfigurationError{ErrDimensionMismatch | ErrInvalidParams}.
//   - NumericalError{ErrNotPositiveDefinite} when Q is not SPD.
func NewGaussianTransition(a, q matrix.Matrix) (GaussianTransition, error) {
	const op = "factorgraph.NewGaussianTransition"
	if a == nil || q == nil {
		return GaussianTransition{}, fault.Configf(op, fault.ErrInvalidParams, "nil matrix")
	}
	if q.Rows() != q.Cols() || q.Rows() != a.Rows() {
		return GaussianTransition{}, fault.Configf(op, fault.ErrDimensionMismatch, "A is %d×%d, Q is %d×%d", a.Rows(), a.Cols(), q.Rows(), q.Cols())
	}
	if _, err := matrix.Cholesky(q); err != nil {
		return GaussianTransition{}, fault.FromMatrix(op, err)
	}
	ac, err := matrix.Scale(a, 1)
	if err != nil {
		return GaussianTransition{}, fault.FromMatrix(op, err)
	}
	qc, err := matrix.Symmetrize(q)
	if err != nil {
		return GaussianTransition{}, fault.FromMatrix(op, err)
	}

	return GaussianTransition{a: ac, q: qc}, nil
}

// CategoricalTransition is p(out = i | in = j) = A[i][j].
type CategoricalTransition struct {
	a *matrix.Dense
}

func (CategoricalTransition) Kind() FactorKind { return KindCategoricalTransition }
func (CategoricalTransition) params()          {}

// A returns a copy of the transition matrix.
func (p CategoricalTransition) A() *matrix.Dense { return p.a.Clone().(*matrix.Dense) }

// InDim is the number of in states (columns of A).
func (p CategoricalTransition) InDim() int { return p.a.Cols() }

// OutDim is the number of out states (rows of A).
func (p CategoricalTransition) OutDim() int { return p.a.Rows() }

// NewCategoricalTransition validates A: finite, non-negative, no all-zero
// column. Columns need not sum to one; the scale absorbs the difference.
func NewCategoricalTransition(a matrix.Matrix) (CategoricalTransition, error) {
	const op = "factorgraph.NewCategoricalTransition"
	if a == nil {
		return CategoricalTransition{}, fault.Configf(op, fault.ErrInvalidParams, "nil matrix")
	}
	ac, err := matrix.Scale(a, 1)
	if err != nil {
		return CategoricalTransition{}, fault.FromMatrix(op, err)
	}
	for j := 0; j < ac.Cols(); j++ {
		var col float64
		for i := 0; i < ac.Rows(); i++ {
			v, _ := ac.At(i, j)
			if v < 0 || math.IsNaN(v) {
				return CategoricalTransition{}, fault.Configf(op, fault.ErrInvalidParams, "A[%d][%d] = %g", i, j, v)
			}
			col += v
		}
		if col == 0 {
			return CategoricalTransition{}, fault.Configf(op, fault.ErrInvalidParams, "column %d is all zero", j)
		}
	}

	return CategoricalTransition{a: ac}, nil
}

// Clamp is an observation clamp over a variable of the given family and
// dimension. The clamped value itself lives on the factor (Graph.Clamp).
type Clamp struct {
	Family dist.Family
	Dim    int
}

func (Clamp) Kind() FactorKind { return KindObservationClamp }
func (Clamp) params()          {}

// Equality is an n-ary factor forcing all ports to one value.
type Equality struct{}

func (Equality) Kind() FactorKind { return KindEquality }
func (Equality) params()          {}

// expect describes what a factor requires of the variable on a role.
type expect struct {
	family dist.Family
	dim    int // 0 means any
}

// roleSpec returns the roles a factor accepts and, for each, the variable
// shape it expects. Multi reports whether the role can be connected more than
// once.
func roleSpec(p Params) (roles map[Role]expect, multi bool) {
	switch p := p.(type) {
	case Prior:
		return map[Role]expect{RoleValue: {p.Dist.Family(), p.Dist.Dim()}}, false
	case GaussianTransition:
		return map[Role]expect{
			RoleIn:  {dist.FamilyGaussian, p.InDim()},
			RoleOut: {dist.FamilyGaussian, p.OutDim()},
		}, false
	case CategoricalTransition:
		return map[Role]expect{
			RoleIn:  {dist.FamilyCategorical, p.InDim()},
			RoleOut: {dist.FamilyCategorical, p.OutDim()},
		}, false
	case Clamp:
		return map[Role]expect{RoleValue: {p.Family, p.Dim}}, false
	case Equality:
		return map[Role]expect{RoleEquality: {}}, true
	default:
		return nil, false
	}
}
