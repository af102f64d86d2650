// SPDX-License-Identifier: MIT

package dist

import (
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

const (
	opMeanCov       = "dist.NewGaussianMeanCov"
	opMeanPrecision = "dist.NewGaussianMeanPrecision"
	opCanonical     = "dist.NewGaussianCanonical"
	opNegLog        = "dist.Gaussian.NegLogDensity"
)

// Gaussian is a multivariate normal kept in mean/covariance and canonical
// (ξ = Λμ, Λ = Σ⁻¹) form at once. Both forms and log|Σ| come from a single
// Cholesky factorization at construction.
type Gaussian struct {
	mean      []float64
	cov       *matrix.Dense
	xi        []float64
	prec      *matrix.Dense
	logDetCov float64
}

var _ Distribution = (*Gaussian)(nil)

func (*Gaussian) Kind() Kind     { return KindGaussian }
func (*Gaussian) Family() Family { return FamilyGaussian }
func (g *Gaussian) Dim() int     { return len(g.mean) }
func (*Gaussian) sealed()        {}

// LogDetCov returns log|Σ|.
func (g *Gaussian) LogDetCov() float64 { return g.logDetCov }

// Mean returns a copy of μ.
func (g *Gaussian) Mean() []float64 { return matrix.CloneVec(g.mean) }

// Cov returns a copy of Σ.
func (g *Gaussian) Cov() *matrix.Dense { return g.cov.Clone().(*matrix.Dense) }

// Xi returns a copy of the precision-weighted mean ξ.
func (g *Gaussian) Xi() []float64 { return matrix.CloneVec(g.xi) }

// Precision returns a copy of Λ.
func (g *Gaussian) Precision() *matrix.Dense { return g.prec.Clone().(*matrix.Dense) }

func checkVec(op string, v []float64, n int) error {
	if len(v) != n {
		return fault.Configf(op, fault.ErrDimensionMismatch, "vector has length %d, matrix is %d×%d", len(v), n, n)
	}
	if !matrix.VecFinite(v) {
		return fault.Configf(op, fault.ErrInvalidParams, "vector has non-finite entries")
	}

	return nil
}

func checkSquare(op string, m matrix.Matrix) error {
	if m == nil {
		return fault.Configf(op, fault.ErrInvalidParams, "nil matrix")
	}
	if m.Rows() != m.Cols() {
		return fault.Configf(op, fault.ErrDimensionMismatch, "matrix is %d×%d, not square", m.Rows(), m.Cols())
	}

	return nil
}

// NewGaussianMeanCov builds N(mean, cov).
//
// Errors:
//   - ConfigurationError{ErrDimensionMismatch | ErrInvalidParams} for shape,
//     symmetry or non-finite problems.
//   - NumericalError{ErrNotPositiveDefinite} when cov is not SPD.
func NewGaussianMeanCov(mean []float64, cov matrix.Matrix) (*Gaussian, error) {
	if err := checkSquare(opMeanCov, cov); err != nil {
		return nil, err
	}
	if err := checkVec(opMeanCov, mean, cov.Rows()); err != nil {
		return nil, err
	}
	l, err := matrix.Cholesky(cov)
	if err != nil {
		return nil, fault.FromMatrix(opMeanCov, err)
	}
	prec, err := matrix.CholeskyInverse(l)
	if err != nil {
		return nil, fault.FromMatrix(opMeanCov, err)
	}
	xi, err := matrix.CholeskySolveVec(l, mean)
	if err != nil {
		return nil, fault.FromMatrix(opMeanCov, err)
	}
	sym, err := matrix.Symmetrize(cov)
	if err != nil {
		return nil, fault.FromMatrix(opMeanCov, err)
	}

	return &Gaussian{
		mean:      matrix.CloneVec(mean),
		cov:       sym,
		xi:        xi,
		prec:      prec,
		logDetCov: matrix.LogDetCholesky(l),
	}, nil
}

// NewGaussianMeanPrecision builds N(mean, prec⁻¹).
//
// Errors: as NewGaussianMeanCov, with prec in place of cov.
func NewGaussianMeanPrecision(mean []float64, prec matrix.Matrix) (*Gaussian, error) {
	if err := checkSquare(opMeanPrecision, prec); err != nil {
		return nil, err
	}
	if err := checkVec(opMeanPrecision, mean, prec.Rows()); err != nil {
		return nil, err
	}
	l, err := matrix.Cholesky(prec)
	if err != nil {
		return nil, fault.FromMatrix(opMeanPrecision, err)
	}
	cov, err := matrix.CholeskyInverse(l)
	if err != nil {
		return nil, fault.FromMatrix(opMeanPrecision, err)
	}
	sym, err := matrix.Symmetrize(prec)
	if err != nil {
		return nil, fault.FromMatrix(opMeanPrecision, err)
	}
	xi, err := matrix.MatVec(sym, mean)
	if err != nil {
		return nil, fault.FromMatrix(opMeanPrecision, err)
	}

	return &Gaussian{
		mean:      matrix.CloneVec(mean),
		cov:       cov,
		xi:        xi,
		prec:      sym,
		logDetCov: -matrix.LogDetCholesky(l),
	}, nil
}

// NewGaussianCanonical builds the Gaussian with precision-weighted mean xi and
// precision prec (the weighted-mean/precision form).
//
// Errors: as NewGaussianMeanPrecision.
func NewGaussianCanonical(xi []float64, prec matrix.Matrix) (*Gaussian, error) {
	if err := checkSquare(opCanonical, prec); err != nil {
		return nil, err
	}
	if err := checkVec(opCanonical, xi, prec.Rows()); err != nil {
		return nil, err
	}
	l, err := matrix.Cholesky(prec)
	if err != nil {
		return nil, fault.FromMatrix(opCanonical, err)
	}
	cov, err := matrix.CholeskyInverse(l)
	if err != nil {
		return nil, fault.FromMatrix(opCanonical, err)
	}
	mean, err := matrix.CholeskySolveVec(l, xi)
	if err != nil {
		return nil, fault.FromMatrix(opCanonical, err)
	}
	sym, err := matrix.Symmetrize(prec)
	if err != nil {
		return nil, fault.FromMatrix(opCanonical, err)
	}

	return &Gaussian{
		mean:      mean,
		cov:       cov,
		xi:        matrix.CloneVec(xi),
		prec:      sym,
		logDetCov: -matrix.LogDetCholesky(l),
	}, nil
}

// NegLogDensity returns −log N(x; μ, Σ) = ½[d·log2π + log|Σ| + (x−μ)ᵀΛ(x−μ)].
//
// Errors: ConfigurationError{ErrDimensionMismatch} when len(x) != Dim().
func (g *Gaussian) NegLogDensity(x []float64) (float64, error) {
	if len(x) != g.Dim() {
		return 0, fault.Configf(opNegLog, fault.ErrDimensionMismatch, "point has length %d, want %d", len(x), g.Dim())
	}
	r, err := matrix.SubVec(x, g.mean)
	if err != nil {
		return 0, fault.FromMatrix(opNegLog, err)
	}
	q, err := matrix.QuadForm(r, g.prec, r)
	if err != nil {
		return 0, fault.FromMatrix(opNegLog, err)
	}

	return 0.5 * (float64(g.Dim())*log2Pi + g.logDetCov + q), nil
}

// Entropy returns ½[d(1 + log2π) + log|Σ|].
func (g *Gaussian) Entropy() float64 {
	return 0.5 * (float64(g.Dim())*(1+log2Pi) + g.logDetCov)
}

// SecondMoment returns E[xxᵀ] = Σ + μμᵀ.
func (g *Gaussian) SecondMoment() *matrix.Dense {
	n := g.Dim()
	out := g.Cov()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v, _ := out.At(i, j)
			_ = out.Set(i, j, v+g.mean[i]*g.mean[j])
		}
	}

	return out
}
