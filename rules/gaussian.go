// SPDX-License-Identifier: MIT
// File: gaussian.go
// Role: linear-Gaussian transition rules.
//
// Factor: p(out | in) = N(out; A·in, Q), A is d_y×d_x.
//
// Forward (toward out) is a push-forward and is already normalized, so Δ = 0.
// Backward (toward in) turns a likelihood in out into a dist.Likelihood kernel
// in in; Δ is the negative log of the constant the kernel leaves out. The
// kernel's W may be singular, so observing only part of the state works.
package rules

import (
	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
	"github.com/katalvlaran/scalebp/message"
)

const (
	opGaussianForward  = "rules.gaussianForward"
	opGaussianBackward = "rules.gaussianBackward"
)

// gaussianForward maps N(μ, Σ) to N(Aμ, AΣAᵀ+Q) and a point x to N(Ax, Q).
func gaussianForward(f *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error) {
	p := f.Params.(factorgraph.GaussianTransition)
	a, q := p.A(), p.Q()

	var (
		mean []float64
		cov  *matrix.Dense
		err  error
	)
	switch d := in.Dist.(type) {
	case *dist.PointMass:
		if mean, err = matrix.MatVec(a, d.Value()); err != nil {
			return nil, 0, fault.FromMatrix(opGaussianForward, err)
		}
		cov = q
	case *dist.Gaussian:
		if mean, err = matrix.MatVec(a, d.Mean()); err != nil {
			return nil, 0, fault.FromMatrix(opGaussianForward, err)
		}
		if cov, err = sandwich(a, d.Cov()); err != nil {
			return nil, 0, fault.FromMatrix(opGaussianForward, err)
		}
		if cov, err = matrix.Add(cov, q); err != nil {
			return nil, 0, fault.FromMatrix(opGaussianForward, err)
		}
	}
	out, err := dist.NewGaussianMeanCov(mean, cov)
	if err != nil {
		return nil, 0, err
	}

	return out, 0, nil
}

// gaussianForwardUnit: ∫ N(y; Ax, Q) dx = 1/|det A| for square invertible A.
func gaussianForwardUnit(f *factorgraph.Factor, _ message.Scaled) (dist.Distribution, float64, error) {
	p := f.Params.(factorgraph.GaussianTransition)
	if p.InDim() != p.OutDim() {
		return nil, 0, fault.Configf(opGaussianForward, fault.ErrDimensionMismatch, "unit input needs square A, got %d×%d", p.OutDim(), p.InDim())
	}
	logAbs, _, err := matrix.LogAbsDet(p.A())
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianForward, err)
	}

	return nil, logAbs, nil
}

// gaussianBackward turns N(y; Ax, P) into the kernel exp(ξᵀx − ½xᵀWx) and
// the constant it drops.
//
// Inputs:
//   - point mass y: P = Q.
//   - Gaussian N(m, V): ∫ N(y; m, V)·N(y; Ax, Q) dy = N(m; Ax, Q+V), so P = Q+V, y = m.
//
// Algorithm:
//
//	W = AᵀP⁻¹A, ξ = AᵀP⁻¹y
//	Δ = ½[d_y·log2π + log|P| + yᵀP⁻¹y]
//
// W is only positive semidefinite when A lacks full column rank; the kernel
// becomes a proper Gaussian once fused with the prediction at the variable.
//
// Errors:
//   - NumericalError{ErrNotPositiveDefinite} when P is not SPD.
func gaussianBackward(f *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error) {
	p := f.Params.(factorgraph.GaussianTransition)
	a, pm := p.A(), p.Q()

	var (
		y   []float64
		err error
	)
	switch d := in.Dist.(type) {
	case *dist.PointMass:
		y = d.Value()
	case *dist.Gaussian:
		y = d.Mean()
		if pm, err = matrix.Add(pm, d.Cov()); err != nil {
			return nil, 0, fault.FromMatrix(opGaussianBackward, err)
		}
	}

	lp, err := matrix.Cholesky(pm)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	py, err := matrix.CholeskySolveVec(lp, y) // P⁻¹y
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	pa, err := matrix.CholeskySolve(lp, a) // P⁻¹A
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	at, err := matrix.Transpose(a)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	w, err := matrix.Mul(at, pa)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	xi, err := matrix.MatTVec(a, py)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	out, err := dist.NewLikelihood(xi, w)
	if err != nil {
		return nil, 0, err
	}

	yPy, err := matrix.Dot(y, py)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	delta := 0.5 * (float64(p.OutDim())*dist.Log2Pi() + matrix.LogDetCholesky(lp) + yPy)

	return out, delta, nil
}

// gaussianBackwardKernel pulls a kernel exp(ξ_oᵀy − ½yᵀW_o y) on the output
// back through N(y; Ax, Q):
//
//	M = W_o + Q⁻¹
//	W = Aᵀ(Q⁻¹ − Q⁻¹M⁻¹Q⁻¹)A, ξ = AᵀQ⁻¹M⁻¹ξ_o
//	Δ = ½[log|Q| + log|M| − ξ_oᵀM⁻¹ξ_o]
//
// M is SPD whenever Q is, so only Q and M are factorized.
func gaussianBackwardKernel(f *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error) {
	p := f.Params.(factorgraph.GaussianTransition)
	k := in.Dist.(*dist.Likelihood)
	a := p.A()

	qInv, logDetQ, err := matrix.SPDInverse(p.Q())
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	m, err := matrix.Add(k.W(), qInv)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	lm, err := matrix.Cholesky(m)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	mk, err := matrix.CholeskySolve(lm, qInv) // M⁻¹Q⁻¹
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	kmk, err := matrix.Mul(qInv, mk)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	inner, err := matrix.Sub(qInv, kmk)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	at, err := matrix.Transpose(a)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	w, err := sandwich(at, inner)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}

	xiOut := k.Xi()
	s, err := matrix.CholeskySolveVec(lm, xiOut) // M⁻¹ξ_o
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	ks, err := matrix.MatVec(qInv, s)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	xi, err := matrix.MatTVec(a, ks)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}
	out, err := dist.NewLikelihood(xi, w)
	if err != nil {
		return nil, 0, err
	}

	quad, err := matrix.Dot(xiOut, s)
	if err != nil {
		return nil, 0, fault.FromMatrix(opGaussianBackward, err)
	}

	return out, 0.5 * (logDetQ + matrix.LogDetCholesky(lm) - quad), nil
}

// sandwich returns A·S·Aᵀ, symmetrized.
func sandwich(a, s matrix.Matrix) (*matrix.Dense, error) {
	as, err := matrix.Mul(a, s)
	if err != nil {
		return nil, err
	}
	at, err := matrix.Transpose(a)
	if err != nil {
		return nil, err
	}
	out, err := matrix.Mul(as, at)
	if err != nil {
		return nil, err
	}

	return matrix.Symmetrize(out)
}
