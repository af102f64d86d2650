// SPDX-License-Identifier: MIT

package message

import (
	"math"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

// DegenerateDot is the largest categorical overlap treated as zero.
const DegenerateDot = 1e-250

const (
	opFuse    = "message.Fuse"
	opProduct = "message.Product"
)

// fuseFunc combines two non-unit payloads. With scaled=false it skips the
// normalizer and returns scale 0.
type fuseFunc func(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error)

type pairKey struct{ l, r dist.Kind }

// fusionTable holds one entry per ordered pair of non-unit kinds.
// Mixed pairs are registered in both orders.
var fusionTable = map[pairKey]fuseFunc{
	{dist.KindGaussian, dist.KindGaussian}:       fuseGaussian,
	{dist.KindCategorical, dist.KindCategorical}: fuseCategorical,
	{dist.KindPointMass, dist.KindGaussian}:      fusePointGaussian,
	{dist.KindGaussian, dist.KindPointMass}:      swap(fusePointGaussian),
	{dist.KindPointMass, dist.KindCategorical}:   fusePointCategorical,
	{dist.KindCategorical, dist.KindPointMass}:   swap(fusePointCategorical),
	{dist.KindPointMass, dist.KindPointMass}:     fusePointPoint,
	{dist.KindGaussian, dist.KindLikelihood}:     fuseGaussianLikelihood,
	{dist.KindLikelihood, dist.KindGaussian}:     swap(fuseGaussianLikelihood),
	{dist.KindLikelihood, dist.KindLikelihood}:   fuseLikelihood,
	{dist.KindPointMass, dist.KindLikelihood}:    fusePointLikelihood,
	{dist.KindLikelihood, dist.KindPointMass}:    swap(fusePointLikelihood),
}

func swap(f fuseFunc) fuseFunc {
	return func(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
		return f(r, l, scaled)
	}
}

// Fuse multiplies two messages about the same variable and renormalizes.
// The result's scale is l.Scale + r.Scale + the exact correction for the
// product of the two normalized payloads. A Gaussian fused with a Likelihood
// kernel is a proper Gaussian; two kernels fuse to a kernel with Δ = 0.
//
// Errors:
//   - ConfigurationError{ErrFamilyMismatch | ErrDimensionMismatch}.
//   - NumericalError{ErrNotPositiveDefinite} when Σ1+Σ2 or a fused precision
//     is not SPD.
//   - NumericalError{ErrDegenerateFusion} for contradictory evidence.
func Fuse(l, r Scaled) (Scaled, error) {
	return combine(opFuse, l, r, true)
}

// Product is Fuse without scale bookkeeping; the result has scale 0.
func Product(l, r Scaled) (Scaled, error) {
	return combine(opProduct, l, r, false)
}

// FuseAll folds Fuse left to right. No messages fuse to the unit message.
func FuseAll(msgs ...Scaled) (Scaled, error) {
	return fold(Fuse, msgs)
}

// ProductAll folds Product left to right.
func ProductAll(msgs ...Scaled) (Scaled, error) {
	return fold(Product, msgs)
}

func fold(f func(l, r Scaled) (Scaled, error), msgs []Scaled) (Scaled, error) {
	acc := Unit()
	var err error
	for i, m := range msgs {
		if i == 0 {
			acc = m
			continue
		}
		if acc, err = f(acc, m); err != nil {
			return Scaled{}, err
		}
	}

	return acc, nil
}

func combine(op string, l, r Scaled, scaled bool) (Scaled, error) {
	scale := 0.0
	if scaled {
		scale = l.Scale + r.Scale
	}
	if l.IsUnit() {
		return Scaled{Dist: r.Dist, Scale: scale}, nil
	}
	if r.IsUnit() {
		return Scaled{Dist: l.Dist, Scale: scale}, nil
	}
	if l.Dist.Family() != r.Dist.Family() {
		return Scaled{}, fault.Configf(op, fault.ErrFamilyMismatch, "%s vs %s", l.Dist.Family(), r.Dist.Family())
	}
	if l.Dist.Dim() != r.Dist.Dim() {
		return Scaled{}, fault.Configf(op, fault.ErrDimensionMismatch, "dim %d vs %d", l.Dist.Dim(), r.Dist.Dim())
	}
	f, ok := fusionTable[pairKey{l.Kind(), r.Kind()}]
	if !ok {
		return Scaled{}, fault.Configf(op, fault.ErrFamilyMismatch, "no fusion for %s × %s", l.Kind(), r.Kind())
	}
	d, delta, err := f(l.Dist, r.Dist, scaled)
	if err != nil {
		return Scaled{}, err
	}

	return Scaled{Dist: d, Scale: scale + delta}, nil
}

// fuseGaussian adds canonical parameters. The correction is
// ½·logdet(2πV) + ½·mᵀV⁻¹m with V = Σ1+Σ2, m = μ1-μ2, both from one
// Cholesky factor of V.
func fuseGaussian(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
	g1, g2 := l.(*dist.Gaussian), r.(*dist.Gaussian)

	xi, err := matrix.AddVec(g1.Xi(), g2.Xi())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	prec, err := matrix.Add(g1.Precision(), g2.Precision())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	out, err := dist.NewGaussianCanonical(xi, prec)
	if err != nil {
		return nil, 0, err
	}
	if !scaled {
		return out, 0, nil
	}

	v, err := matrix.Add(g1.Cov(), g2.Cov())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	lv, err := matrix.Cholesky(v)
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	m, err := matrix.SubVec(g1.Mean(), g2.Mean())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	w, err := matrix.CholeskySolveVec(lv, m)
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	q, err := matrix.Dot(m, w)
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	d := float64(len(m))

	return out, 0.5*(d*dist.Log2Pi()+matrix.LogDetCholesky(lv)) + 0.5*q, nil
}

// fuseCategorical normalizes p1⊙p2; the correction is -log(p1·p2).
func fuseCategorical(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
	p1, p2 := l.(*dist.Categorical).Probs(), r.(*dist.Categorical).Probs()
	w := make([]float64, len(p1))
	var dot float64
	for i := range p1 {
		w[i] = p1[i] * p2[i]
		dot += w[i]
	}
	if dot <= DegenerateDot {
		return nil, 0, fault.Numerical(opFuse, fault.ErrDegenerateFusion)
	}
	out, err := dist.NewCategorical(w)
	if err != nil {
		return nil, 0, err
	}
	if !scaled {
		return out, 0, nil
	}

	return out, -math.Log(dot), nil
}

// fusePointGaussian keeps the point mass; the correction is -log N(x; μ, Σ).
func fusePointGaussian(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
	pm, g := l.(*dist.PointMass), r.(*dist.Gaussian)
	if !scaled {
		return pm, 0, nil
	}
	nl, err := g.NegLogDensity(pm.Value())
	if err != nil {
		return nil, 0, err
	}

	return pm, nl, nil
}

// fusePointCategorical keeps the point mass; the correction is -log p[x].
func fusePointCategorical(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
	pm, c := l.(*dist.PointMass), r.(*dist.Categorical)
	px := c.At(pm.Index())
	if px <= DegenerateDot {
		return nil, 0, fault.Numerical(opFuse, fault.ErrDegenerateFusion)
	}
	if !scaled {
		return pm, 0, nil
	}

	return pm, -math.Log(px), nil
}

// fusePointPoint: a product of two deltas has no density.
func fusePointPoint(_, _ dist.Distribution, _ bool) (dist.Distribution, float64, error) {
	return nil, 0, fault.Numerical(opFuse, fault.ErrDegenerateFusion)
}

// fuseGaussianLikelihood multiplies N(μ, Σ) by exp(ξᵀx − ½xᵀWx). The
// posterior has canonical parameters (ξ_g+ξ, Λ_g+W), SPD because Λ_g is.
// The correction is −log ∫ N(x; μ, Σ)·exp(ξᵀx − ½xᵀWx) dx:
//
//	Δ = ½[log|Σ| + μᵀξ_g − log|Σ_p| − ξ_pᵀμ_p]
func fuseGaussianLikelihood(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
	g, k := l.(*dist.Gaussian), r.(*dist.Likelihood)

	xi, err := matrix.AddVec(g.Xi(), k.Xi())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	prec, err := matrix.Add(g.Precision(), k.W())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	out, err := dist.NewGaussianCanonical(xi, prec)
	if err != nil {
		return nil, 0, err
	}
	if !scaled {
		return out, 0, nil
	}

	prior, err := matrix.Dot(g.Mean(), g.Xi())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	post, err := matrix.Dot(out.Mean(), xi)
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}

	return out, 0.5 * (g.LogDetCov() + prior - out.LogDetCov() - post), nil
}

// fuseLikelihood adds the kernel parameters; nothing is dropped.
func fuseLikelihood(l, r dist.Distribution, _ bool) (dist.Distribution, float64, error) {
	k1, k2 := l.(*dist.Likelihood), r.(*dist.Likelihood)

	xi, err := matrix.AddVec(k1.Xi(), k2.Xi())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	w, err := matrix.Add(k1.W(), k2.W())
	if err != nil {
		return nil, 0, fault.FromMatrix(opFuse, err)
	}
	out, err := dist.NewLikelihood(xi, w)
	if err != nil {
		return nil, 0, err
	}

	return out, 0, nil
}

// fusePointLikelihood keeps the point mass; the correction is the negative
// log-kernel at x.
func fusePointLikelihood(l, r dist.Distribution, scaled bool) (dist.Distribution, float64, error) {
	pm, k := l.(*dist.PointMass), r.(*dist.Likelihood)
	if !scaled {
		return pm, 0, nil
	}
	lk, err := k.LogKernel(pm.Value())
	if err != nil {
		return nil, 0, err
	}

	return pm, -lk, nil
}
