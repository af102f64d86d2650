// SPDX-License-Identifier: MIT

package evidence

import (
	"math"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
	"github.com/katalvlaran/scalebp/message"
)

// gaussianTerm returns U − H for p(out | in) = N(out; A·in, Q).
//
// With r = out − A·in and W = Q⁻¹:
//
//	U = ½[d_out·log2π + log|Q| + tr(W·Cov[r]) + E[r]ᵀ W E[r]]
//
// Cov[r] and E[r] come from the belief over the latent ports: the joint
// pairwise Gaussian when both are latent, a single marginal otherwise.
func (b *bethe) gaussianTerm(f *factorgraph.Factor, p factorgraph.GaussianTransition) (float64, error) {
	inEdge, outEdge := f.EdgeByRole(factorgraph.RoleIn), f.EdgeByRole(factorgraph.RoleOut)
	yIn, yOut := observed(inEdge.Variable), observed(outEdge.Variable)
	a := p.A()
	w, logDetQ, err := matrix.SPDInverse(p.Q())
	if err != nil {
		return 0, fault.FromMatrix(opBethe, err)
	}

	var (
		rbar []float64
		covR *matrix.Dense
		h    float64
	)
	switch {
	case yIn != nil && yOut != nil:
		if rbar, err = residual(a, yIn.Value(), yOut.Value()); err != nil {
			return 0, err
		}
	case yOut != nil:
		g, err := b.gaussianMarginal(inEdge.Variable)
		if err != nil {
			return 0, err
		}
		if rbar, err = residual(a, g.Mean(), yOut.Value()); err != nil {
			return 0, err
		}
		if covR, err = sandwich(a, g.Cov()); err != nil {
			return 0, err
		}
		h = g.Entropy()
	case yIn != nil:
		g, err := b.gaussianMarginal(outEdge.Variable)
		if err != nil {
			return 0, err
		}
		if rbar, err = residual(a, yIn.Value(), g.Mean()); err != nil {
			return 0, err
		}
		covR, h = g.Cov(), g.Entropy()
	default:
		joint, err := pairGaussian(a, w, inEdge, outEdge)
		if err != nil {
			return 0, err
		}
		if rbar, covR, err = jointResidual(a, joint, p.InDim()); err != nil {
			return 0, err
		}
		h = joint.Entropy()
	}

	u := float64(p.OutDim())*dist.Log2Pi() + logDetQ
	if covR != nil {
		tr, err := traceProduct(w, covR)
		if err != nil {
			return 0, err
		}
		u += tr
	}
	q, err := matrix.QuadForm(rbar, w, rbar)
	if err != nil {
		return 0, fault.FromMatrix(opBethe, err)
	}

	return 0.5*(u+q) - h, nil
}

func (b *bethe) gaussianMarginal(v *factorgraph.Variable) (*dist.Gaussian, error) {
	d, err := b.marginal(v)
	if err != nil {
		return nil, err
	}
	g, ok := d.(*dist.Gaussian)
	if !ok {
		return nil, fault.ConfigAt(v.ID, opBethe, fault.ErrFamilyMismatch, "belief is %s", dist.KindOf(d))
	}

	return g, nil
}

// residual returns out − A·in.
func residual(a *matrix.Dense, in, out []float64) ([]float64, error) {
	ax, err := matrix.MatVec(a, in)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	r, err := matrix.SubVec(out, ax)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}

	return r, nil
}

// sandwich returns A·S·Aᵀ.
func sandwich(a, s matrix.Matrix) (*matrix.Dense, error) {
	as, err := matrix.Mul(a, s)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	at, err := matrix.Transpose(a)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	out, err := matrix.Mul(as, at)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}

	return out, nil
}

// pairGaussian builds the belief over z = (in, out):
//
//	b(z) ∝ m_in(in) · N(out; A·in, Q) · m_out(out)
//
//	Λ_z = [[Λ1 + AᵀWA, −AᵀW], [−WA, W + Λ2]],  ξ_z = [ξ1; ξ2]
//
// where (ξ1, Λ1) and (ξ2, Λ2) are the canonical parameters of the messages
// the two variables send into the factor (zero for a unit message, (ξ, W) for
// a likelihood kernel).
func pairGaussian(a, w *matrix.Dense, inEdge, outEdge *factorgraph.Edge) (*dist.Gaussian, error) {
	n, m := a.Cols(), a.Rows()
	xi1, l1, err := canonicalOf(inEdge, n)
	if err != nil {
		return nil, err
	}
	xi2, l2, err := canonicalOf(outEdge, m)
	if err != nil {
		return nil, err
	}

	at, err := matrix.Transpose(a)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	atw, err := matrix.Mul(at, w)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	atwa, err := matrix.Mul(atw, a)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	a11, err := matrix.Add(l1, atwa)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	a12, err := matrix.Scale(atw, -1)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	a21, err := matrix.Transpose(a12)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	a22, err := matrix.Add(w, l2)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	prec, err := matrix.NewBlock(a11, a12, a21, a22)
	if err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}
	if prec, err = matrix.Symmetrize(prec); err != nil {
		return nil, fault.FromMatrix(opBethe, err)
	}

	return dist.NewGaussianCanonical(append(xi1, xi2...), prec)
}

func canonicalOf(e *factorgraph.Edge, k int) ([]float64, *matrix.Dense, error) {
	msg, err := inbound(e)
	if err != nil {
		return nil, nil, fault.WithNode(err, e.Variable.ID)
	}
	switch d := msg.Dist.(type) {
	case nil:
		zero, err := matrix.NewDense(k, k)
		if err != nil {
			return nil, nil, fault.FromMatrix(opBethe, err)
		}
		return make([]float64, k), zero, nil
	case *dist.Gaussian:
		return d.Xi(), d.Precision(), nil
	case *dist.Likelihood:
		return d.Xi(), d.W(), nil
	default:
		return nil, nil, fault.ConfigAt(e.Variable.ID, opBethe, fault.ErrNoRule, "%s message into a pairwise belief", msg.Kind())
	}
}

// jointResidual returns E[r] and Cov[r] for r = out − A·in under the joint
// belief over (in, out), in of dimension n:
//
//	Cov[r] = Σ22 − AΣ12 − (AΣ12)ᵀ + AΣ11Aᵀ
func jointResidual(a *matrix.Dense, joint *dist.Gaussian, n int) ([]float64, *matrix.Dense, error) {
	z, cov := joint.Mean(), joint.Cov()
	size := len(z)

	muIn, err := matrix.SliceVec(z, 0, n)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	muOut, err := matrix.SliceVec(z, n, size)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	rbar, err := residual(a, muIn, muOut)
	if err != nil {
		return nil, nil, err
	}

	s11, err := matrix.Slice(cov, 0, n, 0, n)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	s12, err := matrix.Slice(cov, 0, n, n, size)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	s22, err := matrix.Slice(cov, n, size, n, size)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	as12, err := matrix.Mul(a, s12)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	cross, err := matrix.Transpose(as12)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	if cross, err = matrix.Add(as12, cross); err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	asa, err := sandwich(a, s11)
	if err != nil {
		return nil, nil, err
	}
	covR, err := matrix.Sub(s22, cross)
	if err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}
	if covR, err = matrix.Add(covR, asa); err != nil {
		return nil, nil, fault.FromMatrix(opBethe, err)
	}

	return rbar, covR, nil
}

// categoricalTerm returns U − H for p(out = i | in = j) = A[i][j].
// Terms with A[i][j] = 0 carry zero belief and are skipped (0·log 0 = 0).
func (b *bethe) categoricalTerm(f *factorgraph.Factor, p factorgraph.CategoricalTransition) (float64, error) {
	inEdge, outEdge := f.EdgeByRole(factorgraph.RoleIn), f.EdgeByRole(factorgraph.RoleOut)
	yIn, yOut := observed(inEdge.Variable), observed(outEdge.Variable)
	a := p.A()
	at := func(i, j int) float64 {
		v, _ := a.At(i, j)
		return v
	}

	switch {
	case yIn != nil && yOut != nil:
		v := at(yOut.Index(), yIn.Index())
		if v == 0 {
			return 0, fault.Numerical(opBethe, fault.ErrDegenerateFusion)
		}
		return -math.Log(v), nil
	case yOut != nil:
		c, err := b.categoricalMarginal(inEdge.Variable)
		if err != nil {
			return 0, err
		}
		var u float64
		for j := 0; j < c.Dim(); j++ {
			if v := at(yOut.Index(), j); v > 0 {
				u -= c.At(j) * math.Log(v)
			}
		}
		return u - c.Entropy(), nil
	case yIn != nil:
		c, err := b.categoricalMarginal(outEdge.Variable)
		if err != nil {
			return 0, err
		}
		var u float64
		for i := 0; i < c.Dim(); i++ {
			if v := at(i, yIn.Index()); v > 0 {
				u -= c.At(i) * math.Log(v)
			}
		}
		return u - c.Entropy(), nil
	}

	mIn, err := categoricalWeights(inEdge, p.InDim())
	if err != nil {
		return 0, err
	}
	mOut, err := categoricalWeights(outEdge, p.OutDim())
	if err != nil {
		return 0, err
	}
	var z float64
	joint := make([][]float64, p.OutDim())
	for i := range joint {
		joint[i] = make([]float64, p.InDim())
		for j := range joint[i] {
			joint[i][j] = mOut[i] * at(i, j) * mIn[j]
			z += joint[i][j]
		}
	}
	if !(z > 0) {
		return 0, fault.Numerical(opBethe, fault.ErrDegenerateFusion)
	}
	var u, h float64
	for i := range joint {
		for j, w := range joint[i] {
			if w == 0 {
				continue
			}
			bij := w / z
			u -= bij * math.Log(at(i, j))
			h -= bij * math.Log(bij)
		}
	}

	return u - h, nil
}

func (b *bethe) categoricalMarginal(v *factorgraph.Variable) (*dist.Categorical, error) {
	d, err := b.marginal(v)
	if err != nil {
		return nil, err
	}
	c, ok := d.(*dist.Categorical)
	if !ok {
		return nil, fault.ConfigAt(v.ID, opBethe, fault.ErrFamilyMismatch, "belief is %s", dist.KindOf(d))
	}

	return c, nil
}

// categoricalWeights returns the probability vector a variable sends into
// the factor, all ones for the unit message.
func categoricalWeights(e *factorgraph.Edge, k int) ([]float64, error) {
	msg, err := inbound(e)
	if err != nil {
		return nil, fault.WithNode(err, e.Variable.ID)
	}

	return weightsOf(msg, k), nil
}

func weightsOf(msg message.Scaled, k int) []float64 {
	switch d := msg.Dist.(type) {
	case *dist.Categorical:
		return d.Probs()
	case *dist.PointMass:
		return d.Value()
	default:
		ones := make([]float64, k)
		for i := range ones {
			ones[i] = 1
		}
		return ones
	}
}
