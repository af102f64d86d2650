// SPDX-License-Identifier: MIT
// File: bethe.go
// Role: Bethe Free Energy over the beliefs of a converged engine.
//
//	F = Σ_a (U_a − H_a) + Σ_i (d_i − 1)·H_i
//
// where U_a = −E_{b_a}[log f_a], H_a is the entropy of the factor belief b_a,
// H_i the entropy of the variable belief and d_i the number of factors on
// latent variable i. On a tree F = −log p(y).
//
// Observed variables (active clamp) are constants: each factor is conditioned
// on them and its belief ranges over its latent ports only. Clamp factors
// themselves contribute nothing; an inactive clamp is a unit factor whose
// U − H cancels its own degree term, so it is skipped together with it.
package evidence

import (
	"math"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
	"github.com/katalvlaran/scalebp/message"
	"github.com/katalvlaran/scalebp/schedule"
)

const opBethe = "evidence.BetheFreeEnergy"

// BetheFreeEnergy evaluates F from the engine's current beliefs. The engine
// must have completed both sweeps.
//
// Errors:
//   - fault.ErrStale / schedule.ErrNotComputed when a belief is not current.
//   - ConfigurationError{ErrNoRule} for an equality factor touching an
//     observed variable or a point-mass message into a pairwise belief.
//   - Numerical errors from the pairwise Gaussian factorization.
func BetheFreeEnergy(eng *schedule.Engine) (float64, error) {
	b := bethe{eng: eng, marg: make(map[*factorgraph.Variable]dist.Distribution)}
	p, err := eng.Plan()
	if err != nil {
		return 0, err
	}

	var total float64
	for _, c := range p.Components {
		for _, f := range c.Factors {
			if f.Kind() == factorgraph.KindObservationClamp {
				continue
			}
			fe, err := b.factorTerm(f)
			if err != nil {
				return 0, fault.WithNode(err, f.ID)
			}
			total += fe
		}
		for _, v := range c.Variables {
			if observed(v) != nil {
				continue
			}
			h, err := b.entropy(v)
			if err != nil {
				return 0, err
			}
			total += float64(degree(v)-1) * h
		}
	}

	return total, nil
}

type bethe struct {
	eng  *schedule.Engine
	marg map[*factorgraph.Variable]dist.Distribution
}

func (b *bethe) marginal(v *factorgraph.Variable) (dist.Distribution, error) {
	if d, ok := b.marg[v]; ok {
		return d, nil
	}
	m, err := b.eng.Marginal(v.ID)
	if err != nil {
		return nil, err
	}
	b.marg[v] = m.Dist

	return m.Dist, nil
}

func (b *bethe) entropy(v *factorgraph.Variable) (float64, error) {
	d, err := b.marginal(v)
	if err != nil {
		return 0, err
	}
	switch d := d.(type) {
	case *dist.Gaussian:
		return d.Entropy(), nil
	case *dist.Categorical:
		return d.Entropy(), nil
	default:
		return 0, fault.ConfigAt(v.ID, opBethe, fault.ErrNoRule, "latent belief is %s", dist.KindOf(d))
	}
}

// observed returns the active clamp value of v, nil for a latent variable.
func observed(v *factorgraph.Variable) *dist.PointMass {
	for _, e := range v.Edges() {
		if e.Factor.Kind() == factorgraph.KindObservationClamp {
			if pm := e.Factor.ClampValue(); pm != nil {
				return pm
			}
		}
	}

	return nil
}

// degree counts the non-clamp factors on v.
func degree(v *factorgraph.Variable) int {
	n := 0
	for _, e := range v.Edges() {
		if e.Factor.Kind() != factorgraph.KindObservationClamp {
			n++
		}
	}

	return n
}

// factorTerm returns U_a − H_a.
func (b *bethe) factorTerm(f *factorgraph.Factor) (float64, error) {
	switch p := f.Params.(type) {
	case factorgraph.Prior:
		return b.priorTerm(f, p)
	case factorgraph.GaussianTransition:
		return b.gaussianTerm(f, p)
	case factorgraph.CategoricalTransition:
		return b.categoricalTerm(f, p)
	case factorgraph.Equality:
		return b.equalityTerm(f)
	default:
		return 0, fault.Configf(opBethe, fault.ErrNoRule, "%s factor", f.Kind())
	}
}

func (b *bethe) priorTerm(f *factorgraph.Factor, p factorgraph.Prior) (float64, error) {
	v := f.EdgeByRole(factorgraph.RoleValue).Variable
	if y := observed(v); y != nil {
		return negLogAt(p.Dist, y)
	}
	d, err := b.marginal(v)
	if err != nil {
		return 0, err
	}
	switch prior := p.Dist.(type) {
	case *dist.Gaussian:
		g, ok := d.(*dist.Gaussian)
		if !ok {
			return 0, fault.Configf(opBethe, fault.ErrFamilyMismatch, "belief is %s", dist.KindOf(d))
		}
		u, err := crossEntropyGaussian(g, prior)
		if err != nil {
			return 0, err
		}
		return u - g.Entropy(), nil
	case *dist.Categorical:
		c, ok := d.(*dist.Categorical)
		if !ok {
			return 0, fault.Configf(opBethe, fault.ErrFamilyMismatch, "belief is %s", dist.KindOf(d))
		}
		var u float64
		for i := 0; i < c.Dim(); i++ {
			u -= c.At(i) * math.Log(prior.At(i))
		}
		return u - c.Entropy(), nil
	default:
		return 0, fault.Configf(opBethe, fault.ErrNoRule, "prior of kind %s", dist.KindOf(p.Dist))
	}
}

// negLogAt returns −log d(y) for a Gaussian density or a categorical mass.
func negLogAt(d dist.Distribution, y *dist.PointMass) (float64, error) {
	switch d := d.(type) {
	case *dist.Gaussian:
		return d.NegLogDensity(y.Value())
	case *dist.Categorical:
		return -math.Log(d.At(y.Index())), nil
	default:
		return 0, fault.Configf(opBethe, fault.ErrNoRule, "density of kind %s", dist.KindOf(d))
	}
}

// crossEntropyGaussian returns −E_b[log N(x; m, P)]
// = ½[d·log2π + log|P| + tr(P⁻¹Σ_b) + (μ_b−m)ᵀP⁻¹(μ_b−m)].
func crossEntropyGaussian(belief, prior *dist.Gaussian) (float64, error) {
	w := prior.Precision()
	tr, err := traceProduct(w, belief.Cov())
	if err != nil {
		return 0, err
	}
	r, err := matrix.SubVec(belief.Mean(), prior.Mean())
	if err != nil {
		return 0, fault.FromMatrix(opBethe, err)
	}
	q, err := matrix.QuadForm(r, w, r)
	if err != nil {
		return 0, fault.FromMatrix(opBethe, err)
	}

	return 0.5 * (float64(belief.Dim())*dist.Log2Pi() + prior.LogDetCov() + tr + q), nil
}

func traceProduct(a, c matrix.Matrix) (float64, error) {
	m, err := matrix.Mul(a, c)
	if err != nil {
		return 0, fault.FromMatrix(opBethe, err)
	}
	tr, err := matrix.Trace(m)
	if err != nil {
		return 0, fault.FromMatrix(opBethe, err)
	}

	return tr, nil
}

// equalityTerm: the factor belief lives on the diagonal x_1 = … = x_n, so
// U_a − H_a = −H(b) with b the common belief of the ports.
func (b *bethe) equalityTerm(f *factorgraph.Factor) (float64, error) {
	edges := f.Edges()
	for _, e := range edges {
		if observed(e.Variable) != nil {
			return 0, fault.Configf(opBethe, fault.ErrNoRule, "equality port %q is observed", e.Variable.ID)
		}
	}
	h, err := b.entropy(edges[0].Variable)
	if err != nil {
		return 0, err
	}

	return -h, nil
}

// inbound returns the message a variable sends into f along e.
func inbound(e *factorgraph.Edge) (message.Scaled, error) {
	s := e.Slot(factorgraph.ToFactor)
	switch {
	case s.Stale:
		return message.Scaled{}, fault.ErrStale
	case !s.Valid:
		return message.Scaled{}, schedule.ErrNotComputed
	}

	return s.Msg, nil
}
