// SPDX-License-Identifier: MIT

package rules

import (
	"math"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
	"github.com/katalvlaran/scalebp/message"
)

const opCategoricalRule = "rules.categorical"

// categoricalForward computes normalize(A·p) with Δ = −log Σ(A·p).
// A unit input is the all-ones vector, giving the row sums of A.
func categoricalForward(f *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error) {
	a := f.Params.(factorgraph.CategoricalTransition).A()
	w, err := matrix.MatVec(a, weights(in.Dist, a.Cols()))
	if err != nil {
		return nil, 0, fault.FromMatrix(opCategoricalRule, err)
	}

	return normalized(w)
}

// categoricalBackward computes normalize(Aᵀ·q) with Δ = −log Σ(Aᵀ·q).
// A unit input gives the column sums of A.
func categoricalBackward(f *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error) {
	a := f.Params.(factorgraph.CategoricalTransition).A()
	w, err := matrix.MatTVec(a, weights(in.Dist, a.Rows()))
	if err != nil {
		return nil, 0, fault.FromMatrix(opCategoricalRule, err)
	}

	return normalized(w)
}

// weights returns the probability vector of a categorical or one-hot point
// mass, or the all-ones vector of length k for the unit message.
func weights(d dist.Distribution, k int) []float64 {
	switch d := d.(type) {
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

func normalized(w []float64) (dist.Distribution, float64, error) {
	p, sum, err := dist.Normalize(w)
	if err != nil {
		return nil, 0, err
	}
	out, err := dist.NewCategorical(p)
	if err != nil {
		return nil, 0, err
	}

	return out, -math.Log(sum), nil
}
