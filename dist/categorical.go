// SPDX-License-Identifier: MIT

package dist

import (
	"math"

	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

// ProbFloor is the smallest probability a normalized Categorical holds.
// Exact zeros would make later log-normalizers infinite.
const ProbFloor = 1e-300

const opCategorical = "dist.NewCategorical"

// Categorical is a normalized probability vector over k states.
type Categorical struct {
	p []float64
}

var _ Distribution = (*Categorical)(nil)

func (*Categorical) Kind() Kind         { return KindCategorical }
func (*Categorical) Family() Family     { return FamilyCategorical }
func (c *Categorical) Dim() int         { return len(c.p) }
func (*Categorical) sealed()            {}
func (c *Categorical) Probs() []float64 { return matrix.CloneVec(c.p) }

// At returns p[i] without copying; i must be in range.
func (c *Categorical) At(i int) float64 { return c.p[i] }

// Normalize returns w/Σw with entries floored at ProbFloor, and Σw.
// The sum is what rules turn into a scale increment.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} for empty input, negative or
//     non-finite weights.
//   - NumericalError{ErrDegenerateFusion} when every weight is zero.
func Normalize(w []float64) ([]float64, float64, error) {
	if len(w) == 0 {
		return nil, 0, fault.Configf(opCategorical, fault.ErrInvalidParams, "empty probability vector")
	}
	var sum float64
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, 0, fault.Configf(opCategorical, fault.ErrInvalidParams, "weight %d is %g", i, v)
		}
		sum += v
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, 0, fault.Numerical(opCategorical, fault.ErrDegenerateFusion)
	}
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = math.Max(v/sum, ProbFloor)
	}

	return out, sum, nil
}

// NewCategorical normalizes p into a Categorical.
//
// Errors: as Normalize.
func NewCategorical(p []float64) (*Categorical, error) {
	q, _, err := Normalize(p)
	if err != nil {
		return nil, err
	}

	return &Categorical{p: q}, nil
}

// Uniform returns the uniform Categorical over k ≥ 1 states.
func Uniform(k int) (*Categorical, error) {
	if k < 1 {
		return nil, fault.Configf(opCategorical, fault.ErrInvalidParams, "uniform over %d states", k)
	}
	p := make([]float64, k)
	for i := range p {
		p[i] = 1 / float64(k)
	}

	return &Categorical{p: p}, nil
}

// Entropy returns −Σ p log p with 0·log 0 = 0.
func (c *Categorical) Entropy() float64 {
	var h float64
	for _, v := range c.p {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}

	return h
}

// ArgMax returns the index of the largest probability (lowest index on ties).
func (c *Categorical) ArgMax() int {
	best := 0
	for i := 1; i < len(c.p); i++ {
		if c.p[i] > c.p[best] {
			best = i
		}
	}

	return best
}
