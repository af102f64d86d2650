// SPDX-License-Identifier: MIT

package dist

import (
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

const opPointMass = "dist.NewPointMass"

// PointMass is a clamped value. A Gaussian-family point mass holds a vector
// in ℝᵈ; a Categorical-family point mass is one-hot over k states.
type PointMass struct {
	family Family
	value  []float64
	index  int // hot index for the categorical family, -1 otherwise
}

var _ Distribution = (*PointMass)(nil)

func (*PointMass) Kind() Kind         { return KindPointMass }
func (p *PointMass) Family() Family   { return p.family }
func (p *PointMass) Dim() int         { return len(p.value) }
func (*PointMass) sealed()            {}
func (p *PointMass) Value() []float64 { return matrix.CloneVec(p.value) }

// Index returns the hot state of a categorical point mass, -1 for Gaussian.
func (p *PointMass) Index() int { return p.index }

// NewPointMass builds a point mass of the given family at value.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} for empty or non-finite values,
//     an unknown family, or a categorical value that is not one-hot.
func NewPointMass(family Family, value []float64) (*PointMass, error) {
	if len(value) == 0 || !matrix.VecFinite(value) {
		return nil, fault.Configf(opPointMass, fault.ErrInvalidParams, "value must be non-empty and finite")
	}
	switch family {
	case FamilyGaussian:
		return &PointMass{family: family, value: matrix.CloneVec(value), index: -1}, nil
	case FamilyCategorical:
		hot := -1
		for i, v := range value {
			switch {
			case v == 1 && hot < 0:
				hot = i
			case v != 0:
				return nil, fault.Configf(opPointMass, fault.ErrInvalidParams, "categorical value is not one-hot")
			}
		}
		if hot < 0 {
			return nil, fault.Configf(opPointMass, fault.ErrInvalidParams, "categorical value is not one-hot")
		}
		return &PointMass{family: family, value: matrix.CloneVec(value), index: hot}, nil
	default:
		return nil, fault.Configf(opPointMass, fault.ErrInvalidParams, "unknown family %d", family)
	}
}

// Point is NewPointMass(FamilyGaussian, x).
func Point(x ...float64) (*PointMass, error) {
	return NewPointMass(FamilyGaussian, x)
}

// OneHot returns the categorical point mass on state index out of k.
func OneHot(k, index int) (*PointMass, error) {
	if k < 1 || index < 0 || index >= k {
		return nil, fault.Configf(opPointMass, fault.ErrInvalidParams, "state %d out of %d", index, k)
	}
	v := make([]float64, k)
	v[index] = 1

	return &PointMass{family: FamilyCategorical, value: v, index: index}, nil
}
