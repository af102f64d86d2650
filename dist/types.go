// SPDX-License-Identifier: MIT

// Package dist declares the distribution kinds that travel as messages:
// Gaussian (both parameterisations kept in sync), Categorical, PointMass and
// the unnormalized Gaussian Likelihood kernel.
// A nil Distribution stands for the unit (constant) message.
//
// All distributions are immutable once constructed; accessors return copies.
package dist

import "math"

// Kind tags a message payload. KindUnit is the zero value and means "no
// distribution": the constant function.
type Kind uint8

const (
	KindUnit Kind = iota
	KindGaussian
	KindCategorical
	KindPointMass
	KindLikelihood
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindGaussian:
		return "gaussian"
	case KindCategorical:
		return "categorical"
	case KindPointMass:
		return "pointmass"
	case KindLikelihood:
		return "likelihood"
	default:
		return "unknown"
	}
}

// Family is the value space of a variable.
type Family uint8

const (
	FamilyGaussian Family = iota + 1
	FamilyCategorical
)

func (f Family) String() string {
	switch f {
	case FamilyGaussian:
		return "gaussian"
	case FamilyCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// ParseFamily maps "gaussian" and "categorical" to their Family.
func ParseFamily(s string) (Family, bool) {
	switch s {
	case "gaussian":
		return FamilyGaussian, true
	case "categorical":
		return FamilyCategorical, true
	default:
		return 0, false
	}
}

// log2Pi is log(2π).
var log2Pi = math.Log(2 * math.Pi)

// Log2Pi returns log(2π).
func Log2Pi() float64 { return log2Pi }

// Distribution is implemented by *Gaussian, *Categorical, *PointMass and
// *Likelihood only.
type Distribution interface {
	Kind() Kind
	Family() Family
	Dim() int
	sealed()
}

// KindOf returns the kind of d, KindUnit for nil.
func KindOf(d Distribution) Kind {
	if d == nil {
		return KindUnit
	}

	return d.Kind()
}
