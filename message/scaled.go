// SPDX-License-Identifier: MIT

// Package message defines the scaled message and the fusion operator.
//
// A Scaled{Dist, Scale} represents the function exp(-Scale)·Dist(x): Dist is
// normalized and Scale carries the negative log of everything dropped to keep
// it so. The one exception is a dist.Likelihood kernel, which a backward
// linear-Gaussian message may be; its Scale holds every constant outside
// exp(ξᵀx − ½xᵀWx). A nil Dist is the constant function exp(-Scale).
//
// Fusing every message that reaches a variable therefore yields a normalized
// belief whose Scale is -log p(y), the same at every variable of a tree.
package message

import (
	"fmt"

	"github.com/katalvlaran/scalebp/dist"
)

// Scaled is a message exp(-Scale)·Dist(x).
type Scaled struct {
	Dist  dist.Distribution
	Scale float64
}

// Unit returns the constant-one message.
func Unit() Scaled { return Scaled{} }

// New returns Scaled{d, scale}.
func New(d dist.Distribution, scale float64) Scaled { return Scaled{Dist: d, Scale: scale} }

// Kind returns the kind of the payload, dist.KindUnit for a constant.
func (m Scaled) Kind() dist.Kind { return dist.KindOf(m.Dist) }

// IsUnit reports whether m carries no distribution.
func (m Scaled) IsUnit() bool { return m.Dist == nil }

// Shift returns m with delta added to its scale.
func (m Scaled) Shift(delta float64) Scaled {
	m.Scale += delta
	return m
}

// LogEvidence returns -Scale.
func (m Scaled) LogEvidence() float64 { return -m.Scale }

func (m Scaled) String() string {
	if m.Dist == nil {
		return fmt.Sprintf("unit(scale=%.6g)", m.Scale)
	}

	return fmt.Sprintf("%s[%d](scale=%.6g)", m.Kind(), m.Dist.Dim(), m.Scale)
}
