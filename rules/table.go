// SPDX-License-Identifier: MIT

// Package rules is the node rule library: for a factor, an outgoing port and
// the combined message arriving from its other ports, it computes the
// outgoing scaled message.
//
// Rules are selected through an explicit dispatch table keyed by
// (factor kind, direction, neighbor kind). A rule returns the outgoing payload
// together with Δ, the negative log of the factor mass its normalization
// dropped; Apply adds Δ to the incoming scale. In filtering mode Δ is ignored
// and every output carries scale 0.
//
// Errors:
//
//	fault.ErrNoRule - no table entry for the key (ConfigurationError).
//	Numerical problems (non-PD precision, singular A, degenerate mass) come
//	back as *fault.NumericalError naming the factor.
package rules

import (
	"fmt"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/message"
)

const opApply = "rules.Apply"

// Direction of a rule relative to the factor's ports.
type Direction uint8

const (
	// Forward computes the message toward RoleOut, RoleValue or RoleEquality.
	Forward Direction = iota + 1
	// Backward computes the message toward RoleIn.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}

	return "forward"
}

// DirectionOf maps the target port to a rule direction.
func DirectionOf(target factorgraph.Role) Direction {
	if target == factorgraph.RoleIn {
		return Backward
	}

	return Forward
}

// Key selects a rule.
type Key struct {
	Factor    factorgraph.FactorKind
	Direction Direction
	Neighbor  dist.Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Factor, k.Direction, k.Neighbor)
}

// Rule computes the outgoing payload and Δ for factor f given the combined
// incoming message in. A nil payload is the unit message.
type Rule func(f *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error)

var table = map[Key]Rule{
	{factorgraph.KindPrior, Forward, dist.KindUnit}:            priorForward,
	{factorgraph.KindObservationClamp, Forward, dist.KindUnit}: clampForward,

	{factorgraph.KindLinearGaussianTransition, Forward, dist.KindGaussian}:    gaussianForward,
	{factorgraph.KindLinearGaussianTransition, Forward, dist.KindPointMass}:   gaussianForward,
	{factorgraph.KindLinearGaussianTransition, Forward, dist.KindUnit}:        gaussianForwardUnit,
	{factorgraph.KindLinearGaussianTransition, Backward, dist.KindPointMass}:  gaussianBackward,
	{factorgraph.KindLinearGaussianTransition, Backward, dist.KindGaussian}:   gaussianBackward,
	{factorgraph.KindLinearGaussianTransition, Backward, dist.KindLikelihood}: gaussianBackwardKernel,
	{factorgraph.KindLinearGaussianTransition, Backward, dist.KindUnit}:       passUnit,

	{factorgraph.KindCategoricalTransition, Forward, dist.KindCategorical}:  categoricalForward,
	{factorgraph.KindCategoricalTransition, Forward, dist.KindPointMass}:    categoricalForward,
	{factorgraph.KindCategoricalTransition, Forward, dist.KindUnit}:         categoricalForward,
	{factorgraph.KindCategoricalTransition, Backward, dist.KindCategorical}: categoricalBackward,
	{factorgraph.KindCategoricalTransition, Backward, dist.KindPointMass}:   categoricalBackward,
	{factorgraph.KindCategoricalTransition, Backward, dist.KindUnit}:        categoricalBackward,

	{factorgraph.KindEquality, Forward, dist.KindUnit}:        equality,
	{factorgraph.KindEquality, Forward, dist.KindGaussian}:    equality,
	{factorgraph.KindEquality, Forward, dist.KindCategorical}: equality,
	{factorgraph.KindEquality, Forward, dist.KindPointMass}:   equality,
	{factorgraph.KindEquality, Forward, dist.KindLikelihood}:  equality,
}

// Lookup returns the rule registered for k.
func Lookup(k Key) (Rule, bool) {
	r, ok := table[k]
	return r, ok
}

// Apply computes the message factor f sends through the port target, given
// the messages arriving on its other ports.
//
// Implementation:
//   - Stage 1: combine inputs (Fuse in scaled mode, Product in filtering mode).
//     Only equality factors receive more than one input.
//   - Stage 2: dispatch on (f.Kind(), DirectionOf(target), combined kind).
//   - Stage 3: output scale = combined scale + Δ, or 0 in filtering mode.
//
// Errors:
//   - ConfigurationError{ErrNoRule} when the key is not registered.
//   - Any rule or fusion error, with Node = f.ID.
func Apply(f *factorgraph.Factor, target factorgraph.Role, inputs []message.Scaled, mode factorgraph.Mode) (message.Scaled, error) {
	combine := message.FuseAll
	if mode == factorgraph.ModeFiltering {
		combine = message.ProductAll
	}
	in, err := combine(inputs...)
	if err != nil {
		return message.Scaled{}, fault.WithNode(err, f.ID)
	}

	key := Key{Factor: f.Kind(), Direction: DirectionOf(target), Neighbor: in.Kind()}
	rule, ok := table[key]
	if !ok {
		return message.Scaled{}, fault.ConfigAt(f.ID, opApply, fault.ErrNoRule, "%s", key)
	}
	d, delta, err := rule(f, in)
	if err != nil {
		return message.Scaled{}, fault.WithNode(err, f.ID)
	}
	if mode == factorgraph.ModeFiltering {
		return message.New(d, 0), nil
	}

	return message.New(d, in.Scale+delta), nil
}

func priorForward(f *factorgraph.Factor, _ message.Scaled) (dist.Distribution, float64, error) {
	return f.Params.(factorgraph.Prior).Dist, 0, nil
}

// clampForward emits the clamped point mass, or the unit message while the
// clamp is inactive.
func clampForward(f *factorgraph.Factor, _ message.Scaled) (dist.Distribution, float64, error) {
	if pm := f.ClampValue(); pm != nil {
		return pm, 0, nil
	}

	return nil, 0, nil
}

// equality passes the fused message of the other ports through unchanged;
// the fusion correction is already in its scale.
func equality(_ *factorgraph.Factor, in message.Scaled) (dist.Distribution, float64, error) {
	return in.Dist, 0, nil
}

func passUnit(_ *factorgraph.Factor, _ message.Scaled) (dist.Distribution, float64, error) {
	return nil, 0, nil
}
