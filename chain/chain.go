// SPDX-License-Identifier: MIT

// Package chain builds state-space chains on a factor graph and runs them:
// linear-Gaussian state-space models (GaussianTransition) and hidden Markov
// models (CategoricalTransition).
//
// Layout of a chain with n steps:
//
//	prior ─ x0 ─ trans_1 ─ x1 ─ trans_2 ─ … ─ xn
//	             obs_1 ─┘                 obs_n ─┘
//	              y1 ─ clamp_1             yn ─ clamp_n
//
// x_t are latent, y_t observed through clamp_t. Observations are keyed by
// step 1..n; a missing step leaves its clamp inactive.
//
// Entry points:
//
//	RunFilter   - full forward sweep, filtered marginals, log-evidence.
//	RunSmoother - full forward and backward sweeps, smoothed marginals,
//	              log-evidence and cut discrepancy.
//	Append      - streaming: one more step, forward messages of the new
//	              suffix only.
//	Smooth      - explicit full backward rerun after appends.
//	Concat      - two independent chains in one graph (a forest).
package chain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/evidence"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/message"
	"github.com/katalvlaran/scalebp/schedule"
)

const (
	opBuild   = "chain.BuildChain"
	opObserve = "chain.Observe"
	opConcat  = "chain.Concat"
)

// Observations maps a step (1-based) to its observed value.
type Observations map[int]*dist.PointMass

// Result is the outcome of a filter or smoother run.
type Result struct {
	// IDs are the latent variable IDs in chain order (x0..xn per segment).
	IDs []string
	// Marginals are the beliefs of IDs: filtered or smoothed.
	Marginals []dist.Distribution
	// LogEvidence is log p(y); valid only when HasEvidence.
	LogEvidence float64
	// HasEvidence is false in filtering mode.
	HasEvidence bool
	// MaxCutDiscrepancy is set by smoother runs.
	MaxCutDiscrepancy float64
}

// Option configures BuildChain and Concat.
type Option func(o *options)

type options struct {
	graph  []factorgraph.GraphOption
	engine []schedule.Option
}

// WithMode selects the engine mode of the chain's graph.
func WithMode(m factorgraph.Mode) Option {
	return func(o *options) { o.graph = append(o.graph, factorgraph.WithMode(m)) }
}

// WithLogger sets the logger of the chain's graph and engine.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.graph = append(o.graph, factorgraph.WithLogger(l)) }
}

// WithEngineOptions passes options to the chain's engine.
func WithEngineOptions(opts ...schedule.Option) Option {
	return func(o *options) { o.engine = append(o.engine, opts...) }
}

// segment is one chain inside the graph; Concat produces several.
type segment struct {
	prefix      string
	steps       int
	transition  factorgraph.Params
	observation factorgraph.Params
	obsFamily   dist.Family
	obsDim      int
}

func (s *segment) stateID(t int) string { return fmt.Sprintf("%sx%d", s.prefix, t) }
func (s *segment) obsID(t int) string   { return fmt.Sprintf("%sy%d", s.prefix, t) }
func (s *segment) transID(t int) string { return fmt.Sprintf("%strans_%d", s.prefix, t) }
func (s *segment) emitID(t int) string  { return fmt.Sprintf("%sobs_%d", s.prefix, t) }
func (s *segment) clampID(t int) string { return fmt.Sprintf("%sclamp_%d", s.prefix, t) }
func (s *segment) priorID() string      { return s.prefix + "prior" }

// Chain is a built chain together with its engine.
type Chain struct {
	g        *factorgraph.Graph
	eng      *schedule.Engine
	segments []*segment
}

// Graph returns the chain's factor graph.
func (c *Chain) Graph() *factorgraph.Graph { return c.g }

// Engine returns the chain's engine.
func (c *Chain) Engine() *schedule.Engine { return c.eng }

// Steps returns the number of observation steps over all segments.
func (c *Chain) Steps() int {
	n := 0
	for _, s := range c.segments {
		n += s.steps
	}

	return n
}

// BuildChain builds a chain of steps transitions and observations.
// Transition and observation must both be GaussianTransition or both be
// CategoricalTransition; prior must be of the same family as the state.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} for nil input or steps < 0.
//   - ConfigurationError{ErrFamilyMismatch | ErrDimensionMismatch} for
//     incompatible parameters, naming the factor where they met.
func BuildChain(prior dist.Distribution, transition, observation factorgraph.Params, steps int, opts ...Option) (*Chain, error) {
	if prior == nil || transition == nil || observation == nil || steps < 0 {
		return nil, fault.Configf(opBuild, fault.ErrInvalidParams, "prior, transition and observation are required and steps >= 0 (got %d)", steps)
	}
	seg, err := newSegment("", transition, observation)
	if err != nil {
		return nil, err
	}
	pr, err := factorgraph.NewPrior(prior)
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	g := factorgraph.NewGraph(o.graph...)
	if _, err = g.AddVariable(seg.stateID(0), prior.Family(), prior.Dim()); err != nil {
		return nil, err
	}
	if _, err = g.AddFactor(seg.priorID(), pr); err != nil {
		return nil, err
	}
	if _, err = g.Connect(seg.stateID(0), seg.priorID(), factorgraph.RoleValue); err != nil {
		return nil, err
	}

	c := &Chain{g: g, segments: []*segment{seg}}
	for t := 1; t <= steps; t++ {
		if err = c.addStep(seg, prior.Family(), prior.Dim()); err != nil {
			return nil, err
		}
	}
	c.eng = schedule.NewEngine(g, o.engine...)
	g.Logger().Debug("chain built", "steps", steps, "family", prior.Family(), "mode", g.Mode())

	return c, nil
}

func newSegment(prefix string, transition, observation factorgraph.Params) (*segment, error) {
	s := &segment{prefix: prefix, transition: transition, observation: observation}
	switch obs := observation.(type) {
	case factorgraph.GaussianTransition:
		if _, ok := transition.(factorgraph.GaussianTransition); !ok {
			return nil, fault.Configf(opBuild, fault.ErrFamilyMismatch, "%s transition with %s observation", transition.Kind(), observation.Kind())
		}
		s.obsFamily, s.obsDim = dist.FamilyGaussian, obs.OutDim()
	case factorgraph.CategoricalTransition:
		if _, ok := transition.(factorgraph.CategoricalTransition); !ok {
			return nil, fault.Configf(opBuild, fault.ErrFamilyMismatch, "%s transition with %s observation", transition.Kind(), observation.Kind())
		}
		s.obsFamily, s.obsDim = dist.FamilyCategorical, obs.OutDim()
	default:
		return nil, fault.Configf(opBuild, fault.ErrInvalidParams, "observation must be a transition, got %s", observation.Kind())
	}

	return s, nil
}

// addStep appends x_t, y_t and their factors to seg, t = seg.steps+1.
// x_t is added before y_t so the newest latent state becomes the root.
func (c *Chain) addStep(seg *segment, family dist.Family, dim int) error {
	t := seg.steps + 1
	g := c.g
	if _, err := g.AddVariable(seg.stateID(t), family, dim); err != nil {
		return err
	}
	if _, err := g.AddVariable(seg.obsID(t), seg.obsFamily, seg.obsDim); err != nil {
		return err
	}
	factors := []struct {
		id string
		p  factorgraph.Params
	}{
		{seg.transID(t), seg.transition},
		{seg.emitID(t), seg.observation},
		{seg.clampID(t), factorgraph.Clamp{Family: seg.obsFamily, Dim: seg.obsDim}},
	}
	for _, f := range factors {
		if _, err := g.AddFactor(f.id, f.p); err != nil {
			return err
		}
	}
	links := []struct {
		v, f string
		r    factorgraph.Role
	}{
		{seg.stateID(t - 1), seg.transID(t), factorgraph.RoleIn},
		{seg.stateID(t), seg.transID(t), factorgraph.RoleOut},
		{seg.stateID(t), seg.emitID(t), factorgraph.RoleIn},
		{seg.obsID(t), seg.emitID(t), factorgraph.RoleOut},
		{seg.obsID(t), seg.clampID(t), factorgraph.RoleValue},
	}
	for _, l := range links {
		if _, err := g.Connect(l.v, l.f, l.r); err != nil {
			return err
		}
	}
	seg.steps = t

	return nil
}

// clamps lists the clamp factor IDs in global step order.
func (c *Chain) clamps() []string {
	var ids []string
	for _, s := range c.segments {
		for t := 1; t <= s.steps; t++ {
			ids = append(ids, s.clampID(t))
		}
	}

	return ids
}

// states lists the latent variable IDs in chain order.
func (c *Chain) states() []string {
	var ids []string
	for _, s := range c.segments {
		for t := 0; t <= s.steps; t++ {
			ids = append(ids, s.stateID(t))
		}
	}

	return ids
}

// Observe sets every clamp from obs; steps missing from obs are unclamped.
// Clamps whose value is unchanged are left alone, so incremental sweeps
// reuse their messages.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} for a step outside 1..Steps().
//   - Clamp errors (family or dimension mismatch) naming the clamp.
func (c *Chain) Observe(obs Observations) error {
	ids := c.clamps()
	for k := range obs {
		if k < 1 || k > len(ids) {
			return fault.Configf(opObserve, fault.ErrInvalidParams, "no step %d in a chain of %d", k, len(ids))
		}
	}
	for i, id := range ids {
		f, _ := c.g.Factor(id)
		v := obs[i+1]
		if f.ClampValue() == v {
			continue
		}
		if err := c.g.Clamp(id, v); err != nil {
			return err
		}
	}

	return nil
}

// RunFilter clamps obs, runs a full forward sweep and returns the filtered
// marginals of x0..xn together with the log-evidence.
func RunFilter(ctx context.Context, c *Chain, obs Observations) (Result, error) {
	if err := c.Observe(obs); err != nil {
		return Result{}, err
	}
	if err := c.eng.Forward(ctx, true); err != nil {
		return Result{}, err
	}

	return c.filtered()
}

// RunSmoother clamps obs, runs full forward and backward sweeps and returns
// the smoothed marginals with the log-evidence and the cut discrepancy.
func RunSmoother(ctx context.Context, c *Chain, obs Observations) (Result, error) {
	if err := c.Observe(obs); err != nil {
		return Result{}, err
	}
	if err := c.eng.Forward(ctx, true); err != nil {
		return Result{}, err
	}
	if err := c.eng.Backward(ctx, true); err != nil {
		return Result{}, err
	}

	return c.smoothed(ctx)
}

// Append adds one step observing obs (nil for a missing observation) to the
// last segment and runs an incremental forward sweep: only the messages of
// the new suffix are computed. The result holds the filtered marginals.
// Smoothed marginals need an explicit Smooth.
func (c *Chain) Append(ctx context.Context, obs *dist.PointMass) (Result, error) {
	seg := c.segments[len(c.segments)-1]
	x0, _ := c.g.Variable(seg.stateID(0))
	if err := c.addStep(seg, x0.Family, x0.Dim); err != nil {
		return Result{}, err
	}
	if obs != nil {
		if err := c.g.Clamp(seg.clampID(seg.steps), obs); err != nil {
			return Result{}, err
		}
	}
	if err := c.eng.Forward(ctx, false); err != nil {
		return Result{}, err
	}

	return c.filtered()
}

// Smooth reruns the full backward sweep (after bringing forward messages up
// to date) and returns the smoothed result.
func (c *Chain) Smooth(ctx context.Context) (Result, error) {
	if err := c.eng.Forward(ctx, false); err != nil {
		return Result{}, err
	}
	if err := c.eng.Backward(ctx, true); err != nil {
		return Result{}, err
	}

	return c.smoothed(ctx)
}

func (c *Chain) filtered() (Result, error) {
	res := Result{IDs: c.states()}
	if err := c.read(&res, c.eng.Filtered); err != nil {
		return Result{}, err
	}
	if c.g.Mode() == factorgraph.ModeFiltering {
		return res, nil
	}
	p, err := c.eng.Plan()
	if err != nil {
		return Result{}, err
	}
	for _, comp := range p.Components {
		m, err := c.eng.Marginal(comp.Root.ID)
		if err != nil {
			return Result{}, err
		}
		res.LogEvidence += m.LogEvidence()
	}
	res.HasEvidence = true

	return res, nil
}

func (c *Chain) smoothed(ctx context.Context) (Result, error) {
	res := Result{IDs: c.states()}
	if c.g.Mode() == factorgraph.ModeFiltering {
		if err := c.read(&res, c.eng.Marginal); err != nil {
			return Result{}, err
		}
		return res, nil
	}
	rep, err := evidence.Compute(ctx, c.eng)
	if err != nil {
		return Result{}, err
	}
	for _, id := range res.IDs {
		res.Marginals = append(res.Marginals, rep.Marginals[id])
	}
	res.LogEvidence = rep.LogEvidence
	res.MaxCutDiscrepancy = rep.MaxCutDiscrepancy
	res.HasEvidence = true

	return res, nil
}

func (c *Chain) read(res *Result, belief func(string) (message.Scaled, error)) error {
	res.Marginals = make([]dist.Distribution, 0, len(res.IDs))
	for _, id := range res.IDs {
		m, err := belief(id)
		if err != nil {
			return err
		}
		res.Marginals = append(res.Marginals, m.Dist)
	}

	return nil
}

// Concat places a and b, with their current observations, side by side in a
// new graph. The parts share nothing, so the log-evidence of the result is
// the sum of theirs. IDs are prefixed "a/" and "b/"; steps are numbered
// through a first, then b.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} when the two chains differ in mode.
func Concat(a, b *Chain, opts ...Option) (*Chain, error) {
	if a == nil || b == nil {
		return nil, fault.Configf(opConcat, fault.ErrInvalidParams, "nil chain")
	}
	if a.g.Mode() != b.g.Mode() {
		return nil, fault.Configf(opConcat, fault.ErrInvalidParams, "mode %s vs %s", a.g.Mode(), b.g.Mode())
	}
	o := options{graph: []factorgraph.GraphOption{factorgraph.WithMode(a.g.Mode()), factorgraph.WithLogger(a.g.Logger())}}
	for _, opt := range opts {
		opt(&o)
	}

	g := factorgraph.NewGraph(o.graph...)
	c := &Chain{g: g}
	for _, part := range []struct {
		prefix string
		src    *Chain
	}{{"a/", a}, {"b/", b}} {
		if err := g.Import(part.src.g, part.prefix); err != nil {
			return nil, err
		}
		for _, s := range part.src.segments {
			cp := *s
			cp.prefix = part.prefix + s.prefix
			c.segments = append(c.segments, &cp)
		}
	}
	c.eng = schedule.NewEngine(g, o.engine...)

	return c, nil
}
