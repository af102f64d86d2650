// SPDX-License-Identifier: MIT

// Package schedule drives message passing over a factor graph: it plans the
// traversal, runs the inward (forward) and outward (backward) sweeps, keeps
// every edge slot current, and reads beliefs off the slots.
//
// Incremental mode:
//
//	A step is skipped when its slot is valid, not stale, and its basis
//	revision is at least the newest revision among its inputs and its sender.
//	Sweeping with full=true recomputes every slot regardless.
//
// Failure:
//
//	The failing slot and every later slot of the sweep are flagged stale;
//	a forward failure also flags the outward slots it would have fed. Reading
//	a belief through a stale slot returns fault.ErrStale until a later sweep
//	recomputes it. A forward sweep that changes anything invalidates the
//	outward slots of that component, so smoothed beliefs read before the next
//	backward sweep return ErrNotComputed instead of outdated values.
//
// Concurrency:
//
//	An Engine and its graph are single-threaded.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/internal/telemetry"
	"github.com/katalvlaran/scalebp/message"
	"github.com/katalvlaran/scalebp/rules"
)

// ErrNotComputed indicates a read of a slot no sweep has written since it was
// last invalidated.
var ErrNotComputed = errors.New("schedule: message not computed")

const (
	opMarginal = "schedule.Marginal"
	opFiltered = "schedule.Filtered"
)

type sweepKind uint8

const (
	inward sweepKind = iota
	outward
)

func (k sweepKind) String() string {
	if k == outward {
		return "backward"
	}

	return "forward"
}

// Option configures an Engine.
type Option func(e *Engine)

// WithTracer sets the tracer for sweep spans; the default is the package
// tracer from the global provider.
func WithTracer(tr trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tr }
}

// WithMetrics sets the collectors sweeps report to. Nil disables metrics.
// The default is telemetry.Default().
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine runs sweeps over one graph.
type Engine struct {
	g       *factorgraph.Graph
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	plan    *Plan
}

// NewEngine returns an engine bound to g. The plan is built lazily.
func NewEngine(g *factorgraph.Graph, opts ...Option) *Engine {
	e := &Engine{
		g:       g,
		logger:  g.Logger(),
		tracer:  telemetry.Tracer(),
		metrics: telemetry.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *factorgraph.Graph { return e.g }

// Metrics returns the collectors the engine reports to (nil when disabled).
func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// Tracer returns the engine's tracer.
func (e *Engine) Tracer() trace.Tracer { return e.tracer }

// Plan returns the traversal plan for the current graph version, building
// and caching it when the topology changed.
//
// Errors: any factorgraph.Validate error.
func (e *Engine) Plan() (*Plan, error) {
	if e.plan != nil && e.plan.Version == e.g.Version() {
		return e.plan, nil
	}
	p, err := buildPlan(e.g)
	if err != nil {
		return nil, err
	}
	e.plan = p

	return p, nil
}

// Forward runs the inward sweep: leaves toward each root.
func (e *Engine) Forward(ctx context.Context, full bool) error {
	return e.sweep(ctx, inward, full)
}

// Backward runs the outward sweep: each root toward its leaves. It needs
// every inward slot current; otherwise it fails with ErrNotComputed or
// fault.ErrStale.
func (e *Engine) Backward(ctx context.Context, full bool) error {
	return e.sweep(ctx, outward, full)
}

// Run brings every slot up to date: an incremental forward sweep followed by
// an incremental backward sweep.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Forward(ctx, false); err != nil {
		return err
	}

	return e.Backward(ctx, false)
}

func (e *Engine) sweep(ctx context.Context, kind sweepKind, full bool) (err error) {
	p, err := e.Plan()
	if err != nil {
		return err
	}
	in, out := p.NumSteps()
	total := in
	if kind == outward {
		total = out
	}

	ctx, span := telemetry.StartSpan(ctx, e.tracer, "schedule."+kind.String(),
		attribute.Int("steps", total),
		attribute.Bool("full", full),
		attribute.Int("components", len(p.Components)),
	)
	start := time.Now()
	computed := 0
	defer func() {
		outcome := telemetry.OutcomeOK
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = telemetry.OutcomeCanceled
		case err != nil:
			outcome = telemetry.OutcomeFailed
		}
		e.metrics.ObserveSweep(kind.String(), outcome, computed, time.Since(start))
		span.SetAttributes(attribute.Int("computed", computed))
		telemetry.EndSpan(span, err)
	}()

	e.logger.Debug("sweep started", "direction", kind, "steps", total, "full", full)
	for ci, c := range p.Components {
		steps := c.Inward
		if kind == outward {
			steps = c.Outward
		}
		changed := false
		for si, st := range steps {
			if err = ctx.Err(); err != nil {
				e.markStale(p, kind, ci, si)
				e.logger.Warn("sweep canceled", "direction", kind, "node", st.Sender(), "error", err)
				return err
			}
			var done bool
			if done, err = e.step(st, full); err != nil {
				e.markStale(p, kind, ci, si)
				e.logger.Warn("sweep failed", "direction", kind, "node", st.Sender(), "error", err)
				return err
			}
			if done {
				computed++
				changed = true
			}
		}
		if kind == inward && changed {
			invalidate(c.Outward)
		}
	}
	e.logger.Debug("sweep finished", "direction", kind, "computed", computed, "elapsed", time.Since(start))

	return nil
}

// step recomputes one slot when needed and reports whether it did.
func (e *Engine) step(st Step, full bool) (bool, error) {
	inputs, basis, err := gather(st)
	if err != nil {
		return false, err
	}
	slot := st.Edge.Slot(st.Dir)
	if !full && slot.Usable() && slot.Basis >= basis {
		return false, nil
	}

	var msg message.Scaled
	if st.Dir == factorgraph.ToFactor {
		msg, err = e.combine(inputs...)
		err = fault.WithNode(err, st.Edge.Variable.ID)
	} else {
		msg, err = rules.Apply(st.Edge.Factor, st.Edge.Role, inputs, e.g.Mode())
	}
	if err != nil {
		return false, err
	}

	slot.Msg = msg
	slot.Valid = true
	slot.Stale = false
	slot.Rev = e.g.Tick()
	slot.Basis = basis

	return true, nil
}

// gather collects the messages a step consumes and their newest revision.
func gather(st Step) ([]message.Scaled, uint64, error) {
	var (
		edges  []*factorgraph.Edge
		inDir  factorgraph.Direction
		basis  uint64
		sender string
	)
	if st.Dir == factorgraph.ToFactor {
		v := st.Edge.Variable
		edges, inDir, basis, sender = v.Edges(), factorgraph.ToVariable, v.Rev(), v.ID
	} else {
		f := st.Edge.Factor
		edges, inDir, basis, sender = f.Edges(), factorgraph.ToFactor, f.Rev(), f.ID
	}

	inputs := make([]message.Scaled, 0, len(edges))
	for _, e := range edges {
		if e == st.Edge {
			continue
		}
		s := e.Slot(inDir)
		if err := readable(s, sender); err != nil {
			return nil, 0, err
		}
		inputs = append(inputs, s.Msg)
		basis = max(basis, s.Rev)
	}

	return inputs, basis, nil
}

func readable(s *factorgraph.Slot, node string) error {
	switch {
	case s.Stale:
		return fmt.Errorf("message into %q: %w", node, fault.ErrStale)
	case !s.Valid:
		return fmt.Errorf("message into %q: %w", node, ErrNotComputed)
	default:
		return nil
	}
}

func (e *Engine) combine(msgs ...message.Scaled) (message.Scaled, error) {
	if e.g.Mode() == factorgraph.ModeFiltering {
		return message.ProductAll(msgs...)
	}

	return message.FuseAll(msgs...)
}

// markStale flags the slots from step si of component ci to the end of the
// sweep. A failed inward sweep also flags the outward slots of every
// component it did not finish.
func (e *Engine) markStale(p *Plan, kind sweepKind, ci, si int) {
	for i := ci; i < len(p.Components); i++ {
		c := p.Components[i]
		steps := c.Inward
		if kind == outward {
			steps = c.Outward
		}
		from := 0
		if i == ci {
			from = si
		}
		for _, st := range steps[from:] {
			st.Edge.Slot(st.Dir).Stale = true
		}
		if kind == inward {
			for _, st := range c.Outward {
				st.Edge.Slot(st.Dir).Stale = true
			}
		}
	}
}

func invalidate(steps []Step) {
	for _, st := range steps {
		st.Edge.Slot(st.Dir).Valid = false
	}
}

// Marginal returns the belief of a variable: the fusion of every message it
// receives. Its scale is the negative log-evidence of the variable's
// component (0 in filtering mode).
//
// Errors:
//   - ConfigurationError{ErrUnknownNode}.
//   - fault.ErrStale or ErrNotComputed when an incoming slot is not current.
//   - Fusion errors, with Node = varID.
func (e *Engine) Marginal(varID string) (message.Scaled, error) {
	v, ok := e.g.Variable(varID)
	if !ok {
		return message.Scaled{}, &fault.ConfigurationError{Node: varID, Op: opMarginal, Err: fault.ErrUnknownNode}
	}

	return e.belief(v, nil)
}

// Filtered returns the inward belief of a variable: the fusion of every
// incoming message except the one from its parent toward the root. For a
// chain this is the filtering distribution. The root's filtered belief is its
// marginal.
//
// Errors: as Marginal, plus any Plan error.
func (e *Engine) Filtered(varID string) (message.Scaled, error) {
	v, ok := e.g.Variable(varID)
	if !ok {
		return message.Scaled{}, &fault.ConfigurationError{Node: varID, Op: opFiltered, Err: fault.ErrUnknownNode}
	}
	p, err := e.Plan()
	if err != nil {
		return message.Scaled{}, err
	}

	return e.belief(v, p.Parent(v))
}

func (e *Engine) belief(v *factorgraph.Variable, skip *factorgraph.Edge) (message.Scaled, error) {
	var msgs []message.Scaled
	for _, edge := range v.Edges() {
		if edge == skip {
			continue
		}
		s := edge.Slot(factorgraph.ToVariable)
		if err := readable(s, v.ID); err != nil {
			return message.Scaled{}, err
		}
		msgs = append(msgs, s.Msg)
	}
	b, err := e.combine(msgs...)
	if err != nil {
		return message.Scaled{}, fault.WithNode(err, v.ID)
	}

	return b, nil
}
