// SPDX-License-Identifier: MIT

// Package factorgraph defines the central Graph, Variable, Factor and Edge
// types of a tree-structured factor graph, and the per-edge message slots the
// scheduler reads and writes.
//
// This file declares the enums, GraphOption and the storage types.
//
// Errors (all *fault.ConfigurationError):
//
//	fault.ErrDuplicateNode     - variable or factor ID already used.
//	fault.ErrUnknownNode       - Connect/Clamp referenced a missing node.
//	fault.ErrFamilyMismatch    - variable family differs from the factor's.
//	fault.ErrDimensionMismatch - variable dimension differs from the factor's.
//	fault.ErrMissingRole       - a factor role is unconnected (Validate).
//	fault.ErrCycle             - the graph is not a forest (Validate).
package factorgraph

import (
	"log/slog"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/internal/logging"
	"github.com/katalvlaran/scalebp/message"
)

// Mode selects the rule set used on a graph.
type Mode uint8

const (
	// ModeScaledEvidence tracks scale factors; evidence is available.
	ModeScaledEvidence Mode = iota
	// ModeFiltering runs plain sum-product; every scale stays 0.
	ModeFiltering
)

func (m Mode) String() string {
	if m == ModeFiltering {
		return "filtering"
	}

	return "scaled-evidence"
}

// Role is the port of a factor an edge attaches to.
type Role uint8

const (
	RoleIn Role = iota + 1
	RoleOut
	RoleValue
	RoleEquality
)

func (r Role) String() string {
	switch r {
	case RoleIn:
		return "in"
	case RoleOut:
		return "out"
	case RoleValue:
		return "value"
	case RoleEquality:
		return "equality"
	default:
		return "unknown"
	}
}

// FactorKind tags the factor's parameter type.
type FactorKind uint8

const (
	KindPrior FactorKind = iota + 1
	KindLinearGaussianTransition
	KindCategoricalTransition
	KindObservationClamp
	KindEquality
)

func (k FactorKind) String() string {
	switch k {
	case KindPrior:
		return "prior"
	case KindLinearGaussianTransition:
		return "linear-gaussian-transition"
	case KindCategoricalTransition:
		return "categorical-transition"
	case KindObservationClamp:
		return "observation-clamp"
	case KindEquality:
		return "equality"
	default:
		return "unknown"
	}
}

// GraphOption configures a Graph before creation.
type GraphOption func(g *Graph)

// WithMode sets the engine mode; the default is ModeScaledEvidence.
func WithMode(m Mode) GraphOption {
	return func(g *Graph) { g.mode = m }
}

// WithLogger sets the logger used by the graph and by engines built on it.
// A nil logger keeps the no-op default.
func WithLogger(l *slog.Logger) GraphOption {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// Slot is one direction of an edge: the latest message plus the bookkeeping
// the scheduler needs for incremental recomputation.
//
// Rev is the graph clock when Msg was written; Basis is the newest revision
// among the inputs and the sending node at that time. A slot whose Basis is
// older than any current input needs recomputing.
type Slot struct {
	Msg   message.Scaled
	Valid bool // written at least once since the last invalidation
	Stale bool // left over from a failed sweep
	Rev   uint64
	Basis uint64
}

// Usable reports whether the slot holds a current message.
func (s *Slot) Usable() bool { return s.Valid && !s.Stale }

// Direction of a slot along its edge.
type Direction uint8

const (
	ToFactor Direction = iota + 1
	ToVariable
)

// Variable is a random variable node.
type Variable struct {
	ID     string
	Family dist.Family
	Dim    int

	edges []*Edge
	rev   uint64
	seq   int // insertion order
}

// Edges returns the incident edges in connection order.
func (v *Variable) Edges() []*Edge { return append([]*Edge(nil), v.edges...) }

// Rev returns the revision of the variable (bumped on topology changes).
func (v *Variable) Rev() uint64 { return v.rev }

// Seq returns the insertion index of the variable.
func (v *Variable) Seq() int { return v.seq }

// Factor is a factor node.
type Factor struct {
	ID     string
	Params Params

	edges []*Edge
	clamp *dist.PointMass
	rev   uint64
	seq   int
}

// Kind returns the kind of the factor's parameters.
func (f *Factor) Kind() FactorKind { return f.Params.Kind() }

// Edges returns the incident edges in connection order.
func (f *Factor) Edges() []*Edge { return append([]*Edge(nil), f.edges...) }

// Rev returns the revision of the factor (bumped on clamp and topology changes).
func (f *Factor) Rev() uint64 { return f.rev }

// Seq returns the insertion index of the factor.
func (f *Factor) Seq() int { return f.seq }

// ClampValue returns the clamped value of an observation clamp, nil when the
// clamp is inactive or the factor is not a clamp.
func (f *Factor) ClampValue() *dist.PointMass { return f.clamp }

// EdgeByRole returns the first edge attached through role, nil if none.
func (f *Factor) EdgeByRole(role Role) *Edge {
	for _, e := range f.edges {
		if e.Role == role {
			return e
		}
	}

	return nil
}

// Edge connects a variable to a factor through a role and carries one slot
// per direction.
type Edge struct {
	Variable *Variable
	Factor   *Factor
	Role     Role

	toFactor   Slot
	toVariable Slot
}

// Slot returns the slot for direction d.
func (e *Edge) Slot(d Direction) *Slot {
	if d == ToFactor {
		return &e.toFactor
	}

	return &e.toVariable
}

// Graph is the factor graph. It is not safe for concurrent mutation; each
// graph exclusively owns its message slots.
type Graph struct {
	mode   Mode
	logger *slog.Logger

	variables map[string]*Variable
	factors   map[string]*Factor
	varOrder  []*Variable
	facOrder  []*Factor
	edges     []*Edge

	version uint64 // bumped on every topology change
	clock   uint64 // revision source for nodes and slots
}

// NewGraph creates an empty Graph with the given options.
// Complexity: O(1).
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		mode:      ModeScaledEvidence,
		logger:    logging.NewNop(),
		variables: make(map[string]*Variable),
		factors:   make(map[string]*Factor),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}
