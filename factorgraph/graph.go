// SPDX-License-Identifier: MIT
// File: graph.go
// Role: node and edge lifecycle, clamps, lookups.
//
// Determinism:
//   - Variables(), Factors() and Edges() return insertion order.
//
// Revisions:
//   - Every topology change bumps Version and the revision of the touched
//     nodes; Clamp/Unclamp bump only the clamp factor.
package factorgraph

import (
	"log/slog"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/fault"
)

const (
	opAddVariable = "factorgraph.AddVariable"
	opAddFactor   = "factorgraph.AddFactor"
	opConnect     = "factorgraph.Connect"
	opClamp       = "factorgraph.Clamp"
	opImport      = "factorgraph.Import"
)

// Mode returns the engine mode chosen at construction.
func (g *Graph) Mode() Mode { return g.mode }

// Logger returns the graph's logger (never nil).
func (g *Graph) Logger() *slog.Logger { return g.logger }

// Version returns the topology version.
func (g *Graph) Version() uint64 { return g.version }

// Tick advances the revision clock and returns the new value.
func (g *Graph) Tick() uint64 {
	g.clock++
	return g.clock
}

func (g *Graph) touchTopology(nodes ...interface{ bump(uint64) }) {
	g.version++
	rev := g.Tick()
	for _, n := range nodes {
		n.bump(rev)
	}
}

func (v *Variable) bump(rev uint64) { v.rev = rev }
func (f *Factor) bump(rev uint64)   { f.rev = rev }

// AddVariable inserts a variable of the given family and dimension.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} for an empty ID, unknown family or dim < 1.
//   - ConfigurationError{ErrDuplicateNode} when the ID is taken by any node.
//
// Complexity: O(1).
func (g *Graph) AddVariable(id string, family dist.Family, dim int) (*Variable, error) {
	if id == "" || dim < 1 || (family != dist.FamilyGaussian && family != dist.FamilyCategorical) {
		return nil, fault.Configf(opAddVariable, fault.ErrInvalidParams, "variable %q family=%s dim=%d", id, family, dim)
	}
	if g.hasNode(id) {
		return nil, &fault.ConfigurationError{Node: id, Op: opAddVariable, Err: fault.ErrDuplicateNode}
	}
	v := &Variable{ID: id, Family: family, Dim: dim, seq: len(g.varOrder)}
	g.variables[id] = v
	g.varOrder = append(g.varOrder, v)
	g.touchTopology(v)

	return v, nil
}

// AddFactor inserts a factor with the given parameters.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} for an empty ID or nil params.
//   - ConfigurationError{ErrDuplicateNode} when the ID is taken by any node.
func (g *Graph) AddFactor(id string, p Params) (*Factor, error) {
	if id == "" || p == nil {
		return nil, fault.Configf(opAddFactor, fault.ErrInvalidParams, "factor %q", id)
	}
	if g.hasNode(id) {
		return nil, &fault.ConfigurationError{Node: id, Op: opAddFactor, Err: fault.ErrDuplicateNode}
	}
	if pr, ok := p.(Prior); ok {
		if _, err := NewPrior(pr.Dist); err != nil {
			return nil, fault.WithNode(err, id)
		}
	}
	f := &Factor{ID: id, Params: p, seq: len(g.facOrder)}
	g.factors[id] = f
	g.facOrder = append(g.facOrder, f)
	g.touchTopology(f)

	return f, nil
}

// Connect attaches variable varID to factor facID through role.
//
// Implementation:
//   - Stage 1: resolve both nodes.
//   - Stage 2: check the role is accepted by the factor kind and still free.
//   - Stage 3: check family and dimension against the factor's expectation
//     (for Equality, against the first connected port).
//
// Errors (ConfigurationError, Node = facID):
//   - ErrUnknownNode, ErrMissingRole (role not accepted), ErrDuplicateNode
//     (role already connected), ErrFamilyMismatch, ErrDimensionMismatch.
func (g *Graph) Connect(varID, facID string, role Role) (*Edge, error) {
	v, ok := g.variables[varID]
	if !ok {
		return nil, &fault.ConfigurationError{Node: varID, Op: opConnect, Err: fault.ErrUnknownNode}
	}
	f, ok := g.factors[facID]
	if !ok {
		return nil, &fault.ConfigurationError{Node: facID, Op: opConnect, Err: fault.ErrUnknownNode}
	}

	roles, multi := roleSpec(f.Params)
	want, ok := roles[role]
	if !ok {
		return nil, fault.ConfigAt(facID, opConnect, fault.ErrMissingRole, "%s factor has no %s port", f.Kind(), role)
	}
	if !multi && f.EdgeByRole(role) != nil {
		return nil, &fault.ConfigurationError{Node: facID, Op: opConnect, Err: fault.ErrDuplicateNode}
	}
	if f.Kind() == KindEquality && len(f.edges) > 0 {
		first := f.edges[0].Variable
		want = expect{first.Family, first.Dim}
	}
	if err := checkShape(facID, v, want); err != nil {
		return nil, err
	}

	e := &Edge{Variable: v, Factor: f, Role: role}
	v.edges = append(v.edges, e)
	f.edges = append(f.edges, e)
	g.edges = append(g.edges, e)
	g.touchTopology(v, f)

	return e, nil
}

func checkShape(node string, v *Variable, want expect) error {
	if want.family != 0 && v.Family != want.family {
		return fault.ConfigAt(node, opConnect, fault.ErrFamilyMismatch, "variable %q is %s, port wants %s", v.ID, v.Family, want.family)
	}
	if want.dim != 0 && v.Dim != want.dim {
		return fault.ConfigAt(node, opConnect, fault.ErrDimensionMismatch, "variable %q has dim %d, port wants %d", v.ID, v.Dim, want.dim)
	}

	return nil
}

// Clamp sets the observed value of an observation clamp. Passing nil
// deactivates it (same as Unclamp).
//
// Errors (ConfigurationError, Node = facID):
//   - ErrUnknownNode, ErrInvalidParams (not a clamp), ErrFamilyMismatch,
//     ErrDimensionMismatch.
func (g *Graph) Clamp(facID string, value *dist.PointMass) error {
	f, ok := g.factors[facID]
	if !ok {
		return &fault.ConfigurationError{Node: facID, Op: opClamp, Err: fault.ErrUnknownNode}
	}
	c, ok := f.Params.(Clamp)
	if !ok {
		return &fault.ConfigurationError{Node: facID, Op: opClamp, Err: fault.ErrInvalidParams}
	}
	if value != nil {
		if value.Family() != c.Family {
			return &fault.ConfigurationError{Node: facID, Op: opClamp, Err: fault.ErrFamilyMismatch}
		}
		if value.Dim() != c.Dim {
			return &fault.ConfigurationError{Node: facID, Op: opClamp, Err: fault.ErrDimensionMismatch}
		}
	}
	f.clamp = value
	f.bump(g.Tick())

	return nil
}

// Unclamp deactivates an observation clamp.
func (g *Graph) Unclamp(facID string) error { return g.Clamp(facID, nil) }

// Variable returns the variable with the given ID.
func (g *Graph) Variable(id string) (*Variable, bool) {
	v, ok := g.variables[id]
	return v, ok
}

// Factor returns the factor with the given ID.
func (g *Graph) Factor(id string) (*Factor, bool) {
	f, ok := g.factors[id]
	return f, ok
}

// Variables returns all variables in insertion order.
func (g *Graph) Variables() []*Variable { return append([]*Variable(nil), g.varOrder...) }

// Factors returns all factors in insertion order.
func (g *Graph) Factors() []*Factor { return append([]*Factor(nil), g.facOrder...) }

// Edges returns all edges in connection order.
func (g *Graph) Edges() []*Edge { return append([]*Edge(nil), g.edges...) }

// IsObserved reports whether v is attached to an observation clamp.
func (v *Variable) IsObserved() bool {
	for _, e := range v.edges {
		if e.Factor.Kind() == KindObservationClamp {
			return true
		}
	}

	return false
}

func (g *Graph) hasNode(id string) bool {
	_, v := g.variables[id]
	_, f := g.factors[id]
	return v || f
}

// Import copies every node and edge of src into g, prefixing IDs with
// prefix. Clamp values are copied; message slots are not. The two parts stay
// disconnected, so g becomes (or remains) a forest.
//
// Errors:
//   - ConfigurationError{ErrDuplicateNode} when a prefixed ID already exists;
//     g is left unchanged in that case.
func (g *Graph) Import(src *Graph, prefix string) error {
	if src == nil {
		return fault.Configf(opImport, fault.ErrInvalidParams, "nil source graph")
	}
	for _, v := range src.varOrder {
		if g.hasNode(prefix + v.ID) {
			return &fault.ConfigurationError{Node: prefix + v.ID, Op: opImport, Err: fault.ErrDuplicateNode}
		}
	}
	for _, f := range src.facOrder {
		if g.hasNode(prefix + f.ID) {
			return &fault.ConfigurationError{Node: prefix + f.ID, Op: opImport, Err: fault.ErrDuplicateNode}
		}
	}

	for _, v := range src.varOrder {
		if _, err := g.AddVariable(prefix+v.ID, v.Family, v.Dim); err != nil {
			return err
		}
	}
	for _, f := range src.facOrder {
		nf, err := g.AddFactor(prefix+f.ID, f.Params)
		if err != nil {
			return err
		}
		nf.clamp = f.clamp
	}
	for _, e := range src.edges {
		if _, err := g.Connect(prefix+e.Variable.ID, prefix+e.Factor.ID, e.Role); err != nil {
			return err
		}
	}

	return nil
}
