// SPDX-License-Identifier: MIT
// File: plan.go
// Role: traversal plan over a validated forest.
//
// Each connected component gets a root variable and two step lists built by
// one DFS from the root:
//   - Inward  (post-order): every non-root node sends to its parent.
//   - Outward (pre-order):  every node sends to each of its children.
//
// Root choice:
//   - the last-added variable of the component that is not observed
//     (no clamp attached); the last-added variable when all are observed.
//
// Determinism:
//   - Components are ordered by their first variable; children are visited in
//     edge connection order.
package schedule

import (
	"github.com/katalvlaran/scalebp/factorgraph"
)

// Step computes one slot: the message along Edge in direction Dir.
type Step struct {
	Edge *factorgraph.Edge
	Dir  factorgraph.Direction
}

// Sender returns the ID of the node that emits the message.
func (s Step) Sender() string {
	if s.Dir == factorgraph.ToFactor {
		return s.Edge.Variable.ID
	}

	return s.Edge.Factor.ID
}

// Receiver returns the ID of the node the message is sent to.
func (s Step) Receiver() string {
	if s.Dir == factorgraph.ToFactor {
		return s.Edge.Factor.ID
	}

	return s.Edge.Variable.ID
}

// Component is one tree of the forest.
type Component struct {
	Root      *factorgraph.Variable
	Variables []*factorgraph.Variable // DFS pre-order from Root
	Factors   []*factorgraph.Factor   // DFS pre-order from Root
	Inward    []Step
	Outward   []Step
}

// Plan is the traversal plan for one graph version.
type Plan struct {
	Version    uint64
	Components []*Component

	parent    map[*factorgraph.Variable]*factorgraph.Edge // nil for roots
	component map[*factorgraph.Variable]*Component
}

// Parent returns the edge from v toward its component root, nil for a root.
func (p *Plan) Parent(v *factorgraph.Variable) *factorgraph.Edge { return p.parent[v] }

// ComponentOf returns the component containing v.
func (p *Plan) ComponentOf(v *factorgraph.Variable) *Component { return p.component[v] }

// NumSteps returns the total number of steps in both directions.
func (p *Plan) NumSteps() (inward, outward int) {
	for _, c := range p.Components {
		inward += len(c.Inward)
		outward += len(c.Outward)
	}

	return inward, outward
}

// buildPlan validates g and computes its plan.
//
// Implementation:
//   - Stage 1: Validate (roles and acyclicity).
//   - Stage 2: label components by a traversal from each unlabeled variable
//     in insertion order and pick each component's root.
//   - Stage 3: DFS from every root emitting Inward and Outward steps.
//
// Complexity:
//   - Time O(V + F + E), Space O(V + F + E).
func buildPlan(g *factorgraph.Graph) (*Plan, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	vars := g.Variables()
	p := &Plan{
		Version:   g.Version(),
		parent:    make(map[*factorgraph.Variable]*factorgraph.Edge, len(vars)),
		component: make(map[*factorgraph.Variable]*Component, len(vars)),
	}

	seen := make(map[*factorgraph.Variable]bool, len(vars))
	var roots []*factorgraph.Variable
	for _, v := range vars {
		if seen[v] {
			continue
		}
		members := collect(v)
		for _, m := range members {
			seen[m] = true
		}
		roots = append(roots, pickRoot(members))
	}

	for _, root := range roots {
		c := &Component{Root: root}
		b := dfsBuilder{plan: p, comp: c}
		b.visitVariable(root, nil)
		p.Components = append(p.Components, c)
	}

	return p, nil
}

// collect returns every variable reachable from start.
func collect(start *factorgraph.Variable) []*factorgraph.Variable {
	seenV := map[*factorgraph.Variable]bool{start: true}
	seenF := map[*factorgraph.Factor]bool{}
	out := []*factorgraph.Variable{start}
	queue := []*factorgraph.Variable{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, e := range v.Edges() {
			if seenF[e.Factor] {
				continue
			}
			seenF[e.Factor] = true
			for _, fe := range e.Factor.Edges() {
				if !seenV[fe.Variable] {
					seenV[fe.Variable] = true
					out = append(out, fe.Variable)
					queue = append(queue, fe.Variable)
				}
			}
		}
	}

	return out
}

func pickRoot(members []*factorgraph.Variable) *factorgraph.Variable {
	var last, lastLatent *factorgraph.Variable
	for _, v := range members {
		if last == nil || v.Seq() > last.Seq() {
			last = v
		}
		if !v.IsObserved() && (lastLatent == nil || v.Seq() > lastLatent.Seq()) {
			lastLatent = v
		}
	}
	if lastLatent != nil {
		return lastLatent
	}

	return last
}

type dfsBuilder struct {
	plan *Plan
	comp *Component
}

func (b *dfsBuilder) visitVariable(v *factorgraph.Variable, via *factorgraph.Edge) {
	b.plan.parent[v] = via
	b.plan.component[v] = b.comp
	b.comp.Variables = append(b.comp.Variables, v)
	for _, e := range v.Edges() {
		if e == via {
			continue
		}
		b.comp.Outward = append(b.comp.Outward, Step{Edge: e, Dir: factorgraph.ToFactor})
		b.visitFactor(e.Factor, e)
	}
	if via != nil {
		b.comp.Inward = append(b.comp.Inward, Step{Edge: via, Dir: factorgraph.ToFactor})
	}
}

func (b *dfsBuilder) visitFactor(f *factorgraph.Factor, via *factorgraph.Edge) {
	b.comp.Factors = append(b.comp.Factors, f)
	for _, e := range f.Edges() {
		if e == via {
			continue
		}
		b.comp.Outward = append(b.comp.Outward, Step{Edge: e, Dir: factorgraph.ToVariable})
		b.visitVariable(e.Variable, e)
	}
	b.comp.Inward = append(b.comp.Inward, Step{Edge: via, Dir: factorgraph.ToVariable})
}
