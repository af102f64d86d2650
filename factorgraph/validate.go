// SPDX-License-Identifier: MIT
// File: validate.go
// Role: structural validation (roles complete, forest topology).
//
// The cycle check is a three-colour DFS over the bipartite variable/factor
// graph. Skipping only the edge we arrived through (not the parent node)
// also catches a variable connected twice to the same factor.
package factorgraph

import (
	"github.com/katalvlaran/scalebp/fault"
)

const opValidate = "factorgraph.Validate"

// Visitation states of the cycle check.
const (
	white = iota // not visited
	gray         // on the DFS stack
	black        // fully explored
)

// Validate checks that every factor has its required roles connected and
// that the graph is a forest.
//
// Errors:
//   - ConfigurationError{ErrMissingRole} naming the first incomplete factor.
//   - ConfigurationError{ErrCycle} naming a node on the first cycle found.
//
// Determinism:
//   - Factors are checked and DFS roots chosen in insertion order.
//
// Complexity:
//   - Time O(V + F + E), Space O(V + F).
func (g *Graph) Validate() error {
	for _, f := range g.facOrder {
		if err := checkRoles(f); err != nil {
			return err
		}
	}

	c := cycleCheck{
		vars: make(map[*Variable]int, len(g.varOrder)),
		facs: make(map[*Factor]int, len(g.facOrder)),
	}
	for _, v := range g.varOrder {
		if c.vars[v] == white {
			if err := c.visitVariable(v, nil); err != nil {
				return err
			}
		}
	}
	for _, f := range g.facOrder {
		if c.facs[f] == white {
			if err := c.visitFactor(f, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkRoles(f *Factor) error {
	roles, multi := roleSpec(f.Params)
	if multi {
		if len(f.edges) < 2 {
			return fault.ConfigAt(f.ID, opValidate, fault.ErrMissingRole, "%s factor needs at least 2 ports, has %d", f.Kind(), len(f.edges))
		}
		return nil
	}
	for _, role := range []Role{RoleIn, RoleOut, RoleValue} {
		if _, ok := roles[role]; ok && f.EdgeByRole(role) == nil {
			return fault.ConfigAt(f.ID, opValidate, fault.ErrMissingRole, "%s port of %s factor is not connected", role, f.Kind())
		}
	}

	return nil
}

type cycleCheck struct {
	vars map[*Variable]int
	facs map[*Factor]int
}

func (c *cycleCheck) visitVariable(v *Variable, via *Edge) error {
	c.vars[v] = gray
	for _, e := range v.edges {
		if e == via {
			continue
		}
		switch c.facs[e.Factor] {
		case white:
			if err := c.visitFactor(e.Factor, e); err != nil {
				return err
			}
		case gray:
			return &fault.ConfigurationError{Node: e.Factor.ID, Op: opValidate, Err: fault.ErrCycle}
		}
	}
	c.vars[v] = black

	return nil
}

func (c *cycleCheck) visitFactor(f *Factor, via *Edge) error {
	c.facs[f] = gray
	for _, e := range f.edges {
		if e == via {
			continue
		}
		switch c.vars[e.Variable] {
		case white:
			if err := c.visitVariable(e.Variable, e); err != nil {
				return err
			}
		case gray:
			return &fault.ConfigurationError{Node: e.Variable.ID, Op: opValidate, Err: fault.ErrCycle}
		}
	}
	c.facs[f] = black

	return nil
}
