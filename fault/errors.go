// SPDX-License-Identifier: MIT

// Package fault defines the two error classes every inference failure falls
// into, plus the cause sentinels callers match with errors.Is.
//
// Errors:
//
//	ConfigurationError - caller bug: family or dimension mismatch, non-tree
//	                     topology, missing role, no rule for a combination.
//	                     Fatal, never retried.
//	NumericalError     - non-positive-definite matrix, degenerate fusion,
//	                     singular transition. Surfaced with the offending node;
//	                     nothing is regularized silently.
//
// Both types match their class sentinel (ErrConfiguration, ErrNumerical) and
// unwrap to the cause, so
//
//	errors.Is(err, fault.ErrNumerical) && errors.Is(err, fault.ErrNotPositiveDefinite)
//
// holds for a Cholesky failure inside a rule.
package fault

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/scalebp/matrix"
)

// Class sentinels.
var (
	// ErrConfiguration marks every ConfigurationError.
	ErrConfiguration = errors.New("fault: configuration error")

	// ErrNumerical marks every NumericalError.
	ErrNumerical = errors.New("fault: numerical error")
)

// Cause sentinels.
var (
	// ErrFamilyMismatch indicates two distributions of different families met.
	ErrFamilyMismatch = errors.New("fault: distribution family mismatch")

	// ErrDimensionMismatch indicates incompatible dimensions between parameters or messages.
	ErrDimensionMismatch = errors.New("fault: dimension mismatch")

	// ErrCycle indicates the factor graph is not a tree.
	ErrCycle = errors.New("fault: factor graph contains a cycle")

	// ErrMissingRole indicates a factor is missing a required connection.
	ErrMissingRole = errors.New("fault: factor role not connected")

	// ErrUnknownNode indicates an ID that does not name a node of the graph.
	ErrUnknownNode = errors.New("fault: unknown node")

	// ErrDuplicateNode indicates an ID already taken by another node.
	ErrDuplicateNode = errors.New("fault: duplicate node id")

	// ErrInvalidParams indicates malformed factor or distribution parameters.
	ErrInvalidParams = errors.New("fault: invalid parameters")

	// ErrNoRule indicates the rule table has no entry for a combination.
	ErrNoRule = errors.New("fault: no rule for factor/direction/neighbor")

	// ErrEvidenceDisabled indicates evidence was requested from a filtering-mode graph.
	ErrEvidenceDisabled = errors.New("fault: evidence is disabled in filtering mode")

	// ErrNotPositiveDefinite indicates a covariance or precision lost positive definiteness.
	ErrNotPositiveDefinite = errors.New("fault: matrix is not positive definite")

	// ErrDegenerateFusion indicates contradictory evidence: the fusion normalizer vanished.
	ErrDegenerateFusion = errors.New("fault: degenerate fusion")

	// ErrSingular indicates a transition matrix without the rank a rule needs.
	ErrSingular = errors.New("fault: singular matrix")

	// ErrStale indicates a read of a message left over from a failed sweep.
	ErrStale = errors.New("fault: message is stale")
)

// ConfigurationError reports a caller bug at the node that exposed it.
type ConfigurationError struct {
	Node string // offending variable or factor ID; may be empty
	Op   string // operation that detected the problem
	Err  error  // cause sentinel, possibly wrapped
}

func (e *ConfigurationError) Error() string {
	return format("configuration", e.Node, e.Op, e.Err)
}

// Unwrap exposes the cause.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches the class sentinel.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NumericalError reports a numerical failure at the node that produced it.
type NumericalError struct {
	Node string
	Op   string
	Err  error
}

func (e *NumericalError) Error() string {
	return format("numerical", e.Node, e.Op, e.Err)
}

// Unwrap exposes the cause.
func (e *NumericalError) Unwrap() error { return e.Err }

// Is matches the class sentinel.
func (e *NumericalError) Is(target error) bool { return target == ErrNumerical }

func format(class, node, op string, err error) string {
	switch {
	case node != "" && op != "":
		return fmt.Sprintf("fault: %s error at %q in %s: %v", class, node, op, err)
	case node != "":
		return fmt.Sprintf("fault: %s error at %q: %v", class, node, err)
	case op != "":
		return fmt.Sprintf("fault: %s error in %s: %v", class, op, err)
	default:
		return fmt.Sprintf("fault: %s error: %v", class, err)
	}
}

// Config builds a ConfigurationError for op with the given cause.
func Config(op string, cause error) error {
	return &ConfigurationError{Op: op, Err: cause}
}

// Configf builds a ConfigurationError whose cause wraps sentinel with a message.
func Configf(op string, sentinel error, msg string, args ...any) error {
	return &ConfigurationError{Op: op, Err: fmt.Errorf("%s: %w", fmt.Sprintf(msg, args...), sentinel)}
}

// ConfigAt is Configf with the offending node filled in.
func ConfigAt(node, op string, sentinel error, msg string, args ...any) error {
	return &ConfigurationError{Node: node, Op: op, Err: fmt.Errorf("%s: %w", fmt.Sprintf(msg, args...), sentinel)}
}

// Numerical builds a NumericalError for op with the given cause.
func Numerical(op string, cause error) error {
	return &NumericalError{Op: op, Err: cause}
}

// WithNode attaches node to err. A typed error without a node gets it filled
// in on a copy; a typed error that already names a node is returned as is.
// Any other error is wrapped with the node in its message.
func WithNode(err error, node string) error {
	if err == nil || node == "" {
		return err
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		if ce.Node != "" {
			return err
		}
		cp := *ce
		cp.Node = node
		return &cp
	}
	var ne *NumericalError
	if errors.As(err, &ne) {
		if ne.Node != "" {
			return err
		}
		cp := *ne
		cp.Node = node
		return &cp
	}

	return fmt.Errorf("node %q: %w", node, err)
}

// NodeOf returns the node recorded in err, or "" when none is.
func NodeOf(err error) string {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Node
	}
	var ne *NumericalError
	if errors.As(err, &ne) {
		return ne.Node
	}

	return ""
}

// FromMatrix classifies an error coming out of the matrix package.
// Loss of positive definiteness and singularity are numerical; everything
// else (shape, symmetry, non-finite input) is a configuration problem.
// The matrix error stays in the chain next to the fault sentinel.
func FromMatrix(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrNumerical):
		return err
	case errors.Is(err, matrix.ErrNotPositiveDefinite):
		return &NumericalError{Op: op, Err: fmt.Errorf("%w: %w", ErrNotPositiveDefinite, err)}
	case errors.Is(err, matrix.ErrSingular):
		return &NumericalError{Op: op, Err: fmt.Errorf("%w: %w", ErrSingular, err)}
	case errors.Is(err, matrix.ErrDimensionMismatch):
		return &ConfigurationError{Op: op, Err: fmt.Errorf("%w: %w", ErrDimensionMismatch, err)}
	default:
		return &ConfigurationError{Op: op, Err: fmt.Errorf("%w: %w", ErrInvalidParams, err)}
	}
}
