// SPDX-License-Identifier: MIT

// Package config loads a chain model from YAML for the CLI.
//
// A model file:
//
//	family: gaussian        # or categorical
//	mode: scaled-evidence   # or filtering; optional
//	steps: 3
//	prior:
//	  mean: [0]             # gaussian
//	  cov: [[1]]
//	  # probs: [0.5, 0.5]   # categorical
//	transition:
//	  a: [[1]]
//	  q: [[1]]              # gaussian only
//	observation:
//	  b: [[1]]
//	  p: [[0.5]]            # gaussian only
//	observations:           # step -> value; categorical: [symbol]
//	  1: [0.3]
//	  3: [1.1]
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/scalebp/chain"
	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

const (
	opLoad  = "config.Load"
	opBuild = "config.Build"
)

// Model is the YAML model file.
type Model struct {
	Family       string            `yaml:"family" validate:"required,oneof=gaussian categorical"`
	Mode         string            `yaml:"mode" validate:"omitempty,oneof=scaled-evidence filtering"`
	Steps        int               `yaml:"steps" validate:"gte=0"`
	Prior        Prior             `yaml:"prior"`
	Transition   Transition        `yaml:"transition"`
	Observation  Observation       `yaml:"observation"`
	Observations map[int][]float64 `yaml:"observations" validate:"dive,min=1"`
}

// Prior holds mean/cov for a Gaussian state, probs for a categorical one.
type Prior struct {
	Mean  []float64   `yaml:"mean"`
	Cov   [][]float64 `yaml:"cov" validate:"omitempty,dive,min=1"`
	Probs []float64   `yaml:"probs" validate:"omitempty,dive,gte=0"`
}

// Transition is x_t = A x_{t-1} + N(0, Q), or P(x_t | x_{t-1}) = A.
type Transition struct {
	A [][]float64 `yaml:"a" validate:"required,min=1,dive,min=1"`
	Q [][]float64 `yaml:"q" validate:"omitempty,dive,min=1"`
}

// Observation is y_t = B x_t + N(0, P), or P(y_t | x_t) = B.
type Observation struct {
	B [][]float64 `yaml:"b" validate:"required,min=1,dive,min=1"`
	P [][]float64 `yaml:"p" validate:"omitempty,dive,min=1"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(modelLevel, Model{})
}

// modelLevel checks the family-specific fields and the observation steps.
func modelLevel(sl validator.StructLevel) {
	m := sl.Current().Interface().(Model)
	switch m.Family {
	case "gaussian":
		if len(m.Prior.Mean) == 0 {
			sl.ReportError(m.Prior.Mean, "Prior.Mean", "Mean", "required_gaussian", "")
		}
		if len(m.Prior.Cov) == 0 {
			sl.ReportError(m.Prior.Cov, "Prior.Cov", "Cov", "required_gaussian", "")
		}
		if len(m.Transition.Q) == 0 {
			sl.ReportError(m.Transition.Q, "Transition.Q", "Q", "required_gaussian", "")
		}
		if len(m.Observation.P) == 0 {
			sl.ReportError(m.Observation.P, "Observation.P", "P", "required_gaussian", "")
		}
	case "categorical":
		if len(m.Prior.Probs) == 0 {
			sl.ReportError(m.Prior.Probs, "Prior.Probs", "Probs", "required_categorical", "")
		}
		for k, v := range m.Observations {
			if len(v) != 1 {
				sl.ReportError(v, "Observations", "Observations", "symbol", strconv.Itoa(k))
			}
		}
	}
	for k := range m.Observations {
		if k < 1 || k > m.Steps {
			sl.ReportError(m.Observations, "Observations", "Observations", "step", strconv.Itoa(k))
		}
	}
}

// Load reads and validates the model file at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML model. Unknown keys are rejected.
//
// Errors:
//   - ConfigurationError{ErrInvalidParams} wrapping the yaml or
//     validator.ValidationErrors cause.
func Parse(data []byte) (*Model, error) {
	var m Model
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, invalid(fmt.Errorf("failed to parse model: %w", err))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate runs the struct validation.
func (m *Model) Validate() error {
	if err := validate.Struct(m); err != nil {
		return invalid(err)
	}

	return nil
}

func invalid(err error) error {
	return &fault.ConfigurationError{Op: opLoad, Err: fmt.Errorf("%w: %w", fault.ErrInvalidParams, err)}
}

// GraphMode returns the engine mode named by the file.
func (m *Model) GraphMode() factorgraph.Mode {
	if m.Mode == "filtering" {
		return factorgraph.ModeFiltering
	}

	return factorgraph.ModeScaledEvidence
}

// Build turns the model into a chain plus its observations. Shape problems
// surface as the library's ConfigurationError or NumericalError.
func (m *Model) Build(opts ...chain.Option) (*chain.Chain, chain.Observations, error) {
	prior, trans, obs, err := m.params()
	if err != nil {
		return nil, nil, err
	}
	opts = append([]chain.Option{chain.WithMode(m.GraphMode())}, opts...)
	c, err := chain.BuildChain(prior, trans, obs, m.Steps, opts...)
	if err != nil {
		return nil, nil, err
	}
	ys, err := m.observations()
	if err != nil {
		return nil, nil, err
	}

	return c, ys, nil
}

func (m *Model) params() (dist.Distribution, factorgraph.Params, factorgraph.Params, error) {
	a, err := matrix.NewFromRows(m.Transition.A)
	if err != nil {
		return nil, nil, nil, fault.FromMatrix(opBuild, err)
	}
	b, err := matrix.NewFromRows(m.Observation.B)
	if err != nil {
		return nil, nil, nil, fault.FromMatrix(opBuild, err)
	}

	if m.Family == "categorical" {
		prior, err := dist.NewCategorical(m.Prior.Probs)
		if err != nil {
			return nil, nil, nil, err
		}
		trans, err := factorgraph.NewCategoricalTransition(a)
		if err != nil {
			return nil, nil, nil, err
		}
		obs, err := factorgraph.NewCategoricalTransition(b)
		if err != nil {
			return nil, nil, nil, err
		}
		return prior, trans, obs, nil
	}

	cov, err := matrix.NewFromRows(m.Prior.Cov)
	if err != nil {
		return nil, nil, nil, fault.FromMatrix(opBuild, err)
	}
	q, err := matrix.NewFromRows(m.Transition.Q)
	if err != nil {
		return nil, nil, nil, fault.FromMatrix(opBuild, err)
	}
	p, err := matrix.NewFromRows(m.Observation.P)
	if err != nil {
		return nil, nil, nil, fault.FromMatrix(opBuild, err)
	}
	prior, err := dist.NewGaussianMeanCov(m.Prior.Mean, cov)
	if err != nil {
		return nil, nil, nil, err
	}
	trans, err := factorgraph.NewGaussianTransition(a, q)
	if err != nil {
		return nil, nil, nil, err
	}
	obs, err := factorgraph.NewGaussianTransition(b, p)
	if err != nil {
		return nil, nil, nil, err
	}

	return prior, trans, obs, nil
}

func (m *Model) observations() (chain.Observations, error) {
	out := make(chain.Observations, len(m.Observations))
	for k, v := range m.Observations {
		var (
			pm  *dist.PointMass
			err error
		)
		if m.Family == "categorical" {
			pm, err = dist.OneHot(len(m.Observation.B), int(v[0]))
		} else {
			pm, err = dist.Point(v...)
		}
		if err != nil {
			return nil, fmt.Errorf("observation at step %d: %w", k, err)
		}
		out[k] = pm
	}

	return out, nil
}

// IsValidation reports whether err carries validator field errors.
func IsValidation(err error) bool {
	var ve validator.ValidationErrors
	return errors.As(err, &ve)
}
