// SPDX-License-Identifier: MIT

// Package evidence reads the log model evidence off a converged engine and
// provides the Bethe Free Energy as an independent whole-graph reference.
//
// On a tree every variable's fused belief carries the same scale, -log p(y).
// Compute reads it at each component root, sums over components, and reports
// how far the other variables deviate (the cut discrepancy).
package evidence

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/internal/telemetry"
	"github.com/katalvlaran/scalebp/schedule"
)

const opCompute = "evidence.Compute"

// Report is the outcome of Compute.
type Report struct {
	// Marginals maps every variable ID to its normalized belief.
	Marginals map[string]dist.Distribution
	// LogEvidence is log p(y), summed over the components of a forest.
	LogEvidence float64
	// MaxCutDiscrepancy is the largest |scale(v) - scale(root)| over all variables.
	MaxCutDiscrepancy float64
	// PerVariable maps every variable ID to the log-evidence read at it.
	PerVariable map[string]float64
}

// Compute brings the engine up to date (incremental Run) and aggregates the
// evidence.
//
// Errors:
//   - ConfigurationError{ErrEvidenceDisabled} in filtering mode.
//   - Any sweep or belief error.
func Compute(ctx context.Context, eng *schedule.Engine) (rep Report, err error) {
	if eng.Graph().Mode() == factorgraph.ModeFiltering {
		return Report{}, fault.Config(opCompute, fault.ErrEvidenceDisabled)
	}
	ctx, span := telemetry.StartSpan(ctx, eng.Tracer(), opCompute)
	defer func() {
		span.SetAttributes(
			attribute.Float64("log_evidence", rep.LogEvidence),
			attribute.Float64("cut_discrepancy", rep.MaxCutDiscrepancy),
		)
		telemetry.EndSpan(span, err)
	}()

	if err = eng.Run(ctx); err != nil {
		return Report{}, err
	}
	p, err := eng.Plan()
	if err != nil {
		return Report{}, err
	}

	rep = Report{
		Marginals:   make(map[string]dist.Distribution),
		PerVariable: make(map[string]float64),
	}
	for _, c := range p.Components {
		root, err := eng.Marginal(c.Root.ID)
		if err != nil {
			return Report{}, err
		}
		rep.LogEvidence += root.LogEvidence()
		for _, v := range c.Variables {
			m, err := eng.Marginal(v.ID)
			if err != nil {
				return Report{}, err
			}
			rep.Marginals[v.ID] = m.Dist
			rep.PerVariable[v.ID] = m.LogEvidence()
			rep.MaxCutDiscrepancy = math.Max(rep.MaxCutDiscrepancy, math.Abs(m.Scale-root.Scale))
		}
	}
	eng.Metrics().ObserveDiscrepancy(rep.MaxCutDiscrepancy)

	return rep, nil
}
