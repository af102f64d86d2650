// SPDX-License-Identifier: MIT
package evidence_test

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/evidence"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/internal/telemetry"
	"github.com/katalvlaran/scalebp/matrix"
	"github.com/katalvlaran/scalebp/schedule"
)

const tol = 1e-10

const (
	m0, p0 = 0.5, 2.0
	b, r   = 2.0, 0.5
	yObs   = 1.3
)

func scalar(t require.TestingT, v float64) *matrix.Dense {
	m, err := matrix.NewFromRows([][]float64{{v}})
	require.NoError(t, err)

	return m
}

func negLogN(y, mu, v float64) float64 {
	return 0.5 * (math.Log(2*math.Pi*v) + (y-mu)*(y-mu)/v)
}

type node struct {
	id string
	p  factorgraph.Params
}

type link struct {
	v, f string
	r    factorgraph.Role
}

func build(t require.TestingT, vars []string, family dist.Family, dim int, factors []node, links []link, opts ...factorgraph.GraphOption) *factorgraph.Graph {
	g := factorgraph.NewGraph(opts...)
	for _, id := range vars {
		_, err := g.AddVariable(id, family, dim)
		require.NoError(t, err)
	}
	for _, f := range factors {
		_, err := g.AddFactor(f.id, f.p)
		require.NoError(t, err)
	}
	for _, l := range links {
		_, err := g.Connect(l.v, l.f, l.r)
		require.NoError(t, err)
	}

	return g
}

// scalarObs is x ~ N(m0, p0), y | x ~ N(b·x, r), y = yObs.
func scalarObs(t require.TestingT, opts ...factorgraph.GraphOption) *factorgraph.Graph {
	prior, err := dist.NewGaussianMeanCov([]float64{m0}, scalar(t, p0))
	require.NoError(t, err)
	obs, err := factorgraph.NewGaussianTransition(scalar(t, b), scalar(t, r))
	require.NoError(t, err)
	g := build(t, []string{"x", "y"}, dist.FamilyGaussian, 1,
		[]node{
			{"prior", factorgraph.Prior{Dist: prior}},
			{"obs", obs},
			{"clamp", factorgraph.Clamp{Family: dist.FamilyGaussian, Dim: 1}},
		},
		[]link{
			{"x", "prior", factorgraph.RoleValue},
			{"x", "obs", factorgraph.RoleIn},
			{"y", "obs", factorgraph.RoleOut},
			{"y", "clamp", factorgraph.RoleValue},
		}, opts...)
	pm, err := dist.Point(yObs)
	require.NoError(t, err)
	require.NoError(t, g.Clamp("clamp", pm))

	return g
}

func TestComputeMatchesClosedForm(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	eng := schedule.NewEngine(scalarObs(t), schedule.WithMetrics(metrics))

	rep, err := evidence.Compute(context.Background(), eng)
	require.NoError(t, err)
	want := -negLogN(yObs, b*m0, b*b*p0+r)
	assert.InDelta(t, want, rep.LogEvidence, tol)
	assert.Less(t, rep.MaxCutDiscrepancy, tol)
	require.Len(t, rep.PerVariable, 2)
	for id, le := range rep.PerVariable {
		assert.InDelta(t, want, le, tol, id)
	}
	assert.Equal(t, dist.KindPointMass, dist.KindOf(rep.Marginals["y"]))
	assert.Equal(t, dist.KindGaussian, dist.KindOf(rep.Marginals["x"]))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.CutDiscrepancy))

	bfe, err := evidence.BetheFreeEnergy(eng)
	require.NoError(t, err)
	assert.InDelta(t, -want, bfe, tol)
}

func TestComputeDisabledInFilteringMode(t *testing.T) {
	eng := schedule.NewEngine(scalarObs(t, factorgraph.WithMode(factorgraph.ModeFiltering)), schedule.WithMetrics(nil))
	_, err := evidence.Compute(context.Background(), eng)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
	assert.ErrorIs(t, err, fault.ErrEvidenceDisabled)
}

func TestForestSumsComponents(t *testing.T) {
	g := factorgraph.NewGraph()
	require.NoError(t, g.Import(scalarObs(t), "a/"))
	require.NoError(t, g.Import(scalarObs(t), "b/"))
	pm, err := dist.Point(-0.4)
	require.NoError(t, err)
	require.NoError(t, g.Clamp("b/clamp", pm))

	eng := schedule.NewEngine(g, schedule.WithMetrics(nil))
	rep, err := evidence.Compute(context.Background(), eng)
	require.NoError(t, err)
	want := -negLogN(yObs, b*m0, b*b*p0+r) - negLogN(-0.4, b*m0, b*b*p0+r)
	assert.InDelta(t, want, rep.LogEvidence, tol)
	assert.InDelta(t, rep.PerVariable["a/x"]+rep.PerVariable["b/x"], rep.LogEvidence, tol)

	bfe, err := evidence.BetheFreeEnergy(eng)
	require.NoError(t, err)
	assert.InDelta(t, -want, bfe, tol)
}

func TestEqualityTie(t *testing.T) {
	// Two priors on one quantity, tied by equality, observed once.
	const m1, p1, m2, p2 = 0.0, 1.0, 1.0, 3.0
	pr1, err := dist.NewGaussianMeanCov([]float64{m1}, scalar(t, p1))
	require.NoError(t, err)
	pr2, err := dist.NewGaussianMeanCov([]float64{m2}, scalar(t, p2))
	require.NoError(t, err)
	obs, err := factorgraph.NewGaussianTransition(scalar(t, b), scalar(t, r))
	require.NoError(t, err)
	g := build(t, []string{"u", "v", "y"}, dist.FamilyGaussian, 1,
		[]node{
			{"p1", factorgraph.Prior{Dist: pr1}},
			{"p2", factorgraph.Prior{Dist: pr2}},
			{"eq", factorgraph.Equality{}},
			{"obs", obs},
			{"clamp", factorgraph.Clamp{Family: dist.FamilyGaussian, Dim: 1}},
		},
		[]link{
			{"u", "p1", factorgraph.RoleValue},
			{"v", "p2", factorgraph.RoleValue},
			{"u", "eq", factorgraph.RoleEquality},
			{"v", "eq", factorgraph.RoleEquality},
			{"v", "obs", factorgraph.RoleIn},
			{"y", "obs", factorgraph.RoleOut},
			{"y", "clamp", factorgraph.RoleValue},
		})
	pm, err := dist.Point(yObs)
	require.NoError(t, err)
	require.NoError(t, g.Clamp("clamp", pm))

	eng := schedule.NewEngine(g, schedule.WithMetrics(nil))
	rep, err := evidence.Compute(context.Background(), eng)
	require.NoError(t, err)

	pc := 1 / (1/p1 + 1/p2)
	mc := pc * (m1/p1 + m2/p2)
	want := -negLogN(m1, m2, p1+p2) - negLogN(yObs, b*mc, b*b*pc+r)
	assert.InDelta(t, want, rep.LogEvidence, tol)
	assert.Less(t, rep.MaxCutDiscrepancy, tol)

	u := rep.Marginals["u"].(*dist.Gaussian)
	v := rep.Marginals["v"].(*dist.Gaussian)
	assert.InDelta(t, u.Mean()[0], v.Mean()[0], tol)

	bfe, err := evidence.BetheFreeEnergy(eng)
	require.NoError(t, err)
	assert.InDelta(t, -want, bfe, tol)
}

func TestCategoricalBethe(t *testing.T) {
	pi, err := dist.NewCategorical([]float64{0.6, 0.4})
	require.NoError(t, err)
	trans, err := matrix.NewFromRows([][]float64{{0.7, 0.2}, {0.3, 0.8}})
	require.NoError(t, err)
	tr, err := factorgraph.NewCategoricalTransition(trans)
	require.NoError(t, err)
	emit, err := matrix.NewFromRows([][]float64{{0.9, 0.2}, {0.1, 0.8}})
	require.NoError(t, err)
	em, err := factorgraph.NewCategoricalTransition(emit)
	require.NoError(t, err)

	g := build(t, []string{"x0", "x1", "y1"}, dist.FamilyCategorical, 2,
		[]node{
			{"prior", factorgraph.Prior{Dist: pi}},
			{"trans", tr},
			{"obs", em},
			{"clamp", factorgraph.Clamp{Family: dist.FamilyCategorical, Dim: 2}},
		},
		[]link{
			{"x0", "prior", factorgraph.RoleValue},
			{"x0", "trans", factorgraph.RoleIn},
			{"x1", "trans", factorgraph.RoleOut},
			{"x1", "obs", factorgraph.RoleIn},
			{"y1", "obs", factorgraph.RoleOut},
			{"y1", "clamp", factorgraph.RoleValue},
		})
	pm, err := dist.OneHot(2, 1)
	require.NoError(t, err)
	require.NoError(t, g.Clamp("clamp", pm))

	eng := schedule.NewEngine(g, schedule.WithMetrics(nil))
	rep, err := evidence.Compute(context.Background(), eng)
	require.NoError(t, err)

	// P(x1) = A·pi = (0.5, 0.5); p(y1 = 1) = 0.1·0.5 + 0.8·0.5.
	assert.InDelta(t, math.Log(0.45), rep.LogEvidence, tol)
	bfe, err := evidence.BetheFreeEnergy(eng)
	require.NoError(t, err)
	assert.InDelta(t, -rep.LogEvidence, bfe, tol)

	// Unclamped, the emission is a unit factor and the evidence is 1.
	require.NoError(t, g.Unclamp("clamp"))
	rep, err = evidence.Compute(context.Background(), eng)
	require.NoError(t, err)
	assert.InDelta(t, 0, rep.LogEvidence, tol)
	bfe, err = evidence.BetheFreeEnergy(eng)
	require.NoError(t, err)
	assert.InDelta(t, 0, bfe, tol)
}

func TestBetheNeedsBeliefs(t *testing.T) {
	eng := schedule.NewEngine(scalarObs(t), schedule.WithMetrics(nil))
	_, err := evidence.BetheFreeEnergy(eng)
	assert.ErrorIs(t, err, schedule.ErrNotComputed)
}

func TestComputeSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	eng := schedule.NewEngine(scalarObs(t), schedule.WithTracer(tp.Tracer("test")), schedule.WithMetrics(nil))
	_, err := evidence.Compute(context.Background(), eng)
	require.NoError(t, err)

	ended := rec.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "evidence.Compute", ended[2].Name())
	assert.Equal(t, ended[2].SpanContext().SpanID(), ended[0].Parent().SpanID())
}
