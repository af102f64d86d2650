// SPDX-License-Identifier: MIT
package message_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
	"github.com/katalvlaran/scalebp/message"
)

func gauss(t *testing.T, mean []float64, cov [][]float64) *dist.Gaussian {
	t.Helper()
	c, err := matrix.NewFromRows(cov)
	require.NoError(t, err)
	g, err := dist.NewGaussianMeanCov(mean, c)
	require.NoError(t, err)

	return g
}

func cat(t *testing.T, p ...float64) *dist.Categorical {
	t.Helper()
	c, err := dist.NewCategorical(p)
	require.NoError(t, err)

	return c
}

func TestGaussianSelfFusion(t *testing.T) {
	cov := [][]float64{{2, 0.3}, {0.3, 1}}
	g := gauss(t, []float64{1, -1}, cov)
	m := message.New(g, 0)

	out, err := message.Fuse(m, m)
	require.NoError(t, err)

	fused := out.Dist.(*dist.Gaussian)
	half, err := matrix.Scale(g.Cov(), 0.5)
	require.NoError(t, err)
	assert.True(t, matrix.AllClose(half, fused.Cov(), 1e-12))
	assert.True(t, matrix.VecAllClose([]float64{1, -1}, fused.Mean(), 1e-12))

	// m = 0, V = 2Σ: scale = ½·logdet(2π·2Σ), which is d/2·log 2 more than
	// ½·logdet(2πΣ) because the convolution variance is Σ1+Σ2 = 2Σ.
	want := 0.5 * (2*math.Log(2*math.Pi*2) + g.LogDetCov())
	assert.InDelta(t, want, out.Scale, 1e-12)
}

func TestGaussianFusionNormalizer(t *testing.T) {
	a := message.New(gauss(t, []float64{0}, [][]float64{{1}}), 0.25)
	b := message.New(gauss(t, []float64{1}, [][]float64{{2}}), -1)

	out, err := message.Fuse(a, b)
	require.NoError(t, err)

	// ∫N(x;0,1)N(x;1,2)dx = N(0;1,3)
	want := 0.25 - 1 + 0.5*math.Log(2*math.Pi*3) + 1.0/6
	assert.InDelta(t, want, out.Scale, 1e-12)

	g := out.Dist.(*dist.Gaussian)
	assert.InDelta(t, 1.0/3, g.Mean()[0], 1e-12)
	v, err := g.Cov().At(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, v, 1e-12)

	// order does not matter
	rev, err := message.Fuse(b, a)
	require.NoError(t, err)
	assert.InDelta(t, out.Scale, rev.Scale, 1e-12)
}

func TestCategoricalSelfFusion(t *testing.T) {
	p := cat(t, 0.2, 0.5, 0.3)
	m := message.New(p, 1.5)

	out, err := message.Fuse(m, m)
	require.NoError(t, err)

	dot := 0.04 + 0.25 + 0.09
	assert.InDelta(t, 3-math.Log(dot), out.Scale, 1e-12)
	got := out.Dist.(*dist.Categorical).Probs()
	assert.InDeltaSlice(t, []float64{0.04 / dot, 0.25 / dot, 0.09 / dot}, got, 1e-12)
}

func TestPointMassFusion(t *testing.T) {
	x, err := dist.Point(2)
	require.NoError(t, err)
	g := gauss(t, []float64{0}, [][]float64{{4}})

	out, err := message.Fuse(message.New(g, 1), message.New(x, 0))
	require.NoError(t, err)
	assert.Same(t, x, out.Dist)
	assert.InDelta(t, 1+0.5*(math.Log(2*math.Pi*4)+1), out.Scale, 1e-12)

	hot, err := dist.OneHot(3, 1)
	require.NoError(t, err)
	out, err = message.Fuse(message.New(hot, 0), message.New(cat(t, 0.2, 0.5, 0.3), 0))
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.5), out.Scale, 1e-12)

	_, err = message.Fuse(message.New(x, 0), message.New(x, 0))
	require.ErrorIs(t, err, fault.ErrNumerical)
	require.ErrorIs(t, err, fault.ErrDegenerateFusion)
}

func TestUnitFusion(t *testing.T) {
	g := gauss(t, []float64{0}, [][]float64{{1}})

	out, err := message.Fuse(message.Unit().Shift(2), message.New(g, 1))
	require.NoError(t, err)
	assert.Same(t, g, out.Dist)
	assert.Equal(t, 3.0, out.Scale)

	out, err = message.FuseAll()
	require.NoError(t, err)
	assert.True(t, out.IsUnit())
}

func TestFusionErrors(t *testing.T) {
	g1 := message.New(gauss(t, []float64{0}, [][]float64{{1}}), 0)
	g2 := message.New(gauss(t, []float64{0, 0}, [][]float64{{1, 0}, {0, 1}}), 0)
	c := message.New(cat(t, 0.5, 0.5), 0)

	_, err := message.Fuse(g1, c)
	require.ErrorIs(t, err, fault.ErrConfiguration)
	require.ErrorIs(t, err, fault.ErrFamilyMismatch)

	_, err = message.Fuse(g1, g2)
	require.ErrorIs(t, err, fault.ErrDimensionMismatch)

	a := message.New(cat(t, 1, 0), 0)
	b := message.New(cat(t, 0, 1), 0)
	_, err = message.Fuse(a, b)
	require.ErrorIs(t, err, fault.ErrDegenerateFusion)
}

func TestProductDropsScale(t *testing.T) {
	a := message.New(gauss(t, []float64{0}, [][]float64{{1}}), 3)
	b := message.New(gauss(t, []float64{1}, [][]float64{{2}}), 4)

	fused, err := message.Fuse(a, b)
	require.NoError(t, err)
	prod, err := message.ProductAll(a, b)
	require.NoError(t, err)

	assert.Equal(t, 0.0, prod.Scale)
	assert.InDeltaSlice(t, fused.Dist.(*dist.Gaussian).Mean(), prod.Dist.(*dist.Gaussian).Mean(), 1e-15)
}

func kernel(t *testing.T, xi []float64, w [][]float64) *dist.Likelihood {
	t.Helper()
	m, err := matrix.NewFromRows(w)
	require.NoError(t, err)
	k, err := dist.NewLikelihood(xi, m)
	require.NoError(t, err)

	return k
}

func TestLikelihoodFusion(t *testing.T) {
	// exp(x − x²) = c·N(x; 0.5, 0.5), log c = ½log(π) + ¼
	g := gauss(t, []float64{0}, [][]float64{{1}})
	k := message.New(kernel(t, []float64{1}, [][]float64{{2}}), 0.5)
	out, err := message.Fuse(message.New(g, 0), k)
	require.NoError(t, err)
	eq, err := message.Fuse(message.New(g, 0), message.New(gauss(t, []float64{0.5}, [][]float64{{0.5}}), 0))
	require.NoError(t, err)
	assert.InDelta(t, eq.Scale+0.5-(0.5*math.Log(math.Pi)+0.25), out.Scale, 1e-12)
	assert.InDelta(t, eq.Dist.(*dist.Gaussian).Mean()[0], out.Dist.(*dist.Gaussian).Mean()[0], 1e-12)

	rev, err := message.Fuse(k, message.New(g, 0))
	require.NoError(t, err)
	assert.InDelta(t, out.Scale, rev.Scale, 1e-12)

	// W = uuᵀ, ξ = u with u = (1, 1): s = x1+x2 ~ N(1, 2) under the prior and
	// E[exp(s − s²/2)] = e^{½}/√3.
	g2 := gauss(t, []float64{1, 0}, [][]float64{{1, 0}, {0, 1}})
	flat := kernel(t, []float64{1, 1}, [][]float64{{1, 1}, {1, 1}})
	out, err = message.Fuse(message.New(g2, 0), message.New(flat, 0))
	require.NoError(t, err)
	assert.InDelta(t, -0.5+0.5*math.Log(3), out.Scale, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 0}, out.Dist.(*dist.Gaussian).Mean(), 1e-12)

	both, err := message.Fuse(message.New(flat, 1), message.New(flat, 2))
	require.NoError(t, err)
	sum := both.Dist.(*dist.Likelihood)
	assert.Equal(t, 3.0, both.Scale)
	assert.InDeltaSlice(t, []float64{2, 2}, sum.Xi(), 1e-15)
	assert.InDeltaSlice(t, []float64{2, 2, 2, 2}, sum.W().Values(), 1e-15)

	x, err := dist.Point(0.5, 1)
	require.NoError(t, err)
	at, err := message.Fuse(message.New(x, 0), message.New(flat, 0))
	require.NoError(t, err)
	assert.Same(t, x, at.Dist)
	// s = 1.5: −(1.5 − 1.125)
	assert.InDelta(t, -0.375, at.Scale, 1e-12)

	prod, err := message.Product(message.New(g2, 4), message.New(flat, 5))
	require.NoError(t, err)
	assert.Zero(t, prod.Scale)
	assert.InDeltaSlice(t, []float64{1, 0}, prod.Dist.(*dist.Gaussian).Mean(), 1e-12)
}
