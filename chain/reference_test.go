// SPDX-License-Identifier: MIT
package chain_test

import (
	"math"
	"sort"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/scalebp/chain"
	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/matrix"
)

const tol = 1e-9

func rows(t require.TestingT, r [][]float64) *matrix.Dense {
	m, err := matrix.NewFromRows(r)
	require.NoError(t, err)

	return m
}

func mul(t require.TestingT, a, b matrix.Matrix) *matrix.Dense {
	m, err := matrix.Mul(a, b)
	require.NoError(t, err)

	return m
}

func tr(t require.TestingT, a matrix.Matrix) *matrix.Dense {
	m, err := matrix.Transpose(a)
	require.NoError(t, err)

	return m
}

func at(t require.TestingT, m matrix.Matrix, i, j int) float64 {
	v, err := m.At(i, j)
	require.NoError(t, err)

	return v
}

// lgssm is a two-dimensional state with scalar observations:
//
//	x0 ~ N(m0, P0), x_t = A x_{t-1} + w, y_t = B x_t + v.
type lgssm struct {
	m0       []float64
	p0, a, q *matrix.Dense
	b, r     *matrix.Dense
	ys       map[int]float64
	steps    int
	means    [][]float64
	covs     []*matrix.Dense
	powers   []*matrix.Dense // A^k
}

func newLGSSM(t require.TestingT) *lgssm {
	m := &lgssm{
		m0:    []float64{0, 1},
		p0:    rows(t, [][]float64{{1, 0.2}, {0.2, 0.5}}),
		a:     rows(t, [][]float64{{1, 0.1}, {0, 0.95}}),
		q:     rows(t, [][]float64{{0.05, 0}, {0, 0.02}}),
		b:     rows(t, [][]float64{{1, 0.5}}),
		r:     rows(t, [][]float64{{0.25}}),
		ys:    map[int]float64{1: 0.4, 2: 0.9, 3: 0.7, 4: 1.6, 5: 1.2},
		steps: 5,
	}
	m.means = [][]float64{m.m0}
	m.covs = []*matrix.Dense{m.p0}
	id, err := matrix.NewIdentity(2)
	require.NoError(t, err)
	m.powers = []*matrix.Dense{id}
	for s := 1; s <= m.steps; s++ {
		mu, err := matrix.MatVec(m.a, m.means[s-1])
		require.NoError(t, err)
		c, err := matrix.Add(mul(t, mul(t, m.a, m.covs[s-1]), tr(t, m.a)), m.q)
		require.NoError(t, err)
		m.means = append(m.means, mu)
		m.covs = append(m.covs, c)
		m.powers = append(m.powers, mul(t, m.a, m.powers[s-1]))
	}

	return m
}

func (m *lgssm) chain(t require.TestingT, opts ...chain.Option) *chain.Chain {
	prior, err := dist.NewGaussianMeanCov(m.m0, m.p0)
	require.NoError(t, err)
	trans, err := factorgraph.NewGaussianTransition(m.a, m.q)
	require.NoError(t, err)
	obs, err := factorgraph.NewGaussianTransition(m.b, m.r)
	require.NoError(t, err)
	c, err := chain.BuildChain(prior, trans, obs, m.steps, opts...)
	require.NoError(t, err)

	return c
}

func (m *lgssm) observations(t require.TestingT) chain.Observations {
	obs := chain.Observations{}
	for k, y := range m.ys {
		pm, err := dist.Point(y)
		require.NoError(t, err)
		obs[k] = pm
	}

	return obs
}

// cross returns Cov(x_t, x_s).
func (m *lgssm) cross(t require.TestingT, i, j int) *matrix.Dense {
	if i >= j {
		return mul(t, m.powers[i-j], m.covs[j])
	}

	return tr(t, m.cross(t, j, i))
}

// posterior conditions x_target on the observations at steps <= upto by
// stacking them into one joint Gaussian. It returns the conditional mean and
// covariance together with log p(y_{≤upto}).
func (m *lgssm) posterior(t require.TestingT, target, upto int) ([]float64, *matrix.Dense, float64) {
	var steps []int
	for k := range m.ys {
		if k <= upto {
			steps = append(steps, k)
		}
	}
	sort.Ints(steps)
	n := len(steps)
	if n == 0 {
		return m.means[target], m.covs[target], 0
	}

	s, err := matrix.NewDense(n, n)
	require.NoError(t, err)
	c, err := matrix.NewDense(2, n)
	require.NoError(t, err)
	resid := make([]float64, n)
	for i, ti := range steps {
		by, err := matrix.MatVec(m.b, m.means[ti])
		require.NoError(t, err)
		resid[i] = m.ys[ti] - by[0]
		for j, tj := range steps {
			v := at(t, mul(t, mul(t, m.b, m.cross(t, ti, tj)), tr(t, m.b)), 0, 0)
			if i == j {
				v += at(t, m.r, 0, 0)
			}
			require.NoError(t, s.Set(i, j, v))
		}
		col := mul(t, m.cross(t, target, ti), tr(t, m.b))
		for d := 0; d < 2; d++ {
			require.NoError(t, c.Set(d, i, at(t, col, d, 0)))
		}
	}

	l, err := matrix.Cholesky(s)
	require.NoError(t, err)
	alpha, err := matrix.CholeskySolveVec(l, resid)
	require.NoError(t, err)
	shift, err := matrix.MatVec(c, alpha)
	require.NoError(t, err)
	mean, err := matrix.AddVec(m.means[target], shift)
	require.NoError(t, err)
	sc, err := matrix.CholeskySolve(l, tr(t, c))
	require.NoError(t, err)
	cov, err := matrix.Sub(m.covs[target], mul(t, c, sc))
	require.NoError(t, err)
	q, err := matrix.Dot(resid, alpha)
	require.NoError(t, err)
	logZ := -0.5 * (float64(n)*math.Log(2*math.Pi) + matrix.LogDetCholesky(l) + q)

	return mean, cov, logZ
}

// hmm is a three-state hidden Markov model with three symbols.
type hmm struct {
	pi    []float64
	a, b  [][]float64 // column-stochastic: a[i][j] = P(i | j)
	ys    map[int]int
	steps int
}

func newHMM() *hmm {
	return &hmm{
		pi:    []float64{0.5, 0.3, 0.2},
		a:     [][]float64{{0.9, 0, 0.1}, {0, 0.9, 0.1}, {0.1, 0.1, 0.8}},
		b:     [][]float64{{0.9, 0.05, 0.05}, {0.05, 0.9, 0.05}, {0.05, 0.05, 0.9}},
		ys:    map[int]int{1: 0, 2: 0, 3: 2, 4: 1},
		steps: 4,
	}
}

func (h *hmm) chain(t require.TestingT, opts ...chain.Option) *chain.Chain {
	prior, err := dist.NewCategorical(h.pi)
	require.NoError(t, err)
	trans, err := factorgraph.NewCategoricalTransition(rows(t, h.a))
	require.NoError(t, err)
	obs, err := factorgraph.NewCategoricalTransition(rows(t, h.b))
	require.NoError(t, err)
	c, err := chain.BuildChain(prior, trans, obs, h.steps, opts...)
	require.NoError(t, err)

	return c
}

func (h *hmm) observations(t require.TestingT) chain.Observations {
	obs := chain.Observations{}
	for k, y := range h.ys {
		pm, err := dist.OneHot(3, y)
		require.NoError(t, err)
		obs[k] = pm
	}

	return obs
}

// enumerate sums over every path x0..x_upto, weighting observations at
// steps <= upto. It returns log p(y_{≤upto}) and the posterior of each x_t.
func (h *hmm) enumerate(upto int) (float64, [][]float64) {
	marg := make([][]float64, upto+1)
	for i := range marg {
		marg[i] = make([]float64, 3)
	}
	path := make([]int, upto+1)
	var z float64

	var walk func(t int, w float64)
	walk = func(t int, w float64) {
		if t > upto {
			z += w
			for s, x := range path {
				marg[s][x] += w
			}
			return
		}
		for x := 0; x < 3; x++ {
			p := h.pi[x]
			if t > 0 {
				p = h.a[x][path[t-1]]
			}
			if y, ok := h.ys[t]; ok && t > 0 {
				p *= h.b[y][x]
			}
			path[t] = x
			walk(t+1, w*p)
		}
	}
	walk(0, 1)

	for _, m := range marg {
		for i := range m {
			m[i] /= z
		}
	}

	return math.Log(z), marg
}
