// SPDX-License-Identifier: MIT
package factorgraph_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/katalvlaran/scalebp/dist"
	"github.com/katalvlaran/scalebp/factorgraph"
	"github.com/katalvlaran/scalebp/fault"
	"github.com/katalvlaran/scalebp/matrix"
)

func identity(t require.TestingT, n int) *matrix.Dense {
	m, err := matrix.NewIdentity(n)
	require.NoError(t, err)

	return m
}

type GraphSuite struct {
	suite.Suite
	g     *factorgraph.Graph
	trans factorgraph.GaussianTransition
}

func (s *GraphSuite) SetupTest() {
	s.g = factorgraph.NewGraph()
	tr, err := factorgraph.NewGaussianTransition(identity(s.T(), 2), identity(s.T(), 2))
	s.Require().NoError(err)
	s.trans = tr
}

func (s *GraphSuite) addVar(id string) {
	_, err := s.g.AddVariable(id, dist.FamilyGaussian, 2)
	s.Require().NoError(err)
}

func (s *GraphSuite) TestDuplicateIDs() {
	s.addVar("x0")
	_, err := s.g.AddVariable("x0", dist.FamilyGaussian, 2)
	s.ErrorIs(err, fault.ErrDuplicateNode)

	_, err = s.g.AddFactor("x0", s.trans)
	s.ErrorIs(err, fault.ErrDuplicateNode)
	s.Equal("x0", fault.NodeOf(err))
}

func (s *GraphSuite) TestConnectChecksShape() {
	s.addVar("x0")
	_, err := s.g.AddVariable("x1", dist.FamilyGaussian, 3)
	s.Require().NoError(err)
	_, err = s.g.AddVariable("c", dist.FamilyCategorical, 2)
	s.Require().NoError(err)
	_, err = s.g.AddFactor("t", s.trans)
	s.Require().NoError(err)

	_, err = s.g.Connect("x0", "t", factorgraph.RoleIn)
	s.Require().NoError(err)

	_, err = s.g.Connect("x1", "t", factorgraph.RoleOut)
	s.ErrorIs(err, fault.ErrConfiguration)
	s.ErrorIs(err, fault.ErrDimensionMismatch)

	_, err = s.g.Connect("c", "t", factorgraph.RoleOut)
	s.ErrorIs(err, fault.ErrFamilyMismatch)

	_, err = s.g.Connect("x0", "t", factorgraph.RoleIn)
	s.ErrorIs(err, fault.ErrDuplicateNode)

	_, err = s.g.Connect("x0", "t", factorgraph.RoleValue)
	s.ErrorIs(err, fault.ErrMissingRole)

	_, err = s.g.Connect("nope", "t", factorgraph.RoleOut)
	s.ErrorIs(err, fault.ErrUnknownNode)
}

func (s *GraphSuite) TestValidateMissingRole() {
	s.addVar("x0")
	_, err := s.g.AddFactor("t", s.trans)
	s.Require().NoError(err)
	_, err = s.g.Connect("x0", "t", factorgraph.RoleIn)
	s.Require().NoError(err)

	err = s.g.Validate()
	s.ErrorIs(err, fault.ErrMissingRole)
	s.Equal("t", fault.NodeOf(err))
}

func (s *GraphSuite) TestValidateCycle() {
	// x0 -t1-> x1 -t2-> x2, plus an equality tying x0 and x2 back together.
	for _, id := range []string{"x0", "x1", "x2"} {
		s.addVar(id)
	}
	for _, id := range []string{"t1", "t2"} {
		_, err := s.g.AddFactor(id, s.trans)
		s.Require().NoError(err)
	}
	mustConnect := func(v, f string, r factorgraph.Role) {
		_, err := s.g.Connect(v, f, r)
		s.Require().NoError(err)
	}
	mustConnect("x0", "t1", factorgraph.RoleIn)
	mustConnect("x1", "t1", factorgraph.RoleOut)
	mustConnect("x1", "t2", factorgraph.RoleIn)
	mustConnect("x2", "t2", factorgraph.RoleOut)
	s.Require().NoError(s.g.Validate())

	_, err := s.g.AddFactor("eq", factorgraph.Equality{})
	s.Require().NoError(err)
	mustConnect("x0", "eq", factorgraph.RoleEquality)
	mustConnect("x2", "eq", factorgraph.RoleEquality)
	err = s.g.Validate()
	s.ErrorIs(err, fault.ErrConfiguration)
	s.ErrorIs(err, fault.ErrCycle)
}

func (s *GraphSuite) TestDoubleConnectionIsCycle() {
	s.addVar("x0")
	_, err := s.g.AddFactor("eq", factorgraph.Equality{})
	s.Require().NoError(err)
	for i := 0; i < 2; i++ {
		_, err = s.g.Connect("x0", "eq", factorgraph.RoleEquality)
		s.Require().NoError(err)
	}
	s.ErrorIs(s.g.Validate(), fault.ErrCycle)
}

func (s *GraphSuite) TestClampRevisions() {
	s.addVar("y")
	_, err := s.g.AddFactor("c", factorgraph.Clamp{Family: dist.FamilyGaussian, Dim: 2})
	s.Require().NoError(err)
	_, err = s.g.Connect("y", "c", factorgraph.RoleValue)
	s.Require().NoError(err)

	f, ok := s.g.Factor("c")
	s.Require().True(ok)
	version, rev := s.g.Version(), f.Rev()

	pm, err := dist.Point(1, 2)
	s.Require().NoError(err)
	s.Require().NoError(s.g.Clamp("c", pm))
	s.Same(pm, f.ClampValue())
	s.Greater(f.Rev(), rev)
	s.Equal(version, s.g.Version())

	bad, err := dist.Point(1)
	s.Require().NoError(err)
	s.ErrorIs(s.g.Clamp("c", bad), fault.ErrDimensionMismatch)

	s.Require().NoError(s.g.Unclamp("c"))
	s.Nil(f.ClampValue())

	v, _ := s.g.Variable("y")
	s.True(v.IsObserved())
}

func (s *GraphSuite) TestImportPrefixesIDs() {
	s.addVar("x0")
	prior, err := dist.NewGaussianMeanCov([]float64{0, 0}, identity(s.T(), 2))
	s.Require().NoError(err)
	_, err = s.g.AddFactor("p", factorgraph.Prior{Dist: prior})
	s.Require().NoError(err)
	_, err = s.g.Connect("x0", "p", factorgraph.RoleValue)
	s.Require().NoError(err)

	dst := factorgraph.NewGraph()
	s.Require().NoError(dst.Import(s.g, "a/"))
	s.Require().NoError(dst.Import(s.g, "b/"))
	s.Len(dst.Variables(), 2)
	s.Len(dst.Edges(), 2)
	s.NoError(dst.Validate())

	s.ErrorIs(dst.Import(s.g, "a/"), fault.ErrDuplicateNode)
	s.Len(dst.Variables(), 2)
}

func TestGraphSuite(t *testing.T) {
	suite.Run(t, new(GraphSuite))
}

func TestParamsValidation(t *testing.T) {
	notPD, err := matrix.NewFromRows([][]float64{{1, 2}, {2, 1}})
	require.NoError(t, err)
	_, err = factorgraph.NewGaussianTransition(identity(t, 2), notPD)
	require.ErrorIs(t, err, fault.ErrNumerical)
	require.ErrorIs(t, err, fault.ErrNotPositiveDefinite)

	_, err = factorgraph.NewGaussianTransition(identity(t, 2), identity(t, 3))
	require.ErrorIs(t, err, fault.ErrDimensionMismatch)

	neg, err := matrix.NewFromRows([][]float64{{1, -0.5}, {0, 1.5}})
	require.NoError(t, err)
	_, err = factorgraph.NewCategoricalTransition(neg)
	require.ErrorIs(t, err, fault.ErrInvalidParams)

	pm, err := dist.Point(0)
	require.NoError(t, err)
	_, err = factorgraph.NewPrior(pm)
	require.ErrorIs(t, err, fault.ErrInvalidParams)

	g := factorgraph.NewGraph(factorgraph.WithMode(factorgraph.ModeFiltering), factorgraph.WithLogger(nil))
	require.Equal(t, factorgraph.ModeFiltering, g.Mode())
	require.NotNil(t, g.Logger())
}
