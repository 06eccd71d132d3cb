package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestThreshold(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 4},
		{5, 4},
		{6, 5},
		{10, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold(tt.n), "n=%d", tt.n)
	}
}

type ControllerTestSuite struct {
	suite.Suite
	controller *Controller
}

func (s *ControllerTestSuite) SetupTest() {
	s.controller = New(nil)
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) TestSoloOwnerNeverBlocks() {
	s.controller.SyncEligibleOwners([]string{"owner-1"})

	s.False(s.controller.NeedsConsensus())
	s.Equal(1, s.controller.Threshold())
}

func (s *ControllerTestSuite) TestFiveOwnersNeedFour() {
	s.controller.SyncEligibleOwners([]string{"a", "b", "c", "d", "e"})
	s.True(s.controller.NeedsConsensus())
	s.Equal(4, s.controller.Threshold())

	for _, id := range []string{"a", "b", "c"} {
		out := s.controller.RegisterConsent(id)
		s.True(out.Accepted)
		s.False(out.Reached)
	}

	out := s.controller.RegisterConsent("d")
	s.True(out.Reached)
	s.Equal(4, out.Count)
	s.True(s.controller.Reached())
}

func (s *ControllerTestSuite) TestConsentIsIdempotent() {
	s.controller.SyncEligibleOwners([]string{"a", "b"})

	s.True(s.controller.RegisterConsent("a").Accepted)
	out := s.controller.RegisterConsent("a")
	s.False(out.Accepted)
	s.Equal(1, out.Count)
	s.False(out.Reached)
}

func (s *ControllerTestSuite) TestIneligibleOwnerIgnored() {
	s.controller.SyncEligibleOwners([]string{"a", "b"})

	out := s.controller.RegisterConsent("stranger")
	s.False(out.Accepted)
	s.Zero(out.Count)
}

func (s *ControllerTestSuite) TestClearResetsConsents() {
	s.controller.SyncEligibleOwners([]string{"a", "b"})
	s.controller.RegisterConsent("a")
	s.controller.RegisterConsent("b")
	s.True(s.controller.Reached())

	s.controller.Clear()
	s.False(s.controller.Reached())
	snap := s.controller.Snapshot()
	s.Empty(snap.Consented)
	s.Equal([]string{"a", "b"}, snap.Eligible)
}

func (s *ControllerTestSuite) TestShrinkingEligibleSetDropsConsents() {
	s.controller.SyncEligibleOwners([]string{"a", "b", "c"})
	s.controller.RegisterConsent("a")
	s.controller.RegisterConsent("c")

	s.controller.SyncEligibleOwners([]string{"a", "b"})
	snap := s.controller.Snapshot()
	s.Equal([]string{"a"}, snap.Consented)
	s.Equal(2, snap.Threshold)
	s.False(snap.Reached)
}

func (s *ControllerTestSuite) TestEmptyEligibleNeverReached() {
	s.controller.SyncEligibleOwners(nil)
	s.False(s.controller.Reached())
	s.False(s.controller.NeedsConsensus())
}
