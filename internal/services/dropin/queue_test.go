package dropin

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

type QueueTestSuite struct {
	suite.Suite
	queue *Queue

	alice *models.Participant
	bob   *models.Participant
}

func (s *QueueTestSuite) SetupTest() {
	s.queue = New(&Config{})
	s.alice = &models.Participant{ID: "p-alice", SlotIndex: 0, HeroName: "Alice", OwnerID: "owner-1", Role: "Red"}
	s.bob = &models.Participant{ID: "p-bob", SlotIndex: 1, HeroName: "Bob", OwnerID: "owner-2", Role: "Blue"}
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}

func (s *QueueTestSuite) TestFirstSyncIsSilentBaseline() {
	out := s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 1})

	s.True(out.Baseline)
	s.False(out.Changed)
	s.Empty(out.Arrivals)
	s.Empty(out.Departures)

	stats, ok := s.queue.RoleStats("red")
	s.Require().True(ok)
	s.Equal("p-alice", stats.ActiveKey)
	s.Zero(stats.Arrivals)
}

func (s *QueueTestSuite) TestUnchangedRosterIsNoOp() {
	roster := []*models.Participant{s.alice, s.bob}
	s.queue.Sync(roster, SyncOptions{TurnNumber: 1})

	out := s.queue.Sync(roster, SyncOptions{TurnNumber: 2})
	s.False(out.Baseline)
	s.False(out.Changed)
	s.False(s.queue.Sync(roster, SyncOptions{TurnNumber: 3}).Changed)
}

func (s *QueueTestSuite) TestNewKeyOnEmptyRoleIsPlainArrival() {
	s.queue.Sync([]*models.Participant{s.alice}, SyncOptions{TurnNumber: 1})

	out := s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 2})
	s.True(out.Changed)
	s.Require().Len(out.Arrivals, 1)
	s.Equal("p-bob", out.Arrivals[0].Key)
	s.Equal("Blue", out.Arrivals[0].Role)
	s.Nil(out.Arrivals[0].Replaced)
	s.Empty(out.Departures)

	stats, _ := s.queue.RoleStats("Blue")
	s.Equal(1, stats.Arrivals)
	s.Zero(stats.Replacements)
	s.Equal(2, stats.LastArrivalTurn)
}

func (s *QueueTestSuite) TestSubstitutionInSameSync() {
	s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 1})

	dave := &models.Participant{ID: "p-dave", SlotIndex: 0, HeroName: "Dave", OwnerID: "owner-4", Role: "Red"}
	out := s.queue.Sync([]*models.Participant{dave, s.bob}, SyncOptions{TurnNumber: 3})

	s.Require().Len(out.Arrivals, 1)
	s.Require().NotNil(out.Arrivals[0].Replaced)
	s.Equal("p-alice", out.Arrivals[0].Replaced.Key())
	s.Empty(out.Departures)

	stats, _ := s.queue.RoleStats("Red")
	s.Equal("p-dave", stats.ActiveKey)
	s.Equal(1, stats.Replacements)
}

func (s *QueueTestSuite) TestDepartureThenLaterReplacement() {
	s.alice.Status = models.ParticipantStatusProxy
	s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 1})

	out := s.queue.Sync([]*models.Participant{s.bob}, SyncOptions{TurnNumber: 2})
	s.Require().Len(out.Departures, 1)
	s.Equal(CauseAsyncProxyRotation, out.Departures[0].Cause)

	stats, _ := s.queue.RoleStats("Red")
	s.Empty(stats.ActiveKey)
	s.Equal(CauseAsyncProxyRotation, stats.LastDepartureCause)

	dave := &models.Participant{ID: "p-dave", SlotIndex: 0, HeroName: "Dave", Role: "Red"}
	out = s.queue.Sync([]*models.Participant{dave, s.bob}, SyncOptions{TurnNumber: 4})
	s.Require().Len(out.Arrivals, 1)
	s.Require().NotNil(out.Arrivals[0].Replaced)
	s.Equal("p-alice", out.Arrivals[0].Replaced.Key())
}

func (s *QueueTestSuite) TestReturningOccupantIsNotAnArrival() {
	s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 1})
	s.queue.Sync([]*models.Participant{s.bob}, SyncOptions{TurnNumber: 2})

	out := s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 3})
	s.Empty(out.Arrivals)
	s.Empty(out.Departures)
}

func (s *QueueTestSuite) TestKeyFallsBackToRoleAndIndex() {
	seeded := &models.Participant{SlotIndex: 2, HeroName: "Eve", Role: "Green"}
	s.queue.Sync([]*models.Participant{s.alice}, SyncOptions{TurnNumber: 1})

	out := s.queue.Sync([]*models.Participant{s.alice, seeded}, SyncOptions{TurnNumber: 2})
	s.Require().Len(out.Arrivals, 1)
	s.Equal("Green:2", out.Arrivals[0].Key)
}

func (s *QueueTestSuite) TestDepartureCauses() {
	tests := []struct {
		status models.ParticipantStatus
		want   DepartureCause
	}{
		{models.ParticipantStatusDefeated, CauseRoleDefeated},
		{models.ParticipantStatusSpectating, CauseRoleSpectating},
		{models.ParticipantStatusProxy, CauseAsyncProxyRotation},
		{models.ParticipantStatusPending, CauseAsyncPending},
		{models.ParticipantStatusActive, CauseAsyncRotation},
		{"", CauseAsyncRotation},
	}

	for _, tt := range tests {
		q := New(nil)
		leaving := *s.alice
		leaving.Status = tt.status
		q.Sync([]*models.Participant{&leaving, s.bob}, SyncOptions{TurnNumber: 1})

		out := q.Sync([]*models.Participant{s.bob}, SyncOptions{TurnNumber: 2})
		s.Require().Len(out.Departures, 1, string(tt.status))
		s.Equal(tt.want, out.Departures[0].Cause, string(tt.status))
	}
}

func (s *QueueTestSuite) TestStatsOrder() {
	s.queue.Sync([]*models.Participant{s.alice, s.bob}, SyncOptions{TurnNumber: 1})

	stats := s.queue.Stats()
	s.Len(stats, 2)
}

func (s *QueueTestSuite) TestJoiningOccupiedRoleReplacesActiveOccupant() {
	s.queue.Sync([]*models.Participant{s.alice}, SyncOptions{TurnNumber: 1})

	carol := &models.Participant{ID: "p-carol", SlotIndex: 2, HeroName: "Carol", OwnerID: "owner-3", Role: "Red"}
	out := s.queue.Sync([]*models.Participant{s.alice, carol}, SyncOptions{TurnNumber: 2})

	s.Require().Len(out.Arrivals, 1)
	s.Require().NotNil(out.Arrivals[0].Replaced)
	s.Equal("p-alice", out.Arrivals[0].Replaced.Key())
	s.Empty(out.Departures)

	stats, _ := s.queue.RoleStats("Red")
	s.Equal("p-carol", stats.ActiveKey)
	s.Equal(1, stats.Replacements)
}

func (s *QueueTestSuite) TestSimultaneousArrivalsChainReplacements() {
	s.queue.Sync([]*models.Participant{s.alice}, SyncOptions{TurnNumber: 1})

	carol := &models.Participant{ID: "p-carol", SlotIndex: 2, HeroName: "Carol", Role: "Red"}
	dave := &models.Participant{ID: "p-dave", SlotIndex: 3, HeroName: "Dave", Role: "Red"}
	out := s.queue.Sync([]*models.Participant{s.alice, carol, dave}, SyncOptions{TurnNumber: 2})

	s.Require().Len(out.Arrivals, 2)
	s.Equal("p-alice", out.Arrivals[0].Replaced.Key())
	s.Equal("p-carol", out.Arrivals[1].Replaced.Key())

	stats, _ := s.queue.RoleStats("Red")
	s.Equal("p-dave", stats.ActiveKey)
	s.Equal(2, stats.Replacements)
}

func (s *QueueTestSuite) TestRoleNamesFoldWidthAndCase() {
	s.queue.Sync([]*models.Participant{s.alice}, SyncOptions{TurnNumber: 1})

	wide := &models.Participant{ID: "p-wide", SlotIndex: 1, HeroName: "Wide", Role: "ＲＥＤ"}
	out := s.queue.Sync([]*models.Participant{s.alice, wide}, SyncOptions{TurnNumber: 2})

	s.Require().Len(out.Arrivals, 1)
	s.Equal("Red", out.Arrivals[0].Role)
	s.Require().NotNil(out.Arrivals[0].Replaced)
	s.Equal("p-alice", out.Arrivals[0].Replaced.Key())
	s.Len(s.queue.Stats(), 1)

	_, ok := s.queue.RoleStats(" ｒｅｄ ")
	s.True(ok)
}
