package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	"github.com/KirkDiggler/turnkeep/internal/models"
	sessionRepo "github.com/KirkDiggler/turnkeep/internal/repositories/session"
	"github.com/KirkDiggler/turnkeep/internal/repositories/turnlog"
	turnlogMocks "github.com/KirkDiggler/turnkeep/internal/repositories/turnlog/mocks"
	"github.com/KirkDiggler/turnkeep/internal/services/messaging"
	"github.com/KirkDiggler/turnkeep/internal/services/narrator"
	narratorMocks "github.com/KirkDiggler/turnkeep/internal/services/narrator/mocks"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
	"github.com/KirkDiggler/turnkeep/internal/services/scenario"
)

type ManagerTestSuite struct {
	suite.Suite
	mockCtrl     *gomock.Controller
	mockNarrator *narratorMocks.MockNarrator
	mockTurnLog  *turnlogMocks.MockRepository
	mr           *miniredis.Miniredis
	client   *redis.Client
	repo     sessionRepo.Repository
	template Config
	ctx      context.Context
	testNow  time.Time
}

func (s *ManagerTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockNarrator = narratorMocks.NewMockNarrator(s.mockCtrl)
	s.mockTurnLog = turnlogMocks.NewMockRepository(s.mockCtrl)

	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo, err := sessionRepo.NewRedis(&sessionRepo.Config{RedisClient: s.client})
	s.Require().NoError(err)
	s.repo = repo

	graph, err := scenario.Parse([]byte(loopGraph))
	s.Require().NoError(err)
	messages, err := messaging.NewService(&messaging.ServiceConfig{Seed: 3})
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.testNow = time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC)

	s.template = Config{
		Narrator:    s.mockNarrator,
		Compiler:    graph,
		Evaluator:   graph,
		Messages:    messages,
		Sink:        &recordingSink{},
		SessionRepo: s.repo,
		TurnLog:     s.mockTurnLog,
		Clock:       clock.NewManual(s.testNow),
	}
}

func (s *ManagerTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
	s.mockCtrl.Finish()
}

func (s *ManagerTestSuite) manager(observer string) *Manager {
	m, err := NewManager(&ManagerConfig{Template: s.template, ObserverID: observer})
	s.Require().NoError(err)
	return m
}

// managerOn gives an observer its own clock, the way separate processes
// each run their own countdowns
func (s *ManagerTestSuite) managerOn(observer string, c clock.Clock) *Manager {
	template := s.template
	template.Clock = c
	m, err := NewManager(&ManagerConfig{Template: template, ObserverID: observer})
	s.Require().NoError(err)
	return m
}

func (s *ManagerTestSuite) session(id string, state models.SessionState) *models.Session {
	return &models.Session{
		ID:        id,
		ChannelID: "channel-" + id,
		State:     state,
		Turn:      1,
		Participants: []*models.Participant{
			{ID: "p-alice", SlotIndex: 0, HeroName: "Alice", OwnerID: "owner-1", Role: "A", Score: 1000},
			{ID: "p-bob", SlotIndex: 1, HeroName: "Bob", OwnerID: "owner-2", Role: "B", Score: 1000},
		},
		CreatedAt: s.testNow,
		UpdatedAt: s.testNow,
	}
}

func (s *ManagerTestSuite) TestNewManagerValidates() {
	_, err := NewManager(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = NewManager(&ManagerConfig{ObserverID: "obs"})
	s.ErrorIs(err, ErrMissingDependency)

	_, err = NewManager(&ManagerConfig{Template: s.template})
	s.Error(err)
}

func (s *ManagerTestSuite) TestAdoptRaceReturnsFirstOrchestrator() {
	m := s.manager("observer-1")
	session := s.session("s1", models.SessionStateActive)

	const callers = 8
	results := make([]*AdoptOutput, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := m.Adopt(s.ctx, session)
			s.NoError(err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	created := 0
	for _, out := range results {
		s.Require().NotNil(out)
		s.Same(results[0].Orchestrator, out.Orchestrator)
		s.True(out.Managed)
		if out.Created {
			created++
		}
	}
	s.Equal(1, created)
	s.Equal(1, m.Count())
}

func (s *ManagerTestSuite) TestSecondObserverOnlyObserves() {
	first := s.manager("observer-1")
	second := s.manager("observer-2")
	session := s.session("s1", models.SessionStateActive)

	out, err := first.Adopt(s.ctx, session)
	s.Require().NoError(err)
	s.True(out.Managed)

	out, err = second.Adopt(s.ctx, session)
	s.Require().NoError(err)
	s.True(out.Created)
	s.False(out.Managed)
	s.True(out.Orchestrator.observeOnly)
}

func (s *ManagerTestSuite) TestAdoptRestoresOutcome() {
	ledger, err := outcome.New(s.session("s1", models.SessionStateActive).Participants, &outcome.Config{})
	s.Require().NoError(err)
	ledger.Record(&outcome.RecordInput{Turn: 1, ResultLine: "A 승리"})
	s.Require().NoError(s.repo.SaveOutcome(s.ctx, &sessionRepo.SaveOutcomeInput{SessionID: "s1", Snapshot: ledger.Snapshot()}))

	m := s.manager("observer-1")
	out, err := m.Adopt(s.ctx, s.session("s1", models.SessionStateActive))
	s.Require().NoError(err)

	snap := out.Orchestrator.Outcome()
	s.Require().NotNil(snap)
	alice, ok := snap.Entry("p-alice")
	s.Require().True(ok)
	s.Equal(outcome.ResultWon, alice.Result)
}

func (s *ManagerTestSuite) TestCreateStartsSession() {
	m := s.manager("observer-1")

	o, err := m.Create(s.ctx, s.session("s1", models.SessionStatePreflight))
	s.Require().NoError(err)
	s.Equal(models.SessionStateActive, o.Session().State)

	stored, err := s.repo.GetSession(s.ctx, &sessionRepo.GetSessionInput{SessionID: "s1"})
	s.Require().NoError(err)
	s.Equal(models.SessionStateActive, stored.State)

	_, err = m.Create(s.ctx, s.session("s1", models.SessionStatePreflight))
	s.ErrorIs(err, ErrAlreadyStarted)

	got, ok := m.Get("s1")
	s.True(ok)
	s.Same(o, got)
}

func (s *ManagerTestSuite) TestCreateForgetsSessionThatFailsToStart() {
	m := s.manager("observer-1")
	session := s.session("s1", models.SessionStatePreflight)
	session.Participants = nil

	_, err := m.Create(s.ctx, session)
	s.ErrorIs(err, ErrNoParticipants)
	s.Zero(m.Count())
}

func (s *ManagerTestSuite) TestSyncAdoptsActiveSessions() {
	for _, session := range []*models.Session{
		s.session("active", models.SessionStateActive),
		s.session("assembling", models.SessionStatePreflight),
	} {
		s.Require().NoError(s.repo.SaveSession(s.ctx, &sessionRepo.SaveSessionInput{Session: session}))
	}

	m := s.manager("observer-1")
	out, err := m.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"active"}, out.Adopted)

	o, ok := m.Get("active")
	s.Require().True(ok)
	s.Equal(models.SessionStateActive, o.Session().State)

	_, ok = m.Get("assembling")
	s.False(ok)

	// A second poll adopts nothing new
	out, err = m.Sync(s.ctx)
	s.Require().NoError(err)
	s.Empty(out.Adopted)

	_, err = o.Dispatch(s.ctx, VoidCommand{Reason: "test"})
	s.Require().NoError(err)

	out, err = m.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"active"}, out.Removed)
	s.Zero(m.Count())
}

func (s *ManagerTestSuite) TestOnlyClaimingObserverResolvesTurns() {
	s.mockTurnLog.EXPECT().List(gomock.Any(), gomock.Any()).Return(&turnlog.ListOutput{}, nil).AnyTimes()
	s.mockTurnLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		Return(&narrator.Response{Text: "Story\n\nnone\nnone"}, nil).
		Times(1)

	clockA := clock.NewManual(s.testNow)
	clockB := clock.NewManual(s.testNow)
	a := s.managerOn("observer-1", clockA)
	b := s.managerOn("observer-2", clockB)

	owner, err := a.Create(s.ctx, s.session("s1", models.SessionStatePreflight))
	s.Require().NoError(err)
	s.True(owner.Managed())

	out, err := b.Sync(s.ctx)
	s.Require().NoError(err)
	s.Empty(out.Adopted)
	s.Equal([]string{"s1"}, out.Observed)

	follower, ok := b.Get("s1")
	s.Require().True(ok)
	s.False(follower.Managed())
	s.False(follower.TimerSnapshot().Running)
	s.Zero(clockB.Pending())

	// The follower's clock running past the deadline resolves nothing
	clockB.Advance(10 * time.Minute)
	s.Equal(1, follower.Session().Turn)

	_, err = follower.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual, OwnerID: "owner-1"})
	s.ErrorIs(err, ErrSessionNotManaged)

	clockA.Advance(90 * time.Second)
	s.Equal(2, owner.Session().Turn)

	stored, err := s.repo.GetSession(s.ctx, &sessionRepo.GetSessionInput{SessionID: "s1"})
	s.Require().NoError(err)
	s.Equal(2, stored.Turn)

	// The next poll rebuilds the follower from the stored row
	out, err = b.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"s1"}, out.Observed)
	follower, ok = b.Get("s1")
	s.Require().True(ok)
	s.Equal(2, follower.Session().Turn)

	out, err = a.Sync(s.ctx)
	s.Require().NoError(err)
	s.Empty(out.Adopted)
	s.Empty(out.Removed)
	s.Same(owner, s.mustGet(a, "s1"))
}

func (s *ManagerTestSuite) TestFollowerTakesOverAfterClaimLapses() {
	a := s.managerOn("observer-1", clock.NewManual(s.testNow))
	clockB := clock.NewManual(s.testNow)
	b := s.managerOn("observer-2", clockB)

	_, err := a.Create(s.ctx, s.session("s1", models.SessionStatePreflight))
	s.Require().NoError(err)

	out, err := b.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"s1"}, out.Observed)

	// The claiming process goes away without ending the session
	a.Remove("s1")
	s.mr.FastForward(DefaultClaimTTL + time.Minute)

	out, err = b.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"s1"}, out.Adopted)
	s.Empty(out.Observed)

	o := s.mustGet(b, "s1")
	s.True(o.Managed())
	s.True(o.TimerSnapshot().Running)
	s.Equal(1, clockB.Pending())
}

func (s *ManagerTestSuite) TestSyncRenewsManagedClaims() {
	a := s.managerOn("observer-1", clock.NewManual(s.testNow))
	b := s.managerOn("observer-2", clock.NewManual(s.testNow))

	_, err := a.Create(s.ctx, s.session("s1", models.SessionStatePreflight))
	s.Require().NoError(err)

	s.mr.FastForward(DefaultClaimTTL - time.Hour)
	_, err = a.Sync(s.ctx)
	s.Require().NoError(err)
	s.mr.FastForward(2 * time.Hour)

	out, err := b.Sync(s.ctx)
	s.Require().NoError(err)
	s.Empty(out.Adopted)
	s.Equal([]string{"s1"}, out.Observed)
}

func (s *ManagerTestSuite) TestSyncDemotesSessionWhoseClaimWasTaken() {
	a := s.managerOn("observer-1", clock.NewManual(s.testNow))

	_, err := a.Create(s.ctx, s.session("s1", models.SessionStatePreflight))
	s.Require().NoError(err)

	s.mr.Del("session:claim:s1")
	_, err = s.repo.ClaimSession(s.ctx, &sessionRepo.ClaimSessionInput{SessionID: "s1", ObserverID: "observer-2", TTL: time.Hour})
	s.Require().NoError(err)

	out, err := a.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"s1"}, out.Observed)
	s.False(s.mustGet(a, "s1").Managed())
}

func (s *ManagerTestSuite) mustGet(m *Manager, id string) *Orchestrator {
	o, ok := m.Get(id)
	s.Require().True(ok, id)
	return o
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
