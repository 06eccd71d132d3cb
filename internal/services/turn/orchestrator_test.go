package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	uuidMocks "github.com/KirkDiggler/turnkeep/internal/common/uuid/mocks"
	"github.com/KirkDiggler/turnkeep/internal/models"
	sessionMocks "github.com/KirkDiggler/turnkeep/internal/repositories/session/mocks"
	"github.com/KirkDiggler/turnkeep/internal/repositories/turnlog"
	turnlogMocks "github.com/KirkDiggler/turnkeep/internal/repositories/turnlog/mocks"
	"github.com/KirkDiggler/turnkeep/internal/services/messaging"
	"github.com/KirkDiggler/turnkeep/internal/services/narrator"
	narratorMocks "github.com/KirkDiggler/turnkeep/internal/services/narrator/mocks"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
	"github.com/KirkDiggler/turnkeep/internal/services/presence"
	"github.com/KirkDiggler/turnkeep/internal/services/scenario"
	scenarioMocks "github.com/KirkDiggler/turnkeep/internal/services/scenario/mocks"
)

const loopGraph = `
start: arena
system: You narrate a {{.Mode}} contest.
nodes:
  arena:
    title: The Arena
    prompt: Turn {{.Turn}} in {{.Title}} ({{.Reason}}).
    edges:
      - id: routed
        action: lose
        when:
          status: lost
          variable: rout
      - id: again
        to: arena
        action: continue
`

const deadEndGraph = `
start: pit
nodes:
  pit:
    title: The Pit
    prompt: Turn {{.Turn}}.
`

// recordingSink keeps every emitted event in order
type recordingSink struct {
	mu     sync.Mutex
	events []TurnEvent
}

func (r *recordingSink) Emit(_ context.Context, ev TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) ofType(t EventType) []TurnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TurnEvent
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingSink) timeline(t models.TimelineEventType) []*models.TimelineEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TimelineEvent
	for _, ev := range r.events {
		if ev.Type == EventTimeline && ev.Timeline.Type == t {
			out = append(out, ev.Timeline)
		}
	}
	return out
}

type OrchestratorTestSuite struct {
	suite.Suite
	mockCtrl        *gomock.Controller
	mockNarrator    *narratorMocks.MockNarrator
	mockSessionRepo *sessionMocks.MockRepository
	mockTurnLog     *turnlogMocks.MockRepository
	mockUUID        *uuidMocks.MockUUID
	clock           *clock.Manual
	sink            *recordingSink
	messages        messaging.Service
	graph           *scenario.Graph
	ctx             context.Context

	alice *models.Participant
	bob   *models.Participant
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockNarrator = narratorMocks.NewMockNarrator(s.mockCtrl)
	s.mockSessionRepo = sessionMocks.NewMockRepository(s.mockCtrl)
	s.mockTurnLog = turnlogMocks.NewMockRepository(s.mockCtrl)
	s.mockUUID = uuidMocks.NewMockUUID(s.mockCtrl)

	s.mockSessionRepo.EXPECT().SaveSession(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.mockSessionRepo.EXPECT().SaveOutcome(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.mockTurnLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.mockTurnLog.EXPECT().List(gomock.Any(), gomock.Any()).Return(&turnlog.ListOutput{}, nil).AnyTimes()
	s.mockUUID.EXPECT().NewUUID().Return("event-id").AnyTimes()

	s.clock = clock.NewManual(time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC))
	s.sink = &recordingSink{}
	s.ctx = context.Background()

	messages, err := messaging.NewService(&messaging.ServiceConfig{Seed: 7})
	s.Require().NoError(err)
	s.messages = messages

	s.graph = s.parseGraph(loopGraph)

	s.alice = &models.Participant{ID: "p-alice", SlotIndex: 0, HeroName: "Alice", OwnerID: "owner-1", Role: "A", Score: 1000}
	s.bob = &models.Participant{ID: "p-bob", SlotIndex: 1, HeroName: "Bob", OwnerID: "owner-2", Role: "B", Score: 1000}
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func (s *OrchestratorTestSuite) parseGraph(raw string) *scenario.Graph {
	g, err := scenario.Parse([]byte(raw))
	s.Require().NoError(err)
	return g
}

func (s *OrchestratorTestSuite) config(participants ...*models.Participant) *Config {
	return &Config{
		Session: &models.Session{
			ID:           "session-1",
			ChannelID:    "channel-1",
			Participants: participants,
		},
		Narrator:    s.mockNarrator,
		Compiler:    s.graph,
		Evaluator:   s.graph,
		Messages:    s.messages,
		Sink:        s.sink,
		SessionRepo: s.mockSessionRepo,
		TurnLog:     s.mockTurnLog,
		Timer:       TimerSettings{BaseSeconds: 60, FirstTurnBonusSeconds: 30, DropInBonusSeconds: 20},
		Clock:       s.clock,
		UUID:        s.mockUUID,
	}
}

func (s *OrchestratorTestSuite) started(cfg *Config) *Orchestrator {
	o, err := New(cfg)
	s.Require().NoError(err)
	s.Require().NoError(o.Start(s.ctx))
	return o
}

func (s *OrchestratorTestSuite) advance(o *Orchestrator, owner, response string) *DispatchOutput {
	out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual, OwnerID: owner, OverrideResponse: response})
	s.Require().NoError(err)
	return out
}

func (s *OrchestratorTestSuite) TestNewRequiresDependencies() {
	_, err := New(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = New(&Config{})
	s.ErrorIs(err, ErrNilSession)

	cfg := s.config(s.alice)
	cfg.Narrator = nil
	_, err = New(cfg)
	s.ErrorIs(err, ErrMissingDependency)
}

func (s *OrchestratorTestSuite) TestStartRejectsEmptyRoster() {
	o, err := New(s.config(&models.Participant{SlotIndex: 0, Role: "A"}))
	s.Require().NoError(err)

	err = o.Start(s.ctx)
	s.ErrorIs(err, ErrNoParticipants)

	statuses := s.sink.ofType(EventStatus)
	s.Require().Len(statuses, 1)
	s.NotEmpty(statuses[0].Message)
	s.Equal(models.SessionStatePreflight, o.Session().State)
}

func (s *OrchestratorTestSuite) TestStartOpensFirstTurn() {
	o := s.started(s.config(s.alice, s.bob, &models.Participant{SlotIndex: 2}))

	session := o.Session()
	s.Equal(models.SessionStateActive, session.State)
	s.Equal(1, session.Turn)
	s.Len(session.Participants, 2)

	s.Equal(90*time.Second, o.TimerSnapshot().Remaining)
	s.Equal(1, s.clock.Pending())
	s.Equal([]string{"owner-1", "owner-2"}, o.ConsensusSnapshot().Eligible)
	s.Require().NotNil(o.Outcome())
	s.Len(o.Outcome().Entries, 2)

	s.ErrorIs(o.Start(s.ctx), ErrAlreadyStarted)
}

func (s *OrchestratorTestSuite) TestDispatchBeforeStart() {
	o, err := New(s.config(s.alice))
	s.Require().NoError(err)

	_, err = o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual})
	s.ErrorIs(err, ErrNotStarted)

	_, err = o.Dispatch(s.ctx, AdvanceCommand{Reason: "bogus"})
	s.ErrorIs(err, ErrInvalidReason)
}

func (s *OrchestratorTestSuite) TestAdvanceEndToEnd() {
	o := s.started(s.config(s.alice, s.bob))

	out := s.advance(o, "owner-1", "The crowd roars.\n\nnone\nA 승리")
	s.True(out.Accepted)
	s.Equal(models.SessionStateActive, out.State)
	s.Equal(2, out.Turn)

	resolved := s.sink.ofType(EventTurnResolved)
	s.Require().Len(resolved, 1)
	s.Equal("The crowd roars.", resolved[0].Narrative)
	s.Equal(1, resolved[0].Turn)

	out = s.advance(o, "owner-2", "The gate falls.\n\nnone\nB 패배")
	s.Equal(models.SessionStateTerminated, out.State)

	session := o.Session()
	s.Equal(models.TerminationWin, session.Termination)
	s.Equal("arena", session.NodeID)

	finals := s.sink.ofType(EventFinalized)
	s.Require().Len(finals, 1)
	s.NotEmpty(finals[0].Title)
	s.Require().NotNil(finals[0].Outcome)
	s.True(finals[0].Outcome.Completed)
	s.Equal(outcome.ResultWon, finals[0].Outcome.OverallResult)
	s.Len(s.sink.timeline(models.TimelineSessionFinalized), 1)

	s.Zero(s.clock.Pending())

	_, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual})
	s.ErrorIs(err, ErrTerminated)
	_, err = o.Dispatch(s.ctx, VoidCommand{})
	s.ErrorIs(err, ErrTerminated)
	s.Len(s.sink.ofType(EventFinalized), 1)
}

func (s *OrchestratorTestSuite) TestAdvanceCallsNarratorWithHistory() {
	s.mockTurnLog = turnlogMocks.NewMockRepository(s.mockCtrl)
	s.mockTurnLog.EXPECT().List(gomock.Any(), &turnlog.ListInput{SessionID: "session-1", Limit: DefaultHistoryTurns}).
		Return(&turnlog.ListOutput{Records: []*models.TurnRecord{{Turn: 1, Prompt: "earlier", Response: "answer"}}}, nil)

	var appended *models.TurnRecord
	s.mockTurnLog.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, input *turnlog.AppendInput) error {
			appended = input.Record
			return nil
		})

	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *narrator.Request) (*narrator.Response, error) {
			s.Equal("You narrate a standard contest.", req.System)
			s.Contains(req.Prompt, "Turn 1 in The Arena (manual)")
			s.Equal([]narrator.Message{
				{Role: narrator.RoleUser, Content: "earlier"},
				{Role: narrator.RoleAssistant, Content: "answer"},
			}, req.History)
			return &narrator.Response{Text: "Sparks fly.\n\nAlice\nspark\nnone"}, nil
		})

	o := s.started(s.config(s.alice, s.bob))
	s.advance(o, "owner-1", "")

	s.Require().NotNil(appended)
	s.Equal(1, appended.Turn)
	s.Equal("manual", appended.Reason)
	s.Equal([]string{"spark"}, appended.Variables)
	s.Equal("Alice", appended.Actor)
	s.Equal(2, o.Session().Turn)
}

func (s *OrchestratorTestSuite) TestTurnLogFailureStillResolves() {
	s.mockTurnLog = turnlogMocks.NewMockRepository(s.mockCtrl)
	s.mockTurnLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	o := s.started(s.config(s.alice, s.bob))
	out := s.advance(o, "owner-1", "Story\n\nnone\nnone")

	s.Equal(2, out.Turn)
	s.Len(s.sink.ofType(EventStatus), 1)
}

func (s *OrchestratorTestSuite) TestFatalNarratorErrorVoidsSession() {
	tests := []narrator.Kind{
		narrator.KindQuotaExhausted,
		narrator.KindMissingUserAPIKey,
		narrator.KindAPIError,
	}
	for _, kind := range tests {
		s.Run(string(kind), func() {
			s.sink = &recordingSink{}
			s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
				Return(nil, &narrator.Error{Kind: kind, Message: "nope"})

			o := s.started(s.config(s.alice, s.bob))
			out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual})
			s.Equal(kind, narrator.KindOf(err))
			s.Equal(models.SessionStateTerminated, out.State)

			session := o.Session()
			s.Equal(models.TerminationVoided, session.Termination)
			s.False(o.Busy())
			s.Len(s.sink.timeline(models.TimelineSessionVoided), 1)
			s.Len(s.sink.ofType(EventFinalized), 1)
			s.NotEmpty(s.sink.ofType(EventStatus))
		})
	}
}

func (s *OrchestratorTestSuite) TestNetworkErrorKeepsSessionActive() {
	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		Return(nil, &narrator.Error{Kind: narrator.KindNetwork, Message: "timeout"})

	o := s.started(s.config(s.alice, s.bob))
	out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual})
	s.Error(err)
	s.Equal(models.SessionStateActive, out.State)
	s.Equal(1, out.Turn)

	s.False(o.Busy())
	s.Equal(1, s.clock.Pending())
	s.Len(s.sink.ofType(EventStatus), 1)
	s.Empty(s.sink.ofType(EventFinalized))

	// The turn can be retried
	out = s.advance(o, "owner-1", "Story\n\nnone\nnone")
	s.Equal(2, out.Turn)
}

func (s *OrchestratorTestSuite) TestBusyRejectsOverlappingAdvance() {
	release := make(chan struct{})
	entered := make(chan struct{})
	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *narrator.Request) (*narrator.Response, error) {
			close(entered)
			<-release
			return &narrator.Response{Text: "Story\n\nnone\nnone"}, nil
		})

	o := s.started(s.config(s.alice, s.bob))

	done := make(chan error, 1)
	go func() {
		_, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual})
		done <- err
	}()
	<-entered

	s.True(o.Busy())
	s.Equal(models.SessionStateResolving, o.Session().State)

	out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual, OverrideResponse: "ignored"})
	s.ErrorIs(err, ErrBusy)
	s.False(out.Accepted)

	// Roster bookkeeping still goes through while the narrator runs
	_, err = o.Dispatch(s.ctx, ParticipationCommand{OwnerID: "owner-2"})
	s.NoError(err)

	close(release)
	s.NoError(<-done)

	s.Equal(2, o.Session().Turn)
	s.Len(s.sink.ofType(EventTurnResolved), 1)
}

func (s *OrchestratorTestSuite) TestAIAdvanceWaitsForConsensus() {
	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *narrator.Request) (*narrator.Response, error) {
			s.Contains(req.Prompt, "(consensus)")
			return &narrator.Response{Text: "Story\n\nnone\nnone"}, nil
		})

	o := s.started(s.config(s.alice, s.bob))

	out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonAI, OwnerID: "owner-1"})
	s.Require().NoError(err)
	s.True(out.Waiting)
	s.Equal(1, out.Turn)

	snap := o.ConsensusSnapshot()
	s.Equal(2, snap.Threshold)
	s.Equal([]string{"owner-1"}, snap.Consented)
	s.Len(s.sink.ofType(EventStatus), 1)

	// Consent from someone not on the roster doesn't count
	out, err = o.Dispatch(s.ctx, ConsentCommand{OwnerID: "stranger"})
	s.Require().NoError(err)
	s.True(out.Waiting)
	s.False(out.Accepted)

	out, err = o.Dispatch(s.ctx, ConsentCommand{OwnerID: "owner-2"})
	s.Require().NoError(err)
	s.False(out.Waiting)
	s.Equal(2, out.Turn)

	s.Len(s.sink.timeline(models.TimelineConsensusReached), 1)
	s.Empty(o.ConsensusSnapshot().Consented)
}

func (s *OrchestratorTestSuite) TestSingleOwnerSkipsConsensus() {
	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		Return(&narrator.Response{Text: "Story\n\nnone\nnone"}, nil)

	o := s.started(s.config(s.alice))
	out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonAI, OwnerID: "owner-1"})
	s.Require().NoError(err)
	s.False(out.Waiting)
	s.Equal(2, out.Turn)
}

func (s *OrchestratorTestSuite) TestMissedTurnsEscalateToProxy() {
	cfg := s.config(s.alice, s.bob)
	cfg.MissLimit = 2
	o := s.started(cfg)

	s.advance(o, "owner-1", "Story\n\nnone\nnone")
	warnings := s.sink.timeline(models.TimelineWarning)
	s.Require().Len(warnings, 1)
	s.Equal("owner-2", warnings[0].OwnerID)

	s.advance(o, "owner-1", "Story\n\nnone\nnone")
	escalated := s.sink.timeline(models.TimelineProxyEscalated)
	s.Require().Len(escalated, 1)
	s.Equal("owner-2", escalated[0].OwnerID)
	s.Equal("event-id", escalated[0].ID)

	session := o.Session()
	s.Equal(models.ParticipantStatusProxy, session.Participants[1].Status)
	s.Equal([]string{"owner-1"}, o.ConsensusSnapshot().Eligible)

	s.Equal(presence.StatusProxy, s.presenceOf(o, "owner-2").Status)

	// Taking the slot back clears the streak
	bob := *s.bob
	bob.Status = models.ParticipantStatusActive
	_, err := o.Dispatch(s.ctx, RosterCommand{Participants: []*models.Participant{s.alice, &bob}})
	s.Require().NoError(err)

	rec := s.presenceOf(o, "owner-2")
	s.Equal(presence.StatusActive, rec.Status)
	s.Zero(rec.Misses)
	s.Equal([]string{"owner-1", "owner-2"}, o.ConsensusSnapshot().Eligible)
}

func (s *OrchestratorTestSuite) presenceOf(o *Orchestrator, owner string) presence.Record {
	for _, rec := range o.PresenceSnapshot() {
		if rec.OwnerID == owner {
			return rec
		}
	}
	s.FailNow("no presence record", owner)
	return presence.Record{}
}

func (s *OrchestratorTestSuite) TestFollowerNeverResolvesOrWrites() {
	// No SaveSession or SaveOutcome expectations: any write fails the test
	s.mockSessionRepo = sessionMocks.NewMockRepository(s.mockCtrl)

	cfg := s.config(s.alice, s.bob)
	cfg.MissLimit = 1
	cfg.ObserveOnly = true
	cfg.Session.State = models.SessionStateActive
	cfg.Session.Turn = 3
	o := s.started(cfg)

	s.False(o.Managed())
	s.Equal(3, o.Session().Turn)
	s.False(o.TimerSnapshot().Running)
	s.Zero(s.clock.Pending())

	s.clock.Advance(time.Hour)
	s.Equal(3, o.Session().Turn)
	s.Empty(s.sink.timeline(models.TimelineTurnTimeout))

	_, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual, OwnerID: "owner-1", OverrideResponse: "Story\n\nnone\nnone"})
	s.ErrorIs(err, ErrSessionNotManaged)
	_, err = o.Dispatch(s.ctx, ConsentCommand{OwnerID: "owner-1"})
	s.ErrorIs(err, ErrSessionNotManaged)
	_, err = o.Dispatch(s.ctx, RosterCommand{Participants: []*models.Participant{s.alice}})
	s.ErrorIs(err, ErrSessionNotManaged)
	_, err = o.Dispatch(s.ctx, VoidCommand{Reason: "test"})
	s.ErrorIs(err, ErrSessionNotManaged)

	_, err = o.Dispatch(s.ctx, ParticipationCommand{OwnerID: "owner-2"})
	s.NoError(err)

	session := o.Session()
	s.Equal(models.SessionStateActive, session.State)
	s.Equal(3, session.Turn)
	s.Len(session.Participants, 2)
	s.Empty(s.sink.timeline(models.TimelineProxyEscalated))
	s.Empty(s.sink.ofType(EventTurnResolved))
}

func (s *OrchestratorTestSuite) TestTimeoutAdvancesTurn() {
	s.mockNarrator.EXPECT().Narrate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *narrator.Request) (*narrator.Response, error) {
			s.Contains(req.Prompt, "(timeout)")
			return &narrator.Response{Text: "Story\n\nnone\nnone"}, nil
		})

	o := s.started(s.config(s.alice, s.bob))

	s.clock.Advance(89 * time.Second)
	s.Equal(1, o.Session().Turn)

	s.clock.Advance(time.Second)

	timeouts := s.sink.timeline(models.TimelineTurnTimeout)
	s.Require().Len(timeouts, 1)
	s.Equal(1, timeouts[0].Turn)

	session := o.Session()
	s.Equal(2, session.Turn)
	s.Equal(models.SessionStateActive, session.State)
	s.Equal(60*time.Second, o.TimerSnapshot().Remaining)
}

func (s *OrchestratorTestSuite) TestDropInArrivalExtendsCountdown() {
	o := s.started(s.config(s.alice, s.bob))
	s.Empty(s.sink.timeline(models.TimelineDropInJoined))

	carol := &models.Participant{ID: "p-carol", SlotIndex: 2, HeroName: "Carol", OwnerID: "owner-3", Role: "C", Score: 1000}
	out, err := o.Dispatch(s.ctx, RosterCommand{Participants: []*models.Participant{s.alice, s.bob, carol}})
	s.Require().NoError(err)
	s.True(out.Accepted)

	joined := s.sink.timeline(models.TimelineDropInJoined)
	s.Require().Len(joined, 1)
	s.Equal("owner-3", joined[0].OwnerID)
	s.Equal("Carol", joined[0].Metadata["heroName"])
	s.Equal(true, joined[0].Metadata["bonusExtended"])
	s.Equal(110*time.Second, o.TimerSnapshot().Remaining)

	// A second arrival on the same turn gets no extra time
	dave := &models.Participant{ID: "p-dave", SlotIndex: 3, HeroName: "Dave", OwnerID: "owner-4", Role: "D", Score: 1000}
	_, err = o.Dispatch(s.ctx, RosterCommand{Participants: []*models.Participant{s.alice, s.bob, carol, dave}})
	s.Require().NoError(err)
	s.Equal(110*time.Second, o.TimerSnapshot().Remaining)

	_, err = o.Dispatch(s.ctx, RosterCommand{Participants: []*models.Participant{s.alice, s.bob, carol}})
	s.Require().NoError(err)
	s.Len(s.sink.timeline(models.TimelineDropInDeparted), 1)

	s.Equal(3, o.ConsensusSnapshot().Threshold)
	s.Len(o.DropInStats(), 4)
}

func (s *OrchestratorTestSuite) TestMissingEdgeEndsWithNoPath() {
	s.graph = s.parseGraph(deadEndGraph)
	o := s.started(s.config(s.alice, s.bob))

	out := s.advance(o, "owner-1", "Story\n\nnone\nnone")
	s.Equal(models.SessionStateTerminated, out.State)
	s.Equal(models.TerminationNoPath, o.Session().Termination)
	s.Len(s.sink.ofType(EventFinalized), 1)
}

func (s *OrchestratorTestSuite) TestTerminalEdgeEndsSession() {
	o := s.started(s.config(s.alice, s.bob))

	s.advance(o, "owner-1", "Story\n\nrout\nAlice lost")
	s.Equal(models.TerminationLose, o.Session().Termination)
}

func (s *OrchestratorTestSuite) TestEveryRoleDrawingEndsInDraw() {
	o := s.started(s.config(s.alice, s.bob))

	out := s.advance(o, "owner-1", "Story\n\nnone\nA 무승부, B 무승부")
	s.Equal(models.SessionStateTerminated, out.State)
	s.Equal(models.TerminationDraw, o.Session().Termination)

	finals := s.sink.ofType(EventFinalized)
	s.Require().Len(finals, 1)
	s.Equal(outcome.ResultDraw, finals[0].Outcome.OverallResult)
}

func (s *OrchestratorTestSuite) TestEvaluateFailureStaysOnNode() {
	mockEvaluator := scenarioMocks.NewMockRuleEvaluator(s.mockCtrl)
	mockEvaluator.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(nil, errors.New("broken rule"))

	cfg := s.config(s.alice, s.bob)
	cfg.Session.NodeID = "arena"
	cfg.Evaluator = mockEvaluator
	o := s.started(cfg)

	out := s.advance(o, "owner-1", "Story\n\nnone\nnone")
	s.Equal(models.SessionStateActive, out.State)
	s.Equal(2, out.Turn)
	s.Equal("arena", o.Session().NodeID)
	s.Len(s.sink.ofType(EventStatus), 1)
}

func (s *OrchestratorTestSuite) TestCompileFailureKeepsTurn() {
	mockCompiler := scenarioMocks.NewMockPromptCompiler(s.mockCtrl)
	mockCompiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad template"))

	cfg := s.config(s.alice, s.bob)
	cfg.Compiler = mockCompiler
	o := s.started(cfg)

	out, err := o.Dispatch(s.ctx, AdvanceCommand{Reason: ReasonManual})
	s.Error(err)
	s.Equal(1, out.Turn)
	s.Equal(models.SessionStateActive, out.State)
}

func (s *OrchestratorTestSuite) TestVoidFinalizesOnce() {
	o := s.started(s.config(s.alice, s.bob))

	out, err := o.Dispatch(s.ctx, VoidCommand{Reason: "host_left"})
	s.Require().NoError(err)
	s.Equal(models.SessionStateTerminated, out.State)

	voided := s.sink.timeline(models.TimelineSessionVoided)
	s.Require().Len(voided, 1)
	s.Equal("host_left", voided[0].Reason)
	s.Zero(s.clock.Pending())

	_, err = o.Dispatch(s.ctx, VoidCommand{})
	s.ErrorIs(err, ErrTerminated)
	s.Len(s.sink.ofType(EventFinalized), 1)
}

func (s *OrchestratorTestSuite) TestRestoredOutcomeResumes() {
	ledger, err := outcome.New([]*models.Participant{s.alice, s.bob}, &outcome.Config{})
	s.Require().NoError(err)
	ledger.Record(&outcome.RecordInput{Turn: 1, ResultLine: "A 승리"})

	cfg := s.config(s.alice, s.bob)
	cfg.Session.State = models.SessionStateActive
	cfg.Session.Turn = 2
	cfg.Outcome = ledger.Snapshot()
	o := s.started(cfg)

	s.Equal(2, o.Session().Turn)
	s.True(o.TimerSnapshot().Running)
	s.Equal(60*time.Second, o.TimerSnapshot().Remaining, "a resumed turn gets no first-turn bonus")

	s.advance(o, "owner-2", "Story\n\nnone\nB 패배")
	s.Equal(models.TerminationWin, o.Session().Termination)
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
