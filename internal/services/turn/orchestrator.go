package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	"github.com/KirkDiggler/turnkeep/internal/common/uuid"
	"github.com/KirkDiggler/turnkeep/internal/models"
	sessionRepo "github.com/KirkDiggler/turnkeep/internal/repositories/session"
	"github.com/KirkDiggler/turnkeep/internal/repositories/turnlog"
	"github.com/KirkDiggler/turnkeep/internal/services/consensus"
	"github.com/KirkDiggler/turnkeep/internal/services/dropin"
	"github.com/KirkDiggler/turnkeep/internal/services/messaging"
	"github.com/KirkDiggler/turnkeep/internal/services/narrator"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
	"github.com/KirkDiggler/turnkeep/internal/services/presence"
	"github.com/KirkDiggler/turnkeep/internal/services/scenario"
	"github.com/KirkDiggler/turnkeep/internal/services/timer"
)

// DefaultHistoryTurns is how many logged turns go to the narrator as context
const DefaultHistoryTurns = 6

// TimerSettings configures the per-session turn timer
type TimerSettings struct {
	BaseSeconds           int
	FirstTurnBonusSeconds int
	DropInBonusSeconds    int
}

// Config holds configuration for an orchestrator
type Config struct {
	Session *models.Session

	// Collaborators
	Narrator  narrator.Narrator
	Compiler  scenario.PromptCompiler
	Evaluator scenario.RuleEvaluator
	Messages  messaging.Service
	Sink      EventSink

	// Repository dependencies
	SessionRepo sessionRepo.Repository
	TurnLog     turnlog.Repository

	RoleSettings map[string]outcome.ScoreRange
	Timer        TimerSettings
	MissLimit    int
	HistoryTurns int

	// Outcome restores the ledger of an adopted session
	Outcome *outcome.Snapshot

	// ObserveOnly makes the orchestrator a follower of a session another
	// observer claimed. It runs no countdown, never resolves a turn and never
	// writes the session store.
	ObserveOnly bool

	Clock  clock.Clock
	UUID   uuid.UUID
	Logger *zap.Logger
}

// Orchestrator runs one session's turn state machine. Only one advance can
// be in flight; roster, participation and void commands are still handled
// while the narrator is being called.
type Orchestrator struct {
	mu sync.Mutex

	session *models.Session

	narrator    narrator.Narrator
	compiler    scenario.PromptCompiler
	evaluator   scenario.RuleEvaluator
	messages    messaging.Service
	sink        EventSink
	sessionRepo sessionRepo.Repository
	turnLog     turnlog.Repository

	clock  clock.Clock
	uuid   uuid.UUID
	logger *zap.Logger

	roleSettings map[string]outcome.ScoreRange
	historyTurns int
	observeOnly  bool

	ledger    *outcome.Ledger
	queue     *dropin.Queue
	timer     *timer.Timer
	consensus *consensus.Controller
	presence  *presence.Tracker

	started   bool
	busy      bool
	finalized bool

	lastVariables []string
	lastActor     string
}

// resolveJob is the state a resolve works from once the lock is released
type resolveJob struct {
	turn     int
	reason   Reason
	override string
	session  *models.Session
	vars     []string
	actor    string
}

// batch collects what to persist and emit once the lock is released
type batch struct {
	events []TurnEvent
	save   *models.Session
	snap   *outcome.Snapshot
}

// New creates an orchestrator for a session
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Session == nil {
		return nil, ErrNilSession
	}
	if cfg.Narrator == nil || cfg.Compiler == nil || cfg.Evaluator == nil ||
		cfg.Messages == nil || cfg.Sink == nil || cfg.SessionRepo == nil || cfg.TurnLog == nil {
		return nil, ErrMissingDependency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cfg.Clock
	if c == nil {
		c = &clock.DefaultClock{}
	}
	ids := cfg.UUID
	if ids == nil {
		ids = uuid.New()
	}
	history := cfg.HistoryTurns
	if history == 0 {
		history = DefaultHistoryTurns
	}

	session := cloneSession(cfg.Session)
	if session.Mode == "" {
		session.Mode = models.SessionModeStandard
	}
	if session.State == "" {
		session.State = models.SessionStatePreflight
	}
	logger = logger.With(zap.String("session_id", session.ID))

	o := &Orchestrator{
		session:      session,
		narrator:     cfg.Narrator,
		compiler:     cfg.Compiler,
		evaluator:    cfg.Evaluator,
		messages:     cfg.Messages,
		sink:         cfg.Sink,
		sessionRepo:  cfg.SessionRepo,
		turnLog:      cfg.TurnLog,
		clock:        c,
		uuid:         ids,
		logger:       logger,
		roleSettings: cfg.RoleSettings,
		historyTurns: history,
		observeOnly:  cfg.ObserveOnly,
		queue:        dropin.New(&dropin.Config{Logger: logger}),
		consensus:    consensus.New(&consensus.Config{Logger: logger}),
		presence: presence.New(&presence.Config{
			SessionID: session.ID,
			MissLimit: cfg.MissLimit,
			Clock:     c,
			Logger:    logger,
		}),
	}

	t, err := timer.New(&timer.Config{
		BaseSeconds:           cfg.Timer.BaseSeconds,
		FirstTurnBonusSeconds: cfg.Timer.FirstTurnBonusSeconds,
		DropInBonusSeconds:    cfg.Timer.DropInBonusSeconds,
		Clock:                 c,
		OnExpire:              o.onTimeout,
		Logger:                logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timer: %w", err)
	}
	o.timer = t

	if cfg.Outcome != nil {
		ledger, err := outcome.Restore(cfg.Outcome, o.ledgerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to restore outcome: %w", err)
		}
		o.ledger = ledger
	}

	return o, nil
}

func (o *Orchestrator) ledgerConfig() *outcome.Config {
	return &outcome.Config{
		RoleSettings: o.roleSettings,
		Mode:         o.session.Mode,
		Logger:       o.logger,
	}
}

// SessionID returns the id of the orchestrated session
func (o *Orchestrator) SessionID() string {
	return o.session.ID
}

// Start validates the roster and opens the first turn. A session that is
// already active, for example one adopted from another observer, resumes on
// its current turn.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()

	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	if o.finalized || o.session.State.IsTerminal() {
		o.mu.Unlock()
		return ErrTerminated
	}

	valid := o.validParticipantsLocked(o.session.Participants)
	if len(valid) == 0 {
		ev := o.statusEvent(ctx, &messaging.GetStatusMessageInput{Kind: messaging.StatusRosterInvalid})
		o.mu.Unlock()
		o.sink.Emit(ctx, ev)
		return ErrNoParticipants
	}
	o.session.Participants = valid

	if o.ledger == nil {
		ledger, err := outcome.New(valid, o.ledgerConfig())
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("failed to create ledger: %w", err)
		}
		o.ledger = ledger
	} else {
		o.ledger.Sync(valid)
	}

	resumed := o.session.State == models.SessionStateActive || o.session.State == models.SessionStateResolving
	if o.session.Turn < 1 {
		o.session.Turn = 1
	}

	// The first queue sync is the silent baseline
	o.queue.Sync(valid, dropin.SyncOptions{TurnNumber: o.session.Turn, Mode: o.session.Mode})
	o.presence.SyncRoster(valid)
	o.consensus.SyncEligibleOwners(models.EligibleOwners(valid))

	o.session.State = models.SessionStateActive
	o.session.UpdatedAt = o.clock.Now()
	o.started = true
	o.beginTurnLocked()

	b := &batch{
		save:   o.sessionCopyLocked(),
		snap:   o.ledger.Snapshot(),
		events: []TurnEvent{o.stateEventLocked()},
	}
	o.mu.Unlock()

	o.logger.Info("session started",
		zap.Int("turn", b.save.Turn),
		zap.Int("participants", len(valid)),
		zap.Bool("resumed", resumed),
	)
	o.flush(ctx, b)
	return nil
}

// Dispatch handles a command
func (o *Orchestrator) Dispatch(ctx context.Context, cmd Command) (*DispatchOutput, error) {
	switch c := cmd.(type) {
	case AdvanceCommand:
		return o.advance(ctx, c)
	case ConsentCommand:
		return o.consent(ctx, c)
	case RosterCommand:
		return o.syncRoster(ctx, c)
	case ParticipationCommand:
		return o.participate(ctx, c)
	case VoidCommand:
		return o.void(ctx, c.Reason)
	default:
		return nil, ErrUnknownCommand
	}
}

func (o *Orchestrator) advance(ctx context.Context, cmd AdvanceCommand) (*DispatchOutput, error) {
	if !cmd.Reason.Valid() {
		return nil, ErrInvalidReason
	}

	o.mu.Lock()
	if err := o.checkManagedLocked(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if o.busy {
		out := o.outputLocked(false)
		o.mu.Unlock()
		return out, ErrBusy
	}

	b := &batch{}
	reason := cmd.Reason
	if cmd.OwnerID != "" {
		kind := presence.ParticipationAction
		if reason == ReasonAI {
			kind = presence.ParticipationConsent
		}
		o.presence.RecordParticipation(cmd.OwnerID, o.session.Turn, kind)
	}

	if reason == ReasonAI && o.consensus.NeedsConsensus() {
		res := o.consensus.RegisterConsent(cmd.OwnerID)
		if !res.Reached {
			out := o.outputLocked(res.Accepted)
			out.Waiting = true
			ev := o.statusEvent(ctx, &messaging.GetStatusMessageInput{
				Kind:      messaging.StatusAwaitingConsensus,
				Turn:      o.session.Turn,
				Count:     res.Count,
				Threshold: res.Threshold,
			})
			o.mu.Unlock()
			o.sink.Emit(ctx, ev)
			return out, nil
		}
		reason = ReasonConsensus
		b.events = append(b.events, o.timelineLocked(models.TimelineConsensusReached, "", string(ReasonAI), nil))
	}

	job := o.beginResolveLocked(b, reason, cmd.OverrideResponse)
	o.mu.Unlock()

	o.flush(ctx, b)
	return o.resolve(ctx, job)
}

func (o *Orchestrator) consent(ctx context.Context, cmd ConsentCommand) (*DispatchOutput, error) {
	o.mu.Lock()
	if err := o.checkManagedLocked(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if o.busy {
		out := o.outputLocked(false)
		o.mu.Unlock()
		return out, ErrBusy
	}

	o.presence.RecordParticipation(cmd.OwnerID, o.session.Turn, presence.ParticipationConsent)
	res := o.consensus.RegisterConsent(cmd.OwnerID)
	if !res.Reached {
		out := o.outputLocked(res.Accepted)
		out.Waiting = true
		ev := o.statusEvent(ctx, &messaging.GetStatusMessageInput{
			Kind:      messaging.StatusAwaitingConsensus,
			Turn:      o.session.Turn,
			Count:     res.Count,
			Threshold: res.Threshold,
		})
		o.mu.Unlock()
		o.sink.Emit(ctx, ev)
		return out, nil
	}

	b := &batch{
		events: []TurnEvent{o.timelineLocked(models.TimelineConsensusReached, cmd.OwnerID, string(ReasonConsensus), nil)},
	}
	job := o.beginResolveLocked(b, ReasonConsensus, "")
	o.mu.Unlock()

	o.flush(ctx, b)
	return o.resolve(ctx, job)
}

func (o *Orchestrator) beginResolveLocked(b *batch, reason Reason, override string) *resolveJob {
	o.busy = true
	o.timer.Cancel()
	o.session.State = models.SessionStateResolving
	b.events = append(b.events, o.stateEventLocked())

	o.logger.Info("resolving turn",
		zap.Int("turn", o.session.Turn),
		zap.String("reason", string(reason)),
		zap.Bool("override", override != ""),
	)

	return &resolveJob{
		turn:     o.session.Turn,
		reason:   reason,
		override: override,
		session:  o.sessionCopyLocked(),
		vars:     append([]string(nil), o.lastVariables...),
		actor:    o.lastActor,
	}
}

// resolve runs one turn outside the lock: compile the prompt, call the
// narrator, log the turn, then apply it
func (o *Orchestrator) resolve(ctx context.Context, job *resolveJob) (*DispatchOutput, error) {
	prompt, err := o.compiler.Compile(ctx, &scenario.CompileInput{
		Session:   job.session,
		Reason:    string(job.reason),
		Variables: job.vars,
		Actor:     job.actor,
	})
	if err != nil {
		return o.abortResolve(ctx, job, messaging.StatusPromptFailed, fmt.Errorf("failed to compile prompt: %w", err))
	}

	text := job.override
	if text == "" {
		resp, err := o.narrator.Narrate(ctx, &narrator.Request{
			System:  prompt.System,
			Prompt:  prompt.Prompt,
			History: o.history(ctx),
		})
		if err != nil {
			if narrator.IsFatal(err) {
				return o.voidAfterNarrator(ctx, job, err)
			}
			return o.abortResolve(ctx, job, messaging.StatusNarratorUnavailable, err)
		}
		text = resp.Text
	}

	footer := parseTurnFooter(text)

	// The narrator's answer is committed from here on
	logErr := o.turnLog.Append(ctx, &turnlog.AppendInput{Record: &models.TurnRecord{
		SessionID:  job.session.ID,
		Turn:       job.turn,
		Reason:     string(job.reason),
		Prompt:     prompt.Prompt,
		Response:   text,
		StatusLine: footer.StatusLine,
		Variables:  footer.Variables,
		Actor:      footer.Actor,
		CreatedAt:  o.clock.Now(),
	}})
	if logErr != nil {
		o.logger.Warn("failed to append turn log", zap.Int("turn", job.turn), zap.Error(logErr))
	}

	o.mu.Lock()
	if o.finalized {
		o.busy = false
		out := o.outputLocked(false)
		o.mu.Unlock()
		return out, ErrTerminated
	}

	var actors []string
	if footer.Actor != "" {
		actors = []string{footer.Actor}
	}
	rec := o.ledger.Record(&outcome.RecordInput{
		Turn:         job.turn,
		ResultLine:   footer.StatusLine,
		Variables:    footer.Variables,
		Actors:       actors,
		Participants: o.session.Participants,
	})
	snap := o.ledger.Snapshot()
	o.lastVariables = footer.Variables
	o.lastActor = footer.Actor

	b := &batch{}
	if logErr != nil {
		b.events = append(b.events, o.statusEvent(ctx, &messaging.GetStatusMessageInput{Kind: messaging.StatusStorageFailed, Turn: job.turn}))
	}
	b.events = append(b.events,
		TurnEvent{
			Type:      EventTurnResolved,
			SessionID: o.session.ID,
			ChannelID: o.session.ChannelID,
			Turn:      job.turn,
			State:     o.session.State,
			Narrative: footer.Narrative,
			Outcome:   snap,
		},
		o.timelineLocked(models.TimelineTurnResolved, "", string(job.reason), map[string]any{
			"status":      string(footer.Status.Status),
			"target":      footer.Status.Target,
			"variables":   footer.Variables,
			"actor":       footer.Actor,
			"assignments": len(rec.Assignments),
		}),
	)

	evalInput := &scenario.EvaluateInput{
		NodeID:        o.session.NodeID,
		Turn:          job.turn,
		Status:        footer.Status.Status,
		Variables:     footer.Variables,
		Actor:         footer.Actor,
		Completed:     snap.Completed,
		OverallResult: snap.OverallResult,
	}
	o.mu.Unlock()

	eval, evalErr := o.evaluator.Evaluate(ctx, evalInput)

	o.mu.Lock()
	if o.finalized {
		o.busy = false
		out := o.outputLocked(false)
		o.mu.Unlock()
		o.flush(ctx, b)
		return out, ErrTerminated
	}

	var edge *scenario.Edge
	if evalErr == nil && eval != nil {
		edge = eval.Edge
	}

	switch {
	case edge != nil && edge.Action.IsTerminal():
		o.finalizeLocked(ctx, b, terminationForAction(edge.Action), "edge:"+edge.ID)
	case snap.Completed:
		o.finalizeLocked(ctx, b, terminationForResult(snap.OverallResult), "outcome_completed")
	case evalErr != nil:
		o.logger.Warn("failed to evaluate next edge", zap.Int("turn", job.turn), zap.Error(evalErr))
		b.events = append(b.events, o.statusEvent(ctx, &messaging.GetStatusMessageInput{Kind: messaging.StatusRuleFailed, Turn: job.turn}))
		o.continueLocked(b, job, o.session.NodeID)
	case edge == nil:
		o.finalizeLocked(ctx, b, models.TerminationNoPath, "no_path")
	default:
		o.continueLocked(b, job, edge.To)
	}

	out := o.outputLocked(true)
	o.mu.Unlock()

	o.flush(ctx, b)
	return out, nil
}

// continueLocked closes the resolved turn and opens the next one
func (o *Orchestrator) continueLocked(b *batch, job *resolveJob, nextNode string) {
	res := o.presence.CompleteTurn(&presence.CompleteTurnInput{
		TurnNumber: job.turn,
		Reason:     string(job.reason),
	})
	for i := range res.Events {
		ev := res.Events[i]
		ev.ID = o.uuid.NewUUID()
		b.events = append(b.events, o.wrapTimelineLocked(&ev))
	}
	if len(res.Escalated) > 0 {
		o.escalateLocked(res.Escalated)
	}

	o.session.NodeID = nextNode
	o.session.Turn = job.turn + 1
	o.session.State = models.SessionStateActive
	o.session.UpdatedAt = o.clock.Now()
	o.busy = false
	o.beginTurnLocked()

	b.save = o.sessionCopyLocked()
	b.snap = o.ledger.Snapshot()
	b.events = append(b.events, o.stateEventLocked())
}

// escalateLocked hands every slot of the given owners to the AI proxy
func (o *Orchestrator) escalateLocked(owners []string) {
	escalated := make(map[string]bool, len(owners))
	for _, id := range owners {
		escalated[id] = true
	}

	for _, p := range o.session.Participants {
		if escalated[p.OwnerID] && p.CanAct() {
			p.Status = models.ParticipantStatusProxy
		}
	}

	o.ledger.Sync(o.session.Participants)
	o.presence.SyncRoster(o.session.Participants)
	o.consensus.SyncEligibleOwners(models.EligibleOwners(o.session.Participants))

	o.logger.Info("owners escalated to proxy", zap.Strings("owner_ids", owners))
}

func (o *Orchestrator) beginTurnLocked() {
	o.consensus.Clear()
	o.presence.BeginTurn(&presence.BeginTurnInput{
		TurnNumber:       o.session.Turn,
		EligibleOwnerIDs: models.EligibleOwners(o.session.Participants),
	})
	o.scheduleLocked()
}

// scheduleLocked starts the current turn's countdown. Followers run none, so
// only the claiming observer advances a turn on timeout.
func (o *Orchestrator) scheduleLocked() {
	if o.observeOnly {
		return
	}
	o.timer.Schedule(o.session.Turn)
}

// abortResolve puts the session back on the same turn after a failure that
// committed nothing
func (o *Orchestrator) abortResolve(ctx context.Context, job *resolveJob, kind messaging.StatusKind, cause error) (*DispatchOutput, error) {
	o.logger.Warn("turn not resolved",
		zap.Int("turn", job.turn),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)

	o.mu.Lock()
	o.busy = false
	b := &batch{}
	if !o.finalized {
		o.session.State = models.SessionStateActive
		o.scheduleLocked()
		b.events = append(b.events,
			o.stateEventLocked(),
			o.statusEvent(ctx, &messaging.GetStatusMessageInput{Kind: kind, Turn: job.turn}),
		)
	}
	out := o.outputLocked(false)
	o.mu.Unlock()

	o.flush(ctx, b)
	return out, cause
}

// voidAfterNarrator ends the session on a narrator failure that must not be
// retried
func (o *Orchestrator) voidAfterNarrator(ctx context.Context, job *resolveJob, cause error) (*DispatchOutput, error) {
	kind := narrator.KindOf(cause)
	o.logger.Error("narrator failure voids session",
		zap.Int("turn", job.turn),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)

	o.mu.Lock()
	b := &batch{}
	if !o.finalized {
		b.events = append(b.events, o.statusEvent(ctx, &messaging.GetStatusMessageInput{
			Kind: messaging.StatusKind(kind),
			Turn: job.turn,
		}))
		o.finalizeLocked(ctx, b, models.TerminationVoided, string(kind))
	}
	o.busy = false
	out := o.outputLocked(false)
	o.mu.Unlock()

	o.flush(ctx, b)
	return out, cause
}

func (o *Orchestrator) void(ctx context.Context, reason string) (*DispatchOutput, error) {
	o.mu.Lock()
	if o.finalized {
		o.mu.Unlock()
		return nil, ErrTerminated
	}
	if o.observeOnly {
		o.mu.Unlock()
		return nil, ErrSessionNotManaged
	}
	if reason == "" {
		reason = "voided"
	}

	b := &batch{}
	o.finalizeLocked(ctx, b, models.TerminationVoided, reason)
	out := o.outputLocked(true)
	o.mu.Unlock()

	o.flush(ctx, b)
	return out, nil
}

// finalizeLocked ends the session. Only the first call has any effect.
func (o *Orchestrator) finalizeLocked(ctx context.Context, b *batch, termination models.Termination, reason string) {
	if o.finalized {
		return
	}
	o.finalized = true
	o.busy = false

	o.timer.Cancel()
	o.consensus.Clear()

	o.session.State = models.SessionStateTerminated
	o.session.Termination = termination
	o.session.UpdatedAt = o.clock.Now()

	var snap *outcome.Snapshot
	if o.ledger != nil {
		snap = o.ledger.Snapshot()
	}

	evType := models.TimelineSessionFinalized
	if termination == models.TerminationVoided {
		evType = models.TimelineSessionVoided
	}

	final := TurnEvent{
		Type:        EventFinalized,
		SessionID:   o.session.ID,
		ChannelID:   o.session.ChannelID,
		Turn:        o.session.Turn,
		State:       o.session.State,
		Termination: termination,
		Outcome:     snap,
	}
	msg, err := o.messages.GetOutcomeMessage(ctx, &messaging.GetOutcomeMessageInput{
		Termination: termination,
		Snapshot:    snap,
	})
	if err == nil {
		final.Title = msg.Title
		final.Message = msg.Message
	}

	b.events = append(b.events,
		o.timelineLocked(evType, "", reason, map[string]any{"termination": string(termination)}),
		o.stateEventLocked(),
		final,
	)
	b.save = o.sessionCopyLocked()
	b.snap = snap

	o.logger.Info("session finalized",
		zap.String("termination", string(termination)),
		zap.String("reason", reason),
		zap.Int("turn", o.session.Turn),
	)
}

func (o *Orchestrator) syncRoster(ctx context.Context, cmd RosterCommand) (*DispatchOutput, error) {
	o.mu.Lock()
	if o.finalized {
		o.mu.Unlock()
		return nil, ErrTerminated
	}
	if o.observeOnly {
		o.mu.Unlock()
		return nil, ErrSessionNotManaged
	}

	if !o.started {
		o.session.Participants = models.CloneParticipants(cmd.Participants)
		out := o.outputLocked(true)
		o.mu.Unlock()
		return out, nil
	}

	valid := o.validParticipantsLocked(cmd.Participants)
	reclaimed := reclaimedOwners(o.session.Participants, valid)
	o.session.Participants = valid

	changed := o.ledger.Sync(valid)
	for _, owner := range reclaimed {
		o.presence.Reset(owner)
		o.logger.Info("owner reclaimed proxy slot", zap.String("owner_id", owner))
	}
	q := o.queue.Sync(valid, dropin.SyncOptions{TurnNumber: o.session.Turn, Mode: o.session.Mode})
	if o.presence.SyncRoster(valid) {
		changed = true
	}
	o.consensus.SyncEligibleOwners(models.EligibleOwners(valid))

	b := &batch{}
	for _, a := range q.Arrivals {
		meta := map[string]any{
			"key":      a.Key,
			"role":     a.Role,
			"heroName": a.Participant.HeroName,
		}
		if a.Replaced != nil {
			meta["replacedKey"] = a.Replaced.Key()
			meta["replacedHeroName"] = a.Replaced.HeroName
		}
		bonus := o.timer.RegisterDropInBonus(&timer.DropInBonusInput{
			Immediate:  o.session.State == models.SessionStateActive,
			TurnNumber: o.session.Turn,
		})
		if bonus.Granted {
			meta["bonusExtended"] = bonus.Extended
		}
		b.events = append(b.events, o.timelineLocked(models.TimelineDropInJoined, a.Participant.OwnerID, "", meta))
	}
	for _, d := range q.Departures {
		b.events = append(b.events, o.timelineLocked(models.TimelineDropInDeparted, d.Participant.OwnerID, string(d.Cause), map[string]any{
			"key":      d.Key,
			"role":     d.Role,
			"heroName": d.Participant.HeroName,
		}))
	}

	changed = changed || q.Changed
	if changed {
		o.session.UpdatedAt = o.clock.Now()
		b.save = o.sessionCopyLocked()
	}
	out := o.outputLocked(changed)
	o.mu.Unlock()

	o.flush(ctx, b)
	return out, nil
}

func (o *Orchestrator) participate(_ context.Context, cmd ParticipationCommand) (*DispatchOutput, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkOpenLocked(); err != nil {
		return nil, err
	}
	kind := cmd.Type
	if kind == "" {
		kind = presence.ParticipationMessage
	}
	o.presence.RecordParticipation(cmd.OwnerID, o.session.Turn, kind)
	return o.outputLocked(cmd.OwnerID != ""), nil
}

// onTimeout runs on the timer's goroutine when a turn deadline passes
func (o *Orchestrator) onTimeout(turn int) {
	ctx := context.Background()

	o.mu.Lock()
	if o.observeOnly || o.finalized || o.busy || o.session.Turn != turn || o.session.State != models.SessionStateActive {
		o.mu.Unlock()
		return
	}
	ev := o.timelineLocked(models.TimelineTurnTimeout, "", string(ReasonTimeout), nil)
	o.mu.Unlock()

	o.sink.Emit(ctx, ev)
	if _, err := o.advance(ctx, AdvanceCommand{Reason: ReasonTimeout}); err != nil && !errors.Is(err, ErrBusy) {
		o.logger.Warn("timeout advance failed", zap.Int("turn", turn), zap.Error(err))
	}
}

// Stop cancels the countdown without ending the session
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer.Cancel()
}

// Session returns a copy of the session
func (o *Orchestrator) Session() *models.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionCopyLocked()
}

// Outcome returns the ledger snapshot, nil before start
func (o *Orchestrator) Outcome() *outcome.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ledger == nil {
		return nil
	}
	return o.ledger.Snapshot()
}

// Managed reports whether this orchestrator holds the session's claim
func (o *Orchestrator) Managed() bool {
	return !o.observeOnly
}

// Busy reports whether an advance is in flight
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// TimerSnapshot returns the turn timer state
func (o *Orchestrator) TimerSnapshot() timer.Snapshot {
	return o.timer.Snapshot()
}

// ConsensusSnapshot returns the vote on the current turn
func (o *Orchestrator) ConsensusSnapshot() consensus.Snapshot {
	return o.consensus.Snapshot()
}

// PresenceSnapshot returns every owner's presence record
func (o *Orchestrator) PresenceSnapshot() []presence.Record {
	return o.presence.Snapshot()
}

// DropInStats returns the substitution stats per role
func (o *Orchestrator) DropInStats() []dropin.RoleStats {
	return o.queue.Stats()
}

func (o *Orchestrator) checkOpenLocked() error {
	if o.finalized {
		return ErrTerminated
	}
	if !o.started {
		return ErrNotStarted
	}
	return nil
}

// checkManagedLocked guards commands that change the stored session
func (o *Orchestrator) checkManagedLocked() error {
	if err := o.checkOpenLocked(); err != nil {
		return err
	}
	if o.observeOnly {
		return ErrSessionNotManaged
	}
	return nil
}

func (o *Orchestrator) validParticipantsLocked(in []*models.Participant) []*models.Participant {
	valid := make([]*models.Participant, 0, len(in))
	for _, p := range models.CloneParticipants(in) {
		if err := p.Validate(); err != nil {
			o.logger.Warn("dropping invalid participant", zap.Error(err))
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

func (o *Orchestrator) history(ctx context.Context) []narrator.Message {
	if o.historyTurns < 0 {
		return nil
	}
	out, err := o.turnLog.List(ctx, &turnlog.ListInput{SessionID: o.session.ID, Limit: o.historyTurns})
	if err != nil {
		o.logger.Warn("failed to load turn history", zap.Error(err))
		return nil
	}

	msgs := make([]narrator.Message, 0, 2*len(out.Records))
	for _, rec := range out.Records {
		msgs = append(msgs,
			narrator.Message{Role: narrator.RoleUser, Content: rec.Prompt},
			narrator.Message{Role: narrator.RoleAssistant, Content: rec.Response},
		)
	}
	return msgs
}

// flush persists and emits what a command produced, in that order. A
// follower persists nothing.
func (o *Orchestrator) flush(ctx context.Context, b *batch) {
	if o.observeOnly {
		b.save, b.snap = nil, nil
	}
	if b.save != nil {
		if err := o.sessionRepo.SaveSession(ctx, &sessionRepo.SaveSessionInput{Session: b.save}); err != nil {
			o.logger.Error("failed to save session", zap.Error(err))
			o.mu.Lock()
			ev := o.statusEvent(ctx, &messaging.GetStatusMessageInput{
				Kind: messaging.StatusStorageFailed,
				Turn: b.save.Turn,
			})
			o.mu.Unlock()
			b.events = append(b.events, ev)
		}
	}
	if b.snap != nil {
		if err := o.sessionRepo.SaveOutcome(ctx, &sessionRepo.SaveOutcomeInput{
			SessionID: o.session.ID,
			Snapshot:  b.snap,
		}); err != nil {
			o.logger.Error("failed to save outcome", zap.Error(err))
		}
	}
	for _, ev := range b.events {
		o.sink.Emit(ctx, ev)
	}
}

func (o *Orchestrator) statusEvent(ctx context.Context, input *messaging.GetStatusMessageInput) TurnEvent {
	ev := TurnEvent{
		Type:      EventStatus,
		SessionID: o.session.ID,
		ChannelID: o.session.ChannelID,
		Turn:      o.session.Turn,
		State:     o.session.State,
	}
	msg, err := o.messages.GetStatusMessage(ctx, input)
	if err != nil {
		ev.Message = string(input.Kind)
		return ev
	}
	ev.Title = msg.Title
	ev.Message = msg.Message
	return ev
}

func (o *Orchestrator) timelineLocked(typ models.TimelineEventType, ownerID, reason string, meta map[string]any) TurnEvent {
	return o.wrapTimelineLocked(&models.TimelineEvent{
		ID:        o.uuid.NewUUID(),
		SessionID: o.session.ID,
		Type:      typ,
		OwnerID:   ownerID,
		Turn:      o.session.Turn,
		Timestamp: o.clock.Now(),
		Reason:    reason,
		Context:   o.session.NodeID,
		Metadata:  meta,
	})
}

func (o *Orchestrator) wrapTimelineLocked(ev *models.TimelineEvent) TurnEvent {
	return TurnEvent{
		Type:      EventTimeline,
		SessionID: o.session.ID,
		ChannelID: o.session.ChannelID,
		Turn:      ev.Turn,
		State:     o.session.State,
		Timeline:  ev,
	}
}

func (o *Orchestrator) stateEventLocked() TurnEvent {
	return TurnEvent{
		Type:        EventStateChanged,
		SessionID:   o.session.ID,
		ChannelID:   o.session.ChannelID,
		Turn:        o.session.Turn,
		State:       o.session.State,
		Termination: o.session.Termination,
	}
}

func (o *Orchestrator) outputLocked(accepted bool) *DispatchOutput {
	return &DispatchOutput{
		Accepted: accepted,
		State:    o.session.State,
		Turn:     o.session.Turn,
	}
}

func (o *Orchestrator) sessionCopyLocked() *models.Session {
	return cloneSession(o.session)
}

func cloneSession(s *models.Session) *models.Session {
	cp := *s
	cp.Participants = models.CloneParticipants(s.Participants)
	return &cp
}

// reclaimedOwners returns owners that had a proxy slot before and can act on
// one of their slots now
func reclaimedOwners(before, after []*models.Participant) []string {
	proxied := make(map[string]bool)
	for _, p := range before {
		if p.IsProxy() && p.OwnerID != "" {
			proxied[p.OwnerID] = true
		}
	}

	var owners []string
	for _, id := range models.EligibleOwners(after) {
		if proxied[id] {
			owners = append(owners, id)
		}
	}
	return owners
}

func terminationForAction(a scenario.Action) models.Termination {
	switch a {
	case scenario.ActionWin:
		return models.TerminationWin
	case scenario.ActionLose:
		return models.TerminationLose
	default:
		return models.TerminationDraw
	}
}

func terminationForResult(r outcome.Result) models.Termination {
	switch r {
	case outcome.ResultWon:
		return models.TerminationWin
	case outcome.ResultLost:
		return models.TerminationLose
	default:
		return models.TerminationDraw
	}
}
