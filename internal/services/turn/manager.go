package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/models"
	sessionRepo "github.com/KirkDiggler/turnkeep/internal/repositories/session"
)

// DefaultClaimTTL is how long an adoption claim lives without being renewed
const DefaultClaimTTL = 24 * time.Hour

// ManagerConfig holds configuration for a session manager
type ManagerConfig struct {
	// Template is copied for every orchestrator; Session, Outcome and
	// ObserveOnly are filled in per session
	Template Config

	// ObserverID identifies this process when claiming sessions
	ObserverID string

	ClaimTTL time.Duration
}

// Manager keeps one orchestrator per session id. Adoption is first writer
// wins both locally and across processes.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Orchestrator

	template    Config
	sessionRepo sessionRepo.Repository
	observerID  string
	claimTTL    time.Duration
	logger      *zap.Logger
}

// NewManager creates a session manager
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Template.SessionRepo == nil {
		return nil, ErrMissingDependency
	}
	if cfg.ObserverID == "" {
		return nil, errors.New("observer id is required")
	}

	logger := cfg.Template.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.ClaimTTL
	if ttl == 0 {
		ttl = DefaultClaimTTL
	}

	return &Manager{
		sessions:    make(map[string]*Orchestrator),
		template:    cfg.Template,
		sessionRepo: cfg.Template.SessionRepo,
		observerID:  cfg.ObserverID,
		claimTTL:    ttl,
		logger:      logger.With(zap.String("observer_id", cfg.ObserverID)),
	}, nil
}

// AdoptOutput contains the result of adopting a session
type AdoptOutput struct {
	Orchestrator *Orchestrator

	// Created is false when another caller adopted the session first
	Created bool

	// Managed is true when this observer holds the session's claim
	Managed bool
}

// Adopt returns the orchestrator for a session, creating it on first sight.
// Racing callers all get the first orchestrator. The session is not started.
func (m *Manager) Adopt(ctx context.Context, session *models.Session) (*AdoptOutput, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.sessions[session.ID]; ok {
		return &AdoptOutput{Orchestrator: o, Managed: !o.observeOnly}, nil
	}

	claim, err := m.sessionRepo.ClaimSession(ctx, &sessionRepo.ClaimSessionInput{
		SessionID:  session.ID,
		ObserverID: m.observerID,
		TTL:        m.claimTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}

	cfg := m.template
	cfg.Session = session
	cfg.ObserveOnly = !claim.Claimed
	cfg.Outcome = nil

	snap, err := m.sessionRepo.GetOutcome(ctx, &sessionRepo.GetOutcomeInput{SessionID: session.ID})
	switch {
	case err == nil:
		cfg.Outcome = snap
	case errors.Is(err, sessionRepo.ErrOutcomeNotFound):
	default:
		return nil, fmt.Errorf("failed to load outcome: %w", err)
	}

	o, err := New(&cfg)
	if err != nil {
		return nil, err
	}
	m.sessions[session.ID] = o

	m.logger.Info("session adopted",
		zap.String("session_id", session.ID),
		zap.Bool("managed", claim.Claimed),
		zap.String("claim_owner", claim.Owner),
		zap.Bool("restored", cfg.Outcome != nil),
	)

	return &AdoptOutput{Orchestrator: o, Created: true, Managed: claim.Claimed}, nil
}

// Create adopts a new session and starts it
func (m *Manager) Create(ctx context.Context, session *models.Session) (*Orchestrator, error) {
	out, err := m.Adopt(ctx, session)
	if err != nil {
		return nil, err
	}
	if !out.Created {
		return nil, ErrAlreadyStarted
	}
	if err := out.Orchestrator.Start(ctx); err != nil {
		m.Remove(session.ID)
		return nil, err
	}
	return out.Orchestrator, nil
}

// Get returns the orchestrator of a session
func (m *Manager) Get(sessionID string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[sessionID]
	return o, ok
}

// Remove stops and forgets a session's orchestrator
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	o, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		o.Stop()
	}
}

// SyncOutput contains the result of polling the session store
type SyncOutput struct {
	// Adopted are sessions this manager now runs
	Adopted []string

	// Observed are sessions followed read-only because another observer
	// holds the claim
	Observed []string

	// Removed are local sessions that terminated or left the store
	Removed []string
}

// Sync adopts every active session in the store this manager does not run
// yet, and forgets local sessions that have terminated. Managed sessions
// renew their claim. Followers are rebuilt from the stored row on every
// poll, so they track the claiming observer and take over once its claim
// lapses.
func (m *Manager) Sync(ctx context.Context) (*SyncOutput, error) {
	list, err := m.sessionRepo.ListActiveSessions(ctx, &sessionRepo.ListActiveSessionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	out := &SyncOutput{}
	stored := make(map[string]bool, len(list.Sessions))
	for _, s := range list.Sessions {
		stored[s.ID] = true
	}

	m.mu.Lock()
	var followers, managed []string
	for id, o := range m.sessions {
		switch {
		case o.Session().State.IsTerminal():
			out.Removed = append(out.Removed, id)
		case o.observeOnly:
			followers = append(followers, id)
			if !stored[id] {
				out.Removed = append(out.Removed, id)
			}
		default:
			managed = append(managed, id)
		}
	}
	m.mu.Unlock()
	for _, id := range followers {
		m.Remove(id)
	}
	for _, id := range out.Removed {
		m.Remove(id)
	}

	for _, id := range managed {
		claim, err := m.sessionRepo.ClaimSession(ctx, &sessionRepo.ClaimSessionInput{
			SessionID:  id,
			ObserverID: m.observerID,
			TTL:        m.claimTTL,
		})
		if err != nil {
			m.logger.Warn("failed to renew session claim", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if !claim.Claimed {
			// Another observer took over; follow it from here on
			m.logger.Warn("session claim lost",
				zap.String("session_id", id),
				zap.String("claim_owner", claim.Owner))
			m.Remove(id)
		}
	}

	for _, s := range list.Sessions {
		// Sessions still assembling a roster belong to whoever is assembling them
		if s.State != models.SessionStateActive && s.State != models.SessionStateResolving {
			continue
		}
		adopted, err := m.Adopt(ctx, s)
		if err != nil {
			m.logger.Warn("failed to adopt session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		if !adopted.Created {
			continue
		}
		if err := adopted.Orchestrator.Start(ctx); err != nil {
			m.logger.Warn("failed to resume session", zap.String("session_id", s.ID), zap.Error(err))
			m.Remove(s.ID)
			continue
		}
		if adopted.Managed {
			out.Adopted = append(out.Adopted, s.ID)
		} else {
			out.Observed = append(out.Observed, s.ID)
		}
	}

	return out, nil
}

// Count returns the number of local sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
