package consensus

import (
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// QuorumRatio is the share of eligible owners that must consent
const QuorumRatio = 0.8

// Config holds configuration for a consensus controller
type Config struct {
	Logger *zap.Logger
}

// Snapshot is a read-only view of the vote for the current turn
type Snapshot struct {
	Eligible       []string `json:"eligible"`
	Consented      []string `json:"consented"`
	Threshold      int      `json:"threshold"`
	NeedsConsensus bool     `json:"needsConsensus"`
	Reached        bool     `json:"reached"`
}

// RegisterConsentOutput reports the vote after a consent
type RegisterConsentOutput struct {
	// Accepted is false when the owner is not eligible or already consented
	Accepted bool

	Count     int
	Threshold int
	Reached   bool
}

// Controller gates AI-resolved turns on a quorum of eligible owners
type Controller struct {
	mu     sync.Mutex
	logger *zap.Logger

	eligible  map[string]bool
	consented map[string]bool
	threshold int
}

// New creates a controller with no eligible owners
func New(cfg *Config) *Controller {
	logger := zap.NewNop()
	if cfg != nil && cfg.Logger != nil {
		logger = cfg.Logger
	}
	return &Controller{
		logger:    logger,
		eligible:  make(map[string]bool),
		consented: make(map[string]bool),
		threshold: 1,
	}
}

// Threshold returns max(1, ceil(0.8 * n))
func Threshold(n int) int {
	t := int(math.Ceil(QuorumRatio * float64(n)))
	if t < 1 {
		return 1
	}
	return t
}

// SyncEligibleOwners replaces the eligible set. Consents from owners that
// are no longer eligible are dropped.
func (c *Controller) SyncEligibleOwners(ownerIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	eligible := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			eligible[id] = true
		}
	}
	for id := range c.consented {
		if !eligible[id] {
			delete(c.consented, id)
		}
	}

	c.eligible = eligible
	c.threshold = Threshold(len(eligible))
}

// RegisterConsent records an owner's opt-in. Repeat consents are no-ops.
func (c *Controller) RegisterConsent(ownerID string) *RegisterConsentOutput {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := &RegisterConsentOutput{Threshold: c.threshold}
	if c.eligible[ownerID] && !c.consented[ownerID] {
		c.consented[ownerID] = true
		out.Accepted = true

		c.logger.Debug("consent registered",
			zap.String("owner_id", ownerID),
			zap.Int("count", len(c.consented)),
			zap.Int("threshold", c.threshold),
		)
	}

	out.Count = len(c.consented)
	out.Reached = c.reachedLocked()
	return out
}

// Clear drops every consent, keeping the eligible set
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consented = make(map[string]bool)
}

// Threshold returns the current quorum size
func (c *Controller) Threshold() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// NeedsConsensus reports whether more than one owner is eligible
func (c *Controller) NeedsConsensus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.eligible) > 1
}

// Reached reports whether enough owners have consented
func (c *Controller) Reached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reachedLocked()
}

func (c *Controller) reachedLocked() bool {
	return len(c.eligible) > 0 && len(c.consented) >= c.threshold
}

// Snapshot returns the vote state with sorted owner ids
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Eligible:       sortedKeys(c.eligible),
		Consented:      sortedKeys(c.consented),
		Threshold:      c.threshold,
		NeedsConsensus: len(c.eligible) > 1,
		Reached:        c.reachedLocked(),
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
