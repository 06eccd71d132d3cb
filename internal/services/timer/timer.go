package timer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
)

// Timer is a single cancellable countdown for one session. Every schedule or
// extension bumps a generation counter so a callback from a replaced
// countdown is dropped when it fires.
type Timer struct {
	mu       sync.Mutex
	clock    clock.Clock
	onExpire func(turn int)
	logger   *zap.Logger

	base           time.Duration
	firstTurnBonus time.Duration
	dropInBonus    time.Duration

	firstTurnBonusUsed bool
	dropInPending      bool
	dropInTurns        map[int]bool

	handle     clock.Timer
	deadline   time.Time
	turn       int
	generation int

	lastScheduledTurn int
	lastAppliedTurn   int
}

// New creates a timer. Zero seconds fall back to the defaults.
func New(cfg *Config) (*Timer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.OnExpire == nil {
		return nil, ErrNilOnExpire
	}
	if cfg.BaseSeconds < 0 || cfg.FirstTurnBonusSeconds < 0 || cfg.DropInBonusSeconds < 0 {
		return nil, ErrInvalidSeconds
	}

	base := cfg.BaseSeconds
	if base == 0 {
		base = DefaultBaseSeconds
	}
	first := cfg.FirstTurnBonusSeconds
	if first == 0 {
		first = DefaultFirstTurnBonusSeconds
	}
	dropIn := cfg.DropInBonusSeconds
	if dropIn == 0 {
		dropIn = DefaultDropInBonusSeconds
	}

	c := cfg.Clock
	if c == nil {
		c = &clock.DefaultClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Timer{
		clock:          c,
		onExpire:       cfg.OnExpire,
		logger:         logger,
		base:           seconds(base),
		firstTurnBonus: seconds(first),
		dropInBonus:    seconds(dropIn),
		dropInTurns:    make(map[int]bool),
	}, nil
}

// NextTurnDuration returns the deadline the given turn would get if it were
// scheduled now. It does not consume any bonus.
func (t *Timer) NextTurnDuration(turn int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextDurationLocked(turn)
}

// nextDurationLocked adds the first-turn bonus only to turn 1 itself, so a
// session resumed mid-game gets the base duration
func (t *Timer) nextDurationLocked(turn int) time.Duration {
	d := t.base
	if !t.firstTurnBonusUsed && turn <= 1 {
		d += t.firstTurnBonus
	}
	if t.dropInPending {
		d += t.dropInBonus
	}
	return d
}

// Schedule starts the countdown for a turn, replacing any running one. The
// first-turn bonus and a queued drop-in bonus are consumed here; the
// first-turn bonus is forfeited when the first scheduled turn is not turn 1.
func (t *Timer) Schedule(turn int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.nextDurationLocked(turn)
	t.firstTurnBonusUsed = true
	if t.dropInPending {
		t.dropInPending = false
		t.lastAppliedTurn = turn
	}

	t.startLocked(turn, d)
	t.lastScheduledTurn = turn

	t.logger.Debug("turn timer scheduled",
		zap.Int("turn", turn),
		zap.Duration("duration", d),
	)
	return d
}

// Cancel stops the running countdown. It reports whether one was running.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return false
	}
	t.stopLocked()
	return true
}

// RegisterDropInBonus grants the drop-in bonus at most once per turn. An
// immediate bonus extends the running deadline; otherwise, or when nothing
// is running, it is folded into the next scheduled turn.
func (t *Timer) RegisterDropInBonus(input *DropInBonusInput) *DropInBonusOutput {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := &DropInBonusOutput{Remaining: t.remainingLocked()}
	if input == nil || t.dropInTurns[input.TurnNumber] {
		return out
	}

	if input.Immediate && t.handle != nil {
		t.startLocked(t.turn, t.remainingLocked()+t.dropInBonus)
		t.lastAppliedTurn = input.TurnNumber
		out.Extended = true
	} else {
		if t.dropInPending {
			return out
		}
		t.dropInPending = true
	}

	t.dropInTurns[input.TurnNumber] = true
	out.Granted = true
	out.Remaining = t.remainingLocked()

	t.logger.Info("drop-in bonus granted",
		zap.Int("turn", input.TurnNumber),
		zap.Bool("extended", out.Extended),
		zap.Duration("remaining", out.Remaining),
	)
	return out
}

// Remaining returns the time left on the running countdown, zero when idle
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

// Snapshot returns the current timer state
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		BaseSeconds:             int(t.base / time.Second),
		FirstTurnBonusAvailable: !t.firstTurnBonusUsed,
		DropInBonusPending:      t.dropInPending,
		LastScheduledTurn:       t.lastScheduledTurn,
		LastAppliedTurn:         t.lastAppliedTurn,
		Running:                 t.handle != nil,
		Remaining:               t.remainingLocked(),
	}
	if t.handle != nil {
		snap.Deadline = t.deadline
	}
	return snap
}

func (t *Timer) remainingLocked() time.Duration {
	if t.handle == nil {
		return 0
	}
	left := t.deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (t *Timer) startLocked(turn int, d time.Duration) {
	t.stopLocked()

	t.generation++
	gen := t.generation
	t.turn = turn
	t.deadline = t.clock.Now().Add(d)
	t.handle = t.clock.AfterFunc(d, func() {
		t.fire(gen)
	})
}

func (t *Timer) stopLocked() {
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
	t.generation++
}

func (t *Timer) fire(gen int) {
	t.mu.Lock()
	if gen != t.generation || t.handle == nil {
		t.mu.Unlock()
		return
	}
	turn := t.turn
	t.handle = nil
	t.generation++
	t.mu.Unlock()

	t.logger.Info("turn timer expired", zap.Int("turn", turn))
	t.onExpire(turn)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
