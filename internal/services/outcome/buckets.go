package outcome

import (
	"math"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// roleBucket aggregates the active entries of one role. Buckets are derived
// and rebuilt from scratch on every ledger mutation.
type roleBucket struct {
	key          string
	name         string
	members      []*Entry
	scoreRange   ScoreRange
	resolved     bool
	result       Result
	averageScore float64
	biasRatio    float64
	winDelta     float64
	lossDelta    float64
}

func (b *roleBucket) summary() RoleSummary {
	rs := RoleSummary{
		Key:          b.key,
		Name:         b.name,
		Members:      make([]string, 0, len(b.members)),
		Resolved:     b.resolved,
		Result:       b.result,
		AverageScore: b.averageScore,
		BiasRatio:    b.biasRatio,
		WinDelta:     b.winDelta,
		LossDelta:    b.lossDelta,
		ScoreRange:   b.scoreRange,
	}
	for _, m := range b.members {
		rs.Members = append(rs.Members, m.Key)
		rs.Wins += m.Wins
		rs.Losses += m.Losses
	}
	return rs
}

// recomputeLocked rebuilds buckets, the score model and completion state
func (l *Ledger) recomputeLocked() {
	active := sortedEntries(l.entries)

	l.buckets = l.buckets[:0]
	index := make(map[string]*roleBucket)
	for _, e := range active {
		b, ok := index[e.RoleKey]
		if !ok {
			b = &roleBucket{
				key:        e.RoleKey,
				name:       e.Role,
				scoreRange: l.settings[e.RoleKey].normalized(),
			}
			index[e.RoleKey] = b
			l.buckets = append(l.buckets, b)
		}
		b.members = append(b.members, e)
	}

	l.applyScoreModelLocked(active)

	resolvedAll := len(l.buckets) > 0
	for _, b := range l.buckets {
		b.resolve()
		if !b.resolved {
			resolvedAll = false
		}
	}

	if resolvedAll && !l.completed {
		l.completed = true
		l.completedTurn = l.lastTurn
		l.logger.Info("ledger completed")
	}

	if l.completed {
		l.overall = l.overallLocked()
	} else {
		l.overall = ResultPending
	}
}

// resolve marks the bucket resolved once every member has a non-pending result
func (b *roleBucket) resolve() {
	b.resolved = len(b.members) > 0
	won, eliminated, drawn := false, 0, 0
	for _, m := range b.members {
		if !m.Result.IsTerminal() {
			b.resolved = false
		}
		switch m.Result {
		case ResultWon:
			won = true
		case ResultEliminated:
			eliminated++
		case ResultDraw:
			drawn++
		}
	}

	switch {
	case !b.resolved:
		b.result = ResultPending
	case won:
		b.result = ResultWon
	case eliminated == len(b.members):
		b.result = ResultEliminated
	case drawn == len(b.members):
		b.result = ResultDraw
	default:
		b.result = ResultLost
	}
}

// overallLocked folds resolved buckets into one session outcome. Eliminated
// buckets count as lost and drawn buckets count for neither side. When both
// sides exist the larger side decides; an even split still produced a
// winner, so it reads as won. A session where every bucket drew is a draw.
func (l *Ledger) overallLocked() Result {
	won, lost := 0, 0
	for _, b := range l.buckets {
		switch b.result {
		case ResultWon:
			won++
		case ResultLost, ResultEliminated:
			lost++
		}
	}

	switch {
	case won == 0 && lost == 0:
		return ResultDraw
	case lost == 0:
		return ResultWon
	case won == 0:
		return ResultLost
	case lost > won:
		return ResultLost
	default:
		return ResultWon
	}
}

// applyScoreModelLocked computes per-role deltas with the handicap principle:
// in each direction a role stronger than the session average moves by a
// smaller magnitude and a weaker role by a larger one. Magnitudes stay inside
// the role's configured range.
func (l *Ledger) applyScoreModelLocked(active []*Entry) {
	gameAverage := averageBase(active)

	var projectedSum float64
	for _, b := range l.buckets {
		b.averageScore = averageBase(b.members)
		b.biasRatio = biasRatio(b.averageScore, gameAverage)

		mid := (b.scoreRange.Min + b.scoreRange.Max) / 2
		half := (b.scoreRange.Max - b.scoreRange.Min) / 2
		b.winDelta = mid - b.biasRatio*half
		b.lossDelta = mid - b.biasRatio*half

		for _, m := range b.members {
			m.ScoreDelta = l.entryDelta(m, b.winDelta, b.lossDelta)
			m.ProjectedScore = m.BaseScore + m.ScoreDelta
			projectedSum += m.ProjectedScore
		}
	}

	for _, e := range l.entries {
		if !e.Active {
			e.ScoreDelta = 0
			e.ProjectedScore = e.BaseScore
		}
	}

	if len(active) > 0 {
		l.averageScore = projectedSum / float64(len(active))
	} else {
		l.averageScore = 0
	}
}

func (l *Ledger) entryDelta(e *Entry, winDelta, lossDelta float64) float64 {
	switch e.Result {
	case ResultWon:
		return winDelta * float64(e.Wins)
	case ResultLost:
		return -lossDelta * float64(e.Losses)
	case ResultEliminated:
		if l.mode == models.SessionModeBrawl {
			return brawlEliminationCredit*winDelta*float64(e.Wins) - lossDelta
		}
		return -lossDelta * float64(e.Losses)
	default:
		return 0
	}
}

func averageBase(entries []*Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.BaseScore
	}
	return sum / float64(len(entries))
}

// biasRatio is (roleAverage - gameAverage) / |gameAverage| clamped to [-1, 1]
func biasRatio(roleAverage, gameAverage float64) float64 {
	if gameAverage == 0 {
		return 0
	}
	r := (roleAverage - gameAverage) / math.Abs(gameAverage)
	return math.Max(-1, math.Min(1, r))
}
