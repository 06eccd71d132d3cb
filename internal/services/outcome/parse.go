package outcome

import (
	"strings"
)

// segment is one "subject status" pair found in a result line
type segment struct {
	subject []string
	status  Result
}

// segmentLine walks each clause token by token. Words before a status token
// are its subject; words after the last status only attach to it when it had
// none ("승리: 앨리스"). Lines without any status word yield nothing.
func segmentLine(line string) []segment {
	var segs []segment
	for _, clause := range splitClauses(line) {
		var (
			subject    []string
			clauseSegs []segment
		)
		for _, tok := range tokenize(clause) {
			status, ok := MatchStatus(tok)
			if !ok {
				subject = append(subject, tok)
				continue
			}
			clauseSegs = append(clauseSegs, segment{subject: subject, status: status})
			subject = nil
		}
		if n := len(clauseSegs); n > 0 && len(subject) > 0 && len(clauseSegs[n-1].subject) == 0 {
			clauseSegs[n-1].subject = subject
		}
		segs = append(segs, clauseSegs...)
	}
	return segs
}

// parseAssignmentsLocked turns a result line into (entry, status) pairs
func (l *Ledger) parseAssignmentsLocked(line string, actors []string) []Assignment {
	if line == "" {
		return nil
	}

	var out []Assignment
	seen := make(map[string]bool)
	for _, seg := range segmentLine(line) {
		for _, e := range l.resolveSubjectLocked(seg.subject, actors) {
			id := e.Key + "|" + string(seg.status)
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, Assignment{Key: e.Key, HeroName: e.HeroName, Status: seg.status})
		}
	}
	return out
}

// resolveSubjectLocked finds the entries a subject names. The whole phrase is
// tried first, then single words with and without a trailing particle. When
// nothing or more than one target matches, the single standout actor is used
// if there is exactly one.
func (l *Ledger) resolveSubjectLocked(subject []string, actors []string) []*Entry {
	if len(subject) == 0 {
		return l.fallbackActorLocked(actors)
	}

	if t := l.targetsForNameLocked(strings.Join(subject, " ")); len(t) > 0 {
		return t
	}

	var (
		found [][]*Entry
		sigs  = make(map[string]bool)
	)
	for _, tok := range subject {
		t := l.targetsForNameLocked(tok)
		if len(t) == 0 {
			if stripped, ok := stripParticle(tok); ok {
				t = l.targetsForNameLocked(stripped)
			}
		}
		if len(t) == 0 {
			continue
		}
		sig := signature(t)
		if !sigs[sig] {
			sigs[sig] = true
			found = append(found, t)
		}
	}

	if len(found) == 1 {
		return found[0]
	}
	return l.fallbackActorLocked(actors)
}

// targetsForNameLocked matches a hero name first, then a role name
func (l *Ledger) targetsForNameLocked(name string) []*Entry {
	name = normalizeName(name)
	if name == "" {
		return nil
	}

	for _, e := range l.entries {
		if e.Active && normalizeName(e.HeroName) == name {
			return []*Entry{e}
		}
	}

	var members []*Entry
	for _, e := range l.entries {
		if e.Active && e.RoleKey == name {
			members = append(members, e)
		}
	}
	return members
}

func (l *Ledger) fallbackActorLocked(actors []string) []*Entry {
	var match *Entry
	for _, a := range actors {
		name := normalizeName(a)
		if name == "" {
			continue
		}
		for _, e := range l.entries {
			if !e.Active || normalizeName(e.HeroName) != name {
				continue
			}
			if match != nil && match != e {
				return nil
			}
			match = e
		}
	}
	if match == nil {
		return nil
	}
	return []*Entry{match}
}

func signature(entries []*Entry) string {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return strings.Join(keys, ",")
}
