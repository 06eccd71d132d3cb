package outcome

import (
	"strings"
	"unicode"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

func normalizeName(s string) string {
	return models.NormalizeName(s)
}

// tokenize splits a result line into normalized words, dropping punctuation
func tokenize(s string) []string {
	s = normalizeName(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}
		switch r {
		case '_', '\'':
			return false
		}
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return fields
}

// clauseSeparators split one result line into independent declarations
const clauseSeparators = ",;/|·、\n"

func splitClauses(line string) []string {
	parts := strings.FieldsFunc(line, func(r rune) bool {
		return strings.ContainsRune(clauseSeparators, r)
	})
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// subjectParticles are trailing Korean particles that may stick to a name
var subjectParticles = []string{"팀이", "팀은", "팀의", "팀", "측", "이", "가", "은", "는", "의"}

func stripParticle(token string) (string, bool) {
	for _, p := range subjectParticles {
		if strings.HasSuffix(token, p) && len(token) > len(p) {
			return strings.TrimSuffix(token, p), true
		}
	}
	return token, false
}
