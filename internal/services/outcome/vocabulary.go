package outcome

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// vocabulary maps a status to the words narrators use for it
var vocabulary = map[Result][]string{
	ResultWon: {
		"승리", "승", "이김", "이겼다", "우승", "생존",
		"win", "wins", "won", "winner", "winners", "victory", "victorious",
	},
	ResultLost: {
		"패배", "패", "짐", "졌다", "실패",
		"lose", "loses", "lost", "loss", "defeat", "defeated",
	},
	ResultEliminated: {
		"탈락", "사망", "전멸", "퇴장",
		"eliminated", "eliminate", "elimination", "dead", "died", "killed", "out",
	},
	ResultDraw: {
		"무승부", "비김", "비겼다",
		"draw", "drawn", "tie", "tied", "stalemate",
	},
}

// statusOrder fixes lookup order so overlapping prefixes resolve the same way
var statusOrder = []Result{ResultDraw, ResultEliminated, ResultLost, ResultWon}

// MatchStatus reports the status a single normalized token declares.
//
// Latin words must match exactly. Hangul words of two or more syllables also
// match as a prefix so conjugated forms like "승리했다" are recognized.
func MatchStatus(token string) (Result, bool) {
	token = normalizeName(token)
	if token == "" {
		return "", false
	}
	for _, status := range statusOrder {
		for _, word := range vocabulary[status] {
			if token == word {
				return status, true
			}
		}
	}
	for _, status := range statusOrder {
		for _, word := range vocabulary[status] {
			if utf8.RuneCountInString(word) < 2 || !isHangul(word) {
				continue
			}
			if strings.HasPrefix(token, word) {
				return status, true
			}
		}
	}
	return "", false
}

func isHangul(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return true
}
