package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds width, case and spacing so names compare equal the way
// people read them: "Ａｌｉｃｅ", "alice" and " ALICE " are the same hero.
// Role names are bucketed with it too.
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
