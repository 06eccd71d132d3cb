package turn

import (
	"regexp"
	"strings"

	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

// footerReservedLines sit between the narrative and the actor line
const footerReservedLines = 5

const maxActorLength = 64

var variableToken = regexp.MustCompile(`^[\p{L}\p{N}_:.\-]+$`)

// FooterStatus is the tagged result of reading the status line. When
// Recognized is false the other fields are empty.
type FooterStatus struct {
	Recognized bool
	Status     outcome.Result
	Target     string
}

// Footer is the structured tail of a narrator response
type Footer struct {
	// Narrative is the text above the footer
	Narrative string

	Actor     string
	Variables []string

	// StatusLine is the raw last line, empty unless it declares a status
	StatusLine string

	Status FooterStatus
}

// parseTurnFooter reads the footer from the end of the text: the last line
// declares a status or "none", the line above lists variable tokens or
// "none", the line above that names a standout actor or is blank. Anything
// it cannot read degrades to an empty field.
func parseTurnFooter(text string) Footer {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var f Footer
	n := len(lines)
	if n == 0 {
		return f
	}

	last := lines[n-1]
	if !isNone(last) {
		if status := parseStatusLine(last); status.Recognized {
			f.StatusLine = last
			f.Status = status
		}
	}
	if n >= 2 {
		f.Variables = parseVariables(lines[n-2])
	}

	// Without a status, a "none" marker or variables there is no footer and
	// the whole text is narrative
	found := f.Status.Recognized || isNoneMarker(last) || f.Variables != nil ||
		(n >= 2 && isNoneMarker(lines[n-2]))
	if !found {
		f.Narrative = strings.Join(lines, "\n")
		return f
	}

	if n >= 3 {
		f.Actor = parseActor(lines[n-3])
	}

	// The narrative ends where the reserved block above the actor line
	// starts; blank reserved lines are dropped with it.
	end := n - 3
	if end < 0 {
		end = 0
	}
	body := lines[:end]
	for i := 0; i < footerReservedLines && len(body) > 0 && body[len(body)-1] == ""; i++ {
		body = body[:len(body)-1]
	}
	f.Narrative = strings.Join(body, "\n")

	return f
}

func isNone(line string) bool {
	return line == "" || isNoneMarker(line)
}

func isNoneMarker(line string) bool {
	return strings.EqualFold(strings.Trim(line, " .-*_`"), "none")
}

func parseStatusLine(line string) FooterStatus {
	fields := strings.Fields(line)
	for i, field := range fields {
		status, ok := outcome.MatchStatus(strings.Trim(field, ".,!?:;()[]\"'`*"))
		if !ok {
			continue
		}
		rest := make([]string, 0, len(fields)-1)
		rest = append(rest, fields[:i]...)
		rest = append(rest, fields[i+1:]...)
		return FooterStatus{
			Recognized: true,
			Status:     status,
			Target:     strings.Trim(strings.Join(rest, " "), ".,!?:;-"),
		}
	}
	return FooterStatus{}
}

func parseVariables(line string) []string {
	if isNone(line) {
		return nil
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	vars := make([]string, 0, len(fields))
	for _, field := range fields {
		if !variableToken.MatchString(field) {
			return nil
		}
		vars = append(vars, field)
	}
	if len(vars) == 0 {
		return nil
	}
	return vars
}

func parseActor(line string) string {
	if isNone(line) || len([]rune(line)) > maxActorLength {
		return ""
	}
	if strings.ContainsAny(line, ".!?。") {
		return ""
	}
	return line
}
