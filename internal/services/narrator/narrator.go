package narrator

import "context"

// Message is one prior exchange sent along with the prompt
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the text sent to the narrator for one turn
type Request struct {
	System  string
	Prompt  string
	History []Message
}

// Response is the narrator's free text. Its trailing lines carry the turn
// footer.
type Response struct {
	Text string
}

// Narrator resolves a turn. A call is not cancelled once dispatched and is
// never retried by callers.
//
//go:generate mockgen -package=mocks -destination=mocks/mock_narrator.go github.com/KirkDiggler/turnkeep/internal/services/narrator Narrator
type Narrator interface {
	Narrate(ctx context.Context, req *Request) (*Response, error)
}
