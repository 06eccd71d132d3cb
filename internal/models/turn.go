package models

import "time"

// TurnRecord is one row of a session's append-only turn log
type TurnRecord struct {
	// SessionID is the session the turn belongs to
	SessionID string

	// Turn is the turn number that was resolved
	Turn int

	// Reason is what triggered the advance
	Reason string

	// Prompt is the compiled prompt sent to the narrator
	Prompt string

	// Response is the narrator's full text
	Response string

	// StatusLine is the footer's final line
	StatusLine string

	// Variables are the footer's active variable tokens
	Variables []string

	// Actor is the footer's standout actor
	Actor string

	// CreatedAt is when the turn was logged
	CreatedAt time.Time
}
