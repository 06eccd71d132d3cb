package scenario

import (
	"context"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

// Action is what following an edge does to the session
type Action string

const (
	ActionContinue Action = "continue"
	ActionWin      Action = "win"
	ActionLose     Action = "lose"
	ActionDraw     Action = "draw"
)

// IsTerminal reports whether the action ends the session
func (a Action) IsTerminal() bool {
	return a == ActionWin || a == ActionLose || a == ActionDraw
}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	return a == ActionContinue || a.IsTerminal()
}

// Condition gates an edge. Empty fields match anything.
type Condition struct {
	// Status is the result the turn's footer declared
	Status outcome.Result `yaml:"status,omitempty"`

	// Overall is the ledger's overall result
	Overall outcome.Result `yaml:"overall,omitempty"`

	// Variable must be among the footer's active variables
	Variable string `yaml:"variable,omitempty"`

	// MinTurn is the first turn the edge can be taken on
	MinTurn int `yaml:"min_turn,omitempty"`

	// Completed matches the ledger's completed flag when set
	Completed *bool `yaml:"completed,omitempty"`
}

// Edge leads from one node to the next, or ends the session
type Edge struct {
	ID     string    `yaml:"id"`
	To     string    `yaml:"to,omitempty"`
	Action Action    `yaml:"action"`
	When   Condition `yaml:"when,omitempty"`
}

// CompileInput is the session state a turn's prompt is built from
type CompileInput struct {
	Session   *models.Session
	Reason    string
	Variables []string
	Actor     string
}

// CompileOutput is the text sent to the narrator
type CompileOutput struct {
	System string
	Prompt string
}

// EvaluateInput is what a resolved turn produced
type EvaluateInput struct {
	NodeID        string
	Turn          int
	Status        outcome.Result
	Variables     []string
	Actor         string
	Completed     bool
	OverallResult outcome.Result
}

// EvaluateOutput holds the edge to follow. A nil Edge means no path leads on.
type EvaluateOutput struct {
	Edge *Edge
}

//go:generate mockgen -package=mocks -destination=mocks/mock_scenario.go github.com/KirkDiggler/turnkeep/internal/services/scenario PromptCompiler,RuleEvaluator

// PromptCompiler builds the narrator prompt for the session's current node
type PromptCompiler interface {
	Compile(ctx context.Context, input *CompileInput) (*CompileOutput, error)
}

// RuleEvaluator picks the next edge once a turn is resolved
type RuleEvaluator interface {
	Evaluate(ctx context.Context, input *EvaluateInput) (*EvaluateOutput, error)
}
