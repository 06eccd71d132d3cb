package scenario

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// Node is one scene of the scenario
type Node struct {
	Title  string `yaml:"title"`
	Prompt string `yaml:"prompt"`
	Edges  []Edge `yaml:"edges"`
}

// Graph is a scenario loaded from YAML. It compiles prompts from per-node
// templates and evaluates edges in declaration order, first match wins.
type Graph struct {
	Start  string           `yaml:"start"`
	System string           `yaml:"system"`
	Nodes  map[string]*Node `yaml:"nodes"`

	system  *template.Template
	prompts map[string]*template.Template
}

// promptData is what node templates render against
type promptData struct {
	Turn         int
	NodeID       string
	Title        string
	Mode         models.SessionMode
	Reason       string
	Actor        string
	Variables    []string
	Participants []*models.Participant
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// LoadFile reads a graph from a YAML file
func LoadFile(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML graph
func Parse(raw []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := g.compile(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Graph) compile() error {
	if g.Start == "" {
		return ErrMissingStart
	}
	if _, ok := g.Nodes[g.Start]; !ok {
		return fmt.Errorf("start %q: %w", g.Start, ErrUnknownNode)
	}

	sys, err := template.New("system").Funcs(templateFuncs).Parse(g.System)
	if err != nil {
		return fmt.Errorf("failed to parse system template: %w", err)
	}
	g.system = sys

	g.prompts = make(map[string]*template.Template, len(g.Nodes))
	for id, node := range g.Nodes {
		if node == nil {
			return fmt.Errorf("node %q is empty", id)
		}
		tmpl, err := template.New(id).Funcs(templateFuncs).Parse(node.Prompt)
		if err != nil {
			return fmt.Errorf("failed to parse prompt of node %q: %w", id, err)
		}
		g.prompts[id] = tmpl

		for i, edge := range node.Edges {
			if !edge.Action.Valid() {
				return fmt.Errorf("node %q edge %d %q: %w", id, i, edge.Action, ErrInvalidAction)
			}
			if edge.Action == ActionContinue {
				if _, ok := g.Nodes[edge.To]; !ok {
					return fmt.Errorf("node %q edge %d to %q: %w", id, i, edge.To, ErrUnknownNode)
				}
			}
		}
	}
	return nil
}

func (g *Graph) nodeID(id string) string {
	if id == "" {
		return g.Start
	}
	return id
}

// Compile renders the prompt of the session's current node
func (g *Graph) Compile(_ context.Context, input *CompileInput) (*CompileOutput, error) {
	if input == nil || input.Session == nil {
		return nil, ErrNilInput
	}

	id := g.nodeID(input.Session.NodeID)
	node, ok := g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", id, ErrUnknownNode)
	}

	data := promptData{
		Turn:         input.Session.Turn,
		NodeID:       id,
		Title:        node.Title,
		Mode:         input.Session.Mode,
		Reason:       input.Reason,
		Actor:        input.Actor,
		Variables:    input.Variables,
		Participants: input.Session.Participants,
	}

	var sys, prompt bytes.Buffer
	if err := g.system.Execute(&sys, data); err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	if err := g.prompts[id].Execute(&prompt, data); err != nil {
		return nil, fmt.Errorf("failed to render prompt of node %q: %w", id, err)
	}

	return &CompileOutput{
		System: strings.TrimSpace(sys.String()),
		Prompt: strings.TrimSpace(prompt.String()),
	}, nil
}

// Evaluate returns the first edge of the node whose condition matches
func (g *Graph) Evaluate(_ context.Context, input *EvaluateInput) (*EvaluateOutput, error) {
	if input == nil {
		return nil, ErrNilInput
	}

	id := g.nodeID(input.NodeID)
	node, ok := g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", id, ErrUnknownNode)
	}

	for _, edge := range node.Edges {
		if edge.When.matches(input) {
			e := edge
			return &EvaluateOutput{Edge: &e}, nil
		}
	}
	return &EvaluateOutput{}, nil
}

func (c Condition) matches(input *EvaluateInput) bool {
	if c.Status != "" && c.Status != input.Status {
		return false
	}
	if c.Overall != "" && c.Overall != input.OverallResult {
		return false
	}
	if c.Variable != "" && !slices.Contains(input.Variables, c.Variable) {
		return false
	}
	if c.MinTurn > 0 && input.Turn < c.MinTurn {
		return false
	}
	if c.Completed != nil && *c.Completed != input.Completed {
		return false
	}
	return true
}
