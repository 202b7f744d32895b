package conversation

import (
	"context"
	"fmt"
	"strings"

	"care-call-scheduler/internal/calls"
)

// Generator produces the assistant side of a live call and the summary
// stored once the call completes.
type Generator interface {
	// Continue returns the next assistant utterance. An empty utterance
	// asks for the opening line.
	Continue(ctx context.Context, history []calls.TranscriptTurn, utterance string) (string, error)
	Summarize(ctx context.Context, transcript []calls.TranscriptTurn) (string, error)
}

// ScriptedGenerator walks a fixed list of check-in prompts. It is the
// default when no model backend is configured.
type ScriptedGenerator struct {
	Greeting string
	Prompts  []string
	Closing  string
}

func DefaultScript() ScriptedGenerator {
	return ScriptedGenerator{
		Greeting: "Hello! This is your scheduled check-in call. How are you feeling today?",
		Prompts: []string{
			"Thank you for sharing. Have you taken your medicines today?",
			"Good to know. Is there anything you need help with?",
			"Is there anything else you would like to tell me?",
		},
		Closing: "Thank you for your time. Take care, goodbye!",
	}
}

var farewells = []string{"bye", "goodbye", "that's all", "nothing else", "no thanks"}

func (g ScriptedGenerator) Continue(ctx context.Context, history []calls.TranscriptTurn, utterance string) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		return g.Greeting, nil
	}
	lower := strings.ToLower(utterance)
	for _, f := range farewells {
		if strings.Contains(lower, f) {
			return g.Closing, nil
		}
	}

	answered := 0
	for _, t := range history {
		if t.Role == calls.RoleUser {
			answered++
		}
	}
	if answered >= len(g.Prompts) {
		return g.Closing, nil
	}
	return g.Prompts[answered], nil
}

func (g ScriptedGenerator) Summarize(ctx context.Context, transcript []calls.TranscriptTurn) (string, error) {
	var replies []string
	for _, t := range transcript {
		if t.Role == calls.RoleUser && strings.TrimSpace(t.Text) != "" {
			replies = append(replies, strings.TrimSpace(t.Text))
		}
	}
	if len(replies) == 0 {
		return "Call connected but the recipient did not respond.", nil
	}
	return fmt.Sprintf("Recipient answered %d prompt(s). Responses: %s", len(replies), strings.Join(replies, " | ")), nil
}
