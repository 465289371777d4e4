package compiler

import (
	"context"

	"github.com/ironcurtain/ironcurtain/pkg/model"
)

// Session is the stateful, conversation-preserving LLM session the
// constitution compiler uses for its verify-repair loop (spec §4.F,
// "The stateful compiler session"). The system prompt (constitution, all
// annotations, the rule schema) is fixed at construction and re-sent on
// every turn so prompt caching stays effective at the LLM API; turns are
// append-only, never rewritten, mirroring the explicit conversation-history
// list the spec calls for rather than hidden state on the model object.
type Session struct {
	client  ChatCompleter
	modelID string
	system  string
	turns   []model.Message
}

// NewSession starts a compiler session with a fixed system prompt.
func NewSession(client ChatCompleter, modelID, systemPrompt string) *Session {
	return &Session{client: client, modelID: modelID, system: systemPrompt}
}

// Turns returns a copy of the conversation history appended so far
// (excluding the system prompt), for logging or inspection.
func (s *Session) Turns() []model.Message {
	out := make([]model.Message, len(s.turns))
	copy(out, s.turns)
	return out
}

// Send appends a user turn, calls the model with the full system prompt
// plus history, appends the assistant's reply, and returns its text. The
// caller is responsible for parsing structured content (rules, scenarios)
// out of the returned text — output is always a complete corrected
// artifact, never a partial diff, since the engine's first-match-wins
// semantics make a missing rule change behavior.
func (s *Session) Send(ctx context.Context, userTurn string) (string, error) {
	messages := make([]model.Message, 0, len(s.turns)+2)
	messages = append(messages, model.Message{Role: "system", Content: s.system})
	messages = append(messages, s.turns...)
	messages = append(messages, model.Message{Role: "user", Content: userTurn})

	resp, err := s.client.ChatCompletion(ctx, model.ChatRequest{
		Model:       s.modelID,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	reply := firstChoiceText(resp)

	s.turns = append(s.turns, model.Message{Role: "user", Content: userTurn})
	s.turns = append(s.turns, model.Message{Role: "assistant", Content: reply})

	return reply, nil
}
