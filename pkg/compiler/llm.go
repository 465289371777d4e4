package compiler

import (
	"context"

	"github.com/ironcurtain/ironcurtain/pkg/model"
)

// ChatCompleter is the subset of *model.Client every pipeline stage needs.
// Declaring it as an interface (rather than depending on *model.Client
// directly) lets tests substitute a hand-written fake (fakeChatCompleter
// in fake_test.go) instead of spinning up a real HTTP client, mirroring
// pkg/escalation's ChatCompleter.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

// firstChoiceText extracts the text content of a chat response's first
// choice, or "" if the response has none.
func firstChoiceText(resp *model.ChatResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	text, _ := resp.Choices[0].Message.Content.(string)
	return text
}

// complete is a small convenience wrapper every stage uses to run a single
// system+user turn through a ChatCompleter and get back raw text.
func complete(ctx context.Context, client ChatCompleter, modelID, system, user string) (string, error) {
	resp, err := client.ChatCompletion(ctx, model.ChatRequest{
		Model: modelID,
		Messages: []model.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return firstChoiceText(resp), nil
}
