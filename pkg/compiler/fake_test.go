package compiler

import (
	"context"
	"fmt"

	"github.com/ironcurtain/ironcurtain/pkg/model"
)

// fakeChatCompleter returns the next response off a queue, one per call,
// so tests can script a multi-turn exchange deterministically.
type fakeChatCompleter struct {
	responses []string
	calls     []model.ChatRequest
	err       error
}

func (f *fakeChatCompleter) ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("fakeChatCompleter: no scripted response for call %d", len(f.calls))
	}
	text := f.responses[0]
	f.responses = f.responses[1:]
	return &model.ChatResponse{
		Choices: []model.Choice{
			{Message: model.Message{Role: "assistant", Content: text}},
		},
	}, nil
}
