package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/model"
)

// UserContext captures the user's recent task instruction, read from
// user-context.json in the rendezvous directory. Whatever owns the agent's
// conversation loop is responsible for keeping this file current; the
// auto-approver only reads it.
type UserContext struct {
	RecentInstruction string `json:"recentInstruction"`
}

// ChatCompleter is the subset of *model.Client the auto-approver needs.
// Declaring it as an interface (rather than taking *model.Client directly)
// lets tests substitute a stub without spinning up a real HTTP client.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

// AutoApprover judges whether an escalated tool call is within the spirit
// of what the user asked for. It may only upgrade escalate->allow; it is
// never consulted for, and can never produce, a denial of something a human
// already denied.
type AutoApprover struct {
	client         ChatCompleter
	modelID        string
	rendezvousDir  string
	trustedPattern []string
}

// NewAutoApprover builds an approver using modelID against client. Pass the
// same rendezvous directory the Rendezvous uses so it can find
// user-context.json.
func NewAutoApprover(client ChatCompleter, modelID, rendezvousDir string, trustedPatterns []string) *AutoApprover {
	return &AutoApprover{client: client, modelID: modelID, rendezvousDir: rendezvousDir, trustedPattern: trustedPatterns}
}

// Judgment is the structured verdict an auto-approver reaches.
type Judgment struct {
	Approved  bool   `json:"approved"`
	Reasoning string `json:"reasoning"`
}

// Judge asks the configured model whether the escalation matches the
// user's stated recent intent. A judgment of approved=false simply means
// "fall through to the human rendezvous" — it is not itself a denial.
func (a *AutoApprover) Judge(ctx context.Context, serverName, toolName string, arguments map[string]any, reason string) (Judgment, error) {
	if a == nil || a.client == nil {
		return Judgment{Approved: false}, nil
	}

	for _, pattern := range a.trustedPattern {
		if matchesTrustedPattern(pattern, serverName, toolName) {
			return Judgment{Approved: true, Reasoning: fmt.Sprintf("matches trusted pattern %q", pattern)}, nil
		}
	}

	userCtx := a.readUserContext()

	argsJSON, _ := json.Marshal(arguments)
	prompt := fmt.Sprintf(
		"A sandboxed coding agent wants to call %s.%s with arguments %s.\n"+
			"The policy engine escalated this call for human review because: %s\n"+
			"The user's most recent instruction to the agent was: %q\n\n"+
			"Judge ONLY whether this specific call is within the spirit of what the user asked for. "+
			"Respond with a JSON object: {\"approved\": bool, \"reasoning\": string}.",
		serverName, toolName, string(argsJSON), reason, userCtx.RecentInstruction,
	)

	resp, err := a.client.ChatCompletion(ctx, model.ChatRequest{
		Model: a.modelID,
		Messages: []model.Message{
			{Role: "system", Content: "You approve or defer escalated tool calls for a sandboxed coding agent. You can never deny a call outright, only decline to auto-approve it, in which case a human reviews it."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return Judgment{Approved: false}, ironerr.Wrap(err, ironerr.ErrCodeLLMCallFailed, "auto-approve judgment call")
	}
	if len(resp.Choices) == 0 {
		return Judgment{Approved: false}, nil
	}

	content, _ := resp.Choices[0].Message.Content.(string)
	return parseJudgment(content), nil
}

func parseJudgment(content string) Judgment {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return Judgment{Approved: false, Reasoning: "could not parse auto-approver response"}
	}
	var j Judgment
	if err := json.Unmarshal([]byte(content[start:end+1]), &j); err != nil {
		return Judgment{Approved: false, Reasoning: "could not parse auto-approver response"}
	}
	return j
}

func (a *AutoApprover) readUserContext() UserContext {
	data, err := os.ReadFile(filepath.Join(a.rendezvousDir, "user-context.json"))
	if err != nil {
		return UserContext{}
	}
	var uc UserContext
	_ = json.Unmarshal(data, &uc)
	return uc
}

// matchesTrustedPattern reports whether "server.tool" matches a glob
// pattern from config, e.g. "filesystem.*" or "*.read_file".
func matchesTrustedPattern(pattern, serverName, toolName string) bool {
	full := serverName + "." + toolName
	matched, err := filepath.Match(pattern, full)
	return err == nil && matched
}
