package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

const scenariosSystemPrompt = `You generate test scenarios for a tool-call policy. Given a compiled rule
chain and the tools it governs, produce a representative set of
(serverName, toolName, arguments) calls covering: every rule's positive
case, every rule's boundary (an argument just outside a "within" path or
"allowed" domain/list), and at least one call that matches nothing so the
default-escalate path is exercised. Respond with a single JSON object, no
prose:

{"scenarios": [{"description": "...", "request": {"serverName": "...", "toolName": "...", "arguments": {}}, "expectedDecision": "allow|deny|escalate|not-allow", "reasoning": "..."}]}`

type scenariosResponse struct {
	Scenarios []TestScenario `json:"scenarios"`
}

// generateScenarios asks the model for a scenario set covering a compiled
// policy's rule chain, tags each as generated, and merges in the
// caller-supplied handwritten scenarios (which always take precedence:
// spec §4.F requires handwritten scenarios be present in every compiled
// run, never silently dropped by deduplication against a generated one).
func generateScenarios(ctx context.Context, client ChatCompleter, modelID string, compiled *policy.CompiledPolicy, handwritten []TestScenario) ([]TestScenario, error) {
	rulesJSON, err := json.MarshalIndent(compiled.Rules, "", "  ")
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeVerifyFailed, "marshal compiled rules for scenario generation")
	}

	raw, err := complete(ctx, client, modelID, scenariosSystemPrompt, "Compiled rules:\n"+string(rulesJSON))
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeLLMCallFailed, "generate scenarios")
	}

	var parsed scenariosResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeVerifyFailed, "parse generated scenarios")
	}

	return mergeScenarios(handwritten, parsed.Scenarios), nil
}

// mergeScenarios combines handwritten and generated scenarios, keeping
// every handwritten scenario unconditionally and discarding any generated
// scenario that duplicates one already present (by scenarioKey).
func mergeScenarios(handwritten, generated []TestScenario) []TestScenario {
	seen := make(map[string]bool, len(handwritten)+len(generated))
	out := make([]TestScenario, 0, len(handwritten)+len(generated))

	for _, s := range handwritten {
		s.Source = SourceHandwritten
		key := s.scenarioKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, s := range generated {
		s.Source = SourceGenerated
		key := s.scenarioKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}

	return out
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return string(data)
}
