package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

// runScenarios constructs a real policy.Engine from compiled and evaluates
// every scenario against it, returning the scenarios whose actual decision
// didn't satisfy their ExpectedDecision. This is the heart of the verify
// stage: scenarios are checked against the same Engine the mediator will
// load at runtime, not a simulation of it.
func runScenarios(compiled *policy.CompiledPolicy, annotations []policy.ToolAnnotation, protectedPaths []string, sandboxDir string, trustedDomains []string, scenarios []TestScenario) ([]Mismatch, error) {
	engine, err := policy.NewEngine(compiled, annotations, protectedPaths, sandboxDir, trustedDomains, nil)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeVerifyFailed, "construct engine for verification")
	}

	var mismatches []Mismatch
	for _, sc := range scenarios {
		got := engine.Evaluate(policy.ToolCallRequest{
			RequestID:  "compiler-verify",
			ServerName: sc.Request.ServerName,
			ToolName:   sc.Request.ToolName,
			Arguments:  sc.Request.Arguments,
			Timestamp:  time.Now(),
		})
		if sc.ExpectedDecision.Satisfies(got.Status) {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Scenario:  sc,
			Got:       got.Status,
			GotRule:   got.Rule,
			GotReason: got.Reason,
		})
	}
	return mismatches, nil
}

const judgeSystemPrompt = `You are the judge in a policy-compiler verify/repair loop. You are shown a
test scenario whose expected decision didn't match what the compiled
policy actually produced. Decide one of:

- "correct": the compiled policy is wrong; describe the fix the compiler
  should make to its rule chain in "correction" (plain language, specific
  enough to act on).
- "discard": the scenario itself is wrong or unreasonable (e.g. its
  expectation contradicts the constitution); it should be dropped.
- "probe": you are not confident either way; explain what additional
  information would resolve it in "note".

Respond with a single JSON object, no prose:
{"action": "correct|discard|probe", "correction": "...", "note": "..."}`

// judgeMismatch asks the model to adjudicate one verify-stage mismatch,
// used to decide whether a failing scenario represents a real policy bug
// (feed "correction" back into the next compile turn) or a bad scenario
// (drop it) rather than looping forever on an unreasonable expectation.
func judgeMismatch(ctx context.Context, client ChatCompleter, modelID string, m Mismatch) (JudgeVerdict, error) {
	user := fmt.Sprintf(
		"Scenario: %s\nRequest: %s\nExpected: %s\nReasoning given: %s\nActual decision: %s (rule %q, reason %q)",
		m.Scenario.Description,
		mustMarshal(m.Scenario.Request),
		m.Scenario.ExpectedDecision,
		m.Scenario.Reasoning,
		m.Got, m.GotRule, m.GotReason,
	)

	raw, err := complete(ctx, client, modelID, judgeSystemPrompt, user)
	if err != nil {
		return JudgeVerdict{}, ironerr.Wrap(err, ironerr.ErrCodeLLMCallFailed, "judge mismatch")
	}

	var verdict JudgeVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &verdict); err != nil {
		return JudgeVerdict{}, ironerr.Wrap(err, ironerr.ErrCodeVerifyFailed, "parse judge verdict")
	}
	verdict.Mismatch = m
	return verdict, nil
}

// repairTurn renders a batch of judge verdicts into the next user turn
// sent to the compiler session, asking it to produce a corrected, complete
// rule chain (never a partial diff — see Session.Send).
func repairTurn(verdicts []JudgeVerdict) string {
	out := "The previous rule chain failed verification. Apply these corrections and respond with the complete corrected JSON object (same shape as before):\n"
	for _, v := range verdicts {
		if v.Action != "correct" {
			continue
		}
		out += fmt.Sprintf("- %s.%s (%s): %s\n",
			v.Mismatch.Scenario.Request.ServerName,
			v.Mismatch.Scenario.Request.ToolName,
			v.Mismatch.Scenario.Description,
			v.Correction,
		)
	}
	return out
}
