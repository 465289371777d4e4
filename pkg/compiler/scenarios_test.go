package compiler

import (
	"context"
	"testing"

	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

func TestMergeScenarios_HandwrittenAlwaysKept(t *testing.T) {
	handwritten := []TestScenario{
		{Description: "h1", Request: ScenarioRequest{ServerName: "fs", ToolName: "read_file", Arguments: map[string]any{"path": "/a"}}, ExpectedDecision: ExpectAllow},
	}
	generated := []TestScenario{
		{Description: "g1", Request: ScenarioRequest{ServerName: "fs", ToolName: "read_file", Arguments: map[string]any{"path": "/a"}}, ExpectedDecision: ExpectDeny},
		{Description: "g2", Request: ScenarioRequest{ServerName: "fs", ToolName: "read_file", Arguments: map[string]any{"path": "/b"}}, ExpectedDecision: ExpectAllow},
	}

	merged := mergeScenarios(handwritten, generated)

	if len(merged) != 2 {
		t.Fatalf("expected 2 scenarios after dedup, got %d: %+v", len(merged), merged)
	}
	if merged[0].Source != SourceHandwritten || merged[0].Description != "h1" {
		t.Errorf("expected handwritten scenario to win the duplicate slot, got %+v", merged[0])
	}
	if merged[1].Source != SourceGenerated || merged[1].Description != "g2" {
		t.Errorf("expected the non-duplicate generated scenario to survive, got %+v", merged[1])
	}
}

func TestMergeScenarios_EmptyInputs(t *testing.T) {
	merged := mergeScenarios(nil, nil)
	if len(merged) != 0 {
		t.Errorf("expected empty merge, got %+v", merged)
	}
}

func TestGenerateScenarios_ParsesAndTagsGenerated(t *testing.T) {
	client := &fakeChatCompleter{responses: []string{
		`{"scenarios": [{"description": "baseline allow", "request": {"serverName": "fs", "toolName": "read_file", "arguments": {"path": "/tmp"}}, "expectedDecision": "allow", "reasoning": "r"}]}`,
	}}
	compiled := &policy.CompiledPolicy{Rules: []policy.CompiledRule{}, ListDefinitions: map[string][]string{}}

	scenarios, err := generateScenarios(context.Background(), client, "test-model", compiled, nil)
	if err != nil {
		t.Fatalf("generateScenarios: %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(scenarios))
	}
	if scenarios[0].Source != SourceGenerated {
		t.Errorf("expected generated source tag, got %q", scenarios[0].Source)
	}
}

func TestExpectedDecision_Satisfies(t *testing.T) {
	cases := []struct {
		expected ExpectedDecision
		got      policy.Decision
		want     bool
	}{
		{ExpectAllow, policy.Allow, true},
		{ExpectAllow, policy.Deny, false},
		{ExpectDeny, policy.Deny, true},
		{ExpectNotAllow, policy.Deny, true},
		{ExpectNotAllow, policy.Escalate, true},
		{ExpectNotAllow, policy.Allow, false},
	}
	for _, c := range cases {
		if got := c.expected.Satisfies(c.got); got != c.want {
			t.Errorf("%s.Satisfies(%s) = %v, want %v", c.expected, c.got, got, c.want)
		}
	}
}
