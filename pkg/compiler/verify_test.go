package compiler

import (
	"context"
	"testing"

	"github.com/ironcurtain/ironcurtain/pkg/policy"
	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

func TestRunScenarios_NoMismatchesWhenExpectationsHold(t *testing.T) {
	compiled := &policy.CompiledPolicy{
		Rules: []policy.CompiledRule{
			{
				Name: "allow-scratch-writes",
				If: policy.Condition{
					Server: []string{"filesystem"}, Tool: []string{"write_file"},
					Paths: &policy.PathCondition{Roles: []roles.Role{roles.WritePath}, Within: []string{"/tmp/scratch"}},
				},
				Then:   policy.Allow,
				Reason: "scratch writes are fine",
			},
		},
		ListDefinitions: map[string][]string{},
	}
	annotations := []policy.ToolAnnotation{
		{ServerName: "filesystem", ToolName: "write_file", SideEffects: true, Args: map[string]roles.Role{"path": roles.WritePath}},
	}
	scenarios := []TestScenario{
		{
			Description:      "scratch write allowed",
			Request:          ScenarioRequest{ServerName: "filesystem", ToolName: "write_file", Arguments: map[string]any{"path": "/tmp/scratch/file.txt"}},
			ExpectedDecision: ExpectAllow,
		},
	}

	mismatches, err := runScenarios(compiled, annotations, nil, "/tmp/scratch", nil, scenarios)
	if err != nil {
		t.Fatalf("runScenarios: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("expected no mismatches, got %+v", mismatches)
	}
}

func TestRunScenarios_ReportsMismatch(t *testing.T) {
	compiled := &policy.CompiledPolicy{Rules: []policy.CompiledRule{}, ListDefinitions: map[string][]string{}}
	annotations := []policy.ToolAnnotation{
		{ServerName: "filesystem", ToolName: "write_file", SideEffects: true, Args: map[string]roles.Role{"path": roles.WritePath}},
	}
	scenarios := []TestScenario{
		{
			Description:      "expects allow but nothing matches",
			Request:          ScenarioRequest{ServerName: "filesystem", ToolName: "write_file", Arguments: map[string]any{"path": "/tmp/scratch/file.txt"}},
			ExpectedDecision: ExpectAllow,
		},
	}

	mismatches, err := runScenarios(compiled, annotations, nil, "/tmp/sandbox", nil, scenarios)
	if err != nil {
		t.Fatalf("runScenarios: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(mismatches))
	}
	if mismatches[0].Got != policy.Escalate {
		t.Errorf("expected default-escalate on no match, got %s", mismatches[0].Got)
	}
}

func TestJudgeMismatch_ParsesVerdict(t *testing.T) {
	client := &fakeChatCompleter{responses: []string{
		`{"action": "correct", "correction": "add an allow rule for scratch writes", "note": "n"}`,
	}}
	m := Mismatch{
		Scenario: TestScenario{Description: "d", Request: ScenarioRequest{ServerName: "fs", ToolName: "write_file"}, ExpectedDecision: ExpectAllow},
		Got:      policy.Escalate,
	}

	verdict, err := judgeMismatch(context.Background(), client, "test-model", m)
	if err != nil {
		t.Fatalf("judgeMismatch: %v", err)
	}
	if verdict.Action != "correct" {
		t.Errorf("expected action correct, got %q", verdict.Action)
	}
	if verdict.Mismatch.Scenario.Description != "d" {
		t.Errorf("expected mismatch to be attached to verdict, got %+v", verdict.Mismatch)
	}
}

func TestRepairTurn_OnlyIncludesCorrections(t *testing.T) {
	verdicts := []JudgeVerdict{
		{Action: "correct", Correction: "do X", Mismatch: Mismatch{Scenario: TestScenario{Description: "s1", Request: ScenarioRequest{ServerName: "fs", ToolName: "t1"}}}},
		{Action: "discard", Mismatch: Mismatch{Scenario: TestScenario{Description: "s2", Request: ScenarioRequest{ServerName: "fs", ToolName: "t2"}}}},
	}

	turn := repairTurn(verdicts)
	if !contains(turn, "do X") {
		t.Errorf("expected repair turn to mention correction, got: %s", turn)
	}
	if contains(turn, "s2") {
		t.Errorf("expected repair turn to omit discarded scenario, got: %s", turn)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
