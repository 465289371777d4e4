// Package compiler implements the offline compilation pipeline (spec
// §4.F): discover tool schemas, annotate argument roles, compile the
// constitution into a declarative rule set, generate test scenarios, and
// verify the compiled policy against them with LLM-assisted repair. Every
// stage is content-hash cached so re-running the pipeline on unchanged
// inputs is a no-op.
package compiler

import (
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

// DiscoveredTool is one tool schema as reported by a connected MCP server.
type DiscoveredTool struct {
	ServerName  string         `json:"serverName"`
	ToolName    string         `json:"toolName"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ServerAnnotations is one server's entry in the Tool Annotations File: its
// own input hash (schema + prompt) and the annotations produced for it, so
// a schema change in one server doesn't invalidate every other server's
// cached annotations.
type ServerAnnotations struct {
	InputHash string                `json:"inputHash"`
	Tools     []policy.ToolAnnotation `json:"tools"`
}

// ToolAnnotationsFile is the on-disk artifact the annotator produces and
// the mediator loads at startup (spec §6).
type ToolAnnotationsFile struct {
	GeneratedAt time.Time                    `json:"generatedAt"`
	Servers     map[string]ServerAnnotations `json:"servers"`
}

// ScenarioSource records whether a TestScenario was authored by hand (and
// must always be present) or generated by the LLM scenario stage.
type ScenarioSource string

const (
	SourceHandwritten ScenarioSource = "handwritten"
	SourceGenerated   ScenarioSource = "generated"
)

// ExpectedDecision extends policy.Decision with "not-allow", a scenario
// assertion meaning "anything but allow" — useful when a scenario's
// author cares that a call isn't auto-approved but is agnostic between
// deny and escalate.
type ExpectedDecision string

const (
	ExpectAllow    ExpectedDecision = "allow"
	ExpectDeny     ExpectedDecision = "deny"
	ExpectEscalate ExpectedDecision = "escalate"
	ExpectNotAllow ExpectedDecision = "not-allow"
)

// Satisfies reports whether a policy decision matches this expectation.
func (e ExpectedDecision) Satisfies(got policy.Decision) bool {
	switch e {
	case ExpectNotAllow:
		return got != policy.Allow
	default:
		return string(got) == string(e)
	}
}

// ScenarioRequest is the literal tool call a TestScenario exercises.
type ScenarioRequest struct {
	ServerName string         `json:"serverName"`
	ToolName   string         `json:"toolName"`
	Arguments  map[string]any `json:"arguments"`
}

// TestScenario is one entry in the Test Scenario artifact (spec §3/§6).
type TestScenario struct {
	Description      string           `json:"description"`
	Request          ScenarioRequest  `json:"request"`
	ExpectedDecision ExpectedDecision `json:"expectedDecision"`
	Reasoning        string           `json:"reasoning"`
	Source           ScenarioSource   `json:"source"`
}

// scenarioKey identifies a scenario for deduplication: same tool, same
// argument shape. Two scenarios with the same key are considered
// duplicates even if their description text differs.
func (s TestScenario) scenarioKey() string {
	return s.Request.ServerName + "." + s.Request.ToolName + "#" + hashArguments(s.Request.Arguments)
}

// Mismatch is one scenario whose expected decision didn't match what the
// freshly constructed engine actually returned.
type Mismatch struct {
	Scenario TestScenario    `json:"scenario"`
	Got      policy.Decision `json:"got"`
	GotRule  string          `json:"gotRule"`
	GotReason string         `json:"gotReason"`
}

// JudgeVerdict is the judge LLM's structured feedback for one mismatch.
type JudgeVerdict struct {
	Mismatch   Mismatch `json:"-"`
	Action     string   `json:"action"` // "correct" | "discard" | "probe"
	Correction string   `json:"correction,omitempty"`
	Note       string   `json:"note"`
}

// Result is what Pipeline.Run returns: the final artifacts plus a summary
// of what happened at each stage (cached vs. recomputed, verify outcome).
type Result struct {
	Annotations ToolAnnotationsFile
	Policy      policy.CompiledPolicy
	Scenarios   []TestScenario
	Rounds      int
	Passed      bool
	Mismatches  []Mismatch
	StageCached map[string]bool
}
