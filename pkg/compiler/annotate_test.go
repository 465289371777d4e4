package compiler

import (
	"context"
	"strings"
	"testing"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

func TestAnnotateServer_Success(t *testing.T) {
	tools := []DiscoveredTool{
		{ServerName: "filesystem", ToolName: "read_file", Description: "Read a file", InputSchema: map[string]any{}},
	}
	client := &fakeChatCompleter{responses: []string{
		`{"tools": [{"toolName": "read_file", "comment": "Reads a file from disk.", "sideEffects": false, "args": {"path": "read-path"}}]}`,
	}}

	anns, err := annotateServer(context.Background(), client, "test-model", "filesystem", tools)
	if err != nil {
		t.Fatalf("annotateServer: %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(anns))
	}
	if anns[0].Args["path"] != roles.ReadPath {
		t.Errorf("expected path -> read-path, got %v", anns[0].Args["path"])
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(client.calls))
	}
}

func TestAnnotateServer_ToleratesSurroundingProse(t *testing.T) {
	tools := []DiscoveredTool{{ServerName: "fs", ToolName: "noop", InputSchema: map[string]any{}}}
	client := &fakeChatCompleter{responses: []string{
		"Sure, here is the annotation:\n" +
			`{"tools": [{"toolName": "noop", "comment": "Does nothing.", "args": {}}]}` +
			"\nLet me know if you need anything else.",
	}}

	anns, err := annotateServer(context.Background(), client, "test-model", "fs", tools)
	if err != nil {
		t.Fatalf("annotateServer: %v", err)
	}
	if len(anns) != 1 || anns[0].ToolName != "noop" {
		t.Fatalf("unexpected annotations: %+v", anns)
	}
}

func TestAnnotateServer_RejectsUnknownRole(t *testing.T) {
	tools := []DiscoveredTool{{ServerName: "fs", ToolName: "read_file", InputSchema: map[string]any{}}}
	client := &fakeChatCompleter{responses: []string{
		`{"tools": [{"toolName": "read_file", "comment": "c", "args": {"path": "super-admin-path"}}]}`,
	}}

	_, err := annotateServer(context.Background(), client, "test-model", "fs", tools)
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
	if ironerr.GetCode(err) != ironerr.ErrCodeAnnotationMismatch {
		t.Errorf("expected ErrCodeAnnotationMismatch, got %v", ironerr.GetCode(err))
	}
}

func TestAnnotateServer_RejectsUnknownTool(t *testing.T) {
	tools := []DiscoveredTool{{ServerName: "fs", ToolName: "read_file", InputSchema: map[string]any{}}}
	client := &fakeChatCompleter{responses: []string{
		`{"tools": [{"toolName": "delete_everything", "comment": "c", "args": {}}]}`,
	}}

	_, err := annotateServer(context.Background(), client, "test-model", "fs", tools)
	if err == nil {
		t.Fatal("expected error for tool the annotator invented")
	}
}

func TestAnnotateServer_RejectsPathShapedArgLeftUnroled(t *testing.T) {
	tools := []DiscoveredTool{{ServerName: "fs", ToolName: "read_file", InputSchema: map[string]any{}}}
	client := &fakeChatCompleter{responses: []string{
		`{"tools": [{"toolName": "read_file", "comment": "c", "args": {"filepath": "none"}}]}`,
	}}

	_, err := annotateServer(context.Background(), client, "test-model", "fs", tools)
	if err == nil {
		t.Fatal("expected path-heuristic rejection")
	}
	if !strings.Contains(err.Error(), "filepath") {
		t.Errorf("expected error to name the offending arg, got: %v", err)
	}
}

func TestRoleGuidanceBlock_ListsEveryRole(t *testing.T) {
	block := roleGuidanceBlock()
	for _, r := range roles.All() {
		if !strings.Contains(block, string(r)) {
			t.Errorf("role guidance block missing role %q", r)
		}
	}
}
