package compiler

import "testing"

func TestHashJSON_Deterministic(t *testing.T) {
	a := hashJSON(map[string]any{"x": 1, "y": "two"})
	b := hashJSON(map[string]any{"y": "two", "x": 1})
	if a != b {
		t.Errorf("hashJSON not stable across key order: %q vs %q", a, b)
	}
	if a == "" {
		t.Error("hashJSON returned empty hash")
	}
}

func TestHashJSON_DiffersOnContentChange(t *testing.T) {
	a := hashJSON(map[string]any{"x": 1})
	b := hashJSON(map[string]any{"x": 2})
	if a == b {
		t.Error("hashJSON produced identical hash for different content")
	}
}

func TestHashStrings_OrderIndependent(t *testing.T) {
	a := hashStrings("b", "a", "c")
	b := hashStrings("c", "b", "a")
	if a != b {
		t.Errorf("hashStrings should be order-independent: %q vs %q", a, b)
	}
}

func TestHashArguments_DistinguishesArgSets(t *testing.T) {
	a := hashArguments(map[string]any{"path": "/tmp/a"})
	b := hashArguments(map[string]any{"path": "/tmp/b"})
	if a == b {
		t.Error("hashArguments collided for different arguments")
	}
}

func TestServerInputHash_ChangesWithSchema(t *testing.T) {
	tools := []DiscoveredTool{{ServerName: "fs", ToolName: "read_file"}}
	a := serverInputHash("fs", tools, "prompt-v1")
	tools2 := []DiscoveredTool{{ServerName: "fs", ToolName: "read_file", Description: "now documented"}}
	b := serverInputHash("fs", tools2, "prompt-v1")
	if a == b {
		t.Error("serverInputHash did not change when tool schema changed")
	}
}
