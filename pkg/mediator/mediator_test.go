package mediator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironcurtain/ironcurtain/pkg/audit"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

func denyAllPolicy() *policy.CompiledPolicy {
	return &policy.CompiledPolicy{
		Rules: []policy.CompiledRule{
			{Name: "default-escalate", Then: policy.Escalate, Reason: "no matching rule"},
		},
		ListDefinitions: map[string][]string{},
	}
}

func newTestEngine(t *testing.T, protectedPaths []string) *policy.Engine {
	t.Helper()
	engine, err := policy.NewEngine(denyAllPolicy(), nil, protectedPaths, "", nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func newTestAuditLog(t *testing.T) *audit.Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := audit.Open(path, nil)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestMediateDeniesProtectedPath(t *testing.T) {
	protected := filepath.Join(t.TempDir(), "secrets")
	if err := os.MkdirAll(protected, 0700); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t, []string{protected})
	m := New(Config{
		Engine: engine,
		Annotations: []policy.ToolAnnotation{
			{ServerName: "fs", ToolName: "read_file", Args: map[string]roles.Role{"path": roles.ReadPath}},
		},
		AuditLog: newTestAuditLog(t),
	})

	result, err := m.Mediate(context.Background(), "fs", "read_file", map[string]any{
		"path": filepath.Join(protected, "key.pem"),
	})
	if err != nil {
		t.Fatalf("Mediate returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected denied result, got %+v", result)
	}
}

func TestMediateUnknownToolDenied(t *testing.T) {
	engine := newTestEngine(t, nil)
	m := New(Config{Engine: engine, AuditLog: newTestAuditLog(t)})

	result, err := m.Mediate(context.Background(), "fs", "mystery_tool", map[string]any{})
	if err != nil {
		t.Fatalf("Mediate returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected unknown tool to be denied, got %+v", result)
	}
}

func TestMediateEscalateWithoutRendezvousIsDenied(t *testing.T) {
	annotations := []policy.ToolAnnotation{
		{ServerName: "fs", ToolName: "write_file", Args: map[string]roles.Role{"path": roles.WritePath}},
	}
	engine, err := policy.NewEngine(denyAllPolicy(), annotations, nil, "", nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	m := New(Config{
		Engine:      engine,
		Annotations: annotations,
		AuditLog:    newTestAuditLog(t),
	})

	result, err := m.Mediate(context.Background(), "fs", "write_file", map[string]any{
		"path": filepath.Join(t.TempDir(), "out.txt"),
	})
	if err != nil {
		t.Fatalf("Mediate returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected escalation with no rendezvous to deny, got %+v", result)
	}
}

func TestAccessibleRootsStartsEmpty(t *testing.T) {
	engine := newTestEngine(t, nil)
	m := New(Config{Engine: engine, AuditLog: newTestAuditLog(t)})

	if got := m.AccessibleRoots("fs"); len(got) != 0 {
		t.Fatalf("expected no accessible roots yet, got %v", got)
	}
}
