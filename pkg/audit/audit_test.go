package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendWritesJSONLLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	log.Append(Entry{
		RequestID:      "req-1",
		ServerName:     "filesystem",
		ToolName:       "read_file",
		Arguments:      map[string]any{"path": "/tmp/sandbox/a.txt"},
		PolicyDecision: PolicyDecision{Status: "allow", Rule: "structural-sandbox-allow"},
		Result:         Result{Status: "success"},
		DurationMs:     12,
	})

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected one line in audit log")
	}
	var got Entry
	if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.RequestID != "req-1" || got.PolicyDecision.Status != "allow" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if scanner.Scan() {
		t.Fatal("expected exactly one line")
	}
}

func TestAppendNeverPanicsOnFailure(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(filepath.Join(dir, "audit.jsonl"), nil)
	if err != nil {
		t.Fatal(err)
	}
	log.Close() // force subsequent writes to fail

	var failed bool
	log.onFail = func(err error, entry Entry) { failed = true }

	log.Append(Entry{RequestID: "req-2"})
	if !failed {
		t.Fatal("expected failure handler to be invoked after close")
	}
}

func TestAppendMultipleLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	log, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	for i := 0; i < 3; i++ {
		log.Append(Entry{RequestID: "req"})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Fatalf("expected 3 lines, got %d", lines)
	}
}
