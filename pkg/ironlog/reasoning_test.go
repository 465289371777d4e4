package ironlog

import (
	"os"
	"strings"
	"testing"
)

func TestCompilerTranscript_WriteTurn(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewCompilerTranscript(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if err := tr.WriteTurn("compile", "sess-1", "produced 12 rules"); err != nil {
		t.Fatal(err)
	}
	if err := tr.WriteTurn("verify", "sess-1", "2 scenarios mismatched"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(tr.Path())
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "stage=compile") {
		t.Error("expected compile stage header")
	}
	if !strings.Contains(content, "produced 12 rules") {
		t.Error("expected compile turn content")
	}
	if !strings.Contains(content, "stage=verify") {
		t.Error("expected verify stage header")
	}
}

func TestCompilerTranscript_Path(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewCompilerTranscript(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if tr.Path() == "" {
		t.Error("expected non-empty path")
	}
}
