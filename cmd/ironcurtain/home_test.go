package main

import (
	"path/filepath"
	"testing"
)

func TestResolveHomeDirDefaultsToDotIroncurtain(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := resolveHomeDir("")
	if err != nil {
		t.Fatalf("resolveHomeDir: %v", err)
	}
	want := filepath.Join(home, ".ironcurtain")
	if got != want {
		t.Fatalf("homeDir=%q want %q", got, want)
	}
}

func TestResolveHomeDirHonorsConfigFlag(t *testing.T) {
	got, err := resolveHomeDir("/etc/ironcurtain/config.json")
	if err != nil {
		t.Fatalf("resolveHomeDir: %v", err)
	}
	if got != "/etc/ironcurtain" {
		t.Fatalf("homeDir=%q want /etc/ironcurtain", got)
	}
}

func TestExtractFlagSpaceForm(t *testing.T) {
	value, rest := extractFlag([]string{"show", "--config", "/tmp/c.json", "--verbose"}, "--config")
	if value != "/tmp/c.json" {
		t.Fatalf("value=%q want /tmp/c.json", value)
	}
	if want := []string{"show", "--verbose"}; !equalStrings(rest, want) {
		t.Fatalf("rest=%v want %v", rest, want)
	}
}

func TestExtractFlagEqualsForm(t *testing.T) {
	value, rest := extractFlag([]string{"show", "--config=/tmp/c.json"}, "--config")
	if value != "/tmp/c.json" {
		t.Fatalf("value=%q want /tmp/c.json", value)
	}
	if want := []string{"show"}; !equalStrings(rest, want) {
		t.Fatalf("rest=%v want %v", rest, want)
	}
}

func TestExtractFlagAbsent(t *testing.T) {
	args := []string{"show", "path"}
	value, rest := extractFlag(args, "--config")
	if value != "" {
		t.Fatalf("value=%q want empty", value)
	}
	if !equalStrings(rest, args) {
		t.Fatalf("rest=%v want unchanged %v", rest, args)
	}
}

func TestExtractFlagDanglingNameIgnored(t *testing.T) {
	// "--config" with nothing after it is not a valid pair and is left alone.
	args := []string{"show", "--config"}
	value, rest := extractFlag(args, "--config")
	if value != "" {
		t.Fatalf("value=%q want empty", value)
	}
	if !equalStrings(rest, args) {
		t.Fatalf("rest=%v want unchanged %v", rest, args)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
