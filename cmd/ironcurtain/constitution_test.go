package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConstitutionBaseOnly(t *testing.T) {
	home := t.TempDir()

	got, err := loadConstitution(home)
	if err != nil {
		t.Fatalf("loadConstitution: %v", err)
	}
	if got != baseConstitution {
		t.Fatalf("expected base constitution verbatim when no override file exists")
	}
}

func TestLoadConstitutionMergesOverride(t *testing.T) {
	home := t.TempDir()
	overridePath := filepath.Join(home, "constitution-user.md")
	if err := os.WriteFile(overridePath, []byte("Never touch the payroll database.\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	got, err := loadConstitution(home)
	if err != nil {
		t.Fatalf("loadConstitution: %v", err)
	}
	if !strings.HasPrefix(got, baseConstitution) {
		t.Fatalf("merged constitution should start with the base text")
	}
	if !strings.Contains(got, "Never touch the payroll database.") {
		t.Fatalf("merged constitution missing operator override text:\n%s", got)
	}
	if !strings.Contains(got, "## Operator overrides") {
		t.Fatalf("merged constitution missing operator overrides heading")
	}
}

func TestLoadConstitutionIgnoresBlankOverride(t *testing.T) {
	home := t.TempDir()
	overridePath := filepath.Join(home, "constitution-user.md")
	if err := os.WriteFile(overridePath, []byte("   \n\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	got, err := loadConstitution(home)
	if err != nil {
		t.Fatalf("loadConstitution: %v", err)
	}
	if got != baseConstitution {
		t.Fatalf("a blank override file should not change the base constitution")
	}
}
