package main

import (
	"errors"
	"fmt"
	"testing"
)

type codedError struct {
	code int
}

func (e codedError) Error() string { return "coded failure" }
func (e codedError) ExitCode() int { return e.code }

func TestExitCodeForErrorNil(t *testing.T) {
	if got := exitCodeForError(nil); got != 0 {
		t.Fatalf("exitCodeForError(nil) = %d, want 0", got)
	}
}

func TestExitCodeForErrorPlainErrorDefaultsToOne(t *testing.T) {
	if got := exitCodeForError(errors.New("boom")); got != 1 {
		t.Fatalf("exitCodeForError(plain) = %d, want 1", got)
	}
}

func TestExitCodeForErrorHonorsExitCoder(t *testing.T) {
	if got := exitCodeForError(codedError{code: 7}); got != 7 {
		t.Fatalf("exitCodeForError(coded) = %d, want 7", got)
	}
}

func TestExitCodeForErrorUnwrapsWrappedExitCoder(t *testing.T) {
	wrapped := fmt.Errorf("while mediating: %w", codedError{code: 3})
	if got := exitCodeForError(wrapped); got != 3 {
		t.Fatalf("exitCodeForError(wrapped) = %d, want 3", got)
	}
}

func TestRunUnknownCommandReturnsOne(t *testing.T) {
	if got := run([]string{"not-a-real-command"}); got != 1 {
		t.Fatalf("run(unknown) = %d, want 1", got)
	}
}

func TestRunNoArgsReturnsOne(t *testing.T) {
	if got := run(nil); got != 1 {
		t.Fatalf("run(nil) = %d, want 1", got)
	}
}

func TestRunVersionReturnsZero(t *testing.T) {
	if got := run([]string{"--version"}); got != 0 {
		t.Fatalf("run(--version) = %d, want 0", got)
	}
	if got := run([]string{"version"}); got != 0 {
		t.Fatalf("run(version) = %d, want 0", got)
	}
}

func TestRunHelpReturnsZero(t *testing.T) {
	if got := run([]string{"--help"}); got != 0 {
		t.Fatalf("run(--help) = %d, want 0", got)
	}
	if got := run([]string{"help"}); got != 0 {
		t.Fatalf("run(help) = %d, want 0", got)
	}
}
