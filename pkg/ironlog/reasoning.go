package ironlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CompilerTranscript writes the compilation pipeline's stateful LLM-session
// turns (constitution compiler, annotator, judge) to daily-rotated log
// files, for operators auditing why a rule was produced or repaired.
type CompilerTranscript struct {
	dir     string
	file    *os.File
	path    string
	mu      sync.Mutex
	lastDay string
}

// NewCompilerTranscript creates a transcript writer rooted at dir. Files
// are named compiler-YYYY-MM-DD.log.
func NewCompilerTranscript(dir string) (*CompilerTranscript, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create compiler transcript dir: %w", err)
	}

	l := &CompilerTranscript{dir: dir}
	if err := l.rotate(); err != nil {
		return nil, err
	}
	return l, nil
}

// WriteTurn appends one pipeline-stage turn (e.g. "compile", "verify",
// "judge") with its raw content to the transcript.
func (l *CompilerTranscript) WriteTurn(stage, sessionID, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if today != l.lastDay {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	if l.file == nil {
		return nil
	}

	timestamp := time.Now().Format("15:04:05")
	header := fmt.Sprintf("\n=== [%s] stage=%s session=%s ===\n", timestamp, stage, sessionID)
	if _, err := l.file.WriteString(header); err != nil {
		return err
	}
	if _, err := l.file.WriteString(content); err != nil {
		return err
	}
	_, err := l.file.WriteString("\n")
	return err
}

// Path returns the current log file path.
func (l *CompilerTranscript) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close closes the log file.
func (l *CompilerTranscript) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *CompilerTranscript) rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

func (l *CompilerTranscript) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	today := time.Now().Format("2006-01-02")
	l.lastDay = today
	l.path = filepath.Join(l.dir, "compiler-"+today+".log")

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open compiler transcript: %w", err)
	}
	l.file = file
	return nil
}
