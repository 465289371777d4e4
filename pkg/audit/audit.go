// Package audit implements the mediator's append-only JSONL audit log:
// one line per mediated tool call, written best-effort so a logging
// failure never blocks the call it describes.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PolicyDecision mirrors the policy engine's outcome for one audit line.
type PolicyDecision struct {
	Status string `json:"status"` // allow | deny | escalate
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Result records what actually happened to the call.
type Result struct {
	Status string `json:"status"`          // success | denied | error
	Error  string `json:"error,omitempty"` // present only if status == error
}

// Entry is one append-only audit line.
type Entry struct {
	Timestamp        time.Time      `json:"timestamp"`
	RequestID        string         `json:"requestId"`
	ServerName       string         `json:"serverName"`
	ToolName         string         `json:"toolName"`
	Arguments        map[string]any `json:"arguments"`
	PolicyDecision   PolicyDecision `json:"policyDecision"`
	EscalationResult string         `json:"escalationResult,omitempty"` // approved | denied
	Result           Result         `json:"result"`
	DurationMs       int64          `json:"durationMs"`
	Sandboxed        *bool          `json:"sandboxed,omitempty"`
	AutoApproved     *bool          `json:"autoApproved,omitempty"`
}

// FailureHandler is invoked when an audit write fails. The mediator wires
// this to its operational logger (pkg/ironlog); it must never panic or
// block.
type FailureHandler func(err error, entry Entry)

// Log is a single append-only JSONL audit file.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	onFail FailureHandler
}

// Open opens (creating if necessary) the audit log at path in append mode,
// mode 0644 to match the rest of the file-based artifact layout.
func Open(path string, onFail FailureHandler) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Log{file: f, onFail: onFail}, nil
}

// Append writes entry as one JSON line. Write failures are reported to the
// configured FailureHandler (if any) and otherwise swallowed: an audit
// write failure must never block the tool call it is recording.
func (l *Log) Append(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Arguments == nil {
		entry.Arguments = map[string]any{}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.fail(err, entry)
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	_, err = l.file.Write(line)
	l.mu.Unlock()
	if err != nil {
		l.fail(err, entry)
	}
}

func (l *Log) fail(err error, entry Entry) {
	if l.onFail != nil {
		l.onFail(err, entry)
	}
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
