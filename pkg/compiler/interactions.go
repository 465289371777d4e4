package compiler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/model"
)

// InteractionRecord is one line of generated/llm-interactions.jsonl: every
// LLM call the pipeline makes, stamped with the stage it ran in, for
// auditability and cost tracking (spec §4.F: "All LLM interactions route
// through a logging middleware").
type InteractionRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Step       string    `json:"step"`
	Model      string    `json:"model"`
	Request    string    `json:"request"`
	Response   string    `json:"response"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// InteractionLog is a best-effort append-only JSONL sink for InteractionRecord.
// Like pkg/audit, a write failure never blocks the pipeline; it's logged to
// stderr so the operator notices without aborting a multi-hour compile run.
type InteractionLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenInteractionLog opens (creating if necessary) the JSONL file at path.
func OpenInteractionLog(path string) (*InteractionLog, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &InteractionLog{file: f}, nil
}

func (l *InteractionLog) Append(rec InteractionRecord) {
	if l == nil || l.file == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		// Best-effort: a logging failure must never abort a multi-hour
		// compile run.
		os.Stderr.WriteString("compiler: interaction log write failed: " + err.Error() + "\n")
	}
}

func (l *InteractionLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// loggingClient wraps a ChatCompleter and records every call+response pair
// to an InteractionLog, stamped with the current pipeline step.
type loggingClient struct {
	inner ChatCompleter
	log   *InteractionLog
	step  string
}

// withLogging returns a ChatCompleter that logs every call under step.
func withLogging(inner ChatCompleter, log *InteractionLog, step string) ChatCompleter {
	if log == nil {
		return inner
	}
	return &loggingClient{inner: inner, log: log, step: step}
}

func (c *loggingClient) ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	start := time.Now()
	reqJSON, _ := json.Marshal(req)
	resp, err := c.inner.ChatCompletion(ctx, req)
	rec := InteractionRecord{
		Timestamp:  start,
		Step:       c.step,
		Model:      req.Model,
		Request:    string(reqJSON),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Response = firstChoiceText(resp)
	}
	c.log.Append(rec)
	return resp, err
}
