// Package escalation implements the file-based rendezvous between the
// mediator and whatever transport a human approver is using (a chat bot, a
// terminal prompt, a mobile notification): the mediator never talks to that
// transport directly, it just writes a request file and waits for a
// response file to appear in a shared directory.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
)

// Decision is the outcome of a rendezvous.
type Decision string

const (
	Approved Decision = "approved"
	Denied   Decision = "denied"
)

// Request is written by the mediator as request-<id>.json.
type Request struct {
	EscalationID string         `json:"escalationId"`
	ServerName   string         `json:"serverName"`
	ToolName     string         `json:"toolName"`
	Arguments    map[string]any `json:"arguments"`
	Reason       string         `json:"reason"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Response is written by the transport as response-<id>.json.
type Response struct {
	Decision Decision `json:"decision"`
}

// Rendezvous manages the request/response file pair for one escalation
// directory. Callers create one per mediator process, not per call.
type Rendezvous struct {
	dir           string
	pollInterval  time.Duration
	timeout       time.Duration
	useFileNotify bool
}

// New builds a Rendezvous rooted at dir (created if missing). pollInterval
// and timeout fall back to the spec defaults (500ms / 5m) when zero.
func New(dir string, pollInterval, timeout time.Duration) (*Rendezvous, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeEscalationIO, "create rendezvous directory")
	}
	return &Rendezvous{dir: dir, pollInterval: pollInterval, timeout: timeout, useFileNotify: true}, nil
}

func (r *Rendezvous) requestPath(id string) string {
	return filepath.Join(r.dir, fmt.Sprintf("request-%s.json", id))
}

func (r *Rendezvous) responsePath(id string) string {
	return filepath.Join(r.dir, fmt.Sprintf("response-%s.json", id))
}

// Escalate writes the request file, waits (via fsnotify with a polling
// fallback) for the matching response file or the timeout, and unlinks both
// files on every exit path. A timed-out escalation is treated as denied, as
// the spec requires.
func (r *Rendezvous) Escalate(ctx context.Context, serverName, toolName string, arguments map[string]any, reason string) (Decision, error) {
	id := uuid.NewString()
	req := Request{
		EscalationID: id,
		ServerName:   serverName,
		ToolName:     toolName,
		Arguments:    arguments,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}

	reqPath := r.requestPath(id)
	respPath := r.responsePath(id)
	defer os.Remove(reqPath)
	defer os.Remove(respPath)

	data, err := json.Marshal(req)
	if err != nil {
		return Denied, ironerr.Wrap(err, ironerr.ErrCodeEscalationIO, "marshal escalation request")
	}
	if err := os.WriteFile(reqPath, data, 0600); err != nil {
		return Denied, ironerr.Wrap(err, ironerr.ErrCodeEscalationIO, "write escalation request")
	}

	deadline := time.Now().Add(r.timeout)
	notify := r.watchForCreate(respPath)
	defer notify.stop()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if decision, ok := r.readResponse(respPath); ok {
			return decision, nil
		}
		if time.Now().After(deadline) {
			return Denied, ironerr.New(ironerr.ErrCodeEscalationTimeout, fmt.Sprintf("escalation %s timed out after %s", id, r.timeout)).
				WithContext("escalationId", id)
		}
		select {
		case <-ctx.Done():
			return Denied, ctx.Err()
		case <-notify.events:
		case <-time.After(time.Until(deadline)):
		case <-ticker.C:
		}
	}
}

func (r *Rendezvous) readResponse(path string) (Decision, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false
	}
	if resp.Decision != Approved && resp.Decision != Denied {
		return "", false
	}
	return resp.Decision, true
}

// fileNotifier wraps an fsnotify.Watcher (best-effort: if the watcher fails
// to start, Escalate falls back to pure polling on the ticker).
type fileNotifier struct {
	watcher *fsnotify.Watcher
	events  chan struct{}
	done    chan struct{}
}

func (r *Rendezvous) watchForCreate(targetPath string) *fileNotifier {
	fn := &fileNotifier{events: make(chan struct{}, 1), done: make(chan struct{})}
	if !r.useFileNotify {
		close(fn.done)
		return fn
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(fn.done)
		return fn
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		close(fn.done)
		return fn
	}
	fn.watcher = watcher

	go func() {
		defer close(fn.done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name == targetPath && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
					select {
					case fn.events <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return fn
}

func (fn *fileNotifier) stop() {
	if fn.watcher != nil {
		fn.watcher.Close()
	}
	<-fn.done
}
