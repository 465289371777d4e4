package mediator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RepetitionBreakerConfig configures the bounded repetition detector: how
// many consecutive identical (tool, argument-hash) invocations within
// Window are tolerated before further calls are denied.
type RepetitionBreakerConfig struct {
	MaxRepeats uint32
	Window     time.Duration
}

// DefaultRepetitionBreakerConfig returns sensible defaults: five identical
// calls in a row are tolerated and the sixth trips the breaker, provided
// each call follows the previous one within thirty seconds.
func DefaultRepetitionBreakerConfig() RepetitionBreakerConfig {
	return RepetitionBreakerConfig{
		MaxRepeats: 5,
		Window:     30 * time.Second,
	}
}

// repetitionEntry tracks the last call's signature for one (server, tool)
// pair so the breaker can tell identical back-to-back invocations apart
// from merely-frequent distinct ones.
type repetitionEntry struct {
	argHash   string
	count     uint32
	firstSeen time.Time
	lastSeen  time.Time
}

// RepetitionBreaker is the mediator's circuit breaker: unlike a
// provider-call failure breaker, it trips on a runaway agent loop —
// the same tool called with the same arguments over and over — not on
// upstream errors. Grounded on the shape of model.CircuitBreaker, adapted
// from failure-count semantics to repetition-count semantics.
type RepetitionBreaker struct {
	mu      sync.Mutex
	cfg     RepetitionBreakerConfig
	entries map[string]*repetitionEntry // key: "server.tool"
}

// NewRepetitionBreaker builds a breaker with cfg; a zero MaxRepeats or
// Window falls back to DefaultRepetitionBreakerConfig.
func NewRepetitionBreaker(cfg RepetitionBreakerConfig) *RepetitionBreaker {
	if cfg.MaxRepeats == 0 {
		cfg.MaxRepeats = DefaultRepetitionBreakerConfig().MaxRepeats
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRepetitionBreakerConfig().Window
	}
	return &RepetitionBreaker{cfg: cfg, entries: make(map[string]*repetitionEntry)}
}

// Check records one invocation of serverName.toolName with arguments and
// reports whether it should be blocked. A blocked call's reason is
// user-visible so the agent can change its approach, per spec §4.E.
func (b *RepetitionBreaker) Check(serverName, toolName string, arguments map[string]any) (blocked bool, reason string) {
	key := serverName + "." + toolName
	hash := hashArguments(arguments)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok || entry.argHash != hash || now.Sub(entry.lastSeen) > b.cfg.Window {
		b.entries[key] = &repetitionEntry{argHash: hash, count: 1, firstSeen: now, lastSeen: now}
		return false, ""
	}

	entry.count++
	entry.lastSeen = now

	if entry.count > b.cfg.MaxRepeats {
		return true, fmt.Sprintf(
			"circuit breaker: %s called %d times in a row with identical arguments within %s; change your approach",
			key, entry.count, b.cfg.Window,
		)
	}
	return false, ""
}

// Reset clears all tracked repetition state, e.g. on session close.
func (b *RepetitionBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*repetitionEntry)
}

// hashArguments produces a stable content hash for an argument map so
// repeated calls with differently-ordered (but identical) JSON keys still
// compare equal.
func hashArguments(arguments map[string]any) string {
	keys := make([]string, 0, len(arguments))
	for k := range arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(arguments))
	for _, k := range keys {
		ordered[k] = arguments[k]
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
