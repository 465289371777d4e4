package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// hashJSON returns a stable hex digest of v's canonical JSON encoding.
// Map keys are sorted by encoding/json itself; this is only as stable as
// Go's own marshaling, which is sufficient for cache-invalidation purposes
// (we never need the hash to match a foreign implementation's).
func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hashStrings hashes a set of strings in a stable, order-independent way.
func hashStrings(parts ...string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashArguments hashes a tool call's arguments for scenario deduplication.
func hashArguments(args map[string]any) string {
	return hashJSON(args)
}

// serverInputHash is the per-server cache key the annotator uses: the
// server's tool schemas plus the prompt text guiding annotation.
func serverInputHash(serverName string, tools []DiscoveredTool, promptText string) string {
	return hashJSON(struct {
		Server  string           `json:"server"`
		Tools   []DiscoveredTool `json:"tools"`
		Prompt  string           `json:"prompt"`
	}{serverName, tools, promptText})
}

// compileInputHash is the cache key for the constitution-compilation
// stage: the constitution text, every annotation, and the structural
// parameters the compiled rules must respect.
func compileInputHash(constitution string, annotations []ServerAnnotationsEntry, sandboxDir string, protectedPaths []string, promptText string) string {
	return hashJSON(struct {
		Constitution   string                    `json:"constitution"`
		Annotations    []ServerAnnotationsEntry `json:"annotations"`
		SandboxDir     string                    `json:"sandboxDir"`
		ProtectedPaths []string                  `json:"protectedPaths"`
		Prompt         string                    `json:"prompt"`
	}{constitution, annotations, sandboxDir, protectedPaths, promptText})
}

// ServerAnnotationsEntry flattens ToolAnnotationsFile for hashing purposes
// (map iteration order is irrelevant to json.Marshal's sorted-keys output,
// but we want a typed, reviewable shape in the hash input rather than the
// raw map).
type ServerAnnotationsEntry struct {
	ServerName string `json:"serverName"`
	InputHash  string `json:"inputHash"`
}
