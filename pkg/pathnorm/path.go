// Package pathnorm canonicalizes agent-supplied path and URL strings into
// the two views the mediator needs: a transport view (what the real tool
// server receives) and a policy view (what the policy engine evaluates).
package pathnorm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde expands a leading "~" or "~/" to the current user's home
// directory. Values not starting with "~" are returned unchanged.
func ExpandTilde(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] != '~' {
		return raw, nil
	}
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		// "~otheruser/..." — not supported, leave as-is for the caller to
		// fail containment checks rather than guessing another user's home.
		return raw, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if raw == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(raw, "~/")), nil
}

// TransportPath produces the transport-view form of a path argument:
// relative paths pass through unchanged (the real tool server resolves
// them against its own working directory, the sandbox root); absolute and
// "~"-rooted paths are tilde-expanded and symlink-resolved to canonical
// form.
func TransportPath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(raw) && raw[0] != '~' {
		return raw, nil
	}
	expanded, err := ExpandTilde(raw)
	if err != nil {
		return "", err
	}
	return evalSymlinksFallbackForTarget(filepath.Clean(expanded)), nil
}

// PolicyPath produces the policy-view form of a path argument: relative
// paths are resolved against sandboxDir so the engine always sees absolute
// canonical paths; absolute and "~"-rooted paths are tilde-expanded and
// symlink-resolved the same way as TransportPath.
func PolicyPath(raw, sandboxDir string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	expanded, err := ExpandTilde(raw)
	if err != nil {
		return "", err
	}
	var candidate string
	if filepath.IsAbs(expanded) {
		candidate = filepath.Clean(expanded)
	} else if sandboxDir != "" {
		candidate = filepath.Clean(filepath.Join(sandboxDir, expanded))
	} else {
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
		candidate = abs
	}
	return evalSymlinksFallbackForTarget(candidate), nil
}

// IsWithin reports whether target is base itself or lies within base.
// Both arguments should already be canonicalized (cleaned, symlink
// resolved); IsWithin does not re-resolve them.
func IsWithin(base, target string) bool {
	base = filepath.Clean(strings.TrimSpace(base))
	target = filepath.Clean(strings.TrimSpace(target))
	if base == "" || target == "" {
		return false
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	rel = filepath.Clean(rel)
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalSymlinksFallbackForTarget resolves symlinks using a three-strategy
// fallback so the caller sees a canonical path even for targets that don't
// yet exist (new writes): (1) resolve the full path; (2) if that fails,
// resolve the parent directory and rejoin the base name; (3) if the parent
// doesn't exist either, fall back to the lexically cleaned path.
func evalSymlinksFallbackForTarget(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil && strings.TrimSpace(resolved) != "" {
		return filepath.Clean(resolved)
	}

	dir := filepath.Dir(path)
	if resolvedDir, err := filepath.EvalSymlinks(dir); err == nil && strings.TrimSpace(resolvedDir) != "" {
		return filepath.Clean(filepath.Join(resolvedDir, filepath.Base(path)))
	}

	return filepath.Clean(path)
}

// IsWithinAny reports whether target lies within any of bases.
func IsWithinAny(bases []string, target string) bool {
	for _, base := range bases {
		if IsWithin(base, target) {
			return true
		}
	}
	return false
}

// HeuristicallyLooksLikePath reports whether s begins with "~", "/", or
// "." — the Phase 1 structural-invariant heuristic used alongside
// annotation-driven extraction for defense-in-depth. This deliberately
// over-matches (e.g. glob patterns like ".*"); see DESIGN.md's Open
// Question note.
func HeuristicallyLooksLikePath(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '~', '/', '.':
		return true
	default:
		return false
	}
}
