package pathnorm

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
)

// namedRemoteTimeout bounds the direct git subprocess invocation, per the
// spec's 5s subprocess timeout.
const namedRemoteTimeout = 5 * time.Second

// ResolveNamedRemote resolves a git-remote-url argument that is actually a
// bare remote name (e.g. "origin") to its configured URL, by running
// `git remote get-url <name>` in repoDir as a direct process invocation
// (no shell). If the value already looks like a URL (contains "://" or an
// "@host:" scp pattern), it is returned unchanged without touching git.
//
// On any resolution failure this returns the original value unchanged,
// never an error: failing to verify a named remote should fall through to
// domain-based rules, which then escalate on the opaque value rather than
// hard-failing the call.
func ResolveNamedRemote(value, repoDir string) string {
	if looksLikeURL(value) {
		return value
	}
	if repoDir == "" {
		return value
	}

	if resolved, ok := resolveViaGitBinary(value, repoDir); ok {
		return resolved
	}
	if resolved, ok := resolveViaGoGit(value, repoDir); ok {
		return resolved
	}
	return value
}

func looksLikeURL(value string) bool {
	return strings.Contains(value, "://") || strings.Contains(value, "@")
}

// resolveViaGitBinary is the primary strategy: a direct (no-shell)
// subprocess invocation with a short timeout.
func resolveViaGitBinary(name, repoDir string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), namedRemoteTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", name)
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	url := strings.TrimSpace(string(out))
	if url == "" {
		return "", false
	}
	return url, true
}

// resolveViaGoGit is the fallback strategy when the git binary is
// unavailable: read .git/config directly via go-git's config loader
// instead of shelling out.
func resolveViaGoGit(name, repoDir string) (string, bool) {
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return "", false
	}
	remote, err := repo.Remote(name)
	if err != nil {
		return "", false
	}
	cfg := remote.Config()
	if cfg == nil || len(cfg.URLs) == 0 {
		return "", false
	}
	return cfg.URLs[0], true
}
