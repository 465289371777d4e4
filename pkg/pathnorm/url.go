package pathnorm

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ParsedURL is the normalized form of a URL-category argument.
type ParsedURL struct {
	Scheme string
	Host   string // hostname only, lowercase, no port, no brackets
	Port   string // empty if default/unspecified
	Raw    string // original, reconstructable form
}

// NormalizeURL parses raw as either a standard scheme://host[:port]/path
// URL or, for git-remote-url arguments, scp-style "[user@]host:org/repo"
// syntax. Returns an error if raw cannot be parsed as either.
func NormalizeURL(raw string, allowSCP bool) (ParsedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedURL{}, fmt.Errorf("url cannot be empty")
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return ParsedURL{}, fmt.Errorf("url contains whitespace")
	}

	if idx := strings.Index(raw, "://"); idx >= 0 {
		u, err := url.Parse(raw)
		if err != nil {
			return ParsedURL{}, fmt.Errorf("parse url: %w", err)
		}
		host, port, err := splitHostPort(u.Host)
		if err != nil {
			return ParsedURL{}, err
		}
		return ParsedURL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(host), Port: port, Raw: raw}, nil
	}

	if allowSCP {
		return parseSCP(raw)
	}

	return ParsedURL{}, fmt.Errorf("url %q has no recognized scheme", raw)
}

// splitHostPort separates a URL authority component into bare hostname and
// port, handling IPv6 literal brackets.
func splitHostPort(hostport string) (host, port string, err error) {
	if hostport == "" {
		return "", "", fmt.Errorf("empty host")
	}
	if h, p, splitErr := net.SplitHostPort(hostport); splitErr == nil {
		return strings.Trim(h, "[]"), p, nil
	}
	// No port present.
	return strings.Trim(hostport, "[]"), "", nil
}

// parseSCP parses the SSH shorthand grammar "[user@]host:path" used by git
// remotes (e.g. "git@github.com:org/repo.git"). No scheme, no slashes or
// backslashes in the host segment.
func parseSCP(raw string) (ParsedURL, error) {
	atIdx := strings.LastIndex(raw, "@")
	rest := raw
	if atIdx >= 0 {
		rest = raw[atIdx+1:]
	}
	colonIdx := strings.Index(rest, ":")
	if colonIdx < 0 {
		return ParsedURL{}, fmt.Errorf("not a valid scp-style url: %q", raw)
	}
	host := rest[:colonIdx]
	if host == "" || strings.ContainsAny(host, "/\\") {
		return ParsedURL{}, fmt.Errorf("invalid host in scp-style url: %q", raw)
	}
	return ParsedURL{Scheme: "ssh", Host: strings.ToLower(host), Raw: raw}, nil
}

// ExtractDomain returns the lowercase hostname component of a URL-category
// or git-remote-url-category value. Used as the PrepareForPolicy
// implementation for fetch-url and git-remote-url roles.
func ExtractDomain(raw string) (string, error) {
	parsed, err := NormalizeURL(raw, true)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}

// DomainMatches reports whether host matches pattern using exact,
// "*"-wildcard-allow-all, "*.suffix"-wildcard, or ".suffix"-bare-dot
// semantics. Matching is case-insensitive.
func DomainMatches(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	host = strings.ToLower(strings.TrimSpace(host))
	if pattern == "" || host == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return strings.HasSuffix(host, suffix) && host != suffix[1:]
	}
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(host, pattern) || host == pattern[1:]
	}
	return false
}

// IsBlockedIP reports whether ip is a loopback, private, link-local,
// multicast, unspecified address, or otherwise not globally routable.
func IsBlockedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	return !ip.IsGlobalUnicast()
}

// DomainAllowed reports whether host matches any pattern in allowed. An
// empty allowed list means no allowlist is configured for this server —
// callers should treat that as "no domain gate", not "deny all".
func DomainAllowed(host string, allowed []string) bool {
	for _, pattern := range allowed {
		if DomainMatches(pattern, host) {
			return true
		}
	}
	return false
}
