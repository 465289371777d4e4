package mitm

import (
	"net/http"
	"strings"
)

// SentinelSwapper rewrites the Authorization/X-Api-Key-style header on an
// outbound request, replacing a sentinel placeholder value the agent
// process was configured with for a real upstream credential the agent
// never sees. The swap only happens inside this proxy, after the request
// has already passed the endpoint allowlist check.
type SentinelSwapper struct {
	// sentinelToReal maps a sentinel value (as the agent would send it,
	// e.g. "Bearer sk-ironcurtain-sentinel-abc") to the real header value
	// to substitute before forwarding upstream.
	sentinelToReal map[string]string
}

// NewSentinelSwapper builds a swapper from a sentinel-value -> real-key map
// (pkg/config's MITMConfig.SentinelKeys).
func NewSentinelSwapper(keys map[string]string) *SentinelSwapper {
	return &SentinelSwapper{sentinelToReal: keys}
}

// headersToCheck lists the header names a sentinel credential might
// appear under across the providers the proxy fronts.
var headersToCheck = []string{"Authorization", "X-Api-Key", "X-Goog-Api-Key"}

// Swap rewrites any recognized sentinel value found in req's headers to
// the corresponding real credential, in place. It reports whether a
// sentinel-bearing header was found and matched a known value; a header
// present but not matching any configured sentinel is left untouched and
// reported as a mismatch, which the caller treats as a hard deny — a
// request that looks like it's trying to authenticate but doesn't carry a
// value this proxy recognizes is never silently forwarded bearing a
// leaked real key or mistyped sentinel.
func (s *SentinelSwapper) Swap(header http.Header) (matched bool, sentinelPresent bool) {
	for _, name := range headersToCheck {
		val := header.Get(name)
		if val == "" {
			continue
		}
		sentinelPresent = true
		if real, ok := s.sentinelToReal[val]; ok {
			header.Set(name, real)
			return true, true
		}
	}
	return false, sentinelPresent
}

// LooksLikeSentinel reports whether v matches the shape this deployment
// uses for sentinel placeholders, for logging/diagnostics only — the
// actual trust decision is always the exact-match lookup in Swap.
func LooksLikeSentinel(v string) bool {
	return strings.Contains(v, "ironcurtain-sentinel")
}
