package policy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ironcurtain/ironcurtain/pkg/pathnorm"
	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

// Engine evaluates mediated tool calls against a compiled policy using the
// two-phase model: hardcoded structural invariants run first and can
// short-circuit the call outright, then the compiled rule chain is
// evaluated once per distinct argument role the tool uses and the
// per-role outcomes are combined by severity.
type Engine struct {
	mu              sync.RWMutex
	policy          *CompiledPolicy
	annotations     map[string]map[string]ToolAnnotation // server -> tool -> annotation
	protectedPaths  []string
	sandboxDir      string
	trustedDomains  []string
	listDefinitions map[string][]string
	onWarn          func(msg string)
}

// legacyDefaultDenyName is the fallback rule name some older compiled
// policies used in place of default-escalate. The engine normalizes it on
// load rather than honoring it: the fallback for an unmatched role is
// always escalation, never a silent deny.
const legacyDefaultDenyName = "default-deny"

const defaultEscalateRuleName = "default-escalate"

// NewEngine validates and wraps a compiled policy. It fails fast if a rule
// references an undefined list, a non-absolute paths.within entry, an
// unknown role, or a rule name that collides with a structural-invariant
// reason used by Evaluate itself.
func NewEngine(policy *CompiledPolicy, annotations []ToolAnnotation, protectedPaths []string, sandboxDir string, trustedDomains []string, onWarn func(string)) (*Engine, error) {
	if policy == nil {
		return nil, fmt.Errorf("policy: compiled policy is nil")
	}
	if onWarn == nil {
		onWarn = func(string) {}
	}

	annotationIndex := make(map[string]map[string]ToolAnnotation, len(annotations))
	for _, a := range annotations {
		if _, ok := annotationIndex[a.ServerName]; !ok {
			annotationIndex[a.ServerName] = make(map[string]ToolAnnotation)
		}
		annotationIndex[a.ServerName][a.ToolName] = a
	}

	expandedLists := make(map[string][]string, len(policy.ListDefinitions))
	for name, values := range policy.ListDefinitions {
		expandedLists[name] = values
	}

	for i := range policy.Rules {
		rule := &policy.Rules[i]
		if strings.HasPrefix(rule.Name, "structural-") {
			return nil, fmt.Errorf("policy: rule %q uses a reserved structural-invariant name", rule.Name)
		}
		if rule.Name == legacyDefaultDenyName {
			onWarn(fmt.Sprintf("policy: rule %q uses the legacy default-deny fallback name; treating as %s", rule.Name, defaultEscalateRuleName))
			rule.Name = defaultEscalateRuleName
			rule.Then = Escalate
		}
		for _, r := range rule.If.Roles {
			if !roles.IsValid(r) {
				return nil, fmt.Errorf("policy: rule %q references unknown role %q", rule.Name, r)
			}
		}
		if rule.If.Paths != nil {
			for _, dir := range rule.If.Paths.Within {
				if !filepath.IsAbs(dir) {
					return nil, fmt.Errorf("policy: rule %q has non-absolute paths.within entry %q", rule.Name, dir)
				}
			}
			for _, r := range rule.If.Paths.Roles {
				if !roles.IsValid(r) {
					return nil, fmt.Errorf("policy: rule %q paths condition references unknown role %q", rule.Name, r)
				}
			}
		}
		if rule.If.Domains != nil {
			for _, r := range rule.If.Domains.Roles {
				if !roles.IsValid(r) {
					return nil, fmt.Errorf("policy: rule %q domains condition references unknown role %q", rule.Name, r)
				}
			}
		}
		for li, list := range rule.If.Lists {
			if list.ListName != "" {
				resolved, ok := expandedLists[list.ListName]
				if !ok {
					return nil, fmt.Errorf("policy: rule %q list condition references undefined list %q", rule.Name, list.ListName)
				}
				rule.If.Lists[li].Allowed = resolved
			}
			for _, r := range list.Roles {
				if !roles.IsValid(r) {
					return nil, fmt.Errorf("policy: rule %q list condition references unknown role %q", rule.Name, r)
				}
			}
		}
	}

	for _, dir := range protectedPaths {
		if !filepath.IsAbs(dir) {
			return nil, fmt.Errorf("policy: protected path %q must be absolute", dir)
		}
	}

	return &Engine{
		policy:          policy,
		annotations:     annotationIndex,
		protectedPaths:  protectedPaths,
		sandboxDir:      sandboxDir,
		trustedDomains:  trustedDomains,
		listDefinitions: expandedLists,
		onWarn:          onWarn,
	}, nil
}

// resolvedArg is one argument after role-specific normalization: the raw
// value as sent by the agent, and the policy-view value the engine
// evaluates conditions against.
type resolvedArg struct {
	role        roles.Role
	rawValue    string
	policyValue string
}

// Evaluate runs the two-phase model against req and returns the combined
// decision. Phase 1's four structural checks run in the spec's numbered
// order — protected-path, sandbox-containment, unknown-tool, then the
// untrusted-domain gate — each able to return a final decision outright;
// only once none of them fire does Phase 2's compiled rule chain run.
func (e *Engine) Evaluate(req ToolCallRequest) PolicyDecision {
	e.mu.RLock()
	policy := e.policy
	annotations := e.annotations
	protectedPaths := e.protectedPaths
	sandboxDir := e.sandboxDir
	trustedDomains := e.trustedDomains
	e.mu.RUnlock()

	annotation, hasAnnotation := annotations[req.ServerName][req.ToolName]

	var resolved map[string]resolvedArg
	if hasAnnotation {
		var err error
		resolved, err = resolveArgs(annotation, req.Arguments)
		if err != nil {
			return PolicyDecision{Status: Deny, Rule: "structural-unresolvable-argument", Reason: err.Error()}
		}
	}

	// Heuristic extraction runs regardless of whether the tool is
	// annotated, so a mis-annotated "none" argument (or a call to a tool
	// with no annotation at all) cannot smuggle a protected-path value
	// past the check below.
	heuristicPaths := heuristicPathValues(req.Arguments, sandboxDir)

	if hit := protectedPathViolation(resolved, heuristicPaths, protectedPaths); hit != "" {
		return PolicyDecision{Status: Deny, Rule: "structural-protected-path", Reason: fmt.Sprintf("argument resolves inside protected path %s", hit)}
	}

	if req.ServerName == "filesystem" && isFullySandboxContained(resolved, sandboxDir) {
		return PolicyDecision{Status: Allow, Rule: "structural-sandbox-allow", Reason: "all resource-identifying arguments resolve within the sandbox directory"}
	}

	if !hasAnnotation {
		return PolicyDecision{Status: Deny, Rule: "structural-unknown-tool", Reason: fmt.Sprintf("no annotation for %s.%s", req.ServerName, req.ToolName)}
	}

	if untrustedDomainViolation(resolved, trustedDomains) {
		return PolicyDecision{Status: Escalate, Rule: "structural-domain-escalate", Reason: "argument domain is not in the trusted allowlist"}
	}

	distinctRoles := usedRoles(annotation)
	if len(distinctRoles) == 0 {
		return e.evaluateRole(policy, req, annotation, resolved, "")
	}

	var worst PolicyDecision
	for _, role := range distinctRoles {
		roleDecision := e.evaluateRole(policy, req, annotation, resolved, role)
		if worst.Status == "" || roleDecision.Status.severity() > worst.Status.severity() {
			worst = roleDecision
		}
	}
	return worst
}

// evaluateRole runs the compiled rule chain looking only at rules whose
// role filter includes role (or has none); the first matching rule wins.
func (e *Engine) evaluateRole(policy *CompiledPolicy, req ToolCallRequest, annotation ToolAnnotation, resolved map[string]resolvedArg, role roles.Role) PolicyDecision {
	for _, rule := range policy.Rules {
		if !ruleAppliesToRole(rule, role) {
			continue
		}
		if !conditionMatches(rule.If, req, annotation, resolved, role) {
			continue
		}
		return PolicyDecision{Status: rule.Then, Rule: rule.Name, Reason: rule.Reason}
	}
	return PolicyDecision{Status: Escalate, Rule: defaultEscalateRuleName, Reason: "no compiled rule matched this role; defaulting to escalation"}
}

func ruleAppliesToRole(rule CompiledRule, role roles.Role) bool {
	if len(rule.If.Roles) == 0 {
		return true
	}
	if role == "" {
		return false
	}
	for _, r := range rule.If.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func conditionMatches(cond Condition, req ToolCallRequest, annotation ToolAnnotation, resolved map[string]resolvedArg, role roles.Role) bool {
	if len(cond.Server) > 0 && !containsString(cond.Server, req.ServerName) {
		return false
	}
	if len(cond.Tool) > 0 && !containsString(cond.Tool, req.ToolName) {
		return false
	}
	if cond.SideEffects != nil && *cond.SideEffects != annotation.SideEffects {
		return false
	}
	if cond.Paths != nil && !pathsConditionMatches(*cond.Paths, resolved) {
		return false
	}
	if cond.Domains != nil && !domainsConditionMatches(*cond.Domains, resolved) {
		return false
	}
	for _, list := range cond.Lists {
		if !listConditionMatches(list, resolved) {
			return false
		}
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func argsForRoles(resolved map[string]resolvedArg, want []roles.Role) []resolvedArg {
	if len(want) == 0 {
		out := make([]resolvedArg, 0, len(resolved))
		for _, a := range resolved {
			out = append(out, a)
		}
		return out
	}
	wantSet := make(map[roles.Role]bool, len(want))
	for _, r := range want {
		wantSet[r] = true
	}
	var out []resolvedArg
	for _, a := range resolved {
		if wantSet[a.role] {
			out = append(out, a)
		}
	}
	return out
}

func pathsConditionMatches(cond PathCondition, resolved map[string]resolvedArg) bool {
	for _, arg := range argsForRoles(resolved, cond.Roles) {
		if !pathnorm.IsWithinAny(cond.Within, arg.policyValue) {
			return false
		}
	}
	return true
}

func domainsConditionMatches(cond DomainCondition, resolved map[string]resolvedArg) bool {
	for _, arg := range argsForRoles(resolved, cond.Roles) {
		if !pathnorm.DomainAllowed(arg.policyValue, cond.Allowed) {
			return false
		}
	}
	return true
}

func listConditionMatches(cond ListCondition, resolved map[string]resolvedArg) bool {
	for _, arg := range argsForRoles(resolved, cond.Roles) {
		if !listValueMatches(cond.MatchType, cond.Allowed, arg.policyValue) {
			return false
		}
	}
	return true
}

// listValueMatches applies the matching strategy named by matchType: domain
// lists reuse the same wildcard-prefix/explicit-IP semantics as the
// top-level "domains" condition (pathnorm.DomainAllowed); emails match
// case-insensitively, either a literal address or an "@domain" suffix
// covering every address at that domain; identifiers match case-sensitively
// (branch names, commit hashes, and similar tokens are case-significant).
func listValueMatches(matchType ListMatchType, allowed []string, value string) bool {
	switch matchType {
	case MatchDomains:
		return pathnorm.DomainAllowed(value, allowed)
	case MatchEmails:
		return emailAllowed(value, allowed)
	case MatchIdentifiers:
		for _, a := range allowed {
			if a == value {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func emailAllowed(value string, allowed []string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if strings.HasPrefix(a, "@") {
			if strings.HasSuffix(value, a) {
				return true
			}
			continue
		}
		if a == value {
			return true
		}
	}
	return false
}

// resolveArgs normalizes every annotated, non-none argument on the call:
// resolve (if the role supports out-of-band resolution, e.g. a named git
// remote), normalize, then project into the policy view.
func resolveArgs(annotation ToolAnnotation, arguments map[string]any) (map[string]resolvedArg, error) {
	out := make(map[string]resolvedArg, len(annotation.Args))
	for argName, role := range annotation.Args {
		if role == roles.None {
			continue
		}
		raw, ok := arguments[argName]
		if !ok {
			continue
		}
		rawStr := stringifyArg(raw)

		entry, ok := roles.Lookup(role)
		if !ok {
			return nil, fmt.Errorf("argument %q declares unknown role %q", argName, role)
		}

		value := rawStr
		if entry.ResolveForPolicy != nil {
			resolved, err := entry.ResolveForPolicy(value, arguments)
			if err != nil {
				return nil, fmt.Errorf("argument %q: resolving %s: %w", argName, role, err)
			}
			value = resolved
		}

		normalized, err := entry.Normalize(value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: normalizing %s: %w", argName, role, err)
		}

		policyValue := normalized
		if entry.PrepareForPolicy != nil {
			policyValue, err = entry.PrepareForPolicy(normalized)
			if err != nil {
				return nil, fmt.Errorf("argument %q: preparing %s for policy: %w", argName, role, err)
			}
		}

		out[argName] = resolvedArg{role: role, rawValue: rawStr, policyValue: policyValue}
	}
	return out, nil
}

func stringifyArg(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// heuristicPathValues collects every string-valued argument that looks
// path-shaped (spec §4.D step 1's "any string starting with /, ., or ~"),
// resolved to canonical form, regardless of what role (if any) the
// argument was annotated with. This runs whether or not the tool has an
// annotation at all, so it is the union partner of resolveArgs'
// annotation-driven extraction, not a substitute for it.
func heuristicPathValues(arguments map[string]any, sandboxDir string) []string {
	var out []string
	for _, v := range arguments {
		s, ok := v.(string)
		if !ok || !pathnorm.HeuristicallyLooksLikePath(s) {
			continue
		}
		canonical, err := pathnorm.PolicyPath(s, sandboxDir)
		if err != nil {
			continue
		}
		out = append(out, canonical)
	}
	return out
}

func protectedPathViolation(resolved map[string]resolvedArg, heuristicPaths []string, protectedPaths []string) string {
	for _, arg := range resolved {
		if !roles.IsPathCategory(arg.role) {
			continue
		}
		for _, p := range protectedPaths {
			if pathnorm.IsWithin(p, arg.policyValue) {
				return p
			}
		}
	}
	for _, v := range heuristicPaths {
		for _, p := range protectedPaths {
			if pathnorm.IsWithin(p, v) {
				return p
			}
		}
	}
	return ""
}

func isFullySandboxContained(resolved map[string]resolvedArg, sandboxDir string) bool {
	if sandboxDir == "" {
		return false
	}
	found := false
	for _, arg := range resolved {
		if !roles.IsPathCategory(arg.role) {
			continue
		}
		if !roles.SandboxSafe[arg.role] {
			return false
		}
		if !pathnorm.IsWithin(sandboxDir, arg.policyValue) {
			return false
		}
		found = true
	}
	return found
}

// untrustedDomainViolation reports whether any url-category argument
// resolves to a domain outside trustedDomains. An empty trustedDomains
// means no allowlist is configured for this server, i.e. no domain gate —
// it must not be treated as "everything is untrusted".
func untrustedDomainViolation(resolved map[string]resolvedArg, trustedDomains []string) bool {
	if len(trustedDomains) == 0 {
		return false
	}
	for _, arg := range resolved {
		if !roles.IsURLCategory(arg.role) {
			continue
		}
		if !pathnorm.DomainAllowed(arg.policyValue, trustedDomains) {
			return true
		}
	}
	return false
}

func usedRoles(annotation ToolAnnotation) []roles.Role {
	seen := make(map[roles.Role]bool)
	for _, r := range annotation.Args {
		if r != roles.None {
			seen[r] = true
		}
	}
	out := make([]roles.Role, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
