package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

const compilerSystemPromptTemplate = `You are the constitution compiler for a tool-call policy engine. You turn a
natural-language "constitution" (a set of principles an operator has
written about what an autonomous agent should and should not be allowed to
do) into a declarative rule chain the engine evaluates deterministically.

Ground rules for the rule chain you produce:
- Rules are evaluated first-match-wins, per argument role, within a tool
  call; never rely on rule ordering to express precedence you haven't made
  explicit in each rule's own condition.
- Never write a rule named with the "structural-" prefix; those names are
  reserved for invariants the engine enforces before your rules ever run,
  and each already returns a final decision on its own (protected-path
  deny, sandbox-allow auto-allow, unknown-tool deny, domain-escalate —
  none of these fall through to your rule chain). Do not try to
  reimplement them.
- A call that matches nothing defaults to escalate, never deny or allow;
  don't add a catch-all "default-deny" rule, it will be rejected.
- Every path in a "within" list must be an absolute path.
- Every role you reference must be one of the tool's annotated argument
  roles, listed below for every known tool.

Tool annotations:
%s

Respond with a single JSON object, no prose, matching this shape:

{"rules": [{"name": "...", "description": "...", "principle": "...", "if": {"server": ["..."], "tool": ["..."], "sideEffects": true|false, "roles": ["..."], "paths": {"roles": ["..."], "within": ["..."]}, "domains": {"roles": ["..."], "allowed": ["..."]}, "lists": [{"roles": ["..."], "allowed": ["..."], "matchType": "domains|emails|identifiers"}]}, "then": "allow|deny|escalate", "reason": "..."}], "listDefinitions": {"name": ["value", ...]}}

"server"/"tool" are sets: a rule can apply to several servers or tools at
once. "sideEffects" is a plain boolean, not a tag list. A "lists" entry's
"matchType" selects how its "allowed" values are interpreted: "domains" for
hostname allowlists (same wildcard-prefix semantics as the "domains"
condition), "emails" for address allowlists, "identifiers" for exact-match
tokens like branch names or usernames.

Omit any "if" sub-field that doesn't apply to a rule; don't include empty
objects or arrays.`

// annotationsGuidanceBlock renders every known tool's name, comment, and
// argument roles for the compiler prompt.
func annotationsGuidanceBlock(annotations []policy.ToolAnnotation) string {
	var b strings.Builder
	for _, a := range annotations {
		fmt.Fprintf(&b, "- %s.%s: %s\n", a.ServerName, a.ToolName, a.Comment)
		for arg, role := range a.Args {
			fmt.Fprintf(&b, "    %s -> %s\n", arg, role)
		}
	}
	return b.String()
}

type compilerRulesResponse struct {
	Rules           []policy.CompiledRule `json:"rules"`
	ListDefinitions map[string][]string   `json:"listDefinitions"`
}

// compileConstitution runs a single LLM turn translating a constitution
// into a candidate rule chain, then validates it by attempting to
// construct a real policy.Engine from it — reusing the engine's own
// static-validation logic (reserved rule names, unknown roles, relative
// "within" paths, undefined list references) rather than duplicating it
// here. A validation failure is returned to the caller as an error so the
// verify/repair loop can feed it back to the model as a correction
// request.
func compileConstitution(ctx context.Context, client ChatCompleter, modelID, constitution string, annotations []policy.ToolAnnotation, protectedPaths []string, sandboxDir string, trustedDomains []string) (*policy.CompiledPolicy, error) {
	system := fmt.Sprintf(compilerSystemPromptTemplate, annotationsGuidanceBlock(annotations))
	user := "Constitution:\n" + constitution

	raw, err := complete(ctx, client, modelID, system, user)
	if err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodeLLMCallFailed, "compile constitution")
	}

	candidate, err := parseAndValidateRules(raw, annotations, protectedPaths, sandboxDir, trustedDomains)
	if err != nil {
		return nil, err
	}
	candidate.ConstitutionHash = hashStrings(constitution)
	return candidate, nil
}

// parseAndValidateRules parses a compiler response and constructs a
// throwaway policy.Engine purely to exercise its validation; the engine
// itself is discarded, only the error (or lack of one) matters here.
func parseAndValidateRules(raw string, annotations []policy.ToolAnnotation, protectedPaths []string, sandboxDir string, trustedDomains []string) (*policy.CompiledPolicy, error) {
	var parsed compilerRulesResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodePolicyValidation, "parse compiled rules")
	}

	candidate := &policy.CompiledPolicy{
		Rules:           parsed.Rules,
		ListDefinitions: parsed.ListDefinitions,
	}
	if candidate.ListDefinitions == nil {
		candidate.ListDefinitions = map[string][]string{}
	}

	if _, err := policy.NewEngine(candidate, annotations, protectedPaths, sandboxDir, trustedDomains, nil); err != nil {
		return nil, ironerr.Wrap(err, ironerr.ErrCodePolicyValidation, "validate compiled policy")
	}

	return candidate, nil
}
