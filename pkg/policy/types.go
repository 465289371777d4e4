package policy

import (
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

// Decision is the closed set of outcomes a policy evaluation can reach.
type Decision string

const (
	Allow    Decision = "allow"
	Deny     Decision = "deny"
	Escalate Decision = "escalate"
)

// severity orders decisions for combining multiple role matches on one
// call: deny beats escalate beats allow.
func (d Decision) severity() int {
	switch d {
	case Deny:
		return 3
	case Escalate:
		return 2
	case Allow:
		return 1
	default:
		return 0
	}
}

// ToolCallRequest is what the mediator builds for every tool call it
// intercepts, before any normalization has been applied.
type ToolCallRequest struct {
	RequestID  string
	ServerName string
	ToolName   string
	Arguments  map[string]any
	Timestamp  time.Time
}

// ToolAnnotation describes one tool's side effects and the role each of
// its arguments plays, as produced by the offline compiler.
type ToolAnnotation struct {
	ServerName  string                `json:"serverName"`
	ToolName    string                `json:"toolName"`
	Comment     string                `json:"comment"`
	SideEffects bool                  `json:"sideEffects"`
	Args        map[string]roles.Role `json:"args"`
}

// PathCondition restricts a condition to arguments of the given roles
// whose resolved value must fall within one of a set of absolute
// directories.
type PathCondition struct {
	Roles  []roles.Role `json:"roles"`
	Within []string     `json:"within"`
}

// DomainCondition restricts a condition to arguments of the given roles
// whose extracted domain must match one of an allowlist.
type DomainCondition struct {
	Roles   []roles.Role `json:"roles"`
	Allowed []string     `json:"allowed"`
}

// ListMatchType controls how ListCondition.Allowed is interpreted.
type ListMatchType string

const (
	MatchDomains     ListMatchType = "domains"
	MatchEmails      ListMatchType = "emails"
	MatchIdentifiers ListMatchType = "identifiers"
)

// ListCondition restricts a condition to arguments of the given roles
// whose value must match an allowlist, either literally or by glob. A
// compiled rule's Allowed may be a named list reference, expanded into
// literal values at engine construction time.
type ListCondition struct {
	Roles     []roles.Role  `json:"roles"`
	Allowed   []string      `json:"allowed"`
	ListName  string        `json:"listName,omitempty"`
	MatchType ListMatchType `json:"matchType"`
}

// Condition is the predicate half of a compiled rule. Every non-empty or
// non-nil field must hold for the rule to match; empty/nil fields are
// ignored. Server and Tool are sets (a rule can match several servers or
// tools at once); SideEffects is a plain boolean predicate, not a tag set.
type Condition struct {
	Server      []string         `json:"server,omitempty"`
	Tool        []string         `json:"tool,omitempty"`
	SideEffects *bool            `json:"sideEffects,omitempty"`
	Roles       []roles.Role     `json:"roles,omitempty"`
	Paths       *PathCondition   `json:"paths,omitempty"`
	Domains     *DomainCondition `json:"domains,omitempty"`
	Lists       []ListCondition  `json:"lists,omitempty"`
}

// CompiledRule is one entry in a compiled policy's rule chain.
type CompiledRule struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Principle   string    `json:"principle"`
	If          Condition `json:"if"`
	Then        Decision  `json:"then"`
	Reason      string    `json:"reason"`
}

// CompiledPolicy is the on-disk artifact the compiler produces and the
// engine loads: a first-match-wins rule chain plus the named list
// definitions rules may reference.
type CompiledPolicy struct {
	GeneratedAt      time.Time           `json:"generatedAt"`
	ConstitutionHash string              `json:"constitutionHash"`
	InputHash        string              `json:"inputHash"`
	Rules            []CompiledRule      `json:"rules"`
	ListDefinitions  map[string][]string `json:"listDefinitions"`
}

// PolicyDecision is the result of evaluating one ToolCallRequest.
type PolicyDecision struct {
	Status Decision `json:"status"`
	Rule   string   `json:"rule"`
	Reason string   `json:"reason"`
}
