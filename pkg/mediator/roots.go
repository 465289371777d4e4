package mediator

import (
	"path/filepath"

	"github.com/ironcurtain/ironcurtain/pkg/policy"
	"github.com/ironcurtain/ironcurtain/pkg/roles"
)

// expandRoots records the directories an approved escalation touched, per
// spec §4.E: once a human (or the auto-approver) has approved a call
// reaching outside the sandbox, the directory it resolved to is remembered
// for the rest of the session so it shows up in AccessibleRoots and in the
// audit trail. It does not itself change future policy decisions — the
// compiled rule chain is still consulted on every call — it is bookkeeping
// for the operator, not a second source of truth.
func (m *Mediator) expandRoots(serverName string, annotation policy.ToolAnnotation, transportArgs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.roots[serverName]
	if !ok {
		set = make(map[string]bool)
		m.roots[serverName] = set
	}

	for name, value := range transportArgs {
		role, ok := annotation.Args[name]
		if !ok || !roles.IsPathCategory(role) {
			continue
		}
		raw, ok := value.(string)
		if !ok || raw == "" {
			continue
		}
		set[filepath.Dir(raw)] = true
	}
}

// AccessibleRoots returns the directories outside the sandbox that have
// been approved for serverName so far this session, in no particular
// order — callers that need approval ordering should consult the audit
// log instead.
func (m *Mediator) AccessibleRoots(serverName string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.roots[serverName]
	out := make([]string, 0, len(set))
	for dir := range set {
		out = append(out, dir)
	}
	return out
}
