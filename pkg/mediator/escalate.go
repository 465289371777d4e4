package mediator

import (
	"context"

	"github.com/ironcurtain/ironcurtain/pkg/escalation"
)

// resolveEscalation consults the auto-approver (if configured) before
// falling through to the human rendezvous. Per spec §4.E/§4.F, the
// auto-approver may only upgrade escalate -> allow; a false judgment is not
// itself a denial, it just means a human decides. wasAuto reports whether
// the approval (if any) came from the auto-approver rather than a human, so
// the audit trail can distinguish the two.
func (m *Mediator) resolveEscalation(ctx context.Context, serverName, toolName string, arguments map[string]any, reason string) (outcome escalation.Decision, approved bool, wasAuto bool) {
	if m.autoApprover != nil {
		judgment, err := m.autoApprover.Judge(ctx, serverName, toolName, arguments, reason)
		if err == nil && judgment.Approved {
			return escalation.Approved, true, true
		}
	}

	if m.rendezvous == nil {
		return escalation.Denied, false, false
	}

	decision, err := m.rendezvous.Escalate(ctx, serverName, toolName, arguments, reason)
	if err != nil {
		return escalation.Denied, false, false
	}
	return decision, decision == escalation.Approved, false
}
