package mediator

import (
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/audit"
	"github.com/ironcurtain/ironcurtain/pkg/ironlog"
	"github.com/ironcurtain/ironcurtain/pkg/mcp"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

// auditParams bundles everything one call's audit.Entry is built from.
type auditParams struct {
	requestID        string
	serverName       string
	toolName         string
	arguments        map[string]any
	decision         policy.PolicyDecision
	escalationResult string
	result           *mcp.ToolCallResult
	callErr          error
	duration         time.Duration
	sandboxed        bool
	autoApproved     bool
}

// audit converts one call's outcome into an audit.Entry and appends it. A
// nil audit log (e.g. in unit tests) is a silent no-op rather than a panic.
func (m *Mediator) audit(p auditParams) {
	if m.auditLog == nil {
		return
	}

	result := audit.Result{Status: "success"}
	switch {
	case p.callErr != nil:
		result = audit.Result{Status: "error", Error: p.callErr.Error()}
	case p.result != nil && p.result.IsError:
		result = audit.Result{Status: "denied"}
	}

	sandboxed := p.sandboxed
	entry := audit.Entry{
		RequestID:  p.requestID,
		ServerName: p.serverName,
		ToolName:   p.toolName,
		Arguments:  p.arguments,
		PolicyDecision: audit.PolicyDecision{
			Status: string(p.decision.Status),
			Rule:   p.decision.Rule,
			Reason: p.decision.Reason,
		},
		EscalationResult: p.escalationResult,
		Result:           result,
		DurationMs:       p.duration.Milliseconds(),
		Sandboxed:        &sandboxed,
	}
	if p.escalationResult != "" {
		autoApproved := p.autoApproved
		entry.AutoApproved = &autoApproved
	}

	m.auditLog.Append(entry)

	if m.logger != nil && result.Status != "success" {
		m.logger.Warn(ironlog.CategoryMediator, "tool_call_"+result.Status, p.serverName+"."+p.toolName+": "+p.decision.Reason, map[string]any{
			"requestId": p.requestID,
		})
	}
}
