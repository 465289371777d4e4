// Package mediator implements the trusted MCP proxy (spec §4.E): the
// agent-facing MCP server half, the per-call mediation pipeline
// (normalize -> policy -> circuit-breaker/escalate -> forward -> audit),
// and root management for approved escalations. pkg/mcp supplies the
// upstream-client half this package fronts.
package mediator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ironcurtain/ironcurtain/pkg/audit"
	"github.com/ironcurtain/ironcurtain/pkg/escalation"
	"github.com/ironcurtain/ironcurtain/pkg/ironlog"
	"github.com/ironcurtain/ironcurtain/pkg/mcp"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
	"github.com/ironcurtain/ironcurtain/pkg/sandbox"
)

// decisionCounter tracks mediated calls by server, tool, and outcome. A
// single package-level vector is registered once; tests that build
// multiple Mediators in the same process reuse it rather than panicking
// on a duplicate registration.
var decisionCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ironcurtain_mediated_calls_total",
		Help: "Mediated tool calls by server, tool, and policy decision.",
	},
	[]string{"server", "tool", "decision"},
)

func init() {
	_ = prometheus.Register(decisionCounter)
}

// ServerSandboxConfig is the per-server sandbox wiring the mediator
// resolves at startup: whether the server's launch command should be
// wrapped in an OS-level jail, and what roots it currently exposes.
type ServerSandboxConfig struct {
	Sandboxed bool
	Jail      *sandbox.Jail
}

// Mediator is the trusted process: it owns the compiled policy engine, the
// upstream MCP connections, the audit log, and the escalation rendezvous,
// and mediates every tool call that passes between them.
type Mediator struct {
	mu sync.Mutex

	engine       *policy.Engine
	annotations  map[string]map[string]policy.ToolAnnotation
	manager      *mcp.Manager
	auditLog     *audit.Log
	rendezvous   *escalation.Rendezvous
	autoApprover *escalation.AutoApprover
	breaker      *RepetitionBreaker
	logger       *ironlog.Logger
	tracer       trace.Tracer

	sandboxDir string
	sandboxes  map[string]ServerSandboxConfig // server name -> sandbox config
	roots      map[string]map[string]bool     // server name -> set of accessible root directories
}

// Config bundles everything NewMediator needs to wire a session.
type Config struct {
	Engine       *policy.Engine
	Annotations  []policy.ToolAnnotation
	Manager      *mcp.Manager
	AuditLog     *audit.Log
	Rendezvous   *escalation.Rendezvous
	AutoApprover *escalation.AutoApprover
	Breaker      *RepetitionBreaker
	Logger       *ironlog.Logger
	SandboxDir   string
	Sandboxes    map[string]ServerSandboxConfig
}

// New builds a Mediator from cfg. A nil Breaker gets a default
// RepetitionBreaker; a nil AutoApprover simply means every escalation goes
// straight to the human rendezvous.
func New(cfg Config) *Mediator {
	annotationIndex := make(map[string]map[string]policy.ToolAnnotation)
	for _, a := range cfg.Annotations {
		if _, ok := annotationIndex[a.ServerName]; !ok {
			annotationIndex[a.ServerName] = make(map[string]policy.ToolAnnotation)
		}
		annotationIndex[a.ServerName][a.ToolName] = a
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewRepetitionBreaker(DefaultRepetitionBreakerConfig())
	}

	roots := make(map[string]map[string]bool)
	for name := range annotationIndex {
		roots[name] = make(map[string]bool)
	}

	return &Mediator{
		engine:       cfg.Engine,
		annotations:  annotationIndex,
		manager:      cfg.Manager,
		auditLog:     cfg.AuditLog,
		rendezvous:   cfg.Rendezvous,
		autoApprover: cfg.AutoApprover,
		breaker:      breaker,
		logger:       cfg.Logger,
		tracer:       otel.Tracer("github.com/ironcurtain/ironcurtain/pkg/mediator"),
		sandboxDir:   cfg.SandboxDir,
		sandboxes:    cfg.Sandboxes,
		roots:        roots,
	}
}

// Mediate is the per-call pipeline described in spec §4.E: it builds an
// immutable request record, normalizes arguments into the transport view,
// consults the policy engine, branches on the decision, and always
// records an audit entry before returning.
func (m *Mediator) Mediate(ctx context.Context, serverName, toolName string, arguments map[string]any) (*mcp.ToolCallResult, error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := m.tracer.Start(ctx, "mediator.Mediate",
		trace.WithAttributes(
			attribute.String("server", serverName),
			attribute.String("tool", toolName),
			attribute.String("requestId", requestID),
		),
	)
	defer span.End()

	req := policy.ToolCallRequest{
		RequestID:  requestID,
		ServerName: serverName,
		ToolName:   toolName,
		Arguments:  arguments,
		Timestamp:  time.Now().UTC(),
	}

	decision := m.engine.Evaluate(req)
	decisionCounter.WithLabelValues(serverName, toolName, string(decision.Status)).Inc()

	annotation := m.lookupAnnotation(serverName, toolName)
	transportArgs, splitErr := splitArgs(annotation, arguments)
	if splitErr != nil {
		transportArgs = arguments
	}

	var (
		result           *mcp.ToolCallResult
		callErr          error
		escalationResult string
		autoApproved     bool
	)

	switch decision.Status {
	case policy.Deny:
		result = deniedResult(decision.Reason)

	case policy.Escalate:
		outcome, approved, wasAuto := m.resolveEscalation(ctx, serverName, toolName, arguments, decision.Reason)
		escalationResult = string(outcome)
		autoApproved = wasAuto
		if !approved {
			result = deniedResult(fmt.Sprintf("escalation %s: %s", outcome, decision.Reason))
			break
		}
		m.expandRoots(serverName, annotation, transportArgs)
		result, callErr = m.forward(ctx, serverName, toolName, transportArgs)

	case policy.Allow:
		if blocked, reason := m.breaker.Check(serverName, toolName, arguments); blocked {
			result = deniedResult(reason)
			break
		}
		result, callErr = m.forward(ctx, serverName, toolName, transportArgs)

	default:
		result = deniedResult("unrecognized policy decision")
	}

	m.audit(auditParams{
		requestID:        requestID,
		serverName:       serverName,
		toolName:         toolName,
		arguments:        transportArgs,
		decision:         decision,
		escalationResult: escalationResult,
		result:           result,
		callErr:          callErr,
		duration:         time.Since(start),
		sandboxed:        m.isSandboxed(serverName),
		autoApproved:     autoApproved,
	})

	return result, callErr
}

func (m *Mediator) lookupAnnotation(serverName, toolName string) policy.ToolAnnotation {
	if byTool, ok := m.annotations[serverName]; ok {
		return byTool[toolName]
	}
	return policy.ToolAnnotation{}
}

// forward invokes the real upstream tool server and annotates upstream
// errors with a sandbox hint when containment is active, per spec §7.
func (m *Mediator) forward(ctx context.Context, serverName, toolName string, transportArgs map[string]any) (*mcp.ToolCallResult, error) {
	if m.manager == nil {
		return deniedResult("no upstream MCP manager configured"), nil
	}
	result, err := m.manager.CallTool(ctx, serverName, toolName, transportArgs)
	if err != nil && m.isSandboxed(serverName) {
		return nil, fmt.Errorf("%w (sandbox may have blocked this)", err)
	}
	return result, err
}

func (m *Mediator) isSandboxed(serverName string) bool {
	if cfg, ok := m.sandboxes[serverName]; ok {
		return cfg.Sandboxed
	}
	return false
}

func deniedResult(reason string) *mcp.ToolCallResult {
	return &mcp.ToolCallResult{
		IsError: true,
		Content: []mcp.ContentBlock{{Type: "text", Text: "DENIED: " + reason}},
	}
}
