package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/audit"
	"github.com/ironcurtain/ironcurtain/pkg/config"
	"github.com/ironcurtain/ironcurtain/pkg/containerexec"
	"github.com/ironcurtain/ironcurtain/pkg/escalation"
	"github.com/ironcurtain/ironcurtain/pkg/ironlog"
	"github.com/ironcurtain/ironcurtain/pkg/mcp"
	"github.com/ironcurtain/ironcurtain/pkg/mediator"
	"github.com/ironcurtain/ironcurtain/pkg/mitm"
	"github.com/ironcurtain/ironcurtain/pkg/observability"
	"github.com/ironcurtain/ironcurtain/pkg/pathnorm"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
	"github.com/ironcurtain/ironcurtain/pkg/sandbox"
)

// runMediateCommand starts the trusted MCP mediator on stdio: it is the
// live counterpart to compile-policy, loading the artifacts that command
// published and mediating every tool call an agent adapter sends until
// stdin closes or the process is signaled.
func runMediateCommand(args []string) error {
	configPath, args := extractFlag(args, "--config")
	if resumeID, _ := extractFlag(args, "--resume"); resumeID != "" {
		fmt.Fprintf(os.Stderr, "warning: --resume %s ignored; the mediator has no per-session state of its own (session resume is the agent adapter's concern)\n", resumeID)
	}

	homeDir, err := resolveHomeDir(configPath)
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := ironlog.NewLogger(homeDir, "mediate")
	if err != nil {
		return fmt.Errorf("open operational log: %w", err)
	}
	defer logger.Close()

	if err := os.MkdirAll(generatedDir(homeDir), 0o755); err != nil {
		return fmt.Errorf("create generated directory: %w", err)
	}
	traceFile, err := os.OpenFile(filepath.Join(generatedDir(homeDir), "trace.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trace log: %w", err)
	}
	defer traceFile.Close()
	tracerProvider, err := observability.InstallTracing(traceFile, "ironcurtain-mediator", version)
	if err != nil {
		return fmt.Errorf("install tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ironlog.CategoryMediator, "trace-shutdown-failed", err.Error(), nil)
		}
	}()

	sandboxDir := config.ResolveProjectRoot(cfg)
	if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
		return fmt.Errorf("create sandbox directory: %w", err)
	}
	pathnorm.Bootstrap(sandboxDir)

	compiledPolicy, err := loadCompiledPolicy(homeDir)
	if err != nil {
		return err
	}
	annotations, err := loadToolAnnotations(homeDir)
	if err != nil {
		return err
	}

	onWarn := func(msg string) { logger.Warn(ironlog.CategoryPolicy, "engine-warning", msg, nil) }
	engine, err := policy.NewEngine(compiledPolicy, annotations, cfg.Sandbox.ProtectedPaths, sandboxDir, cfg.Sandbox.AllowedDomains, onWarn)
	if err != nil {
		return fmt.Errorf("construct policy engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	jailPolicy := sandbox.JailWarn
	if cfg.Sandbox.Mode == "enforce" {
		jailPolicy = sandbox.JailEnforce
	}

	sandboxedServers, err := wrapSandboxedServers(cfg, jailPolicy)
	if err != nil {
		return err
	}

	if cfg.MITM.Enabled {
		proxy, err := startMITMProxy(cfg, logger)
		if err != nil {
			return fmt.Errorf("start MITM proxy: %w", err)
		}
		defer proxy.Close()
	}

	manager, err := mcp.ManagerFromConfig(ctx, cfg.MCP)
	if err != nil {
		return fmt.Errorf("connect tool servers: %w", err)
	}
	if manager == nil {
		return fmt.Errorf("no MCP servers configured (see 'ironcurtain config show')")
	}
	defer manager.Close()

	auditLog, err := audit.Open(filepath.Join(homeDir, "audit.jsonl"), func(err error, entry audit.Entry) {
		logger.Warn(ironlog.CategoryAudit, "audit-write-failed", err.Error(), map[string]any{"requestId": entry.RequestID})
	})
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer auditLog.Close()

	rendezvous, err := escalation.New(cfg.Escalation.RendezvousDir, cfg.Escalation.PollInterval, cfg.Escalation.Timeout)
	if err != nil {
		return fmt.Errorf("open escalation rendezvous: %w", err)
	}

	var autoApprover *escalation.AutoApprover
	if cfg.AutoApprove.Enabled {
		client := newProviderClient(cfg, cfg.Models.AutoApprove)
		autoApprover = escalation.NewAutoApprover(client, cfg.Models.AutoApprove, cfg.Escalation.RendezvousDir, cfg.AutoApprove.TrustedPatterns)
	}

	m := mediator.New(mediator.Config{
		Engine:       engine,
		Annotations:  annotations,
		Manager:      manager,
		AuditLog:     auditLog,
		Rendezvous:   rendezvous,
		AutoApprover: autoApprover,
		Logger:       logger,
		SandboxDir:   sandboxDir,
		Sandboxes:    sandboxedServers,
	})

	server := mediator.NewServer(m, manager, os.Stdin, os.Stdout)
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("mediator session: %w", err)
	}
	return nil
}

// startMITMProxy loads (or mints) the proxy's CA and launches it listening
// on cfg.MITM.SocketPath in the background. Sandboxed tool servers are
// expected to be configured with that socket path in place of the real
// provider hosts, so outbound API traffic is forced through the allowlist
// and sentinel-key swap before it ever leaves the machine.
func startMITMProxy(cfg *config.Config, logger *ironlog.Logger) (*mitm.Proxy, error) {
	ca, err := mitm.LoadOrCreateCA(cfg.MITM.CADir)
	if err != nil {
		return nil, err
	}

	entries := make([]mitm.Entry, len(cfg.MITM.Allowlist))
	hosts := make([]string, 0, len(cfg.MITM.Allowlist))
	for i, e := range cfg.MITM.Allowlist {
		entries[i] = mitm.Entry{Host: e.Host, Method: e.Method, Path: e.Path}
		hosts = append(hosts, e.Host)
	}
	if err := ca.Warm(hosts); err != nil {
		return nil, err
	}
	allowlist := mitm.NewAllowlist(entries)
	sentinel := mitm.NewSentinelSwapper(cfg.MITM.SentinelKeys)

	proxy := mitm.New(ca, allowlist, sentinel, logger, cfg.MITM.SocketPath)

	go func() {
		if err := proxy.Serve(); err != nil {
			logger.Warn(ironlog.CategoryMITM, "proxy-exited", err.Error(), nil)
		}
	}()

	return proxy, nil
}

// wrapSandboxedServers resolves the configured containment backend per
// MCP server and, when containment is ready, rewrites the server's launch
// command to run inside it. Config has no per-server sandbox toggle (spec
// §6 only documents one global sandbox block), so every enabled server
// shares the same backend and jail policy; a server that isn't ready under
// "warn" is left unwrapped and recorded as unsandboxed for the audit trail.
//
// sandbox.ContainerBackend selects between the native bwrap jail
// (pkg/sandbox) and a docker-compose-backed jail (pkg/containerexec) for
// hosts where bubblewrap isn't an option (e.g. non-Linux operators running
// tool servers through a Linux container instead).
func wrapSandboxedServers(cfg *config.Config, jailPolicy sandbox.JailPolicy) (map[string]mediator.ServerSandboxConfig, error) {
	sandboxDir := config.ResolveProjectRoot(cfg)
	result := make(map[string]mediator.ServerSandboxConfig, len(cfg.MCP.Servers))

	if cfg.Sandbox.ContainerBackend == "docker" {
		return wrapDockerSandboxedServers(cfg, sandboxDir, jailPolicy)
	}

	for i := range cfg.MCP.Servers {
		srv := &cfg.MCP.Servers[i]
		if srv.Disabled {
			continue
		}

		jail := sandbox.NewJail(sandbox.JailConfig{
			SandboxDir:       sandboxDir,
			NetworkSocket:    cfg.MITM.SocketPath,
			Policy:           jailPolicy,
			DropCapabilities: true,
		})

		ready, err := jail.Ready()
		if err != nil {
			return nil, fmt.Errorf("sandbox for %s: %w", srv.Name, err)
		}

		if ready {
			wrapped := jail.WrapLaunch(srv.Command, srv.Args)
			srv.Command = wrapped.Path
			srv.Args = wrapped.Args[1:]
		}

		result[srv.Name] = mediator.ServerSandboxConfig{Sandboxed: ready, Jail: jail}
	}

	return result, nil
}

// wrapDockerSandboxedServers wraps every enabled server's launch command
// in a `docker compose exec` into the shared docker-compose.sandbox.yml
// service, instead of a native bwrap jail. Under "enforce" a missing
// compose file refuses to start; under "warn" it logs the reason to
// stderr and leaves the server unwrapped.
func wrapDockerSandboxedServers(cfg *config.Config, sandboxDir string, jailPolicy sandbox.JailPolicy) (map[string]mediator.ServerSandboxConfig, error) {
	limits, err := containerexec.ParseResourceLimits(cfg.Sandbox.MemoryLimit, cfg.Sandbox.CPULimit)
	if err != nil {
		return nil, err
	}
	if limits.MemoryBytes > 0 || limits.CPUMillis > 0 {
		fmt.Fprintf(os.Stderr, "sandbox resource limits: memory=%d bytes cpu=%dm (enforced by the docker-compose.sandbox.yml service definition)\n", limits.MemoryBytes, limits.CPUMillis)
	}

	result := make(map[string]mediator.ServerSandboxConfig, len(cfg.MCP.Servers))

	composeFile, err := containerexec.FindComposeFile(sandboxDir)
	if err != nil {
		if jailPolicy == sandbox.JailEnforce {
			return nil, fmt.Errorf("sandbox.container_backend is \"docker\" and policy is enforce: %w", err)
		}
		fmt.Fprintf(os.Stderr, "warning: %v; tool servers will run unsandboxed\n", err)
		for i := range cfg.MCP.Servers {
			srv := &cfg.MCP.Servers[i]
			if srv.Disabled {
				continue
			}
			result[srv.Name] = mediator.ServerSandboxConfig{Sandboxed: false}
		}
		return result, nil
	}

	for i := range cfg.MCP.Servers {
		srv := &cfg.MCP.Servers[i]
		if srv.Disabled {
			continue
		}

		runner := containerexec.NewRunner(composeFile, srv.Name, sandboxDir)
		wrapped := runner.WrapLaunch(srv.Command, srv.Args)
		srv.Command = wrapped.Path
		srv.Args = wrapped.Args[1:]

		result[srv.Name] = mediator.ServerSandboxConfig{Sandboxed: true}
	}

	return result, nil
}
