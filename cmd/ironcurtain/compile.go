package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ironcurtain/ironcurtain/pkg/compiler"
	"github.com/ironcurtain/ironcurtain/pkg/config"
	"github.com/ironcurtain/ironcurtain/pkg/ironerr"
	"github.com/ironcurtain/ironcurtain/pkg/mcp"
	"github.com/ironcurtain/ironcurtain/pkg/model"
	"github.com/ironcurtain/ironcurtain/pkg/pathnorm"
)

// runCompilePolicyCommand runs the offline compilation pipeline (spec
// §4.F) end to end: discover tool schemas from the configured MCP
// servers, annotate argument roles, compile the constitution into a rule
// chain, generate scenarios, and verify with bounded LLM-assisted repair.
// It publishes the artifacts under generated/ for the mediator to load on
// its next start, also when verification does not converge, in which case
// it reports the remaining mismatches and returns an error.
func runCompilePolicyCommand(args []string) error {
	configPath, _ := extractFlag(args, "--config")
	homeDir, err := resolveHomeDir(configPath)
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	constitution, err := loadConstitution(homeDir)
	if err != nil {
		return fmt.Errorf("load constitution: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	manager, err := mcp.ManagerFromConfig(ctx, cfg.MCP)
	if err != nil {
		return fmt.Errorf("connect tool servers: %w", err)
	}
	if manager != nil {
		defer manager.Close()
	}

	sandboxDir := config.ResolveProjectRoot(cfg)
	pathnorm.Bootstrap(sandboxDir)

	cacheDir := filepath.Join(homeDir, "generated")
	cache, err := compiler.OpenArtifactCache(filepath.Join(cacheDir, "cache.sqlite"))
	if err != nil {
		return fmt.Errorf("open artifact cache: %w", err)
	}
	defer cache.Close()

	interactionLog, err := compiler.OpenInteractionLog(filepath.Join(cacheDir, "llm-interactions.jsonl"))
	if err != nil {
		return fmt.Errorf("open interaction log: %w", err)
	}
	defer interactionLog.Close()

	annotator := newProviderClient(cfg, cfg.Models.Annotator)
	compilerClient := newProviderClient(cfg, cfg.Models.Compiler)

	pipeline := compiler.NewPipeline(compiler.PipelineConfig{
		Manager:         manager,
		Cache:           cache,
		AnnotatorClient: annotator,
		CompilerClient:  compilerClient,
		JudgeClient:     compilerClient,
		AnnotatorModel:  cfg.Models.Annotator,
		CompilerModel:   cfg.Models.Compiler,
		JudgeModel:      cfg.Models.Compiler,
		Constitution:    constitution,
		ProtectedPaths:  cfg.Sandbox.ProtectedPaths,
		SandboxDir:      sandboxDir,
		TrustedDomains:  cfg.Sandbox.AllowedDomains,
		InteractionLog:  interactionLog,
	})

	result, err := pipeline.Run(ctx)
	if result != nil {
		for stage, cached := range result.StageCached {
			state := "recomputed"
			if cached {
				state = "cached"
			}
			fmt.Printf("%-12s %s\n", stage, state)
		}
	}
	if err != nil && (result == nil || !ironerr.IsCode(err, ironerr.ErrCodeVerifyFailed)) {
		return fmt.Errorf("compilation pipeline: %w", err)
	}

	if err := publishArtifacts(homeDir, result); err != nil {
		return fmt.Errorf("publish artifacts: %w", err)
	}

	if !result.Passed {
		fmt.Fprintf(os.Stderr, "verify: %d scenario mismatch(es) after %d round(s); artifacts written anyway\n", len(result.Mismatches), result.Rounds)
		for _, m := range result.Mismatches {
			fmt.Fprintf(os.Stderr, "  %s.%s: expected %s, got %s (%s)\n", m.Scenario.Request.ServerName, m.Scenario.Request.ToolName, m.Scenario.ExpectedDecision, m.Got, m.GotReason)
		}
		return fmt.Errorf("verification did not converge within %d rounds", result.Rounds)
	}

	fmt.Printf("compiled %d rule(s), verified %d scenario(s) in %d round(s)\n", len(result.Policy.Rules), len(result.Scenarios), result.Rounds)
	return nil
}

// newProviderClient resolves which configured provider backs modelID and
// builds a *model.Client for it. IronCurtain routes every LLM call it
// makes on its own behalf (the compiler's three roles, the auto-approver)
// through OpenRouter by default, matching the teacher's single-gateway
// model routing; a provider that is enabled and whose prefix
// ("anthropic/", "openai/", "google/") starts modelID takes precedence.
// A provider API key without enabled set does not.
func newProviderClient(cfg *config.Config, modelID string) *model.Client {
	provider := cfg.Providers.OpenRouter
	switch {
	case cfg.Providers.Anthropic.Enabled && len(modelID) >= 10 && modelID[:10] == "anthropic/":
		provider = cfg.Providers.Anthropic
	case cfg.Providers.OpenAI.Enabled && len(modelID) >= 7 && modelID[:7] == "openai/":
		provider = cfg.Providers.OpenAI
	case cfg.Providers.Google.Enabled && len(modelID) >= 7 && modelID[:7] == "google/":
		provider = cfg.Providers.Google
	}
	return model.NewClient(provider.APIKey, provider.BaseURL)
}
