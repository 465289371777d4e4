package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ironcurtain/ironcurtain/pkg/config"
)

// runConfigCommand implements "config [show|path|check|edit]", mirroring
// the agent adapter CLI's own config subcommand shape even though that
// adapter's config.yaml is a different file from IronCurtain's config.json
// (spec §6).
func runConfigCommand(args []string) error {
	configPath, args := extractFlag(args, "--config")

	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		return runConfigShow(configPath)
	case "path":
		return runConfigPath(configPath)
	case "check":
		return runConfigCheck(configPath)
	case "edit":
		return runConfigEdit(configPath)
	default:
		return fmt.Errorf("unknown config command: %s (use show, path, check, or edit)", sub)
	}
}

func runConfigShow(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Models:")
	fmt.Printf("  Compiler:     %s\n", cfg.Models.Compiler)
	fmt.Printf("  Annotator:    %s\n", cfg.Models.Annotator)
	fmt.Printf("  Auto-approve: %s\n", cfg.Models.AutoApprove)
	fmt.Println()
	fmt.Println("Sandbox:")
	fmt.Printf("  Directory: %s\n", cfg.Sandbox.Dir)
	fmt.Printf("  Mode:      %s\n", cfg.Sandbox.Mode)
	fmt.Printf("  Protected: %v\n", cfg.Sandbox.ProtectedPaths)
	fmt.Println()
	fmt.Println("Escalation:")
	fmt.Printf("  Rendezvous: %s\n", cfg.Escalation.RendezvousDir)
	fmt.Printf("  Timeout:    %s\n", cfg.Escalation.Timeout)
	fmt.Printf("  Auto-approve enabled: %v\n", cfg.AutoApprove.Enabled)
	fmt.Println()
	fmt.Println("MITM proxy:")
	fmt.Printf("  Enabled: %v\n", cfg.MITM.Enabled)
	fmt.Printf("  CA dir:  %s\n", cfg.MITM.CADir)
	fmt.Println()
	fmt.Println("MCP servers:")
	for _, s := range cfg.MCP.Servers {
		status := "enabled"
		if s.Disabled {
			status = "disabled"
		}
		fmt.Printf("  - %s (%s): %s\n", s.Name, status, s.Command)
	}
	return nil
}

func runConfigPath(configPath string) error {
	if configPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}
	homeDir, err := resolveHomeDir(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("config:       %s\n", configPath)
	fmt.Printf("constitution: %s\n", filepath.Join(homeDir, "constitution-user.md"))
	fmt.Printf("generated:    %s\n", generatedDir(homeDir))
	fmt.Printf("audit log:    %s\n", filepath.Join(homeDir, "audit.jsonl"))
	fmt.Printf("ca:           %s\n", filepath.Join(homeDir, "ca"))
	fmt.Printf("sandbox:      %s\n", filepath.Join(homeDir, "sandbox"))
	return nil
}

func runConfigCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Dependencies:")
	if _, err := exec.LookPath("git"); err == nil {
		fmt.Println("  git: found")
	} else {
		fmt.Println("  git: not found (named-remote resolution for git-remote-url arguments will fail closed to escalate)")
	}
	if cfg.Sandbox.Mode == "enforce" {
		if _, err := exec.LookPath("bwrap"); err != nil {
			fmt.Println("  bwrap: not found, sandbox.mode is \"enforce\" -- mediate will refuse to start sandboxed servers")
		} else {
			fmt.Println("  bwrap: found")
		}
	}

	hasProvider := cfg.Providers.OpenRouter.APIKey != "" || cfg.Providers.OpenAI.APIKey != "" ||
		cfg.Providers.Anthropic.APIKey != "" || cfg.Providers.Google.APIKey != ""
	if !hasProvider {
		fmt.Println()
		fmt.Println("warning: no provider API key configured; compile-policy and auto-approve need one")
	}

	if len(cfg.MCP.Servers) == 0 {
		fmt.Println("warning: no MCP servers configured; there is nothing to mediate")
	}

	if homeDir, err := resolveHomeDir(configPath); err == nil {
		if _, err := os.Stat(filepath.Join(generatedDir(homeDir), "compiled-policy.json")); os.IsNotExist(err) {
			fmt.Println("warning: no compiled policy found; run 'ironcurtain compile-policy' before 'mediate'")
		}
	}

	fmt.Println()
	fmt.Println("config OK")
	return nil
}

func runConfigEdit(configPath string) error {
	if configPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if err := config.Save(cfg, configPath); err != nil {
			return fmt.Errorf("create default config: %w", err)
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, configPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", editor, err)
	}

	if _, err := config.Load(configPath); err != nil {
		return fmt.Errorf("saved config is invalid: %w", err)
	}
	fmt.Printf("Saved %s\n", configPath)
	return nil
}
