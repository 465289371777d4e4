package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// loadAndMerge reads a JSON config file and merges it into cfg, tracking
// fields the current schema doesn't recognize so Save can round-trip them.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := json.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	cfg.unknown = unrecognizedFields(raw)
	return nil
}

// unrecognizedFields diffs raw's top-level keys against the known Config
// schema and returns the ones that don't belong to any declared field, so
// they survive a load-then-save round trip untouched.
func unrecognizedFields(raw map[string]any) map[string]any {
	known := map[string]bool{
		"models": true, "providers": true, "budget": true, "auto_approve": true,
		"escalation": true, "mcp": true, "sandbox": true, "mitm": true,
		"web_search": true, "signal": true, "audit": true, "retry_policy": true,
	}
	unknown := make(map[string]any)
	for k, v := range raw {
		if !known[k] {
			unknown[k] = v
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return unknown
}

// mergeConfigs merges override into base, treating a zero value for a
// scalar field as "not set". The raw JSON object is consulted only for
// booleans and lists: an explicit false or empty list overrides base,
// while an explicit "" or 0 does not.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Models.Compiler != "" {
		base.Models.Compiler = override.Models.Compiler
	}
	if override.Models.Annotator != "" {
		base.Models.Annotator = override.Models.Annotator
	}
	if override.Models.AutoApprove != "" {
		base.Models.AutoApprove = override.Models.AutoApprove
	}

	mergeProvider(&base.Providers.OpenRouter, override.Providers.OpenRouter, raw, "providers", "openrouter")
	mergeProvider(&base.Providers.OpenAI, override.Providers.OpenAI, raw, "providers", "openai")
	mergeProvider(&base.Providers.Anthropic, override.Providers.Anthropic, raw, "providers", "anthropic")
	mergeProvider(&base.Providers.Google, override.Providers.Google, raw, "providers", "google")

	if override.Budget.SessionBudget != 0 {
		base.Budget.SessionBudget = override.Budget.SessionBudget
	}
	if override.Budget.DailyBudget != 0 {
		base.Budget.DailyBudget = override.Budget.DailyBudget
	}
	if override.Budget.MonthlyBudget != 0 {
		base.Budget.MonthlyBudget = override.Budget.MonthlyBudget
	}
	if override.Budget.AutoStopAt != 0 {
		base.Budget.AutoStopAt = override.Budget.AutoStopAt
	}

	if boolFieldSet(raw, "auto_approve", "enabled") {
		base.AutoApprove.Enabled = override.AutoApprove.Enabled
	}
	if override.AutoApprove.Model != "" {
		base.AutoApprove.Model = override.AutoApprove.Model
	}
	if override.AutoApprove.MaxUpgradesPerHour != 0 {
		base.AutoApprove.MaxUpgradesPerHour = override.AutoApprove.MaxUpgradesPerHour
	}
	if boolFieldSet(raw, "auto_approve", "trusted_patterns") {
		base.AutoApprove.TrustedPatterns = append([]string{}, override.AutoApprove.TrustedPatterns...)
	}

	if override.Escalation.RendezvousDir != "" {
		base.Escalation.RendezvousDir = override.Escalation.RendezvousDir
	}
	if override.Escalation.PollInterval != 0 {
		base.Escalation.PollInterval = override.Escalation.PollInterval
	}
	if override.Escalation.Timeout != 0 {
		base.Escalation.Timeout = override.Escalation.Timeout
	}

	if boolFieldSet(raw, "mcp", "enabled") {
		base.MCP.Enabled = override.MCP.Enabled
	}
	if boolFieldSet(raw, "mcp", "servers") {
		base.MCP.Servers = append([]MCPServerConfig{}, override.MCP.Servers...)
	}

	if override.Sandbox.Dir != "" {
		base.Sandbox.Dir = override.Sandbox.Dir
	}
	if boolFieldSet(raw, "sandbox", "protected_paths") {
		base.Sandbox.ProtectedPaths = append([]string{}, override.Sandbox.ProtectedPaths...)
	}
	if boolFieldSet(raw, "sandbox", "allowed_domains") {
		base.Sandbox.AllowedDomains = append([]string{}, override.Sandbox.AllowedDomains...)
	}
	if override.Sandbox.Mode != "" {
		base.Sandbox.Mode = override.Sandbox.Mode
	}
	if override.Sandbox.ContainerBackend != "" {
		base.Sandbox.ContainerBackend = override.Sandbox.ContainerBackend
	}

	if boolFieldSet(raw, "mitm", "enabled") {
		base.MITM.Enabled = override.MITM.Enabled
	}
	if override.MITM.CADir != "" {
		base.MITM.CADir = override.MITM.CADir
	}
	if override.MITM.SocketPath != "" {
		base.MITM.SocketPath = override.MITM.SocketPath
	}
	if boolFieldSet(raw, "mitm", "allowlist") {
		base.MITM.Allowlist = append([]MITMAllowlistEntry{}, override.MITM.Allowlist...)
	}
	if len(override.MITM.SentinelKeys) > 0 {
		if base.MITM.SentinelKeys == nil {
			base.MITM.SentinelKeys = make(map[string]string)
		}
		for k, v := range override.MITM.SentinelKeys {
			base.MITM.SentinelKeys[k] = v
		}
	}

	if boolFieldSet(raw, "web_search", "enabled") {
		base.WebSearch.Enabled = override.WebSearch.Enabled
	}
	if override.WebSearch.Provider != "" {
		base.WebSearch.Provider = override.WebSearch.Provider
	}
	if override.WebSearch.APIKey != "" {
		base.WebSearch.APIKey = override.WebSearch.APIKey
	}

	if boolFieldSet(raw, "signal", "enabled") {
		base.Signal.Enabled = override.Signal.Enabled
	}
	if override.Signal.PhoneNumber != "" {
		base.Signal.PhoneNumber = override.Signal.PhoneNumber
	}
	if override.Signal.BotToken != "" {
		base.Signal.BotToken = override.Signal.BotToken
	}

	if override.Audit.Path != "" {
		base.Audit.Path = override.Audit.Path
	}

	if override.RetryPolicy.MaxRetries != 0 {
		base.RetryPolicy.MaxRetries = override.RetryPolicy.MaxRetries
	}
	if override.RetryPolicy.InitialBackoff != 0 {
		base.RetryPolicy.InitialBackoff = override.RetryPolicy.InitialBackoff
	}
	if override.RetryPolicy.MaxBackoff != 0 {
		base.RetryPolicy.MaxBackoff = override.RetryPolicy.MaxBackoff
	}
	if override.RetryPolicy.Multiplier != 0 {
		base.RetryPolicy.Multiplier = override.RetryPolicy.Multiplier
	}
}

func mergeProvider(base *ProviderConfig, override ProviderConfig, raw map[string]any, path ...string) {
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if boolFieldSet(raw, append(append([]string{}, path...), "enabled")...) {
		base.Enabled = override.Enabled
	}
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
