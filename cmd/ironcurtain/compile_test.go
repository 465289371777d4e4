package main

import (
	"testing"

	"github.com/ironcurtain/ironcurtain/pkg/config"
)

func TestNewProviderClientPrefersEnabledAnthropicForAnthropicModel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"
	cfg.Providers.Anthropic.Enabled = true
	cfg.Providers.Anthropic.APIKey = "anthropic-key"

	client := newProviderClient(cfg, "anthropic/claude-sonnet")
	if client == nil {
		t.Fatal("expected a non-nil client")
	}
}

func TestNewProviderClientFallsBackToOpenRouterWhenProviderDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"
	// Anthropic is not enabled even though the model ID looks like one,
	// so the call must fall back to the default OpenRouter gateway.
	cfg.Providers.Anthropic.APIKey = "anthropic-key"

	client := newProviderClient(cfg, "anthropic/claude-sonnet")
	if client == nil {
		t.Fatal("expected a non-nil client")
	}
}

func TestNewProviderClientDefaultsToOpenRouterForUnknownPrefix(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"

	client := newProviderClient(cfg, "mistral/mixtral")
	if client == nil {
		t.Fatal("expected a non-nil client")
	}
}
