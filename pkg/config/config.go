// Package config loads and persists IronCurtain's user configuration:
// model IDs, provider credentials, budget caps, auto-approve settings,
// web-search config, server credentials, and the Signal bot stub. Layering
// is built-in defaults, then ~/.ironcurtain/config.json, then environment
// variable overrides for secrets and budgets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the root IronCurtain configuration document.
type Config struct {
	Models      ModelsConfig      `json:"models"`
	Providers   ProvidersConfig   `json:"providers"`
	Budget      BudgetConfig      `json:"budget"`
	AutoApprove AutoApproveConfig `json:"auto_approve"`
	Escalation  EscalationConfig  `json:"escalation"`
	MCP         MCPConfig         `json:"mcp"`
	Sandbox     SandboxConfig     `json:"sandbox"`
	MITM        MITMConfig        `json:"mitm"`
	WebSearch   WebSearchConfig   `json:"web_search"`
	Signal      SignalConfig      `json:"signal"`
	Audit       AuditConfig       `json:"audit"`
	RetryPolicy RetryPolicyConfig `json:"retry_policy"`

	// unknown holds fields not recognized by this version of the schema, so
	// that re-saving a config never silently drops an operator's forward- or
	// backward-compatible customizations.
	unknown map[string]any `json:"-"`
}

// ModelsConfig names the model IDs used by the compilation pipeline and the
// escalation auto-approver. IronCurtain never routes agent traffic through
// a model itself (that's the mediated agent's concern); these are the only
// two places IronCurtain calls an LLM on its own behalf.
type ModelsConfig struct {
	Compiler    string `json:"compiler"`
	Annotator   string `json:"annotator"`
	AutoApprove string `json:"auto_approve"`
}

// ProvidersConfig holds API credentials for the models above.
type ProvidersConfig struct {
	OpenRouter ProviderConfig `json:"openrouter"`
	OpenAI     ProviderConfig `json:"openai"`
	Anthropic  ProviderConfig `json:"anthropic"`
	Google     ProviderConfig `json:"google"`
}

// ProviderConfig is a single model provider's credentials.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Enabled bool   `json:"enabled"`
}

// BudgetConfig caps spend across the compiler's LLM calls and the
// auto-approver's LLM calls.
type BudgetConfig struct {
	SessionBudget float64 `json:"session_budget"`
	DailyBudget   float64 `json:"daily_budget"`
	MonthlyBudget float64 `json:"monthly_budget"`
	AutoStopAt    float64 `json:"auto_stop_at"`
}

// AutoApproveConfig governs the escalation rendezvous's optional LLM
// auto-approver, which may only upgrade escalate decisions to allow, never
// the reverse.
type AutoApproveConfig struct {
	Enabled            bool     `json:"enabled"`
	Model              string   `json:"model"`
	MaxUpgradesPerHour int      `json:"max_upgrades_per_hour"`
	TrustedPatterns    []string `json:"trusted_patterns"`
}

// EscalationConfig controls the file-based rendezvous between the mediator
// and whatever approves escalations (a human, or the auto-approver).
type EscalationConfig struct {
	RendezvousDir string        `json:"rendezvous_dir"`
	PollInterval  time.Duration `json:"poll_interval"`
	Timeout       time.Duration `json:"timeout"`
}

// MCPConfig lists the upstream tool servers the mediator fronts.
type MCPConfig struct {
	Enabled bool              `json:"enabled"`
	Servers []MCPServerConfig `json:"servers"`
}

// MCPServerConfig is one upstream MCP tool server launch spec.
type MCPServerConfig struct {
	Name     string            `json:"name"`
	Command  string            `json:"command"`
	Args     []string          `json:"args"`
	Env      map[string]string `json:"env"`
	Timeout  time.Duration     `json:"timeout"`
	Disabled bool              `json:"disabled"`
}

// SandboxConfig configures the agent-writable directory and the OS-level
// jail wrapping tool-server launches.
type SandboxConfig struct {
	Dir              string   `json:"dir"`
	ProtectedPaths   []string `json:"protected_paths"`
	AllowedDomains   []string `json:"allowed_domains"`
	Mode             string   `json:"mode"`              // "enforce" | "warn"
	ContainerBackend string   `json:"container_backend"` // "native" | "docker"
	MemoryLimit      string   `json:"memory_limit"`       // e.g. "512Mi", only meaningful for container_backend "docker"
	CPULimit         string   `json:"cpu_limit"`          // e.g. "1" or "500m", only meaningful for container_backend "docker"
}

// MITMConfig configures the CA-backed API proxy and its per-provider
// endpoint allowlists and sentinel-key swaps.
type MITMConfig struct {
	Enabled      bool                 `json:"enabled"`
	CADir        string               `json:"ca_dir"`
	SocketPath   string               `json:"socket_path"`
	Allowlist    []MITMAllowlistEntry `json:"allowlist"`
	SentinelKeys map[string]string    `json:"sentinel_keys"` // sentinel value -> real API key
}

// MITMAllowlistEntry is one {host, method, path} tuple the inner handler
// permits through to the real upstream.
type MITMAllowlistEntry struct {
	Host   string `json:"host"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// WebSearchConfig configures an optional web-search tool the agent may call
// through the mediator.
type WebSearchConfig struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// SignalConfig is the stub configuration for `setup-signal`; the transport
// itself is out of scope (see Non-goals) but the config shape is retained
// so a config round-trip never drops it.
type SignalConfig struct {
	Enabled     bool   `json:"enabled"`
	PhoneNumber string `json:"phone_number"`
	BotToken    string `json:"bot_token"`
}

// AuditConfig names the append-only audit log location.
type AuditConfig struct {
	Path string `json:"path"`
}

// RetryPolicyConfig governs retriable LLM calls in the compilation pipeline.
type RetryPolicyConfig struct {
	MaxRetries     int           `json:"max_retries"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	Multiplier     float64       `json:"multiplier"`
}

// DefaultConfig returns IronCurtain's built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".ironcurtain")

	return &Config{
		Models: ModelsConfig{
			Compiler:    "anthropic/claude-sonnet-4.5",
			Annotator:   "anthropic/claude-sonnet-4.5",
			AutoApprove: "anthropic/claude-haiku-4.5",
		},
		Providers: ProvidersConfig{
			OpenRouter: ProviderConfig{BaseURL: "https://openrouter.ai/api/v1"},
			OpenAI:     ProviderConfig{BaseURL: "https://api.openai.com/v1"},
			Anthropic:  ProviderConfig{BaseURL: "https://api.anthropic.com"},
			Google:     ProviderConfig{BaseURL: "https://generativelanguage.googleapis.com"},
		},
		Budget: BudgetConfig{
			SessionBudget: 2.0,
			DailyBudget:   10.0,
			MonthlyBudget: 100.0,
			AutoStopAt:    0.9,
		},
		AutoApprove: AutoApproveConfig{
			Enabled:            false,
			MaxUpgradesPerHour: 20,
		},
		Escalation: EscalationConfig{
			RendezvousDir: filepath.Join(base, "escalations"),
			PollInterval:  500 * time.Millisecond,
			Timeout:       5 * time.Minute,
		},
		MCP: MCPConfig{Enabled: true},
		Sandbox: SandboxConfig{
			Dir:              filepath.Join(base, "sandbox"),
			Mode:             "enforce",
			ContainerBackend: "native",
		},
		MITM: MITMConfig{
			Enabled:    false,
			CADir:      filepath.Join(base, "ca"),
			SocketPath: filepath.Join(base, "mitm.sock"),
		},
		Audit: AuditConfig{
			Path: filepath.Join(base, "audit.jsonl"),
		},
		RetryPolicy: RetryPolicyConfig{
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
		},
	}
}

// ConfigPath returns the default location of config.json under the user's
// home directory.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ironcurtain", "config.json"), nil
}

// Load builds a Config by layering built-in defaults, the on-disk
// config.json (if present), and environment variable overrides for
// credentials and budgets. A missing config file is not an error; a
// present-but-invalid one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if info, err := os.Stat(path); err == nil {
		warnLoosePermissions(path, info)
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path as JSON, preserving any unknown fields captured
// during Load, and enforcing 0600 permissions. Credential fields are
// written as-is; callers that want them redacted should scrub before
// calling Save.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	out, err := marshalWithUnknown(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

func warnLoosePermissions(path string, info os.FileInfo) {
	if info.Mode().Perm()&0077 != 0 {
		fmt.Fprintf(os.Stderr, "warning: %s has permissions %o, expected 0600\n", path, info.Mode().Perm())
	}
}

// marshalWithUnknown re-merges cfg.unknown (fields this version of the
// schema doesn't recognize) back into the serialized output, so a
// load-then-save round trip never drops an operator's forward-compatible
// customization.
func marshalWithUnknown(cfg *Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if len(cfg.unknown) == 0 {
		return data, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range cfg.unknown {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.MarshalIndent(merged, "", "  ")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IRONCURTAIN_OPENROUTER_API_KEY"); v != "" {
		cfg.Providers.OpenRouter.APIKey = v
	}
	if v := os.Getenv("IRONCURTAIN_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("IRONCURTAIN_ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("IRONCURTAIN_GOOGLE_API_KEY"); v != "" {
		cfg.Providers.Google.APIKey = v
	}
	if v := os.Getenv("IRONCURTAIN_SESSION_BUDGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Budget.SessionBudget = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("IRONCURTAIN_SANDBOX_DIR")); v != "" {
		cfg.Sandbox.Dir = v
	}
}
