package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveProjectRoot returns the absolute sandbox directory the mediator
// treats as the agent's writable root. Preference order:
//  1. The configured sandbox directory (sandbox.dir)
//  2. Current working directory if no override is provided
func ResolveProjectRoot(cfg *Config) string {
	if cfg != nil {
		root := strings.TrimSpace(cfg.Sandbox.Dir)
		root = expandHomeDir(root)
		if root != "" {
			if abs, err := filepath.Abs(root); err == nil {
				return abs
			}
			return root
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
