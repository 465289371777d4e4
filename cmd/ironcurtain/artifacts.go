package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ironcurtain/ironcurtain/pkg/compiler"
	"github.com/ironcurtain/ironcurtain/pkg/policy"
)

// generatedDir is the spec §6 filesystem location for the pipeline's
// on-disk artifacts, relative to the user's IronCurtain home directory.
func generatedDir(homeDir string) string {
	return filepath.Join(homeDir, "generated")
}

func writeJSONArtifact(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSONArtifact(path string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// publishArtifacts writes the pipeline's result to the generated/ directory
// in the artifact shapes spec §6 documents, so the mediator (and an
// operator inspecting the tree by hand) can read them independent of the
// sqlite-backed content-hash cache the pipeline itself uses internally.
func publishArtifacts(homeDir string, result *compiler.Result) error {
	dir := generatedDir(homeDir)

	if err := writeJSONArtifact(filepath.Join(dir, "compiled-policy.json"), result.Policy); err != nil {
		return err
	}
	if err := writeJSONArtifact(filepath.Join(dir, "tool-annotations.json"), result.Annotations); err != nil {
		return err
	}
	if err := writeJSONArtifact(filepath.Join(dir, "test-scenarios.json"), result.Scenarios); err != nil {
		return err
	}
	return nil
}

// loadCompiledPolicy reads generated/compiled-policy.json, normalizing any
// legacy "default-deny" rule name to "default-escalate" per spec §9's
// migration note before the engine ever sees it.
func loadCompiledPolicy(homeDir string) (*policy.CompiledPolicy, error) {
	var p policy.CompiledPolicy
	path := filepath.Join(generatedDir(homeDir), "compiled-policy.json")
	if err := readJSONArtifact(path, &p); err != nil {
		return nil, fmt.Errorf("load %s (run 'ironcurtain compile-policy' first): %w", path, err)
	}
	for i := range p.Rules {
		if p.Rules[i].Name == "default-deny" {
			p.Rules[i].Name = "default-escalate"
		}
	}
	return &p, nil
}

// loadToolAnnotations reads generated/tool-annotations.json and flattens it
// into the per-tool list the policy engine and mediator want.
func loadToolAnnotations(homeDir string) ([]policy.ToolAnnotation, error) {
	var file compiler.ToolAnnotationsFile
	path := filepath.Join(generatedDir(homeDir), "tool-annotations.json")
	if err := readJSONArtifact(path, &file); err != nil {
		return nil, fmt.Errorf("load %s (run 'ironcurtain compile-policy' first): %w", path, err)
	}
	var out []policy.ToolAnnotation
	for _, server := range file.Servers {
		out = append(out, server.Tools...)
	}
	return out, nil
}
