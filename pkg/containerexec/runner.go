// Package containerexec implements the Docker-backed variant of the
// sandbox wrapper (see pkg/sandbox): instead of a native filesystem/network
// jail, it launches the upstream MCP tool server inside a docker compose
// service, with the sandbox directory bind-mounted read-write and the rest
// of the host filesystem invisible to the container.
package containerexec

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner wraps an MCP tool-server launch command so it executes inside a
// docker compose service rather than directly on the host.
type Runner struct {
	composeFile string
	service     string
	sandboxDir  string
}

// NewRunner builds a Runner that execs into service, defined in
// composeFile. sandboxDir is used only by MapContainerPath; the
// container's mounts come from the compose file itself.
func NewRunner(composeFile, service, sandboxDir string) *Runner {
	return &Runner{composeFile: composeFile, service: service, sandboxDir: sandboxDir}
}

// WrapLaunch returns an *exec.Cmd that, when run, launches command/args
// inside the configured compose service via `docker compose exec`. The
// caller (cmd/ironcurtain's mediate.go) is responsible for wiring stdio so the wrapped tool
// server still speaks JSON-RPC over stdio to the mediator.
func (r *Runner) WrapLaunch(command string, args []string) *exec.Cmd {
	dockerArgs := []string{"compose", "-f", r.composeFile, "exec", "-T", r.service, command}
	dockerArgs = append(dockerArgs, args...)
	return exec.Command("docker", dockerArgs...)
}

// MapContainerPath rewrites a path reported by a containerized tool server
// (rooted at /workspace inside the container) back to its host-side
// location under sandboxDir, so audit entries and escalation prompts show
// paths an operator recognizes.
func (r *Runner) MapContainerPath(containerPath string) string {
	if strings.HasPrefix(containerPath, "/workspace") {
		return filepath.Join(r.sandboxDir, strings.TrimPrefix(containerPath, "/workspace"))
	}
	return containerPath
}

// FindComposeFile searches upward from startPath for a
// docker-compose.sandbox.yml, the compose file defining the containerized
// tool-server services the Docker sandbox backend launches into.
func FindComposeFile(startPath string) (string, error) {
	current := startPath

	for {
		composePath := filepath.Join(current, "docker-compose.sandbox.yml")
		if err := exec.Command("test", "-f", composePath).Run(); err == nil {
			return composePath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no docker-compose.sandbox.yml found")
}
