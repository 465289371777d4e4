package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// JailPolicy governs what happens when OS-level containment isn't
// available on the host platform.
type JailPolicy string

const (
	// JailEnforce refuses to start a tool server if containment isn't
	// available.
	JailEnforce JailPolicy = "enforce"
	// JailWarn logs and proceeds without containment.
	JailWarn JailPolicy = "warn"
)

// JailConfig configures the per-server OS-level containment wrapper: a
// filesystem jail (sandbox directory bound read-write, everything else
// read-only) plus a network jail (all direct networking blocked, outbound
// traffic routed through a Unix-domain-socket connect proxy).
type JailConfig struct {
	SandboxDir       string
	NetworkSocket    string // Unix-domain socket path for the connect-proxy; empty disables network entirely
	Policy           JailPolicy
	DropCapabilities bool
}

// Jail wraps an upstream tool-server launch command with OS-level
// containment. Jail changes how the child process itself is launched: it
// never inspects the command's text.
type Jail struct {
	cfg     JailConfig
	wrapper string // resolved path to the containment binary (bwrap), empty if unsupported
}

// NewJail resolves the platform's containment binary and returns a Jail
// ready to wrap launch commands. It never fails: Preflight reports whether
// containment is actually usable, so Enforce-mode refusal happens at the
// call site where the operator's policy choice is known.
func NewJail(cfg JailConfig) *Jail {
	wrapper, _ := exec.LookPath("bwrap")
	return &Jail{cfg: cfg, wrapper: wrapper}
}

// Preflight reports whether OS-level containment is usable on this host:
// Linux with bubblewrap (bwrap) installed. Any other platform, or a
// missing binary, is unsupported.
func (j *Jail) Preflight() (supported bool, reason string) {
	if runtime.GOOS != "linux" {
		return false, fmt.Sprintf("OS-level sandboxing is only implemented for linux (running %s)", runtime.GOOS)
	}
	if j.wrapper == "" {
		return false, "bubblewrap (bwrap) not found on PATH"
	}
	if j.cfg.SandboxDir == "" {
		return false, "sandbox directory not configured"
	}
	return true, ""
}

// Ready resolves the configured JailPolicy against Preflight: enforce mode
// returns an error if containment is unavailable; warn mode returns
// (false, nil) — the caller should proceed without containment, logging
// the reason itself.
func (j *Jail) Ready() (contained bool, err error) {
	supported, reason := j.Preflight()
	if supported {
		return true, nil
	}
	if j.cfg.Policy == JailEnforce {
		return false, fmt.Errorf("sandbox: containment unavailable and policy is enforce: %s", reason)
	}
	return false, nil
}

// WrapLaunch returns an *exec.Cmd that runs command/args inside a bwrap
// sandbox: the sandbox directory is bound read-write, the rest of the
// filesystem is read-only, all Linux capabilities are dropped when
// DropCapabilities is set, and direct
// networking is blocked (the only exit is the configured Unix-domain
// socket, which the wrapped process must use for the MITM/connect-proxy
// path). Callers must check Ready() first; WrapLaunch does not re-check
// availability.
func (j *Jail) WrapLaunch(command string, args []string) *exec.Cmd {
	bwrapArgs := []string{
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--bind", j.cfg.SandboxDir, j.cfg.SandboxDir,
		"--chdir", j.cfg.SandboxDir,
		"--die-with-parent",
		"--unshare-pid",
		"--unshare-uts",
		"--unshare-ipc",
	}

	if j.cfg.NetworkSocket != "" {
		bwrapArgs = append(bwrapArgs, "--unshare-net", "--bind", filepath.Dir(j.cfg.NetworkSocket), filepath.Dir(j.cfg.NetworkSocket))
	} else {
		bwrapArgs = append(bwrapArgs, "--unshare-net")
	}

	if j.cfg.DropCapabilities {
		bwrapArgs = append(bwrapArgs, "--cap-drop", "ALL")
	}

	bwrapArgs = append(bwrapArgs, "--", command)
	bwrapArgs = append(bwrapArgs, args...)

	cmd := exec.Command(j.wrapper, bwrapArgs...)
	cmd.Env = os.Environ()
	return cmd
}
