// Command ironcurtain is the operator-facing entry point for the trusted
// mediator process: it loads configuration, wires the policy engine and
// its supporting components, and dispatches to the offline compilation
// pipeline or the live session mediator.
package main

import (
	"errors"
	"fmt"
	"os"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 1
	}

	switch args[0] {
	case "--version", "-v", "version":
		fmt.Printf("ironcurtain %s (%s)\n", version, commit)
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "compile-policy":
		return runCommand(runCompilePolicyCommand, args[1:])
	case "customize":
		return runCommand(runCustomizeCommand, args[1:])
	case "config":
		return runCommand(runConfigCommand, args[1:])
	case "setup-signal":
		return runCommand(runSetupSignalCommand, args[1:])
	case "mediate":
		return runCommand(runMediateCommand, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		printHelp()
		return 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

// exitCoder lets a command return a structured error that maps to a
// specific process exit code instead of the generic 1.
type exitCoder interface {
	ExitCode() int
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 1
}

func printHelp() {
	fmt.Fprint(os.Stderr, `ironcurtain - secure agent runtime mediator

Usage:
  ironcurtain <command> [flags]

Commands:
  compile-policy   run the offline compilation pipeline (annotate, compile, verify)
  customize        edit the constitution-user.md override file
  config           view or edit config.json
  setup-signal     configure the Signal bot transport (stub, out of scope)
  mediate          start the trusted MCP mediator on stdio

Flags:
  --config <path>  override the default ~/.ironcurtain/config.json location
  --resume <id>    accepted for interface parity with the agent adapter CLI; the
                   mediator has no per-session state of its own to resume, so this
                   just logs a warning and starts a fresh session (see spec §1
                   Out-of-scope: agent adapters own session resume)
`)
}
