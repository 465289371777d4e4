package main

import (
	"os"
	"path/filepath"
)

// resolveHomeDir returns the IronCurtain home directory: the explicit
// --config flag's directory if one was given, otherwise ~/.ironcurtain.
func resolveHomeDir(configPathFlag string) (string, error) {
	if configPathFlag != "" {
		return filepath.Dir(configPathFlag), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ironcurtain"), nil
}

// extractFlag pulls a "--name value" or "--name=value" pair out of args,
// returning the value and the remaining args with that pair removed. This
// mirrors the teacher CLI's hand-rolled flag parsing rather than pulling in
// a flag-parsing dependency neither repo uses for subcommand-local flags.
func extractFlag(args []string, name string) (value string, rest []string) {
	prefix := name + "="
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			rest = append(append([]string{}, args[:i]...), args[i+2:]...)
			return args[i+1], rest
		}
		if len(args[i]) > len(prefix) && args[i][:len(prefix)] == prefix {
			rest = append(append([]string{}, args[:i]...), args[i+1:]...)
			return args[i][len(prefix):], rest
		}
	}
	return "", args
}
