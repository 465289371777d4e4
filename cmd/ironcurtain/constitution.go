package main

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
)

// baseConstitution is IronCurtain's built-in default constitution. It is
// never edited in place; operators layer their own principles on top of it
// via constitution-user.md (spec §6 filesystem layout).
//
//go:embed constitution.md
var baseConstitution string

// loadConstitution concatenates the built-in default with the operator's
// override file, if one exists. A missing override file is not an error:
// most installs run on the base constitution alone until the operator
// customizes it.
func loadConstitution(homeDir string) (string, error) {
	text := baseConstitution

	overridePath := filepath.Join(homeDir, "constitution-user.md")
	data, err := os.ReadFile(overridePath)
	if err != nil {
		if os.IsNotExist(err) {
			return text, nil
		}
		return "", err
	}

	override := strings.TrimSpace(string(data))
	if override == "" {
		return text, nil
	}
	return text + "\n\n## Operator overrides\n\n" + override + "\n", nil
}
