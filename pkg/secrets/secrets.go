// Package secrets resolves secret references in configuration.
//
// Configuration files never hold raw credentials. A value of the form
// "env:NAME" is resolved from the environment at load time; anything
// else is taken literally, which keeps local development friction-free.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// envScheme marks a value as an environment variable reference.
const envScheme = "env:"

// Resolve expands a configuration value. "env:POLARIS_API_KEY" reads
// the POLARIS_API_KEY environment variable and fails loudly when it is
// unset; every other value passes through unchanged.
func Resolve(value string) (string, error) {
	name, ok := strings.CutPrefix(value, envScheme)
	if !ok {
		return value, nil
	}

	resolved := os.Getenv(name)
	if resolved == "" {
		return "", fmt.Errorf("secret reference %q: environment variable %s is not set", value, name)
	}
	return resolved, nil
}

// IsReference reports whether the value is a secret reference rather
// than a literal.
func IsReference(value string) bool {
	return strings.HasPrefix(value, envScheme)
}
