package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret resolves a credential value through its indirection prefix:
// "env:NAME" reads an environment variable, "file:PATH" reads a file
// (trimmed), anything else is taken literally. Empty input stays empty.
func ResolveSecret(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, "env:"):
		name := strings.TrimPrefix(value, "env:")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("config: secret env var %s is not set", name)
		}
		return v, nil
	case strings.HasPrefix(value, "file:"):
		path := strings.TrimPrefix(value, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("config: read secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return value, nil
	}
}
