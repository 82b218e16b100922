// Package persona resolves the fixed system prompt that defines the
// assistant's identity, factual scope, and response rules. The prompt is
// data, not code: operators can swap it via a file or a Parameter Store
// value without rebuilding the binary.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompt.txt
var embedded string

// Default returns the prompt compiled into the binary.
func Default() string {
	return strings.TrimSpace(embedded)
}

// LoadFile reads a prompt override from path.
func LoadFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("persona: read %s: %w", path, err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("persona: prompt file %s is empty", path)
	}
	return text, nil
}
