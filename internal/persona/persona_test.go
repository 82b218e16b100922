package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_ContainsPortfolioMarkers(t *testing.T) {
	prompt := strings.ToLower(Default())
	require.NotEmpty(t, prompt)

	for _, marker := range []string{"vadym", "qa", "quality", "testing", "playwright", "automation", "istqb"} {
		require.Contains(t, prompt, marker)
	}
}

func TestDefault_ContainsOffTopicRedirectRules(t *testing.T) {
	prompt := Default()
	require.Contains(t, prompt, "off-topic")
	require.Contains(t, prompt, "outside my test coverage")
}

func TestDefault_PinsFirstPersonVoice(t *testing.T) {
	require.Contains(t, Default(), "first person")
}

func TestLoadFile_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("You are a test persona.\n"), 0o600))

	text, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "You are a test persona.", text)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestLoadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}
