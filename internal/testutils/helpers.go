package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory holding files and initializes
// a Loam repository in it. It returns the absolute path to the temp dir and
// the initialized repository. It fails the test immediately on error.
func SetupTestRepo(t *testing.T, files map[string]string, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")
	for name, content := range files {
		WriteFile(t, absPath, name, []byte(content))
	}

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// WriteFile writes data to dir/name, creating parent directories, and
// returns the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// TOF5s returns the off-delay timer machine file with the given delay in
// milliseconds. The output "out" follows "in" on the way up and drops
// delayMs after "in" falls.
func TOF5s(delayMs int) []byte {
	return []byte(fmt.Sprintf(`{
  "name": "TOF5s",
  "inputs": ["in"],
  "outputs": ["out"],
  "internal": [{"name": "timeout", "type": "int", "initialValue": "%d"}],
  "states": [
    {"name": "IDLE", "action": "output(\"out\", 0)", "isInitial": true},
    {"name": "ACTIVE", "action": "output(\"out\", 1)"},
    {"name": "TIMING"}
  ],
  "transitions": [
    {"src": "IDLE", "dst": "ACTIVE", "input": "in", "cond": "value == 1"},
    {"src": "ACTIVE", "dst": "TIMING", "input": "in", "cond": "value == 0"},
    {"src": "TIMING", "dst": "ACTIVE", "input": "in", "cond": "value == 1"},
    {"src": "TIMING", "dst": "IDLE", "timeout": "timeout"}
  ]
}
`, delayMs))
}
