package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEnv points the CLI at a fresh catalogue and local storage root.
type testEnv struct {
	dir       string
	localRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{dir: dir, localRoot: filepath.Join(dir, "lake")}

	t.Setenv("LAKE_STORAGE", "local")
	t.Setenv("LAKE_CATALOGUE_PATH", filepath.Join(dir, "catalogue.sqlite"))
	t.Setenv("LAKE_LOCAL_ROOT", env.localRoot)
	t.Setenv("LAKE_STAGING_DIR", dir)
	t.Setenv("LAKE_CONFIG_FILE", "")
	t.Setenv("LAKE_OUTPUT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "error")
	return env
}

// writeCSV writes content to name inside the test directory and returns its path.
func (e *testEnv) writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes a fresh root command and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	code := run(cmd, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}
