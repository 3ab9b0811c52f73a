package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/persistence"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"export", "import", "gc", "stats", "purge"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "stats", "--format", "yaml")
	require.Error(t, err)
}

func writeSnapshot(t *testing.T, dir string) string {
	t.Helper()
	snapshot := map[string]any{
		"version":    "1.0.0",
		"exportedAt": "2024-05-01T08:00:00Z",
		"records":    []any{map[string]any{"record": map[string]any{"id": "x"}, "metadata": map[string]any{}}},
		"constructed": map[string]any{
			"act-1": map[string]any{"type": "flash-cards", "updatedAt": "2024-05-01T08:00:00Z", "data": map[string]any{"cards": []any{"a"}}},
		},
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImportStatsExportPurge(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "store.db")
	flags := []string{"--medium", "sqlite", "--sqlite-path", db}

	// The record entry carries no checksum, so it is skipped and the import
	// reports a partial failure.
	out, err := run(t, append([]string{"import", writeSnapshot(t, dir), "--format", "json"}, flags...)...)
	require.Error(t, err)
	require.Equal(t, ExitFailure, GetExitCode(err))
	var result persistence.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 1, result.Constructed)
	require.Len(t, result.Errors, 1)

	out, err = run(t, append([]string{"stats", "--format", "json"}, flags...)...)
	require.NoError(t, err)
	var stats persistence.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 1, stats.Constructed)
	require.Zero(t, stats.Records)

	exported := filepath.Join(dir, "export.json")
	_, err = run(t, append([]string{"export", "-o", exported}, flags...)...)
	require.NoError(t, err)
	var snapshot persistence.Snapshot
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.Contains(t, snapshot.Constructed, "act-1")

	_, err = run(t, append([]string{"purge", "--all"}, flags...)...)
	require.Equal(t, ExitFailure, GetExitCode(err))

	out, err = run(t, append([]string{"purge", "--all", "--yes"}, flags...)...)
	require.NoError(t, err)
	require.Contains(t, out, "store cleared")

	out, err = run(t, append([]string{"stats"}, flags...)...)
	require.NoError(t, err)
	require.Contains(t, out, "constructed: 0")
}

func TestPurgeRequiresTargets(t *testing.T) {
	_, err := run(t, "purge", "--medium", "memory")
	require.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGCRejectsNonPositiveAge(t *testing.T) {
	_, err := run(t, "gc", "--medium", "memory", "--max-age", "0s")
	require.Equal(t, ExitCommandError, GetExitCode(err))
}
