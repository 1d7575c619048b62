package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestSeedThenStats(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "stockctl.db"))
	t.Setenv("LOG_LEVEL", "error")

	runCommand(t, "migrate")
	assert.Contains(t, runCommand(t, "seed"), "Seeded 6 of 6 products")
	assert.Contains(t, runCommand(t, "seed"), "Seeded 0 of 6 products")

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(runCommand(t, "stats")), &stats))
	assert.EqualValues(t, len(catalogue), stats["total_records"])
	assert.EqualValues(t, 0, stats["total_ledger_entries"])
}
