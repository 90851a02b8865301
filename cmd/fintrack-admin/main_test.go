package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LEDGER_TIMEZONE", "UTC")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCategoriesAndSummary(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1")

	out, err = run(t, "--owner", "alice", "--json", "categories", "create", "Food", "--budget", "100")
	require.NoError(t, err)
	var food core.Category
	require.NoError(t, json.Unmarshal([]byte(out), &food))
	assert.Equal(t, "Food", food.Name)
	assert.Equal(t, core.Cents(10000), food.Budget)

	out, err = run(t, "--owner", "alice", "categories", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Food")
	assert.Contains(t, out, "100.00")

	out, err = run(t, "--owner", "bob", "categories", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No categories found.")

	out, err = run(t, "--owner", "alice", "categories", "update", food.ID, "--name", "Groceries")
	require.NoError(t, err)
	assert.Contains(t, out, "Groceries")

	out, err = run(t, "--owner", "alice", "budget", food.ID, "--spent", "100.01")
	require.NoError(t, err)
	assert.Contains(t, out, "over")

	out, err = run(t, "--owner", "alice", "summary", "--from", "2025-01-01", "--to", "2025-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "No expenses")
	assert.Contains(t, out, "2025-03")

	out, err = run(t, "--owner", "alice", "categories", "delete", food.ID, "--policy", "block")
	require.NoError(t, err)
	assert.Contains(t, out, "0 expenses removed")
}

func TestCommandErrors(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing owner", []string{"categories", "list"}, "--owner is required"},
		{"missing policy", []string{"--owner", "alice", "categories", "delete", "x"}, "--policy must be block or cascade"},
		{"half window", []string{"--owner", "alice", "summary", "--from", "2025-01-01"}, "--from and --to"},
		{"spent without category", []string{"--owner", "alice", "budget", "--spent", "5"}, "--spent needs a category id"},
		{"bad tz", []string{"--owner", "alice", "--tz", "Mars/Olympus", "summary"}, "unknown time zone"},
		{"unknown category", []string{"--owner", "alice", "budget", "nope"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
