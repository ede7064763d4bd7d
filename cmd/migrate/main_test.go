package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFileCommandCreateAndValidate(t *testing.T) {
	dir := t.TempDir()

	handled, err := runFileCommand("create", dir, "add ledger index")
	require.True(t, handled)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".sql", filepath.Ext(entries[0].Name()))

	handled, err = runFileCommand("validate", dir, "")
	require.True(t, handled)
	require.NoError(t, err)
}

func TestRunFileCommandCreateNeedsName(t *testing.T) {
	handled, err := runFileCommand("create", t.TempDir(), "")
	require.True(t, handled)
	assert.ErrorIs(t, err, errUsage)
}

func TestRunFileCommandLeavesDBCommands(t *testing.T) {
	handled, err := runFileCommand("up", t.TempDir(), "")
	assert.False(t, handled)
	assert.NoError(t, err)
}

func TestRunDBCommandRejectsUsageErrors(t *testing.T) {
	err := runDBCommand(context.Background(), nil, "version", t.TempDir(), "")
	assert.ErrorIs(t, err, errUsage)

	err = runDBCommand(context.Background(), nil, "sideways", t.TempDir(), "")
	assert.ErrorIs(t, err, errUsage)
}
