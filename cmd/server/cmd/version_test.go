package cmd

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)

	require.Contains(t, out, "Gatherings server")
	require.Contains(t, out, "Version:    "+Version)
	require.Contains(t, out, "Git commit: "+GitCommit)
	require.Contains(t, out, "Go version: "+runtime.Version())
}
