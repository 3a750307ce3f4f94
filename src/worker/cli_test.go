package worker

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI_VersionCommand(t *testing.T) {
	root := newRootCommand(func(ctx *JobContext) error { return nil })

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), Version)
}

func TestCLI_StartFailsWithoutCredentials(t *testing.T) {
	t.Setenv(EnvURL, "")
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvAPISecret, "")

	root := newRootCommand(func(ctx *JobContext) error { return nil })
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"start"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvURL)
}

func TestCLI_BuildingCommandDoesNotRunWorker(t *testing.T) {
	var ran int32
	newRootCommand(func(ctx *JobContext) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	// Declaring the entrypoint wires nothing up; only an explicit
	// `start` invocation runs the worker
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}
