package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phyloflow/phyloflow/internal/errors"
	"github.com/phyloflow/phyloflow/internal/logging"
)

// fakeTool writes an executable shell script into dir and returns a Tool
// pointing at it.
func fakeTool(t *testing.T, dir, name, script string) Tool {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell tools require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return Tool{Name: name, Path: path}
}

func TestRunUnitsSequential(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "result.txt")
	tool := fakeTool(t, dir, "aligner", `echo aligned > "$1"`)

	r := New(logging.NopLogger(), 0)
	var done int32
	err := r.RunUnits(context.Background(), "align", []Invocation{
		{Unit: "locus1", Tool: tool, Args: []string{out}, Outputs: []string{out}},
	}, 1, func() { atomic.AddInt32(&done, 1) })

	require.NoError(t, err)
	assert.Equal(t, int32(1), done)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "aligned\n", string(data))
}

func TestRunUnitsStdoutRedirect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "aligned.fasta")
	tool := fakeTool(t, dir, "mafft", `echo ">sp1"; echo "ACGT"`)

	r := New(logging.NopLogger(), 0)
	err := r.RunUnits(context.Background(), "align", []Invocation{
		{Unit: "locus1", Tool: tool, StdoutFile: out, Outputs: []string{out}},
	}, 1, nil)

	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, ">sp1\nACGT\n", string(data))
}

func TestRunUnitsToolFailure(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "trimmer", `echo "segfault in column parser" >&2; exit 3`)

	r := New(logging.NopLogger(), 0)
	err := r.RunUnits(context.Background(), "trim", []Invocation{
		{Unit: "locus9", Tool: tool},
	}, 1, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStageFailed)

	var stageErr *errors.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "trim", stageErr.Stage)
	assert.Equal(t, "locus9", stageErr.Unit)
	assert.Contains(t, stageErr.Stderr, "segfault in column parser")
}

func TestRunUnitsMissingOutput(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "busco", `exit 0`)

	r := New(logging.NopLogger(), 0)
	err := r.RunUnits(context.Background(), "busco", []Invocation{
		{Unit: "species1", Tool: tool, Outputs: []string{filepath.Join(dir, "never_written.txt")}},
	}, 1, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingOutput)
}

func TestRunUnitsTimeout(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "slow", `sleep 5`)

	r := New(logging.NopLogger(), 50*time.Millisecond)
	start := time.Now()
	err := r.RunUnits(context.Background(), "model", []Invocation{
		{Unit: "locus1", Tool: tool},
	}, 1, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnitTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunUnitsParallelFailFast(t *testing.T) {
	dir := t.TempDir()
	good := fakeTool(t, dir, "good", `exit 0`)
	bad := fakeTool(t, dir, "bad", `exit 1`)

	invs := []Invocation{
		{Unit: "a", Tool: good},
		{Unit: "b", Tool: bad},
		{Unit: "c", Tool: good},
		{Unit: "d", Tool: good},
	}

	r := New(logging.NopLogger(), 0)
	var done int32
	err := r.RunUnits(context.Background(), "align", invs, 2, func() { atomic.AddInt32(&done, 1) })

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStageFailed)
	// The failing unit never counts as done.
	assert.Less(t, atomic.LoadInt32(&done), int32(4))
}

func TestRunUnitsParallelAllSucceed(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, dir, "good", `echo ok > "$1"`)

	var invs []Invocation
	for _, unit := range []string{"a", "b", "c", "d", "e"} {
		out := filepath.Join(dir, unit+".out")
		invs = append(invs, Invocation{Unit: unit, Tool: tool, Args: []string{out}, Outputs: []string{out}})
	}

	r := New(logging.NopLogger(), 0)
	var done int32
	err := r.RunUnits(context.Background(), "trim", invs, 3, func() { atomic.AddInt32(&done, 1) })

	require.NoError(t, err)
	assert.Equal(t, int32(5), done)
}

func TestToolEnvPassedToProcess(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")
	tool := fakeTool(t, dir, "envtool", `echo "$PHYLO_TEST_VAR" > "$1"`)
	tool.Env = []string{"PHYLO_TEST_VAR=hello"}

	r := New(logging.NopLogger(), 0)
	err := r.RunUnits(context.Background(), "busco", []Invocation{
		{Unit: "s", Tool: tool, Args: []string{out}, Outputs: []string{out}},
	}, 1, nil)

	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}
