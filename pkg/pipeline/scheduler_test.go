package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

func newTestScheduler(t *testing.T, cfg Config, decls []JobDeclaration, exec pexec.CommandExecutor) (*Scheduler, Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := NewPaths(dir)
	cfg.PathLogs = dir

	resolved, err := cfg.Resolve()
	require.NoError(t, err)

	result, err := Initialize(paths, "p", decls, nil)
	require.NoError(t, err)

	lock, err := AcquireLock(paths)
	require.NoError(t, err)
	t.Cleanup(func() { lock.Release() })

	sched, err := NewScheduler(paths, resolved, Environment{}, result.Pipeline, exec)
	require.NoError(t, err)
	return sched, paths
}

func TestSchedulerRunSessionLinearPipeline(t *testing.T) {
	decls := []JobDeclaration{
		{Name: "produce", Command: "echo produce", FilesOut: []string{"data.mat"}},
		{Name: "consume", Command: "echo consume", FilesIn: []string{"data.mat"}},
	}
	exec := &pexec.MockCommandExecutor{}
	sched, paths := newTestScheduler(t, Config{Mode: ModeSession}, decls, exec)

	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Counts.Finished)
	assert.Equal(t, 0, summary.Counts.Failed)
	assert.Equal(t, StatusFinished, ReadStatus(paths, "produce"))
	assert.Equal(t, StatusFinished, ReadStatus(paths, "consume"))

	// produce must have run before consume, since consume depends on its output.
	require.Len(t, exec.Commands, 2)
	assert.Contains(t, exec.Commands[0], "echo produce")
	assert.Contains(t, exec.Commands[1], "echo consume")
}

func TestSchedulerCascadeSkipsDescendantsOfFailedJob(t *testing.T) {
	decls := []JobDeclaration{
		{Name: "produce", Command: "false", FilesOut: []string{"data.mat"}},
		{Name: "consume", Command: "echo consume", FilesIn: []string{"data.mat"}},
		{Name: "unrelated", Command: "echo unrelated"},
	}
	exec := &pexec.MockCommandExecutor{
		ExecuteFunc: func(name string, arg ...string) error {
			for _, a := range arg {
				if a == "false" {
					return errBoom
				}
			}
			return nil
		},
	}
	sched, paths := newTestScheduler(t, Config{Mode: ModeSession}, decls, exec)

	summary, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts.Failed)
	assert.Equal(t, 1, summary.Counts.Skipped)
	assert.Equal(t, 1, summary.Counts.Finished)

	assert.Equal(t, StatusFailed, ReadStatus(paths, "produce"))
	assert.Equal(t, StatusNone, ReadStatus(paths, "consume"), "consume is cascade-skipped, never dispatched")
	assert.Equal(t, StatusFinished, ReadStatus(paths, "unrelated"))
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}

func TestSchedulerAbortsWhenLockRemoved(t *testing.T) {
	decls := []JobDeclaration{{Name: "job1", Command: "echo hi"}}
	exec := &pexec.MockCommandExecutor{}
	sched, paths := newTestScheduler(t, Config{Mode: ModeSession}, decls, exec)

	// Simulate the lock disappearing out from under a running manager
	// (removed by an operator, or a competing process).
	require.True(t, Held(paths))
	require.NoError(t, os.Remove(paths.Lock()))
	require.False(t, Held(paths))

	// The very first loop iteration should abort on the missing lock.
	summary, err := sched.Run(context.Background())
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindOperatorAbort, kind)
	assert.True(t, summary.Aborted)
	assert.Equal(t, KindOperatorAbort, summary.AbortKind)
}

func TestSchedulerAbortsOnKillSwitch(t *testing.T) {
	decls := []JobDeclaration{{Name: "job1", Command: "echo hi"}}
	exec := &pexec.MockCommandExecutor{}
	sched, paths := newTestScheduler(t, Config{Mode: ModeSession}, decls, exec)
	require.NoError(t, CreateTag(paths.Kill(), nil))

	_, err := sched.Run(context.Background())
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindOperatorAbort, kind)
}

func TestWorkerCountBounds(t *testing.T) {
	assert.Equal(t, 4, workerCount(Config{MaxQueued: 0}))
	assert.Equal(t, 3, workerCount(Config{MaxQueued: 3}))
	assert.Equal(t, 8, workerCount(Config{MaxQueued: 100}))
}
