package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStatusPriorityOrder(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)
	job := "job1"

	assert.Equal(t, StatusNone, ReadStatus(paths, job))

	require.NoError(t, CreateTag(paths.JobMat(job), []byte("x")))
	assert.Equal(t, StatusSubmitted, ReadStatus(paths, job))

	require.NoError(t, CreateTag(paths.JobRunning(job), []byte("x")))
	assert.Equal(t, StatusRunning, ReadStatus(paths, job))

	require.NoError(t, CreateTag(paths.JobExit(job), []byte("x")))
	assert.Equal(t, StatusExit, ReadStatus(paths, job))

	require.NoError(t, CreateTag(paths.JobFailed(job), []byte("x")))
	assert.Equal(t, StatusFailed, ReadStatus(paths, job))

	require.NoError(t, CreateTag(paths.JobFinished(job), []byte("x")))
	assert.Equal(t, StatusFinished, ReadStatus(paths, job), "finished outranks every other tag")
}
