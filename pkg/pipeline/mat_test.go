package pipeline

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declsFixture() []JobDeclaration {
	return []JobDeclaration{
		{Name: "produce", Command: "touch data.mat", FilesOut: []string{"data.mat"}},
		{Name: "consume", Command: "cat data.mat", FilesIn: []string{"data.mat"}},
	}
}

func TestInitializeFirstRunHasNoRestart(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	result, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Restart)
	assert.Empty(t, result.Orphaned)
	assert.True(t, Exists(paths.Mat()))
}

func TestInitializeIsIdempotentModuloTimestamp(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	_, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	first, err := os.ReadFile(paths.Mat())
	require.NoError(t, err)

	_, err = Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	second, err := os.ReadFile(paths.Mat())
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second), "re-initializing an unchanged pipeline should not change the payload size")
}

func TestInitializePreservesFinishedJobsWithUnchangedDeclaration(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	_, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	require.NoError(t, CreateTag(paths.JobFinished("produce"), nil))

	result, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Restart, "produce")
	assert.Equal(t, StatusFinished, ReadStatus(paths, "produce"))
}

func TestInitializeRestartsOnDeclarationChangeAndClosesOverDescendants(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	_, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	require.NoError(t, CreateTag(paths.JobFinished("produce"), nil))
	require.NoError(t, CreateTag(paths.JobFinished("consume"), nil))

	changed := declsFixture()
	changed[0].Command = "touch data.mat # changed"

	result, err := Initialize(paths, "p", changed, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Restart, "produce")
	assert.Contains(t, result.Restart, "consume", "consume depends on produce's output and must restart too")
	assert.Equal(t, StatusNone, ReadStatus(paths, "produce"))
	assert.Equal(t, StatusNone, ReadStatus(paths, "consume"))
}

func TestInitializeClearsStaleRunningAndFailedTagsEvenOutsideRestartSet(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	_, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	require.NoError(t, CreateTag(paths.JobRunning("consume"), nil))
	require.NoError(t, CreateTag(paths.JobFailed("consume"), []byte("boom")))
	require.NoError(t, CreateTag(paths.JobFinished("produce"), nil))

	_, err = Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusNone, ReadStatus(paths, "consume"), "stale .running and .failed tags are cleared on restart")
	assert.Equal(t, StatusFinished, ReadStatus(paths, "produce"), "an unrelated finished job is left alone")
}

func TestInitializeForceRestartBySubstring(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	_, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	require.NoError(t, CreateTag(paths.JobFinished("produce"), nil))

	result, err := Initialize(paths, "p", declsFixture(), []string{"prod"})
	require.NoError(t, err)
	assert.Contains(t, result.Restart, "produce")
}

func TestInitializeOrphansRemovedJob(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	_, err := Initialize(paths, "p", declsFixture(), nil)
	require.NoError(t, err)
	require.NoError(t, CreateTag(paths.JobFinished("consume"), nil))

	trimmed := declsFixture()[:1] // drop "consume"
	result, err := Initialize(paths, "p", trimmed, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Orphaned, "consume")
	assert.Equal(t, StatusNone, ReadStatus(paths, "consume"))
}

func TestInitializeMissingInputFails(t *testing.T) {
	dir := t.TempDir()
	paths := NewPaths(dir)

	decls := []JobDeclaration{
		{Name: "consume", FilesIn: []string{"never_produced.mat"}},
	}
	_, err := Initialize(paths, "p", decls, nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMissingInput, kind)
}

func TestReadMatReturnsNilWhenAbsent(t *testing.T) {
	paths := NewPaths(t.TempDir())
	p, err := ReadMat(paths)
	require.NoError(t, err)
	assert.Nil(t, p)
}
