package pipeline

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockThenConflict(t *testing.T) {
	paths := NewPaths(t.TempDir())

	lock, err := AcquireLock(paths)
	require.NoError(t, err)
	assert.True(t, Held(paths))

	_, err = AcquireLock(paths)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindOperatorAbort, kind)

	require.NoError(t, lock.Release())
	assert.False(t, Held(paths))
}

func TestForceAcquireLockReplacesStaleLock(t *testing.T) {
	paths := NewPaths(t.TempDir())

	first, err := AcquireLock(paths)
	require.NoError(t, err)
	_ = first // simulate the owning process having died without releasing

	second, err := ForceAcquireLock(paths)
	require.NoError(t, err)
	assert.True(t, Held(paths))
	require.NoError(t, second.Release())
}

func TestReadLockInfo(t *testing.T) {
	paths := NewPaths(t.TempDir())
	_, err := AcquireLock(paths)
	require.NoError(t, err)

	info, err := ReadLockInfo(paths)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.False(t, info.Acquired.IsZero())
}

func TestNilLockReleaseIsSafe(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
