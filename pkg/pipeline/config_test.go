package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigResolveRequiresPathLogs(t *testing.T) {
	_, err := Config{}.Resolve()
	require.Error(t, err)
}

func TestConfigResolveSessionDefaults(t *testing.T) {
	c, err := Config{PathLogs: "/logs"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, ModeSession, c.Mode)
	assert.True(t, c.Unbounded())
	assert.Equal(t, 10, c.MaxBuffer)
	assert.Equal(t, "psom_run_job", c.RunnerCommand)
	assert.Equal(t, 15*time.Second, c.HeartbeatInterval)
}

func TestConfigResolveBatchDefaults(t *testing.T) {
	c, err := Config{PathLogs: "/logs", Mode: ModeBatch}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 1, c.MaxQueued)
	assert.False(t, c.Unbounded())
	assert.Equal(t, 10*time.Second, c.TimeBetweenChecks)
	assert.Equal(t, 6, c.NbChecksPerPoint)
}

func TestConfigResolveQsubDefaults(t *testing.T) {
	c, err := Config{PathLogs: "/logs", Mode: ModeQsub}.Resolve()
	require.NoError(t, err)
	assert.True(t, c.Unbounded())
	assert.Equal(t, 10*time.Second, c.TimeBetweenChecks)
}

func TestConfigResolveRejectsUnknownMode(t *testing.T) {
	_, err := Config{PathLogs: "/logs", Mode: "bogus"}.Resolve()
	require.Error(t, err)
}

func TestConfigResolveRejectsNegativeTimeBetweenChecks(t *testing.T) {
	_, err := Config{PathLogs: "/logs", TimeBetweenChecks: -1}.Resolve()
	require.Error(t, err)
}

func TestDetectEnvironment(t *testing.T) {
	env := DetectEnvironment()
	assert.NotEmpty(t, env.OS)
}
