package pipeline

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"time"
)

// Mode selects a backend strategy (§4.5, §6).
type Mode string

const (
	ModeSession Mode = "session"
	ModeBatch   Mode = "batch"
	ModeQsub    Mode = "qsub"
)

// Config holds the options of §6's configuration table. All fields are
// optional except PathLogs; zero values are resolved to backend-specific
// defaults by Resolve.
type Config struct {
	PathLogs string `yaml:"path_logs"`
	Mode     Mode   `yaml:"mode"`

	MaxQueued         int           `yaml:"max_queued"`
	TimeBetweenChecks time.Duration `yaml:"time_between_checks"`
	NbChecksPerPoint  int           `yaml:"nb_checks_per_point"`

	// MaxBuffer bounds how many jobs may be outstanding against a single
	// backend worker slot before the scheduler defers further dispatch to
	// that slot (§9 open question; undocumented in the source, specified
	// here with default 10).
	MaxBuffer int `yaml:"max_buffer"`

	ShellOptions     string   `yaml:"shell_options"`
	QsubOptions      string   `yaml:"qsub_options"`
	CommandMatlab    string   `yaml:"command_matlab"`
	Restart          []string `yaml:"restart"`
	FlagBatch        bool     `yaml:"flag_batch"`

	// RunnerCommand is the opaque external job-runner executable invoked by
	// generated batch/qsub scripts (§4.5); the runner itself is out of
	// scope (§1) — this is just how the script names it.
	RunnerCommand string `yaml:"runner_command"`

	// HeartbeatInterval governs the heartbeat side-process cadence (§4.6).
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// unboundedQueue is the sentinel for "∞" concurrency caps (session/qsub
// default per §6's table).
const unboundedQueue = 0

// Resolve fills in backend-specific defaults for every zero-valued field,
// per the table in §6, and rejects a NaN-equivalent unresolved
// TimeBetweenChecks rather than silently looping at full tilt (§9's open
// question about the manager-style entry point defaulting to NaN).
func (c Config) Resolve() (Config, error) {
	if c.PathLogs == "" {
		return c, NewError(KindMissingInput, "Config.Resolve", fmt.Errorf("path_logs is required"))
	}
	if c.Mode == "" {
		c.Mode = ModeSession
	}

	switch c.Mode {
	case ModeSession:
		if c.MaxQueued == 0 {
			c.MaxQueued = unboundedQueue
		}
		// TimeBetweenChecks defaults to 0 (no sleep needed: session blocks).
	case ModeBatch:
		if c.MaxQueued == 0 {
			c.MaxQueued = 1
		}
		if c.TimeBetweenChecks == 0 {
			c.TimeBetweenChecks = 10 * time.Second
		}
		if c.NbChecksPerPoint == 0 {
			c.NbChecksPerPoint = 6
		}
	case ModeQsub:
		if c.MaxQueued == 0 {
			c.MaxQueued = unboundedQueue
		}
		if c.TimeBetweenChecks == 0 {
			c.TimeBetweenChecks = 10 * time.Second
		}
		if c.NbChecksPerPoint == 0 {
			c.NbChecksPerPoint = 6
		}
	default:
		return c, NewError(KindMissingInput, "Config.Resolve", fmt.Errorf("unknown mode %q", c.Mode))
	}

	if c.TimeBetweenChecks < 0 {
		return c, NewError(KindMissingInput, "Config.Resolve", fmt.Errorf("time_between_checks must be >= 0"))
	}
	if c.MaxBuffer == 0 {
		c.MaxBuffer = 10
	}
	if c.RunnerCommand == "" {
		c.RunnerCommand = "psom_run_job"
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	return c, nil
}

// Unbounded reports whether the concurrency cap is effectively infinite.
func (c Config) Unbounded() bool { return c.MaxQueued == unboundedQueue }

// Environment is the explicit record threaded through constructors in
// place of the source's global script-sourced variables (gb_psom_*), per
// §9's re-architecture note.
type Environment struct {
	User     string
	Hostname string
	OS       string
}

// DetectEnvironment builds an Environment from the current process, the
// Go-native replacement for the source's interpreter-bootstrap step.
func DetectEnvironment() Environment {
	env := Environment{OS: runtime.GOOS}
	if u, err := user.Current(); err == nil {
		env.User = u.Username
	} else if v := os.Getenv("USER"); v != "" {
		env.User = v
	}
	if h, err := os.Hostname(); err == nil {
		env.Hostname = h
	}
	return env
}
