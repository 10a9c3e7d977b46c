package pipeline

import (
	"context"

	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

// SubmissionHandle is the opaque result of a backend Submit call. Backends
// attach whatever bookkeeping they need (e.g. the generated script path)
// without the scheduler needing to know their shape.
type SubmissionHandle struct {
	Job     string
	Backend Mode
	Detail  string // generated script path for batch/qsub, or "ok"/"failed" for session
}

// Backend is the uniform contract §4.5 specifies: given a job name,
// command, and paths, cause the job runner to execute and return a
// submission handle. session blocks until the job finishes; batch/qsub
// return immediately and rely on tag files for completion detection.
type Backend interface {
	// Name identifies the backend for logging/config purposes.
	Name() Mode

	// Submit dispatches job for execution. For session this runs the
	// command synchronously and the returned handle already reflects the
	// final outcome; for batch/qsub it only reflects submission success.
	Submit(ctx context.Context, env Environment, cfg Config, paths Paths, job JobDeclaration) (SubmissionHandle, error)

	// PostMortem allows a backend to inspect and demote a job that the
	// generic status reader reports as still "running" or "exit" but which
	// the backend knows has actually crashed (§4.4 step b). Implementations
	// that have no such check return (false, nil).
	PostMortem(paths Paths, job string) (demoted bool, err error)
}

// NewBackend constructs the Backend implementation for cfg.Mode.
func NewBackend(mode Mode, executor pexec.CommandExecutor) (Backend, error) {
	switch mode {
	case ModeSession:
		return &sessionBackend{executor: executor}, nil
	case ModeBatch:
		return &batchBackend{executor: executor}, nil
	case ModeQsub:
		return &qsubBackend{executor: executor}, nil
	default:
		return nil, NewError(KindDispatch, "NewBackend", errUnknownMode(mode))
	}
}

func errUnknownMode(mode Mode) error {
	return &unknownModeError{mode: mode}
}

type unknownModeError struct{ mode Mode }

func (e *unknownModeError) Error() string { return "unknown backend mode: " + string(e.mode) }
