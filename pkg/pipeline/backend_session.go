package pipeline

import (
	"context"

	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

// sessionBackend runs the job's command synchronously in the current
// process via the CommandExecutor seam, grounded in grove-flow's
// pkg/exec.RealCommandExecutor/MockCommandExecutor pair. Its return value
// maps directly to finished/failed without needing tag files to mediate
// (§4.5), though it still writes .finished/.failed so the generic status
// reader and restart reconciliation behave uniformly across backends.
type sessionBackend struct {
	executor pexec.CommandExecutor
}

func (b *sessionBackend) Name() Mode { return ModeSession }

func (b *sessionBackend) Submit(ctx context.Context, env Environment, cfg Config, paths Paths, job JobDeclaration) (SubmissionHandle, error) {
	if err := CreateTag(paths.JobRunning(job.Name), nil); err != nil {
		return SubmissionHandle{}, NewJobError(KindDispatch, "sessionBackend.Submit", job.Name, err)
	}

	shell := "/bin/sh"
	args := []string{"-c", job.Command}
	execErr := b.executor.Execute(shell, args...)

	_ = RemoveTag(paths.JobRunning(job.Name))

	if execErr != nil {
		_ = CreateTag(paths.JobFailed(job.Name), []byte(execErr.Error()))
		return SubmissionHandle{Job: job.Name, Backend: ModeSession, Detail: "failed"},
			NewJobError(KindJobFailed, "sessionBackend.Submit", job.Name, execErr)
	}

	if err := CreateTag(paths.JobFinished(job.Name), nil); err != nil {
		return SubmissionHandle{}, NewJobError(KindDispatch, "sessionBackend.Submit", job.Name, err)
	}
	return SubmissionHandle{Job: job.Name, Backend: ModeSession, Detail: "ok"}, nil
}

func (b *sessionBackend) PostMortem(paths Paths, job string) (bool, error) {
	// session never goes through the .exit wrapper-crash state.
	return false, nil
}
