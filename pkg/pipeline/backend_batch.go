package pipeline

import (
	"context"
	"fmt"

	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

// batchBackend submits jobs to a local `at`-style one-shot queue. It
// renders the job's shell script then runs `at -f <script> now`; submission
// failure (non-zero exit) is EDispatch and fatal to the manager (§4.5).
type batchBackend struct {
	executor pexec.CommandExecutor
}

func (b *batchBackend) Name() Mode { return ModeBatch }

func (b *batchBackend) Submit(ctx context.Context, env Environment, cfg Config, paths Paths, job JobDeclaration) (SubmissionHandle, error) {
	scriptPath, err := renderScript(paths, cfg, job.Name)
	if err != nil {
		return SubmissionHandle{}, NewJobError(KindDispatch, "batchBackend.Submit", job.Name, err)
	}

	if err := b.executor.Execute("at", "-f", scriptPath, "now"); err != nil {
		return SubmissionHandle{}, NewJobError(KindDispatch, "batchBackend.Submit", job.Name,
			fmt.Errorf("at submission failed: %w", err))
	}

	return SubmissionHandle{Job: job.Name, Backend: ModeBatch, Detail: scriptPath}, nil
}

// PostMortem for batch mode has no wrapper-crash signal beyond what the
// generic status reader already sees (the `.exit` sentinel exists for
// every backend, but only qsub's post-mortem promotes on it — at's local
// queue either runs the script or the `at` command itself already failed
// at submission time, which Submit already reports as EDispatch).
func (b *batchBackend) PostMortem(paths Paths, job string) (bool, error) {
	return false, nil
}
