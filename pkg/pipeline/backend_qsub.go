package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

// qsubBackend submits jobs to a cluster batch scheduler (SGE/PBS family)
// via `qsub -e <job>.eqsub -o <job>.oqsub -N <name> <opts> <script>` (§4.5).
// The -N name is truncated to fifteen characters.
type qsubBackend struct {
	executor pexec.CommandExecutor
}

func (b *qsubBackend) Name() Mode { return ModeQsub }

func (b *qsubBackend) Submit(ctx context.Context, env Environment, cfg Config, paths Paths, job JobDeclaration) (SubmissionHandle, error) {
	scriptPath, err := renderScript(paths, cfg, job.Name)
	if err != nil {
		return SubmissionHandle{}, NewJobError(KindDispatch, "qsubBackend.Submit", job.Name, err)
	}

	args := []string{
		"-e", paths.JobEqsub(job.Name),
		"-o", paths.JobOqsub(job.Name),
		"-N", truncateName(job.Name),
	}
	// QsubOptions is passed verbatim to qsub (§6), but Execute takes a
	// pre-tokenized arg slice, so a value like "-l h_vmem=4G -q all.q"
	// must be split into separate tokens rather than handed over as one
	// opaque argument.
	args = append(args, strings.Fields(cfg.QsubOptions)...)
	args = append(args, scriptPath)

	if err := b.executor.Execute("qsub", args...); err != nil {
		return SubmissionHandle{}, NewJobError(KindDispatch, "qsubBackend.Submit", job.Name,
			fmt.Errorf("qsub submission failed: %w", err))
	}

	return SubmissionHandle{Job: job.Name, Backend: ModeQsub, Detail: scriptPath}, nil
}

// PostMortem implements §4.4 step (b) and §4.5's qsub-specific detection:
// a running job whose tag layer reports status = exit (the backend
// wrapper's script reached its trailing `touch <job>.exit`, but the runner
// never wrote .finished or .failed — a wrapper crash, e.g. the cluster
// killed the job for exceeding a resource limit) is promoted to failed.
// Before promotion, the .log, .oqsub and .eqsub contents are appended into
// the job's own .log under labeled banners.
//
// §9 flags that the source appends this log using a different file handle
// than the one it opened; the corrected behavior mirrored here is: open
// paths.JobLog(job) exactly once, in append mode, and write every banner
// and its source content through that same handle.
func (b *qsubBackend) PostMortem(paths Paths, job string) (bool, error) {
	if ReadStatus(paths, job) != StatusExit {
		return false, nil
	}

	logFile, err := os.OpenFile(paths.JobLog(job), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return false, NewJobError(KindBackendCrash, "qsubBackend.PostMortem", job, err)
	}
	defer logFile.Close()

	for _, src := range []struct {
		banner string
		path   string
	}{
		{"=== qsub wrapper exit (no finished/failed reported) ===", ""},
		{"--- oqsub ---", paths.JobOqsub(job)},
		{"--- eqsub ---", paths.JobEqsub(job)},
	} {
		if _, err := fmt.Fprintln(logFile, src.banner); err != nil {
			return false, NewJobError(KindBackendCrash, "qsubBackend.PostMortem", job, err)
		}
		if src.path == "" {
			continue
		}
		if data, err := os.ReadFile(src.path); err == nil {
			if _, err := logFile.Write(data); err != nil {
				return false, NewJobError(KindBackendCrash, "qsubBackend.PostMortem", job, err)
			}
		}
	}

	if err := CreateTag(paths.JobFailed(job), []byte("qsub wrapper exited without a result")); err != nil {
		return false, NewJobError(KindBackendCrash, "qsubBackend.PostMortem", job, err)
	}
	_ = RemoveTag(paths.JobExit(job))

	return true, nil
}
