package pipeline

// ReadStatus implements the Job Status Reader (§4.3): side-effect free,
// tolerant of partial writes, and resolved by the fixed priority order
// finished -> failed -> exit -> running -> submitted -> none (§3).
// .finished and .exit are written empty (by the session backend and by the
// generated script's trailing touch), so they count as present as soon as
// they exist; .failed and .running go through existsStable.
func ReadStatus(paths Paths, job string) JobStatus {
	switch {
	case Exists(paths.JobFinished(job)):
		return StatusFinished
	case existsStable(paths.JobFailed(job)):
		return StatusFailed
	case Exists(paths.JobExit(job)):
		return StatusExit
	case existsStable(paths.JobRunning(job)):
		return StatusRunning
	case Exists(paths.JobMat(job)):
		// The per-job .mat payload is written at submission time, before
		// the runner has had a chance to create .running.
		return StatusSubmitted
	default:
		return StatusNone
	}
}
