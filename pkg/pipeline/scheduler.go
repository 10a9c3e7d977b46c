package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pexec "github.com/CPernet/psom/pkg/pipeline/exec"
)

// Logger is the interface the scheduler logs through, mirroring the
// teacher's orchestration.Logger so callers can plug in the structured
// logger from internal/logging or a testing stub.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// nopLogger discards everything; used when the caller passes a nil Logger.
type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}

// Scheduler is the manager's single-threaded core (§4.4): it owns the four
// masks (todo/running/finished/failed), observes tag-file status each
// iteration, cascades skips from newly-failed jobs, prunes satisfied edges,
// dispatches newly-runnable jobs to a Backend, and reports progress to the
// news feed until every job has settled or a fatal condition aborts the run.
type Scheduler struct {
	paths Paths
	cfg   Config
	env   Environment

	backend Backend
	feed    *NewsFeed
	logger  Logger

	// hb is started and stopped by Run itself: the scheduler owns the
	// heartbeat's lifetime since it's the thing whose liveness it reports.
	hb *Heartbeat

	// runID correlates one manager incarnation's log lines, the
	// teacher's "req-" + short-uuid idiom repurposed per pipeline run.
	runID string

	pipeline *Pipeline

	todo     *BitSet
	running  *BitSet
	finished *BitSet
	failed   *BitSet

	// skipped holds jobs cascade-removed from todo because an ancestor
	// failed (§4.4 step c). Kept distinct from todo so the termination
	// condition (todo and running both empty) isn't blocked forever by a
	// job that can provably never become runnable again.
	skipped *BitSet

	// workerLoad bounds max_buffer: the count of jobs currently outstanding
	// against each worker slot. jobSlot remembers which slot a running
	// job was dispatched to so settling it can release that slot.
	workerLoad []int
	jobSlot    map[int]int
	nextWorker int

	dotCount int
}

// SchedulerOption configures optional Scheduler fields.
type SchedulerOption func(*Scheduler)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler builds a Scheduler over an already-initialized pipeline. The
// caller is expected to have run Initialize and hold paths.Lock() already.
func NewScheduler(paths Paths, cfg Config, env Environment, p *Pipeline, executor pexec.CommandExecutor, opts ...SchedulerOption) (*Scheduler, error) {
	backend, err := NewBackend(cfg.Mode, executor)
	if err != nil {
		return nil, err
	}

	n := len(p.ListJobs)
	s := &Scheduler{
		paths:    paths,
		cfg:      cfg,
		env:      env,
		backend:  backend,
		feed:     NewNewsFeed(paths),
		logger:   nopLogger{},
		pipeline: p,
		todo:     NewBitSet(n),
		running:  NewBitSet(n),
		finished: NewBitSet(n),
		failed:   NewBitSet(n),
		skipped:  NewBitSet(n),
		jobSlot:  make(map[int]int),
		runID:    "run-" + uuid.New().String()[:8],
	}
	for _, opt := range opts {
		opt(s)
	}

	workers := workerCount(cfg)
	s.workerLoad = make([]int, workers)

	for i, job := range p.ListJobs {
		switch ReadStatus(paths, job) {
		case StatusFinished:
			s.finished.Set(i)
			s.pipeline.Graph.ClearRow(i)
		case StatusFailed:
			s.failed.Set(i)
		case StatusRunning, StatusSubmitted, StatusExit:
			// Initialize clears .running, .exit and .mat for every job, so
			// this is mid-flight state written after initialization (e.g.
			// by a runner still active from a prior manager incarnation):
			// treat as still running and let the observe step's
			// post-mortem resolve .exit if present.
			s.running.Set(i)
		default:
			s.todo.Set(i)
		}
	}

	return s, nil
}

// workerCount derives the number of worker slots max_buffer throttles
// dispatch against. Bounded concurrency modes get one slot per queue
// position (capped at 8 to keep bookkeeping small); unbounded modes get a
// fixed pool of 4, matching typical local cluster submission fan-out.
func workerCount(cfg Config) int {
	if cfg.Unbounded() {
		return 4
	}
	if cfg.MaxQueued > 8 {
		return 8
	}
	if cfg.MaxQueued < 1 {
		return 1
	}
	return cfg.MaxQueued
}

// Run executes the scheduler loop to completion (§4.4) and returns a
// Summary plus the first fatal error encountered, if any. A fatal error is
// always a *Error; ExitCode(err) maps it to the process exit code.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	s.logger.Info("starting pipeline", "run", s.runID, "name", s.pipeline.Name, "jobs", len(s.pipeline.ListJobs))

	s.hb = StartHeartbeat(ctx, s.paths, s.cfg.HeartbeatInterval)
	defer s.hb.Stop()

	for {
		if err := ctx.Err(); err != nil {
			abortErr := NewError(KindOperatorAbort, "Scheduler.Run", err)
			return s.summaryFor(abortErr), abortErr
		}

		if !Held(s.paths) {
			abortErr := NewError(KindOperatorAbort, "Scheduler.Run",
				fmt.Errorf("PIPE.lock was removed; another process may have taken over or the operator aborted"))
			return s.summaryFor(abortErr), abortErr
		}
		if CheckKillSwitch(s.paths) {
			_ = SignalKillToRunning(s.paths, s.runningNames())
			abortErr := NewError(KindOperatorAbort, "Scheduler.Run",
				fmt.Errorf("PIPE.kill present; cooperative shutdown requested"))
			return s.summaryFor(abortErr), abortErr
		}

		s.observe()

		if s.todo.IsZero() && s.running.IsZero() {
			break
		}

		dispatched, err := s.dispatchRunnable(ctx)
		if err != nil {
			return s.summaryFor(err), err
		}

		if dispatched == 0 && !s.running.IsZero() {
			s.wait()
		}
	}

	s.logger.Info("pipeline finished",
		"finished", s.finished.Count(), "failed", s.failed.Count())

	return s.summary(), nil
}

// observe implements §4.4 step (b): for every job still marked running in
// our masks, re-read its tag-file status. A backend's PostMortem gets a
// chance to demote a wrapper-crashed "exit" status to failed before the
// generic finished/failed/still-running classification is applied.
func (s *Scheduler) observe() {
	for _, i := range s.running.Indices() {
		job := s.pipeline.ListJobs[i]

		if demoted, err := s.backend.PostMortem(s.paths, job); err != nil {
			s.logger.Error("post-mortem failed", "job", job, "error", err)
		} else if demoted {
			s.settleFailed(i, job)
			continue
		}

		switch ReadStatus(s.paths, job) {
		case StatusFinished:
			s.settleFinished(i, job)
		case StatusFailed:
			s.settleFailed(i, job)
		default:
			// still running, submitted, or exit-without-postmortem: leave
			// it in the running mask for the next iteration.
		}
	}
}

// settleFinished implements §4.4 step (d), edge pruning: job i's row is
// cleared since its outputs no longer constrain any consumer.
func (s *Scheduler) settleFinished(i int, job string) {
	s.running.Clear(i)
	s.finished.Set(i)
	s.pipeline.Graph.ClearRow(i)
	s.releaseWorkerSlot(i)
	_ = s.feed.Append(job, EventFinished)
	s.report(job, "finished")
}

// settleFailed implements §4.4 step (c), cascade-skip: every transitive
// descendant of a newly-failed job is removed from todo (it can never
// become runnable, since its ancestor's outputs will never appear).
func (s *Scheduler) settleFailed(i int, job string) {
	s.running.Clear(i)
	s.failed.Set(i)
	s.releaseWorkerSlot(i)
	_ = s.feed.Append(job, EventFailed)
	s.report(job, "failed")

	descendants := s.pipeline.Graph.TransitiveDescendants(i)
	for _, d := range descendants.Indices() {
		if s.todo.Get(d) {
			s.todo.Clear(d)
			s.skipped.Set(d)
		}
	}
}

// dispatchRunnable implements §4.4 step (e): a todo job is runnable once
// its column is all-zero (no remaining producer constrains it). Dispatch
// is throttled by max_queued (total concurrency) and max_buffer (per
// worker-slot backlog); it returns the count of jobs newly submitted.
func (s *Scheduler) dispatchRunnable(ctx context.Context) (int, error) {
	dispatched := 0

	for _, i := range s.todo.Indices() {
		if !s.cfg.Unbounded() && s.running.Count() >= s.cfg.MaxQueued {
			break
		}
		if !s.pipeline.Graph.ColumnIsZero(i) {
			continue
		}

		slot := s.pickWorkerSlot()
		if slot < 0 {
			// every worker slot is at max_buffer capacity; wait for one to
			// drain before submitting more this iteration.
			break
		}

		job := s.pipeline.ListJobs[i]
		decl := s.pipeline.Jobs[job]

		if err := writeJobMat(s.paths, decl); err != nil {
			return dispatched, NewJobError(KindDispatch, "Scheduler.dispatchRunnable", job, err)
		}

		s.todo.Clear(i)
		s.workerLoad[slot]++
		s.jobSlot[i] = slot
		dispatched++
		_ = s.feed.Append(job, EventSubmitted)
		s.report(job, "submitted")

		_, err := s.backend.Submit(ctx, s.env, s.cfg, s.paths, decl)
		if err != nil {
			if kind, ok := KindOf(err); ok && kind == KindJobFailed {
				// session backend already ran the job synchronously and
				// reported its own failure; settle it exactly as observe
				// would have.
				s.settleFailed(i, job)
				continue
			}
			return dispatched, err
		}

		if s.cfg.Mode == ModeSession {
			// session backend already ran synchronously and Submit only
			// returns nil on success: classify it as finished immediately
			// rather than waiting for the next observe pass.
			s.settleFinished(i, job)
			continue
		}

		s.running.Set(i)
	}

	return dispatched, nil
}

// pickWorkerSlot returns the first worker slot still under max_buffer,
// scanning round-robin from the slot after the last one picked, or -1 if
// every slot is saturated.
func (s *Scheduler) pickWorkerSlot() int {
	n := len(s.workerLoad)
	for offset := 0; offset < n; offset++ {
		slot := (s.nextWorker + offset) % n
		if s.workerLoad[slot] < s.cfg.MaxBuffer {
			s.nextWorker = (slot + 1) % n
			return slot
		}
	}
	return -1
}

// wait implements the manager's polling cadence (§4.4, §6): sleep
// time_between_checks, and print a liveness dot every nb_checks_per_point
// iterations so the console shows progress during a long quiet stretch.
func (s *Scheduler) wait() {
	if s.cfg.TimeBetweenChecks <= 0 {
		return
	}
	time.Sleep(s.cfg.TimeBetweenChecks)

	if s.cfg.NbChecksPerPoint <= 0 {
		return
	}
	s.dotCount++
	if s.dotCount >= s.cfg.NbChecksPerPoint {
		s.dotCount = 0
		s.logger.Debug(".")
	}
}

// report emits the §4.4(a) one-line human report through the logger, at
// Error level for a failed job and at Info level otherwise.
func (s *Scheduler) report(job, verb string) {
	queued := s.todo.Count() + s.running.Count()
	line := reportLine(job, verb, queued)
	if verb == "failed" {
		s.logger.Error(line)
		return
	}
	s.logger.Info(line)
}

// releaseWorkerSlot frees the worker slot a settled job was occupying, if
// it was dispatched by this scheduler instance (jobs inherited as already
// running from a prior manager incarnation were never assigned one).
func (s *Scheduler) releaseWorkerSlot(i int) {
	if slot, ok := s.jobSlot[i]; ok {
		s.workerLoad[slot]--
		delete(s.jobSlot, i)
	}
}

func (s *Scheduler) runningNames() []string {
	var names []string
	for _, i := range s.running.Indices() {
		names = append(names, s.pipeline.ListJobs[i])
	}
	return names
}

// summaryFor builds the final Summary and marks it aborted with err's Kind.
func (s *Scheduler) summaryFor(err error) Summary {
	sum := s.summary()
	sum.Aborted = true
	if kind, ok := KindOf(err); ok {
		sum.AbortKind = kind
	}
	return sum
}

func (s *Scheduler) summary() Summary {
	var finishedNames, failedNames, skippedNames []string
	for _, i := range s.finished.Indices() {
		finishedNames = append(finishedNames, s.pipeline.ListJobs[i])
	}
	for _, i := range s.failed.Indices() {
		failedNames = append(failedNames, s.pipeline.ListJobs[i])
	}
	for _, i := range s.skipped.Indices() {
		skippedNames = append(skippedNames, s.pipeline.ListJobs[i])
	}
	return BuildSummary(s.paths, len(s.pipeline.ListJobs), finishedNames, failedNames, skippedNames)
}
