package pipeline

import (
	"context"
	"time"
)

// Heartbeat periodically touches paths.Heartbeat() so external monitors can
// detect manager death (§4.6). It is a simple ticker goroutine in the
// manager process, the Go-native replacement for the source's "spawn
// another interpreter instance" side process (§9 re-architecture note).
type Heartbeat struct {
	paths    Paths
	interval time.Duration
	done     chan struct{}
}

// StartHeartbeat launches the heartbeat loop and returns a handle whose
// Stop method ends it. It touches the file immediately so liveness is
// visible before the first tick.
func StartHeartbeat(ctx context.Context, paths Paths, interval time.Duration) *Heartbeat {
	h := &Heartbeat{paths: paths, interval: interval, done: make(chan struct{})}
	touch(paths.Heartbeat())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.C:
				touch(paths.Heartbeat())
			}
		}
	}()

	return h
}

// Stop ends the heartbeat goroutine. Idempotent.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	select {
	case <-h.done:
		// already stopped
	default:
		close(h.done)
	}
}

func touch(path string) {
	now := time.Now()
	_ = CreateTag(path, []byte(now.UTC().Format(time.RFC3339Nano)+"\n"))
}

// CheckKillSwitch reports whether PIPE.kill is present, i.e. the operator
// has requested a cooperative shutdown (§4.6).
func CheckKillSwitch(paths Paths) bool {
	return Exists(paths.Kill())
}

// SignalKillToRunning writes a <job>.kill tag for every currently-running
// job, the cooperative cancellation signal runners are expected to honor
// (§4.6, §5 Cancellation).
func SignalKillToRunning(paths Paths, running []string) error {
	for _, job := range running {
		if err := CreateTag(paths.JobKill(job), nil); err != nil {
			return err
		}
	}
	return nil
}
