package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lock represents this process's ownership of a log directory's
// PIPE.lock, enforcing the manager-uniqueness invariant (§5, §3 invariant 5).
type Lock struct {
	path string
}

// LockInfo is the parsed content of a PIPE.lock file: pid and the time the
// lock was acquired (serialized timestamp, per §6).
type LockInfo struct {
	PID       int
	Acquired  time.Time
}

// AcquireLock creates paths.Lock() with create-exclusive semantics. If the
// lock already exists, ErrLocked is returned (wrapped) so the caller can
// decide whether to prompt the operator to treat it as stale (§5's
// manager-uniqueness invariant: starting a manager when PIPE.lock exists
// prompts the user; on confirmation the lock is removed and replaced).
func AcquireLock(paths Paths) (*Lock, error) {
	content := fmt.Sprintf("%d\n%d\n", os.Getpid(), time.Now().Unix())
	f, err := os.OpenFile(paths.Lock(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, NewError(KindOperatorAbort, "AcquireLock", ErrLocked)
		}
		return nil, NewError(KindOperatorAbort, "AcquireLock", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return nil, NewError(KindOperatorAbort, "AcquireLock", err)
	}
	return &Lock{path: paths.Lock()}, nil
}

// ErrLocked is returned by AcquireLock when PIPE.lock already exists.
var ErrLocked = fmt.Errorf("PIPE.lock already exists; another manager may be running")

// ReadLockInfo reads and parses an existing PIPE.lock.
func ReadLockInfo(paths Paths) (LockInfo, error) {
	data, err := os.ReadFile(paths.Lock())
	if err != nil {
		return LockInfo{}, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var info LockInfo
	if len(lines) > 0 {
		info.PID, _ = strconv.Atoi(strings.TrimSpace(lines[0]))
	}
	if len(lines) > 1 {
		if sec, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64); err == nil {
			info.Acquired = time.Unix(sec, 0)
		}
	}
	return info, nil
}

// ForceAcquireLock removes a pre-existing PIPE.lock (treating it as stale,
// after operator confirmation obtained by the caller) and acquires a fresh
// one.
func ForceAcquireLock(paths Paths) (*Lock, error) {
	_ = os.Remove(paths.Lock())
	return AcquireLock(paths)
}

// Release removes PIPE.lock, relinquishing manager ownership of the log
// directory. Safe to call even if the file is already gone (operator abort
// path, §4.4 Termination).
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Held reports whether PIPE.lock still exists. The scheduler polls this to
// detect §4.4's "PIPE.lock externally deleted" termination condition.
func Held(paths Paths) bool { return Exists(paths.Lock()) }
