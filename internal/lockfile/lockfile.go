// Package lockfile guards a LoopPipe state directory against concurrent servers.
//
// The lock is an flock on a file inside the state directory, so the kernel releases it when
// the holding process exits for any reason. The file body records who holds it.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "looppipe.lock"

// Owner describes the process holding a lock.
type Owner struct {
	PID       int
	Addr      string
	StartedAt time.Time
}

// Running reports whether the owning process still exists.
func (o Owner) Running() bool {
	return o.PID > 0 && isProcessRunning(o.PID)
}

func (o Owner) String() string {
	if o.PID == 0 {
		return "unknown owner"
	}
	state := "not running, stale lock"
	if o.Running() {
		state = "running"
	}
	s := fmt.Sprintf("PID %d (%s)", o.PID, state)
	if o.Addr != "" {
		s += " serving " + o.Addr
	}
	if !o.StartedAt.IsZero() {
		s += " since " + o.StartedAt.Format(time.RFC3339)
	}
	return s
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes an exclusive, non-blocking lock on stateDir, creating the directory if
// needed. addr is recorded in the lock file so a second instance can report who holds it.
func AcquireLock(stateDir, addr string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC is deferred until the flock is held so a losing contender cannot wipe the owner info.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		owner := readOwner(lockPath)
		slog.Error("AcquireLock: state directory already locked", "lock_path", lockPath, "owner", owner.String())
		return nil, &LockError{LockPath: lockPath, Owner: owner, Cause: err}
	}

	if err := writeOwner(file, Owner{PID: os.Getpid(), Addr: addr, StartedAt: time.Now().UTC()}); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock owner to %s: %w", lockPath, err)
	}

	slog.Info("AcquireLock: state directory locked", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var firstErr error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		firstErr = fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "lock_path", l.path, "error", err)
	}
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "lock_path", l.path)
	return firstErr
}

// LockError is returned when another process holds the lock.
type LockError struct {
	LockPath string
	Owner    Owner
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another LoopPipe instance is already using this state directory (lock file: %s", e.LockPath)
	fmt.Fprintf(&b, ", held by %s)", e.Owner)
	if e.Owner.PID > 0 && !e.Owner.Running() {
		fmt.Fprintf(&b, "; the lock looks stale, remove it with: rm %s", e.LockPath)
	}
	return b.String()
}

func (e *LockError) Unwrap() error { return e.Cause }

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	body := fmt.Sprintf("pid=%d\naddr=%s\nstarted=%s\n", o.PID, o.Addr, o.StartedAt.Format(time.RFC3339))
	if _, err := f.WriteString(body); err != nil {
		return err
	}
	return f.Sync()
}

func readOwner(lockPath string) Owner {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Owner{}
	}
	return parseOwner(string(data))
}

// parseOwner reads the key=value lines written by writeOwner. Unknown or malformed lines are ignored.
func parseOwner(content string) Owner {
	var o Owner
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				o.PID = pid
			}
		case "addr":
			o.Addr = value
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				o.StartedAt = ts
			}
		}
	}
	return o
}

// isProcessRunning sends signal 0, which checks existence without delivering anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
