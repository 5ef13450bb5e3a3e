package transaction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	// LockFileName is created inside the directory a build owns.
	LockFileName = "build.lock"

	// StaleLockThreshold is how old an unreadable lock must be before it
	// is considered abandoned.
	StaleLockThreshold = 10 * time.Minute
)

var (
	ErrLockExists = errors.New("build lock exists: another build may be using this directory")
	ErrStaleLock  = errors.New("stale lock detected")
)

// Lock is an exclusive claim on a build working directory.
type Lock struct {
	path    string
	file    *os.File
	buildID string
}

// AcquireLock claims dir for one build. The lock file is created with
// O_CREATE|O_EXCL; a lock left behind by a dead process is replaced once.
func AcquireLock(ctx context.Context, dir, buildID string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, LockFileName)

	file, err := createLockFile(lockPath)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if stale, _ := isLockStale(ctx, lockPath); !stale {
			return nil, ErrLockExists
		}
		os.Remove(lockPath)
		file, err = createLockFile(lockPath)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\nbuild=%s\ntimestamp=%s\n",
		os.Getpid(), buildID, time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{
		path:    lockPath,
		file:    file,
		buildID: buildID,
	}, nil
}

func createLockFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// isLockStale reports whether the process recorded in the lock is gone.
// Locks without a readable pid fall back to an age check.
func isLockStale(ctx context.Context, lockPath string) (bool, error) {
	pid, err := readLockPID(lockPath)
	if err == nil {
		if pid == int32(os.Getpid()) {
			return false, nil
		}
		alive, err := process.PidExistsWithContext(ctx, pid)
		if err == nil {
			return !alive, nil
		}
	}

	info, statErr := os.Stat(lockPath)
	if statErr != nil {
		return false, statErr
	}
	return time.Since(info.ModTime()) > StaleLockThreshold, nil
}

func readLockPID(lockPath string) (int32, error) {
	f, err := os.Open(lockPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "pid=")
		if !ok {
			continue
		}
		pid, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parse lock pid: %w", err)
		}
		return int32(pid), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, ErrStaleLock
}
