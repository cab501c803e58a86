// Package retryqueue persists the set of keyword IDs pending a
// re-scrape as a JSON array in a single file.
//
// The API server and the cron worker are separate OS processes sharing
// this file, so every mutation runs under a cross-process advisory file
// lock, not an in-memory mutex. Writes go through a temp file and
// rename so a crash mid-write never leaves a truncated queue.
package retryqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// ErrInvalidID is returned by Add for non-positive keyword IDs.
var ErrInvalidID = errors.New("retry queue ids must be positive")

// ErrLockTimeout is returned when the advisory lock cannot be acquired
// within the configured attempts.
var ErrLockTimeout = errors.New("retry queue lock acquisition timed out")

// Config controls Queue behavior.
type Config struct {
	Path         string
	LockAttempts int
	LockBackoff  time.Duration
}

// Queue is a file-backed set of keyword IDs. The file is the sole
// source of truth; nothing is cached across calls.
type Queue struct {
	path         string
	lockPath     string
	lockAttempts int
	lockBackoff  time.Duration
	logger       *zap.Logger
}

// New constructs a Queue for the given file path.
func New(cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockAttempts <= 0 {
		cfg.LockAttempts = 10
	}
	if cfg.LockBackoff <= 0 {
		cfg.LockBackoff = 50 * time.Millisecond
	}
	return &Queue{
		path:         cfg.Path,
		lockPath:     cfg.Path + ".lock",
		lockAttempts: cfg.LockAttempts,
		lockBackoff:  cfg.LockBackoff,
		logger:       logger,
	}
}

// Add inserts id into the queue. Adding an id already present is a
// no-op that still succeeds.
func (q *Queue) Add(id int64) error {
	if id <= 0 {
		return ErrInvalidID
	}
	return q.mutate(func(ids []int64) ([]int64, bool) {
		for _, existing := range ids {
			if existing == id {
				return ids, false
			}
		}
		return append(ids, id), true
	})
}

// Remove deletes id from the queue if present.
func (q *Queue) Remove(id int64) error {
	return q.RemoveBatch([]int64{id})
}

// RemoveBatch deletes every id in ids from the queue. When none are
// present no write occurs.
func (q *Queue) RemoveBatch(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return q.mutate(func(current []int64) ([]int64, bool) {
		kept := current[:0]
		changed := false
		for _, id := range current {
			if _, ok := drop[id]; ok {
				changed = true
				continue
			}
			kept = append(kept, id)
		}
		return kept, changed
	})
}

// List returns the queued ids in ascending order.
func (q *Queue) List() ([]int64, error) {
	lock, err := q.acquire()
	if err != nil {
		return nil, err
	}
	defer q.release(lock)

	ids, err := q.read()
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Clear empties the queue.
func (q *Queue) Clear() error {
	return q.mutate(func(ids []int64) ([]int64, bool) {
		return []int64{}, len(ids) > 0
	})
}

// mutate runs a read-modify-write cycle under the advisory lock. The
// transform returns the new set and whether anything changed; an
// unchanged set skips the file write.
func (q *Queue) mutate(transform func([]int64) ([]int64, bool)) error {
	lock, err := q.acquire()
	if err != nil {
		return err
	}
	defer q.release(lock)

	ids, err := q.read()
	if err != nil {
		return err
	}
	next, changed := transform(ids)
	if !changed {
		return nil
	}
	return q.write(next)
}

// acquire takes the advisory lock with bounded retry and backoff.
func (q *Queue) acquire() (*flock.Flock, error) {
	if err := q.ensureFile(); err != nil {
		return nil, err
	}
	lock := flock.New(q.lockPath)
	for attempt := 0; attempt < q.lockAttempts; attempt++ {
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire queue lock: %w", err)
		}
		if locked {
			return lock, nil
		}
		time.Sleep(q.lockBackoff)
	}
	return nil, ErrLockTimeout
}

// release unlocks in a defer path; failures are logged rather than
// returned so they never mask the original error.
func (q *Queue) release(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		q.logger.Warn("retry queue unlock failed", zap.Error(err))
	}
}

func (q *Queue) ensureFile() error {
	if _, err := os.Stat(q.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat queue file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	if err := os.WriteFile(q.path, []byte("[]"), 0o644); err != nil {
		return fmt.Errorf("create queue file: %w", err)
	}
	return nil
}

// read parses the queue file, defensively discarding anything that is
// not a positive integer so a hand-edited or corrupted file does not
// wedge the queue.
func (q *Queue) read() ([]int64, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		q.logger.Warn("retry queue file corrupted, resetting", zap.Error(err))
		return []int64{}, nil
	}
	ids := make([]int64, 0, len(raw))
	for _, entry := range raw {
		n, ok := entry.(float64)
		if !ok || n != float64(int64(n)) || int64(n) <= 0 {
			q.logger.Warn("discarding invalid retry queue entry", zap.Any("entry", entry))
			continue
		}
		ids = append(ids, int64(n))
	}
	return ids, nil
}

// write atomically replaces the queue file via temp file and rename.
func (q *Queue) write(ids []int64) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create queue temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write queue temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close queue temp file: %w", err)
	}
	if err := os.Rename(tmpName, q.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
