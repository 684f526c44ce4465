// Package filelock provides a single retry-with-backoff exclusive lock
// primitive shared by every file writer in the pipeline, so the retry policy
// is defined once.
package filelock

import (
	"time"

	"github.com/gofrs/flock"

	"github.com/aquaguard/aquaguard-go/internal/errors"
)

// Defaults for lock acquisition. Ten attempts at 100ms matches the tolerance
// the CSV writers need under concurrent ingestion.
const (
	DefaultMaxAttempts = 10
	DefaultBackoff     = 100 * time.Millisecond
)

// WithExclusiveLock acquires an exclusive advisory lock on lockPath, retrying
// up to maxAttempts times with a fixed backoff, then runs fn while holding the
// lock. The lock file is separate from the data file so the data file itself
// can be created, truncated or renamed freely under the lock.
func WithExclusiveLock(lockPath string, maxAttempts int, backoff time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	fl := flock.New(lockPath)
	locked := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		got, err := fl.TryLock()
		if err != nil {
			return errors.New(err).
				Component("filelock").
				Category(errors.CategoryFileIO).
				Context("lock_path", lockPath).
				Build()
		}
		if got {
			locked = true
			break
		}
		time.Sleep(backoff)
	}

	if !locked {
		return errors.Newf("could not acquire lock on %s after %d attempts", lockPath, maxAttempts).
			Component("filelock").
			Category(errors.CategoryLockTimeout).
			Context("lock_path", lockPath).
			Context("attempts", maxAttempts).
			Build()
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}

// IsLockTimeout reports whether err is a lock acquisition timeout.
func IsLockTimeout(err error) bool {
	return errors.IsCategory(err, errors.CategoryLockTimeout)
}
