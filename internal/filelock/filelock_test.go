package filelock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExclusiveLock(t *testing.T) {
	t.Run("RunsFunctionUnderLock", func(t *testing.T) {
		lockPath := filepath.Join(t.TempDir(), "test.lock")

		ran := false
		err := WithExclusiveLock(lockPath, 3, time.Millisecond, func() error {
			ran = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("PropagatesFunctionError", func(t *testing.T) {
		lockPath := filepath.Join(t.TempDir(), "test.lock")

		sentinel := assert.AnError
		err := WithExclusiveLock(lockPath, 3, time.Millisecond, func() error {
			return sentinel
		})

		require.ErrorIs(t, err, sentinel)
	})

	t.Run("TimesOutWhenLockHeld", func(t *testing.T) {
		lockPath := filepath.Join(t.TempDir(), "test.lock")

		holder := flock.New(lockPath)
		locked, err := holder.TryLock()
		require.NoError(t, err)
		require.True(t, locked)
		defer func() { _ = holder.Unlock() }()

		err = WithExclusiveLock(lockPath, 2, time.Millisecond, func() error {
			t.Fatal("function must not run without the lock")
			return nil
		})

		require.Error(t, err)
		assert.True(t, IsLockTimeout(err))
	})

	t.Run("AcquiresAfterRelease", func(t *testing.T) {
		lockPath := filepath.Join(t.TempDir(), "test.lock")

		holder := flock.New(lockPath)
		locked, err := holder.TryLock()
		require.NoError(t, err)
		require.True(t, locked)

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = holder.Unlock()
		}()

		err = WithExclusiveLock(lockPath, 10, 10*time.Millisecond, func() error {
			return nil
		})
		require.NoError(t, err)
	})
}
