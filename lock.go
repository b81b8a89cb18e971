package buildcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/gophersatwork/buildcache/internal/logging"
)

// lockRetryDelay is how long to wait between attempts on a held lock.
const lockRetryDelay = 50 * time.Millisecond

// acquire takes the per-key advisory lock, exclusive for writers and shared
// for readers, and returns the release func. Locks only exist on the OS
// filesystem; other filesystems get a no-op release.
func (c *Cache) acquire(ctx context.Context, exclusive bool) (func(), error) {
	noop := func() {}
	if !c.locking {
		return noop, nil
	}
	if _, ok := c.fs.(*afero.OsFs); !ok {
		return noop, nil
	}

	lock := flock.New(c.lockPath())
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		// A reader that cannot create or open the lock file still reads the
		// archive; the archive open reports a real miss.
		if !exclusive && lockUnavailable(err) {
			c.logger.DebugContext(ctx, "reading cache without lock",
				logging.String("lock", lock.Path()),
				logging.Error(err))
			return noop, nil
		}
		return noop, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return noop, fmt.Errorf("lock %s: not acquired", lock.Path())
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release cache lock",
				logging.String("lock", lock.Path()),
				logging.Error(err))
		}
	}, nil
}

// lockUnavailable reports whether err means the lock file cannot be opened
// at all: no cache root yet, a read-only root, or a lock owned by another user.
func lockUnavailable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EROFS)
}
