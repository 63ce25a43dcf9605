//go:build unix

package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSave_BusyWhenLockHeld(t *testing.T) {
	dir := t.TempDir()
	j := openTest(t, dir, func(c *Config) { c.LockTimeout = 150 * time.Millisecond })

	// flock locks belong to the open file description, so a second open of
	// the lock file behaves like another process.
	holder, err := os.OpenFile(filepath.Join(dir, lockName), os.O_CREATE|os.O_RDWR, 0o640)
	require.NoError(t, err)
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX))

	start := time.Now()
	_, err = j.Save(context.Background(), Payload{"x": 1.0}, "busy")
	require.ErrorIs(t, err, ErrJournalBusy)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Empty(t, j.Index(), "nothing written while busy")

	_, err = j.Rotate(context.Background())
	assert.ErrorIs(t, err, ErrJournalBusy)

	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_UN))
	require.NoError(t, holder.Close())

	_, err = j.Save(context.Background(), Payload{"x": 1.0}, "busy")
	assert.NoError(t, err)
}
