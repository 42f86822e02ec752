package planner

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_ExclusiveAndBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volguard.lock")

	l1, err := acquireLock(path)
	require.NoError(t, err)

	_, err = acquireLock(path)
	assert.True(t, errors.Is(err, ErrLockBusy))

	l1.release()

	l2, err := acquireLock(path)
	require.NoError(t, err)
	l2.release()
}

func TestRelease_NilSafe(t *testing.T) {
	var l *fileLock
	l.release() // must not panic
}
