package instance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "unilang.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	defer first.Release()
	assert.Equal(t, path, first.Path())

	_, err = Acquire(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked), "got %v", err)
	assert.Contains(t, err.Error(), "pid")
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unilang.lock")

	first, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "second release is a no-op")

	second, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestOwnerRecordsPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unilang.lock")

	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Release()

	pid, err := Owner(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestOwnerMissingFile(t *testing.T) {
	_, err := Owner(filepath.Join(t.TempDir(), "absent.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestNilLockRelease(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
