package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satishbabariya/sqlforge/cli/internal/watch"
)

func TestRunReactsToWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(file, []byte("entities: []\n"), 0o644))

	var calls atomic.Int32
	w, err := watch.New(file, func(context.Context) error {
		calls.Add(1)
		return nil
	}, watch.WithDebounce(20*time.Millisecond), watch.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(file, []byte("entities: [{table: t}]\n"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRunInitialFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	boom := errors.New("boom")
	w, err := watch.New(file, func(context.Context) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, w.Run(context.Background()), boom)
}

func TestNewMissingDirectory(t *testing.T) {
	_, err := watch.New(filepath.Join(t.TempDir(), "missing", "schema.yaml"), func(context.Context) error { return nil })
	assert.Error(t, err)
}
