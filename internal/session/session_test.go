package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/progress"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

// tree builds root/A/{f1:100, f2:200, B/{f3:50}} plus root/C/{f4:1000}.
func tree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "f1"), 100)
	writeFile(t, filepath.Join(root, "A", "f2"), 200)
	writeFile(t, filepath.Join(root, "A", "B", "f3"), 50)
	writeFile(t, filepath.Join(root, "C", "f4"), 1000)
	return root
}

func logicalOptions() Options {
	opts := DefaultOptions()
	opts.Basis = model.Logical
	return opts
}

func TestStartCompleted(t *testing.T) {
	root := tree(t)
	sum, err := Start(context.Background(), root, logicalOptions())
	require.NoError(t, err)

	assert.Equal(t, Completed, sum.Status)
	assert.NotEmpty(t, sum.ID)
	assert.NotEqual(t, traverse.Auto, sum.Strategy)
	assert.False(t, sum.Finished.Before(sum.Started))
	assert.Equal(t, model.Totals{Bytes: 1350, Files: 4, Dirs: 3}, sum.Totals)
	assert.Empty(t, sum.Errors)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, ExitOK, ExitCode(sum, err))

	rootEntry, ok := sum.RootEntry()
	require.True(t, ok)
	assert.EqualValues(t, 1350, rootEntry.SizeBytes)
	assert.EqualValues(t, 2, rootEntry.DirCount)

	a, ok := model.Find(sum.Entries, filepath.Join(sum.Root, "A"))
	require.True(t, ok)
	assert.EqualValues(t, 350, a.SizeBytes)
	assert.EqualValues(t, 2, a.FileCount)
	assert.EqualValues(t, 1, a.DirCount)

	top := sum.Top(model.BySize, 1)
	require.Len(t, top, 1)
	assert.Equal(t, filepath.Join(sum.Root, "C"), top[0].Path)

	children := sum.Children(sum.Root, model.ByFiles, 0)
	require.Len(t, children, 2)
	assert.Equal(t, filepath.Join(sum.Root, "A"), children[0].Path)

	require.NotEmpty(t, sum.Progress)
	assertOrdered(t, sum.Progress)
	assert.Equal(t, 1.0, sum.Progress[len(sum.Progress)-1].Completion)
}

func TestEveryStrategyAgrees(t *testing.T) {
	root := tree(t)
	for _, id := range []traverse.ID{traverse.Legacy, traverse.Posix, traverse.NTFS, traverse.Fastwalk} {
		t.Run(string(id), func(t *testing.T) {
			opts := logicalOptions()
			opts.Strategy = id
			sum, err := Start(context.Background(), root, opts)
			require.NoError(t, err)
			assert.Equal(t, model.Totals{Bytes: 1350, Files: 4, Dirs: 3}, sum.Totals)
		})
	}
}

func TestUnsupportedStrategyFallsBack(t *testing.T) {
	opts := logicalOptions()
	opts.Strategy = traverse.NTFS
	if runtime.GOOS == "windows" {
		opts.Strategy = traverse.Posix
	}
	sum, err := Start(context.Background(), tree(t), opts)
	require.NoError(t, err)
	assert.Equal(t, traverse.Legacy, sum.Strategy)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, model.CodeStrategyUnsupported, sum.Errors[0].Code)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, ExitPartial, ExitCode(sum, err))
}

func TestLegacyFlag(t *testing.T) {
	opts := logicalOptions()
	opts.Legacy = true
	sum, err := Start(context.Background(), tree(t), opts)
	require.NoError(t, err)
	assert.Equal(t, traverse.Legacy, sum.Strategy)
}

func TestInvalidInput(t *testing.T) {
	_, err := Start(context.Background(), filepath.Join(t.TempDir(), "missing"), DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, ExitInvalid, ExitCode(nil, err))

	f := filepath.Join(t.TempDir(), "file")
	writeFile(t, f, 1)
	_, err = Start(context.Background(), f, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Start(context.Background(), "", DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)

	opts := DefaultOptions()
	opts.MaxDepth = -1
	_, err = Start(context.Background(), t.TempDir(), opts)
	assert.ErrorIs(t, err, ErrInvalidInput)

	opts = DefaultOptions()
	opts.Strategy = "turbo"
	_, err = Start(context.Background(), t.TempDir(), opts)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPermissionDeniedSibling(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permissions are not enforced")
	}
	root := t.TempDir()
	for i := range 10 {
		writeFile(t, filepath.Join(root, "s"+itoa(i), "f"), 110)
	}
	locked := filepath.Join(root, "s"+itoa(3))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	for _, id := range []traverse.ID{traverse.Legacy, traverse.Posix, traverse.Fastwalk} {
		t.Run(string(id), func(t *testing.T) {
			if id == traverse.Posix && !traverse.NewPosix().Supported() {
				t.Skip("posix walker not available")
			}
			opts := logicalOptions()
			opts.Strategy = id
			sum, err := Start(context.Background(), root, opts)
			require.NoError(t, err)
			assert.Equal(t, Completed, sum.Status)
			assert.EqualValues(t, 990, sum.Totals.Bytes)
			assert.GreaterOrEqual(t, sum.Skipped, 1)
			assert.Equal(t, sum.Skipped, model.CountWarnings(sum.Errors))
			assert.Equal(t, ExitPartial, ExitCode(sum, err))

			entry, ok := model.Find(sum.Entries, locked)
			require.True(t, ok)
			assert.True(t, entry.Errored)
			assert.Zero(t, entry.SizeBytes)

			for i := range 10 {
				if i == 3 {
					continue
				}
				sibling, ok := model.Find(sum.Entries, filepath.Join(sum.Root, "s"+itoa(i)))
				require.True(t, ok)
				assert.EqualValues(t, 110, sibling.SizeBytes)
				assert.False(t, sibling.Errored)
			}

			var critical []model.ScanError
			for _, e := range sum.Errors {
				if e.Severity == model.Critical {
					critical = append(critical, e)
				}
			}
			require.Len(t, critical, 1)
			assert.Equal(t, locked, critical[0].Path)
		})
	}
}

func TestCancelledScanIsAborted(t *testing.T) {
	root := tree(t)
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errors.New("user pressed ctrl-c"))

	sum, err := Start(ctx, root, logicalOptions())
	require.NoError(t, err)
	assert.Equal(t, Aborted, sum.Status)
	assert.Equal(t, "user pressed ctrl-c", sum.Cause)
	assert.NotEmpty(t, sum.Entries, "partial results are kept")
	assert.Equal(t, ExitPartial, ExitCode(sum, err))
}

// countdownCtx cancels itself once its cancellation state has been checked
// a given number of times, which is how walkers poll for it between
// directories or entries.
type countdownCtx struct {
	context.Context
	cancel context.CancelFunc
	left   atomic.Int64
}

func cancelAfterChecks(n int64) *countdownCtx {
	ctx, cancel := context.WithCancel(context.Background())
	c := &countdownCtx{Context: ctx, cancel: cancel}
	c.left.Store(n)
	return c
}

func (c *countdownCtx) tick() {
	if c.left.Add(-1) == 0 {
		c.cancel()
	}
}

func (c *countdownCtx) Err() error {
	c.tick()
	return c.Context.Err()
}

func (c *countdownCtx) Done() <-chan struct{} {
	c.tick()
	return c.Context.Done()
}

// largeTree builds dirs directories of files one-byte files each.
func largeTree(t *testing.T, dirs, files int) string {
	t.Helper()
	root := t.TempDir()
	for d := range dirs {
		dir := filepath.Join(root, "d"+itoa(d))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for f := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "f"+itoa(f)), []byte{1}, 0o644))
		}
	}
	return root
}

func assertOrdered(t *testing.T, snaps []model.ProgressSnapshot) {
	t.Helper()
	for i := 1; i < len(snaps); i++ {
		assert.True(t, snaps[i].Time.After(snaps[i-1].Time), "snapshot %d time", i)
		assert.Greater(t, snaps[i].ProcessedEntries, snaps[i-1].ProcessedEntries, "snapshot %d entries", i)
	}
}

func TestLargeTreeCancelledMidway(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a large tree")
	}
	root := largeTree(t, 300, 300)

	tests := []struct {
		strategy traverse.ID
		// checks is how many cancellation checks pass before the scan is
		// cancelled. Legacy and posix check once per directory, fastwalk
		// once per entry.
		checks int64
	}{
		{traverse.Legacy, 50},
		{traverse.Posix, 50},
		{traverse.Fastwalk, 5000},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			if tt.strategy == traverse.Posix && !traverse.NewPosix().Supported() {
				t.Skip("posix walker not available")
			}
			opts := logicalOptions()
			opts.Strategy = tt.strategy
			opts.Workers = 4

			sum, err := Start(cancelAfterChecks(tt.checks), root, opts)
			require.NoError(t, err)
			assert.Equal(t, Aborted, sum.Status)
			assert.Equal(t, context.Canceled.Error(), sum.Cause)
			assert.Equal(t, ExitPartial, ExitCode(sum, err))

			assert.NotEmpty(t, sum.Entries)
			assert.Positive(t, sum.Totals.Files)
			assert.Less(t, sum.Totals.Files, int64(90000))
			assert.Equal(t, sum.Totals.Files, sum.Totals.Bytes)

			rootEntry, ok := sum.RootEntry()
			require.True(t, ok)
			assert.Equal(t, sum.Totals.Bytes, rootEntry.SizeBytes)
			assertOrdered(t, sum.Progress)
		})
	}
}

func TestProgressOrderedOnParallelScan(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a large tree")
	}
	root := largeTree(t, 100, 200)
	for _, id := range []traverse.ID{traverse.Posix, traverse.Fastwalk} {
		t.Run(string(id), func(t *testing.T) {
			if id == traverse.Posix && !traverse.NewPosix().Supported() {
				t.Skip("posix walker not available")
			}
			opts := logicalOptions()
			opts.Strategy = id
			opts.Workers = 8
			opts.ProgressInterval = progress.MinInterval
			opts.ProgressBytes = progress.MinByteTrigger

			var notified []model.ProgressSnapshot
			opts.Notifier = func(p model.ProgressSnapshot) { notified = append(notified, p) }

			sum, err := Start(context.Background(), root, opts)
			require.NoError(t, err)
			assert.EqualValues(t, 20000, sum.Totals.Files)

			require.NotEmpty(t, sum.Progress)
			assertOrdered(t, sum.Progress)
			assert.Len(t, notified, len(sum.Progress))
			assertOrdered(t, notified)
			last := sum.Progress[len(sum.Progress)-1]
			assert.Equal(t, 1.0, last.Completion)
			assert.EqualValues(t, 20000, last.ProcessedBytes)
		})
	}
}

func itoa(i int) string {
	return string(rune('a'+i/100%26)) + string(rune('a'+i/10%10)) + string(rune('a'+i%10))
}

func TestParity(t *testing.T) {
	if !traverse.NewPosix().Supported() {
		t.Skip("needs a non-legacy strategy")
	}
	opts := logicalOptions()
	opts.Strategy = traverse.Posix
	opts.Parity = true
	sum, err := Start(context.Background(), tree(t), opts)
	require.NoError(t, err)
	require.NotNil(t, sum.Parity)
	assert.True(t, sum.Parity.Within)
	assert.Zero(t, sum.Parity.Delta)
	assert.Equal(t, ParityFloor, sum.Parity.Tolerance)
	assert.Empty(t, sum.Errors)
}

func TestCompareParity(t *testing.T) {
	r := compareParity(model.Totals{Bytes: 2_000_000_000}, model.Totals{Bytes: 2_015_000_000})
	assert.EqualValues(t, 20_150_000, r.Tolerance)
	assert.EqualValues(t, 15_000_000, r.Delta)
	assert.True(t, r.Within)

	r = compareParity(model.Totals{Bytes: 0}, model.Totals{Bytes: 11 << 20})
	assert.Equal(t, ParityFloor, r.Tolerance)
	assert.False(t, r.Within)
}

func TestRunAsyncEvents(t *testing.T) {
	s, err := New(tree(t), logicalOptions())
	require.NoError(t, err)
	assert.Equal(t, Initialized, s.Status())

	var (
		statuses []Status
		done     *CompletedEvent
	)
	for ev := range s.RunAsync(context.Background()) {
		switch e := ev.(type) {
		case StatusChangedEvent:
			statuses = append(statuses, e.To)
		case CompletedEvent:
			done = &e
		}
	}
	require.NotNil(t, done)
	require.NoError(t, done.Err)
	assert.Equal(t, []Status{Running, Completing, Completed}, statuses)
	assert.Equal(t, Completed, s.Status())

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidInput, "a session runs once")
}

func TestStatusText(t *testing.T) {
	b, err := Aborted.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "aborted", string(b))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("completing")))
	assert.Equal(t, Completing, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))
	assert.True(t, Completed.Terminal())
	assert.False(t, Running.Terminal())
}

func TestDefaultOptionsWorkersEnv(t *testing.T) {
	t.Setenv(EnvWorkers, "3")
	assert.Equal(t, 3, DefaultOptions().Workers)
	t.Setenv(EnvWorkers, "nope")
	assert.Zero(t, DefaultOptions().Workers)
}
