package traverse

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/probe"
)

// recorder is a Visitor that remembers everything it is told.
type recorder struct {
	entered []Entry
	leaves  []Entry
	subdirs map[string]int
	errs    []model.ScanError
}

func (r *recorder) Enter(dir Entry) { r.entered = append(r.entered, dir) }
func (r *recorder) Leaf(e Entry)    { r.leaves = append(r.leaves, e) }
func (r *recorder) Leave(dir string, n int) {
	if r.subdirs == nil {
		r.subdirs = map[string]int{}
	}
	r.subdirs[dir] = n
}
func (r *recorder) Fail(err model.ScanError) { r.errs = append(r.errs, err) }

// walkResult merges the recorders of one walk.
type walkResult struct {
	dirs    []string
	files   []string
	bytes   int64
	subdirs map[string]int
	errs    []model.ScanError
	leafDir []string
}

func walk(t *testing.T, s Strategy, root string, cfg Config) (walkResult, error) {
	t.Helper()
	var (
		mu   sync.Mutex
		recs []*recorder
	)
	err := s.Walk(context.Background(), root, cfg, func() Visitor {
		mu.Lock()
		defer mu.Unlock()
		r := &recorder{}
		recs = append(recs, r)
		return r
	})

	res := walkResult{subdirs: map[string]int{}}
	for _, r := range recs {
		for _, d := range r.entered {
			res.dirs = append(res.dirs, rel(t, root, d.Path))
		}
		for _, e := range r.leaves {
			if e.Kind == KindDir {
				res.leafDir = append(res.leafDir, rel(t, root, e.Path))
				continue
			}
			res.files = append(res.files, rel(t, root, e.Path))
			res.bytes += e.Size
		}
		for d, n := range r.subdirs {
			res.subdirs[rel(t, root, d)] = n
		}
		res.errs = append(res.errs, r.errs...)
	}
	sort.Strings(res.dirs)
	sort.Strings(res.files)
	sort.Strings(res.leafDir)
	return res, err
}

func rel(t *testing.T, root, path string) string {
	r, err := filepath.Rel(root, path)
	require.NoError(t, err)
	return filepath.ToSlash(r)
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

// fixture builds:
//
//	root/a.txt        100
//	root/A/x          200
//	root/A/B/y         50
//	root/A/B/C/z       10
//	root/D/
func fixture(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), 100)
	writeFile(t, filepath.Join(root, "A", "x"), 200)
	writeFile(t, filepath.Join(root, "A", "B", "y"), 50)
	writeFile(t, filepath.Join(root, "A", "B", "C", "z"), 10)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "D"), 0o755))
	return root
}

func supported() []Strategy {
	var out []Strategy
	for _, s := range []Strategy{NewLegacy(), NewPosix(), NewNTFS(), NewFastwalk()} {
		if s.Supported() {
			out = append(out, s)
		}
	}
	return out
}

func TestStrategiesAgree(t *testing.T) {
	root := fixture(t)
	for _, s := range supported() {
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			res, err := walk(t, s, root, Config{Workers: 3})
			require.NoError(t, err)
			assert.Equal(t, []string{".", "A", "A/B", "A/B/C", "D"}, res.dirs)
			assert.Equal(t, []string{"A/B/C/z", "A/B/y", "A/x", "a.txt"}, res.files)
			assert.EqualValues(t, 360, res.bytes)
			assert.Empty(t, res.errs)
		})
	}
}

func TestSubdirCounts(t *testing.T) {
	root := fixture(t)
	for _, s := range supported() {
		if s.Descriptor().ID == Fastwalk {
			continue // no end-of-directory signal
		}
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			res, err := walk(t, s, root, Config{Workers: 2})
			require.NoError(t, err)
			assert.Equal(t, map[string]int{".": 2, "A": 1, "A/B": 1, "A/B/C": 0, "D": 0}, res.subdirs)
		})
	}
}

func TestMaxDepth(t *testing.T) {
	root := fixture(t)
	for _, s := range supported() {
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			res, err := walk(t, s, root, Config{MaxDepth: 1})
			require.NoError(t, err)
			assert.Equal(t, []string{".", "A", "D"}, res.dirs)
			assert.Equal(t, []string{"A/B"}, res.leafDir)
			assert.Equal(t, []string{"A/x", "a.txt"}, res.files)
		})
	}
}

func TestSymlinksIgnoredByDefault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := fixture(t)
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(root, "A"), filepath.Join(root, "linkdir")))

	for _, s := range supported() {
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			res, err := walk(t, s, root, Config{})
			require.NoError(t, err)
			assert.NotContains(t, res.files, "link.txt")
			assert.NotContains(t, res.dirs, "linkdir")
		})
	}
}

func TestCycleDetected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := fixture(t)
	require.NoError(t, os.Symlink(root, filepath.Join(root, "A", "loop")))

	for _, s := range supported() {
		cfg := Config{FollowSymlinks: true}
		if !s.Eligible(cfg) {
			continue
		}
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			res, err := walk(t, s, root, cfg)
			require.NoError(t, err)
			var codes []model.ErrorCode
			for _, e := range res.errs {
				codes = append(codes, e.Code)
			}
			assert.Contains(t, codes, model.CodeCycle)
			assert.Equal(t, 1, countOf(res.files, "a.txt"))
		})
	}
}

func countOf(list []string, s string) int {
	n := 0
	for _, v := range list {
		if v == s {
			n++
		}
	}
	return n
}

func TestUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permissions are not enforced")
	}
	root := fixture(t)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "secret"), 999)
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	for _, s := range supported() {
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			res, err := walk(t, s, root, Config{})
			require.NoError(t, err)
			assert.Contains(t, res.files, "A/x")
			assert.NotContains(t, res.files, "locked/secret")
			require.Len(t, res.errs, 2)
			assert.Equal(t, "locked", rel(t, root, res.errs[0].Path))
			assert.Equal(t, model.Critical, res.errs[0].Severity)
			assert.Equal(t, model.CodeDirUnreadable, res.errs[0].Code)
			assert.Equal(t, "locked", rel(t, root, res.errs[1].Path))
			assert.Equal(t, model.Warning, res.errs[1].Severity)
			assert.Equal(t, model.CodePermission, res.errs[1].Code)
		})
	}
}

func TestFailDirCountsSkippedSubtree(t *testing.T) {
	r := &recorder{}
	failDir(r, "/r/locked", os.ErrPermission)

	require.Len(t, r.errs, 2)
	assert.Equal(t, model.Critical, r.errs[0].Severity)
	assert.Equal(t, model.CodeDirUnreadable, r.errs[0].Code)
	assert.Equal(t, model.Warning, r.errs[1].Severity)
	assert.Equal(t, model.CodePermission, r.errs[1].Code)
	assert.Equal(t, "/r/locked", r.errs[1].Path)
	assert.Equal(t, 1, model.CountWarnings(r.errs))
}

func TestMissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	for _, s := range supported() {
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			_, err := walk(t, s, missing, Config{})
			assert.ErrorIs(t, err, ErrRootUnreadable)
		})
	}
}

func TestCancelledWalk(t *testing.T) {
	root := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range supported() {
		t.Run(string(s.Descriptor().ID), func(t *testing.T) {
			err := s.Walk(ctx, root, Config{}, func() Visitor { return &recorder{} })
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestSelector(t *testing.T) {
	s := NewSelector(nil)

	t.Run("override wins", func(t *testing.T) {
		sel := s.Select(t.TempDir(), Legacy, false, Config{})
		assert.Equal(t, Legacy, sel.Strategy.Descriptor().ID)
		assert.Empty(t, sel.Warnings)
	})

	t.Run("legacy flag", func(t *testing.T) {
		sel := s.Select(t.TempDir(), Auto, true, Config{})
		assert.Equal(t, Legacy, sel.Strategy.Descriptor().ID)
	})

	t.Run("probe failure falls back", func(t *testing.T) {
		failing := &Selector{strategies: s.strategies, detect: func(string) (probe.Info, error) {
			return probe.Info{}, probe.ErrUnsupported
		}, logger: s.logger}
		sel := failing.Select(t.TempDir(), Auto, false, Config{})
		assert.Equal(t, Legacy, sel.Strategy.Descriptor().ID)
		require.Len(t, sel.Warnings, 1)
		assert.Equal(t, model.CodeProbeFailed, sel.Warnings[0].Code)
		assert.Equal(t, model.Warning, sel.Warnings[0].Severity)
	})

	t.Run("probe kind", func(t *testing.T) {
		ext := &Selector{strategies: s.strategies, detect: func(string) (probe.Info, error) {
			return probe.Info{Kind: probe.Ext}, nil
		}, logger: s.logger}
		sel := ext.Select(t.TempDir(), Auto, false, Config{})
		if NewPosix().Supported() {
			assert.Equal(t, Posix, sel.Strategy.Descriptor().ID)
		} else {
			assert.Equal(t, Fastwalk, sel.Strategy.Descriptor().ID)
		}
		assert.Empty(t, sel.Warnings)
	})

	t.Run("ineligible falls back", func(t *testing.T) {
		sel := s.Select(t.TempDir(), Fastwalk, false, Config{FollowSymlinks: true})
		assert.Equal(t, Legacy, sel.Strategy.Descriptor().ID)
		require.Len(t, sel.Warnings, 1)
		assert.Equal(t, model.CodeStrategyUnsupported, sel.Warnings[0].Code)
	})

	t.Run("unsupported platform", func(t *testing.T) {
		other := NTFS
		if runtime.GOOS == "windows" {
			other = Posix
		}
		sel := s.Select(t.TempDir(), other, false, Config{})
		assert.Equal(t, Legacy, sel.Strategy.Descriptor().ID)
		assert.Len(t, sel.Warnings, 1)
	})
}

func TestForKind(t *testing.T) {
	assert.Equal(t, NTFS, ForKind(probe.NTFS))
	assert.Equal(t, NTFS, ForKind(probe.ReFS))
	assert.Equal(t, Posix, ForKind(probe.APFS))
	assert.Equal(t, Posix, ForKind(probe.Btrfs))
	assert.Equal(t, Fastwalk, ForKind(probe.Network))
	assert.Equal(t, Fastwalk, ForKind(probe.Other))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("unix")
	require.NoError(t, err)
	assert.Equal(t, Posix, id)

	id, err = ParseID("")
	require.NoError(t, err)
	assert.Equal(t, Auto, id)

	_, err = ParseID("turbo")
	assert.Error(t, err)
}

func TestIDStack(t *testing.T) {
	var s *idStack
	a, b := model.FileID{Dev: 1, Ino: 1}, model.FileID{Dev: 1, Ino: 2}
	assert.False(t, s.contains(a))
	s = s.push(a)
	child := s.push(b)
	assert.True(t, child.contains(a))
	assert.True(t, child.contains(b))
	assert.False(t, s.contains(b))
}
