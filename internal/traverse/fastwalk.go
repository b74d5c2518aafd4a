package traverse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/probe"
)

// fastwalkStrategy drives github.com/charlievieth/fastwalk. Its callbacks
// arrive concurrently and carry no end-of-directory signal, so the whole walk
// feeds one mutex-guarded Visitor and directory totals are settled when the
// aggregator finishes. It serves filesystems without a dedicated backend.
type fastwalkStrategy struct{}

// NewFastwalk returns the portable concurrent strategy.
func NewFastwalk() Strategy { return fastwalkStrategy{} }

func (fastwalkStrategy) Descriptor() Descriptor {
	return Descriptor{
		ID:          Fastwalk,
		Filesystems: []probe.Kind{probe.FAT, probe.Network, probe.Other},
		Syscalls:    []string{"readdir", "lstat"},
		Parallelism: "fastwalk worker goroutines, single aggregator",
		Fallback:    Legacy,
	}
}

func (fastwalkStrategy) Supported() bool { return true }

// Eligible rejects FollowSymlinks: fastwalk reports followed links without
// the identity needed to detect cycles.
func (fastwalkStrategy) Eligible(cfg Config) bool { return !cfg.FollowSymlinks }

// lockedVisitor serializes concurrent callbacks onto one Visitor.
type lockedVisitor struct {
	mu sync.Mutex
	v  Visitor
}

func (l *lockedVisitor) Enter(dir Entry) {
	l.mu.Lock()
	l.v.Enter(dir)
	l.mu.Unlock()
}

func (l *lockedVisitor) Leaf(e Entry) {
	l.mu.Lock()
	l.v.Leaf(e)
	l.mu.Unlock()
}

func (l *lockedVisitor) Leave(dir string, subdirs int) {
	l.mu.Lock()
	l.v.Leave(dir, subdirs)
	l.mu.Unlock()
}

func (l *lockedVisitor) Fail(err model.ScanError) {
	l.mu.Lock()
	l.v.Fail(err)
	l.mu.Unlock()
}

func (fastwalkStrategy) Walk(ctx context.Context, root string, cfg Config, newVisitor func() Visitor) error {
	info, err := os.Stat(root)
	if err != nil {
		return rootError(root, err)
	}
	if !info.IsDir() {
		return rootError(root, fs.ErrInvalid)
	}
	if _, err := os.ReadDir(root); err != nil {
		return rootError(root, err)
	}
	rootDev, hasDev := deviceOf(info)
	v := &lockedVisitor{v: newVisitor()}
	v.Enter(Entry{Path: root, Kind: KindDir})

	conf := &fastwalk.Config{
		Follow:     false,
		NumWorkers: cfg.Workers,
	}
	walkErr := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == root {
			return nil
		}
		if err != nil {
			if d == nil || d.IsDir() {
				failDir(v, path, err)
			} else {
				v.Fail(warn(path, err))
			}
			return nil
		}

		typ := d.Type()
		if !typ.IsRegular() && !typ.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			v.Fail(warn(path, err))
			return nil
		}
		e := Entry{Path: path, Parent: filepath.Dir(path), Depth: depthOf(root, path)}
		statEntry(&e, info)

		if !typ.IsDir() {
			e.Kind = KindFile
			v.Leaf(e)
			return nil
		}
		e.Kind = KindDir
		if hasDev && !cfg.CrossFilesystem && e.HasID && e.ID.Dev != rootDev {
			return fs.SkipDir
		}
		if !cfg.descend(e.Depth) {
			v.Leaf(e)
			return fs.SkipDir
		}
		v.Enter(e)
		return nil
	})

	if walkErr != nil {
		if ctx.Err() != nil && errors.Is(walkErr, ctx.Err()) {
			return ctx.Err()
		}
		return walkErr
	}
	return ctx.Err()
}

// depthOf counts path separators below root.
func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
