package traverse

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lumipallolabs/dirsize/internal/probe"
)

// legacyStrategy is the portable reference walker: sequential, recursive,
// built on os.ReadDir and per-entry Lstat. It is the fallback for every other
// strategy and the baseline that parity checks compare against.
type legacyStrategy struct{}

// NewLegacy returns the portable sequential strategy.
func NewLegacy() Strategy { return legacyStrategy{} }

func (legacyStrategy) Descriptor() Descriptor {
	return Descriptor{
		ID:          Legacy,
		Filesystems: []probe.Kind{probe.Other},
		Syscalls:    []string{"readdir", "lstat"},
		Parallelism: "sequential",
		Fallback:    Legacy,
	}
}

func (legacyStrategy) Supported() bool          { return true }
func (legacyStrategy) Eligible(cfg Config) bool { return true }

// legacyDir is a directory waiting to be listed.
type legacyDir struct {
	Entry
	info      fs.FileInfo
	ancestors []fs.FileInfo
}

func (l legacyStrategy) Walk(ctx context.Context, root string, cfg Config, newVisitor func() Visitor) error {
	info, err := os.Stat(root)
	if err != nil {
		return rootError(root, err)
	}
	if !info.IsDir() {
		return rootError(root, fs.ErrInvalid)
	}
	rootDev, hasDev := deviceOf(info)
	w := legacyWalk{cfg: cfg, v: newVisitor(), rootDev: rootDev, hasDev: hasDev}

	top := legacyDir{Entry: Entry{Path: root, Kind: KindDir}, info: info}
	statEntry(&top.Entry, info)

	entries, err := os.ReadDir(root)
	if err != nil && len(entries) == 0 {
		return rootError(root, err)
	}
	return w.dir(ctx, top, entries, err)
}

type legacyWalk struct {
	cfg     Config
	v       Visitor
	rootDev uint64
	hasDev  bool
}

func (w *legacyWalk) dir(ctx context.Context, d legacyDir, entries []fs.DirEntry, readErr error) error {
	w.v.Enter(d.Entry)
	if readErr != nil {
		failDir(w.v, d.Path, readErr)
	}

	ancestors := append(d.ancestors[:len(d.ancestors):len(d.ancestors)], d.info)
	var subdirs []legacyDir
	for _, de := range entries {
		path := filepath.Join(d.Path, de.Name())
		info, err := de.Info()
		if err != nil {
			w.v.Fail(warn(path, err))
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if !w.cfg.FollowSymlinks {
				continue
			}
			if info, err = os.Stat(path); err != nil {
				w.v.Fail(warn(path, err))
				continue
			}
		}

		e := Entry{Path: path, Parent: d.Path, Depth: d.Depth + 1}
		statEntry(&e, info)
		switch {
		case info.Mode().IsRegular():
			e.Kind = KindFile
			w.v.Leaf(e)
		case info.IsDir():
			e.Kind = KindDir
			if w.hasDev && !w.cfg.CrossFilesystem && e.HasID && e.ID.Dev != w.rootDev {
				continue
			}
			if !w.cfg.descend(e.Depth) {
				w.v.Leaf(e)
				continue
			}
			subdirs = append(subdirs, legacyDir{Entry: e, info: info, ancestors: ancestors})
		}
	}
	w.v.Leave(d.Path, len(subdirs))

	for _, sub := range subdirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen(sub.ancestors, sub.info) {
			w.v.Enter(sub.Entry)
			w.v.Fail(cycle(sub.Path))
			w.v.Leave(sub.Path, 0)
			continue
		}
		entries, err := os.ReadDir(sub.Path)
		if err != nil && len(entries) == 0 {
			sub.Errored = true
			w.v.Enter(sub.Entry)
			failDir(w.v, sub.Path, err)
			w.v.Leave(sub.Path, 0)
			continue
		}
		if err := w.dir(ctx, sub, entries, err); err != nil {
			return err
		}
	}
	return nil
}

func seen(ancestors []fs.FileInfo, info fs.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return true
		}
	}
	return false
}
