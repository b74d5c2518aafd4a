// Package aggregate folds traversal entry streams into per-directory totals.
//
// Each partition of a walk feeds its own Aggregator with no locking. A
// directory is kept in a pending cache only until its listing is done and
// all of its subdirectories have completed, then it is emitted and folded
// into its parent. Contributions to a parent owned by another partition are
// carried and applied when partials are merged.
package aggregate

import (
	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

// Recorder receives processed entry and byte counts. progress.Throttle
// implements it.
type Recorder interface {
	Record(entries, bytes int64)
}

// Config controls how entries are sized and counted.
type Config struct {
	Basis  model.SizeBasis
	Policy model.HardlinkPolicy
	// Dedup is shared by every Aggregator of a session. Required for the
	// Dedupe policy.
	Dedup *DedupSet
	// Progress is optional.
	Progress Recorder
}

// pendingDir is a directory that has been entered but not completed.
type pendingDir struct {
	entry model.DirectoryEntry
	// outstanding counts subdirectories announced by Leave minus those that
	// completed. It can go negative when a child completes first.
	outstanding int
	listed      bool
}

// delta is a contribution owed to a directory this Aggregator does not own.
type delta struct {
	Bytes int64
	Files int64
	Dirs  int64
	// Done is the number of completed subdirectories.
	Done int
}

func (d delta) add(o delta) delta {
	return delta{
		Bytes: d.Bytes + o.Bytes,
		Files: d.Files + o.Files,
		Dirs:  d.Dirs + o.Dirs,
		Done:  d.Done + o.Done,
	}
}

// Aggregator implements traverse.Visitor for one partition.
type Aggregator struct {
	cfg     Config
	pending map[string]*pendingDir
	done    []model.DirectoryEntry
	carry   map[string]delta
	errs    []model.ScanError
	totals  model.Totals
	peak    int
}

var _ traverse.Visitor = (*Aggregator)(nil)

// New returns an empty Aggregator.
func New(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		pending: make(map[string]*pendingDir),
		carry:   make(map[string]delta),
	}
}

// Enter starts tracking dir.
func (a *Aggregator) Enter(dir traverse.Entry) {
	a.pending[dir.Path] = &pendingDir{entry: model.DirectoryEntry{
		Path:    dir.Path,
		Parent:  dir.Parent,
		Depth:   dir.Depth,
		Errored: dir.Errored,
	}}
	a.peak = max(a.peak, len(a.pending))
	if dir.Depth > 0 {
		a.totals.Dirs++
		a.contribute(dir.Parent, delta{Dirs: 1})
	}
	a.record(0)
}

// Leaf counts a file, or a directory that is not descended.
func (a *Aggregator) Leaf(e traverse.Entry) {
	if e.Kind == traverse.KindDir {
		a.totals.Dirs++
		a.contribute(e.Parent, delta{Dirs: 1})
		a.record(0)
		return
	}
	bytes := a.size(e)
	a.totals.Files++
	a.totals.Bytes += bytes
	a.contribute(e.Parent, delta{Bytes: bytes, Files: 1})
	a.record(bytes)
}

// Leave marks the listing of dir as done.
func (a *Aggregator) Leave(dir string, subdirs int) {
	p, ok := a.pending[dir]
	if !ok {
		return
	}
	p.outstanding += subdirs
	p.listed = true
	a.settle(p)
}

// Fail records err. A critical error on a pending directory marks it errored.
func (a *Aggregator) Fail(err model.ScanError) {
	a.errs = append(a.errs, err)
	if err.Severity != model.Critical {
		return
	}
	if p, ok := a.pending[err.Path]; ok {
		p.entry.Errored = true
	}
}

// size returns the bytes e contributes under the configured basis and
// hardlink policy.
func (a *Aggregator) size(e traverse.Entry) int64 {
	n := e.Size
	if a.cfg.Basis == model.Physical {
		n = e.Alloc
	}
	if a.cfg.Policy == model.Dedupe && a.cfg.Dedup != nil && e.HasID && e.Links != 1 {
		if !a.cfg.Dedup.Add(e.ID) {
			return 0
		}
	}
	return n
}

func (a *Aggregator) record(bytes int64) {
	if a.cfg.Progress != nil {
		a.cfg.Progress.Record(1, bytes)
	}
}

// contribute applies d to parent, or carries it if parent is not pending here.
func (a *Aggregator) contribute(parent string, d delta) {
	if parent == "" {
		return
	}
	p, ok := a.pending[parent]
	if !ok {
		a.carry[parent] = a.carry[parent].add(d)
		return
	}
	apply(p, d)
	if d.Done > 0 {
		a.settle(p)
	}
}

func apply(p *pendingDir, d delta) {
	p.entry.SizeBytes += d.Bytes
	p.entry.FileCount += d.Files
	p.entry.DirCount += d.Dirs
	p.outstanding -= d.Done
}

// settle emits p if it is complete and folds it into its parent.
func (a *Aggregator) settle(p *pendingDir) {
	if !p.listed || p.outstanding != 0 {
		return
	}
	delete(a.pending, p.entry.Path)
	a.done = append(a.done, p.entry)
	a.contribute(p.entry.Parent, delta{Bytes: p.entry.SizeBytes, Done: 1})
}

// Finish hands the partition state over for merging. The Aggregator must
// not be used afterwards.
func (a *Aggregator) Finish() *Partial {
	p := &Partial{
		Entries: a.done,
		Pending: a.pending,
		Carry:   a.carry,
		Errors:  a.errs,
		Totals:  a.totals,
		Peak:    a.peak,
	}
	a.pending, a.carry, a.done, a.errs = nil, nil, nil, nil
	return p
}
