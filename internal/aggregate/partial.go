package aggregate

import (
	"sort"

	"github.com/lumipallolabs/dirsize/internal/model"
)

// Partial is the state of one or more merged Aggregators.
type Partial struct {
	// Entries are completed directories.
	Entries []model.DirectoryEntry
	// Pending are directories still waiting for subdirectories.
	Pending map[string]*pendingDir
	// Carry holds contributions to directories owned elsewhere.
	Carry  map[string]delta
	Errors []model.ScanError
	Totals model.Totals
	// Peak is the largest pending cache any single Aggregator held.
	Peak int
}

// Merge combines partials. It is associative and commutative up to the
// order of Entries and Errors, which Finalize sorts.
func Merge(parts ...*Partial) *Partial {
	out := &Partial{
		Pending: make(map[string]*pendingDir),
		Carry:   make(map[string]delta),
	}
	for _, p := range parts {
		if p == nil {
			continue
		}
		out.Entries = append(out.Entries, p.Entries...)
		out.Errors = append(out.Errors, p.Errors...)
		out.Totals = out.Totals.Add(p.Totals)
		out.Peak = max(out.Peak, p.Peak)
		for path, d := range p.Pending {
			out.Pending[path] = d
		}
		for path, d := range p.Carry {
			out.Carry[path] = out.Carry[path].add(d)
		}
	}
	return out
}

// Result is the final aggregation of a walk.
type Result struct {
	// Entries are sorted by path.
	Entries []model.DirectoryEntry
	// Errors are sorted by time.
	Errors []model.ScanError
	Totals model.Totals
	// Flushed counts directories emitted before all of their subdirectories
	// reported back, which happens on cancelled walks and with backends
	// that have no end-of-directory signal.
	Flushed int
	Peak    int
}

// Finalize applies every carry, then flushes whatever is still pending
// deepest first so that each directory includes its descendants.
func Finalize(p *Partial) Result {
	a := &Aggregator{
		pending: p.Pending,
		carry:   make(map[string]delta),
		done:    p.Entries,
	}
	for path, d := range p.Carry {
		a.contribute(path, d)
	}

	rest := make([]*pendingDir, 0, len(a.pending))
	for _, d := range a.pending {
		rest = append(rest, d)
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].entry.Depth != rest[j].entry.Depth {
			return rest[i].entry.Depth > rest[j].entry.Depth
		}
		return rest[i].entry.Path < rest[j].entry.Path
	})
	flushed := 0
	for _, d := range rest {
		if _, ok := a.pending[d.entry.Path]; !ok {
			continue // completed by a deeper flush
		}
		d.listed, d.outstanding = true, 0
		a.settle(d)
		flushed++
	}

	entries := a.done
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	errs := p.Errors
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Time.Before(errs[j].Time) })

	return Result{
		Entries: entries,
		Errors:  errs,
		Totals:  p.Totals,
		Flushed: flushed,
		Peak:    p.Peak,
	}
}

// Root returns the entry of the walk root, which is the only one at depth 0.
func (r Result) Root() (model.DirectoryEntry, bool) {
	for _, e := range r.Entries {
		if e.Depth == 0 {
			return e, true
		}
	}
	return model.DirectoryEntry{}, false
}
