package snapshot

import (
	"sort"

	"github.com/lumipallolabs/dirsize/internal/model"
)

// Change is the difference of one directory between two snapshots.
type Change struct {
	Path   string `json:"path"`
	Before int64  `json:"before_bytes"`
	After  int64  `json:"after_bytes"`
	// New is set when the directory is absent from the older snapshot.
	New bool `json:"new,omitempty"`
	// Deleted is set when the directory is absent from the newer snapshot.
	Deleted bool `json:"deleted,omitempty"`
}

// Delta returns the size change in bytes.
func (c Change) Delta() int64 {
	return c.After - c.Before
}

// Diff compares the entries of two snapshots and returns every directory
// whose size changed, appeared or disappeared, largest change first.
func Diff(previous, current []model.DirectoryEntry) []Change {
	prev := make(map[string]model.DirectoryEntry, len(previous))
	for _, e := range previous {
		prev[e.Path] = e
	}

	var changes []Change
	for _, e := range current {
		p, ok := prev[e.Path]
		delete(prev, e.Path)
		switch {
		case !ok:
			changes = append(changes, Change{Path: e.Path, After: e.SizeBytes, New: true})
		case p.SizeBytes != e.SizeBytes:
			changes = append(changes, Change{Path: e.Path, Before: p.SizeBytes, After: e.SizeBytes})
		}
	}
	for _, p := range prev {
		changes = append(changes, Change{Path: p.Path, Before: p.SizeBytes, Deleted: true})
	}

	sort.Slice(changes, func(i, j int) bool {
		di, dj := abs(changes[i].Delta()), abs(changes[j].Delta())
		if di != dj {
			return di > dj
		}
		return changes[i].Path < changes[j].Path
	})
	return changes
}

// Grown returns the changes that added bytes, including new directories.
func Grown(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Delta() > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Shrunk returns the changes that removed bytes, including deleted directories.
func Shrunk(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Delta() < 0 {
			out = append(out, c)
		}
	}
	return out
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
