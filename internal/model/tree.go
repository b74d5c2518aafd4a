package model

import (
	"fmt"
	"sort"
)

// SortKey selects the column entries are ranked by.
type SortKey int

const (
	BySize SortKey = iota
	ByFiles
	ByDirs
)

// String returns the flag label of the key.
func (k SortKey) String() string {
	switch k {
	case ByFiles:
		return "files"
	case ByDirs:
		return "dirs"
	default:
		return "size"
	}
}

// ParseSortKey parses "size", "files" or "dirs".
func ParseSortKey(s string) (SortKey, error) {
	switch s {
	case "size", "":
		return BySize, nil
	case "files":
		return ByFiles, nil
	case "dirs":
		return ByDirs, nil
	default:
		return BySize, fmt.Errorf("unknown sort key %q: must be one of size, files, dirs", s)
	}
}

func (k SortKey) value(e DirectoryEntry) int64 {
	switch k {
	case ByFiles:
		return e.FileCount
	case ByDirs:
		return e.DirCount
	default:
		return e.SizeBytes
	}
}

// Sort orders entries by key descending, then by path ascending.
func Sort(entries []DirectoryEntry, key SortKey) {
	sort.Slice(entries, func(i, j int) bool {
		vi, vj := key.value(entries[i]), key.value(entries[j])
		if vi != vj {
			return vi > vj
		}
		return entries[i].Path < entries[j].Path
	})
}

// Top returns the k highest-ranked entries without modifying entries.
// k <= 0 returns all of them.
func Top(entries []DirectoryEntry, key SortKey, k int) []DirectoryEntry {
	out := make([]DirectoryEntry, len(entries))
	copy(out, entries)
	Sort(out, key)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Children returns the immediate subdirectories of parent.
func Children(entries []DirectoryEntry, parent string) []DirectoryEntry {
	var out []DirectoryEntry
	for _, e := range entries {
		if e.Parent == parent && e.Path != parent {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry for path.
func Find(entries []DirectoryEntry, path string) (DirectoryEntry, bool) {
	for _, e := range entries {
		if e.Path == path {
			return e, true
		}
	}
	return DirectoryEntry{}, false
}

// Percent returns part as a percentage of whole.
func Percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
