package model

// DirectoryEntry is the aggregated result for one directory.
type DirectoryEntry struct {
	Path      string `json:"path"`
	Parent    string `json:"parent,omitempty"`
	Depth     int    `json:"depth"`
	SizeBytes int64  `json:"size_bytes"` // inclusive of all descendants
	FileCount int64  `json:"file_count"` // immediate regular files
	DirCount  int64  `json:"dir_count"`  // immediate subdirectories
	Errored   bool   `json:"errored,omitempty"`
}

// Totals are session-wide sums over every directory and file seen.
type Totals struct {
	Bytes int64 `json:"bytes"`
	Files int64 `json:"files"`
	Dirs  int64 `json:"dirs"`
}

// Add returns the element-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Bytes: t.Bytes + o.Bytes,
		Files: t.Files + o.Files,
		Dirs:  t.Dirs + o.Dirs,
	}
}

// IsZero reports whether nothing was counted.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// FileID identifies a file on one device. Two directory entries with the same
// FileID are hard links to the same inode.
type FileID struct {
	Dev uint64
	Ino uint64
}

// SizeBasis selects which size of a file is summed.
type SizeBasis int

const (
	// Physical counts allocated blocks on disk.
	Physical SizeBasis = iota
	// Logical counts the apparent file length.
	Logical
)

// String returns the basis label used in flags and snapshots.
func (b SizeBasis) String() string {
	if b == Logical {
		return "logical"
	}
	return "physical"
}

// ParseSizeBasis parses "physical" or "logical".
func ParseSizeBasis(s string) (SizeBasis, bool) {
	switch s {
	case "physical", "":
		return Physical, true
	case "logical", "apparent":
		return Logical, true
	default:
		return Physical, false
	}
}

// HardlinkPolicy controls how multiply-linked files are counted.
type HardlinkPolicy int

const (
	// Dedupe counts the bytes of a hard-linked inode once per session.
	Dedupe HardlinkPolicy = iota
	// Count counts every link at full size.
	Count
)

// String returns the policy label used in flags and snapshots.
func (p HardlinkPolicy) String() string {
	if p == Count {
		return "count"
	}
	return "dedupe"
}

// ParseHardlinkPolicy parses "dedupe" or "count".
func ParseHardlinkPolicy(s string) (HardlinkPolicy, bool) {
	switch s {
	case "dedupe", "":
		return Dedupe, true
	case "count":
		return Count, true
	default:
		return Dedupe, false
	}
}
