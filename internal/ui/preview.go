package ui

import "github.com/lumipallolabs/dirsize/internal/model"

// Preview decides which ranked entries of a report are expanded to show
// their own largest children.
type Preview interface {
	// Expand reports whether e, ranked rank (1-based) among its siblings at
	// nesting depth depth, should be expanded.
	Expand(e model.DirectoryEntry, parentSize int64, rank, depth int) bool
	// MaxDepth bounds the nesting of expanded entries.
	MaxDepth() int
	// MaxChildren bounds the rows shown under an expanded entry.
	MaxChildren() int
}

// AdaptivePreview expands entries that dominate their parent, requiring a
// larger share the deeper the entry sits.
type AdaptivePreview struct {
	// Ratios holds the share of the parent required at depth 0, 1, ...
	// Deeper levels use Deep.
	Ratios []float64
	Deep   float64
	// Entries ranked within RankLimit need only RankRatio.
	RankLimit int
	RankRatio float64
	// Absolute expands anything at least this large.
	Absolute int64
}

// DefaultPreview returns the adaptive preview used by reports.
func DefaultPreview() AdaptivePreview {
	return AdaptivePreview{
		Ratios:    []float64{0.30, 0.40, 0.50},
		Deep:      0.60,
		RankLimit: 3,
		RankRatio: 0.20,
		Absolute:  10 << 30,
	}
}

func (p AdaptivePreview) Expand(e model.DirectoryEntry, parentSize int64, rank, depth int) bool {
	if parentSize <= 0 {
		return false
	}
	ratio := float64(e.SizeBytes) / float64(parentSize)
	threshold := p.Deep
	if depth < len(p.Ratios) {
		threshold = p.Ratios[depth]
	}
	switch {
	case ratio >= threshold:
		return true
	case rank <= p.RankLimit && ratio >= p.RankRatio:
		return true
	case p.Absolute > 0 && e.SizeBytes >= p.Absolute:
		return true
	}
	return false
}

func (p AdaptivePreview) MaxDepth() int    { return 3 }
func (p AdaptivePreview) MaxChildren() int { return 3 }

// TopPreview expands the first N entries of every level.
type TopPreview struct {
	N     int
	Depth int
}

func (p TopPreview) Expand(_ model.DirectoryEntry, _ int64, rank, _ int) bool { return rank <= p.N }
func (p TopPreview) MaxDepth() int                                            { return p.Depth }
func (p TopPreview) MaxChildren() int                                         { return p.N }
