package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/lumipallolabs/dirsize/internal/aggregate"
	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/progress"
	"github.com/lumipallolabs/dirsize/internal/session"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

// scanFlags are shared by every command that walks the filesystem.
type scanFlags struct {
	basis            string
	hardlinks        string
	strategy         string
	legacy           bool
	maxDepth         int
	workers          int
	followSymlinks   bool
	crossFilesystem  bool
	parity           bool
	progressInterval time.Duration
	progressBytes    string
	dedupThreshold   int
}

func (f *scanFlags) register(fs *pflag.FlagSet) {
	defaults := session.DefaultOptions()
	fs.StringVarP(&f.basis, "basis", "b", defaults.Basis.String(), "Size basis: physical (allocated blocks) or logical (apparent length)")
	fs.StringVar(&f.hardlinks, "hardlinks", defaults.Hardlinks.String(), "Hard link policy: dedupe (count once) or count (every link)")
	fs.StringVarP(&f.strategy, "strategy", "s", "auto", "Traversal backend: auto, legacy, posix, ntfs or fastwalk")
	fs.BoolVar(&f.legacy, "legacy", false, "Use the portable sequential walker")
	fs.IntVarP(&f.maxDepth, "max-depth", "d", 0, "Maximum traversal depth (0=unlimited)")
	fs.IntVarP(&f.workers, "workers", "w", defaults.Workers, "Traversal workers (0=one per CPU, env "+session.EnvWorkers+")")
	fs.BoolVarP(&f.followSymlinks, "follow-symlinks", "L", false, "Descend symbolic links and reparse points")
	fs.BoolVarP(&f.crossFilesystem, "cross-filesystem", "x", false, "Descend into other mounted filesystems")
	fs.BoolVar(&f.parity, "parity", false, "Rerun with the legacy walker and warn when totals diverge")
	fs.DurationVar(&f.progressInterval, "progress-interval", progress.DefaultInterval, "Minimum time between progress updates")
	fs.StringVar(&f.progressBytes, "progress-bytes", humanize.Bytes(uint64(progress.DefaultByteTrigger)), "Bytes processed that allow an early progress update (e.g. 4MB)")
	fs.IntVar(&f.dedupThreshold, "dedup-threshold", aggregate.DefaultDedupThreshold, "Hard-linked files tracked exactly before switching to a bounded set")
}

// options converts the flags into session options.
func (f *scanFlags) options() (session.Options, error) {
	opts := session.DefaultOptions()

	var ok bool
	if opts.Basis, ok = model.ParseSizeBasis(f.basis); !ok {
		return opts, fmt.Errorf("invalid basis %q: must be physical or logical", f.basis)
	}
	if opts.Hardlinks, ok = model.ParseHardlinkPolicy(f.hardlinks); !ok {
		return opts, fmt.Errorf("invalid hardlink policy %q: must be dedupe or count", f.hardlinks)
	}
	id, err := traverse.ParseID(f.strategy)
	if err != nil {
		return opts, err
	}
	opts.Strategy = id
	opts.Legacy = f.legacy
	opts.MaxDepth = f.maxDepth
	opts.Workers = f.workers
	opts.FollowSymlinks = f.followSymlinks
	opts.CrossFilesystem = f.crossFilesystem
	opts.Parity = f.parity
	opts.ProgressInterval = f.progressInterval
	opts.DedupThreshold = f.dedupThreshold

	if f.progressBytes != "" {
		n, err := humanize.ParseBytes(f.progressBytes)
		if err != nil {
			return opts, fmt.Errorf("invalid progress-bytes: %w", err)
		}
		opts.ProgressBytes = int64(n)
	}
	return opts, opts.Validate()
}

// outputFlags control how results are listed.
type outputFlags struct {
	top    int
	sort   string
	json   bool
	errors int
}

var allowedSorts = []string{"size", "files", "dirs"}

func (f *outputFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&f.top, "top", "t", 10, "Number of directories to list (0=all)")
	fs.StringVar(&f.sort, "sort", "size", "Sort key: size, files or dirs")
	fs.BoolVar(&f.json, "json", false, "Print JSON instead of a table")
	fs.IntVar(&f.errors, "errors", 0, "Errors to list (0=first few, -1=all)")
}

func (f *outputFlags) key() (model.SortKey, error) {
	if !slices.Contains(allowedSorts, f.sort) {
		return model.BySize, fmt.Errorf("invalid sort %q: must be one of %v", f.sort, allowedSorts)
	}
	return model.ParseSortKey(f.sort)
}

func (f *outputFlags) validate() error {
	if f.top < 0 {
		return fmt.Errorf("top cannot be negative")
	}
	_, err := f.key()
	return err
}
