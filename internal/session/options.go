package session

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/progress"
	"github.com/lumipallolabs/dirsize/internal/traverse"
)

// EnvWorkers overrides the default worker count when set to a positive integer.
const EnvWorkers = "DIRSIZE_WORKERS"

const (
	// ParityTolerance is the relative divergence allowed between the selected
	// strategy and the legacy rerun.
	ParityTolerance = 0.01
	// ParityFloor is the absolute divergence that is always tolerated.
	ParityFloor int64 = 10 << 20
)

// Options configures a scan session.
type Options struct {
	// Basis selects apparent or allocated file sizes.
	Basis model.SizeBasis

	// MaxDepth limits descent below the root; 0 means unlimited.
	MaxDepth int

	// Hardlinks controls whether multiply-linked files count once or per link.
	Hardlinks model.HardlinkPolicy

	// Strategy forces a traversal backend; traverse.Auto probes the filesystem.
	Strategy traverse.ID

	// Legacy forces the portable sequential walker unless Strategy is set.
	Legacy bool

	// ProgressInterval is the time gate between progress snapshots.
	ProgressInterval time.Duration

	// ProgressBytes is the byte delta that allows an early snapshot.
	ProgressBytes int64

	// Workers sizes the traversal worker pool; 0 uses every CPU.
	Workers int

	// FollowSymlinks descends symbolic links and reparse points.
	FollowSymlinks bool

	// CrossFilesystem descends into other mounted filesystems.
	CrossFilesystem bool

	// Parity reruns the walk with the legacy strategy and records a warning
	// when totals diverge beyond tolerance.
	Parity bool

	// DedupThreshold is the number of hard-linked identities tracked exactly.
	DedupThreshold int

	// Notifier, if set, receives every progress snapshot.
	Notifier progress.Notifier

	// Logger receives debug output; nil uses the process-wide logger.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	opts := Options{
		Basis:            model.Physical,
		Hardlinks:        model.Dedupe,
		ProgressInterval: progress.DefaultInterval,
		ProgressBytes:    progress.DefaultByteTrigger,
	}
	if n, err := strconv.Atoi(os.Getenv(EnvWorkers)); err == nil && n > 0 {
		opts.Workers = n
	}
	return opts
}

// Validate reports the first invalid field.
func (o Options) Validate() error {
	switch {
	case o.MaxDepth < 0:
		return fmt.Errorf("%w: max depth must not be negative, got %d", ErrInvalidInput, o.MaxDepth)
	case o.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidInput, o.Workers)
	case o.ProgressInterval < 0:
		return fmt.Errorf("%w: progress interval must not be negative, got %s", ErrInvalidInput, o.ProgressInterval)
	case o.ProgressBytes < 0:
		return fmt.Errorf("%w: progress bytes must not be negative, got %d", ErrInvalidInput, o.ProgressBytes)
	case o.DedupThreshold < 0:
		return fmt.Errorf("%w: dedup threshold must not be negative, got %d", ErrInvalidInput, o.DedupThreshold)
	}
	if _, err := traverse.ParseID(string(o.Strategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (o Options) traverseConfig() traverse.Config {
	return traverse.Config{
		MaxDepth:        o.MaxDepth,
		FollowSymlinks:  o.FollowSymlinks,
		CrossFilesystem: o.CrossFilesystem,
		Workers:         o.Workers,
		Logger:          o.Logger,
	}
}
