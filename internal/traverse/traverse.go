package traverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/lumipallolabs/dirsize/internal/model"
	"github.com/lumipallolabs/dirsize/internal/probe"
)

var (
	// ErrRootUnreadable is returned by Walk when the root itself cannot be opened.
	ErrRootUnreadable = errors.New("root directory unreadable")
	// ErrUnsupported is returned by Walk on platforms the strategy cannot run on.
	ErrUnsupported = errors.New("strategy not supported on this platform")
)

// EntryKind classifies a streamed entry.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDir
)

// String returns a human-readable kind name.
func (k EntryKind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Entry is one (path, metadata) pair produced by a strategy.
type Entry struct {
	Path   string
	Parent string
	Depth  int
	Kind   EntryKind
	Size   int64 // apparent length
	Alloc  int64 // bytes allocated on disk
	ID     model.FileID
	HasID  bool
	Links  uint64 // 0 when the backend cannot tell
	// Errored marks a directory whose contents could not be listed.
	Errored bool
}

// Visitor consumes the entry stream of one partition of a walk. A Visitor is
// only ever driven from one goroutine at a time.
//
// For every directory that is descended the stream contains Enter, then zero
// or more Leaf calls for its files and non-descended subdirectories, then
// Leave with the number of subdirectories that will be entered. Entering a
// subdirectory may happen on another Visitor and may interleave arbitrarily
// with its parent's events.
type Visitor interface {
	Enter(dir Entry)
	Leaf(e Entry)
	Leave(dir string, subdirs int)
	Fail(err model.ScanError)
}

// Config carries the options that shape a walk.
type Config struct {
	// MaxDepth limits descent; 0 means unlimited. The root has depth 0.
	MaxDepth int
	// FollowSymlinks descends symbolic links and reparse points.
	FollowSymlinks bool
	// CrossFilesystem descends into directories on other devices.
	CrossFilesystem bool
	// Workers sizes the worker pool of parallel strategies.
	Workers int
	// Logger receives debug output; nil uses the process-wide logger.
	Logger *slog.Logger
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) descend(depth int) bool {
	return c.MaxDepth <= 0 || depth <= c.MaxDepth
}

// ID names a traversal strategy.
type ID string

const (
	// Auto lets the selector probe the filesystem.
	Auto     ID = ""
	Legacy   ID = "legacy"
	Posix    ID = "posix"
	NTFS     ID = "ntfs"
	Fastwalk ID = "fastwalk"
)

// ParseID parses a strategy label, accepting a few aliases.
func ParseID(s string) (ID, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return Auto, nil
	case "legacy":
		return Legacy, nil
	case "posix", "unix":
		return Posix, nil
	case "ntfs", "windows":
		return NTFS, nil
	case "fastwalk", "portable":
		return Fastwalk, nil
	default:
		return Auto, fmt.Errorf("unknown strategy %q: must be one of auto, legacy, posix, ntfs, fastwalk", s)
	}
}

// Descriptor documents a strategy.
type Descriptor struct {
	ID          ID
	Filesystems []probe.Kind
	Syscalls    []string
	Parallelism string
	Fallback    ID
}

// Strategy streams the entries below a root to Visitors.
type Strategy interface {
	Descriptor() Descriptor
	// Supported reports whether the strategy can run on this platform.
	Supported() bool
	// Eligible reports whether the strategy honours every option in cfg.
	Eligible(cfg Config) bool
	// Walk traverses root. newVisitor is called once for every partition
	// owner before that owner starts; callers collect the returned visitors
	// to merge them. Walk returns ErrRootUnreadable (wrapped) when the root
	// cannot be listed and ctx.Err() when cancelled; every other failure is
	// reported through Visitor.Fail.
	Walk(ctx context.Context, root string, cfg Config, newVisitor func() Visitor) error
}

func rootError(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRootUnreadable, path, err)
}

func warn(path string, err error) model.ScanError {
	return model.NewScanError(path, err, model.Warning)
}

func unreadable(path string, err error) model.ScanError {
	e := model.NewScanError(path, err, model.Critical)
	e.Code = model.CodeDirUnreadable
	return e
}

// failDir reports a directory whose listing failed: a critical error for the
// directory and a warning for the contents that were skipped with it.
func failDir(v Visitor, path string, err error) {
	v.Fail(unreadable(path, err))
	v.Fail(warn(path, err))
}

func cycle(path string) model.ScanError {
	e := model.NewScanError(path, errors.New("directory cycle detected, subtree skipped"), model.Warning)
	e.Code = model.CodeCycle
	return e
}
