package traverse

import "github.com/lumipallolabs/dirsize/internal/probe"

// posixStrategy walks local POSIX filesystems through directory descriptors.
// Each directory is opened relative to its parent's descriptor, listed with
// batched getdents reads and stat'ed with fstatat, so no full path is ever
// resolved by the kernel below the root.
type posixStrategy struct{}

// NewPosix returns the descriptor-relative parallel strategy.
func NewPosix() Strategy { return posixStrategy{} }

func (posixStrategy) Descriptor() Descriptor {
	return Descriptor{
		ID: Posix,
		Filesystems: []probe.Kind{
			probe.Ext, probe.XFS, probe.Btrfs, probe.ZFS,
			probe.APFS, probe.HFS, probe.Tmpfs, probe.Overlay,
		},
		Syscalls:    []string{"openat", "getdents", "fstatat"},
		Parallelism: "breadth-first partition, worker pool",
		Fallback:    Legacy,
	}
}

func (posixStrategy) Eligible(Config) bool { return true }
