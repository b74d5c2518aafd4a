package traverse

import "github.com/lumipallolabs/dirsize/internal/probe"

// ntfsStrategy walks NTFS and ReFS volumes with handle-based directory
// enumeration. Every listing call returns a buffer of entries that already
// carries sizes, attributes and file ids, so no per-file open is needed.
type ntfsStrategy struct{}

// NewNTFS returns the Windows handle-based parallel strategy.
func NewNTFS() Strategy { return ntfsStrategy{} }

func (ntfsStrategy) Descriptor() Descriptor {
	return Descriptor{
		ID:          NTFS,
		Filesystems: []probe.Kind{probe.NTFS, probe.ReFS},
		Syscalls:    []string{"CreateFileW", "GetFileInformationByHandleEx(FileIdBothDirectoryInfo)"},
		Parallelism: "breadth-first partition, worker pool",
		Fallback:    Legacy,
	}
}

func (ntfsStrategy) Eligible(Config) bool { return true }
