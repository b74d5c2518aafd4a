//go:build linux

package probe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// statfs f_type magic numbers, see statfs(2).
const (
	magicExt     = 0xef53
	magicXFS     = 0x58465342
	magicBtrfs   = 0x9123683e
	magicZFS     = 0x2fc12fc1
	magicTmpfs   = 0x01021994
	magicOverlay = 0x794c7630
	magicF2FS    = 0xf2f52010
	magicFAT     = 0x4d44
	magicExFAT   = 0x2011bab0
	magicNTFS    = 0x5346544e
	magicNFS     = 0x6969
	magicSMB     = 0x517b
	magicCIFS    = 0xff534d42
	magicSMB2    = 0xfe534d42
	magicFUSE    = 0x65735546
)

func detect(path string) (Info, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Info{}, err
	}

	magic := uint32(st.Type)
	info := Info{
		Name:       fmt.Sprintf("0x%x", magic),
		TotalBytes: int64(st.Blocks) * int64(st.Bsize),
		FreeBytes:  int64(st.Bavail) * int64(st.Bsize),
	}

	switch magic {
	case magicExt, magicF2FS:
		info.Kind = Ext
	case magicXFS:
		info.Kind = XFS
	case magicBtrfs:
		info.Kind = Btrfs
	case magicZFS:
		info.Kind = ZFS
	case magicTmpfs:
		info.Kind = Tmpfs
	case magicOverlay:
		info.Kind = Overlay
	case magicFAT, magicExFAT:
		info.Kind = FAT
	case magicNTFS:
		info.Kind = NTFS
	case magicNFS, magicSMB, magicCIFS, magicSMB2:
		info.Kind = Network
		info.Remote = true
	case magicFUSE:
		info.Kind = Other
	default:
		info.Kind = Other
	}
	return info, nil
}
