// Package probe identifies the filesystem a path lives on so the traversal
// layer can pick a backend suited to it.
package probe

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a normalized filesystem classification.
type Kind int

const (
	Other Kind = iota
	NTFS
	ReFS
	APFS
	HFS
	Ext
	XFS
	Btrfs
	ZFS
	Tmpfs
	Overlay
	FAT
	Network
)

var kindNames = map[Kind]string{
	Other:   "other",
	NTFS:    "ntfs",
	ReFS:    "refs",
	APFS:    "apfs",
	HFS:     "hfs",
	Ext:     "ext",
	XFS:     "xfs",
	Btrfs:   "btrfs",
	ZFS:     "zfs",
	Tmpfs:   "tmpfs",
	Overlay: "overlay",
	FAT:     "fat",
	Network: "network",
}

// String returns the lowercase kind label.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "other"
}

// Info describes the filesystem backing a path.
type Info struct {
	Kind Kind
	// Name is the raw type name or magic reported by the OS.
	Name string
	// Remote is set for network filesystems.
	Remote bool
	// TotalBytes and FreeBytes describe the volume; zero when unknown.
	// FreeBytes is the space available to the caller.
	TotalBytes int64
	FreeBytes  int64
}

// UsedBytes returns bytes used on the volume
func (i Info) UsedBytes() int64 {
	return i.TotalBytes - i.FreeBytes
}

// UsedPercent returns percentage of the volume used
func (i Info) UsedPercent() float64 {
	if i.TotalBytes == 0 {
		return 0
	}
	return float64(i.UsedBytes()) / float64(i.TotalBytes) * 100
}

// ErrUnsupported is returned on platforms without a probe implementation.
var ErrUnsupported = errors.New("filesystem probe not supported on this platform")

// Detect probes the filesystem that contains path.
func Detect(path string) (Info, error) {
	info, err := detect(path)
	if err != nil {
		return Info{}, fmt.Errorf("probe %q: %w", path, err)
	}
	return info, nil
}

// kindFromName maps type names as reported by statfs(2) on BSD-derived
// systems or GetVolumeInformation on Windows.
func kindFromName(name string) Kind {
	switch strings.ToLower(name) {
	case "ntfs":
		return NTFS
	case "refs":
		return ReFS
	case "apfs":
		return APFS
	case "hfs", "hfs+":
		return HFS
	case "ufs", "ffs", "ext2", "ext3", "ext4":
		return Ext
	case "xfs":
		return XFS
	case "btrfs":
		return Btrfs
	case "zfs":
		return ZFS
	case "tmpfs":
		return Tmpfs
	case "msdos", "msdosfs", "fat", "fat32", "exfat", "vfat":
		return FAT
	case "nfs", "smbfs", "afpfs", "webdav", "cifs":
		return Network
	default:
		return Other
	}
}
