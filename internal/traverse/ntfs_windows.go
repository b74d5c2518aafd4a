//go:build windows

package traverse

import (
	"context"
	"path/filepath"
	"sync"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/lumipallolabs/dirsize/internal/model"
)

// dirInfoBufSize is the enumeration batch size.
const dirInfoBufSize = 64 << 10

func (ntfsStrategy) Supported() bool { return true }

func (ntfsStrategy) Walk(ctx context.Context, root string, cfg Config, newVisitor func() Visitor) error {
	l := &ntfsLister{bufs: sync.Pool{New: func() any {
		// Directory info records must be 8-byte aligned.
		b := make([]uint64, dirInfoBufSize/8)
		return &b
	}}}
	return runPool(ctx, l, &node[windows.Handle]{Entry: Entry{Path: root, Kind: KindDir}}, cfg, newVisitor)
}

// fileIDBothDirInfo is the Win32 FILE_ID_BOTH_DIR_INFO record returned by the
// FileIdBothDirectoryInfo class. FileName runs past the end of the struct.
type fileIDBothDirInfo struct {
	NextEntryOffset uint32
	FileIndex       uint32
	CreationTime    int64
	LastAccessTime  int64
	LastWriteTime   int64
	ChangeTime      int64
	EndOfFile       int64
	AllocationSize  int64
	FileAttributes  uint32
	FileNameLength  uint32
	EaSize          uint32
	ShortNameLength int8
	ShortName       [12]uint16
	FileID          int64
	FileName        [1]uint16
}

type ntfsLister struct {
	bufs sync.Pool
}

func (l *ntfsLister) open(n *node[windows.Handle], cfg *Config) (model.FileID, error) {
	p, err := windows.UTF16PtrFromString(n.Path)
	if err != nil {
		return model.FileID{}, err
	}
	flags := uint32(windows.FILE_FLAG_BACKUP_SEMANTICS)
	if !cfg.FollowSymlinks {
		flags |= windows.FILE_FLAG_OPEN_REPARSE_POINT
	}
	h, err := windows.CreateFile(p,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, flags, 0)
	if err != nil {
		return model.FileID{}, err
	}
	n.handle = h

	var bhfi windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &bhfi); err != nil {
		return model.FileID{}, err
	}
	n.ID = model.FileID{
		Dev: uint64(bhfi.VolumeSerialNumber),
		Ino: uint64(bhfi.FileIndexHigh)<<32 | uint64(bhfi.FileIndexLow),
	}
	n.HasID = true
	return n.ID, nil
}

func (l *ntfsLister) list(n *node[windows.Handle], cfg *Config, v Visitor) []*node[windows.Handle] {
	bufp := l.bufs.Get().(*[]uint64)
	defer l.bufs.Put(bufp)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&(*bufp)[0])), len(*bufp)*8)

	var children []*node[windows.Handle]
	class := uint32(windows.FileIdBothDirectoryRestartInfo)
	for {
		err := windows.GetFileInformationByHandleEx(n.handle, class, &buf[0], uint32(len(buf)))
		class = windows.FileIdBothDirectoryInfo
		if err == windows.ERROR_NO_MORE_FILES {
			break
		}
		if err != nil {
			failDir(v, n.Path, err)
			break
		}
		for off := 0; ; {
			info := (*fileIDBothDirInfo)(unsafe.Pointer(&buf[off]))
			if c := l.child(n, info, cfg, v); c != nil {
				children = append(children, c)
			}
			if info.NextEntryOffset == 0 {
				break
			}
			off += int(info.NextEntryOffset)
		}
	}
	return children
}

func (l *ntfsLister) child(n *node[windows.Handle], info *fileIDBothDirInfo, cfg *Config, v Visitor) *node[windows.Handle] {
	name := string(utf16.Decode(unsafe.Slice(&info.FileName[0], info.FileNameLength/2)))
	if name == "." || name == ".." {
		return nil
	}
	attrs := info.FileAttributes
	if attrs&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0 && !cfg.FollowSymlinks {
		return nil
	}

	e := Entry{
		Path:   filepath.Join(n.Path, name),
		Parent: n.Path,
		Depth:  n.Depth + 1,
		Size:   info.EndOfFile,
		Alloc:  info.AllocationSize,
		ID:     model.FileID{Dev: n.ID.Dev, Ino: uint64(info.FileID)},
		HasID:  true,
	}
	if attrs&windows.FILE_ATTRIBUTE_DIRECTORY == 0 {
		e.Kind = KindFile
		v.Leaf(e)
		return nil
	}
	e.Kind = KindDir
	if !cfg.descend(e.Depth) {
		v.Leaf(e)
		return nil
	}
	// The listed id of a followed reparse point is the link's own; the
	// target identity is read when the directory is opened.
	e.HasID = false
	return &node[windows.Handle]{Entry: e, name: name, ancestors: n.stack}
}

func (l *ntfsLister) release(n *node[windows.Handle]) {
	if n.handle != 0 {
		windows.CloseHandle(n.handle)
		n.handle = 0
	}
}
