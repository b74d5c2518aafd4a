//go:build unix

package traverse

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/lumipallolabs/dirsize/internal/model"
)

// direntBufSize is the getdents batch size.
const direntBufSize = 32 << 10

func (posixStrategy) Supported() bool { return true }

func (posixStrategy) Walk(ctx context.Context, root string, cfg Config, newVisitor func() Visitor) error {
	l := &posixLister{bufs: sync.Pool{New: func() any {
		b := make([]byte, direntBufSize)
		return &b
	}}}
	return runPool(ctx, l, &node[*fdRef]{Entry: Entry{Path: root, Kind: KindDir}}, cfg, newVisitor)
}

// fdRef is a directory descriptor shared by the directory and every child
// that still has to be opened relative to it.
type fdRef struct {
	fd   int
	refs atomic.Int32
}

func (r *fdRef) retain() { r.refs.Add(1) }

func (r *fdRef) drop() {
	if r.refs.Add(-1) == 0 {
		unix.Close(r.fd)
	}
}

type posixLister struct {
	bufs sync.Pool
}

func (p *posixLister) open(n *node[*fdRef], cfg *Config) (model.FileID, error) {
	flags := unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC
	if !cfg.FollowSymlinks && n.parent != nil {
		flags |= unix.O_NOFOLLOW
	}
	var (
		fd  int
		err error
	)
	for {
		if n.parent == nil {
			fd, err = unix.Open(n.Path, flags, 0)
		} else {
			fd, err = unix.Openat(n.parent.fd, n.name, flags, 0)
		}
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return model.FileID{}, err
	}
	ref := &fdRef{fd: fd}
	ref.refs.Store(1)
	n.handle = ref

	if n.HasID {
		return n.ID, nil
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return model.FileID{}, err
	}
	n.ID = model.FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
	n.HasID = true
	return n.ID, nil
}

func (p *posixLister) list(n *node[*fdRef], cfg *Config, v Visitor) []*node[*fdRef] {
	bufp := p.bufs.Get().(*[]byte)
	defer p.bufs.Put(bufp)
	buf := *bufp

	var (
		names    []string
		children []*node[*fdRef]
	)
	for {
		nb, err := unix.ReadDirent(n.handle.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			failDir(v, n.Path, err)
			break
		}
		if nb <= 0 {
			break
		}
		_, _, names = unix.ParseDirent(buf[:nb], -1, names[:0])
		for _, name := range names {
			if c := p.child(n, name, cfg, v); c != nil {
				children = append(children, c)
			}
		}
	}
	return children
}

// child stats one directory entry relative to the parent descriptor.
func (p *posixLister) child(n *node[*fdRef], name string, cfg *Config, v Visitor) *node[*fdRef] {
	path := filepath.Join(n.Path, name)
	var st unix.Stat_t
	if err := fstatat(n.handle.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		v.Fail(warn(path, err))
		return nil
	}
	if uint32(st.Mode)&unix.S_IFMT == unix.S_IFLNK {
		if !cfg.FollowSymlinks {
			return nil
		}
		if err := fstatat(n.handle.fd, name, &st, 0); err != nil {
			v.Fail(warn(path, err))
			return nil
		}
	}

	e := Entry{
		Path:   path,
		Parent: n.Path,
		Depth:  n.Depth + 1,
		Size:   int64(st.Size),
		Alloc:  int64(st.Blocks) * 512,
		ID:     model.FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)},
		HasID:  true,
		Links:  uint64(st.Nlink),
	}
	switch uint32(st.Mode) & unix.S_IFMT {
	case unix.S_IFREG:
		e.Kind = KindFile
		v.Leaf(e)
	case unix.S_IFDIR:
		e.Kind = KindDir
		if !cfg.CrossFilesystem && e.ID.Dev != n.ID.Dev {
			return nil
		}
		if !cfg.descend(e.Depth) {
			v.Leaf(e)
			return nil
		}
		n.handle.retain()
		return &node[*fdRef]{Entry: e, name: name, parent: n.handle, ancestors: n.stack}
	}
	return nil
}

func (p *posixLister) release(n *node[*fdRef]) {
	if n.handle != nil {
		n.handle.drop()
		n.handle = nil
	}
	if n.parent != nil {
		n.parent.drop()
		n.parent = nil
	}
}

func fstatat(fd int, name string, st *unix.Stat_t, flags int) error {
	for {
		err := unix.Fstatat(fd, name, st, flags)
		if err != unix.EINTR {
			return err
		}
	}
}
