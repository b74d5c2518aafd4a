package traverse

import (
	"context"
	"sync"

	"github.com/lumipallolabs/dirsize/internal/model"
)

const (
	// partitionFactor is how many top-level subtrees each worker should get
	// before the breadth-first split stops.
	partitionFactor = 4
	// maxPartitionLevels bounds the breadth-first split on narrow trees.
	maxPartitionLevels = 6
)

// idStack is an immutable chain of directory identities from a node up to the
// root. Children share their parent's chain, so workers can hold it without
// locking.
type idStack struct {
	id model.FileID
	up *idStack
}

func (s *idStack) push(id model.FileID) *idStack {
	return &idStack{id: id, up: s}
}

func (s *idStack) contains(id model.FileID) bool {
	for ; s != nil; s = s.up {
		if s.id == id {
			return true
		}
	}
	return false
}

// node is a directory discovered but not yet listed.
type node[H any] struct {
	Entry
	name   string
	parent H
	handle H
	// ancestors holds the identities of every directory above this one.
	ancestors *idStack
	stack     *idStack
}

// lister is a platform backend driven by the pool.
type lister[H any] interface {
	// open acquires the handle of n and returns its identity.
	open(n *node[H], cfg *Config) (model.FileID, error)
	// list reports the files and non-descended subdirectories of an opened
	// n to v and returns the subdirectories to descend.
	list(n *node[H], cfg *Config, v Visitor) []*node[H]
	// release drops every handle n holds. It is called exactly once per node,
	// including nodes abandoned on cancellation.
	release(n *node[H])
}

// runPool walks root with l. The coordinator splits the tree breadth-first
// until there are enough independent subtrees, then a fixed pool of workers
// each walks whole subtrees depth-first with its own Visitor.
func runPool[H any](ctx context.Context, l lister[H], root *node[H], cfg Config, newVisitor func() Visitor) error {
	rootID, err := l.open(root, &cfg)
	if err != nil {
		l.release(root)
		return rootError(root.Path, err)
	}
	rootDev := rootID.Dev
	root.stack = (*idStack)(nil).push(rootID)

	coord := newVisitor()
	coord.Enter(root.Entry)
	frontier := l.list(root, &cfg, coord)
	l.release(root)
	coord.Leave(root.Path, len(frontier))

	target := cfg.workers() * partitionFactor
	for level := 0; len(frontier) > 0 && len(frontier) < target && level < maxPartitionLevels; level++ {
		var next []*node[H]
		for i, n := range frontier {
			if ctx.Err() != nil {
				releaseAll(l, frontier[i:])
				releaseAll(l, next)
				return ctx.Err()
			}
			next = append(next, expand(l, n, rootDev, &cfg, coord)...)
		}
		frontier = next
	}
	if len(frontier) == 0 {
		return ctx.Err()
	}

	workers := min(cfg.workers(), len(frontier))
	tasks := make(chan *node[H], len(frontier))
	for _, n := range frontier {
		tasks <- n
	}
	close(tasks)

	var wg sync.WaitGroup
	for range workers {
		v := newVisitor()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range tasks {
				walkSubtree(ctx, l, n, rootDev, &cfg, v)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// walkSubtree expands n and its descendants depth-first with an explicit
// stack, checking for cancellation before each directory.
func walkSubtree[H any](ctx context.Context, l lister[H], n *node[H], rootDev uint64, cfg *Config, v Visitor) {
	stack := []*node[H]{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ctx.Err() != nil {
			l.release(top)
			continue
		}
		stack = append(stack, expand(l, top, rootDev, cfg, v)...)
	}
}

// expand opens and lists one directory, reporting it to v.
func expand[H any](l lister[H], n *node[H], rootDev uint64, cfg *Config, v Visitor) []*node[H] {
	id, err := l.open(n, cfg)
	if err != nil {
		l.release(n)
		n.Errored = true
		v.Enter(n.Entry)
		failDir(v, n.Path, err)
		v.Leave(n.Path, 0)
		return nil
	}
	if n.ancestors.contains(id) {
		l.release(n)
		v.Enter(n.Entry)
		v.Fail(cycle(n.Path))
		v.Leave(n.Path, 0)
		return nil
	}
	if !cfg.CrossFilesystem && id.Dev != rootDev {
		// A mount reached through a followed link; report it empty.
		l.release(n)
		v.Enter(n.Entry)
		v.Leave(n.Path, 0)
		return nil
	}
	n.stack = n.ancestors.push(id)

	v.Enter(n.Entry)
	children := l.list(n, cfg, v)
	l.release(n)
	v.Leave(n.Path, len(children))
	return children
}

func releaseAll[H any](l lister[H], nodes []*node[H]) {
	for _, n := range nodes {
		l.release(n)
	}
}
