package aggregate

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lumipallolabs/dirsize/internal/model"
)

const (
	// DefaultDedupThreshold is the number of identities tracked exactly
	// before the set switches to its bounded tier.
	DefaultDedupThreshold = 1 << 22
	// DefaultApproxCapacity is the size of the bounded tier.
	DefaultApproxCapacity = 1 << 20

	shardCount = 64
)

type shard struct {
	mu   sync.Mutex
	seen map[model.FileID]struct{}
}

// DedupSet remembers which multiply-linked files were already counted in a
// session. Up to a threshold every identity is kept in sharded exact maps.
// Past it, new identities go to a fixed-size LRU: an identity evicted from
// there and seen again is counted twice, but an identity never seen is never
// reported as a duplicate. Overcounting is therefore bounded by Evictions.
type DedupSet struct {
	shards    [shardCount]shard
	threshold int64
	exact     atomic.Int64

	approx    *lru.Cache[model.FileID, struct{}]
	evictions atomic.Int64
}

// NewDedupSet returns a set that tracks threshold identities exactly and
// approxCapacity more in the bounded tier. Non-positive values select the
// defaults.
func NewDedupSet(threshold, approxCapacity int) *DedupSet {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	if approxCapacity <= 0 {
		approxCapacity = DefaultApproxCapacity
	}
	s := &DedupSet{threshold: int64(threshold)}
	for i := range s.shards {
		s.shards[i].seen = make(map[model.FileID]struct{})
	}
	// NewWithEvict only fails for a non-positive size.
	s.approx, _ = lru.NewWithEvict(approxCapacity, func(model.FileID, struct{}) {
		s.evictions.Add(1)
	})
	return s
}

// Add records id and reports whether it was seen for the first time.
func (s *DedupSet) Add(id model.FileID) bool {
	sh := &s.shards[shardOf(id)]
	sh.mu.Lock()
	if _, ok := sh.seen[id]; ok {
		sh.mu.Unlock()
		return false
	}
	if s.exact.Load() < s.threshold {
		sh.seen[id] = struct{}{}
		s.exact.Add(1)
		sh.mu.Unlock()
		return true
	}
	sh.mu.Unlock()

	found, _ := s.approx.ContainsOrAdd(id, struct{}{})
	return !found
}

// DedupStats describes the state of a DedupSet.
type DedupStats struct {
	Exact     int64
	Approx    int
	Evictions int64
}

// Stats returns the current occupancy of both tiers.
func (s *DedupSet) Stats() DedupStats {
	return DedupStats{
		Exact:     s.exact.Load(),
		Approx:    s.approx.Len(),
		Evictions: s.evictions.Load(),
	}
}

func shardOf(id model.FileID) uint64 {
	h := id.Ino*0x9e3779b97f4a7c15 ^ id.Dev
	return (h ^ h>>32) % shardCount
}
