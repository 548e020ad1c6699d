package bcache

import (
	"io"
	"sync/atomic"

	"github.com/mit-pdos/go-bcache/util/stats"
)

const (
	breadOp int = iota
	bwriteOp
	brelseOp
	fillOp
	numOps
)

var opNames = []string{"Bread", "Bwrite", "Brelse", "fill"}

type Stats struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	evictions  atomic.Uint64
	fillErrors atomic.Uint64
	ops        [numOps]stats.Op
}

// Snapshot is a point-in-time copy of a cache's counters.
type Snapshot struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64 // misses that recycled a buffer holding another block
	Fills      uint64 // device reads issued by Bread
	FillErrors uint64
	Reads      uint64
	Writes     uint64
	Releases   uint64
}

func (c *Cache) Stats() Snapshot {
	s := &c.stats
	return Snapshot{
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Evictions:  s.evictions.Load(),
		Fills:      s.ops[fillOp].Count(),
		FillErrors: s.fillErrors.Load(),
		Reads:      s.ops[breadOp].Count(),
		Writes:     s.ops[bwriteOp].Count(),
		Releases:   s.ops[brelseOp].Count(),
	}
}

func (c *Cache) WriteStats(w io.Writer) {
	snap := c.Stats()
	stats.WriteCounters([]stats.Counter{
		{Name: "hits", Value: snap.Hits},
		{Name: "misses", Value: snap.Misses},
		{Name: "evictions", Value: snap.Evictions},
		{Name: "fill errors", Value: snap.FillErrors},
	}, w)
	stats.WriteTable(opNames, c.stats.ops[:], w)
}

func (c *Cache) ResetStats() {
	s := &c.stats
	s.hits.Store(0)
	s.misses.Store(0)
	s.evictions.Store(0)
	s.fillErrors.Store(0)
	for i := range s.ops {
		s.ops[i].Reset()
	}
}
