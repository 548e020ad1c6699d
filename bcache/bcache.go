// Package bcache is a fixed-size buffer cache of disk blocks.
//
// The cache holds cached copies of disk block contents. Caching disk blocks
// in memory reduces the number of disk reads and also provides a
// synchronization point for disk blocks used by multiple goroutines.
//
// Interface:
//   - To get a buffer for a particular disk block, call Bread.
//   - After changing buffer data, call Bwrite to write it to disk.
//   - When done with the buffer, call Brelse.
//   - Do not use the buffer after calling Brelse.
//   - Only one goroutine at a time can use a buffer, so do not keep them
//     longer than necessary.
//
// Buffers are hashed by block number into buckets, each with its own mutex.
// A hit locks only the block's bucket. A miss recycles the least recently
// used buffer with no references, which may live in any bucket.
package bcache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/ticks"
)

var ErrNoBuffers = errors.New("bget: no buffers")

// Gateway performs synchronous block I/O; devsw.Table is the usual one.
type Gateway interface {
	ReadTo(dev common.Dev, bn common.Bnum, blk disk.Block) error
	Write(dev common.Dev, bn common.Bnum, blk disk.Block) error
}

type Config struct {
	NBuf    uint64 // defaults to common.NBUF
	NBucket uint64 // defaults to common.NBUCKET
	Clock   ticks.Clock
}

type bucket struct {
	mu   *sync.Mutex
	head uint64
}

type Cache struct {
	gw    Gateway
	clock ticks.Clock

	bufs    []Buf
	buckets []bucket
	arena   arena // protected by the bucket locks

	// Serializes misses, so that only one goroutine at a time moves buffers
	// between buckets.
	evictMu *sync.Mutex

	stats Stats
}

func MkCache(gw Gateway, cfg Config) *Cache {
	if cfg.NBuf == 0 {
		cfg.NBuf = common.NBUF
	}
	if cfg.NBucket == 0 {
		cfg.NBucket = common.NBUCKET
	}
	if cfg.Clock == nil {
		cfg.Clock = ticks.MkCounter()
	}
	c := &Cache{
		gw:      gw,
		clock:   cfg.Clock,
		bufs:    make([]Buf, cfg.NBuf),
		buckets: make([]bucket, cfg.NBucket),
		arena:   mkArena(cfg.NBuf, cfg.NBucket),
		evictMu: new(sync.Mutex),
	}
	for k := range c.buckets {
		c.buckets[k] = bucket{
			mu:   new(sync.Mutex),
			head: c.arena.head(uint64(k)),
		}
	}
	// All buffers start out in bucket 0, unidentified.
	for i := range c.bufs {
		c.bufs[i] = Buf{
			Dev:  common.NODEV,
			Data: make(disk.Block, disk.BlockSize),
			lock: mkSleeplock(),
		}
		c.arena.pushFront(c.buckets[0].head, uint64(i))
	}
	util.DPrintf(1, "MkCache: %d bufs %d buckets\n", cfg.NBuf, cfg.NBucket)
	return c
}

func (c *Cache) bucketOf(bn common.Bnum) uint64 {
	return bn % uint64(len(c.buckets))
}

// lookup finds (dev, bn) in bucket k. Caller holds bucket k's lock.
func (c *Cache) lookup(k uint64, dev common.Dev, bn common.Bnum) *Buf {
	var found *Buf
	c.arena.each(c.buckets[k].head, func(i uint64) bool {
		b := &c.bufs[i]
		if b.Dev == dev && b.Blkno == bn {
			found = b
			return false
		}
		return true
	})
	return found
}

// Look through the cache for block bn on device dev. If not found, recycle
// a buffer. In either case, return a locked buffer.
func (c *Cache) bget(dev common.Dev, bn common.Bnum) *Buf {
	if dev == common.NODEV {
		panic("bget: NODEV")
	}
	home := c.bucketOf(bn)
	bk := &c.buckets[home]

	// Is the block already cached?
	bk.mu.Lock()
	if b := c.lookup(home, dev, bn); b != nil {
		c.hit(bk, b)
		return b
	}
	bk.mu.Unlock()

	// Not cached. Take the eviction lock before relocking the bucket, since
	// the evictor holds it while locking other buckets.
	c.evictMu.Lock()
	bk.mu.Lock()

	// Another miss on the same block may have installed it in the meantime.
	if b := c.lookup(home, dev, bn); b != nil {
		c.evictMu.Unlock()
		c.hit(bk, b)
		return b
	}

	i, ok := c.victim(home)
	if !ok {
		c.dump(home)
		panic(ErrNoBuffers)
	}
	b := &c.bufs[i]
	if b.Dev != common.NODEV {
		c.stats.evictions.Add(1)
		util.DPrintf(5, "bget: evict %d/%d for %d/%d\n", b.Dev, b.Blkno, dev, bn)
	}
	b.Dev = dev
	b.Blkno = bn
	b.valid = false
	b.refcnt = 1
	b.timestamp = c.clock.Now()
	c.stats.misses.Add(1)

	bk.mu.Unlock()
	c.evictMu.Unlock()
	b.lock.acquire()
	return b
}

// hit takes a reference to b, which is in bk, and unlocks bk before
// sleeping on b's lock.
func (c *Cache) hit(bk *bucket, b *Buf) {
	b.refcnt++
	b.timestamp = c.clock.Now()
	bk.mu.Unlock()
	c.stats.hits.Add(1)
	util.DPrintf(10, "bget: hit %d/%d\n", b.Dev, b.Blkno)
	b.lock.acquire()
}

// victim finds the least recently used buffer with no references, moves it
// into bucket home, and returns its index. Caller holds evictMu and home's
// lock; the other buckets are locked one at a time, home itself is skipped
// when probing since it is already held.
func (c *Cache) victim(home uint64) (uint64, bool) {
	nbucket := uint64(len(c.buckets))
	for {
		var best uint64
		var bestBucket uint64
		var bestTs uint64
		found := false
		for n := uint64(0); n < nbucket; n++ {
			k := (home + n) % nbucket
			cur := &c.buckets[k]
			if k != home {
				cur.mu.Lock()
			}
			c.arena.each(cur.head, func(i uint64) bool {
				b := &c.bufs[i]
				if b.refcnt == 0 && (!found || b.timestamp < bestTs) {
					best, bestBucket, bestTs = i, k, b.timestamp
					found = true
				}
				return true
			})
			if k != home {
				cur.mu.Unlock()
			}
		}
		if !found {
			return 0, false
		}
		if bestBucket == home {
			return best, true
		}

		// Only evictors move buffers between buckets, so best is still in
		// bestBucket, but a hit may have taken a reference since the scan.
		other := &c.buckets[bestBucket]
		other.mu.Lock()
		if c.bufs[best].refcnt != 0 {
			other.mu.Unlock()
			util.DPrintf(5, "victim: %d taken during scan, rescan\n", best)
			continue
		}
		c.arena.unlink(best)
		other.mu.Unlock()
		c.arena.pushFront(c.buckets[home].head, best)
		return best, true
	}
}

// dump prints every buffer. Caller holds evictMu and home's lock.
func (c *Cache) dump(home uint64) {
	util.DPrintf(0, "bcache: all %d buffers in use\n", len(c.bufs))
	for k := range c.buckets {
		bk := &c.buckets[k]
		if uint64(k) != home {
			bk.mu.Lock()
		}
		c.arena.each(bk.head, func(i uint64) bool {
			util.DPrintf(0, "  bucket %d slot %d: %v\n", k, i, &c.bufs[i])
			return true
		})
		if uint64(k) != home {
			bk.mu.Unlock()
		}
	}
}

// Bread returns a locked buffer with the contents of the indicated block. If
// the block cannot be read the buffer is released and stays invalid, so a
// later Bread tries the device again.
func (c *Cache) Bread(dev common.Dev, bn common.Bnum) (*Buf, error) {
	defer c.stats.ops[breadOp].Record(time.Now())
	b := c.bget(dev, bn)
	if !b.valid {
		start := time.Now()
		err := c.gw.ReadTo(dev, bn, b.Data)
		c.stats.ops[fillOp].Record(start)
		if err != nil {
			c.stats.fillErrors.Add(1)
			util.DPrintf(1, "Bread %d/%d: %v\n", dev, bn, err)
			c.Brelse(b)
			return nil, fmt.Errorf("bread: %w", err)
		}
		b.valid = true
	}
	return b, nil
}

// Bwrite writes b's contents to disk. b must be locked.
func (c *Cache) Bwrite(b *Buf) error {
	if !b.lock.holding() {
		panic("bwrite")
	}
	defer c.stats.ops[bwriteOp].Record(time.Now())
	util.DPrintf(5, "Bwrite %d/%d\n", b.Dev, b.Blkno)
	if err := c.gw.Write(b.Dev, b.Blkno, b.Data); err != nil {
		return fmt.Errorf("bwrite: %w", err)
	}
	return nil
}

// Brelse releases a locked buffer. Once its last reference is gone it may be
// recycled, least recently used first.
func (c *Cache) Brelse(b *Buf) {
	if !b.lock.holding() {
		panic("brelse")
	}
	defer c.stats.ops[brelseOp].Record(time.Now())
	b.lock.release()

	bk := &c.buckets[c.bucketOf(b.Blkno)]
	bk.mu.Lock()
	if b.refcnt == 0 {
		bk.mu.Unlock()
		panic("brelse: refcnt")
	}
	b.refcnt--
	b.timestamp = c.clock.Now()
	bk.mu.Unlock()
}

// Bpin keeps b in the cache until the matching Bunpin, whether or not
// anyone holds it locked.
func (c *Cache) Bpin(b *Buf) {
	bk := &c.buckets[c.bucketOf(b.Blkno)]
	bk.mu.Lock()
	b.refcnt++
	bk.mu.Unlock()
}

func (c *Cache) Bunpin(b *Buf) {
	bk := &c.buckets[c.bucketOf(b.Blkno)]
	bk.mu.Lock()
	if b.refcnt == 0 {
		bk.mu.Unlock()
		panic("bunpin")
	}
	b.refcnt--
	bk.mu.Unlock()
}

// Binval discards b's contents, so the next Bread refetches the block from
// disk. The caller holds a reference to b but must not hold it locked.
func (c *Cache) Binval(b *Buf) {
	b.lock.acquire()
	b.valid = false
	b.lock.release()
	util.DPrintf(5, "Binval %d/%d\n", b.Dev, b.Blkno)
}

// Invalidate forgets the contents of every unreferenced buffer of dev, for
// use after the device behind dev has changed. Buffers still referenced are
// left alone.
func (c *Cache) Invalidate(dev common.Dev) {
	var n uint64
	for k := range c.buckets {
		bk := &c.buckets[k]
		bk.mu.Lock()
		c.arena.each(bk.head, func(i uint64) bool {
			b := &c.bufs[i]
			if b.Dev == dev && b.refcnt == 0 {
				b.valid = false
				n++
			}
			return true
		})
		bk.mu.Unlock()
	}
	util.DPrintf(1, "Invalidate %d: %d bufs\n", dev, n)
}

func (c *Cache) NBuf() uint64 {
	return uint64(len(c.bufs))
}
