package bcache

import (
	"fmt"
	"sync"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/common"
)

// A sleeplock may be held across disk I/O. Waiters block on cond instead of
// spinning.
type sleeplock struct {
	mu     *sync.Mutex
	cond   *sync.Cond
	locked bool
}

func mkSleeplock() sleeplock {
	mu := new(sync.Mutex)
	return sleeplock{mu: mu, cond: sync.NewCond(mu)}
}

func (l *sleeplock) acquire() {
	l.mu.Lock()
	for l.locked {
		l.cond.Wait()
	}
	l.locked = true
	l.mu.Unlock()
}

func (l *sleeplock) release() {
	l.mu.Lock()
	l.locked = false
	l.mu.Unlock()
	l.cond.Signal()
}

func (l *sleeplock) holding() bool {
	l.mu.Lock()
	locked := l.locked
	l.mu.Unlock()
	return locked
}

// Buf is one slot of the cache. Dev, Blkno and Data belong to whoever holds
// the buffer (returned by Bread, given back with Brelse). refcnt and
// timestamp are protected by the lock of the bucket Blkno hashes to.
type Buf struct {
	Dev   common.Dev
	Blkno common.Bnum
	Data  disk.Block

	valid     bool // Data holds the on-disk contents of (Dev, Blkno)
	refcnt    uint32
	timestamp uint64
	lock      sleeplock
}

// Locked reports whether some goroutine holds b.
func (b *Buf) Locked() bool {
	return b.lock.holding()
}

func (b *Buf) Valid() bool {
	return b.valid
}

func (b *Buf) String() string {
	return fmt.Sprintf("%d/%d valid %v ref %d ts %d", b.Dev, b.Blkno, b.valid,
		b.refcnt, b.timestamp)
}
