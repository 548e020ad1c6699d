// Package wal is a write-ahead log layered on the buffer cache, allowing
// concurrent operations to update several blocks atomically with respect to
// crashes.
//
// A typical use:
//
//	l.BeginOp()
//	b, _ := bc.Bread(dev, bn)
//	modify b.Data
//	l.Write(b)
//	bc.Brelse(b)
//	err := l.EndOp()
//
// Write replaces Bwrite: it records the block number and pins the buffer in
// the cache until the transaction is installed. Buffers must be released
// before EndOp, which may commit and then needs to read them.
//
// On-disk format, starting at the header block:
//
//	header block: count n, then n home block numbers
//	block start+1 .. start+n: copies of the logged blocks
package wal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
)

const HDRMETA = uint64(8) // space for the count
const HDRADDRS = (disk.BlockSize - HDRMETA) / 8

var ErrLogSize = errors.New("wal: bad log size")
var ErrCorrupt = errors.New("wal: corrupt log header")

type Log struct {
	mu          *sync.Mutex
	cond        *sync.Cond
	bc          *bcache.Cache
	dev         common.Dev
	start       common.Bnum
	size        uint64
	outstanding uint64 // how many ops are executing
	committing  bool   // in commit(), please wait

	// The running transaction, protected by mu while ops run and owned by
	// the committer while committing.
	blocks []common.Bnum
	bufs   []*bcache.Buf
}

// MkLog opens the log whose header is block start of dev, followed by size
// log blocks, and installs any transaction that committed before a crash.
func MkLog(bc *bcache.Cache, dev common.Dev, start common.Bnum, size uint64) (*Log, error) {
	if size < common.MAXOPBLOCKS || size > HDRADDRS {
		return nil, fmt.Errorf("%w: %d blocks", ErrLogSize, size)
	}
	mu := new(sync.Mutex)
	l := &Log{
		mu:    mu,
		cond:  sync.NewCond(mu),
		bc:    bc,
		dev:   dev,
		start: start,
		size:  size,
	}
	if err := l.recover(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "MkLog: dev %d start %d size %d\n", dev, start, size)
	return l, nil
}

func encodeHdr(blocks []common.Bnum) []byte {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(uint64(len(blocks)))
	enc.PutInts(blocks)
	return enc.Finish()
}

func decodeHdr(blk disk.Block) ([]common.Bnum, error) {
	dec := marshal.NewDec(blk)
	n := dec.GetInt()
	if n > HDRADDRS {
		return nil, fmt.Errorf("%w: %d blocks", ErrCorrupt, n)
	}
	return dec.GetInts(n), nil
}

func (l *Log) readHead() ([]common.Bnum, error) {
	b, err := l.bc.Bread(l.dev, l.start)
	if err != nil {
		return nil, err
	}
	blocks, err := decodeHdr(b.Data)
	l.bc.Brelse(b)
	return blocks, err
}

// Write the in-memory header to disk. This is the true point at which the
// current transaction commits.
func (l *Log) writeHead() error {
	b, err := l.bc.Bread(l.dev, l.start)
	if err != nil {
		return err
	}
	copy(b.Data, encodeHdr(l.blocks))
	err = l.bc.Bwrite(b)
	l.bc.Brelse(b)
	return err
}

// copyBlock copies block from to block to and writes to.
func (l *Log) copyBlock(from common.Bnum, to common.Bnum) error {
	fb, err := l.bc.Bread(l.dev, from)
	if err != nil {
		return err
	}
	tb, err := l.bc.Bread(l.dev, to)
	if err != nil {
		l.bc.Brelse(fb)
		return err
	}
	copy(tb.Data, fb.Data)
	err = l.bc.Bwrite(tb)
	l.bc.Brelse(fb)
	l.bc.Brelse(tb)
	return err
}

// Copy modified blocks from the cache to the log.
func (l *Log) writeLog() error {
	for i, bn := range l.blocks {
		if err := l.copyBlock(bn, l.start+1+uint64(i)); err != nil {
			return err
		}
	}
	return nil
}

// Copy committed blocks from the log to their home locations.
func (l *Log) installTrans() error {
	for i, bn := range l.blocks {
		util.DPrintf(5, "installTrans: %d -> %d\n", l.start+1+uint64(i), bn)
		if err := l.copyBlock(l.start+1+uint64(i), bn); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) recover() error {
	blocks, err := l.readHead()
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return nil
	}
	util.DPrintf(1, "recover: installing %d blocks\n", len(blocks))
	l.blocks = blocks
	if err := l.installTrans(); err != nil {
		return err
	}
	l.blocks = nil
	return l.writeHead()
}

// BeginOp is called at the start of each operation. It waits until the log
// has room for another op's worth of blocks.
func (l *Log) BeginOp() {
	l.mu.Lock()
	for l.committing ||
		uint64(len(l.blocks))+(l.outstanding+1)*common.MAXOPBLOCKS > l.size {
		l.cond.Wait()
	}
	l.outstanding++
	l.mu.Unlock()
}

// Write adds a modified, locked buffer to the running transaction.
// Repeated writes of a block within a transaction are absorbed.
func (l *Log) Write(b *bcache.Buf) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outstanding < 1 {
		panic("log write outside of trans")
	}
	if !b.Locked() {
		panic("log write unlocked")
	}
	if b.Dev != l.dev {
		panic("log write to another device")
	}
	for _, bn := range l.blocks {
		if bn == b.Blkno {
			return
		}
	}
	if uint64(len(l.blocks)) >= l.size {
		panic("too big a transaction")
	}
	l.blocks = append(l.blocks, b.Blkno)
	l.bufs = append(l.bufs, b)
	l.bc.Bpin(b)
}

// EndOp is called at the end of each operation, and commits if this was the
// last outstanding one. Only the op that commits sees a commit error; after
// one, committed blocks are installed by the next MkLog, and blocks of a
// transaction that did not commit are dropped from the cache.
func (l *Log) EndOp() error {
	l.mu.Lock()
	if l.committing {
		panic("log.committing")
	}
	l.outstanding--
	doCommit := l.outstanding == 0
	if doCommit {
		l.committing = true
	} else {
		// BeginOp may be waiting for log space, and decrementing
		// outstanding has decreased the amount of reserved space.
		l.cond.Broadcast()
	}
	l.mu.Unlock()

	if !doCommit {
		return nil
	}
	err := l.commit()
	l.mu.Lock()
	l.committing = false
	l.cond.Broadcast()
	l.mu.Unlock()
	return err
}

func (l *Log) commit() error {
	if len(l.blocks) == 0 {
		return nil
	}
	util.DPrintf(5, "commit: %v\n", l.blocks)
	committed := false
	err := l.writeLog()
	if err == nil {
		err = l.writeHead()
		committed = err == nil
	}
	if err == nil {
		err = l.installTrans()
	}
	if err == nil {
		l.blocks = l.blocks[:0]
		err = l.writeHead() // erase the transaction from the log
	}
	if !committed {
		// the cached copies hold writes that never reached the log
		for _, b := range l.bufs {
			l.bc.Binval(b)
		}
	}
	for _, b := range l.bufs {
		l.bc.Bunpin(b)
	}
	l.blocks = l.blocks[:0]
	l.bufs = l.bufs[:0]
	if err != nil {
		util.DPrintf(0, "commit: %v\n", err)
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
