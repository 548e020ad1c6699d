// Package timed_disk counts and times the I/O that reaches a disk, so the
// bench and tests can see how many block reads the buffer cache let through.
package timed_disk

import (
	"io"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/util/stats"
)

type ioKind int

const (
	kindRead ioKind = iota
	kindWrite
	kindBarrier
	numKinds
)

var kindNames = [numKinds]string{"disk.Read", "disk.Write", "disk.Barrier"}

// Disk is a disk.Disk that records every call it forwards.
type Disk struct {
	inner disk.Disk
	ops   [numKinds]stats.Op
}

var _ disk.Disk = (*Disk)(nil)

func New(d disk.Disk) *Disk {
	return &Disk{inner: d}
}

func (d *Disk) timed(k ioKind, f func()) {
	start := time.Now()
	f()
	d.ops[k].Record(start)
}

func (d *Disk) ReadTo(a uint64, b disk.Block) {
	d.timed(kindRead, func() { d.inner.ReadTo(a, b) })
}

func (d *Disk) Read(a uint64) disk.Block {
	blk := make(disk.Block, disk.BlockSize)
	d.ReadTo(a, blk)
	return blk
}

func (d *Disk) Write(a uint64, b disk.Block) {
	d.timed(kindWrite, func() { d.inner.Write(a, b) })
}

func (d *Disk) Barrier() {
	d.timed(kindBarrier, d.inner.Barrier)
}

func (d *Disk) Size() uint64 { return d.inner.Size() }

func (d *Disk) Close() { d.inner.Close() }

// Reads is the number of blocks read so far.
func (d *Disk) Reads() uint64 {
	return d.ops[kindRead].Count()
}

func (d *Disk) Writes() uint64 {
	return d.ops[kindWrite].Count()
}

func (d *Disk) WriteStats(w io.Writer) {
	stats.WriteTable(kindNames[:], d.ops[:], w)
}

func (d *Disk) ResetStats() {
	for k := range d.ops {
		d.ops[k].Reset()
	}
}
