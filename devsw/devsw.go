// Package devsw is the device switch: it maps device numbers to the block
// devices behind them and performs synchronous block I/O on behalf of the
// buffer cache.
package devsw

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/common"
)

var (
	ErrNoDevice  = errors.New("devsw: no such device")
	ErrBusy      = errors.New("devsw: device already mounted")
	ErrRange     = errors.New("devsw: block out of range")
	ErrBlockSize = errors.New("devsw: payload is not one block")
)

type Table struct {
	mu   *sync.RWMutex
	devs map[common.Dev]disk.Disk
}

func MkTable() *Table {
	return &Table{
		mu:   new(sync.RWMutex),
		devs: make(map[common.Dev]disk.Disk),
	}
}

func (t *Table) Mount(dev common.Dev, d disk.Disk) error {
	if dev == common.NODEV {
		return fmt.Errorf("mount %d: %w", dev, ErrNoDevice)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.devs[dev]; ok {
		return fmt.Errorf("mount %d: %w", dev, ErrBusy)
	}
	t.devs[dev] = d
	util.DPrintf(1, "devsw: mount dev %d size %d\n", dev, d.Size())
	return nil
}

// Unmount detaches dev and hands the disk back to the caller, who is
// responsible for closing it. Blocks of dev still in the buffer cache stay
// there; see bcache.Cache.Invalidate.
func (t *Table) Unmount(dev common.Dev) (disk.Disk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devs[dev]
	if !ok {
		return nil, fmt.Errorf("unmount %d: %w", dev, ErrNoDevice)
	}
	delete(t.devs, dev)
	util.DPrintf(1, "devsw: unmount dev %d\n", dev)
	return d, nil
}

func (t *Table) lookup(dev common.Dev) (disk.Disk, error) {
	t.mu.RLock()
	d, ok := t.devs[dev]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrNoDevice
	}
	return d, nil
}

func (t *Table) Size(dev common.Dev) (uint64, error) {
	d, err := t.lookup(dev)
	if err != nil {
		return 0, fmt.Errorf("size %d: %w", dev, err)
	}
	return d.Size(), nil
}

func (t *Table) check(dev common.Dev, bn common.Bnum, blk disk.Block) (disk.Disk, error) {
	d, err := t.lookup(dev)
	if err != nil {
		return nil, err
	}
	if bn >= d.Size() {
		return nil, ErrRange
	}
	if uint64(len(blk)) != disk.BlockSize {
		return nil, ErrBlockSize
	}
	return d, nil
}

// ReadTo fills blk with block bn of dev.
func (t *Table) ReadTo(dev common.Dev, bn common.Bnum, blk disk.Block) error {
	d, err := t.check(dev, bn, blk)
	if err != nil {
		return fmt.Errorf("read %d/%d: %w", dev, bn, err)
	}
	util.DPrintf(10, "devsw: read %d/%d\n", dev, bn)
	d.ReadTo(bn, blk)
	return nil
}

func (t *Table) Write(dev common.Dev, bn common.Bnum, blk disk.Block) error {
	d, err := t.check(dev, bn, blk)
	if err != nil {
		return fmt.Errorf("write %d/%d: %w", dev, bn, err)
	}
	util.DPrintf(10, "devsw: write %d/%d\n", dev, bn)
	d.Write(bn, blk)
	return nil
}

func (t *Table) Barrier(dev common.Dev) error {
	d, err := t.lookup(dev)
	if err != nil {
		return fmt.Errorf("barrier %d: %w", dev, err)
	}
	d.Barrier()
	return nil
}
