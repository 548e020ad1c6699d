package super

import (
	"fmt"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/devsw"
	"github.com/mit-pdos/go-bcache/wal"
)

// Disk layout:
//
//	[ unused | log header | log blocks (nLog) | data ... ]
const LOGSTART common.Bnum = 1

type FsSuper struct {
	Devs  *devsw.Table
	Cache *bcache.Cache
	Log   *wal.Log
	Dev   common.Dev
	Size  uint64
	nLog  uint64
}

// MkFsSuper opens (or creates) a disk of sz blocks: the file name if name is
// non-nil, otherwise an in-memory disk.
func MkFsSuper(sz uint64, name *string) (*FsSuper, error) {
	var d disk.Disk
	if name != nil {
		util.DPrintf(0, "MkFsSuper: open file disk %s\n", *name)
		file, err := disk.NewFileDisk(*name, sz)
		if err != nil {
			return nil, fmt.Errorf("MkFsSuper: couldn't create disk image: %w", err)
		}
		d = file
	} else {
		util.DPrintf(0, "MkFsSuper: create mem disk\n")
		d = disk.NewMemDisk(sz)
	}
	return MkFsSuperDisk(d, bcache.Config{})
}

// MkFsSuperDisk mounts d as common.ROOTDEV behind a buffer cache and opens
// its log, recovering it if needed.
func MkFsSuperDisk(d disk.Disk, cfg bcache.Config) (*FsSuper, error) {
	sz := d.Size()
	if sz <= uint64(LOGSTART)+1+common.LOGSIZE {
		return nil, fmt.Errorf("MkFsSuper: disk of %d blocks too small", sz)
	}
	devs := devsw.MkTable()
	if err := devs.Mount(common.ROOTDEV, d); err != nil {
		return nil, err
	}

	// use the disk with a buffer cache
	bc := bcache.MkCache(devs, cfg)

	l, err := wal.MkLog(bc, common.ROOTDEV, LOGSTART, common.LOGSIZE)
	if err != nil {
		devs.Unmount(common.ROOTDEV)
		return nil, err
	}
	return &FsSuper{
		Devs:  devs,
		Cache: bc,
		Log:   l,
		Dev:   common.ROOTDEV,
		Size:  sz,
		nLog:  common.LOGSIZE,
	}, nil
}

func (fs *FsSuper) DataStart() common.Bnum {
	return LOGSTART + 1 + common.Bnum(fs.nLog)
}

// NData is the number of blocks after the log.
func (fs *FsSuper) NData() uint64 {
	return fs.Size - uint64(fs.DataStart())
}

// Shutdown detaches and closes the disk. The cache must be idle.
func (fs *FsSuper) Shutdown() error {
	d, err := fs.Devs.Unmount(fs.Dev)
	if err != nil {
		return err
	}
	fs.Cache.Invalidate(fs.Dev)
	d.Close()
	return nil
}
