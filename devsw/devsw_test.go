package devsw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-bcache/common"
)

func mkblk(b byte) disk.Block {
	blk := make(disk.Block, disk.BlockSize)
	for i := range blk {
		blk[i] = b
	}
	return blk
}

func TestReadWrite(t *testing.T) {
	tbl := MkTable()
	require.NoError(t, tbl.Mount(common.ROOTDEV, disk.NewMemDisk(16)))

	require.NoError(t, tbl.Write(common.ROOTDEV, 5, mkblk(7)))
	blk := make(disk.Block, disk.BlockSize)
	require.NoError(t, tbl.ReadTo(common.ROOTDEV, 5, blk))
	assert.Equal(t, mkblk(7), blk)
	assert.NoError(t, tbl.Barrier(common.ROOTDEV))

	sz, err := tbl.Size(common.ROOTDEV)
	assert.NoError(t, err)
	assert.Equal(t, uint64(16), sz)
}

func TestErrors(t *testing.T) {
	tbl := MkTable()
	blk := make(disk.Block, disk.BlockSize)

	err := tbl.ReadTo(3, 0, blk)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.ErrorIs(t, tbl.Mount(common.NODEV, disk.NewMemDisk(1)), ErrNoDevice)

	require.NoError(t, tbl.Mount(3, disk.NewMemDisk(4)))
	assert.ErrorIs(t, tbl.Mount(3, disk.NewMemDisk(4)), ErrBusy)

	assert.ErrorIs(t, tbl.ReadTo(3, 4, blk), ErrRange)
	assert.ErrorIs(t, tbl.Write(3, 100, blk), ErrRange)
	assert.ErrorIs(t, tbl.Write(3, 0, blk[:10]), ErrBlockSize)

	_, err = tbl.Unmount(3)
	assert.NoError(t, err)
	_, err = tbl.Unmount(3)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.ErrorIs(t, tbl.Barrier(3), ErrNoDevice)
}
