package timed_disk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tchajed/goose/machine/disk"
)

func TestCounts(t *testing.T) {
	d := New(disk.NewMemDisk(8))
	blk := make(disk.Block, disk.BlockSize)
	blk[0] = 42
	d.Write(3, blk)
	assert.Equal(t, byte(42), d.Read(3)[0])
	d.ReadTo(4, blk)
	d.Barrier()

	assert.Equal(t, uint64(2), d.Reads())
	assert.Equal(t, uint64(1), d.Writes())
	assert.Equal(t, uint64(8), d.Size())

	buf := new(bytes.Buffer)
	d.WriteStats(buf)
	assert.Contains(t, buf.String(), "disk.Barrier")

	d.ResetStats()
	assert.Equal(t, uint64(0), d.Reads())
}
