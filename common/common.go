package common

import (
	journal "github.com/mit-pdos/go-journal/common"
	"github.com/tchajed/goose/machine/disk"
)

// Dev names a mounted block device.
type Dev = uint32

type Bnum = journal.Bnum

const NODEV Dev = ^Dev(0)
const ROOTDEV Dev = 1

const BSIZE uint64 = disk.BlockSize

// Cache geometry. NBUF leaves room for a full log of pinned blocks plus the
// buffers an op and a commit hold at once.
const (
	NBUF    uint64 = LOGSIZE + 2*MAXOPBLOCKS
	NBUCKET uint64 = 13
)

const MAXOPBLOCKS uint64 = 10          // max # of blocks any op writes
const LOGSIZE uint64 = MAXOPBLOCKS * 3 // max data blocks in on-disk log
