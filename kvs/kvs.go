package kvs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/super"
)

//
// KVS using log transactions to implement atomic multiput
// Keys == data block numbers
//

const DISKSZ uint64 = 10 * 1000

// MAXVAL is the largest value a block can hold after its length prefix.
const MAXVAL = disk.BlockSize - 8

var (
	ErrKey     = errors.New("kvs: key out of range")
	ErrValue   = errors.New("kvs: value too large")
	ErrTooMany = errors.New("kvs: too many pairs for one transaction")
	ErrDupKey  = errors.New("kvs: duplicate key")
)

type KVS struct {
	super *super.FsSuper
}

type KVPair struct {
	Key uint64
	Val []byte
}

func MkKVS(name *string) (*KVS, error) {
	s, err := super.MkFsSuper(DISKSZ, name)
	if err != nil {
		return nil, err
	}
	util.DPrintf(1, "Super: sz %d data %d\n", DISKSZ, s.DataStart())
	return MkKVSSuper(s), nil
}

func MkKVSSuper(s *super.FsSuper) *KVS {
	return &KVS{super: s}
}

func (kvs *KVS) checkKey(key uint64) error {
	if key >= kvs.super.NData() {
		return fmt.Errorf("%w: %d", ErrKey, key)
	}
	return nil
}

func (kvs *KVS) blkno(key uint64) common.Bnum {
	return kvs.super.DataStart() + key
}

func encodeVal(val []byte) []byte {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(uint64(len(val)))
	enc.PutBytes(val)
	return enc.Finish()
}

func decodeVal(blk []byte) []byte {
	dec := marshal.NewDec(blk)
	n := dec.GetInt()
	if n > MAXVAL {
		n = MAXVAL
	}
	val := make([]byte, n)
	copy(val, dec.GetBytes(n))
	return val
}

// MultiPut writes all pairs in one transaction: after a crash either all of
// them or none are visible.
func (kvs *KVS) MultiPut(pairs []KVPair) error {
	if uint64(len(pairs)) > common.MAXOPBLOCKS {
		return ErrTooMany
	}
	seen := make(map[uint64]bool)
	for _, p := range pairs {
		if err := kvs.checkKey(p.Key); err != nil {
			return err
		}
		if uint64(len(p.Val)) > MAXVAL {
			return fmt.Errorf("%w: %d bytes", ErrValue, len(p.Val))
		}
		if seen[p.Key] {
			return fmt.Errorf("%w: %d", ErrDupKey, p.Key)
		}
		seen[p.Key] = true
	}

	bc := kvs.super.Cache
	l := kvs.super.Log
	l.BeginOp()
	for _, p := range pairs {
		b, err := bc.Bread(kvs.super.Dev, kvs.blkno(p.Key))
		if err != nil {
			// what's been logged so far still commits
			return errors.Join(err, l.EndOp())
		}
		copy(b.Data, encodeVal(p.Val))
		l.Write(b)
		bc.Brelse(b)
	}
	return l.EndOp()
}

// Get returns the value stored under key; a key never written has an empty
// value.
func (kvs *KVS) Get(key uint64) (*KVPair, error) {
	if err := kvs.checkKey(key); err != nil {
		return nil, err
	}
	bc := kvs.super.Cache
	b, err := bc.Bread(kvs.super.Dev, kvs.blkno(key))
	if err != nil {
		return nil, err
	}
	val := decodeVal(b.Data)
	bc.Brelse(b)
	return &KVPair{
		Key: key,
		Val: val,
	}, nil
}

func (kvs *KVS) Delete() error {
	return kvs.super.Shutdown()
}
