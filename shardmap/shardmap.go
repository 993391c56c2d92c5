// Package shardmap indexes cached buffers by block number. Lookups for
// different blocks only contend when they fall in the same shard.
package shardmap

import (
	"sort"
	"sync"

	"github.com/mit-pdos/go-akpfs/buf"
	"github.com/mit-pdos/go-akpfs/common"
)

type mapShard struct {
	mu    *sync.RWMutex
	state map[common.Bnum]*buf.Buf
}

type BufMap struct {
	shards []*mapShard
}

const NSHARD uint64 = 257

func mkMapShard() *mapShard {
	return &mapShard{
		mu:    new(sync.RWMutex),
		state: make(map[common.Bnum]*buf.Buf),
	}
}

func MkBufMap() *BufMap {
	var shards []*mapShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkMapShard())
	}
	return &BufMap{shards: shards}
}

func (bmap *BufMap) getShard(blkno common.Bnum) *mapShard {
	return bmap.shards[blkno%NSHARD]
}

func (bmap *BufMap) Lookup(blkno common.Bnum) (*buf.Buf, bool) {
	shard := bmap.getShard(blkno)
	shard.mu.RLock()
	b, ok := shard.state[blkno]
	shard.mu.RUnlock()
	return b, ok
}

// LookupOrInsert returns the buffer cached for blkno, inserting mk() if
// there is none.
func (bmap *BufMap) LookupOrInsert(blkno common.Bnum, mk func() *buf.Buf) *buf.Buf {
	shard := bmap.getShard(blkno)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	b, ok := shard.state[blkno]
	if !ok {
		b = mk()
		shard.state[blkno] = b
	}
	return b
}

func (bmap *BufMap) Del(blkno common.Bnum) {
	shard := bmap.getShard(blkno)
	shard.mu.Lock()
	delete(shard.state, blkno)
	shard.mu.Unlock()
}

// Blknos returns every cached block number in ascending order.
func (bmap *BufMap) Blknos() []common.Bnum {
	var blknos []common.Bnum
	for _, shard := range bmap.shards {
		shard.mu.RLock()
		for blkno := range shard.state {
			blknos = append(blknos, blkno)
		}
		shard.mu.RUnlock()
	}
	sort.Slice(blknos, func(i, j int) bool { return blknos[i] < blknos[j] })
	return blknos
}

func (bmap *BufMap) Len() uint64 {
	n := uint64(0)
	for _, shard := range bmap.shards {
		shard.mu.RLock()
		n += uint64(len(shard.state))
		shard.mu.RUnlock()
	}
	return n
}
