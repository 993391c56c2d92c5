// Package bcache is the buffer cache between the filesystem and its disk.
//
// A block is used by fetching it with Acquire, reading or mutating its Data,
// calling SetDirty if it changed, and handing it back with Release (normally
// deferred). A held block is exclusive to its holder; a caller must not
// acquire a block it already holds. Release never writes anything back: dirty
// blocks reach the disk only through Sync.
//
// Buffers stay cached until the next Sync, which drops every buffer it finds
// clean once written, so the cache holds at most the blocks touched since the
// last Sync.
package bcache

import (
	"fmt"

	"github.com/mit-pdos/go-akpfs/buf"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/disk"
	"github.com/mit-pdos/go-akpfs/lockmap"
	"github.com/mit-pdos/go-akpfs/shardmap"
	"github.com/mit-pdos/go-akpfs/util"
)

type Bcache struct {
	d     disk.Disk
	locks *lockmap.LockMap
	bufs  *shardmap.BufMap
}

func MkBcache(d disk.Disk) *Bcache {
	return &Bcache{
		d:     d,
		locks: lockmap.MkLockMap(),
		bufs:  shardmap.MkBufMap(),
	}
}

func (bc *Bcache) BlockSize() uint64 {
	return bc.d.BlockSize()
}

// Acquire locks blkno and returns its buffer, reading it from disk on first
// use. On error nothing is held.
func (bc *Bcache) Acquire(blkno common.Bnum) (*buf.Buf, error) {
	bc.locks.Acquire(blkno)
	b := bc.bufs.LookupOrInsert(blkno, func() *buf.Buf {
		return buf.MkBuf(blkno, make([]byte, bc.d.BlockSize()))
	})
	if !b.IsValid() {
		util.DPrintf(15, "bcache: miss %d\n", blkno)
		if err := bc.d.ReadTo(blkno, b.Data); err != nil {
			bc.bufs.Del(blkno)
			bc.locks.Release(blkno)
			return nil, err
		}
		b.SetValid()
	}
	return b, nil
}

// AcquireZero is Acquire for a block whose old contents are irrelevant (a
// freshly allocated data block): no read, the buffer comes back zeroed and
// dirty.
func (bc *Bcache) AcquireZero(blkno common.Bnum) *buf.Buf {
	bc.locks.Acquire(blkno)
	b := bc.bufs.LookupOrInsert(blkno, func() *buf.Buf {
		return buf.MkBuf(blkno, make([]byte, bc.d.BlockSize()))
	})
	for i := range b.Data {
		b.Data[i] = 0
	}
	b.SetValid()
	b.SetDirty()
	return b
}

func (bc *Bcache) Release(b *buf.Buf) {
	bc.locks.Release(b.Blkno)
}

// Sync writes every dirty block back, issues a disk barrier, and drops the
// written buffers. A block whose write fails stays dirty and cached.
func (bc *Bcache) Sync() error {
	for _, blkno := range bc.bufs.Blknos() {
		err := bc.locks.Do(blkno, func() error {
			b, ok := bc.bufs.Lookup(blkno)
			if !ok {
				return nil
			}
			if b.IsDirty() {
				if err := bc.d.Write(blkno, b.Data); err != nil {
					return err
				}
				b.Clean()
			}
			bc.bufs.Del(blkno)
			return nil
		})
		if err != nil {
			return fmt.Errorf("syncing buffer cache: %w", err)
		}
	}
	if err := bc.d.Barrier(); err != nil {
		return fmt.Errorf("syncing buffer cache: %w", err)
	}
	return nil
}

// NCached is the number of cached buffers.
func (bc *Bcache) NCached() uint64 {
	return bc.bufs.Len()
}

// NDirty counts dirty cached blocks.
func (bc *Bcache) NDirty() uint64 {
	n := uint64(0)
	for _, blkno := range bc.bufs.Blknos() {
		bc.locks.Acquire(blkno)
		if b, ok := bc.bufs.Lookup(blkno); ok && b.IsDirty() {
			n += 1
		}
		bc.locks.Release(blkno)
	}
	return n
}
