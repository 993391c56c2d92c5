// Package alloc hands out and reclaims device blocks using the on-disk free
// bitmap.
package alloc

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-akpfs/bcache"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/super"
	"github.com/mit-pdos/go-akpfs/util"
)

// Alloc uses the free bitmap to allocate and free block numbers. Bit n
// corresponds to block n; a set bit is in use. Bits at or past block_cnt are
// padding and never handed out.
type Alloc struct {
	lock  *sync.Mutex // serializes every scan-test-and-set of the bitmap
	sb    super.Superblock
	cache *bcache.Bcache
}

func MkAlloc(sb super.Superblock, cache *bcache.Bcache) *Alloc {
	return &Alloc{
		lock:  new(sync.Mutex),
		sb:    sb,
		cache: cache,
	}
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// lowestClear is the index of the lowest clear bit of b, which must not be
// 0xFF.
func lowestClear(b byte) uint64 {
	var i uint64
	for b&(1<<i) != 0 {
		i++
	}
	return i
}

// AllocNum returns the lowest free block and marks it used. It returns
// ErrOutOfSpace (and block 0) when every block is taken.
func (a *Alloc) AllocNum() (common.Bnum, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	nbits := uint64(a.sb.FreeBitsPerBlock)
	for i := uint64(0); i < uint64(a.sb.FreeBitsBlockCnt); i++ {
		b, err := a.cache.Acquire(a.sb.BitmapStart() + i)
		if err != nil {
			return common.NULLBNUM, err
		}
		for j, v := range b.Data {
			if v == 0xFF {
				continue
			}
			bit := uint64(j)*8 + lowestClear(v)
			num := i*nbits + bit
			if num >= a.sb.NBlocks() {
				// only padding is left
				a.cache.Release(b)
				return common.NULLBNUM, common.ErrOutOfSpace
			}
			b.SetBit(bit)
			a.cache.Release(b)
			util.DPrintf(5, "alloc: block %d\n", num)
			return num, nil
		}
		a.cache.Release(b)
	}
	return common.NULLBNUM, common.ErrOutOfSpace
}

// FreeNum clears the bit of block bn. Freeing a free block only logs a
// warning.
func (a *Alloc) FreeNum(bn common.Bnum) error {
	if bn >= a.sb.NBlocks() {
		return fmt.Errorf("%w: %d", common.ErrInvalidBlockNumber, bn)
	}
	a.lock.Lock()
	defer a.lock.Unlock()

	ad := a.sb.Bit2Addr(bn)
	b, err := a.cache.Acquire(ad.Blkno)
	if err != nil {
		return err
	}
	defer a.cache.Release(b)
	if !b.BitIsSet(ad.Off) {
		util.Warnf("alloc: block %d is already free", bn)
		return nil
	}
	b.ClearBit(ad.Off)
	util.DPrintf(5, "free: block %d\n", bn)
	return nil
}

// IsUsed reports the bitmap bit of bn.
func (a *Alloc) IsUsed(bn common.Bnum) (bool, error) {
	if bn >= a.sb.NBlocks() {
		return false, fmt.Errorf("%w: %d", common.ErrInvalidBlockNumber, bn)
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	ad := a.sb.Bit2Addr(bn)
	b, err := a.cache.Acquire(ad.Blkno)
	if err != nil {
		return false, err
	}
	used := b.BitIsSet(ad.Off)
	a.cache.Release(b)
	return used, nil
}

// NumFree counts the clear bits below block_cnt.
func (a *Alloc) NumFree() (uint64, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	nbits := uint64(a.sb.FreeBitsPerBlock)
	total := a.sb.NBlocks()
	var count uint64
	for i := uint64(0); i < uint64(a.sb.FreeBitsBlockCnt); i++ {
		b, err := a.cache.Acquire(a.sb.BitmapStart() + i)
		if err != nil {
			return 0, err
		}
		// bits of this block that describe real blocks
		n := util.Min(nbits, total-i*nbits)
		for j := uint64(0); j < n/8; j++ {
			count += 8 - popCnt(b.Data[j])
		}
		for bit := n / 8 * 8; bit < n; bit++ {
			if !b.BitIsSet(bit) {
				count++
			}
		}
		a.cache.Release(b)
	}
	return count, nil
}
