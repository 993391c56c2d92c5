// Package bmap maps a regular file's block indices to device blocks through
// the 27 direct slots of its inode.
package bmap

import (
	"fmt"

	"github.com/mit-pdos/go-akpfs/alloc"
	"github.com/mit-pdos/go-akpfs/bcache"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/util"
)

type Map struct {
	bsz   uint64
	alloc *alloc.Alloc
	cache *bcache.Bcache
}

func MkMap(a *alloc.Alloc, cache *bcache.Bcache) *Map {
	return &Map{bsz: cache.BlockSize(), alloc: a, cache: cache}
}

// MaxSize is the largest regular file: every direct slot full.
func (m *Map) MaxSize() uint64 {
	return common.NDIRECT * m.bsz
}

func checkRegular(h *inode.Handle) error {
	if h.Kind() != inode.KindRegular {
		return fmt.Errorf("%w: inode %d", common.ErrNotRegular, h.Inum)
	}
	return nil
}

// BlockFor returns the device block backing block idx of the file. With
// create set, an empty slot gets a fresh zeroed block and allocated is true;
// the inode is then marked dirty and the caller stores it on Release.
func (m *Map) BlockFor(h *inode.Handle, idx uint64, create bool) (bn common.Bnum, allocated bool, err error) {
	if err := checkRegular(h); err != nil {
		return common.NULLBNUM, false, err
	}
	if idx >= common.NDIRECT {
		return common.NULLBNUM, false, fmt.Errorf("%w: block %d of inode %d",
			common.ErrFileTooLarge, idx, h.Inum)
	}
	bn = h.Blocks[idx]
	if bn != common.NULLBNUM {
		return bn, false, nil
	}
	if !create {
		return common.NULLBNUM, false, common.ErrNotFound
	}
	bn, err = m.alloc.AllocNum()
	if err != nil {
		return common.NULLBNUM, false, err
	}
	// whatever a previous owner left there must not show through
	b := m.cache.AcquireZero(bn)
	m.cache.Release(b)

	h.Blocks[idx] = bn
	h.MarkDirty()
	util.DPrintf(5, "bmap: inode %d block %d -> %d\n", h.Inum, idx, bn)
	return bn, true, nil
}

// ShrinkTo frees every block at or past ceil(newSize / block size), clears
// those slots, and sets the file size to newSize. It never grows the
// allocation.
func (m *Map) ShrinkTo(h *inode.Handle, newSize uint64) error {
	if err := checkRegular(h); err != nil {
		return err
	}
	if newSize > m.MaxSize() {
		return fmt.Errorf("%w: size %d", common.ErrFileTooLarge, newSize)
	}
	keep := util.RoundUp(newSize, m.bsz)
	h.MarkDirty()
	for i := keep; i < common.NDIRECT; i++ {
		bn := h.Blocks[i]
		if bn == common.NULLBNUM {
			continue
		}
		if err := m.alloc.FreeNum(bn); err != nil {
			return err
		}
		h.Blocks[i] = common.NULLBNUM
		util.DPrintf(5, "bmap: inode %d block %d freed (%d)\n", h.Inum, i, bn)
	}
	h.Size = int32(newSize)
	return nil
}

// Blocks lists the allocated blocks of a regular file in slot order.
func Blocks(ip *inode.Inode) []common.Bnum {
	var bns []common.Bnum
	if ip.Kind() != inode.KindRegular {
		return nil
	}
	for _, bn := range ip.Blocks {
		if bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	return bns
}
