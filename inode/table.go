package inode

import (
	"fmt"

	"github.com/mit-pdos/go-akpfs/bcache"
	"github.com/mit-pdos/go-akpfs/buf"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/super"
	"github.com/mit-pdos/go-akpfs/util"
)

// Table resolves inode numbers to records in the inode blocks.
type Table struct {
	sb    super.Superblock
	cache *bcache.Bcache
}

func MkTable(sb super.Superblock, cache *bcache.Bcache) *Table {
	return &Table{sb: sb, cache: cache}
}

// Handle is a resolved inode. It holds the inode's table block until
// Release, so other users of that block (and of the other inodes sharing it)
// wait.
type Handle struct {
	*Inode
	tbl   *Table
	b     *buf.Buf
	off   uint64
	dirty bool
}

func (t *Table) Valid(inum common.Inum) bool {
	return inum != common.NULLINUM && uint64(inum) < t.sb.NInode()
}

// Resolve decodes inode inum from its table block.
func (t *Table) Resolve(inum common.Inum) (*Handle, error) {
	if !t.Valid(inum) {
		return nil, fmt.Errorf("%w: %d", common.ErrInvalidInode, inum)
	}
	a := t.sb.Inum2Addr(inum)
	b, err := t.cache.Acquire(a.Blkno)
	if err != nil {
		return nil, err
	}
	off := a.ByteOff()
	ip := Decode(inum, b.Data[off:off+common.INODESZ])
	util.DPrintf(10, "resolve %v\n", ip)
	return &Handle{Inode: ip, tbl: t, b: b, off: off}, nil
}

// MarkDirty schedules the record to be written into its block on Release.
func (h *Handle) MarkDirty() {
	h.dirty = true
}

// Release stores the record if it was marked dirty and releases the block.
// The handle must not be used afterwards.
func (h *Handle) Release() {
	if h.b == nil {
		panic("inode: double release")
	}
	if h.dirty {
		h.b.Copy(h.off, h.Encode())
		util.DPrintf(10, "store %v\n", h.Inode)
	}
	h.tbl.cache.Release(h.b)
	h.b = nil
}

// Alloc finds the lowest free inode slot above the root, stores ip there
// (setting ip.Inum) and returns its number. Table blocks are visited one at a
// time, so two concurrent callers may race for a slot; callers serialize
// allocation.
func (t *Table) Alloc(ip *Inode) (common.Inum, error) {
	perBlock := uint64(t.sb.InodesPerBlock)
	for blk := uint64(0); blk < uint64(t.sb.InodesBlockCnt); blk++ {
		b, err := t.cache.Acquire(t.sb.InodeStart() + blk)
		if err != nil {
			return common.NULLINUM, err
		}
		for i := uint64(0); i < perBlock; i++ {
			inum := common.Inum(blk*perBlock + i)
			if inum <= t.sb.Root() {
				continue
			}
			off := i * common.INODESZ
			if b.Data[off] != 0 {
				continue
			}
			ip.Inum = inum
			b.Copy(off, ip.Encode())
			t.cache.Release(b)
			util.DPrintf(5, "alloc inode %v\n", ip)
			return inum, nil
		}
		t.cache.Release(b)
	}
	return common.NULLINUM, common.ErrNoInodes
}

// NumFree counts free inode slots, not counting 0 and the root.
func (t *Table) NumFree() (uint64, error) {
	perBlock := uint64(t.sb.InodesPerBlock)
	var n uint64
	for blk := uint64(0); blk < uint64(t.sb.InodesBlockCnt); blk++ {
		b, err := t.cache.Acquire(t.sb.InodeStart() + blk)
		if err != nil {
			return 0, err
		}
		for i := uint64(0); i < perBlock; i++ {
			inum := common.Inum(blk*perBlock + i)
			if inum > t.sb.Root() && b.Data[i*common.INODESZ] == 0 {
				n++
			}
		}
		t.cache.Release(b)
	}
	return n, nil
}
