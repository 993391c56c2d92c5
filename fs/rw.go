package fs

import (
	"fmt"
	"io"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/util"
)

// ReadAt reads from regular file inum at byte offset off. Like io.ReaderAt it
// returns io.EOF when it reads fewer than len(p) bytes. Files have no holes:
// an unmapped block inside the file is an error (ErrNotFound).
func (fs *Fs) ReadAt(inum common.Inum, p []byte, off uint64) (int, error) {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	if h.Kind() != inode.KindRegular {
		return 0, fmt.Errorf("%w: inode %d", common.ErrNotRegular, inum)
	}

	size := h.Len()
	if off >= size {
		return 0, io.EOF
	}
	want := util.Min(uint64(len(p)), size-off)
	bsz := fs.sb.BSize()
	var n uint64
	for n < want {
		idx := (off + n) / bsz
		boff := (off + n) % bsz
		cnt := util.Min(bsz-boff, want-n)
		bn, _, err := fs.bmap.BlockFor(h, idx, false)
		if err != nil {
			return int(n), fmt.Errorf("reading block %d of inode %d: %w", idx, inum, err)
		}
		b, err := fs.cache.Acquire(bn)
		if err != nil {
			return int(n), err
		}
		copy(p[n:n+cnt], b.Data[boff:boff+cnt])
		fs.cache.Release(b)
		n += cnt
	}
	util.DPrintf(5, "read %d: %d bytes at %d\n", inum, n, off)
	if n < uint64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// WriteAt writes p to regular file inum at byte offset off, allocating blocks
// as needed and growing the file. Blocks between the old end and off are
// allocated zeroed, so the file never has holes. A write reaching past the
// last direct block stops there with ErrFileTooLarge; the bytes before it are
// written and counted.
func (fs *Fs) WriteAt(inum common.Inum, p []byte, off uint64) (int, error) {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	if h.Kind() != inode.KindRegular {
		return 0, fmt.Errorf("%w: inode %d", common.ErrNotRegular, inum)
	}
	if util.SumOverflows(off, uint64(len(p))) || off >= fs.bmap.MaxSize() {
		return 0, fmt.Errorf("%w: offset %d", common.ErrFileTooLarge, off)
	}

	bsz := fs.sb.BSize()
	if len(p) == 0 {
		return 0, nil
	}
	if err := fs.fill(h, off/bsz); err != nil {
		return 0, err
	}
	var n uint64
	var werr error
	for n < uint64(len(p)) {
		idx := (off + n) / bsz
		boff := (off + n) % bsz
		cnt := util.Min(bsz-boff, uint64(len(p))-n)
		bn, _, err := fs.bmap.BlockFor(h, idx, true)
		if err != nil {
			werr = err
			break
		}
		b, err := fs.cache.Acquire(bn)
		if err != nil {
			werr = err
			break
		}
		b.Copy(boff, p[n:n+cnt])
		fs.cache.Release(b)
		n += cnt
	}
	if n > 0 && off+n > h.Len() {
		h.Size = int32(off + n)
		h.MarkDirty()
	}
	util.DPrintf(5, "write %d: %d bytes at %d\n", inum, n, off)
	return int(n), werr
}

// fill maps every block below idx, allocating zeroed blocks for empty slots.
// On failure it frees whatever it mapped past the current end of the file.
func (fs *Fs) fill(h *inode.Handle, idx uint64) error {
	for i := uint64(0); i < idx; i++ {
		if _, _, err := fs.bmap.BlockFor(h, i, true); err != nil {
			if serr := fs.bmap.ShrinkTo(h, h.Len()); serr != nil {
				util.Warnf("fill inode %d: %v", h.Inum, serr)
			}
			return err
		}
	}
	return nil
}

// Truncate sets the size of regular file inum. Shrinking frees the blocks
// past the new end and zeroes the rest of the last block; growing allocates
// zeroed blocks up to the new end, or leaves the file unchanged if the device
// runs out of blocks.
func (fs *Fs) Truncate(inum common.Inum, size uint64) error {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return err
	}
	defer h.Release()
	if h.Kind() != inode.KindRegular {
		return fmt.Errorf("%w: inode %d", common.ErrNotRegular, inum)
	}
	if size > fs.bmap.MaxSize() {
		return fmt.Errorf("%w: size %d", common.ErrFileTooLarge, size)
	}
	if size >= h.Len() {
		if err := fs.fill(h, util.RoundUp(size, fs.sb.BSize())); err != nil {
			return err
		}
		h.Size = int32(size)
		h.MarkDirty()
		return nil
	}
	if err := fs.bmap.ShrinkTo(h, size); err != nil {
		return err
	}
	bsz := fs.sb.BSize()
	if size%bsz == 0 {
		return nil
	}
	bn, _, err := fs.bmap.BlockFor(h, size/bsz, false)
	if err == common.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	b, err := fs.cache.Acquire(bn)
	if err != nil {
		return err
	}
	b.Copy(size%bsz, make([]byte, bsz-size%bsz))
	fs.cache.Release(b)
	return nil
}
