// buf holds one cached disk block: inode records, bitmap bytes, or file
// data. Callers own a Buf between bcache Acquire and Release.
package buf

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/util"
)

type Buf struct {
	Blkno common.Bnum
	Data  []byte
	valid bool // Data holds the disk contents (or newer)
	dirty bool // has this block been written to?
}

func MkBuf(blkno common.Bnum, data []byte) *Buf {
	return &Buf{
		Blkno: blkno,
		Data:  data,
	}
}

func (buf *Buf) IsValid() bool {
	return buf.valid
}

func (buf *Buf) SetValid() {
	buf.valid = true
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	util.DPrintf(20, "%d: dirty\n", buf.Blkno)
	buf.dirty = true
}

// Clean is called once the block has been written back.
func (buf *Buf) Clean() {
	buf.dirty = false
}

// Uint32Get reads the little-endian u32 at byte offset off.
func (buf *Buf) Uint32Get(off uint64) uint32 {
	dec := marshal.NewDec(buf.Data[off : off+4])
	return dec.GetInt32()
}

func (buf *Buf) Uint32Put(off uint64, v uint32) {
	enc := marshal.NewEnc(4)
	enc.PutInt32(v)
	copy(buf.Data[off:off+4], enc.Finish())
	buf.SetDirty()
}

// BitIsSet reports bit (bit offset within the block).
func (buf *Buf) BitIsSet(bit uint64) bool {
	return buf.Data[bit/8]&(1<<(bit%8)) != 0
}

func (buf *Buf) SetBit(bit uint64) {
	buf.Data[bit/8] = buf.Data[bit/8] | (1 << (bit % 8))
	buf.SetDirty()
}

func (buf *Buf) ClearBit(bit uint64) {
	buf.Data[bit/8] = buf.Data[bit/8] & ^(1 << (bit % 8))
	buf.SetDirty()
}

// Copy copies src into the block at byte offset off.
func (buf *Buf) Copy(off uint64, src []byte) {
	copy(buf.Data[off:], src)
	buf.SetDirty()
}
