package addr

import (
	"github.com/mit-pdos/go-akpfs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a bit offset). The size of the
// object is determined by the context in which Addr is used: an inode record
// or a single bitmap bit.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bits
}

// ByteOff is the offset of a byte-aligned object within its block.
func (a Addr) ByteOff() uint64 {
	return a.Off / 8
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBitAddr locates bit n of a bitmap that starts at block start and holds
// nbits bits per block.
func MkBitAddr(start common.Bnum, n uint64, nbits uint64) Addr {
	bit := n % nbits
	i := n / nbits
	return MkAddr(start+common.Bnum(i), bit)
}

// MkRecordAddr locates record n of a table of fixed-size records (size in
// bytes) starting at block start, perBlock records to a block.
func MkRecordAddr(start common.Bnum, n uint64, perBlock uint64, size uint64) Addr {
	return MkAddr(start+common.Bnum(n/perBlock), (n%perBlock)*size*8)
}
