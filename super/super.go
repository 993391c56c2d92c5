// Package super is the AKPFS superblock: the on-disk geometry record in
// block 0, and the planner that derives it from a device size.
package super

import (
	"encoding/binary"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-akpfs/addr"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/util"
)

// Superblock fields are in on-disk order.
type Superblock struct {
	Magic              uint16
	BlockSize          uint16
	BlockCnt           uint32
	InodesPerBlock     uint32
	InodesBlockStart   uint32
	InodesBlockCnt     uint32
	FreeBitsPerBlock   uint32
	FreeBitsBlockStart uint32
	FreeBitsBlockCnt   uint32
	DataBlockStart     uint32
	DataBlockCnt       uint32
	RootInode          uint32
}

func isPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

func CheckBlockSize(blockSize uint64) error {
	if blockSize < common.MINBLOCKSZ || blockSize > common.MAXBLOCKSZ || !isPow2(blockSize) {
		return fmt.Errorf("%w: %d (want a power of two in [%d, %d])",
			common.ErrInvalidBlockSize, blockSize, common.MINBLOCKSZ, common.MAXBLOCKSZ)
	}
	return nil
}

// Plan computes the geometry for a device of devSize bytes. The inode table
// is sized for one file per avgFileSize bytes of device.
func Plan(devSize uint64, blockSize uint64, avgFileSize uint64) (Superblock, error) {
	if err := CheckBlockSize(blockSize); err != nil {
		return Superblock{}, err
	}
	if avgFileSize == 0 {
		return Superblock{}, fmt.Errorf("planning layout: average file size must be positive")
	}
	blockCnt := devSize / blockSize
	if blockCnt > 1<<32-1 {
		return Superblock{}, fmt.Errorf("planning layout: %d blocks do not fit a u32", blockCnt)
	}
	inodesPerBlock := blockSize / common.INODESZ
	avgFileCnt := blockCnt / util.RoundUp(avgFileSize, blockSize)
	inodesBlockCnt := util.RoundUp(avgFileCnt, inodesPerBlock)
	freeBitsPerBlock := blockSize * 8
	freeBitsBlockCnt := util.RoundUp(blockCnt, freeBitsPerBlock)

	sb := Superblock{
		Magic:            common.MAGIC,
		BlockSize:        uint16(blockSize),
		BlockCnt:         uint32(blockCnt),
		InodesPerBlock:   uint32(inodesPerBlock),
		InodesBlockStart: 1,
		InodesBlockCnt:   uint32(inodesBlockCnt),
		FreeBitsPerBlock: uint32(freeBitsPerBlock),
		FreeBitsBlockCnt: uint32(freeBitsBlockCnt),
		RootInode:        uint32(common.ROOTINUM),
	}
	sb.FreeBitsBlockStart = sb.InodesBlockStart + sb.InodesBlockCnt
	sb.DataBlockStart = sb.FreeBitsBlockStart + sb.FreeBitsBlockCnt
	if uint64(sb.DataBlockStart) >= blockCnt {
		return Superblock{}, fmt.Errorf("%w: %d bytes leave no data blocks at block size %d",
			common.ErrDeviceTooSmall, devSize, blockSize)
	}
	sb.DataBlockCnt = sb.BlockCnt - sb.DataBlockStart
	// root, plus the seeded file mkfs may add after it
	if sb.NInode() <= uint64(sb.RootInode)+1 {
		return Superblock{}, fmt.Errorf("%w: inode table of %d blocks cannot hold the root",
			common.ErrDeviceTooSmall, sb.InodesBlockCnt)
	}
	util.DPrintf(1, "plan: %d blocks, %d inode blocks, %d bitmap blocks, data at %d\n",
		sb.BlockCnt, sb.InodesBlockCnt, sb.FreeBitsBlockCnt, sb.DataBlockStart)
	return sb, nil
}

func (sb Superblock) Encode() []byte {
	enc := marshal.NewEnc(common.SUPERSZ - 4)
	enc.PutInt32(sb.BlockCnt)
	enc.PutInt32(sb.InodesPerBlock)
	enc.PutInt32(sb.InodesBlockStart)
	enc.PutInt32(sb.InodesBlockCnt)
	enc.PutInt32(sb.FreeBitsPerBlock)
	enc.PutInt32(sb.FreeBitsBlockStart)
	enc.PutInt32(sb.FreeBitsBlockCnt)
	enc.PutInt32(sb.DataBlockStart)
	enc.PutInt32(sb.DataBlockCnt)
	enc.PutInt32(sb.RootInode)
	b := make([]byte, 4, common.SUPERSZ)
	binary.LittleEndian.PutUint16(b[0:], sb.Magic)
	binary.LittleEndian.PutUint16(b[2:], sb.BlockSize)
	return append(b, enc.Finish()...)
}

// Decode parses and validates the superblock at the start of b.
func Decode(b []byte) (Superblock, error) {
	if uint64(len(b)) < common.SUPERSZ {
		return Superblock{}, fmt.Errorf("%w: %d bytes", common.ErrCorruptSuperblock, len(b))
	}
	var sb Superblock
	sb.Magic = binary.LittleEndian.Uint16(b[0:])
	sb.BlockSize = binary.LittleEndian.Uint16(b[2:])
	dec := marshal.NewDec(b[4:common.SUPERSZ])
	sb.BlockCnt = dec.GetInt32()
	sb.InodesPerBlock = dec.GetInt32()
	sb.InodesBlockStart = dec.GetInt32()
	sb.InodesBlockCnt = dec.GetInt32()
	sb.FreeBitsPerBlock = dec.GetInt32()
	sb.FreeBitsBlockStart = dec.GetInt32()
	sb.FreeBitsBlockCnt = dec.GetInt32()
	sb.DataBlockStart = dec.GetInt32()
	sb.DataBlockCnt = dec.GetInt32()
	sb.RootInode = dec.GetInt32()
	if err := sb.Validate(); err != nil {
		return Superblock{}, err
	}
	return sb, nil
}

// Validate checks the magic number and the geometry invariants.
func (sb Superblock) Validate() error {
	bad := func(format string, a ...interface{}) error {
		return fmt.Errorf("%w: "+format, append([]interface{}{common.ErrCorruptSuperblock}, a...)...)
	}
	if sb.Magic != common.MAGIC {
		return bad("bad magic: wanted %#04x; found %#04x", common.MAGIC, sb.Magic)
	}
	bs := uint64(sb.BlockSize)
	if CheckBlockSize(bs) != nil {
		return bad("block size %d", bs)
	}
	if uint64(sb.InodesPerBlock) != bs/common.INODESZ {
		return bad("%d inodes per block", sb.InodesPerBlock)
	}
	if uint64(sb.FreeBitsPerBlock) != bs*8 {
		return bad("%d free bits per block", sb.FreeBitsPerBlock)
	}
	if sb.InodesBlockStart != 1 {
		return bad("inode table at %d", sb.InodesBlockStart)
	}
	if uint64(sb.FreeBitsBlockStart) != uint64(sb.InodesBlockStart)+uint64(sb.InodesBlockCnt) {
		return bad("bitmap at %d", sb.FreeBitsBlockStart)
	}
	if uint64(sb.FreeBitsBlockCnt)*uint64(sb.FreeBitsPerBlock) < uint64(sb.BlockCnt) {
		return bad("%d bitmap blocks cannot map %d blocks", sb.FreeBitsBlockCnt, sb.BlockCnt)
	}
	if uint64(sb.DataBlockStart) != uint64(sb.FreeBitsBlockStart)+uint64(sb.FreeBitsBlockCnt) {
		return bad("data at %d", sb.DataBlockStart)
	}
	if sb.DataBlockStart >= sb.BlockCnt || sb.DataBlockCnt != sb.BlockCnt-sb.DataBlockStart {
		return bad("%d data blocks at %d of %d", sb.DataBlockCnt, sb.DataBlockStart, sb.BlockCnt)
	}
	if sb.RootInode == 0 || uint64(sb.RootInode) >= sb.NInode() {
		return bad("root inode %d", sb.RootInode)
	}
	return nil
}

func (sb Superblock) BSize() uint64 {
	return uint64(sb.BlockSize)
}

func (sb Superblock) NBlocks() uint64 {
	return uint64(sb.BlockCnt)
}

// NInode is the size of the inode table, including the reserved inode 0.
func (sb Superblock) NInode() uint64 {
	return uint64(sb.InodesBlockCnt) * uint64(sb.InodesPerBlock)
}

func (sb Superblock) Root() common.Inum {
	return common.Inum(sb.RootInode)
}

func (sb Superblock) InodeStart() common.Bnum {
	return common.Bnum(sb.InodesBlockStart)
}

func (sb Superblock) BitmapStart() common.Bnum {
	return common.Bnum(sb.FreeBitsBlockStart)
}

func (sb Superblock) DataStart() common.Bnum {
	return common.Bnum(sb.DataBlockStart)
}

func (sb Superblock) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkRecordAddr(sb.InodeStart(), uint64(inum),
		uint64(sb.InodesPerBlock), common.INODESZ)
}

// Bit2Addr locates the bitmap bit of block bn.
func (sb Superblock) Bit2Addr(bn common.Bnum) addr.Addr {
	return addr.MkBitAddr(sb.BitmapStart(), uint64(bn), uint64(sb.FreeBitsPerBlock))
}

func (sb Superblock) String() string {
	return fmt.Sprintf("magic %#04x, block size %d, %d blocks; "+
		"inodes %d x %d at %d; bitmap %d at %d; data %d at %d; root %d",
		sb.Magic, sb.BlockSize, sb.BlockCnt,
		sb.InodesBlockCnt, sb.InodesPerBlock, sb.InodesBlockStart,
		sb.FreeBitsBlockCnt, sb.FreeBitsBlockStart,
		sb.DataBlockCnt, sb.DataBlockStart, sb.RootInode)
}
