package common

const (
	MAGIC uint16 = 0xABCD

	INODESZ  uint64 = 128 // on-disk size
	SUPERSZ  uint64 = 44  // on-disk size
	NAMELEN  uint64 = 16
	NDIRECT  uint64 = 27 // block slots per file
	NENTRIES        = NDIRECT
	LINKLEN         = NDIRECT * 4 // bytes of symlink target

	MINBLOCKSZ uint64 = 512
	MAXBLOCKSZ uint64 = 1 << 15 // block_size is a u16 on disk

	// DEFAULTBLOCKSZ is the page size the kernel driver assumes.
	DEFAULTBLOCKSZ uint64 = 4096
	AVGFILESZ      uint64 = 4096
)

// file_size sentinels
const (
	SIZEDIR  int32 = -1
	SIZELINK int32 = -2
)

type Inum uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0
)
