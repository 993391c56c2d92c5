package super

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-akpfs/addr"
	"github.com/mit-pdos/go-akpfs/common"
)

func TestPlanOneMeg(t *testing.T) {
	assert := assert.New(t)
	sb, err := Plan(1<<20, 4096, common.AVGFILESZ)
	require.NoError(t, err)
	assert.Equal(Superblock{
		Magic:              0xABCD,
		BlockSize:          4096,
		BlockCnt:           256,
		InodesPerBlock:     32,
		InodesBlockStart:   1,
		InodesBlockCnt:     8,
		FreeBitsPerBlock:   32768,
		FreeBitsBlockStart: 9,
		FreeBitsBlockCnt:   1,
		DataBlockStart:     10,
		DataBlockCnt:       246,
		RootInode:          1,
	}, sb)
	assert.NoError(sb.Validate())

	sb, err = Plan(1<<20, 512, common.AVGFILESZ)
	require.NoError(t, err)
	assert.Equal(uint32(2048), sb.BlockCnt)
	assert.Equal(uint32(4), sb.InodesPerBlock)
	assert.Equal(uint32(64), sb.InodesBlockCnt, "256 average files, 4 per block")
	assert.Equal(uint32(66), sb.DataBlockStart)
}

func TestPlanGeometryInvariant(t *testing.T) {
	for _, bs := range []uint64{512, 1024, 2048, 4096, 8192, 32768} {
		for _, blocks := range []uint64{64, 100, 333, 1000, 4097, 40000, 300001} {
			// a trailing partial block is ignored
			size := blocks*bs + bs/2
			sb, err := Plan(size, bs, common.AVGFILESZ)
			if errors.Is(err, common.ErrDeviceTooSmall) {
				continue
			}
			require.NoError(t, err, "size %d bs %d", size, bs)
			assert.Equal(t, uint64(blocks), sb.NBlocks())
			assert.Equal(t, sb.BlockCnt, sb.DataBlockStart+sb.DataBlockCnt,
				"size %d bs %d", size, bs)
			assert.True(t,
				uint64(sb.FreeBitsBlockCnt)*uint64(sb.FreeBitsPerBlock) >= uint64(sb.BlockCnt),
				"bitmap must cover every block")
			assert.NoError(t, sb.Validate())
		}
	}
}

func TestPlanErrors(t *testing.T) {
	_, err := Plan(1<<20, 1000, common.AVGFILESZ)
	assert.True(t, errors.Is(err, common.ErrInvalidBlockSize))
	_, err = Plan(1<<20, 256, common.AVGFILESZ)
	assert.True(t, errors.Is(err, common.ErrInvalidBlockSize))
	_, err = Plan(1<<20, 65536, common.AVGFILESZ)
	assert.True(t, errors.Is(err, common.ErrInvalidBlockSize), "does not fit u16")

	_, err = Plan(4096*2, 4096, common.AVGFILESZ)
	assert.True(t, errors.Is(err, common.ErrDeviceTooSmall))
	_, err = Plan(0, 4096, common.AVGFILESZ)
	assert.True(t, errors.Is(err, common.ErrDeviceTooSmall))

	_, err = Plan(1<<20, 4096, 0)
	assert.Error(t, err)
}

func TestEncodeLayout(t *testing.T) {
	sb, err := Plan(1<<20, 4096, common.AVGFILESZ)
	require.NoError(t, err)
	b := sb.Encode()
	assert.Equal(t, int(common.SUPERSZ), len(b))
	assert.Equal(t, []byte{0xCD, 0xAB, 0x00, 0x10}, b[0:4], "magic, block size")
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x00}, b[4:8], "block count 256")
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, b[40:44], "root inode")

	blk := make([]byte, 4096)
	copy(blk, b)
	sb2, err := Decode(blk)
	require.NoError(t, err)
	assert.Equal(t, sb, sb2)
}

func TestDecodeCorrupt(t *testing.T) {
	good, err := Plan(1<<20, 4096, common.AVGFILESZ)
	require.NoError(t, err)

	cases := map[string]func(sb *Superblock){
		"magic":        func(sb *Superblock) { sb.Magic = 0xEF53 },
		"block size":   func(sb *Superblock) { sb.BlockSize = 1000 },
		"inode start":  func(sb *Superblock) { sb.InodesBlockStart = 2 },
		"bitmap start": func(sb *Superblock) { sb.FreeBitsBlockStart++ },
		"data start":   func(sb *Superblock) { sb.DataBlockStart++ },
		"data count":   func(sb *Superblock) { sb.DataBlockCnt++ },
		"bitmap short": func(sb *Superblock) { sb.BlockCnt = 40000; sb.DataBlockCnt = 40000 - 10 },
		"root zero":    func(sb *Superblock) { sb.RootInode = 0 },
		"root range":   func(sb *Superblock) { sb.RootInode = 256 },
	}
	for name, corrupt := range cases {
		sb := good
		corrupt(&sb)
		_, err := Decode(sb.Encode())
		assert.True(t, errors.Is(err, common.ErrCorruptSuperblock), name)
	}

	_, err = Decode(make([]byte, 10))
	assert.True(t, errors.Is(err, common.ErrCorruptSuperblock), "short")
}

func TestAddrs(t *testing.T) {
	sb, err := Plan(1<<20, 4096, common.AVGFILESZ)
	require.NoError(t, err)
	assert.Equal(t, addr.Addr{Blkno: 1, Off: 128 * 8}, sb.Inum2Addr(1))
	assert.Equal(t, addr.Addr{Blkno: 2, Off: 0}, sb.Inum2Addr(32))
	assert.Equal(t, addr.Addr{Blkno: 9, Off: 10}, sb.Bit2Addr(10))
	assert.Equal(t, uint64(256), sb.NInode())
}
