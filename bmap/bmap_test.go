package bmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-akpfs/alloc"
	"github.com/mit-pdos/go-akpfs/bcache"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/disk"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/super"
)

type fixture struct {
	sb    super.Superblock
	bc    *bcache.Bcache
	alloc *alloc.Alloc
	tbl   *inode.Table
	m     *Map
}

func mkFixture(t *testing.T) *fixture {
	sb, err := super.Plan(256*4096, 4096, common.AVGFILESZ)
	require.NoError(t, err)
	bc := bcache.MkBcache(disk.NewMemDisk(256, 4096))
	b, err := bc.Acquire(sb.BitmapStart())
	require.NoError(t, err)
	for bn := uint64(0); bn < sb.DataStart(); bn++ {
		b.SetBit(bn)
	}
	bc.Release(b)
	a := alloc.MkAlloc(sb, bc)
	return &fixture{sb: sb, bc: bc, alloc: a, tbl: inode.MkTable(sb, bc), m: MkMap(a, bc)}
}

func (f *fixture) file(t *testing.T) *inode.Handle {
	inum, err := f.tbl.Alloc(inode.MkFileInode(0, "f"))
	require.NoError(t, err)
	h, err := f.tbl.Resolve(inum)
	require.NoError(t, err)
	return h
}

func TestBlockFor(t *testing.T) {
	assert := assert.New(t)
	f := mkFixture(t)
	h := f.file(t)
	defer h.Release()

	_, _, err := f.m.BlockFor(h, 0, false)
	assert.Equal(common.ErrNotFound, err)

	bn, allocated, err := f.m.BlockFor(h, 0, true)
	require.NoError(t, err)
	assert.True(allocated)
	assert.Equal(f.sb.DataStart(), bn)
	assert.Equal(bn, h.Blocks[0])

	bn2, allocated, err := f.m.BlockFor(h, 0, true)
	require.NoError(t, err)
	assert.False(allocated, "existing mapping is returned")
	assert.Equal(bn, bn2)

	bn2, _, err = f.m.BlockFor(h, 0, false)
	require.NoError(t, err)
	assert.Equal(bn, bn2)
}

func TestBlockForLimit(t *testing.T) {
	assert := assert.New(t)
	f := mkFixture(t)
	h := f.file(t)
	defer h.Release()

	for i := uint64(0); i < common.NDIRECT; i++ {
		_, _, err := f.m.BlockFor(h, i, true)
		require.NoError(t, err)
	}
	_, _, err := f.m.BlockFor(h, common.NDIRECT, true)
	assert.True(errors.Is(err, common.ErrFileTooLarge))
	assert.Len(Blocks(h.Inode), int(common.NDIRECT))
}

func TestBlockForZeroes(t *testing.T) {
	f := mkFixture(t)
	// leave garbage in the block the file will get
	junk, err := f.bc.Acquire(f.sb.DataStart())
	require.NoError(t, err)
	junk.Copy(0, []byte("stale"))
	f.bc.Release(junk)

	h := f.file(t)
	defer h.Release()
	bn, _, err := f.m.BlockFor(h, 0, true)
	require.NoError(t, err)
	b, err := f.bc.Acquire(bn)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4096), b.Data)
	f.bc.Release(b)
}

func TestBlockForOutOfSpace(t *testing.T) {
	f := mkFixture(t)
	for {
		if _, err := f.alloc.AllocNum(); err != nil {
			break
		}
	}
	h := f.file(t)
	defer h.Release()
	_, _, err := f.m.BlockFor(h, 0, true)
	assert.Equal(t, common.ErrOutOfSpace, err)
	assert.Equal(t, common.NULLBNUM, h.Blocks[0])
}

func TestNotRegular(t *testing.T) {
	f := mkFixture(t)
	inum, err := f.tbl.Alloc(inode.MkDirInode(0, "d"))
	require.NoError(t, err)
	h, err := f.tbl.Resolve(inum)
	require.NoError(t, err)
	defer h.Release()
	_, _, err = f.m.BlockFor(h, 0, true)
	assert.True(t, errors.Is(err, common.ErrNotRegular))
	assert.True(t, errors.Is(f.m.ShrinkTo(h, 0), common.ErrNotRegular))
	h.Entries[0] = inum
	assert.Nil(t, Blocks(h.Inode))
}

func TestShrink(t *testing.T) {
	assert := assert.New(t)
	f := mkFixture(t)
	h := f.file(t)
	defer h.Release()

	var bns []common.Bnum
	for i := uint64(0); i < 5; i++ {
		bn, _, err := f.m.BlockFor(h, i, true)
		require.NoError(t, err)
		bns = append(bns, bn)
	}
	h.Size = int32(5 * 4096)
	before, err := f.alloc.NumFree()
	require.NoError(t, err)

	require.NoError(t, f.m.ShrinkTo(h, 2*4096))
	assert.Equal(int32(2*4096), h.Size)
	assert.Equal(bns[:2], Blocks(h.Inode))
	for _, bn := range bns[2:] {
		used, err := f.alloc.IsUsed(bn)
		require.NoError(t, err)
		assert.False(used, "block %d freed", bn)
	}
	after, err := f.alloc.NumFree()
	require.NoError(t, err)
	assert.Equal(before+3, after)

	// the freed blocks come back, lowest first
	for _, want := range bns[2:] {
		bn, err := f.alloc.AllocNum()
		require.NoError(t, err)
		assert.Equal(want, bn)
	}
}

func TestShrinkPartialBlock(t *testing.T) {
	assert := assert.New(t)
	f := mkFixture(t)
	h := f.file(t)
	defer h.Release()
	for i := uint64(0); i < 3; i++ {
		_, _, err := f.m.BlockFor(h, i, true)
		require.NoError(t, err)
	}
	// 4097 bytes still needs two blocks
	require.NoError(t, f.m.ShrinkTo(h, 4097))
	assert.Len(Blocks(h.Inode), 2)
	require.NoError(t, f.m.ShrinkTo(h, 0))
	assert.Empty(Blocks(h.Inode))
	assert.True(errors.Is(f.m.ShrinkTo(h, f.m.MaxSize()+1), common.ErrFileTooLarge))
}
