package bcache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/disk"
)

const bsz uint64 = 512

func TestReleaseDoesNotWriteBack(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(8, bsz)
	bc := MkBcache(d)

	b, err := bc.Acquire(3)
	require.NoError(t, err)
	b.Copy(0, []byte("hello"))
	bc.Release(b)

	onDisk, _ := d.Read(3)
	assert.Equal(make([]byte, bsz), onDisk, "release must not write back")
	assert.Equal(uint64(1), bc.NDirty())

	b, err = bc.Acquire(3)
	require.NoError(t, err)
	assert.Equal([]byte("hello"), b.Data[:5], "cached contents survive release")
	bc.Release(b)

	require.NoError(t, bc.Sync())
	onDisk, _ = d.Read(3)
	assert.Equal([]byte("hello"), onDisk[:5])
	assert.Equal(uint64(0), bc.NDirty())
}

func TestAcquireReadError(t *testing.T) {
	d := disk.NewFaultDisk(disk.NewMemDisk(8, bsz))
	bc := MkBcache(d)
	d.FailRead(2, true)

	_, err := bc.Acquire(2)
	assert.True(t, common.IsIOError(err))
	assert.True(t, errors.Is(err, disk.ErrInjected))

	// the failed acquire must not leave the block locked or cached
	d.FailRead(2, false)
	b, err := bc.Acquire(2)
	require.NoError(t, err)
	bc.Release(b)
}

func TestSyncErrorKeepsDirty(t *testing.T) {
	d := disk.NewFaultDisk(disk.NewMemDisk(8, bsz))
	bc := MkBcache(d)
	b := bc.AcquireZero(4)
	b.Copy(0, []byte{1})
	bc.Release(b)

	d.FailWrite(4, true)
	err := bc.Sync()
	assert.True(t, common.IsIOError(err))
	assert.Equal(t, uint64(1), bc.NDirty())

	d.FailWrite(4, false)
	assert.NoError(t, bc.Sync())
	assert.Equal(t, uint64(0), bc.NDirty())
}

func TestAcquireZero(t *testing.T) {
	d := disk.NewMemDisk(8, bsz)
	stale := make([]byte, bsz)
	stale[0] = 0xff
	require.NoError(t, d.Write(5, stale))

	bc := MkBcache(d)
	b := bc.AcquireZero(5)
	assert.Equal(t, make([]byte, bsz), b.Data)
	assert.True(t, b.IsDirty())
	bc.Release(b)
}

func TestConcurrentAcquire(t *testing.T) {
	d := disk.NewMemDisk(4, bsz)
	bc := MkBcache(d)
	const nthread = 8
	const niter = 100

	var wg sync.WaitGroup
	wg.Add(nthread)
	for i := 0; i < nthread; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < niter; j++ {
				b, err := bc.Acquire(1)
				if err != nil {
					panic(err)
				}
				b.Data[0]++
				b.SetDirty()
				bc.Release(b)
			}
		}()
	}
	wg.Wait()

	b, err := bc.Acquire(1)
	require.NoError(t, err)
	assert.Equal(t, byte(nthread*niter%256), b.Data[0])
	bc.Release(b)
}

func TestSyncEvicts(t *testing.T) {
	d := disk.NewFaultDisk(disk.NewMemDisk(8, bsz))
	bc := MkBcache(d)
	for blkno := uint64(0); blkno < 8; blkno++ {
		b, err := bc.Acquire(blkno)
		require.NoError(t, err)
		if blkno%2 == 0 {
			b.Copy(0, []byte{byte(blkno + 1)})
		}
		bc.Release(b)
	}
	assert.Equal(t, uint64(8), bc.NCached())

	d.FailWrite(6, true)
	assert.Error(t, bc.Sync())
	assert.Equal(t, uint64(1), bc.NDirty(), "the failed block stays cached and dirty")
	d.FailWrite(6, false)
	require.NoError(t, bc.Sync())
	assert.Equal(t, uint64(0), bc.NCached())

	// evicted blocks are read back from the disk
	b, err := bc.Acquire(4)
	require.NoError(t, err)
	assert.Equal(t, byte(5), b.Data[0])
	bc.Release(b)
}
