package dir

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-akpfs/bcache"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/disk"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/super"
)

func mkDirs(t *testing.T) (*Dirs, *inode.Table) {
	sb, err := super.Plan(256*4096, 4096, common.AVGFILESZ)
	require.NoError(t, err)
	bc := bcache.MkBcache(disk.NewMemDisk(256, 4096))
	tbl := inode.MkTable(sb, bc)
	h, err := tbl.Resolve(common.ROOTINUM)
	require.NoError(t, err)
	*h.Inode = *inode.MkDirInode(common.ROOTINUM, "/")
	h.MarkDirty()
	h.Release()
	return MkDirs(tbl), tbl
}

func mkFile(t *testing.T, tbl *inode.Table, name string) common.Inum {
	inum, err := tbl.Alloc(inode.MkFileInode(0, name))
	require.NoError(t, err)
	return inum
}

func TestLinkFull(t *testing.T) {
	assert := assert.New(t)
	ds, tbl := mkDirs(t)

	var inums []common.Inum
	for i := 0; i < 28; i++ {
		inums = append(inums, mkFile(t, tbl, fmt.Sprintf("f%d", i)))
	}
	for i := 0; i < 27; i++ {
		require.NoError(t, ds.Link(common.ROOTINUM, inums[i]))
	}
	err := ds.Link(common.ROOTINUM, inums[27])
	assert.Equal(common.ErrDirectoryFull, err)

	for i := 0; i < 27; i++ {
		inum, err := ds.Lookup(common.ROOTINUM, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		assert.Equal(inums[i], inum)
	}
	_, err = ds.Lookup(common.ROOTINUM, "f27")
	assert.Equal(common.ErrNotFound, err)
}

func TestLookup(t *testing.T) {
	assert := assert.New(t)
	ds, tbl := mkDirs(t)

	a := mkFile(t, tbl, "moksha.txt")
	b := mkFile(t, tbl, "sixteen_chars_xx")
	dup := mkFile(t, tbl, "moksha.txt")
	require.NoError(t, ds.Link(common.ROOTINUM, a))
	require.NoError(t, ds.Link(common.ROOTINUM, b))
	require.NoError(t, ds.Link(common.ROOTINUM, dup))

	inum, err := ds.Lookup(common.ROOTINUM, "moksha.txt")
	require.NoError(t, err)
	assert.Equal(a, inum, "first slot wins")

	inum, err = ds.Lookup(common.ROOTINUM, "sixteen_chars_xx")
	require.NoError(t, err)
	assert.Equal(b, inum)

	_, err = ds.Lookup(common.ROOTINUM, "sixteen_chars_xxy")
	assert.Equal(common.ErrNotFound, err, "names past 16 bytes never match")
	_, err = ds.Lookup(common.ROOTINUM, "moksha")
	assert.Equal(common.ErrNotFound, err)

	_, err = ds.Lookup(a, "x")
	assert.True(errors.Is(err, common.ErrNotDirectory))
	_, err = ds.Lookup(0, "x")
	assert.True(errors.Is(err, common.ErrInvalidInode))
}

func TestUnlink(t *testing.T) {
	assert := assert.New(t)
	ds, tbl := mkDirs(t)
	a := mkFile(t, tbl, "a")
	b := mkFile(t, tbl, "b")
	require.NoError(t, ds.Link(common.ROOTINUM, a))
	require.NoError(t, ds.Link(common.ROOTINUM, b))

	require.NoError(t, ds.Unlink(common.ROOTINUM, a))
	_, err := ds.Lookup(common.ROOTINUM, "a")
	assert.Equal(common.ErrNotFound, err)
	assert.Equal(common.ErrNotFound, ds.Unlink(common.ROOTINUM, a))
	assert.Equal(common.ErrNotFound, ds.Unlink(common.ROOTINUM, 0))

	// the freed slot is reused first
	c := mkFile(t, tbl, "c")
	require.NoError(t, ds.Link(common.ROOTINUM, c))
	h, err := tbl.Resolve(common.ROOTINUM)
	require.NoError(t, err)
	assert.Equal(c, h.Entries[0])
	assert.Equal(b, h.Entries[1])
	h.Release()

	require.NoError(t, ds.Unlink(common.ROOTINUM, b))
	require.NoError(t, ds.Unlink(common.ROOTINUM, c))
	empty, err := ds.IsEmpty(common.ROOTINUM)
	require.NoError(t, err)
	assert.True(empty)
}

func TestLinkName(t *testing.T) {
	ds, tbl := mkDirs(t)
	a := mkFile(t, tbl, "a")
	a2 := mkFile(t, tbl, "a")
	require.NoError(t, ds.LinkName(common.ROOTINUM, "a", a))
	err := ds.LinkName(common.ROOTINUM, "a", a2)
	assert.True(t, errors.Is(err, common.ErrExists))
}

func TestUnlinkEmpty(t *testing.T) {
	assert := assert.New(t)
	ds, tbl := mkDirs(t)
	sub, err := tbl.Alloc(inode.MkDirInode(0, "sub"))
	require.NoError(t, err)
	require.NoError(t, ds.Link(common.ROOTINUM, sub))
	f := mkFile(t, tbl, "f")
	require.NoError(t, ds.Link(sub, f))

	freed := false
	err = ds.UnlinkEmpty(common.ROOTINUM, sub, func() error {
		freed = true
		return nil
	})
	assert.True(errors.Is(err, common.ErrNotEmpty))
	assert.False(freed)
	inum, err := ds.Lookup(common.ROOTINUM, "sub")
	require.NoError(t, err)
	assert.Equal(sub, inum)

	require.NoError(t, ds.Unlink(sub, f))
	linked := make(chan error, 1)
	err = ds.UnlinkEmpty(common.ROOTINUM, sub, func() error {
		// must wait for the directory lock until sub is gone
		go func() { linked <- ds.LinkName(sub, "g", f) }()
		h, err := tbl.Resolve(sub)
		if err != nil {
			return err
		}
		h.Reset()
		h.MarkDirty()
		h.Release()
		return nil
	})
	require.NoError(t, err)
	assert.True(errors.Is(<-linked, common.ErrNotDirectory))
	_, err = ds.Lookup(common.ROOTINUM, "sub")
	assert.Equal(common.ErrNotFound, err)

	err = ds.UnlinkEmpty(common.ROOTINUM, common.ROOTINUM, nil)
	assert.True(errors.Is(err, common.ErrNotEmpty))
	assert.Equal(common.ErrNotFound, ds.UnlinkEmpty(common.ROOTINUM, 0, nil))
}

func collect(t *testing.T, ds *Dirs, pos uint64, max int) ([]string, uint64) {
	var names []string
	next, err := ds.Iterate(common.ROOTINUM, common.ROOTINUM, pos, func(e Entry) bool {
		if len(names) == max {
			return false
		}
		names = append(names, e.Name)
		return true
	})
	require.NoError(t, err)
	return names, next
}

func TestIterate(t *testing.T) {
	assert := assert.New(t)
	ds, tbl := mkDirs(t)
	for _, name := range []string{"x", "y", "z"} {
		require.NoError(t, ds.Link(common.ROOTINUM, mkFile(t, tbl, name)))
	}
	require.NoError(t, ds.Unlink(common.ROOTINUM, 3))

	names, next := collect(t, ds, 0, 100)
	assert.Equal([]string{".", "..", "x", "z"}, names)
	assert.Equal(uint64(4), next)

	names, next = collect(t, ds, 0, 1)
	assert.Equal([]string{"."}, names)
	assert.Equal(uint64(1), next)
	names, next = collect(t, ds, next, 2)
	assert.Equal([]string{"..", "x"}, names)
	assert.Equal(uint64(3), next)
	names, next = collect(t, ds, next, 2)
	assert.Equal([]string{"z"}, names)
	assert.Equal(uint64(4), next)
	names, _ = collect(t, ds, next, 2)
	assert.Empty(names)
}

func TestConcurrentLink(t *testing.T) {
	const n = 27
	ds, tbl := mkDirs(t)
	var inums []common.Inum
	for i := 0; i < n; i++ {
		inums = append(inums, mkFile(t, tbl, fmt.Sprintf("c%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(inum common.Inum) {
			defer wg.Done()
			assert.NoError(t, ds.Link(common.ROOTINUM, inum))
		}(inums[i])
	}
	wg.Wait()

	h, err := tbl.Resolve(common.ROOTINUM)
	require.NoError(t, err)
	slots := h.Entries
	h.Release()
	got := append([]common.Inum(nil), slots[:]...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, inums, got, "every link landed in its own slot")
}
