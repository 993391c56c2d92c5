// Package fs mounts an AKPFS disk and provides the operations a filesystem
// front end needs: inode resolution, directory lookup and listing, block
// mapping, links, file reads and writes, and namespace changes.
//
// Nothing reaches the disk until Sync (or Close).
package fs

import (
	"fmt"
	"os"
	"sync"

	"github.com/mit-pdos/go-akpfs/alloc"
	"github.com/mit-pdos/go-akpfs/bcache"
	"github.com/mit-pdos/go-akpfs/bmap"
	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/dir"
	"github.com/mit-pdos/go-akpfs/disk"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/super"
	"github.com/mit-pdos/go-akpfs/util"
)

type Fs struct {
	d     disk.Disk
	sb    super.Superblock
	cache *bcache.Bcache
	tbl   *inode.Table
	alloc *alloc.Alloc
	dirs  *dir.Dirs
	bmap  *bmap.Map
	ilock *sync.Mutex // inode slot allocation
}

// Mount reads and checks the superblock and root directory of d and returns
// the filesystem and its root inode number.
func Mount(d disk.Disk) (*Fs, common.Inum, error) {
	blk, err := d.Read(0)
	if err != nil {
		return nil, common.NULLINUM, fmt.Errorf("reading superblock: %w", err)
	}
	sb, err := super.Decode(blk)
	if err != nil {
		return nil, common.NULLINUM, err
	}
	if sb.BSize() != d.BlockSize() {
		return nil, common.NULLINUM, fmt.Errorf("%w: block size %d on a disk of %d-byte blocks",
			common.ErrCorruptSuperblock, sb.BSize(), d.BlockSize())
	}
	n, err := d.Size()
	if err != nil {
		return nil, common.NULLINUM, err
	}
	if sb.NBlocks() > n {
		return nil, common.NULLINUM, fmt.Errorf("%w: %d blocks on a disk of %d",
			common.ErrCorruptSuperblock, sb.NBlocks(), n)
	}

	cache := bcache.MkBcache(d)
	a := alloc.MkAlloc(sb, cache)
	tbl := inode.MkTable(sb, cache)
	fs := &Fs{
		d:     d,
		sb:    sb,
		cache: cache,
		tbl:   tbl,
		alloc: a,
		dirs:  dir.MkDirs(tbl),
		bmap:  bmap.MkMap(a, cache),
		ilock: new(sync.Mutex),
	}

	root, err := fs.ResolveInode(sb.Root())
	if err != nil {
		return nil, common.NULLINUM, err
	}
	if root.Kind() != inode.KindDir || root.NameString() != "/" {
		return nil, common.NULLINUM, fmt.Errorf("%w: root is %v",
			common.ErrCorruptSuperblock, root)
	}
	util.DPrintf(1, "mount: %v\n", sb)
	return fs, sb.Root(), nil
}

func (fs *Fs) Super() super.Superblock {
	return fs.sb
}

func (fs *Fs) Root() common.Inum {
	return fs.sb.Root()
}

// ResolveInode returns a copy of inode inum as currently cached.
func (fs *Fs) ResolveInode(inum common.Inum) (*inode.Inode, error) {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return nil, err
	}
	ip := *h.Inode
	h.Release()
	return &ip, nil
}

type Attr struct {
	Inum   common.Inum
	Name   string
	Kind   inode.Kind
	Mode   os.FileMode
	Size   uint64
	Blocks uint64 // allocated data blocks
}

func (fs *Fs) Stat(inum common.Inum) (Attr, error) {
	ip, err := fs.ResolveInode(inum)
	if err != nil {
		return Attr{}, err
	}
	if ip.Kind() == inode.KindUnknown {
		return Attr{}, fmt.Errorf("%w: inode %d has size %d", common.ErrInvalidInode, inum, ip.Size)
	}
	attr := Attr{
		Inum: inum,
		Name: ip.NameString(),
		Kind: ip.Kind(),
		Mode: ip.Mode(),
		Size: ip.Len(),
	}
	if ip.Kind() == inode.KindSymlink {
		attr.Size = uint64(len(ip.TargetString()))
	}
	attr.Blocks = uint64(len(bmap.Blocks(ip)))
	return attr, nil
}

func (fs *Fs) LookupChild(dnum common.Inum, name string) (common.Inum, error) {
	return fs.dirs.Lookup(dnum, name)
}

// IterateDirectory lists dnum from position pos; see dir.Dirs.Iterate.
// parent is what ".." refers to.
func (fs *Fs) IterateDirectory(dnum common.Inum, parent common.Inum, pos uint64,
	emit func(dir.Entry) bool) (uint64, error) {
	return fs.dirs.Iterate(dnum, parent, pos, emit)
}

// BlockFor maps block idx of regular file inum, allocating it if create is
// set.
func (fs *Fs) BlockFor(inum common.Inum, idx uint64, create bool) (common.Bnum, bool, error) {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return common.NULLBNUM, false, err
	}
	defer h.Release()
	return fs.bmap.BlockFor(h, idx, create)
}

// ShrinkTo releases the blocks of inum past newSize and sets its size.
func (fs *Fs) ShrinkTo(inum common.Inum, newSize uint64) error {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return err
	}
	defer h.Release()
	return fs.bmap.ShrinkTo(h, newSize)
}

func (fs *Fs) Link(dnum common.Inum, child common.Inum) error {
	return fs.dirs.Link(dnum, child)
}

func (fs *Fs) Unlink(dnum common.Inum, child common.Inum) error {
	return fs.dirs.Unlink(dnum, child)
}

type StatFS struct {
	BlockSize  uint64
	Blocks     uint64 // data blocks
	FreeBlocks uint64
	Inodes     uint64 // usable inode slots
	FreeInodes uint64
}

func (fs *Fs) StatFS() (StatFS, error) {
	free, err := fs.alloc.NumFree()
	if err != nil {
		return StatFS{}, err
	}
	ifree, err := fs.tbl.NumFree()
	if err != nil {
		return StatFS{}, err
	}
	return StatFS{
		BlockSize:  fs.sb.BSize(),
		Blocks:     uint64(fs.sb.DataBlockCnt),
		FreeBlocks: free,
		Inodes:     fs.sb.NInode() - uint64(fs.sb.Root()) - 1,
		FreeInodes: ifree,
	}, nil
}

// Sync writes every modified block to the disk and waits for it.
func (fs *Fs) Sync() error {
	return fs.cache.Sync()
}

// Close syncs and closes the disk.
func (fs *Fs) Close() error {
	if err := fs.Sync(); err != nil {
		return err
	}
	return fs.d.Close()
}
