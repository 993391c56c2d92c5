package fs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/util"
)

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", common.ErrInvalidName, name)
	}
	if uint64(len(name)) > common.NAMELEN {
		return fmt.Errorf("%w: %q", common.ErrNameTooLong, name)
	}
	return nil
}

// mknod stores ip in a free inode slot and links it into dnum under its
// name. A failed link frees the slot again.
func (fs *Fs) mknod(dnum common.Inum, ip *inode.Inode) (common.Inum, error) {
	fs.ilock.Lock()
	inum, err := fs.tbl.Alloc(ip)
	fs.ilock.Unlock()
	if err != nil {
		return common.NULLINUM, err
	}
	if err := fs.dirs.LinkName(dnum, ip.NameString(), inum); err != nil {
		if ferr := fs.freeInode(inum); ferr != nil {
			util.Warnf("mknod: leaking inode %d: %v", inum, ferr)
		}
		return common.NULLINUM, err
	}
	util.DPrintf(1, "mknod %d: %v\n", dnum, ip)
	return inum, nil
}

func (fs *Fs) freeInode(inum common.Inum) error {
	h, err := fs.tbl.Resolve(inum)
	if err != nil {
		return err
	}
	defer h.Release()
	h.MarkDirty()
	if h.Kind() == inode.KindRegular {
		if err := fs.bmap.ShrinkTo(h, 0); err != nil {
			return err
		}
	}
	h.Reset()
	return nil
}

// Create makes an empty regular file called name in directory dnum.
func (fs *Fs) Create(dnum common.Inum, name string) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return common.NULLINUM, err
	}
	return fs.mknod(dnum, inode.MkFileInode(common.NULLINUM, name))
}

func (fs *Fs) Mkdir(dnum common.Inum, name string) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return common.NULLINUM, err
	}
	return fs.mknod(dnum, inode.MkDirInode(common.NULLINUM, name))
}

// Symlink makes a symbolic link to target; the target is stored in the
// inode and may be at most 108 bytes.
func (fs *Fs) Symlink(dnum common.Inum, name string, target string) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return common.NULLINUM, err
	}
	if target == "" || strings.ContainsRune(target, 0) {
		return common.NULLINUM, fmt.Errorf("%w: link target %q", common.ErrInvalidName, target)
	}
	if uint64(len(target)) > common.LINKLEN {
		return common.NULLINUM, fmt.Errorf("%w: link target of %d bytes", common.ErrNameTooLong, len(target))
	}
	return fs.mknod(dnum, inode.MkSymlinkInode(common.NULLINUM, name, target))
}

func (fs *Fs) Readlink(inum common.Inum) (string, error) {
	ip, err := fs.ResolveInode(inum)
	if err != nil {
		return "", err
	}
	if ip.Kind() != inode.KindSymlink {
		return "", fmt.Errorf("%w: inode %d", common.ErrNotSymlink, inum)
	}
	return ip.TargetString(), nil
}

// Remove unlinks name from dnum, frees the blocks of the child and returns
// its inode slot to the free state. A directory must be empty.
func (fs *Fs) Remove(dnum common.Inum, name string) error {
	inum, err := fs.dirs.Lookup(dnum, name)
	if err != nil {
		return err
	}
	ip, err := fs.ResolveInode(inum)
	if err != nil {
		return err
	}
	if ip.Kind() == inode.KindDir {
		err = fs.dirs.UnlinkEmpty(dnum, inum, func() error {
			return fs.freeInode(inum)
		})
		if errors.Is(err, common.ErrNotEmpty) {
			return fmt.Errorf("%w: %q", common.ErrNotEmpty, name)
		}
		if err == nil {
			util.DPrintf(1, "remove %d: %q (%d)\n", dnum, name, inum)
		}
		return err
	}
	if err := fs.dirs.Unlink(dnum, inum); err != nil {
		return err
	}
	util.DPrintf(1, "remove %d: %q (%d)\n", dnum, name, inum)
	return fs.freeInode(inum)
}
