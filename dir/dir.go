// Package dir implements AKPFS directories: a directory inode's 27 entry
// slots, each 0 or the number of a child inode. There are no on-disk
// directory blocks; a child's name is the name stored in its own inode.
package dir

import (
	"fmt"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/lockmap"
	"github.com/mit-pdos/go-akpfs/util"
)

// Dirs serializes updates to each directory's slots with a lock per
// directory inode. Lookup and Iterate take no directory lock; they read a
// snapshot of the slots.
type Dirs struct {
	tbl   *inode.Table
	locks *lockmap.LockMap
}

func MkDirs(tbl *inode.Table) *Dirs {
	return &Dirs{tbl: tbl, locks: lockmap.MkLockMap()}
}

type Entry struct {
	Name string
	Inum common.Inum
	Kind inode.Kind
}

func (ds *Dirs) entries(dnum common.Inum) ([common.NENTRIES]common.Inum, error) {
	h, err := ds.tbl.Resolve(dnum)
	if err != nil {
		return [common.NENTRIES]common.Inum{}, err
	}
	defer h.Release()
	if h.Kind() != inode.KindDir {
		return [common.NENTRIES]common.Inum{}, fmt.Errorf("%w: inode %d", common.ErrNotDirectory, dnum)
	}
	return h.Entries, nil
}

func (ds *Dirs) child(inum common.Inum) (Entry, error) {
	h, err := ds.tbl.Resolve(inum)
	if err != nil {
		return Entry{}, err
	}
	defer h.Release()
	return Entry{Name: h.NameString(), Inum: inum, Kind: h.Kind()}, nil
}

// Lookup returns the first child, in slot order, whose stored name is name.
func (ds *Dirs) Lookup(dnum common.Inum, name string) (common.Inum, error) {
	slots, err := ds.entries(dnum)
	if err != nil {
		return common.NULLINUM, err
	}
	if uint64(len(name)) > common.NAMELEN {
		return common.NULLINUM, common.ErrNotFound
	}
	for _, inum := range slots {
		if inum == common.NULLINUM {
			continue
		}
		h, err := ds.tbl.Resolve(inum)
		if err != nil {
			return common.NULLINUM, err
		}
		match := h.NameIs(name)
		h.Release()
		if match {
			util.DPrintf(5, "lookup %d %q: %d\n", dnum, name, inum)
			return inum, nil
		}
	}
	return common.NULLINUM, common.ErrNotFound
}

// Iterate emits directory entries starting at position pos: 0 is ".", 1 is
// "..", and 2+k is the k-th non-empty slot. It stops when emit returns false
// and returns the position to resume from. Positions are counters over the
// current slots, so a concurrent Unlink may make a resumed walk skip or
// repeat an entry.
func (ds *Dirs) Iterate(dnum common.Inum, parent common.Inum, pos uint64,
	emit func(Entry) bool) (uint64, error) {
	slots, err := ds.entries(dnum)
	if err != nil {
		return pos, err
	}
	if pos == 0 {
		if !emit(Entry{Name: ".", Inum: dnum, Kind: inode.KindDir}) {
			return pos, nil
		}
		pos++
	}
	if pos == 1 {
		if !emit(Entry{Name: "..", Inum: parent, Kind: inode.KindDir}) {
			return pos, nil
		}
		pos++
	}
	k := uint64(0)
	for _, inum := range slots {
		if inum == common.NULLINUM {
			continue
		}
		if 2+k < pos {
			k++
			continue
		}
		e, err := ds.child(inum)
		if err != nil {
			return pos, err
		}
		if !emit(e) {
			return pos, nil
		}
		k++
		pos++
	}
	return pos, nil
}

// Link puts child in the first empty slot of the directory.
func (ds *Dirs) Link(dnum common.Inum, child common.Inum) error {
	ds.locks.Acquire(uint64(dnum))
	defer ds.locks.Release(uint64(dnum))
	return ds.link(dnum, child)
}

func (ds *Dirs) link(dnum common.Inum, child common.Inum) error {
	if child == common.NULLINUM {
		return fmt.Errorf("%w: link of inode 0", common.ErrInvalidInode)
	}
	h, err := ds.tbl.Resolve(dnum)
	if err != nil {
		return err
	}
	defer h.Release()
	if h.Kind() != inode.KindDir {
		return fmt.Errorf("%w: inode %d", common.ErrNotDirectory, dnum)
	}
	for i, inum := range h.Entries {
		if inum == common.NULLINUM {
			h.Entries[i] = child
			h.MarkDirty()
			util.DPrintf(5, "link %d[%d] = %d\n", dnum, i, child)
			return nil
		}
	}
	return common.ErrDirectoryFull
}

// LinkName is Link that first fails with ErrExists if the directory already
// has a child called name, atomically with respect to other LinkName calls
// on the same directory.
func (ds *Dirs) LinkName(dnum common.Inum, name string, child common.Inum) error {
	ds.locks.Acquire(uint64(dnum))
	defer ds.locks.Release(uint64(dnum))
	_, err := ds.Lookup(dnum, name)
	if err == nil {
		return fmt.Errorf("%w: %q", common.ErrExists, name)
	}
	if err != common.ErrNotFound {
		return err
	}
	return ds.link(dnum, child)
}

// Unlink empties the slot holding child.
func (ds *Dirs) Unlink(dnum common.Inum, child common.Inum) error {
	if child == common.NULLINUM {
		return common.ErrNotFound
	}
	ds.locks.Acquire(uint64(dnum))
	defer ds.locks.Release(uint64(dnum))
	return ds.unlink(dnum, child)
}

func (ds *Dirs) unlink(dnum common.Inum, child common.Inum) error {
	h, err := ds.tbl.Resolve(dnum)
	if err != nil {
		return err
	}
	defer h.Release()
	if h.Kind() != inode.KindDir {
		return fmt.Errorf("%w: inode %d", common.ErrNotDirectory, dnum)
	}
	for i, inum := range h.Entries {
		if inum == child {
			h.Entries[i] = common.NULLINUM
			h.MarkDirty()
			util.DPrintf(5, "unlink %d[%d] (%d)\n", dnum, i, child)
			return nil
		}
	}
	return common.ErrNotFound
}

// UnlinkEmpty removes directory child from dnum if child has no children,
// then calls free. The locks of dnum and then child are held throughout, so
// no Link into child can land between the check and free.
func (ds *Dirs) UnlinkEmpty(dnum common.Inum, child common.Inum, free func() error) error {
	if child == common.NULLINUM {
		return common.ErrNotFound
	}
	if child == dnum {
		return fmt.Errorf("%w: inode %d holds itself", common.ErrNotEmpty, dnum)
	}
	ds.locks.Acquire(uint64(dnum))
	defer ds.locks.Release(uint64(dnum))
	ds.locks.Acquire(uint64(child))
	defer ds.locks.Release(uint64(child))

	empty, err := ds.IsEmpty(child)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%w: inode %d", common.ErrNotEmpty, child)
	}
	if err := ds.unlink(dnum, child); err != nil {
		return err
	}
	return free()
}

// IsEmpty reports a directory with no children.
func (ds *Dirs) IsEmpty(dnum common.Inum) (bool, error) {
	slots, err := ds.entries(dnum)
	if err != nil {
		return false, err
	}
	for _, inum := range slots {
		if inum != common.NULLINUM {
			return false, nil
		}
	}
	return true, nil
}
