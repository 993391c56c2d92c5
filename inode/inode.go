// Package inode encodes AKPFS inode records and resolves inode numbers to
// records in the inode table.
//
// A record is 128 bytes: a 16-byte name, a signed 32-bit file_size, and a
// 108-byte area whose meaning depends on file_size. A non-negative size is a
// regular file and the area holds 27 direct block numbers; SIZEDIR marks a
// directory whose area holds 27 child inode numbers; SIZELINK marks a symlink
// whose area holds the NUL-padded target path. Inode keeps one typed array per
// kind and only the array for its kind is encoded.
package inode

import (
	"fmt"
	"os"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/util"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindRegular
	KindDir
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "Regular"
	case KindDir:
		return "Dir"
	case KindSymlink:
		return "Symlink"
	default:
		return "Unknown"
	}
}

// TypeOf derives the kind from file_size alone.
func TypeOf(size int32) Kind {
	switch {
	case size >= 0:
		return KindRegular
	case size == common.SIZEDIR:
		return KindDir
	case size == common.SIZELINK:
		return KindSymlink
	default:
		return KindUnknown
	}
}

type Inode struct {
	Inum common.Inum // not stored
	Name [common.NAMELEN]byte
	Size int32

	Blocks  [common.NDIRECT]common.Bnum  // KindRegular
	Entries [common.NENTRIES]common.Inum // KindDir
	Target  [common.LINKLEN]byte         // KindSymlink
}

func MkFileInode(inum common.Inum, name string) *Inode {
	ip := &Inode{Inum: inum, Size: 0}
	ip.SetName(name)
	return ip
}

func MkDirInode(inum common.Inum, name string) *Inode {
	ip := &Inode{Inum: inum, Size: common.SIZEDIR}
	ip.SetName(name)
	return ip
}

func MkSymlinkInode(inum common.Inum, name string, target string) *Inode {
	ip := &Inode{Inum: inum, Size: common.SIZELINK}
	ip.SetName(name)
	copy(ip.Target[:], target)
	return ip
}

func (ip *Inode) Kind() Kind {
	return TypeOf(ip.Size)
}

// Len is the byte length of a regular file; 0 for anything else.
func (ip *Inode) Len() uint64 {
	if ip.Size < 0 {
		return 0
	}
	return uint64(ip.Size)
}

// NameString is the stored name up to its first NUL (at most 16 bytes).
func (ip *Inode) NameString() string {
	return string(util.CString(ip.Name[:]))
}

// SetName stores name, truncated to 16 bytes and NUL padded.
func (ip *Inode) SetName(name string) {
	ip.Name = [common.NAMELEN]byte{}
	copy(ip.Name[:], name)
}

// NameIs compares the stored name with name without assuming the stored
// name is NUL-terminated.
func (ip *Inode) NameIs(name string) bool {
	if uint64(len(name)) > common.NAMELEN {
		return false
	}
	return ip.NameString() == name
}

// IsFree reports an unused record, as mkfs leaves them.
func (ip *Inode) IsFree() bool {
	return ip.Name[0] == 0
}

func (ip *Inode) TargetString() string {
	return string(util.CString(ip.Target[:]))
}

// Reset returns the record to the free state.
func (ip *Inode) Reset() {
	inum := ip.Inum
	*ip = Inode{Inum: inum}
}

// Mode is the fixed permission set for the inode's kind.
func (ip *Inode) Mode() os.FileMode {
	switch ip.Kind() {
	case KindRegular:
		return 0644
	case KindDir:
		return os.ModeDir | 0755
	case KindSymlink:
		return os.ModeSymlink | 0777
	default:
		return 0
	}
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ - common.NAMELEN)
	enc.PutInt32(uint32(ip.Size))
	switch ip.Kind() {
	case KindRegular:
		for _, bn := range ip.Blocks {
			enc.PutInt32(uint32(bn))
		}
	case KindDir:
		for _, inum := range ip.Entries {
			enc.PutInt32(uint32(inum))
		}
	}
	b := make([]byte, common.INODESZ)
	copy(b, ip.Name[:])
	copy(b[common.NAMELEN:], enc.Finish())
	if ip.Kind() == KindSymlink {
		copy(b[common.NAMELEN+4:], ip.Target[:])
	}
	return b
}

func Decode(inum common.Inum, b []byte) *Inode {
	if uint64(len(b)) != common.INODESZ {
		panic(fmt.Sprintf("inode.Decode: %d bytes", len(b)))
	}
	ip := &Inode{Inum: inum}
	copy(ip.Name[:], b[:common.NAMELEN])
	dec := marshal.NewDec(b[common.NAMELEN:])
	ip.Size = int32(dec.GetInt32())
	switch ip.Kind() {
	case KindRegular:
		for i := range ip.Blocks {
			ip.Blocks[i] = common.Bnum(dec.GetInt32())
		}
	case KindDir:
		for i := range ip.Entries {
			ip.Entries[i] = common.Inum(dec.GetInt32())
		}
	case KindSymlink:
		copy(ip.Target[:], b[common.NAMELEN+4:])
	}
	return ip
}

func (ip *Inode) String() string {
	return fmt.Sprintf("inode %d %q %v size %d", ip.Inum, ip.NameString(), ip.Kind(), ip.Size)
}
