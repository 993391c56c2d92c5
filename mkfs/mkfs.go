// Package mkfs lays out an empty AKPFS on a disk: superblock, cleared inode
// table, root directory, optional seed file, and the free bitmap.
package mkfs

import (
	"fmt"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/disk"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/super"
	"github.com/mit-pdos/go-akpfs/util"
)

const (
	DefaultSeedName = "moksha.txt"
	DefaultSeedData = "Good Morning Universe\n"
)

type Options struct {
	Seed        bool // write a one-block file into the root directory
	SeedName    string
	SeedData    []byte
	AvgFileSize uint64
}

func DefaultOptions() Options {
	return Options{
		Seed:        true,
		SeedName:    DefaultSeedName,
		SeedData:    []byte(DefaultSeedData),
		AvgFileSize: common.AVGFILESZ,
	}
}

func (opts Options) check(bsz uint64) error {
	if !opts.Seed {
		return nil
	}
	if opts.SeedName == "" || uint64(len(opts.SeedName)) > common.NAMELEN {
		return fmt.Errorf("seed file %q: %w", opts.SeedName, common.ErrNameTooLong)
	}
	if uint64(len(opts.SeedData)) > bsz {
		return fmt.Errorf("seed file of %d bytes: %w", len(opts.SeedData), common.ErrFileTooLarge)
	}
	return nil
}

// FormatDevice plans a layout for the whole of d with block size blockSize
// and writes it.
func FormatDevice(d disk.Disk, blockSize uint64, opts Options) (super.Superblock, error) {
	if blockSize != d.BlockSize() {
		return super.Superblock{}, fmt.Errorf("%w: %d on a disk of %d-byte blocks",
			common.ErrInvalidBlockSize, blockSize, d.BlockSize())
	}
	n, err := d.Size()
	if err != nil {
		return super.Superblock{}, err
	}
	avg := opts.AvgFileSize
	if avg == 0 {
		avg = common.AVGFILESZ
	}
	sb, err := super.Plan(n*blockSize, blockSize, avg)
	if err != nil {
		return super.Superblock{}, err
	}
	if err := Format(d, sb, opts); err != nil {
		return super.Superblock{}, err
	}
	return sb, nil
}

// Format writes layout sb to d. Any failed write aborts the format; the
// disk is then not mountable.
func Format(d disk.Disk, sb super.Superblock, opts Options) error {
	bsz := sb.BSize()
	if bsz != d.BlockSize() {
		return fmt.Errorf("%w: layout for %d-byte blocks on a disk of %d-byte blocks",
			common.ErrInvalidBlockSize, bsz, d.BlockSize())
	}
	if err := opts.check(bsz); err != nil {
		return err
	}

	blk := make(disk.Block, bsz)
	copy(blk, sb.Encode())
	if err := d.Write(0, blk); err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}

	// The root and seed inodes go in with the rest of their table block.
	root := inode.MkDirInode(sb.Root(), "/")
	var seed *inode.Inode
	if opts.Seed {
		seed = inode.MkFileInode(sb.Root()+1, opts.SeedName)
		seed.Size = int32(len(opts.SeedData))
		seed.Blocks[0] = sb.DataStart()
		root.Entries[0] = seed.Inum
	}
	for i := uint64(0); i < uint64(sb.InodesBlockCnt); i++ {
		blkno := sb.InodeStart() + i
		blk := make(disk.Block, bsz)
		for _, ip := range []*inode.Inode{root, seed} {
			if ip == nil {
				continue
			}
			if a := sb.Inum2Addr(ip.Inum); a.Blkno == blkno {
				copy(blk[a.ByteOff():], ip.Encode())
			}
		}
		if err := d.Write(blkno, blk); err != nil {
			return fmt.Errorf("writing inode table: %w", err)
		}
	}

	firstFree := sb.DataStart()
	if opts.Seed {
		blk := make(disk.Block, bsz)
		copy(blk, opts.SeedData)
		if err := d.Write(sb.DataStart(), blk); err != nil {
			return fmt.Errorf("writing %s: %w", opts.SeedName, err)
		}
		firstFree++
	}

	nbits := uint64(sb.FreeBitsPerBlock)
	for i := uint64(0); i < uint64(sb.FreeBitsBlockCnt); i++ {
		blk := bitmapBlock(i*nbits, nbits, firstFree)
		if err := d.Write(sb.BitmapStart()+i, blk); err != nil {
			return fmt.Errorf("writing free bitmap: %w", err)
		}
	}

	if err := d.Barrier(); err != nil {
		return err
	}
	util.DPrintf(1, "mkfs: %v\n", sb)
	return nil
}

// bitmapBlock returns the bitmap block describing blocks [start,
// start+nbits) with every block below firstFree in use.
func bitmapBlock(start uint64, nbits uint64, firstFree uint64) disk.Block {
	blk := make(disk.Block, nbits/8)
	if firstFree <= start {
		return blk
	}
	used := util.Min(firstFree-start, nbits)
	for j := uint64(0); j < used/8; j++ {
		blk[j] = 0xFF
	}
	if rem := used % 8; rem != 0 {
		blk[used/8] = byte(1<<rem) - 1
	}
	return blk
}
