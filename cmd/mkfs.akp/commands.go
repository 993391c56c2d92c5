package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-akpfs/common"
	"github.com/mit-pdos/go-akpfs/dir"
	"github.com/mit-pdos/go-akpfs/disk"
	"github.com/mit-pdos/go-akpfs/fs"
	"github.com/mit-pdos/go-akpfs/inode"
	"github.com/mit-pdos/go-akpfs/mkfs"
	"github.com/mit-pdos/go-akpfs/super"
)

var formatCommand = &cli.Command{
	Name:      "format",
	Usage:     "lay out an empty filesystem on a device or image file",
	ArgsUsage: "DEVICE",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "block-size", Usage: "filesystem block size in bytes"},
		&cli.Uint64Flag{Name: "avg-file-size", Usage: "expected file size, sizes the inode table"},
		&cli.BoolFlag{Name: "no-seed", Usage: "do not write the seed file"},
		&cli.Uint64Flag{Name: "create", Usage: "create the image file with this many blocks"},
	},
	Action: func(ctx *cli.Context) error {
		c, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		dev, err := deviceArg(ctx)
		if err != nil {
			return err
		}
		var d disk.Disk
		if n := ctx.Uint64("create"); n > 0 {
			d, err = disk.CreateFileDisk(dev, n, c.BlockSize)
		} else {
			d, err = disk.NewFileDisk(dev, c.BlockSize)
		}
		if err != nil {
			return err
		}
		defer d.Close()

		sb, err := mkfs.FormatDevice(d, c.BlockSize, c.MkfsOptions())
		if err != nil {
			return fmt.Errorf("formatting %s: %w", dev, err)
		}
		fmt.Printf("akp fs created on device %s [%d bytes = %d blocks] (1 block = %d bytes)\n",
			dev, sb.NBlocks()*sb.BSize(), sb.NBlocks(), sb.BSize())
		return nil
	},
}

// mount opens dev with the block size recorded in its superblock.
func mount(dev string) (*fs.Fs, common.Inum, error) {
	probe, err := disk.NewFileDisk(dev, common.MINBLOCKSZ)
	if err != nil {
		return nil, common.NULLINUM, err
	}
	blk, err := probe.Read(0)
	probe.Close()
	if err != nil {
		return nil, common.NULLINUM, err
	}
	sb, err := super.Decode(blk)
	if err != nil {
		return nil, common.NULLINUM, fmt.Errorf("%s: %w", dev, err)
	}
	d, err := disk.NewFileDisk(dev, sb.BSize())
	if err != nil {
		return nil, common.NULLINUM, err
	}
	fsys, root, err := fs.Mount(d)
	if err != nil {
		d.Close()
		return nil, common.NULLINUM, fmt.Errorf("%s: %w", dev, err)
	}
	return fsys, root, nil
}

// walk resolves a slash-separated path from the root.
func walk(fsys *fs.Fs, root common.Inum, path string) (common.Inum, error) {
	inum := root
	for _, name := range strings.Split(path, "/") {
		if name == "" || name == "." {
			continue
		}
		next, err := fsys.LookupChild(inum, name)
		if err != nil {
			return common.NULLINUM, fmt.Errorf("%s: %w", path, err)
		}
		inum = next
	}
	return inum, nil
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "print the superblock and usage of a filesystem",
	ArgsUsage: "DEVICE",
	Action: func(ctx *cli.Context) error {
		if _, err := loadConfig(ctx); err != nil {
			return err
		}
		dev, err := deviceArg(ctx)
		if err != nil {
			return err
		}
		fsys, _, err := mount(dev)
		if err != nil {
			return err
		}
		defer fsys.Close()
		st, err := fsys.StatFS()
		if err != nil {
			return err
		}
		fmt.Println(fsys.Super())
		fmt.Printf("data blocks: %d free of %d\n", st.FreeBlocks, st.Blocks)
		fmt.Printf("inodes: %d free of %d\n", st.FreeInodes, st.Inodes)
		return nil
	},
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "list a directory",
	ArgsUsage: "DEVICE [PATH]",
	Action: func(ctx *cli.Context) error {
		if _, err := loadConfig(ctx); err != nil {
			return err
		}
		dev, err := deviceArg(ctx)
		if err != nil {
			return err
		}
		fsys, root, err := mount(dev)
		if err != nil {
			return err
		}
		defer fsys.Close()
		dnum, err := walk(fsys, root, ctx.Args().Get(1))
		if err != nil {
			return err
		}
		return list(fsys, dnum)
	},
}

func list(fsys *fs.Fs, dnum common.Inum) error {
	var entries []dir.Entry
	// ".." is not recorded on disk; the listing shows the directory itself
	_, err := fsys.IterateDirectory(dnum, dnum, 2, func(e dir.Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		attr, err := fsys.Stat(e.Inum)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%v %4d %8d %s", attr.Mode, e.Inum, attr.Size, e.Name)
		if e.Kind == inode.KindSymlink {
			target, err := fsys.Readlink(e.Inum)
			if err != nil {
				return err
			}
			line += " -> " + target
		}
		fmt.Println(line)
	}
	return nil
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "print a file",
	ArgsUsage: "DEVICE PATH",
	Action: func(ctx *cli.Context) error {
		if _, err := loadConfig(ctx); err != nil {
			return err
		}
		dev, err := deviceArg(ctx)
		if err != nil {
			return err
		}
		fsys, root, err := mount(dev)
		if err != nil {
			return err
		}
		defer fsys.Close()
		inum, err := walk(fsys, root, ctx.Args().Get(1))
		if err != nil {
			return err
		}
		attr, err := fsys.Stat(inum)
		if err != nil {
			return err
		}
		if attr.Kind == inode.KindSymlink {
			target, err := fsys.Readlink(inum)
			if err != nil {
				return err
			}
			fmt.Println(target)
			return nil
		}
		if attr.Size == 0 {
			return nil
		}
		p := make([]byte, attr.Size)
		n, err := fsys.ReadAt(inum, p, 0)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(p[:n])
		return err
	},
}
