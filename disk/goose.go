package disk

import (
	"fmt"

	goosedisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-akpfs/common"
)

var _ Disk = (*gooseDisk)(nil)

// gooseDisk adapts a goose disk, whose block size is fixed at
// goosedisk.BlockSize and which panics on failure.
type gooseDisk struct {
	d goosedisk.Disk
}

func FromGoose(d goosedisk.Disk) Disk {
	return &gooseDisk{d: d}
}

// NewGooseMemDisk is an in-memory goose disk with 4096-byte blocks.
func NewGooseMemDisk(numBlocks uint64) Disk {
	return FromGoose(goosedisk.NewMemDisk(numBlocks))
}

func recoverIO(op string, a uint64, err *error) {
	if r := recover(); r != nil {
		*err = &common.IOError{Op: op, Blkno: a, Err: fmt.Errorf("%v", r)}
	}
}

func (g *gooseDisk) checkRange(op string, a uint64, buf Block) error {
	return checkAccess(op, a, g.d.Size(), buf, goosedisk.BlockSize)
}

func (g *gooseDisk) ReadTo(a uint64, buf Block) (err error) {
	if err := g.checkRange("read", a, buf); err != nil {
		return err
	}
	defer recoverIO("read", a, &err)
	copy(buf, g.d.Read(a))
	return nil
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	buf := make(Block, goosedisk.BlockSize)
	err := g.ReadTo(a, buf)
	return buf, err
}

func (g *gooseDisk) Write(a uint64, v Block) (err error) {
	if err := g.checkRange("write", a, v); err != nil {
		return err
	}
	defer recoverIO("write", a, &err)
	g.d.Write(a, v)
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g *gooseDisk) BlockSize() uint64 {
	return goosedisk.BlockSize
}

func (g *gooseDisk) Barrier() (err error) {
	defer recoverIO("sync", 0, &err)
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() (err error) {
	defer recoverIO("close", 0, &err)
	g.d.Close()
	return nil
}
