package disk

import (
	"errors"
	"sync"

	"github.com/mit-pdos/go-akpfs/common"
)

var ErrInjected = errors.New("injected I/O failure")

// FaultDisk wraps a Disk and fails reads or writes of chosen blocks.
type FaultDisk struct {
	Disk
	mu         *sync.Mutex
	failReads  map[uint64]bool
	failWrites map[uint64]bool
	writeAll   bool
}

func NewFaultDisk(d Disk) *FaultDisk {
	return &FaultDisk{
		Disk:       d,
		mu:         new(sync.Mutex),
		failReads:  make(map[uint64]bool),
		failWrites: make(map[uint64]bool),
	}
}

func (d *FaultDisk) FailRead(a uint64, fail bool) {
	d.mu.Lock()
	d.failReads[a] = fail
	d.mu.Unlock()
}

func (d *FaultDisk) FailWrite(a uint64, fail bool) {
	d.mu.Lock()
	d.failWrites[a] = fail
	d.mu.Unlock()
}

// FailAllWrites makes every write fail until called with false.
func (d *FaultDisk) FailAllWrites(fail bool) {
	d.mu.Lock()
	d.writeAll = fail
	d.mu.Unlock()
}

func (d *FaultDisk) ReadTo(a uint64, b Block) error {
	d.mu.Lock()
	fail := d.failReads[a]
	d.mu.Unlock()
	if fail {
		return &common.IOError{Op: "read", Blkno: a, Err: ErrInjected}
	}
	return d.Disk.ReadTo(a, b)
}

func (d *FaultDisk) Read(a uint64) (Block, error) {
	b := make(Block, d.BlockSize())
	err := d.ReadTo(a, b)
	return b, err
}

func (d *FaultDisk) Write(a uint64, v Block) error {
	d.mu.Lock()
	fail := d.writeAll || d.failWrites[a]
	d.mu.Unlock()
	if fail {
		return &common.IOError{Op: "write", Blkno: a, Err: ErrInjected}
	}
	return d.Disk.Write(a, v)
}
