package disk

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-akpfs/common"
)

func checkAccess(op string, a uint64, n uint64, buf Block, bsz uint64) error {
	if uint64(len(buf)) != bsz {
		return &common.IOError{Op: op, Blkno: a,
			Err: fmt.Errorf("buffer is not block-sized (%d bytes)", len(buf))}
	}
	if a >= n {
		return &common.IOError{Op: op, Blkno: a,
			Err: fmt.Errorf("out-of-bounds access (disk has %d blocks)", n)}
	}
	return nil
}

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	numBlocks uint64
	blockSize uint64
}

// NewFileDisk opens an existing image file or block device. Its size in
// blocks is the device length divided by blockSize; a trailing partial block
// is unused.
func NewFileDisk(path string, blockSize uint64) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// lseek works for block devices, where fstat reports no size
	end, err := unix.Seek(fd, 0, io.SeekEnd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sizing %s: %w", path, err)
	}
	return &fileDisk{fd: fd, numBlocks: uint64(end) / blockSize, blockSize: blockSize}, nil
}

// CreateFileDisk creates (or resizes) a regular image file of numBlocks
// blocks.
func CreateFileDisk(path string, numBlocks uint64, blockSize uint64) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numBlocks*blockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*blockSize))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("truncating %s: %w", path, err)
		}
	}
	return &fileDisk{fd: fd, numBlocks: numBlocks, blockSize: blockSize}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess("read", a, d.numBlocks, buf, d.blockSize); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(a*d.blockSize))
	if err != nil {
		return &common.IOError{Op: "read", Blkno: a, Err: err}
	}
	if uint64(n) != d.blockSize {
		return &common.IOError{Op: "read", Blkno: a,
			Err: fmt.Errorf("short read (%d bytes)", n)}
	}
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.blockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkAccess("write", a, d.numBlocks, v, d.blockSize); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*d.blockSize))
	if err != nil {
		return &common.IOError{Op: "write", Blkno: a, Err: err}
	}
	if uint64(n) != d.blockSize {
		return &common.IOError{Op: "write", Blkno: a,
			Err: fmt.Errorf("short write (%d bytes)", n)}
	}
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) BlockSize() uint64 {
	return d.blockSize
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return &common.IOError{Op: "sync", Err: err}
	}
	return nil
}

func (d *fileDisk) Close() error {
	return unix.Close(d.fd)
}

/////////////////////////
/////////////////////////

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l         *sync.RWMutex
	blockSize uint64
	blocks    [][]byte
}

func NewMemDisk(numBlocks uint64, blockSize uint64) *memDisk {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &memDisk{l: new(sync.RWMutex), blockSize: blockSize, blocks: blocks}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkAccess("read", a, uint64(len(d.blocks)), buf, d.blockSize); err != nil {
		return err
	}
	copy(buf, d.blocks[a])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.blockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *memDisk) Write(a uint64, v Block) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkAccess("write", a, uint64(len(d.blocks)), v, d.blockSize); err != nil {
		return err
	}
	copy(d.blocks[a], v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *memDisk) BlockSize() uint64 { return d.blockSize }

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
