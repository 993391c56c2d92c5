package common

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfSpace         = errors.New("no space left on device")
	ErrNotFound           = errors.New("no such file or directory")
	ErrDirectoryFull      = errors.New("directory full")
	ErrFileTooLarge       = errors.New("file too large")
	ErrInvalidBlockNumber = errors.New("invalid block number")
	ErrCorruptSuperblock  = errors.New("corrupt superblock")

	ErrInvalidInode     = errors.New("invalid inode number")
	ErrNotDirectory     = errors.New("not a directory")
	ErrNotRegular       = errors.New("not a regular file")
	ErrNotSymlink       = errors.New("not a symbolic link")
	ErrNameTooLong      = errors.New("file name too long")
	ErrExists           = errors.New("file exists")
	ErrNoInodes         = errors.New("inode table full")
	ErrInvalidBlockSize = errors.New("invalid block size")
	ErrDeviceTooSmall   = errors.New("device too small")
	ErrInvalidName      = errors.New("invalid file name")
	ErrNotEmpty         = errors.New("directory not empty")
)

// IOError reports a failed block transfer. Layers above the disk return it
// as-is (possibly wrapped with context), never retried.
type IOError struct {
	Op    string
	Blkno Bnum
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s block %d: %v", e.Op, e.Blkno, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
