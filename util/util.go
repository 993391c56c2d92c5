package util

import (
	"github.com/sirupsen/logrus"
)

// Debug is the highest DPrintf level that gets printed.
var Debug uint64 = 0

// Log receives all filesystem logging. The mkfs tool reconfigures its level
// and formatter.
var Log = logrus.New()

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		Log.Printf(format, a...)
	}
}

// Warnf is always printed.
func Warnf(format string, a ...interface{}) {
	Log.Warnf(format, a...)
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// returns n+m>=2^64 (if it were computed at infinite precision)
func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

// CString returns the bytes of b up to the first NUL.
func CString(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
