package lens

import (
	"crypto/sha1"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const ErrorLogPrefix = "!! "

// ErrGroupLimitCPU returns an errgroup limited to NumCPU.
func ErrGroupLimitCPU() *errgroup.Group {
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(runtime.NumCPU())
	return errGroup
}

// bytesKey provides a minimum string to be used for internal logic as a key. The string is NOT valid UTF-8, expected
// to only be used for internal comparisons and never provided externally.
func bytesKey(b []byte) string {
	if len(b) <= 20 { // 20 is the byte size of sha1, if at or below that just use the raw string
		return string(b)
	}
	sha := sha1.Sum(b)
	return string(sha[:])
}
