//go:build !unix

package bridge

import (
	"io"
	"os"
)

// Pollable returns f unchanged on platforms without non-blocking
// descriptors.
func Pollable(f *os.File) io.ReadCloser {
	return f
}
