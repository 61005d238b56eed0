//go:build unix

package bridge

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Pollable returns a reader over a duplicate of f's descriptor switched to
// non-blocking mode, so the runtime poller services it and Close interrupts
// a Read in progress. Closing it restores blocking mode on f. If the
// descriptor cannot be duplicated f is returned unchanged.
func Pollable(f *os.File) io.ReadCloser {
	orig := int(f.Fd())
	fd, err := unix.Dup(orig)
	if err != nil {
		return f
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return f
	}
	return &pollableFile{File: os.NewFile(uintptr(fd), f.Name()), orig: f}
}

type pollableFile struct {
	*os.File
	orig *os.File
}

// Close closes the duplicate. O_NONBLOCK is shared with the original
// descriptor, so it is cleared again for whoever reads f next.
func (p *pollableFile) Close() error {
	err := p.File.Close()
	unix.SetNonblock(int(p.orig.Fd()), false)
	return err
}
