//go:build unix

package bridge

import (
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func blockingPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))
	r = os.NewFile(uintptr(fds[0]), "pipe-r")
	w = os.NewFile(uintptr(fds[1]), "pipe-w")
	t.Cleanup(func() {
		w.Close()
		r.Close()
	})
	return r, w
}

func TestPollable_CloseInterruptsReceive(t *testing.T) {
	r, w := blockingPipe(t)
	conn := NewConn(Pollable(r), io.Discard)

	_, err := w.WriteString(`{"type":"review"}` + "\n")
	require.NoError(t, err)
	m, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, KindReview, m.Kind())

	errc := make(chan error, 1)
	go func() {
		_, err := conn.Receive()
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive still blocked after Close")
	}
}

func TestPollable_CloseRestoresBlockingMode(t *testing.T) {
	r, _ := blockingPipe(t)
	p := Pollable(r)
	require.NoError(t, p.Close())

	flags, err := unix.FcntlInt(r.Fd(), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.Zero(t, flags&unix.O_NONBLOCK)
}
