package bridge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// FrameError wraps a frame that could not be decoded. The stream itself is
// still usable.
type FrameError struct {
	Frame []byte
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("bad frame: %v", e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Conn exchanges newline-delimited JSON frames. Receive must be called from
// one goroutine at a time; Send is safe for concurrent use.
type Conn struct {
	r      *bufio.Reader
	closer io.Closer

	mu sync.Mutex
	w  io.Writer
}

// NewConn creates a Conn reading frames from r and writing them to w. If r
// is an io.Closer, Close closes it.
func NewConn(r io.Reader, w io.Writer) *Conn {
	c := &Conn{r: bufio.NewReader(r), w: w}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// Receive returns the next message. Blank lines are skipped. It returns
// io.EOF when the stream ends and a *FrameError for an undecodable frame.
func (c *Conn) Receive() (Message, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			m, derr := Decode(line)
			if derr != nil {
				return nil, &FrameError{Frame: line, Err: derr}
			}
			return m, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading frame: %w", err)
		}
	}
}

// Send writes one message followed by a newline.
func (c *Conn) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("writing %s frame: %w", m.Kind(), err)
	}
	return nil
}

// Close closes the underlying reader when it supports closing, unblocking
// a pending Receive.
func (c *Conn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
