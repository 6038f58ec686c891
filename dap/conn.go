package dap

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/google/go-dap"
)

// Conn is the transport a Server reads requests from and writes responses
// and events to. Defined directly in package dap: unlike the teacher,
// this debugger has no second LaunchConfig-generic package needing its
// own copy of the interface.
type Conn interface {
	SendMsg(m dap.Message) error
	RecvMsg(ctx context.Context) (dap.Message, error)
	io.Closer
}

type conn struct {
	wmu sync.Mutex
	wr  io.Writer
	rd  *bufio.Reader

	closeOnce sync.Once
	closer    io.Closer
}

// NewConn wraps rd/wr as a Conn using the DAP wire codec (Content-Length
// framed JSON, per dap.ReadProtocolMessage/dap.WriteProtocolMessage).
func NewConn(rd io.Reader, wr io.Writer) Conn {
	c := &conn{rd: bufio.NewReader(rd), wr: wr}
	if closer, ok := wr.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

func (c *conn) SendMsg(m dap.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return dap.WriteProtocolMessage(c.wr, m)
}

// RecvMsg blocks until a full message is read or ctx is done. The
// underlying read is not itself cancelable (bufio.Reader has no
// deadline), so a canceled ctx only stops this call from waiting further
// on an already-in-flight read; the read goroutine is abandoned, matching
// the teacher's connection-close-driven shutdown model.
func (c *conn) RecvMsg(ctx context.Context) (dap.Message, error) {
	type result struct {
		m   dap.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := dap.ReadProtocolMessage(c.rd)
		done <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.m, r.err
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.closer != nil {
			err = c.closer.Close()
		}
	})
	return err
}
