package daptest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/go-dap"
	rfdap "github.com/outpost-qa/rfdebug/dap"
)

// LogConn wraps conn so every message it sends or receives is logged via
// t.Logf, adapted from the teacher's own test logging wrapper.
func LogConn(t *testing.T, prefix string, conn rfdap.Conn) rfdap.Conn {
	return &loggingConn{Conn: conn, t: t, prefix: prefix}
}

type loggingConn struct {
	rfdap.Conn
	t      *testing.T
	prefix string
}

func (c *loggingConn) SendMsg(m dap.Message) error {
	c.t.Helper()
	b, _ := json.Marshal(m)
	c.t.Logf("[%s] send: %v", c.prefix, string(b))
	err := c.Conn.SendMsg(m)
	if err != nil {
		c.t.Logf("[%s] send error: %v", c.prefix, err)
	}
	return err
}

func (c *loggingConn) RecvMsg(ctx context.Context) (dap.Message, error) {
	c.t.Helper()
	m, err := c.Conn.RecvMsg(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			c.t.Logf("[%s] recv error: %v", c.prefix, err)
		}
		return nil, err
	}
	b, _ := json.Marshal(m)
	c.t.Logf("[%s] recv: %v", c.prefix, string(b))
	return m, nil
}
