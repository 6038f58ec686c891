// Package daptest is a minimal fake DAP client used by integration tests:
// it sends requests over a Conn and correlates responses by sequence
// number, the way a real client (VS Code, a headless harness) would.
// Adapted from the teacher's util/daptest, rewired onto this repo's own
// Conn (no generic LaunchConfig indirection needed here).
package daptest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
	rfdap "github.com/outpost-qa/rfdebug/dap"
	"golang.org/x/sync/errgroup"
)

// Client is a fake DAP client driving one Conn.
type Client struct {
	conn rfdap.Conn

	requests   map[int]chan dap.ResponseMessage
	requestsMu sync.Mutex

	events   map[string][]func(dap.EventMessage)
	eventsMu sync.RWMutex

	seq    atomic.Int64
	eg     *errgroup.Group
	cancel context.CancelCauseFunc
}

// NewClient wraps conn and starts its read loop.
func NewClient(conn rfdap.Conn) *Client {
	c := &Client{
		conn:     conn,
		requests: make(map[int]chan dap.ResponseMessage),
		events:   make(map[string][]func(dap.EventMessage)),
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	c.cancel = cancel

	c.eg, _ = errgroup.WithContext(context.Background())
	c.eg.Go(func() error {
		for {
			m, err := conn.RecvMsg(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}

			switch m := m.(type) {
			case dap.ResponseMessage:
				resp := m.GetResponse()
				c.requestsMu.Lock()
				ch := c.requests[resp.RequestSeq]
				delete(c.requests, resp.RequestSeq)
				c.requestsMu.Unlock()
				if ch != nil {
					ch <- m
				}
			case dap.EventMessage:
				c.invokeEventCallback(m)
			}
		}
	})
	return c
}

// Do sends req, stamping its sequence number, and returns a channel that
// receives exactly one response.
func (c *Client) Do(req dap.RequestMessage) <-chan dap.ResponseMessage {
	base := req.GetRequest()
	base.Type = "request"
	seq := int(c.seq.Add(1))
	base.Seq = seq

	ch := make(chan dap.ResponseMessage, 1)

	c.requestsMu.Lock()
	c.requests[seq] = ch
	c.requestsMu.Unlock()

	if err := c.conn.SendMsg(req); err != nil {
		close(ch)
		c.requestsMu.Lock()
		delete(c.requests, seq)
		c.requestsMu.Unlock()
	}
	return ch
}

// RegisterEvent registers fn to be called whenever an event named event
// arrives.
func (c *Client) RegisterEvent(event string, fn func(dap.EventMessage)) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events[event] = append(c.events[event], fn)
}

func (c *Client) invokeEventCallback(event dap.EventMessage) {
	c.eventsMu.RLock()
	fns := c.events[event.GetEvent().Event]
	c.eventsMu.RUnlock()
	for _, fn := range fns {
		fn(event)
	}
}

// Close stops the read loop and waits for it to exit.
func (c *Client) Close() error {
	c.cancel(context.Canceled)
	return c.eg.Wait()
}
