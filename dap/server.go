package dap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var errNotImplemented = errors.New("dap: request not implemented")
var errAlreadyInitialized = errors.New("dap: already initialized")

// Server drives one DAP session over a Conn: it reads requests, dispatches
// them to a Handler, writes back responses in request order, and
// multiplexes in events pushed asynchronously (e.g. by Engine callbacks)
// via Context.C(). Grounded on the teacher's transport server, trimmed to
// the single-conn, single-session shape this debugger needs (spec.md
// has no multi-session requirement).
type Server struct {
	h Handler

	mu          sync.RWMutex
	initialized bool

	seq    atomic.Int64
	active atomic.Pointer[serveState]
}

// serveState is the subset of Serve's per-session state a goroutine
// outside the session (e.g. an Engine callback firing on the execution
// thread) needs to push an event.
type serveState struct {
	events chan<- dap.Message
	ctx    context.Context
}

// push delivers an out-of-band event (Engine callbacks, not a handler
// response) to the active session, if any. It reports false rather than
// blocking forever when no session is being served or the session is
// shutting down.
func (s *Server) push(msg dap.Message) bool {
	st := s.active.Load()
	if st == nil {
		return false
	}
	select {
	case st.events <- msg:
		return true
	case <-st.ctx.Done():
		return false
	}
}

// NewServer constructs a Server dispatching to h.
func NewServer(h Handler) *Server { return &Server{h: h} }

// Serve runs the session to completion: it blocks until conn is closed or
// ctx is canceled, returning the first error the read loop or write loop
// produced (nil when the session ended by cancellation).
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	events := make(chan dap.Message, 16)

	dc := &dispatchContext{
		Context: egCtx,
		c:       events,
	}
	dc.go_ = func(f func(c Context)) bool {
		select {
		case <-egCtx.Done():
			return false
		default:
		}
		eg.Go(func() error {
			f(dc)
			return nil
		})
		return true
	}

	s.active.Store(&serveState{events: events, ctx: egCtx})
	defer s.active.Store(nil)

	eg.Go(func() error { return s.readLoop(egCtx, conn, dc, events) })
	eg.Go(func() error { return s.writeLoop(egCtx, conn, events) })

	err := eg.Wait()
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) readLoop(ctx context.Context, conn Conn, c Context, events chan<- dap.Message) error {
	for {
		msg, err := conn.RecvMsg(ctx)
		if err != nil {
			return err
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		if err := s.dispatchRequest(c, req, events); err != nil {
			return err
		}
	}
}

// dispatchRequest resolves req's HandlerFunc, runs it, and pushes the
// response onto events. A request with no registered handler gets an
// error response rather than tearing down the session: one unsupported
// request from a client must not kill the whole debug session.
func (s *Server) dispatchRequest(c Context, req dap.RequestMessage, events chan<- dap.Message) error {
	ran, resp, err := s.lookup(c, req)
	if !ran {
		resp = errorResponse(req, errNotImplemented)
	} else if err != nil {
		resp = errorResponse(req, err)
	} else {
		stampSuccess(resp, req)
	}
	select {
	case events <- resp:
	case <-c.Done():
		return c.Err()
	}
	return nil
}

// lookup type-switches req to find its HandlerFunc and runs it. ran is
// false when no handler is registered for req's type.
func (s *Server) lookup(c Context, req dap.RequestMessage) (ran bool, resp dap.ResponseMessage, err error) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		if s.h.Initialize == nil {
			return false, nil, nil
		}
		if err := s.handleInitialize(); err != nil {
			return true, nil, err
		}
		return callHandler(c, s.h.Initialize, r)
	case *dap.LaunchRequest:
		return callHandler(c, s.h.Launch, r)
	case *dap.SetBreakpointsRequest:
		return callHandler(c, s.h.SetBreakpoints, r)
	case *dap.ConfigurationDoneRequest:
		return callHandler(c, s.h.ConfigurationDone, r)
	case *dap.DisconnectRequest:
		return callHandler(c, s.h.Disconnect, r)
	case *dap.ContinueRequest:
		return callHandler(c, s.h.Continue, r)
	case *dap.NextRequest:
		return callHandler(c, s.h.Next, r)
	case *dap.StepInRequest:
		return callHandler(c, s.h.StepIn, r)
	case *dap.ThreadsRequest:
		return callHandler(c, s.h.Threads, r)
	case *dap.StackTraceRequest:
		return callHandler(c, s.h.StackTrace, r)
	case *dap.ScopesRequest:
		return callHandler(c, s.h.Scopes, r)
	case *dap.VariablesRequest:
		return callHandler(c, s.h.Variables, r)
	default:
		return false, nil, nil
	}
}

// callHandler is a free function, not a method, because Go methods
// cannot carry their own type parameters.
func callHandler[Req dap.RequestMessage, Resp dap.ResponseMessage](c Context, fn HandlerFunc[Req, Resp], req Req) (bool, dap.ResponseMessage, error) {
	if fn == nil {
		return false, nil, nil
	}
	resp, err := fn.do(c, req)
	return true, resp, err
}

func (s *Server) handleInitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return errAlreadyInitialized
	}
	s.initialized = true
	return nil
}

func (s *Server) writeLoop(ctx context.Context, conn Conn, events <-chan dap.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-events:
			stampSeq(msg, int(s.seq.Add(1)))
			if err := conn.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// stampSuccess fills in the base Response fields a handler never sets
// itself (Type, RequestSeq, Success, Command), the way the teacher's
// dispatch loop finalizes a response before handing it to the write loop.
func stampSuccess(resp dap.ResponseMessage, req dap.RequestMessage) {
	base := resp.GetResponse()
	reqBase := req.GetRequest()
	base.ProtocolMessage.Type = "response"
	base.RequestSeq = reqBase.Seq
	base.Success = true
	base.Command = reqBase.Command
}

func stampSeq(msg dap.Message, seq int) {
	switch m := msg.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = seq
	case dap.EventMessage:
		m.GetEvent().Seq = seq
	}
}

func errorResponse(req dap.RequestMessage, err error) dap.ResponseMessage {
	base := req.GetRequest()
	return &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      base.Seq,
			Success:         false,
			Command:         base.Command,
		},
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{Format: err.Error()},
		},
	}
}
