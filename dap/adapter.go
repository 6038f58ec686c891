package dap

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DebugConfig is this debugger's launch configuration, sent by the client
// in the "launch" request's Arguments (spec §6).
type DebugConfig struct {
	SuitePath   string `json:"suitePath"`
	StopOnEntry bool   `json:"stopOnEntry"`
}

type launchResult struct {
	Config DebugConfig
	Err    error
}

// Adapter bridges an Engine to a DAP client: it turns Engine callbacks
// into events and client requests into Engine calls. Unlike the teacher's
// Adapter[C LaunchConfig], this adapter is not generic: the debugger has
// exactly one launch configuration shape, so the extra type parameter
// would only add indirection.
type Adapter struct {
	Engine    *Engine
	SessionID uuid.UUID

	srv *Server

	configuration chan struct{}
	confOnce      sync.Once

	started chan launchResult
}

// NewAdapter constructs an Adapter around a fresh Engine and wires the
// Engine's stop/breakpoint-verified callbacks to DAP events.
func NewAdapter() *Adapter {
	a := &Adapter{
		Engine:        NewEngine(),
		SessionID:     uuid.New(),
		configuration: make(chan struct{}),
		started:       make(chan launchResult, 1),
	}
	a.Engine.OnStopped(a.emitStopped)
	a.Engine.OnBreakpointVerified(a.emitBreakpointVerified)
	a.srv = NewServer(a.handler())
	return a
}

// Serve runs the DAP session over conn until it ends.
func (a *Adapter) Serve(ctx context.Context, conn Conn) error {
	return a.srv.Serve(ctx, conn)
}

// WaitLaunch blocks until the client has sent "launch" and then
// "configurationDone", returning the launch configuration. A caller (the
// CLI entrypoint) uses this to know when to start running the suite.
func (a *Adapter) WaitLaunch(ctx context.Context) (DebugConfig, error) {
	select {
	case <-ctx.Done():
		return DebugConfig{}, ctx.Err()
	case r := <-a.started:
		if r.Err != nil {
			return DebugConfig{}, r.Err
		}
		select {
		case <-ctx.Done():
			return DebugConfig{}, ctx.Err()
		case <-a.configuration:
			return r.Config, nil
		}
	}
}

func (a *Adapter) handler() Handler {
	return Handler{
		Initialize:        a.initialize,
		Launch:            a.launch,
		SetBreakpoints:    a.setBreakpoints,
		ConfigurationDone: a.configurationDone,
		Disconnect:        a.disconnect,
		Continue:          a.continueReq,
		Next:              a.next,
		StepIn:            a.stepIn,
		Threads:           a.threads,
		StackTrace:        a.stackTrace,
		Scopes:            a.scopes,
		Variables:         a.variables,
	}
}

func (a *Adapter) initialize(c Context, req *dap.InitializeRequest, resp *dap.InitializeResponse) error {
	resp.Body.SupportsConfigurationDoneRequest = true
	resp.Body.SupportsConditionalBreakpoints = false
	resp.Body.SupportsFunctionBreakpoints = false
	c.Go(func(c Context) {
		c.C() <- &dap.InitializedEvent{Event: dap.Event{Event: "initialized"}}
	})
	return nil
}

func (a *Adapter) launch(c Context, req *dap.LaunchRequest, resp *dap.LaunchResponse) error {
	var cfg DebugConfig
	err := json.Unmarshal(req.Arguments, &cfg)
	if err != nil {
		err = errors.Wrap(err, "dap: invalid launch arguments")
	}
	select {
	case a.started <- launchResult{Config: cfg, Err: err}:
	default:
	}
	return err
}

func (a *Adapter) setBreakpoints(c Context, req *dap.SetBreakpointsRequest, resp *dap.SetBreakpointsResponse) error {
	var lines []int
	for _, sb := range req.Arguments.Breakpoints {
		lines = append(lines, sb.Line)
	}

	bps := a.Engine.SetBreakpoints(req.Arguments.Source.Path, lines)
	resp.Body.Breakpoints = make([]dap.Breakpoint, len(bps))
	for i, bp := range bps {
		resp.Body.Breakpoints[i] = dap.Breakpoint{
			Id:       bp.ID,
			Verified: bp.Verified,
			Line:     bp.Line,
		}
	}
	return nil
}

// configurationDone signals WaitLaunch's waiter that the client has
// finished its post-launch setup (breakpoints, etc.) and the suite may
// start running. confOnce guards against the client sending this request
// twice, which would otherwise panic closing an already-closed channel.
func (a *Adapter) configurationDone(c Context, req *dap.ConfigurationDoneRequest, resp *dap.ConfigurationDoneResponse) error {
	a.confOnce.Do(func() { close(a.configuration) })
	return nil
}

// disconnect models a client disconnect as an unconditional resume (spec
// §5 Cancellation): a debugger that hangs forever because its client went
// away would never let the suite finish.
func (a *Adapter) disconnect(c Context, req *dap.DisconnectRequest, resp *dap.DisconnectResponse) error {
	a.Engine.Continue()
	return nil
}

func (a *Adapter) continueReq(c Context, req *dap.ContinueRequest, resp *dap.ContinueResponse) error {
	a.Engine.Continue()
	resp.Body.AllThreadsContinued = true
	return nil
}

func (a *Adapter) next(c Context, req *dap.NextRequest, resp *dap.NextResponse) error {
	a.Engine.StepOver()
	return nil
}

func (a *Adapter) stepIn(c Context, req *dap.StepInRequest, resp *dap.StepInResponse) error {
	a.Engine.StepIn()
	return nil
}

func (a *Adapter) threads(c Context, req *dap.ThreadsRequest, resp *dap.ThreadsResponse) error {
	ids := a.Engine.GetThreads()
	resp.Body.Threads = make([]dap.Thread, len(ids))
	for i, id := range ids {
		resp.Body.Threads[i] = dap.Thread{Id: id, Name: "main"}
	}
	return nil
}

func (a *Adapter) stackTrace(c Context, req *dap.StackTraceRequest, resp *dap.StackTraceResponse) error {
	frames := a.Engine.GetFrames(req.Arguments.ThreadId)
	resp.Body.StackFrames = frames
	resp.Body.TotalFrames = len(frames)
	return nil
}

func (a *Adapter) scopes(c Context, req *dap.ScopesRequest, resp *dap.ScopesResponse) error {
	resp.Body.Scopes = a.Engine.GetScopes(req.Arguments.FrameId)
	return nil
}

func (a *Adapter) variables(c Context, req *dap.VariablesRequest, resp *dap.VariablesResponse) error {
	resp.Body.Variables = a.Engine.GetVariables(req.Arguments.VariablesReference)
	return nil
}

// emitStopped pushes a DAP "stopped" event. It's called from the
// execution thread, outside the Engine lock, so it must not block on
// anything the Server's own goroutines could be waiting on.
func (a *Adapter) emitStopped(reason string, threadID int) {
	if !a.srv.push(&dap.StoppedEvent{
		Event: dap.Event{Event: "stopped"},
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: true,
		},
	}) {
		logrus.Warn("dap: dropped stopped event, session not serving")
	}
}

func (a *Adapter) emitBreakpointVerified(path string, line int) {
	if !a.srv.push(&dap.BreakpointEvent{
		Event: dap.Event{Event: "breakpoint"},
		Body: dap.BreakpointEventBody{
			Reason:     "changed",
			Breakpoint: dap.Breakpoint{Line: line, Verified: true},
		},
	}) {
		logrus.Warn("dap: dropped breakpoint event, session not serving")
	}
}
