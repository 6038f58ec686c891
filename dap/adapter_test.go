package dap_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/go-dap"
	rfdap "github.com/outpost-qa/rfdebug/dap"
	"github.com/outpost-qa/rfdebug/dap/daptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This file exercises the transport layer end to end, so it lives in the
// external dap_test package: daptest already imports dap, and dap's own
// test binary cannot also import daptest without a cycle.

// stubStep is a minimal dap.Step implementation for driving the Engine
// directly from an integration test, standing in for a real runner.Runner.
type stubStep struct {
	source string
	line   int
	name   string
}

func (s stubStep) Source() string { return s.source }
func (s stubStep) Line() int      { return s.line }
func (s stubStep) Name() string   { return s.name }
func (s stubStep) Args() []any    { return nil }

type stubCtx struct {
	vars map[string]any
}

func (c stubCtx) Variables() map[string]any { return c.vars }

// pipePair returns two Conns backed by connected io.Pipes, one for the
// server side and one for the client side, the way the teacher's
// NewTestAdapter wires an in-process DAP session for tests.
func pipePair() (server rfdap.Conn, client rfdap.Conn) {
	sr, cw := io.Pipe()
	cr, sw := io.Pipe()
	return rfdap.NewConn(sr, sw), rfdap.NewConn(cr, cw)
}

func TestAdapterEndToEndSession(t *testing.T) {
	serverConn, clientConn := pipePair()

	a := rfdap.NewAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Serve(ctx, serverConn) }()

	c := daptest.NewClient(daptest.LogConn(t, "client", clientConn))
	defer c.Close()

	initDone := make(chan struct{})
	c.RegisterEvent("initialized", func(dap.EventMessage) { close(initDone) })

	initResp := <-c.Do(&dap.InitializeRequest{Request: dap.Request{Command: "initialize"}})
	require.NotNil(t, initResp)
	require.True(t, initResp.GetResponse().Success)

	select {
	case <-initDone:
	case <-time.After(2 * time.Second):
		t.Fatal("never received an initialized event")
	}

	args, err := json.Marshal(rfdap.DebugConfig{SuitePath: "suite.robot"})
	require.NoError(t, err)
	launchResp := <-c.Do(&dap.LaunchRequest{Request: dap.Request{Command: "launch"}, Arguments: args})
	require.True(t, launchResp.GetResponse().Success)

	sbReq := &dap.SetBreakpointsRequest{
		Request: dap.Request{Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "/t/suite.robot"},
			Breakpoints: []dap.SourceBreakpoint{{Line: 3}},
		},
	}
	sbResp := (<-c.Do(sbReq)).(*dap.SetBreakpointsResponse)
	require.Len(t, sbResp.Body.Breakpoints, 1)
	assert.Equal(t, 3, sbResp.Body.Breakpoints[0].Line)
	assert.False(t, sbResp.Body.Breakpoints[0].Verified)

	cdResp := <-c.Do(&dap.ConfigurationDoneRequest{Request: dap.Request{Command: "configurationDone"}})
	require.True(t, cdResp.GetResponse().Success)

	cfg, err := a.WaitLaunch(ctx)
	require.NoError(t, err)
	require.Equal(t, "suite.robot", cfg.SuitePath)

	stoppedEvent := make(chan *dap.StoppedEvent, 1)
	c.RegisterEvent("stopped", func(e dap.EventMessage) { stoppedEvent <- e.(*dap.StoppedEvent) })
	verifiedEvent := make(chan *dap.BreakpointEvent, 1)
	c.RegisterEvent("breakpoint", func(e dap.EventMessage) { verifiedEvent <- e.(*dap.BreakpointEvent) })

	runtimeDone := make(chan struct{})
	go func() {
		defer close(runtimeDone)
		sctx := stubCtx{vars: map[string]any{"x": 1}}
		step := stubStep{source: "/t/suite.robot", line: 3, name: "Log"}
		a.Engine.BeforeStep(sctx, step)
		a.Engine.AfterStep(sctx, step)
	}()

	select {
	case ev := <-verifiedEvent:
		require.True(t, ev.Body.Breakpoint.Verified)
	case <-time.After(2 * time.Second):
		t.Fatal("never received a breakpoint verified event")
	}

	select {
	case ev := <-stoppedEvent:
		require.Equal(t, "breakpoint", ev.Body.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("never received a stopped event")
	}

	ttResp := (<-c.Do(&dap.ThreadsRequest{Request: dap.Request{Command: "threads"}})).(*dap.ThreadsResponse)
	require.Len(t, ttResp.Body.Threads, 1)

	const mainThreadID = 1
	stResp := (<-c.Do(&dap.StackTraceRequest{
		Request:   dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: mainThreadID},
	})).(*dap.StackTraceResponse)
	require.Len(t, stResp.Body.StackFrames, 1)
	require.Equal(t, "Log", stResp.Body.StackFrames[0].Name)

	scResp := (<-c.Do(&dap.ScopesRequest{
		Request:   dap.Request{Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: stResp.Body.StackFrames[0].Id},
	})).(*dap.ScopesResponse)
	require.Len(t, scResp.Body.Scopes, 2)

	varResp := (<-c.Do(&dap.VariablesRequest{
		Request:   dap.Request{Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: scResp.Body.Scopes[1].VariablesReference},
	})).(*dap.VariablesResponse)
	require.Len(t, varResp.Body.Variables, 1)
	require.Equal(t, "x", varResp.Body.Variables[0].Name)

	contResp := <-c.Do(&dap.ContinueRequest{Request: dap.Request{Command: "continue"}})
	require.True(t, contResp.GetResponse().Success)

	select {
	case <-runtimeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("step never resumed after continue")
	}

	cancel()
	<-serveErr
}
