package dap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests implement the literal scenarios S1-S6 and invariants
// P1, P4 and P5, each exercised directly against the Engine facade.

func TestScenarioS1BreakpointHit(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	e.SetBreakpoints("/t/a.robot", []int{7})

	done := runStep(e, testStep{source: "/t/a.robot", line: 7, name: "Log", args: []any{"hi"}})
	waitStopped(t, stopped)

	assert.Equal(t, ReasonBreakpoint, e.StopReason())
	frames := e.GetFrames(mainThreadID)
	require.Len(t, frames, 1)
	assert.Equal(t, 7, frames[0].Line)
	assert.Equal(t, "Log", frames[0].Name)
	require.NotNil(t, frames[0].Source)
	assert.Equal(t, "/t/a.robot", frames[0].Source.Path)

	e.Continue()
	<-done
	assert.Equal(t, 0, e.log.depth())
}

func TestScenarioS2StepInThroughNestedCall(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	e.SetBreakpoints("/t/a.robot", []int{1})

	outer := testStep{source: "/t/a.robot", line: 1, name: "Outer"}
	inner := testStep{source: "/t/a.robot", line: 2, name: "Inner"}
	ctx := testCtx{}

	outerDone := make(chan struct{})
	go func() {
		defer close(outerDone)
		e.BeforeStep(ctx, outer) // suspends on the breakpoint
		// Outer's body, now resumed with a pending step_in, calls Inner.
		e.BeforeStep(ctx, inner) // suspends again, reason "step"
		e.AfterStep(ctx, inner)
		e.AfterStep(ctx, outer)
	}()
	waitStopped(t, stopped) // Outer hits the breakpoint

	e.StepIn()
	waitStopped(t, stopped) // Inner suspends next

	assert.Equal(t, ReasonStep, e.StopReason())
	frames := e.GetFrames(mainThreadID)
	require.Len(t, frames, 2)
	assert.Equal(t, "Inner", frames[0].Name, "innermost frame first")
	assert.Equal(t, "Outer", frames[1].Name)

	e.Continue()
	<-outerDone
}

func TestScenarioS3StepOverAcrossNestedCall(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	e.SetBreakpoints("/t/a.robot", []int{1})

	x := testStep{source: "/t/a.robot", line: 1, name: "X"}
	y := testStep{source: "/t/a.robot", line: 2, name: "Y"}
	ctx := testCtx{}

	xDone := make(chan struct{})
	go func() {
		defer close(xDone)
		e.BeforeStep(ctx, x) // suspends on the breakpoint
		// X's body, now resumed with step_next_depth := 1, calls Y.
		e.BeforeStep(ctx, y) // depth 2 > 1: must not suspend
		e.AfterStep(ctx, y)
		e.AfterStep(ctx, x)
	}()
	waitStopped(t, stopped)
	e.StepOver()
	<-xDone // Y never suspended, so X's whole body ran to completion

	zDone := runStep(e, testStep{source: "/t/a.robot", line: 3, name: "Z"})
	waitStopped(t, stopped)
	assert.Equal(t, ReasonStep, e.StopReason())
	e.Continue()
	<-zDone
}

func TestScenarioS4StaleReference(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	e.SetBreakpoints("/t/a.robot", []int{7})

	done1 := runStep(e, testStep{source: "/t/a.robot", line: 7, name: "Log"})
	waitStopped(t, stopped)
	frames := e.GetFrames(mainThreadID)
	scopes := e.GetScopes(frames[0].Id)
	staleRef := scopes[0].VariablesReference
	e.Continue()
	<-done1

	done2 := runStep(e, testStep{source: "/t/a.robot", line: 7, name: "Log"})
	waitStopped(t, stopped)
	assert.Empty(t, e.GetVariables(staleRef))
	e.Continue()
	<-done2
}

func TestScenarioS5ConcurrentBreakpointEdit(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	e.SetBreakpoints("/t/a.robot", []int{7})

	done1 := runStep(e, testStep{source: "/t/a.robot", line: 7, name: "Log"})
	waitStopped(t, stopped)

	e.SetBreakpoints("/t/a.robot", nil)
	e.Continue()
	<-done1

	done2 := runStep(e, testStep{source: "/t/a.robot", line: 7, name: "Log"})
	select {
	case <-done2:
	case <-time.After(2 * time.Second):
		t.Fatal("a removed breakpoint must not suspend the next hit")
	}
}

func TestScenarioS6MalformedStep(t *testing.T) {
	e := NewEngine()
	done := runStep(e, testStep{source: "", line: 0, name: "Setup"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a malformed step must never suspend")
	}
	assert.Equal(t, 0, e.log.depth())
}

func TestP1PausedIffSnapshotExists(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	assert.False(t, e.runState == statePaused)

	e.SetBreakpoints("/t/a.robot", []int{1})
	done := runStep(e, testStep{source: "/t/a.robot", line: 1, name: "X"})
	waitStopped(t, stopped)

	e.mu.Lock()
	paused := e.runState == statePaused
	hasSnap := e.snap != nil
	e.mu.Unlock()
	assert.Equal(t, paused, hasSnap)

	e.Continue()
	<-done

	e.mu.Lock()
	paused = e.runState == statePaused
	hasSnap = e.snap != nil
	e.mu.Unlock()
	assert.Equal(t, paused, hasSnap)
	assert.False(t, paused)
}

func TestP4FrameIDsNeverCollideAcrossSnapshots(t *testing.T) {
	e := NewEngine()
	stopped := newStoppedSignal(e)
	e.SetBreakpoints("/t/a.robot", []int{1})

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		done := runStep(e, testStep{source: "/t/a.robot", line: 1, name: "X"})
		waitStopped(t, stopped)
		for _, f := range e.GetFrames(mainThreadID) {
			assert.False(t, seen[f.Id], "frame id %d reused across snapshots", f.Id)
			seen[f.Id] = true
		}
		e.Continue()
		<-done
	}
}

func TestP5QueriesWhileRunningReturnEmpty(t *testing.T) {
	e := NewEngine()
	assert.Empty(t, e.GetThreads())
	assert.Empty(t, e.GetFrames(mainThreadID))
	assert.Empty(t, e.GetScopes(1))
	assert.Empty(t, e.GetVariables(1))
}
