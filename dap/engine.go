package dap

import (
	"sync"

	"github.com/google/go-dap"
)

// mainThreadID is the single, fixed, non-zero thread id the engine
// reports while paused (spec §6: "a single fixed non-zero integer").
// Multi-threaded test execution is not modeled (spec §9, Open Questions).
const mainThreadID = 1

type runState int

const (
	stateRunning runState = iota
	statePaused
)

type stepCmd int

const (
	cmdNone stepCmd = iota
	cmdStepIn
	cmdStepNext
)

// Reason strings attached to a suspension (spec §6).
const (
	ReasonBreakpoint = "breakpoint"
	ReasonStep       = "step"
)

// Engine is the Debugger Facade (C5): the externally visible object that
// receives hook notifications from the test runtime on its execution
// thread (BeforeStep/AfterStep) and command calls from a DAP client on one
// or more command threads (SetBreakpoints, Continue, StepIn, StepOver,
// the Get* queries). It owns the rendezvous (C1), breakpoint table (C2),
// and frame/variable model (C3), and implements the step controller
// state machine (C4).
//
// All exported methods except BeforeStep are non-blocking and return
// promptly (spec §5, §7 propagation rule). BeforeStep is the only
// operation that may block, and only inside rendezvous.wait().
type Engine struct {
	mu sync.Mutex

	bps *breakpointTable
	ids idPool
	rv  *rendezvous
	log stackDepthLog

	runState      runState
	stepCmd       stepCmd
	stepNextDepth int

	snap       *snapshot
	stopReason string

	onStopped            func(reason string, threadID int)
	onBreakpointVerified func(path string, line int)
}

// NewEngine constructs an Engine in the RUNNING state with no
// breakpoints registered.
func NewEngine() *Engine {
	return &Engine{
		bps: newBreakpointTable(),
		rv:  newRendezvous(),
	}
}

// OnStopped registers a callback invoked, without the engine lock held,
// whenever BeforeStep suspends the execution thread, so a transport layer
// can emit a DAP "stopped" event. At most one callback is kept; nil
// disables notification. Must be called before any BeforeStep call.
func (e *Engine) OnStopped(fn func(reason string, threadID int)) {
	e.onStopped = fn
}

// OnBreakpointVerified registers a callback invoked the first time the
// engine observes a step at a registered breakpoint's location (spec
// SPEC_FULL.md §12, a supplemental feature layered on top of C2).
func (e *Engine) OnBreakpointVerified(fn func(path string, line int)) {
	e.onBreakpointVerified = fn
}

// SetBreakpoints replaces all breakpoints for path (C2). path is run
// through the same normalizePath used by BeforeStep (invariant 5).
func (e *Engine) SetBreakpoints(path string, lines []int) []Breakpoint {
	norm := normalizePath(path)
	bps := e.bps.set(norm, lines)

	out := make([]Breakpoint, len(bps))
	for i, bp := range bps {
		out[i] = Breakpoint{ID: bp.id, Line: bp.line, Verified: bp.verified}
	}
	return out
}

// InvalidateBreakpoints resets every breakpoint on path back to
// unverified, without removing it. A suite watcher calls this when it
// detects the underlying file changed on disk (SPEC_FULL.md §12).
func (e *Engine) InvalidateBreakpoints(path string) {
	e.bps.invalidate(normalizePath(path))
}

// BeforeStep is called by the runtime, synchronously, on the execution
// thread, immediately before it runs step within ctx. It pushes onto the
// stack depth log, decides (C4) whether to suspend, and if so blocks
// until a client command resumes it (spec §4.4, §6).
func (e *Engine) BeforeStep(ctx RuntimeContext, step Step) {
	e.mu.Lock()
	e.log.push(stepEntry{ctx: ctx, step: step})
	depth := e.log.depth()

	path, line := step.Source(), step.Line()
	if path == "" || line == 0 {
		// Malformed (unlocatable) step: log updated, never suspend
		// (spec §7 Taxonomy #1).
		e.mu.Unlock()
		return
	}
	norm := normalizePath(path)

	reason, verifiedNow := e.decideSuspend(norm, line, depth)
	e.mu.Unlock()

	if verifiedNow && e.onBreakpointVerified != nil {
		e.onBreakpointVerified(norm, line)
	}
	if reason != "" {
		e.suspend(reason)
	}
}

// decideSuspend implements the C4 suspension decision from spec §4.4.
// Must be called with e.mu held.
func (e *Engine) decideSuspend(normPath string, line, depth int) (reason string, verifiedNow bool) {
	if _, ok := e.bps.isBreak(normPath, line); ok {
		return ReasonBreakpoint, e.bps.markVerified(normPath, line)
	}
	switch e.stepCmd {
	case cmdStepIn:
		return ReasonStep, false
	case cmdStepNext:
		if depth <= e.stepNextDepth {
			return ReasonStep, false
		}
	}
	return "", false
}

// suspend builds the stack snapshot, transitions to PAUSED, notifies any
// registered callback, and blocks the execution thread on the rendezvous
// until a client command releases it. Per spec §5, the engine lock is
// released before parking and reacquired once released.
func (e *Engine) suspend(reason string) {
	e.mu.Lock()
	e.snap = e.buildSnapshot()
	e.runState = statePaused
	e.stopReason = reason
	onStopped := e.onStopped
	e.mu.Unlock()

	if onStopped != nil {
		onStopped(reason, mainThreadID)
	}

	e.rv.wait()

	e.mu.Lock()
	if e.stepCmd == cmdStepNext {
		// The depth immediately after resume is the depth of the step
		// being stepped over; a later before_step at depth <= this
		// triggers STEP (spec §4.4, §9 Open Questions: pinned post-resume).
		e.stepNextDepth = e.log.depth()
	}
	e.snap = nil
	e.mu.Unlock()
}

// buildSnapshot walks the stack depth log outermost-to-innermost,
// allocating a frame id for each entry, then reverses the result so frame
// 0 is innermost, matching DAP convention (spec §4.3 point 1). Must be
// called with e.mu held.
func (e *Engine) buildSnapshot() *snapshot {
	s := newSnapshot()

	frames := make([]*frame, 0, e.log.depth())
	for _, entry := range e.log.entries {
		path := entry.step.Source()
		if path != "" {
			path = normalizePath(path)
		}
		f := &frame{
			id:         e.ids.next_(),
			name:       entry.step.Name(),
			sourcePath: path,
			line:       entry.step.Line(),
			ctx:        entry.ctx,
			args:       entry.step.Args(),
		}
		s.frameIndex[f.id] = f
		frames = append(frames, f)
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	s.frames = frames
	return s
}

// AfterStep is called by the runtime immediately after step finishes,
// including when it raised; the interposition shim MUST guarantee this
// call happens even on failure (spec §6, §7 Taxonomy #4).
func (e *Engine) AfterStep(ctx RuntimeContext, step Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.pop()
}

// Continue resumes execution and clears any pending step command: the
// thread suspends again only when it reaches a registered breakpoint.
func (e *Engine) Continue() {
	e.mu.Lock()
	e.stepCmd = cmdNone
	e.runState = stateRunning
	e.mu.Unlock()
	e.rv.proceed()
}

// StepIn arranges for the very next before_step call, at any depth, to
// suspend.
func (e *Engine) StepIn() {
	e.mu.Lock()
	e.stepCmd = cmdStepIn
	e.runState = stateRunning
	e.mu.Unlock()
	e.rv.proceed()
}

// StepOver arranges for the engine to suspend again only once the
// currently-suspended step (and anything it calls) has finished, per the
// depth-based rule in spec §4.4.
func (e *Engine) StepOver() {
	e.mu.Lock()
	e.stepCmd = cmdStepNext
	e.runState = stateRunning
	e.mu.Unlock()
	e.rv.proceed()
}

// StopReason returns the reason attached to the last suspension.
func (e *Engine) StopReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopReason
}

// GetThreads reports the single synthetic thread while paused, and an
// empty slice otherwise (spec §4.5: "issued while RUNNING MUST return
// empty collections without error").
func (e *Engine) GetThreads() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runState != statePaused {
		return nil
	}
	return []int{mainThreadID}
}

// GetFrames returns the current snapshot's frames (innermost first) if
// threadID is the paused thread, else an empty slice.
func (e *Engine) GetFrames(threadID int) []dap.StackFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runState != statePaused || threadID != mainThreadID || e.snap == nil {
		return nil
	}
	out := make([]dap.StackFrame, len(e.snap.frames))
	for i, f := range e.snap.frames {
		out[i] = f.stackFrame()
	}
	return out
}

// GetScopes returns frameID's scopes, building them on first call, or nil
// if frameID is unknown to the current snapshot (spec §4.5: "null if
// unknown").
func (e *Engine) GetScopes(frameID int) []dap.Scope {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runState != statePaused || e.snap == nil {
		return nil
	}
	f, ok := e.snap.frameIndex[frameID]
	if !ok {
		return nil
	}
	return buildScopes(f, &e.ids, e.snap)
}

// GetVariables returns the materialized children of ref, or nil if ref
// does not resolve in the current snapshot — including a stale reference
// left over from a prior suspension (spec §8 S4).
func (e *Engine) GetVariables(ref int) []dap.Variable {
	e.mu.Lock()
	snap := e.snap
	paused := e.runState == statePaused
	e.mu.Unlock()

	if !paused || snap == nil {
		return nil
	}
	vars, ok := snap.variables(ref)
	if !ok {
		return nil
	}
	return vars
}
