package dap

// Step describes one keyword invocation the test runtime is about to
// execute. The runtime interposition layer supplies this on every
// BeforeStep/AfterStep call (spec §6, §3's StepEntry.step).
//
// Source and Line report the zero value ("" and 0) for a pseudo-step that
// has no location of its own (for example a suite-level setup marker);
// the engine treats such a step as unlocatable and never suspends on it
// (spec §4.4, §7 Taxonomy #1).
type Step interface {
	Source() string
	Line() int
	Name() string
	Args() []any
}

// RuntimeContext exposes the live variable namespace backing a step, as it
// exists at the moment the step is about to run. Implementations are
// consulted lazily, only when a client actually asks for the Variables
// scope of a paused frame (spec §4.3 point 3, §9 "Variable materialization").
type RuntimeContext interface {
	Variables() map[string]any
}
