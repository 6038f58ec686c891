package dap

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
)

// maxValueLen bounds every variable's printed representation (spec §4.3:
// "Value representations MUST be bounded-length strings").
const maxValueLen = 256

// idPool issues the single monotonically increasing counter that mints
// both frame ids and variables_references (spec §3, Identifiers). A
// 64-bit counter is used so it never wraps in practice, per §9's note
// that implementers may substitute one for the 32-bit counter the spec
// describes.
type idPool struct{ next atomic.Int64 }

func (p *idPool) next_() int { return int(p.next.Add(1)) }

// frame is the per-suspension snapshot of one nested step (spec §3).
// Scopes are built lazily: scopesBuilt stays false, and scopes stays nil,
// until the first GetScopes call for this frame's id.
type frame struct {
	id          int
	name        string
	sourcePath  string
	line        int
	ctx         RuntimeContext
	args        []any
	scopesBuilt bool
	scopes      []dap.Scope
}

func (f *frame) stackFrame() dap.StackFrame {
	sf := dap.StackFrame{
		Id:     f.id,
		Name:   f.name,
		Line:   f.line,
		Column: 0,
	}
	if f.sourcePath != "" {
		sf.Source = &dap.Source{
			Name: filepath.Base(f.sourcePath),
			Path: f.sourcePath,
		}
	}
	return sf
}

// buildScopes materializes this frame's two scopes on first call,
// registering their variables_references against snap so a later
// GetVariables resolves them (spec §4.3 point 2).
func buildScopes(f *frame, ids *idPool, snap *snapshot) []dap.Scope {
	if f.scopesBuilt {
		return f.scopes
	}

	argsRef := ids.next_()
	varsRef := ids.next_()
	snap.registerVarRef(argsRef, &argsProducer{args: f.args})
	snap.registerVarRef(varsRef, &localsProducer{ctx: f.ctx})

	f.scopes = []dap.Scope{
		{Name: "Arguments", VariablesReference: argsRef, Expensive: false},
		{Name: "Variables", VariablesReference: varsRef, Expensive: false},
	}
	f.scopesBuilt = true
	return f.scopes
}

// variableProducer materializes a variable list once, lazily, on first
// request (spec §4.3 point 3; the two concrete producers are
// argsProducer and localsProducer, per spec §3).
type variableProducer interface {
	produce() []dap.Variable
}

type argsProducer struct{ args []any }

func (p *argsProducer) produce() []dap.Variable {
	vars := make([]dap.Variable, len(p.args))
	for i, a := range p.args {
		vars[i] = dap.Variable{
			Name:  fmt.Sprintf("arg%d", i),
			Value: reprValue(a),
		}
	}
	return vars
}

type localsProducer struct{ ctx RuntimeContext }

func (p *localsProducer) produce() []dap.Variable {
	ns := safeVariables(p.ctx)
	vars := make([]dap.Variable, 0, len(ns))
	for name, val := range ns {
		vars = append(vars, dap.Variable{Name: name, Value: reprValue(val)})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// safeVariables calls ctx.Variables() defensively: a runtime context whose
// introspection panics MUST NOT take the debugger down with it (spec §7
// Taxonomy #2).
func safeVariables(ctx RuntimeContext) (vars map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			vars = map[string]any{"<error>": fmt.Sprintf("%v", r)}
		}
	}()
	return ctx.Variables()
}

// reprValue renders v as a bounded-length string, substituting an error
// marker if stringifying it panics (spec §4.3, §7 Taxonomy #2).
func reprValue(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<error: %v>", r)
		}
	}()
	// Call Error/String directly: fmt recovers a panic in them itself and
	// prints its own marker, which would bypass the recover above.
	switch x := v.(type) {
	case error:
		return truncate(x.Error())
	case fmt.Stringer:
		return truncate(x.String())
	}
	return truncate(fmt.Sprintf("%v", v))
}

func truncate(s string) string {
	if len(s) <= maxValueLen {
		return s
	}
	return s[:maxValueLen-3] + "..."
}

// snapshot is built on suspend, discarded on resume (spec §3). frames is
// ordered innermost first, matching DAP convention. var_refs/cache back
// GetVariables: a producer runs at most once per snapshot, per spec §4.3
// point 3.
type snapshot struct {
	frames     []*frame
	frameIndex map[int]*frame

	mu      sync.Mutex
	varRefs map[int]variableProducer
	cache   map[int][]dap.Variable
}

func newSnapshot() *snapshot {
	return &snapshot{
		frameIndex: make(map[int]*frame),
		varRefs:    make(map[int]variableProducer),
		cache:      make(map[int][]dap.Variable),
	}
}

func (s *snapshot) registerVarRef(id int, p variableProducer) {
	s.mu.Lock()
	s.varRefs[id] = p
	s.mu.Unlock()
}

// variables returns the materialized list for ref, caching it after the
// first call. ok is false if ref is unknown to this snapshot (a stale
// reference from a prior snapshot, spec §8 S4).
func (s *snapshot) variables(ref int) (vars []dap.Variable, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, found := s.cache[ref]; found {
		return cached, true
	}
	p, found := s.varRefs[ref]
	if !found {
		return nil, false
	}
	vars = p.produce()
	s.cache[ref] = vars
	return vars, true
}
