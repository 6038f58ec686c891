package runner

import (
	"context"
	"fmt"

	"github.com/outpost-qa/rfdebug/dap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// step adapts one parsed call into dap.Step. source is already the
// suite's own path, stored once on the Runner rather than per-step.
type step struct {
	source string
	c      call
	args   []any
}

func (s step) Source() string { return s.source }
func (s step) Line() int      { return s.c.line }
func (s step) Name() string   { return s.c.name }
func (s step) Args() []any    { return s.args }

// Runner executes a Suite keyword by keyword, calling into an Engine's
// BeforeStep/AfterStep around each one exactly the way the teacher's own
// runtime interposition would, grounded on dap/thread.go's
// evaluateRefs/errgroup pattern for evaluating a step's inputs
// concurrently before running it.
type Runner struct {
	Engine *dap.Engine
	Lib    Library
	ns     *Namespace
}

// NewRunner constructs a Runner with the default keyword library and an
// empty variable namespace.
func NewRunner(e *dap.Engine) *Runner {
	return &Runner{Engine: e, Lib: DefaultLibrary(), ns: newNamespace()}
}

// Run executes every call in s in order, stopping at the first keyword
// failure. The engine sees BeforeStep/AfterStep around every call,
// including ones that return an error (spec §7 Taxonomy #4: after_step
// must run even when the step raises).
func (r *Runner) Run(ctx context.Context, s *Suite) error {
	for _, c := range s.calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runOne(ctx, s.Path, c); err != nil {
			return fmt.Errorf("runner: %s:%d: %s: %w", s.Path, c.line, c.name, err)
		}
	}
	return nil
}

// runOne resolves c's arguments (concurrently, one goroutine per
// argument, via errgroup — most are trivial but a future Keyword could
// make resolution itself block on an external call), then runs the
// before/keyword/after sequence with a guaranteed AfterStep.
func (r *Runner) runOne(ctx context.Context, source string, c call) error {
	resolved, err := r.resolveArgs(ctx, c.args)
	if err != nil {
		return err
	}

	anyArgs := make([]any, len(resolved))
	for i, a := range resolved {
		anyArgs[i] = a
	}
	st := step{source: source, c: c, args: anyArgs}

	r.Engine.BeforeStep(r.ns, st)
	defer r.Engine.AfterStep(r.ns, st)

	kw, ok := r.Lib.lookup(c.name)
	if !ok {
		return fmt.Errorf("no keyword named %q", c.name)
	}
	result, err := r.invoke(kw, resolved)
	if err != nil {
		return err
	}
	if result != nil {
		r.ns.set("LAST_RESULT", result)
	}
	return nil
}

// invoke calls kw defensively: a keyword panicking must fail the step,
// not crash the runner (mirrors the engine's own defensive posture around
// RuntimeContext.Variables(), spec §7 Taxonomy #2, applied to the one
// other place user-ish code runs inside this process).
func (r *Runner) invoke(kw Keyword, args []string) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("keyword panicked: %v", rec)
		}
	}()
	return kw(r.ns, args)
}

func (r *Runner) resolveArgs(ctx context.Context, args []string) ([]string, error) {
	out := make([]string, len(args))
	eg, _ := errgroup.WithContext(ctx)
	for i, a := range args {
		i, a := i, a
		eg.Go(func() error {
			out[i] = r.ns.resolve(a)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrap(err, "runner: resolving arguments")
	}
	return out, nil
}

// logInvalidation is a small indirection so tests can observe that a
// watcher-driven invalidation happened without depending on logrus output.
var logInvalidation = func(path string) {
	logrus.Debugf("runner: invalidated breakpoints on %s after an on-disk edit", path)
}
