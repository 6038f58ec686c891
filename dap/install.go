package dap

import "sync"

// installer caches the single process-wide Engine, so that instrumenting
// a test runtime more than once (e.g. re-importing the package under
// test, or a runtime that re-applies its own interposition hook on every
// suite run) never constructs a second, disconnected Engine (spec §9
// "Global state").
type installer struct {
	mu        sync.Mutex
	engine    *Engine
	installed bool
}

var globalInstaller installer

// Install returns the process-wide Engine, constructing it and calling
// install exactly once. Later calls, from anywhere in the process, return
// the same Engine without calling install again. Grounded on the Python
// original's patch_execution_context, which caches its single debugger
// implementation as a function attribute the first time it patches the
// runner, and returns the cached instance on every later call.
func Install(install func(e *Engine)) *Engine {
	globalInstaller.mu.Lock()
	defer globalInstaller.mu.Unlock()

	if globalInstaller.installed {
		return globalInstaller.engine
	}
	e := NewEngine()
	install(e)
	globalInstaller.engine = e
	globalInstaller.installed = true
	return e
}
