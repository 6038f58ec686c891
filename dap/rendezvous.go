package dap

import "sync"

// rendezvous is the one-shot wait/proceed primitive coupling the execution
// thread to the command thread (C1). It is a single-slot semaphore rather
// than a condition variable: proceed() called before the matching wait()
// leaves the slot filled, so the next wait() returns immediately instead
// of missing the wakeup (spec §9, grounded on the Python original's
// BusyWait and generalized from the teacher's buffered
// "paused chan stepType" handoff in its thread type).
type rendezvous struct {
	ch chan struct{}

	mu     sync.Mutex
	before []func()
}

func newRendezvous() *rendezvous {
	return &rendezvous{ch: make(chan struct{}, 1)}
}

// onBeforeWait registers a callback run on the waiting goroutine
// immediately before it parks. Instrumentation hook for observing the
// exact moment a suspension takes effect (spec §4.1); nothing in this
// repository registers one.
func (r *rendezvous) onBeforeWait(fn func()) {
	r.mu.Lock()
	r.before = append(r.before, fn)
	r.mu.Unlock()
}

// wait blocks until proceed has been called at least once since the
// previous wait returned.
func (r *rendezvous) wait() {
	r.mu.Lock()
	hooks := append([]func(){}, r.before...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	<-r.ch
}

// proceed releases exactly one waiter. If none is currently parked, the
// primitive stays armed so the next wait() call returns without blocking.
func (r *rendezvous) proceed() {
	select {
	case r.ch <- struct{}{}:
	default:
	}
}
