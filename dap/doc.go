// Package dap implements the core debugger engine for a test-automation
// runtime speaking the Debug Adapter Protocol: breakpoint tracking,
// suspend/resume rendezvous between the execution thread and the DAP
// client, and stack/scope/variable snapshot reconstruction.
//
// The engine (Engine) is transport-agnostic; this package also ships a
// thin DAP transport (Server, Handler, Conn, Adapter) that wires it to a
// github.com/google/go-dap connection, in the same shape as a debug
// adapter binary would.
package dap
