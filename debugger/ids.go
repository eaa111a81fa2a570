// Copyright © 2018 The ELPS authors

package debugger

import "sync/atomic"

// IDAllocator hands out identifiers for stack frames, threads, variable
// nodes and breakpoints. Each id space is a separate monotonic counter that
// starts at 1, so zero never names a live object (DAP reserves a zero
// variablesReference for "no children"). Ids are never reused.
//
// All methods are safe for concurrent use.
type IDAllocator struct {
	frames      atomic.Int64
	threads     atomic.Int64
	variables   atomic.Int64
	breakpoints atomic.Int64
}

// NewIDAllocator returns an allocator with every counter at zero.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// processIDs is used by components that are not given an allocator, which
// keeps ids unique across every adapter in the process.
var processIDs = NewIDAllocator()

// DefaultIDAllocator returns the process-wide allocator.
func DefaultIDAllocator() *IDAllocator {
	return processIDs
}

// NextFrameID returns a fresh stack frame id.
func (a *IDAllocator) NextFrameID() int64 {
	return a.frames.Add(1)
}

// NextThreadID returns a fresh thread id.
func (a *IDAllocator) NextThreadID() int64 {
	return a.threads.Add(1)
}

// NextVariableID returns a fresh variables reference.
func (a *IDAllocator) NextVariableID() int64 {
	return a.variables.Add(1)
}

// NextBreakpointID returns a fresh breakpoint id.
func (a *IDAllocator) NextBreakpointID() int64 {
	return a.breakpoints.Add(1)
}

// LastVariableID returns the most recently allocated variables reference, or
// zero if none has been allocated. Tests use it to inspect allocation.
func (a *IDAllocator) LastVariableID() int64 {
	return a.variables.Load()
}

// LastFrameID returns the most recently allocated frame id.
func (a *IDAllocator) LastFrameID() int64 {
	return a.frames.Load()
}
