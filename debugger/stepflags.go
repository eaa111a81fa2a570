// Copyright © 2018 The ELPS authors

package debugger

import "sync/atomic"

// stepFlags holds the outstanding step request. The session goroutine writes
// it and the interpreter goroutine polls it on every call, so it is lock
// free. A nil depth means no such request is outstanding.
type stepFlags struct {
	nextFrom     atomic.Pointer[int]
	stepOutDepth atomic.Pointer[int]
	stepIn       atomic.Bool
	pause        atomic.Bool
}

func (f *stepFlags) clear() {
	f.nextFrom.Store(nil)
	f.stepOutDepth.Store(nil)
	f.stepIn.Store(false)
	f.pause.Store(false)
}

func (f *stepFlags) requestNext(depth int) {
	f.nextFrom.Store(&depth)
}

func (f *stepFlags) requestStepOut(depth int) {
	d := depth - 1
	f.stepOutDepth.Store(&d)
}

func (f *stepFlags) requestStepIn() {
	f.stepIn.Store(true)
}

func (f *stepFlags) requestPause() {
	f.pause.Store(true)
}

// stepSatisfied reports whether a next, step-in or step-out request is
// satisfied at the given stack depth.
func (f *stepFlags) stepSatisfied(depth int) bool {
	if d := f.nextFrom.Load(); d != nil && depth <= *d {
		return true
	}
	if f.stepIn.Load() {
		return true
	}
	if d := f.stepOutDepth.Load(); d != nil && depth <= *d {
		return true
	}
	return false
}

func (f *stepFlags) pauseRequested() bool {
	return f.pause.Load()
}
