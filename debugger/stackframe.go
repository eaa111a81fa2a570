// Copyright © 2018 The ELPS authors

package debugger

// StackFrame is one activation record on the script thread. Frames are
// created when a call begins and dropped when it ends; the owning Thread is
// the only holder.
type StackFrame struct {
	ID       int64
	FileName string
	Module   Module
	Function Function
}

func newStackFrame(ids *IDAllocator, mod Module, file string, fn Function) *StackFrame {
	return &StackFrame{
		ID:       ids.NextFrameID(),
		FileName: file,
		Module:   mod,
		Function: fn,
	}
}

// Line returns the line of the call being executed.
func (f *StackFrame) Line() int64 {
	return f.Function.Line
}
