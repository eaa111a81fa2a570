// Copyright © 2018 The ELPS authors

package debugger

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/google/go-dap"
	"github.com/muesli/reflow/truncate"
)

// maxArgDisplayWidth bounds each argument value rendered into a frame name.
const maxArgDisplayWidth = 48

// Thread is the script execution thread as seen by the client. It owns the
// stack of frames and, per frame, the scopes and variable trees built for
// it. Only the interpreter goroutine pushes and pops frames; the session
// goroutine reads.
type Thread struct {
	ID   int64
	Name string

	ids      *IDAllocator
	registry *VariableRegistry

	mu             sync.Mutex
	frames         *arraystack.Stack
	frameMap       map[int64]*StackFrame
	frameScopes    map[int64][]dap.Scope
	frameVariables map[int64][]*VariableNode
}

func newThread(ids *IDAllocator, name string) *Thread {
	return &Thread{
		ID:             ids.NextThreadID(),
		Name:           name,
		ids:            ids,
		registry:       NewVariableRegistry(),
		frames:         arraystack.New(),
		frameMap:       make(map[int64]*StackFrame),
		frameScopes:    make(map[int64][]dap.Scope),
		frameVariables: make(map[int64][]*VariableNode),
	}
}

// PushFrame pushes a frame for fn executing in file against mod.
func (t *Thread) PushFrame(mod Module, file string, fn Function) *StackFrame {
	frame := newStackFrame(t.ids, mod, file, fn)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames.Push(frame)
	t.frameMap[frame.ID] = frame
	return frame
}

// PopFrame removes the top frame along with the scopes and variables that
// were built for it. It is a no-op on an empty stack.
func (t *Thread) PopFrame() {
	t.mu.Lock()
	v, ok := t.frames.Pop()
	if !ok {
		t.mu.Unlock()
		return
	}
	frame := v.(*StackFrame)
	delete(t.frameMap, frame.ID)
	delete(t.frameScopes, frame.ID)
	nodes := t.frameVariables[frame.ID]
	delete(t.frameVariables, frame.ID)
	t.mu.Unlock()

	for _, n := range nodes {
		n.Release()
	}
}

// Depth returns the number of frames on the stack.
func (t *Thread) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames.Size()
}

// Frame returns the live frame with the given id.
func (t *Thread) Frame(id int64) (*StackFrame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.frameMap[id]
	return f, ok
}

// Registry returns the registry answering variables requests for this
// thread.
func (t *Thread) Registry() *VariableRegistry {
	return t.registry
}

// GetStackTrace renders the frames most recent first. The second result is
// the total number of frames before paging by StartFrame and Levels.
func (t *Thread) GetStackTrace(args dap.StackTraceArguments) ([]dap.StackFrame, int) {
	t.mu.Lock()
	values := t.frames.Values() // LIFO: most recent first
	t.mu.Unlock()

	frames := make([]dap.StackFrame, 0, len(values))
	for _, v := range values {
		f := v.(*StackFrame)
		frames = append(frames, dap.StackFrame{
			Id:     int(f.ID),
			Name:   frameName(f, args.Format),
			Line:   int(f.Line()),
			Column: 1,
			Source: &dap.Source{
				Name: filepath.Base(f.FileName),
				Path: f.FileName,
			},
		})
	}
	total := len(frames)

	start := args.StartFrame
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if args.Levels > 0 && start+args.Levels < end {
		end = start + args.Levels
	}
	return frames[start:end], total
}

func frameName(f *StackFrame, format *dap.StackFrameFormat) string {
	name := f.Function.Name
	if format == nil {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	if format.Parameters {
		sb.WriteString("(")
		if format.ParameterValues {
			for i, arg := range f.Function.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(truncate.StringWithTail(arg, maxArgDisplayWidth, "..."))
			}
		}
		sb.WriteString(")")
	}
	if format.Line {
		sb.WriteString(" Line: ")
		sb.WriteString(strconv.FormatInt(f.Line(), 10))
	}
	return sb.String()
}

// GetScopes returns the scopes of a frame, building the Locals tree the
// first time it is asked for. An unknown frame has no scopes.
func (t *Thread) GetScopes(frameID int64, supportsVariableType bool) []dap.Scope {
	t.mu.Lock()
	defer t.mu.Unlock()
	if scopes, ok := t.frameScopes[frameID]; ok {
		return scopes
	}
	frame, ok := t.frameMap[frameID]
	if !ok {
		return []dap.Scope{}
	}
	locals := NewFrameVariables(t.registry, t.ids, "Locals", supportsVariableType, frame)
	t.frameVariables[frameID] = append(t.frameVariables[frameID], locals)
	scopes := []dap.Scope{{
		Name:               "Locals",
		PresentationHint:   "locals",
		VariablesReference: int(locals.ID),
	}}
	t.frameScopes[frameID] = scopes
	return scopes
}

// GetVariables answers a variables request against this thread's registry.
func (t *Thread) GetVariables(ref int64) []dap.Variable {
	return t.registry.HandleVariablesRequest(ref)
}

// release drops every frame and the variable trees built for them.
func (t *Thread) release() {
	for t.Depth() > 0 {
		t.PopFrame()
	}
}

// ThreadManager owns the live threads. The interpreter is single threaded,
// so in practice at most one thread is alive at a time.
type ThreadManager struct {
	ids *IDAllocator

	mu      sync.Mutex
	threads map[int64]*Thread
}

// NewThreadManager returns a manager with no threads.
func NewThreadManager(ids *IDAllocator) *ThreadManager {
	return &ThreadManager{
		ids:     ids,
		threads: make(map[int64]*Thread),
	}
}

// StartThread creates and registers a new thread.
func (m *ThreadManager) StartThread(name string) *Thread {
	t := newThread(m.ids, name)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[t.ID] = t
	return t
}

// EndThread unregisters t and releases its frames.
func (m *ThreadManager) EndThread(t *Thread) {
	if t == nil {
		return
	}
	m.mu.Lock()
	delete(m.threads, t.ID)
	m.mu.Unlock()
	t.release()
}

// Thread returns the live thread with the given id.
func (m *ThreadManager) Thread(id int64) (*Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	return t, ok
}

// GetThreadStackTraceResponse builds the stack trace response for the
// thread named in args. It reports false if no such thread is alive.
func (m *ThreadManager) GetThreadStackTraceResponse(args dap.StackTraceArguments) (*dap.StackTraceResponse, bool) {
	t, ok := m.Thread(int64(args.ThreadId))
	if !ok {
		return nil, false
	}
	frames, total := t.GetStackTrace(args)
	resp := &dap.StackTraceResponse{}
	resp.Body.StackFrames = frames
	resp.Body.TotalFrames = total
	return resp, true
}
