// Copyright © 2018 The ELPS authors

package debugger

import (
	"sort"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/google/go-dap"
)

// EventSender delivers a protocol message to the client.
type EventSender interface {
	Send(msg dap.Message) error
}

// SourceBreakpoint is a breakpoint requested by the client. Line holds the
// calibrated line once the file is known; Valid is false until then, and
// stays false if calibration finds nothing to stop on.
type SourceBreakpoint struct {
	ID    int64
	Line  int64
	Valid bool
}

// BreakpointManager owns the requested breakpoints per source file and the
// line spans of the invocations in every parsed file.
type BreakpointManager struct {
	events EventSender
	ids    *IDAllocator

	mu            sync.Mutex
	breakpoints   map[string][]*SourceBreakpoint
	functionLines map[string][]FunctionLocation
	pending       *hashset.Set
}

// NewBreakpointManager returns an empty manager that reports late
// verification through events.
func NewBreakpointManager(events EventSender, ids *IDAllocator) *BreakpointManager {
	return &BreakpointManager{
		events:        events,
		ids:           ids,
		breakpoints:   make(map[string][]*SourceBreakpoint),
		functionLines: make(map[string][]FunctionLocation),
		pending:       hashset.New(),
	}
}

// SetBreakpoints replaces every breakpoint of path with one per requested
// line and returns them in request order. Breakpoints in a file that has not
// been parsed yet are kept unverified at the requested line until
// SourceFileLoaded.
func (m *BreakpointManager) SetBreakpoints(path string, lines []int64) []dap.Breakpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	bps := make([]*SourceBreakpoint, 0, len(lines))
	resp := make([]dap.Breakpoint, 0, len(lines))
	_, parsed := m.functionLines[path]
	for _, line := range lines {
		bp := &SourceBreakpoint{ID: m.ids.NextBreakpointID(), Line: line}
		if parsed {
			bp.Line = m.calibrateLocked(path, line)
			bp.Valid = bp.Line > 0
		}
		bps = append(bps, bp)
		resp = append(resp, toDAPBreakpoint(path, bp))
	}
	if !parsed && len(lines) > 0 {
		m.pending.Add(path)
	}
	m.breakpoints[path] = bps
	return resp
}

// SourceFileLoaded records the invocation spans of a freshly parsed file.
// Only the first notification for a path has any effect. If breakpoints were
// waiting on the file they are calibrated and reported with one changed
// event each.
func (m *BreakpointManager) SourceFileLoaded(path string, functions []Function) {
	m.mu.Lock()
	if _, ok := m.functionLines[path]; ok {
		m.mu.Unlock()
		return
	}
	locs := make([]FunctionLocation, 0, len(functions))
	for _, fn := range functions {
		locs = append(locs, FunctionLocation{StartLine: fn.Line, EndLine: fn.EndLine})
	}
	sort.SliceStable(locs, func(i, j int) bool { return locs[i].StartLine < locs[j].StartLine })
	m.functionLines[path] = locs

	if !m.pending.Contains(path) {
		m.mu.Unlock()
		return
	}
	m.pending.Remove(path)
	var changed []dap.Breakpoint
	for _, bp := range m.breakpoints[path] {
		bp.Line = m.calibrateLocked(path, bp.Line)
		bp.Valid = bp.Line > 0
		changed = append(changed, toDAPBreakpoint(path, bp))
	}
	m.mu.Unlock()

	if m.events == nil {
		return
	}
	for _, bp := range changed {
		ev := &dap.BreakpointEvent{Event: newEvent("breakpoint")}
		ev.Body.Reason = "changed"
		ev.Body.Breakpoint = bp
		_ = m.events.Send(ev)
	}
}

// GetBreakpoints returns the ids of the valid breakpoints of path sitting on
// line, in the order they were created.
func (m *BreakpointManager) GetBreakpoints(path string, line int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []int64
	for _, bp := range m.breakpoints[path] {
		if bp.Valid && bp.Line == line {
			hits = append(hits, bp.ID)
		}
	}
	return hits
}

// ClearAll drops every breakpoint. Known file spans are kept.
func (m *BreakpointManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakpoints = make(map[string][]*SourceBreakpoint)
	m.pending.Clear()
}

// FindFunctionStartLine returns the start of the first invocation whose span
// contains line, or 0.
func (m *BreakpointManager) FindFunctionStartLine(path string, line int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, loc := range m.functionLines[path] {
		if loc.StartLine <= line && line <= loc.EndLine {
			return loc.StartLine
		}
	}
	return 0
}

// CalibrateBreakpointLine moves line forward to the next invocation start,
// clamps lines past the last invocation back to its start, and returns 0 for
// a file with no invocations.
func (m *BreakpointManager) CalibrateBreakpointLine(path string, line int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calibrateLocked(path, line)
}

func (m *BreakpointManager) calibrateLocked(path string, line int64) int64 {
	return calibrate(m.functionLines[path], line)
}

// calibrate expects locs sorted by StartLine.
func calibrate(locs []FunctionLocation, line int64) int64 {
	i := sort.Search(len(locs), func(i int) bool { return locs[i].StartLine >= line })
	if i < len(locs) {
		return locs[i].StartLine
	}
	if len(locs) > 0 {
		// Either past the end of the last invocation or inside a multi-line
		// one; both stop at the last invocation.
		return locs[len(locs)-1].StartLine
	}
	return 0
}

func toDAPBreakpoint(path string, bp *SourceBreakpoint) dap.Breakpoint {
	return dap.Breakpoint{
		Id:       int(bp.ID),
		Verified: bp.Valid,
		Line:     int(bp.Line),
		Source:   &dap.Source{Path: path},
	}
}
