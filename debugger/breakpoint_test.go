// Copyright © 2018 The ELPS authors

package debugger

import (
	"sync"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender collects every message it is asked to send.
type recordingSender struct {
	mu   sync.Mutex
	msgs []dap.Message
}

func (r *recordingSender) Send(msg dap.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) breakpointEvents(t *testing.T) []*dap.BreakpointEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var evs []*dap.BreakpointEvent
	for _, m := range r.msgs {
		ev, ok := m.(*dap.BreakpointEvent)
		require.True(t, ok, "expected BreakpointEvent, got %T", m)
		evs = append(evs, ev)
	}
	return evs
}

var twoInvocations = []Function{
	{Name: "a", Line: 2, EndLine: 2},
	{Name: "b", Line: 4, EndLine: 5},
}

func breakpointLines(bps []dap.Breakpoint) []int {
	lines := make([]int, len(bps))
	for i, bp := range bps {
		lines[i] = bp.Line
	}
	return lines
}

func TestBreakpointManager_PendingUntilLoaded(t *testing.T) {
	t.Parallel()
	events := &recordingSender{}
	m := NewBreakpointManager(events, NewIDAllocator())

	bps := m.SetBreakpoints("/x.script", []int64{1, 3, 5, 6})
	require.Len(t, bps, 4)
	for i, bp := range bps {
		assert.False(t, bp.Verified, "breakpoint %d", i)
		assert.Equal(t, "/x.script", bp.Source.Path)
	}
	assert.Equal(t, []int{1, 3, 5, 6}, breakpointLines(bps))
	assert.Empty(t, m.GetBreakpoints("/x.script", 1))

	m.SourceFileLoaded("/x.script", twoInvocations)

	evs := events.breakpointEvents(t)
	require.Len(t, evs, 4)
	var changed []dap.Breakpoint
	for _, ev := range evs {
		assert.Equal(t, "breakpoint", ev.Event.Event)
		assert.Equal(t, "changed", ev.Body.Reason)
		assert.True(t, ev.Body.Breakpoint.Verified)
		changed = append(changed, ev.Body.Breakpoint)
	}
	assert.Equal(t, []int{2, 4, 4, 4}, breakpointLines(changed))
	for i := range bps {
		assert.Equal(t, bps[i].Id, changed[i].Id)
	}

	assert.Equal(t, []int64{int64(bps[0].Id)}, m.GetBreakpoints("/x.script", 2))
	assert.Equal(t,
		[]int64{int64(bps[1].Id), int64(bps[2].Id), int64(bps[3].Id)},
		m.GetBreakpoints("/x.script", 4))

	// A second load of the same file is ignored.
	m.SourceFileLoaded("/x.script", []Function{{Name: "c", Line: 9, EndLine: 9}})
	assert.Len(t, events.breakpointEvents(t), 4)
	assert.Equal(t, int64(2), m.CalibrateBreakpointLine("/x.script", 1))
}

func TestBreakpointManager_LoadedFileVerifiesImmediately(t *testing.T) {
	t.Parallel()
	events := &recordingSender{}
	m := NewBreakpointManager(events, NewIDAllocator())
	m.SourceFileLoaded("/x.script", twoInvocations)

	bps := m.SetBreakpoints("/x.script", []int64{1, 3, 5, 6})
	assert.Equal(t, []int{2, 4, 4, 4}, breakpointLines(bps))
	for _, bp := range bps {
		assert.True(t, bp.Verified)
	}
	assert.Empty(t, events.breakpointEvents(t))
}

func TestBreakpointManager_UnorderedFunctions(t *testing.T) {
	t.Parallel()
	m := NewBreakpointManager(nil, NewIDAllocator())
	m.SourceFileLoaded("/x.script", []Function{
		{Name: "c", Line: 9, EndLine: 9},
		{Name: "a", Line: 2, EndLine: 2},
		{Name: "b", Line: 4, EndLine: 5},
	})

	bps := m.SetBreakpoints("/x.script", []int64{1, 3, 6, 20})
	assert.Equal(t, []int{2, 4, 9, 9}, breakpointLines(bps))
}

func TestBreakpointManager_ReplacesPerFile(t *testing.T) {
	t.Parallel()
	m := NewBreakpointManager(nil, NewIDAllocator())
	m.SourceFileLoaded("/x.script", twoInvocations)
	m.SourceFileLoaded("/y.script", twoInvocations)

	first := m.SetBreakpoints("/x.script", []int64{2})
	m.SetBreakpoints("/y.script", []int64{4})
	second := m.SetBreakpoints("/x.script", []int64{4})

	assert.Empty(t, m.GetBreakpoints("/x.script", 2))
	assert.Equal(t, []int64{int64(second[0].Id)}, m.GetBreakpoints("/x.script", 4))
	assert.NotEqual(t, first[0].Id, second[0].Id)
	assert.Len(t, m.GetBreakpoints("/y.script", 4), 1)

	assert.Empty(t, m.SetBreakpoints("/x.script", nil))
	assert.Empty(t, m.GetBreakpoints("/x.script", 4))
}

func TestBreakpointManager_EmptyFileInvalidates(t *testing.T) {
	t.Parallel()
	m := NewBreakpointManager(nil, NewIDAllocator())
	m.SourceFileLoaded("/empty.script", nil)

	bps := m.SetBreakpoints("/empty.script", []int64{3})
	require.Len(t, bps, 1)
	assert.False(t, bps[0].Verified)
	assert.Zero(t, bps[0].Line)
	assert.Empty(t, m.GetBreakpoints("/empty.script", 0))
}

func TestBreakpointManager_ClearAll(t *testing.T) {
	t.Parallel()
	events := &recordingSender{}
	m := NewBreakpointManager(events, NewIDAllocator())
	m.SourceFileLoaded("/x.script", twoInvocations)
	m.SetBreakpoints("/x.script", []int64{2})
	m.SetBreakpoints("/later.script", []int64{1})

	m.ClearAll()
	assert.Empty(t, m.GetBreakpoints("/x.script", 2))

	// Nothing is pending any more, so loading the file reports nothing.
	m.SourceFileLoaded("/later.script", twoInvocations)
	assert.Empty(t, events.breakpointEvents(t))

	// File spans survive.
	assert.Equal(t, int64(4), m.FindFunctionStartLine("/x.script", 5))
}

func TestBreakpointManager_FindFunctionStartLine(t *testing.T) {
	t.Parallel()
	m := NewBreakpointManager(nil, NewIDAllocator())
	m.SourceFileLoaded("/x.script", twoInvocations)

	assert.Equal(t, int64(2), m.FindFunctionStartLine("/x.script", 2))
	assert.Equal(t, int64(4), m.FindFunctionStartLine("/x.script", 4))
	assert.Equal(t, int64(4), m.FindFunctionStartLine("/x.script", 5))
	assert.Zero(t, m.FindFunctionStartLine("/x.script", 3))
	assert.Zero(t, m.FindFunctionStartLine("/unknown.script", 2))
}

func TestCalibrate(t *testing.T) {
	t.Parallel()
	locs := []FunctionLocation{{StartLine: 2, EndLine: 2}, {StartLine: 4, EndLine: 5}}
	tests := []struct {
		line int64
		want int64
	}{
		{1, 2},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 4},
		{100, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calibrate(locs, tt.line), "line %d", tt.line)
	}
	assert.Zero(t, calibrate(nil, 1))
}
