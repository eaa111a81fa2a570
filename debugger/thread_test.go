// Copyright © 2018 The ELPS authors

package debugger

import (
	"strings"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushCalls(th *Thread, mod Module) {
	th.PushFrame(mod, "/src/main.script", Function{Name: "/src/main.script"})
	th.PushFrame(mod, "/src/main.script", Function{Name: "greet", Line: 3, Args: []string{"world", "2"}})
	th.PushFrame(mod, "/src/main.script", Function{Name: "message", Line: 8, Args: []string{"hello world"}})
}

func TestThread_StackTraceMostRecentFirst(t *testing.T) {
	t.Parallel()
	m := NewThreadManager(NewIDAllocator())
	th := m.StartThread(ScriptThreadName)
	pushCalls(th, mapModule{})
	assert.Equal(t, 3, th.Depth())

	frames, total := th.GetStackTrace(dap.StackTraceArguments{ThreadId: int(th.ID)})
	assert.Equal(t, 3, total)
	require.Len(t, frames, 3)
	assert.Equal(t, "message", frames[0].Name)
	assert.Equal(t, 8, frames[0].Line)
	assert.Equal(t, 1, frames[0].Column)
	assert.Equal(t, "main.script", frames[0].Source.Name)
	assert.Equal(t, "/src/main.script", frames[0].Source.Path)
	assert.Equal(t, "/src/main.script", frames[2].Name)
	assert.Zero(t, frames[2].Line)
	assert.Greater(t, frames[0].Id, frames[1].Id)
}

func TestThread_StackTracePaging(t *testing.T) {
	t.Parallel()
	th := NewThreadManager(NewIDAllocator()).StartThread(ScriptThreadName)
	pushCalls(th, mapModule{})

	frames, total := th.GetStackTrace(dap.StackTraceArguments{StartFrame: 1, Levels: 1})
	assert.Equal(t, 3, total)
	require.Len(t, frames, 1)
	assert.Equal(t, "greet", frames[0].Name)

	frames, _ = th.GetStackTrace(dap.StackTraceArguments{StartFrame: 10})
	assert.Empty(t, frames)
}

func TestThread_FrameNameFormat(t *testing.T) {
	t.Parallel()
	th := NewThreadManager(NewIDAllocator()).StartThread(ScriptThreadName)
	long := strings.Repeat("x", 100)
	th.PushFrame(nil, "/f", Function{Name: "call", Line: 5, Args: []string{"a", long}})

	name := func(format *dap.StackFrameFormat) string {
		frames, _ := th.GetStackTrace(dap.StackTraceArguments{Format: format})
		require.Len(t, frames, 1)
		return frames[0].Name
	}
	assert.Equal(t, "call", name(nil))
	assert.Equal(t, "call()", name(&dap.StackFrameFormat{Parameters: true}))
	assert.Equal(t, "call Line: 5", name(&dap.StackFrameFormat{Line: true}))

	full := name(&dap.StackFrameFormat{Parameters: true, ParameterValues: true, Line: true})
	assert.True(t, strings.HasPrefix(full, "call(a, xxx"), full)
	assert.True(t, strings.HasSuffix(full, "...) Line: 5"), full)
	assert.Less(t, len(full), len(long))
}

func TestThread_ScopesCachedAndReleasedOnPop(t *testing.T) {
	t.Parallel()
	ids := NewIDAllocator()
	th := NewThreadManager(ids).StartThread(ScriptThreadName)
	th.PushFrame(mapModule{}, "/f", Function{Name: "/f"})
	top := th.PushFrame(mapModule{"A": "1"}, "/f", Function{Name: "set", Line: 1, Args: []string{"A", "1"}})

	scopes := th.GetScopes(top.ID, true)
	require.Len(t, scopes, 1)
	assert.Equal(t, "Locals", scopes[0].Name)
	assert.Equal(t, "locals", scopes[0].PresentationHint)
	assert.Equal(t, scopes, th.GetScopes(top.ID, true))

	ref := int64(scopes[0].VariablesReference)
	vars := th.GetVariables(ref)
	assert.Equal(t, []string{"Arguments", "CurrentLine", "Directories", "Function", "Locals"}, variableNames(vars))
	assert.Positive(t, th.Registry().Len())

	th.PopFrame()
	_, ok := th.Frame(top.ID)
	assert.False(t, ok)
	assert.Empty(t, th.GetVariables(ref))
	assert.Zero(t, th.Registry().Len())
	assert.Empty(t, th.GetScopes(top.ID, true))
}

func TestThread_PopEmpty(t *testing.T) {
	t.Parallel()
	th := NewThreadManager(NewIDAllocator()).StartThread(ScriptThreadName)
	th.PopFrame()
	assert.Zero(t, th.Depth())
}

func TestThreadManager_Lifecycle(t *testing.T) {
	t.Parallel()
	m := NewThreadManager(NewIDAllocator())
	th := m.StartThread(ScriptThreadName)
	pushCalls(th, mapModule{})

	resp, ok := m.GetThreadStackTraceResponse(dap.StackTraceArguments{ThreadId: int(th.ID)})
	require.True(t, ok)
	assert.Equal(t, 3, resp.Body.TotalFrames)
	assert.Len(t, resp.Body.StackFrames, 3)

	_, ok = m.GetThreadStackTraceResponse(dap.StackTraceArguments{ThreadId: int(th.ID) + 1})
	assert.False(t, ok)

	m.EndThread(th)
	m.EndThread(nil)
	assert.Zero(t, th.Depth())
	_, ok = m.Thread(th.ID)
	assert.False(t, ok)
}
