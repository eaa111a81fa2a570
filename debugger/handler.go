// Copyright © 2018 The ELPS authors

package debugger

import (
	"fmt"

	"github.com/google/go-dap"
	"github.com/luthersystems/scriptdap/debugger/session"
)

// handle registers fn on the session and counts requests by command.
func handle[T dap.RequestMessage](a *Adapter, command string, fn func(req T) (dap.ResponseMessage, error)) {
	counter := a.metrics.Tagged(map[string]string{"command": command}).Counter("requests")
	session.Register(a.session, command, func(req T) (dap.ResponseMessage, error) {
		counter.Inc(1)
		return fn(req)
	})
}

func (a *Adapter) registerHandlers() {
	a.session.OnError(a.onSessionError)

	handle(a, "initialize", a.onInitialize)
	a.session.OnSent("initialize", func() {
		a.send(&dap.InitializedEvent{Event: newEvent("initialized")})
	})
	handle(a, "launch", a.onLaunch)
	handle(a, "configurationDone", a.onConfigurationDone)
	// The script thread starts once the client has seen the response.
	a.session.OnSent("configurationDone", a.configurationDone.Fire)
	handle(a, "setBreakpoints", a.onSetBreakpoints)
	handle(a, "setExceptionBreakpoints", a.onSetExceptionBreakpoints)
	handle(a, "exceptionInfo", a.onExceptionInfo)
	handle(a, "threads", a.onThreads)
	handle(a, "stackTrace", a.onStackTrace)
	handle(a, "scopes", a.onScopes)
	handle(a, "variables", a.onVariables)
	handle(a, "pause", a.onPause)
	handle(a, "continue", a.onContinue)
	handle(a, "next", a.onNext)
	handle(a, "stepIn", a.onStepIn)
	handle(a, "stepOut", a.onStepOut)
	handle(a, "evaluate", a.onEvaluate)
	handle(a, "disconnect", a.onDisconnect)
	a.session.OnSent("disconnect", func() {
		// Ends the session loop once the response is out.
		a.conn.Close() //nolint:errcheck // best-effort cleanup
	})
}

func (a *Adapter) onInitialize(req *dap.InitializeRequest) (dap.ResponseMessage, error) {
	a.supportsVariableType.Store(req.Arguments.SupportsVariableType)

	resp := &InitializeResponse{}
	resp.Body.Capabilities = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
		SupportsExceptionInfoRequest:     true,
		SupportsDelayedStackTraceLoading: true,
		ExceptionBreakpointFilters:       a.exceptions.Filters(),
	}
	resp.Body.Version = a.version
	return resp, nil
}

func (a *Adapter) onLaunch(req *dap.LaunchRequest) (dap.ResponseMessage, error) {
	return &dap.LaunchResponse{}, nil
}

func (a *Adapter) onConfigurationDone(req *dap.ConfigurationDoneRequest) (dap.ResponseMessage, error) {
	return &dap.ConfigurationDoneResponse{}, nil
}

func (a *Adapter) onSetBreakpoints(req *dap.SetBreakpointsRequest) (dap.ResponseMessage, error) {
	path := req.Arguments.Source.Path
	if path == "" {
		path = req.Arguments.Source.Name
	}
	var lines []int64
	if len(req.Arguments.Breakpoints) > 0 {
		for _, bp := range req.Arguments.Breakpoints {
			lines = append(lines, int64(bp.Line))
		}
	} else {
		for _, l := range req.Arguments.Lines {
			lines = append(lines, int64(l))
		}
	}

	resp := &dap.SetBreakpointsResponse{}
	resp.Body.Breakpoints = a.breakpoints.SetBreakpoints(path, lines)
	return resp, nil
}

func (a *Adapter) onSetExceptionBreakpoints(req *dap.SetExceptionBreakpointsRequest) (dap.ResponseMessage, error) {
	a.exceptions.SetFilters(req.Arguments.Filters)
	return &dap.SetExceptionBreakpointsResponse{}, nil
}

func (a *Adapter) onExceptionInfo(req *dap.ExceptionInfoRequest) (dap.ResponseMessage, error) {
	resp := &dap.ExceptionInfoResponse{}
	if ex, ok := a.exceptions.GetExceptionInfo(); ok {
		resp.Body.ExceptionId = ex.ID
		resp.Body.Description = ex.Description
		resp.Body.BreakMode = "always"
	}
	return resp, nil
}

func (a *Adapter) onThreads(req *dap.ThreadsRequest) (dap.ResponseMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	resp := &dap.ThreadsResponse{}
	resp.Body.Threads = []dap.Thread{}
	// The thread is gone during shutdown, after the thread exited event.
	if a.thread != nil {
		resp.Body.Threads = append(resp.Body.Threads, dap.Thread{
			Id:   int(a.thread.ID),
			Name: a.thread.Name,
		})
	}
	return resp, nil
}

func (a *Adapter) onStackTrace(req *dap.StackTraceRequest) (dap.ResponseMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	resp, ok := a.threads.GetThreadStackTraceResponse(req.Arguments)
	if !ok {
		return nil, fmt.Errorf("unknown threadId '%d'", req.Arguments.ThreadId)
	}
	return resp, nil
}

func (a *Adapter) onScopes(req *dap.ScopesRequest) (dap.ResponseMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	resp := &dap.ScopesResponse{}
	resp.Body.Scopes = []dap.Scope{}
	if a.thread != nil {
		resp.Body.Scopes = a.thread.GetScopes(int64(req.Arguments.FrameId), a.supportsVariableType.Load())
	}
	return resp, nil
}

func (a *Adapter) onVariables(req *dap.VariablesRequest) (dap.ResponseMessage, error) {
	a.mu.Lock()
	t := a.thread
	a.mu.Unlock()

	resp := &dap.VariablesResponse{}
	resp.Body.Variables = []dap.Variable{}
	if t != nil {
		resp.Body.Variables = t.GetVariables(int64(req.Arguments.VariablesReference))
	}
	return resp, nil
}

// onPause only raises the flag. The interpreter is running, so there is no
// parked call to release; the stop happens at its next call.
func (a *Adapter) onPause(req *dap.PauseRequest) (dap.ResponseMessage, error) {
	a.steps.requestPause()
	return &dap.PauseResponse{}, nil
}

func (a *Adapter) onContinue(req *dap.ContinueRequest) (dap.ResponseMessage, error) {
	a.continueSem.Notify()
	resp := &dap.ContinueResponse{}
	resp.Body.AllThreadsContinued = true
	return resp, nil
}

func (a *Adapter) onNext(req *dap.NextRequest) (dap.ResponseMessage, error) {
	a.steps.requestNext(a.stackDepth())
	a.continueSem.Notify()
	return &dap.NextResponse{}, nil
}

func (a *Adapter) onStepIn(req *dap.StepInRequest) (dap.ResponseMessage, error) {
	// Stops at the next call whatever its depth: stepped in, stepped over
	// or stepped out.
	a.steps.requestStepIn()
	a.continueSem.Notify()
	return &dap.StepInResponse{}, nil
}

func (a *Adapter) onStepOut(req *dap.StepOutRequest) (dap.ResponseMessage, error) {
	a.steps.requestStepOut(a.stackDepth())
	a.continueSem.Notify()
	return &dap.StepOutResponse{}, nil
}

func (a *Adapter) onEvaluate(req *dap.EvaluateRequest) (dap.ResponseMessage, error) {
	resp := &dap.EvaluateResponse{}
	if req.Arguments.FrameId == 0 {
		return resp, nil
	}
	a.mu.Lock()
	t := a.thread
	a.mu.Unlock()
	if t == nil {
		return resp, nil
	}
	frame, ok := t.Frame(int64(req.Arguments.FrameId))
	if !ok || frame.Module == nil {
		return resp, nil
	}
	if v, ok := frame.Module.Definition(req.Arguments.Expression); ok {
		resp.Body.Result = v
		resp.Body.Type = typeString
	}
	return resp, nil
}

func (a *Adapter) onDisconnect(req *dap.DisconnectRequest) (dap.ResponseMessage, error) {
	a.log.Debug("client disconnected")
	a.cleanup()
	return &dap.DisconnectResponse{}, nil
}

func (a *Adapter) stackDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread == nil {
		return 0
	}
	return a.thread.Depth()
}
