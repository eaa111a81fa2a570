// Copyright © 2018 The ELPS authors

package debugger

import (
	"context"

	"github.com/google/go-dap"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// The methods in this file are called by the interpreter, on the
// interpreter goroutine.

// OnFileParsedSuccessfully records the invocations of a parsed file so that
// breakpoints in it can be placed.
func (a *Adapter) OnFileParsedSuccessfully(path string, functions []Function) {
	a.breakpoints.SourceFileLoaded(path, functions)
}

// OnBeginFileParse pushes a frame standing for the whole file while it is
// being evaluated.
func (a *Adapter) OnBeginFileParse(mod Module, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread == nil {
		return
	}
	a.thread.PushFrame(mod, path, Function{Name: path})
}

// OnEndFileParse pops the frame pushed by OnBeginFileParse.
func (a *Adapter) OnEndFileParse() {
	a.popFrame()
}

// OnBeginFunctionCall pushes a frame for fn and parks the interpreter if a
// breakpoint, step or pause request is satisfied at it. The load call of a
// file, on line 0, never stops.
func (a *Adapter) OnBeginFunctionCall(mod Module, path string, fn Function) {
	a.mu.Lock()
	if a.thread == nil {
		a.mu.Unlock()
		return
	}
	a.thread.PushFrame(mod, path, fn)
	if fn.Line == 0 {
		a.mu.Unlock()
		return
	}
	threadID := a.thread.ID
	depth := a.thread.Depth()
	hits := a.breakpoints.GetBreakpoints(path, fn.Line)
	a.mu.Unlock()

	var ev *dap.StoppedEvent
	if len(hits) > 0 {
		ev = newStoppedEvent("breakpoint", threadID)
		for _, id := range hits {
			ev.Body.HitBreakpointIds = append(ev.Body.HitBreakpointIds, int(id))
		}
	}
	if a.steps.stepSatisfied(depth) {
		ev = newStoppedEvent("step", threadID)
	}
	if a.steps.pauseRequested() {
		ev = newStoppedEvent("pause", threadID)
	}
	if ev == nil {
		return
	}
	a.steps.clear()
	a.stop(ev, path, fn)
}

// OnEndFunctionCall pops the frame pushed by OnBeginFunctionCall.
func (a *Adapter) OnEndFunctionCall() {
	a.popFrame()
}

// OnMessageOutput parks the interpreter if messages of type t are enabled
// as exceptions.
func (a *Adapter) OnMessageOutput(t MessageType, text string) {
	ev := a.exceptions.RaiseIfEnabled(t, text)
	if ev == nil {
		return
	}
	a.mu.Lock()
	if a.thread != nil {
		ev.Body.ThreadId = int(a.thread.ID)
	}
	a.mu.Unlock()
	a.stop(ev, "", Function{})
}

func (a *Adapter) popFrame() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread == nil {
		return
	}
	a.thread.PopFrame()
}

// stop sends ev and blocks until the client resumes or goes away. The span
// covers the time spent stopped.
func (a *Adapter) stop(ev *dap.StoppedEvent, path string, fn Function) {
	if !a.active.Load() {
		return
	}
	reason := ev.Body.Reason
	a.metrics.Tagged(map[string]string{"reason": reason}).Counter("stops").Inc(1)

	attrs := []attribute.KeyValue{attribute.String("debugger.stop.reason", reason)}
	if path != "" {
		attrs = append(attrs,
			semconv.CodeFilepath(path),
			semconv.CodeLineNumber(int(fn.Line)),
			semconv.CodeFunction(fn.Name),
		)
	}
	_, span := a.tracer.Start(context.Background(), "debugger.stopped", trace.WithAttributes(attrs...))
	defer span.End()

	a.log.WithField("reason", reason).Debug("stopped")
	a.send(ev)
	_ = a.continueSem.Wait(context.Background())
}
