// Copyright © 2018 The ELPS authors

package debugger

import "github.com/google/go-dap"

// InitializeResponse is the initialize response extended with the
// interpreter version.
type InitializeResponse struct {
	dap.Response

	Body InitializeResponseBody `json:"body"`
}

// InitializeResponseBody is the standard capabilities plus a version object.
type InitializeResponseBody struct {
	dap.Capabilities

	Version Version `json:"version"`
}

// newEvent returns an event header. The session assigns the sequence number
// when the event is sent.
func newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           event,
	}
}

func newThreadEvent(reason string, threadID int64) *dap.ThreadEvent {
	ev := &dap.ThreadEvent{Event: newEvent("thread")}
	ev.Body.Reason = reason
	ev.Body.ThreadId = int(threadID)
	return ev
}

func newStoppedEvent(reason string, threadID int64) *dap.StoppedEvent {
	ev := &dap.StoppedEvent{Event: newEvent("stopped")}
	ev.Body.Reason = reason
	ev.Body.ThreadId = int(threadID)
	ev.Body.AllThreadsStopped = true
	return ev
}
