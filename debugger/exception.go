// Copyright © 2018 The ELPS authors

package debugger

import (
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/google/go-dap"
)

// ExceptionFilter is the client-facing toggle for one message severity.
type ExceptionFilter struct {
	ID    string
	Label string
}

// RaisedException is the message that most recently stopped execution.
type RaisedException struct {
	ID          string
	Description string
}

var exceptionFilterLabels = map[MessageType]string{
	AuthorWarning:      "Warning (dev)",
	AuthorError:        "Error (dev)",
	FatalError:         "Fatal error",
	InternalError:      "Internal error",
	Message:            "Other messages",
	Warning:            "Warning",
	Log:                "Debug log",
	DeprecationError:   "Deprecation error",
	DeprecationWarning: "Deprecation warning",
}

var defaultExceptionFilters = []MessageType{
	AuthorError,
	FatalError,
	InternalError,
	DeprecationError,
}

// ExceptionManager decides which interpreter messages stop execution and
// holds the last one that did until the client asks for it.
type ExceptionManager struct {
	filters map[MessageType]ExceptionFilter

	mu      sync.Mutex
	enabled *hashset.Set
	raised  *RaisedException
}

// NewExceptionManager returns a manager with the default filters enabled.
func NewExceptionManager() *ExceptionManager {
	m := &ExceptionManager{
		filters: make(map[MessageType]ExceptionFilter, len(exceptionFilterLabels)),
		enabled: hashset.New(),
	}
	for t, label := range exceptionFilterLabels {
		m.filters[t] = ExceptionFilter{ID: t.String(), Label: label}
	}
	for _, t := range defaultExceptionFilters {
		m.enabled.Add(t.String())
	}
	return m
}

// Filters returns the filters advertised in the initialize response, in
// severity order, with the defaults marked.
func (m *ExceptionManager) Filters() []dap.ExceptionBreakpointsFilter {
	out := make([]dap.ExceptionBreakpointsFilter, 0, len(m.filters))
	for t := AuthorWarning; t <= DeprecationWarning; t++ {
		f := m.filters[t]
		out = append(out, dap.ExceptionBreakpointsFilter{
			Filter:  f.ID,
			Label:   f.Label,
			Default: isDefaultFilter(t),
		})
	}
	return out
}

func isDefaultFilter(t MessageType) bool {
	for _, d := range defaultExceptionFilters {
		if d == t {
			return true
		}
	}
	return false
}

// SetFilters replaces the enabled filters with ids.
func (m *ExceptionManager) SetFilters(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled.Clear()
	for _, id := range ids {
		m.enabled.Add(id)
	}
}

// Enabled reports whether messages of type t stop execution.
func (m *ExceptionManager) Enabled(t MessageType) bool {
	f, ok := m.filters[t]
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled.Contains(f.ID)
}

// RaiseIfEnabled records text as the pending exception and returns the
// stopped event to send when messages of type t are enabled. It returns nil
// otherwise. The caller fills in the thread id. A newer exception
// overwrites one that was never read.
func (m *ExceptionManager) RaiseIfEnabled(t MessageType, text string) *dap.StoppedEvent {
	f, ok := m.filters[t]
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled.Contains(f.ID) {
		return nil
	}
	m.raised = &RaisedException{ID: f.ID, Description: text}

	ev := newStoppedEvent("exception", 0)
	ev.Body.Description = "Pause on exception"
	ev.Body.Text = text
	return ev
}

// GetExceptionInfo returns and clears the pending exception.
func (m *ExceptionManager) GetExceptionInfo() (RaisedException, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raised == nil {
		return RaisedException{}, false
	}
	r := *m.raised
	m.raised = nil
	return r, true
}

// ClearAll disables every filter.
func (m *ExceptionManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled.Clear()
}
