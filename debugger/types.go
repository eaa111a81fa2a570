// Copyright © 2018 The ELPS authors

package debugger

import "fmt"

// Function is a single command invocation reported by the interpreter. A
// Line of zero marks the pseudo call made when a file starts loading.
type Function struct {
	Name    string
	Line    int64
	EndLine int64
	Args    []string
}

// FunctionLocation is the line span of one invocation in a parsed file.
type FunctionLocation struct {
	StartLine int64
	EndLine   int64
}

// Module is the interpreter state a stack frame executes against. The
// debugger only reads it, from the session goroutine, while the interpreter
// may be running, so implementations must be safe for concurrent reads.
type Module interface {
	// Definition returns the value bound to name and whether it is bound.
	Definition(name string) (string, bool)
	// DefinitionNames returns every name visible from the module.
	DefinitionNames() []string
}

// MessageType is the severity of a message the interpreter emits.
type MessageType int

const (
	AuthorWarning MessageType = iota
	AuthorError
	FatalError
	InternalError
	Message
	Warning
	Log
	DeprecationError
	DeprecationWarning
)

var messageTypeStrings = []string{
	AuthorWarning:      "AUTHOR_WARNING",
	AuthorError:        "AUTHOR_ERROR",
	FatalError:         "FATAL_ERROR",
	InternalError:      "INTERNAL_ERROR",
	Message:            "MESSAGE",
	Warning:            "WARNING",
	Log:                "LOG",
	DeprecationError:   "DEPRECATION_ERROR",
	DeprecationWarning: "DEPRECATION_WARNING",
}

func (t MessageType) String() string {
	if t < 0 || int(t) >= len(messageTypeStrings) {
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
	return messageTypeStrings[t]
}

// Version identifies the interpreter build in the initialize response.
type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
	Full  string `json:"full"`
}
