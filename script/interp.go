// Copyright © 2018 The ELPS authors

package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/luthersystems/scriptdap/debugger"
	"github.com/sirupsen/logrus"
)

// Variables set by the interpreter for the file being evaluated.
const (
	VarCurrentListFile = "SCRIPT_CURRENT_LIST_FILE"
	VarCurrentListDir  = "SCRIPT_CURRENT_LIST_DIR"
	VarSourceDir       = "SCRIPT_SOURCE_DIR"
)

const (
	maxCallDepth    = 100
	maxExpandPasses = 32
)

// ErrFailed is returned when the script ran to the end but reported errors
// along the way.
var ErrFailed = errors.New("script: errors occurred")

// Error is a fatal error raised at a source location.
type Error struct {
	Path string
	Line int64
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// Hooks receives the interpreter's lifecycle notifications. A
// *debugger.Adapter implements it.
type Hooks interface {
	OnFileParsedSuccessfully(path string, functions []debugger.Function)
	OnBeginFileParse(mod debugger.Module, path string)
	OnEndFileParse()
	OnBeginFunctionCall(mod debugger.Module, path string, fn debugger.Function)
	OnEndFunctionCall()
	OnMessageOutput(t debugger.MessageType, text string)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) OnFileParsedSuccessfully(string, []debugger.Function)           {}
func (NopHooks) OnBeginFileParse(debugger.Module, string)                       {}
func (NopHooks) OnEndFileParse()                                                {}
func (NopHooks) OnBeginFunctionCall(debugger.Module, string, debugger.Function) {}
func (NopHooks) OnEndFunctionCall()                                             {}
func (NopHooks) OnMessageOutput(debugger.MessageType, string)                   {}

type flow int

const (
	flowNext flow = iota
	flowReturn
)

type userFunction struct {
	name   string
	params []string
	body   []Invocation
	path   string
}

// Interpreter evaluates script files. It is not safe for concurrent use.
type Interpreter struct {
	hooks Hooks
	out   io.Writer
	log   *logrus.Entry

	functions map[string]*userFunction
	depth     int
	failed    bool
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithHooks sets the receiver of lifecycle notifications.
func WithHooks(h Hooks) Option {
	return func(in *Interpreter) {
		in.hooks = h
	}
}

// WithOutput sets where messages are printed. The default is os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) {
		in.out = w
	}
}

// WithLogger sets the logger used for tracing execution.
func WithLogger(log *logrus.Logger) Option {
	return func(in *Interpreter) {
		in.log = logrus.NewEntry(log)
	}
}

// New returns an interpreter.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		hooks:     NopHooks{},
		out:       os.Stderr,
		functions: make(map[string]*userFunction),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.log == nil {
		in.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return in
}

// RunFile evaluates the file at path in a fresh top level scope.
func (in *Interpreter) RunFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	return in.Run(abs, src)
}

// Run evaluates src as the file at path in a fresh top level scope.
func (in *Interpreter) Run(path string, src []byte) error {
	scope := NewScope()
	scope.Set(VarSourceDir, filepath.Dir(path))
	if err := in.evalFile(scope, path, src); err != nil {
		return err
	}
	if in.failed {
		return ErrFailed
	}
	return nil
}

func (in *Interpreter) evalFile(scope *Scope, path string, src []byte) error {
	f, err := Parse(path, src)
	if err != nil {
		in.hooks.OnMessageOutput(debugger.FatalError, err.Error())
		fmt.Fprintf(in.out, "%s: %v\n", debugger.FatalError, err)
		return err
	}
	in.hooks.OnFileParsedSuccessfully(path, f.Functions())

	in.hooks.OnBeginFileParse(scope, path)
	defer in.hooks.OnEndFileParse()

	prevFile, prevDir := scope.Get(VarCurrentListFile), scope.Get(VarCurrentListDir)
	scope.Set(VarCurrentListFile, path)
	scope.Set(VarCurrentListDir, filepath.Dir(path))
	defer func() {
		scope.Set(VarCurrentListFile, prevFile)
		scope.Set(VarCurrentListDir, prevDir)
	}()

	_, err = in.execBlock(scope, path, f.Invocations)
	return err
}

func (in *Interpreter) execBlock(scope *Scope, path string, invs []Invocation) (flow, error) {
	for i := 0; i < len(invs); i++ {
		inv := invs[i]
		if strings.EqualFold(inv.Name, "function") {
			end, err := in.define(scope, path, invs, i)
			if err != nil {
				return flowNext, err
			}
			i = end
			continue
		}
		fl, err := in.call(scope, path, inv)
		if err != nil || fl == flowReturn {
			return fl, err
		}
	}
	return flowNext, nil
}

// define records the function starting at invs[start] and returns the
// index of its endfunction.
func (in *Interpreter) define(scope *Scope, path string, invs []Invocation, start int) (int, error) {
	inv := invs[start]
	args := in.expandArgs(scope, inv.Args)
	in.hooks.OnBeginFunctionCall(scope, path, inv.function(args))
	defer in.hooks.OnEndFunctionCall()

	nest := 0
	end := -1
	for j := start + 1; j < len(invs) && end < 0; j++ {
		switch strings.ToLower(invs[j].Name) {
		case "function":
			nest++
		case "endfunction":
			if nest == 0 {
				end = j
			}
			nest--
		}
	}
	if end < 0 {
		return 0, in.fatal(path, inv, "function missing endfunction")
	}
	if len(args) == 0 {
		return 0, in.fatal(path, inv, "function called with incorrect number of arguments")
	}
	in.functions[strings.ToLower(args[0])] = &userFunction{
		name:   args[0],
		params: args[1:],
		body:   invs[start+1 : end],
		path:   path,
	}
	return end, nil
}

func (in *Interpreter) call(scope *Scope, path string, inv Invocation) (flow, error) {
	args := in.expandArgs(scope, inv.Args)
	in.hooks.OnBeginFunctionCall(scope, path, inv.function(args))
	defer in.hooks.OnEndFunctionCall()

	in.log.WithFields(logrus.Fields{
		"file":    path,
		"line":    inv.Line,
		"command": inv.Name,
	}).Trace("call")

	switch strings.ToLower(inv.Name) {
	case "set":
		return flowNext, in.set(scope, path, inv, args)
	case "unset":
		return flowNext, in.unset(scope, path, inv, args)
	case "message":
		return flowNext, in.message(path, inv, args)
	case "return":
		return flowReturn, nil
	case "include":
		return flowNext, in.include(scope, path, inv, args)
	case "endfunction":
		return flowNext, in.fatal(path, inv, "endfunction without function")
	}
	fn, ok := in.functions[strings.ToLower(inv.Name)]
	if !ok {
		return flowNext, in.fatal(path, inv, fmt.Sprintf("Unknown command %q", inv.Name))
	}
	return flowNext, in.invoke(scope, path, inv, fn, args)
}

func (in *Interpreter) invoke(scope *Scope, path string, inv Invocation, fn *userFunction, args []string) error {
	if len(args) < len(fn.params) {
		return in.fatal(path, inv, fmt.Sprintf("function %s expects %d arguments, got %d", fn.name, len(fn.params), len(args)))
	}
	if in.depth >= maxCallDepth {
		return in.fatal(path, inv, "maximum nesting depth exceeded")
	}
	in.depth++
	defer func() { in.depth-- }()

	child := scope.Child()
	for i, p := range fn.params {
		child.Set(p, args[i])
	}
	child.Set("ARGC", strconv.Itoa(len(args)))
	child.Set("ARGV", strings.Join(args, ";"))
	child.Set("ARGN", strings.Join(args[len(fn.params):], ";"))
	for i, a := range args {
		child.Set("ARGV"+strconv.Itoa(i), a)
	}
	_, err := in.execBlock(child, fn.path, fn.body)
	return err
}

func (in *Interpreter) set(scope *Scope, path string, inv Invocation, args []string) error {
	if len(args) == 0 {
		return in.authorError(path, inv, "set called with incorrect number of arguments")
	}
	target := scope
	if len(args) > 1 && args[len(args)-1] == "PARENT_SCOPE" {
		args = args[:len(args)-1]
		target = scope.Parent()
		if target == nil {
			return in.authorError(path, inv, "set given PARENT_SCOPE but there is no parent scope")
		}
	}
	if len(args) == 1 {
		target.Unset(args[0])
		return nil
	}
	target.Set(args[0], strings.Join(args[1:], ";"))
	return nil
}

func (in *Interpreter) unset(scope *Scope, path string, inv Invocation, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return in.authorError(path, inv, "unset called with incorrect number of arguments")
	}
	target := scope
	if len(args) == 2 {
		if args[1] != "PARENT_SCOPE" {
			return in.authorError(path, inv, fmt.Sprintf("unset given unknown argument %q", args[1]))
		}
		if target = scope.Parent(); target == nil {
			return nil
		}
	}
	target.Unset(args[0])
	return nil
}

type messageMode struct {
	typ    debugger.MessageType
	prefix string
	fatal  bool
	failed bool
}

var messageModes = map[string]messageMode{
	"FATAL_ERROR":    {typ: debugger.FatalError, prefix: "Error", fatal: true},
	"SEND_ERROR":     {typ: debugger.AuthorError, prefix: "Error", failed: true},
	"WARNING":        {typ: debugger.Warning, prefix: "Warning"},
	"AUTHOR_WARNING": {typ: debugger.AuthorWarning, prefix: "Warning (dev)"},
	"DEPRECATION":    {typ: debugger.DeprecationWarning, prefix: "Deprecation Warning"},
	"NOTICE":         {typ: debugger.Message},
	"STATUS":         {typ: debugger.Message, prefix: "--"},
	"VERBOSE":        {typ: debugger.Log, prefix: "--"},
	"DEBUG":          {typ: debugger.Log, prefix: "--"},
	"TRACE":          {typ: debugger.Log, prefix: "--"},
}

func (in *Interpreter) message(path string, inv Invocation, args []string) error {
	mode := messageModes["NOTICE"]
	if len(args) > 0 {
		if m, ok := messageModes[args[0]]; ok {
			mode = m
			args = args[1:]
		}
	}
	text := strings.Join(args, "")

	switch {
	case mode.prefix == "--":
		fmt.Fprintf(in.out, "-- %s\n", text)
	case mode.prefix != "":
		fmt.Fprintf(in.out, "%s at %s:%d:\n  %s\n", mode.prefix, path, inv.Line, text)
	default:
		fmt.Fprintln(in.out, text)
	}
	in.hooks.OnMessageOutput(mode.typ, text)

	if mode.failed {
		in.failed = true
	}
	if mode.fatal {
		return &Error{Path: path, Line: inv.Line, Msg: text}
	}
	return nil
}

func (in *Interpreter) include(scope *Scope, path string, inv Invocation, args []string) error {
	if len(args) == 0 {
		return in.authorError(path, inv, "include called with wrong number of arguments")
	}
	p := args[0]
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(path), p)
	}
	src, err := os.ReadFile(p)
	if err != nil {
		return in.fatal(path, inv, fmt.Sprintf("include could not find requested file: %s", args[0]))
	}
	if in.depth >= maxCallDepth {
		return in.fatal(path, inv, "maximum nesting depth exceeded")
	}
	in.depth++
	defer func() { in.depth-- }()
	return in.evalFile(scope, p, src)
}

// authorError reports a recoverable error; execution continues but the run
// fails.
func (in *Interpreter) authorError(path string, inv Invocation, msg string) error {
	fmt.Fprintf(in.out, "Error at %s:%d (%s):\n  %s\n", path, inv.Line, inv.Name, msg)
	in.hooks.OnMessageOutput(debugger.AuthorError, msg)
	in.failed = true
	return nil
}

// fatal reports an error that stops the run.
func (in *Interpreter) fatal(path string, inv Invocation, msg string) error {
	fmt.Fprintf(in.out, "Error at %s:%d (%s):\n  %s\n", path, inv.Line, inv.Name, msg)
	in.hooks.OnMessageOutput(debugger.FatalError, msg)
	return &Error{Path: path, Line: inv.Line, Msg: msg}
}

var varRef = regexp.MustCompile(`\$(ENV)?\{([A-Za-z0-9_./+-]*)\}`)

// expand substitutes ${NAME} and $ENV{NAME} references, innermost first.
func (in *Interpreter) expand(scope *Scope, s string) string {
	for i := 0; i < maxExpandPasses && strings.Contains(s, "{"); i++ {
		next := varRef.ReplaceAllStringFunc(s, func(m string) string {
			sub := varRef.FindStringSubmatch(m)
			if sub[1] == "ENV" {
				return os.Getenv(sub[2])
			}
			return scope.Get(sub[2])
		})
		if next == s {
			break
		}
		s = next
	}
	return s
}

func (in *Interpreter) expandArgs(scope *Scope, args []Argument) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		v := in.expand(scope, a.Value)
		if a.Quoted {
			out = append(out, v)
			continue
		}
		for _, item := range strings.Split(v, ";") {
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
