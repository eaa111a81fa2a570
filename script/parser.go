// Copyright © 2018 The ELPS authors

// Package script implements the small command language that the debug
// adapter drives.
//
//	file       := (<comment> | <invocation>)*
//	invocation := <ident> '(' (<comment> | <quoted> | <unquoted>)* ')'
//	ident      := /[A-Za-z_][A-Za-z0-9_]*/
//	quoted     := '"' (/[^"\\]/ | '\' .)* '"'
//	unquoted   := /[^\s()"#]+/
//	comment    := '#' /[^\n]*/
//
// An invocation may span several lines. Unquoted arguments that expand to a
// list are split on ';'.
package script

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/luthersystems/scriptdap/debugger"
	parsec "github.com/prataprc/goparsec"
)

// Argument is one argument of an invocation, before variable expansion.
type Argument struct {
	Value  string
	Quoted bool
}

// Invocation is a single command call. Line and EndLine are the lines of the
// command name and of the closing parenthesis.
type Invocation struct {
	Name    string
	Args    []Argument
	Line    int64
	EndLine int64
}

// File is a parsed source file.
type File struct {
	Path        string
	Invocations []Invocation
}

// Functions returns the invocations of f as the debugger sees them.
func (f *File) Functions() []debugger.Function {
	fns := make([]debugger.Function, 0, len(f.Invocations))
	for _, inv := range f.Invocations {
		fns = append(fns, inv.function(nil))
	}
	return fns
}

func (inv Invocation) function(args []string) debugger.Function {
	if args == nil {
		args = make([]string, 0, len(inv.Args))
		for _, a := range inv.Args {
			args = append(args, a.Value)
		}
	}
	return debugger.Function{
		Name:    inv.Name,
		Line:    inv.Line,
		EndLine: inv.EndLine,
		Args:    args,
	}
}

// ParseFile reads and parses the file at path.
func ParseFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}

// Parse parses src. The path is only used to label the result and errors.
func Parse(path string, src []byte) (*File, error) {
	lines := newLineIndex(src)
	f := &File{Path: path}
	s := parsec.NewScanner(src)
	parser := newParsecParser()
	root, s := parser(s)
	for root != nil {
		if inv, ok := toInvocation(root, lines); ok {
			f.Invocations = append(f.Invocations, inv)
		}
		root, s = parser(s)
	}
	_, s = s.SkipWS()
	if !s.Endof() {
		pos := s.GetCursor()
		rest := string(src[pos:])
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if len(rest) > 16 {
			rest = rest[:16] + "..."
		}
		return nil, fmt.Errorf("%s:%d: unexpected source text starting: %s", path, lines.line(pos), rest)
	}
	return f, nil
}

func newParsecParser() parsec.Parser {
	openP := parsec.Atom("(", "OPENP")
	closeP := parsec.Atom(")", "CLOSEP")
	comment := parsec.Token(`#[^\n]*`, "COMMENT")
	ident := parsec.Token(`[A-Za-z_][A-Za-z0-9_]*`, "IDENT")
	quoted := parsec.Token(`"(?:[^"\\]|\\.)*"`, "QUOTED")
	unquoted := parsec.Token(`[^\s()"#]+`, "UNQUOTED")
	arg := parsec.OrdChoice(nil, comment, quoted, unquoted)
	args := parsec.Kleene(nil, arg)
	invocation := parsec.And(nil, ident, openP, args, closeP)
	return parsec.OrdChoice(nil, comment, invocation)
}

// toInvocation converts a parsed top level node. Comments yield false.
func toInvocation(root parsec.ParsecNode, lines lineIndex) (Invocation, bool) {
	terms := flatten(root, nil)
	if len(terms) < 3 || terms[0].Name != "IDENT" {
		return Invocation{}, false
	}
	inv := Invocation{
		Name: terms[0].Value,
		Line: lines.line(terms[0].Position),
	}
	for _, t := range terms[1:] {
		switch t.Name {
		case "QUOTED":
			inv.Args = append(inv.Args, Argument{Value: unquote(t.Value), Quoted: true})
		case "UNQUOTED":
			inv.Args = append(inv.Args, Argument{Value: t.Value})
		case "CLOSEP":
			inv.EndLine = lines.line(t.Position)
		}
	}
	return inv, true
}

// flatten collects the terminals under node in source order, dropping
// comments.
func flatten(node parsec.ParsecNode, out []*parsec.Terminal) []*parsec.Terminal {
	switch n := node.(type) {
	case *parsec.Terminal:
		if n.Name != "COMMENT" {
			out = append(out, n)
		}
	case []parsec.ParsecNode:
		for _, c := range n {
			out = flatten(c, out)
		}
	}
	return out
}

func unquote(s string) string {
	s = s[1 : len(s)-1]
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(src []byte) lineIndex {
	idx := lineIndex{0}
	for i, b := range src {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (idx lineIndex) line(pos int) int64 {
	return int64(sort.Search(len(idx), func(i int) bool { return idx[i] > pos }))
}
