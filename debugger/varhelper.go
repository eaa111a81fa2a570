// Copyright © 2018 The ELPS authors

package debugger

import (
	"strconv"
	"strings"
)

// NewFrameVariables builds the tree shown for a stack frame: the frame's
// current line and function, followed by the Locals, Directories and
// Arguments collections read from the frame's module.
func NewFrameVariables(reg *VariableRegistry, ids *IDAllocator, name string, supportsVariableType bool, frame *StackFrame) *VariableNode {
	root := NewVariableNode(reg, ids, name, supportsVariableType, WithProvider(func() []VariableEntry {
		return []VariableEntry{
			IntEntry("CurrentLine", frame.Line()),
			StringEntry("Function", frame.Function.Name),
		}
	}))
	root.SetIgnoreEmptyStringEntries(true)

	if frame.Module != nil {
		mod := frame.Module
		names := mod.DefinitionNames()
		locals := NewVariableNode(reg, ids, "Locals", supportsVariableType, WithProvider(func() []VariableEntry {
			return definitionEntries(mod, names, nil)
		}))
		locals.SetValue(strconv.Itoa(len(names)))
		root.AddChild(locals)

		ndirs := 0
		for _, n := range names {
			if isDirectoryName(n) {
				ndirs++
			}
		}
		dirs := NewVariableNode(reg, ids, "Directories", supportsVariableType, WithProvider(func() []VariableEntry {
			return definitionEntries(mod, names, isDirectoryName)
		}))
		dirs.SetValue(strconv.Itoa(ndirs))
		root.AddChild(dirs)
	}

	root.AddChild(NewListVariables(reg, ids, "Arguments", supportsVariableType, frame.Function.Args))
	return root
}

func definitionEntries(mod Module, names []string, keep func(string) bool) []VariableEntry {
	entries := make([]VariableEntry, 0, len(names))
	for _, n := range names {
		if keep != nil && !keep(n) {
			continue
		}
		v, _ := mod.Definition(n)
		entries = append(entries, StringEntry(n, v))
	}
	return entries
}

func isDirectoryName(name string) bool {
	return strings.HasSuffix(name, "_DIR") || strings.HasSuffix(name, "_DIRECTORY")
}

// NewListVariables returns a node listing values as [0], [1], ... in their
// original order, or nil if values is empty.
func NewListVariables(reg *VariableRegistry, ids *IDAllocator, name string, supportsVariableType bool, values []string) *VariableNode {
	if len(values) == 0 {
		return nil
	}
	items := make([]string, len(values))
	copy(items, values)
	n := NewVariableNode(reg, ids, name, supportsVariableType, WithProvider(func() []VariableEntry {
		entries := make([]VariableEntry, len(items))
		for i, v := range items {
			entries[i] = StringEntry("["+strconv.Itoa(i)+"]", v)
		}
		return entries
	}))
	n.SetValue(strconv.Itoa(len(items)))
	n.SetSorted(false)
	return n
}
