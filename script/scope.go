// Copyright © 2018 The ELPS authors

package script

import (
	"sort"
	"sync"

	"github.com/luthersystems/scriptdap/debugger"
)

var _ debugger.Module = (*Scope)(nil)

// Scope holds the variables visible to the code running in it. A function
// call gets a copy of its caller's scope; PARENT_SCOPE writes go to the
// caller. The debugger reads a scope from the session goroutine while the
// interpreter writes it, so access is locked.
type Scope struct {
	parent *Scope

	mu   sync.RWMutex
	vars map[string]string
}

// NewScope returns an empty top level scope.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]string)}
}

// Child returns a scope starting with a copy of s's variables.
func (s *Scope) Child() *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &Scope{parent: s, vars: make(map[string]string, len(s.vars))}
	for k, v := range s.vars {
		c.vars[k] = v
	}
	return c
}

// Parent returns the scope s was created from, or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Set binds name to value.
func (s *Scope) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Unset removes name.
func (s *Scope) Unset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Definition implements debugger.Module.
func (s *Scope) Definition(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Get returns the value of name, or "" if it is not set.
func (s *Scope) Get(name string) string {
	v, _ := s.Definition(name)
	return v
}

// DefinitionNames implements debugger.Module. Names are sorted.
func (s *Scope) DefinitionNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
