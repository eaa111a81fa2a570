// Copyright © 2018 The ELPS authors

package debugger

import (
	"sort"
	"strconv"
	"sync"

	"github.com/google/go-dap"
)

// Variable types reported to clients that declared supportsVariableType.
const (
	typeString     = "string"
	typeBool       = "bool"
	typeInt        = "int"
	typeCollection = "collection"
)

// VariableEntry is a leaf name/value pair produced by a node's provider.
type VariableEntry struct {
	Name  string
	Value string
	Type  string
}

// StringEntry returns a string-typed entry.
func StringEntry(name, value string) VariableEntry {
	return VariableEntry{Name: name, Value: value, Type: typeString}
}

// BoolEntry returns a bool-typed entry rendered as TRUE or FALSE.
func BoolEntry(name string, value bool) VariableEntry {
	v := "FALSE"
	if value {
		v = "TRUE"
	}
	return VariableEntry{Name: name, Value: v, Type: typeBool}
}

// IntEntry returns an int-typed entry.
func IntEntry(name string, value int64) VariableEntry {
	return VariableEntry{Name: name, Value: strconv.FormatInt(value, 10), Type: typeInt}
}

// VariablesFunc lazily produces the leaf entries of a node.
type VariablesFunc func() []VariableEntry

// VariableRegistry maps variables references to the nodes that answer them.
// It holds only the answering closure, keyed by id; the node owns its own
// lifetime and removes itself on Release.
type VariableRegistry struct {
	mu       sync.RWMutex
	handlers map[int64]func() []dap.Variable
}

// NewVariableRegistry returns an empty registry.
func NewVariableRegistry() *VariableRegistry {
	return &VariableRegistry{
		handlers: make(map[int64]func() []dap.Variable),
	}
}

// Register installs the handler for id, replacing any previous one.
func (r *VariableRegistry) Register(id int64, fn func() []dap.Variable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = fn
}

// Unregister removes the handler for id.
func (r *VariableRegistry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, id)
}

// Len returns the number of registered references.
func (r *VariableRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// HandleVariablesRequest answers a variables request. A reference with no
// registered node yields an empty, non-nil list.
func (r *VariableRegistry) HandleVariablesRequest(ref int64) []dap.Variable {
	r.mu.RLock()
	fn := r.handlers[ref]
	r.mu.RUnlock()
	if fn == nil {
		return []dap.Variable{}
	}
	return fn()
}

// VariableNode is one node of the variables tree. It is addressable by its
// ID from the moment it is constructed until Release is called.
type VariableNode struct {
	ID   int64
	Name string

	registry             *VariableRegistry
	supportsVariableType bool
	provider             VariablesFunc

	mu                       sync.Mutex
	value                    string
	children                 []*VariableNode
	ignoreEmptyStringEntries bool
	sorted                   bool
	released                 bool
}

// NodeOption configures a VariableNode.
type NodeOption func(*VariableNode)

// WithProvider sets the lazy provider of leaf entries.
func WithProvider(fn VariablesFunc) NodeOption {
	return func(n *VariableNode) {
		n.provider = fn
	}
}

// WithValue sets the value shown next to the node's name.
func WithValue(v string) NodeOption {
	return func(n *VariableNode) {
		n.value = v
	}
}

// NewVariableNode creates a node and registers it in reg under a fresh id
// from ids. Children are listed sorted by name unless SetSorted(false) is
// called.
func NewVariableNode(reg *VariableRegistry, ids *IDAllocator, name string, supportsVariableType bool, opts ...NodeOption) *VariableNode {
	n := &VariableNode{
		ID:                   ids.NextVariableID(),
		Name:                 name,
		registry:             reg,
		supportsVariableType: supportsVariableType,
		sorted:               true,
	}
	for _, opt := range opts {
		opt(n)
	}
	reg.Register(n.ID, n.HandleVariablesRequest)
	return n
}

// Value returns the node's display value.
func (n *VariableNode) Value() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

// SetValue sets the node's display value.
func (n *VariableNode) SetValue(v string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.value = v
}

// SetSorted controls whether HandleVariablesRequest sorts by name.
func (n *VariableNode) SetSorted(sorted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sorted = sorted
}

// SetIgnoreEmptyStringEntries drops string entries with an empty value.
func (n *VariableNode) SetIgnoreEmptyStringEntries(ignore bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ignoreEmptyStringEntries = ignore
}

// AddChild appends child to the node's children. A nil child is ignored, so
// builders that return nil for "nothing to show" can be chained directly.
func (n *VariableNode) AddChild(child *VariableNode) {
	if child == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children = append(n.children, child)
}

// Children returns a copy of the node's children.
func (n *VariableNode) Children() []*VariableNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := make([]*VariableNode, len(n.children))
	copy(cp, n.children)
	return cp
}

// HandleVariablesRequest lists the node's leaf entries followed by one entry
// per child node, sorted by name unless sorting is disabled.
func (n *VariableNode) HandleVariablesRequest() []dap.Variable {
	n.mu.Lock()
	provider := n.provider
	ignoreEmpty := n.ignoreEmptyStringEntries
	sorted := n.sorted
	children := make([]*VariableNode, len(n.children))
	copy(children, n.children)
	n.mu.Unlock()

	vars := []dap.Variable{}
	if provider != nil {
		for _, e := range provider() {
			if ignoreEmpty && e.Type == typeString && e.Value == "" {
				continue
			}
			vars = append(vars, dap.Variable{
				Name:  e.Name,
				Value: e.Value,
				Type:  e.Type,
			})
		}
	}
	for _, c := range children {
		v := dap.Variable{
			Name:               c.Name,
			Value:              c.Value(),
			VariablesReference: int(c.ID),
		}
		if n.supportsVariableType {
			v.Type = typeCollection
		}
		vars = append(vars, v)
	}
	if sorted {
		sort.SliceStable(vars, func(i, j int) bool {
			return vars[i].Name < vars[j].Name
		})
	}
	return vars
}

// Release unregisters the node and its whole subtree. Requests that still
// reference a released id resolve to an empty list. Release is idempotent.
func (n *VariableNode) Release() {
	n.mu.Lock()
	if n.released {
		n.mu.Unlock()
		return
	}
	n.released = true
	children := n.children
	n.children = nil
	n.mu.Unlock()

	for _, c := range children {
		c.Release()
	}
	n.registry.Unregister(n.ID)
}
