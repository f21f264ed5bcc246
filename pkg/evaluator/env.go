package evaluator

import "sort"

// Cell is the shared mutable slot behind one name in one scope. Every closure
// that captured the scope reads through the same cell.
type Cell struct {
	Value Value
}

// Env is a scoped environment for variable bindings.
// It supports parent-chained lookup for lexical scoping.
type Env struct {
	vars   map[string]*Cell
	parent *Env
}

// NewEnv creates a new environment with an optional parent scope.
func NewEnv(parent *Env) *Env {
	return &Env{
		vars:   make(map[string]*Cell),
		parent: parent,
	}
}

// Child creates a new child scope whose parent is this environment.
func (e *Env) Child() *Env {
	return NewEnv(e)
}

// Parent returns the enclosing scope, or nil for a root.
func (e *Env) Parent() *Env {
	return e.parent
}

// Lookup finds the cell bound to name, walking from this scope outwards.
func (e *Env) Lookup(name string) (*Cell, bool) {
	for s := e; s != nil; s = s.parent {
		if c, ok := s.vars[name]; ok {
			return c, true
		}
	}
	return nil, false
}

// Get looks up a variable by name, traversing parent scopes.
func (e *Env) Get(name string) (Value, bool) {
	c, ok := e.Lookup(name)
	if !ok {
		return nil, false
	}
	return c.Value, true
}

// Define binds name in this scope. An existing cell in this scope is updated
// in place; otherwise a new cell is created. It reports whether a new cell
// was created.
func (e *Env) Define(name string, val Value) bool {
	if c, ok := e.vars[name]; ok {
		c.Value = val
		return false
	}
	e.vars[name] = &Cell{Value: val}
	return true
}

// Has checks whether a variable is defined in this scope or any parent.
func (e *Env) Has(name string) bool {
	_, ok := e.Lookup(name)
	return ok
}

// Names returns the names bound directly in this scope, sorted.
func (e *Env) Names() []string {
	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
