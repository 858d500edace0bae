// Package host implements the embedding-facing registration surface (spec
// §6 "Embedding API (host-provided)"): a Context collects Modules, each of
// which registers free functions, associated functions, types, and
// constants; Context.Build derives the immutable RuntimeContext a Vm
// actually runs against. Modeled on ccuetoh/maqui-lang's
// defineBuiltinFunc(name, definition) (pkg/builtin.go) — a single
// hard-coded "print" registration — generalized to an open builder with
// four registration surfaces instead of one.
package host

import (
	"github.com/pkg/errors"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/value"
)

// Module is a named group of host-provided bindings rooted at an item
// path — the path scripts use to reach it via `use`.
type Module struct {
	path item.Item

	functions map[item.Hash]*Function
	assoc     map[item.Hash]*Function
	types     map[item.Hash]*value.Rtti
	consts    map[item.Hash]value.ConstValue
	names     map[item.Hash]string // diagnostics only
}

// NewModule starts a Module rooted at path.
func NewModule(path item.Item) *Module {
	return &Module{
		path:      path,
		functions: make(map[item.Hash]*Function),
		assoc:     make(map[item.Hash]*Function),
		types:     make(map[item.Hash]*value.Rtti),
		consts:    make(map[item.Hash]value.ConstValue),
		names:     make(map[item.Hash]string),
	}
}

// Path returns the module's root item path.
func (m *Module) Path() item.Item { return m.path }

// Function registers a free function reachable at path::name.
func (m *Module) Function(name string, fn func(args []value.Value) (value.Value, error)) *Module {
	it := m.path.JoinNamed(name)
	h := item.TypeHash(it)
	m.functions[h] = NewFunction(h, fn)
	m.names[h] = it.String()
	return m
}

// AssociatedFunction registers an instance/associated method keyed by the
// receiver type's hash (spec §3.1; item.Associated), not by a path: a
// method call resolves through the receiver value's type hash, never
// through `use`.
func (m *Module) AssociatedFunction(typeHash item.Hash, name string, fn func(args []value.Value) (value.Value, error)) *Module {
	h := item.Associated(typeHash, name)
	m.assoc[h] = NewFunction(h, fn)
	m.names[h] = name
	return m
}

// Type registers RTTI for a host-provided struct/enum reachable at
// path::name and returns it so callers can use its Hash when registering
// associated functions or constructing Values of this type.
func (m *Module) Type(name string, fields []string) *value.Rtti {
	it := m.path.JoinNamed(name)
	h := item.TypeHash(it)
	r := &value.Rtti{Hash: h, Item: it, Fields: fields}
	m.types[h] = r
	m.names[h] = it.String()
	return r
}

// Constant registers a const value reachable at path::name.
func (m *Module) Constant(name string, v value.ConstValue) *Module {
	it := m.path.JoinNamed(name)
	h := item.TypeHash(it)
	m.consts[h] = v
	m.names[h] = it.String()
	return m
}

// Context is a collection of Modules (spec §6): the host-side assembly of
// everything a compiled Unit may call into or reference. Immutable once
// Built; a single Context may back many RuntimeContexts (e.g. one per
// sandboxed Vm) since Build never mutates the Context's Modules.
type Context struct {
	modules []*Module
}

func NewContext() *Context { return &Context{} }

// Register adds a Module to the Context.
func (c *Context) Register(m *Module) *Context {
	c.modules = append(c.modules, m)
	return c
}

// Build derives the execution-time RuntimeContext, rejecting hash
// collisions across Modules within the same registration surface (spec §7
// "RTTI conflict" / "constant conflict" taxonomy, applied here to the
// host's own bindings rather than a compiled Unit's).
func (c *Context) Build() (*RuntimeContext, error) {
	rc := &RuntimeContext{
		functions: make(map[item.Hash]*Function),
		types:     make(map[item.Hash]*value.Rtti),
		consts:    make(map[item.Hash]value.ConstValue),
	}
	seen := make(map[item.Hash]string)

	for _, m := range c.modules {
		for h, fn := range m.functions {
			if prev, ok := seen[h]; ok {
				return nil, errors.Errorf("duplicate host registration for %q (hash %#x already registered as %q)", m.names[h], uint64(h), prev)
			}
			seen[h] = m.names[h]
			rc.functions[h] = fn
		}
		for h, fn := range m.assoc {
			if prev, ok := seen[h]; ok {
				return nil, errors.Errorf("duplicate host registration for associated function %q (hash %#x already registered as %q)", m.names[h], uint64(h), prev)
			}
			seen[h] = m.names[h]
			rc.functions[h] = fn
		}
		for h, rtti := range m.types {
			if prev, ok := seen[h]; ok {
				return nil, errors.Errorf("duplicate host registration for type %q (hash %#x already registered as %q)", m.names[h], uint64(h), prev)
			}
			seen[h] = m.names[h]
			rc.types[h] = rtti
		}
		for h, v := range m.consts {
			if prev, ok := seen[h]; ok {
				return nil, errors.Errorf("duplicate host registration for constant %q (hash %#x already registered as %q)", m.names[h], uint64(h), prev)
			}
			seen[h] = m.names[h]
			rc.consts[h] = v
		}
	}
	return rc, nil
}
