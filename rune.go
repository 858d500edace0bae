// Package rune is the embeddable scripting language's public entry point
// (spec §6 "External interfaces"): Compile turns source text into a
// linkable Unit, and Vm runs that Unit against a host-provided
// RuntimeContext. Everything under internal/ is plumbing a host embedding
// Rune should never need to import directly — this file and vm.go are the
// whole surface.
package rune

import (
	"context"

	"github.com/maloquacious/semver"
	"github.com/pkg/errors"

	"github.com/runelang/rune/internal/assemble"
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/host"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/query"
	"github.com/runelang/rune/internal/syntax"
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/value"
)

// Version identifies this build of the compiler, stamped into every
// compiled Unit's DebugInfo.CompilerVersion (spec §3.6's "informational
// build tag", not part of the Unit's wire format).
var Version = semver.Version{Major: 0, Minor: 1, Patch: 0}

// Re-exported embedding-facing types (spec §6), kept as aliases so a host
// built against this package's types is also built against internal/host
// and internal/value's types without an explicit internal/ import.
type (
	Context        = host.Context
	Module         = host.Module
	RuntimeContext = host.RuntimeContext
	Function       = host.Function
	SyncFunction   = host.SyncFunction
	Value          = value.Value
	Unit           = unit.Unit
)

var (
	NewContext      = host.NewContext
	NewModule       = host.NewModule
	NewFunction     = host.NewFunction
	NewSyncFunction = host.NewSyncFunction
)

// CompileError reports every diagnostic accumulated across a failed
// compile (spec §7: "compile-time errors accumulate in a diagnostics bag").
// Error() surfaces the first one; Diagnostics holds the rest for a host
// that wants to report them all (e.g. an LSP or a CLI's multi-error
// listing).
type CompileError struct {
	Diagnostics []diag.Diagnostic
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compile failed with no reported diagnostics"
	}
	return e.Diagnostics[0].Error()
}

// Compile runs the full pipeline of spec §2 over one source text: lex,
// parse into a lossless CST, index items and const-evaluate to a fixed
// point, assemble function bodies into a Unit, then link against host
// (verifying every call the source doesn't resolve locally is actually
// registered — spec §4.6 step 5, §6 scenario 6). sourceID tags diagnostics
// and is otherwise opaque. A nil host is valid for a program that calls
// nothing outside itself.
func Compile(sourceID, source string, host *RuntimeContext) (*Unit, error) {
	var bag diag.Bag
	src := diag.SourceID(sourceID)

	toks := lexer.Lex(src, source)
	tree := syntax.Parse(src, toks, &bag)

	q := query.NewQuery(0)
	ix := query.NewIndexer(q, &bag)
	ix.IndexFile(tree)
	if err := q.Queue.Drain(context.Background()); err != nil {
		return nil, errors.Wrap(err, "indexing did not reach a fixed point")
	}

	b := unit.NewBuilder(&bag)
	b.SetDebugVersion(Version)
	asm := assemble.NewAssembler(b, &bag, src)
	if err := asm.AssembleFile(tree); err != nil {
		return nil, errors.Wrap(err, "assembly failed")
	}

	u := b.Build()
	unit.Link(u, host, &bag)

	if bag.HasErrors() {
		return nil, &CompileError{Diagnostics: bag.All()}
	}
	return u, nil
}
