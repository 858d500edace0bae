// Package assemble lowers a parsed function body (internal/syntax CST)
// directly into a unit.FuncAssembly, generalizing the teacher's
// wam/codegen.go term-to-instruction walk (spec §4.5) from WAM's handful of
// unify opcodes to Rune's full instruction family. There is no separate HIR
// between CST and bytecode — a deliberate simplification over the upstream
// multi-pass pipeline, recorded in DESIGN.md — so every compileX function
// here both resolves names and emits instructions in the same walk.
package assemble

import (
	"fmt"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/syntax"
	"github.com/runelang/rune/internal/unit"
	"github.com/runelang/rune/internal/value"
)

// RootCrate is the crate-root component name assumed for every top-level
// item in the absence of a full module-path indexer (internal/query owns
// real path resolution; this assembler resolves free-function calls against
// this fixed root so host registration and call-site hashing agree, spec
// §3.1's "item path interning" narrowed to a single-crate program).
const RootCrate = "root"

// PathHash computes the call/RTTI hash for a `::`-joined item path under
// RootCrate, e.g. PathHash("Shape", "Circle") for a `Shape::Circle` variant
// constructor or pattern. A single segment is a free function or top-level
// type name.
func PathHash(segs ...string) item.Hash {
	it := item.NewItemBuf(RootCrate).Item()
	for _, s := range segs {
		it = it.JoinNamed(s)
	}
	return item.TypeHash(it)
}

// FnHash computes the call hash for a free function name under RootCrate.
func FnHash(name string) item.Hash {
	return PathHash(name)
}

// pathSegments extracts every Ident segment of a KPath node, in order,
// dropping the `::` separators between them.
func pathSegments(n *syntax.Node) []string {
	var segs []string
	for _, c := range n.Children {
		if c.Tok != nil && c.Tok.Kind == lexer.Ident {
			segs = append(segs, c.Text())
		}
	}
	return segs
}

// scope is a lexical block of let-bound names; nested blocks chain to their
// parent so inner bindings shadow outer ones and fall out of view at block
// exit (spec §3.8 "scope-guard" push/truncate, narrowed here to name
// visibility only — see DESIGN.md on why stack slots themselves are never
// reclaimed).
type scope struct {
	parent *scope
	vars   map[string]value.Address
}

func (s *scope) lookup(name string) (value.Address, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if a, ok := sc.vars[name]; ok {
			return a, true
		}
	}
	return 0, false
}

func (s *scope) bind(name string, a value.Address) {
	s.vars[name] = a
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: make(map[string]value.Address)}
}

type loopCtx struct {
	breakLabel    unit.Label
	continueLabel unit.Label
	resultSlot    value.Address
}

// funcCtx carries the mutable state threaded through one function's
// compilation: the growing pseudo-instruction stream, the label counter, the
// monotonic stack-slot allocator, and the current scope/loop nesting.
type funcCtx struct {
	asm   *Assembler
	insts []unit.Inst
	nLbl  int32
	next  value.Address
	sc    *scope
	loops []loopCtx
}

func (fc *funcCtx) emit(i unit.Inst) { fc.insts = append(fc.insts, i) }

func (fc *funcCtx) alloc() value.Address {
	a := fc.next
	fc.next++
	return a
}

func (fc *funcCtx) label() unit.Label { return unit.NewLabel(&fc.nLbl) }

func (fc *funcCtx) mark(l unit.Label) { fc.emit(unit.LabelMarker(l)) }

// Assembler drives compilation of every function item discovered in a
// source file into the Builder's Unit (spec §4.5/§4.6).
type Assembler struct {
	b   *unit.Builder
	bag *diag.Bag
	src diag.SourceID

	// genBlocks counts compiler-generated functions (async blocks and
	// closures) registered so far, used to derive each one a distinct
	// stable hash.
	genBlocks []item.Hash

	// structRttis/variantRttis mirror the RTTI already registered with the
	// Builder, keyed the same way, so compileObject/compileCall can tell a
	// known type path from an ordinary object literal or free-function call
	// without querying the Builder's private maps.
	structRttis  map[item.Hash]*value.Rtti
	variantRttis map[item.Hash]*value.VariantRtti
}

func NewAssembler(b *unit.Builder, bag *diag.Bag, src diag.SourceID) *Assembler {
	return &Assembler{
		b:            b,
		bag:          bag,
		src:          src,
		structRttis:  make(map[item.Hash]*value.Rtti),
		variantRttis: make(map[item.Hash]*value.VariantRtti),
	}
}

// AssembleFile registers every struct/enum's RTTI (and, for tuple/unit
// shapes, its call-based constructor) before assembling any function body,
// since a function may reference a type declared later in the same file.
// Non-fn, non-struct, non-enum items (const/impl/use/mod) are the
// indexer/query package's concern (spec §4.3) and are skipped here.
func (a *Assembler) AssembleFile(file *syntax.Node) error {
	for _, it := range file.Children {
		switch it.Kind {
		case syntax.KItemStruct:
			if err := a.registerStruct(it); err != nil {
				return err
			}
		case syntax.KItemEnum:
			if err := a.registerEnum(it); err != nil {
				return err
			}
		}
	}
	for _, it := range file.Children {
		if it.Kind != syntax.KItemFn {
			continue
		}
		if err := a.assembleFn(it); err != nil {
			return err
		}
	}
	return nil
}

// registerStruct records a struct declaration's RTTI and, for tuple/unit
// shapes, a call-based constructor entry (spec §8 scenario 2). A
// named-field struct has no call constructor at all: it is built by
// compileObject from a `Name { k: v, .. }` literal instead.
func (a *Assembler) registerStruct(n *syntax.Node) error {
	name := identAfterKeyword(n, lexer.KwStruct)
	if name == "" {
		return fmt.Errorf("struct item missing a name")
	}
	hash := PathHash(name)
	named, hasParen, fields, arity := classifyAggregate(n)
	rtti := &value.Rtti{
		Hash:   hash,
		Item:   item.NewItemBuf(RootCrate).Item().JoinNamed(name),
		Fields: fields,
	}
	if err := a.b.AddRtti(hash, rtti); err != nil {
		return err
	}
	a.structRttis[hash] = rtti

	switch {
	case named:
		return nil // constructed via struct-literal syntax, not a call
	case hasParen:
		return a.b.AddAssembly(unit.FuncAssembly{Hash: hash, Kind: unit.FnTupleStruct, Rtti: rtti, Args: uint32(arity)})
	default:
		return a.b.AddAssembly(unit.FuncAssembly{Hash: hash, Kind: unit.FnUnitStruct, Rtti: rtti, Args: 0})
	}
}

// registerEnum records each variant's RTTI and, for tuple/unit shapes, a
// call-based constructor entry, keyed by the two-segment `Enum::Variant`
// path hash.
func (a *Assembler) registerEnum(n *syntax.Node) error {
	enumName := identAfterKeyword(n, lexer.KwEnum)
	if enumName == "" {
		return fmt.Errorf("enum item missing a name")
	}
	enumHash := PathHash(enumName)
	for _, c := range n.Children {
		if c.Kind != syntax.KItemEnumVariant {
			continue
		}
		variantName := c.Children[0].Text()
		variantHash := PathHash(enumName, variantName)
		named, hasParen, fields, arity := classifyAggregate(c)
		vr := &value.VariantRtti{
			Rtti: value.Rtti{
				Hash:   variantHash,
				Item:   item.NewItemBuf(RootCrate).Item().JoinNamed(enumName).JoinNamed(variantName),
				Fields: fields,
			},
			EnumHash: enumHash,
		}
		if err := a.b.AddVariantRtti(variantHash, vr); err != nil {
			return err
		}
		a.variantRttis[variantHash] = vr

		switch {
		case named:
			continue // constructed via Enum::Variant { .. } literal syntax
		case hasParen:
			if err := a.b.AddAssembly(unit.FuncAssembly{Hash: variantHash, Kind: unit.FnTupleVariant, VariantRtti: vr, Args: uint32(arity)}); err != nil {
				return err
			}
		default:
			if err := a.b.AddAssembly(unit.FuncAssembly{Hash: variantHash, Kind: unit.FnUnitVariant, VariantRtti: vr, Args: 0}); err != nil {
				return err
			}
		}
	}
	return nil
}

// identAfterKeyword returns the text of the first Ident leaf following the
// given keyword token among n's direct children (the declaration name,
// which always immediately follows 'struct'/'enum' regardless of any
// leading visibility modifiers).
func identAfterKeyword(n *syntax.Node, kw lexer.Kind) string {
	seenKw := false
	for _, c := range n.Children {
		if c.Tok != nil && c.Tok.Kind == kw {
			seenKw = true
			continue
		}
		if seenKw && c.Tok != nil && c.Tok.Kind == lexer.Ident {
			return c.Text()
		}
	}
	return ""
}

// classifyAggregate inspects a struct/enum-variant node's raw children to
// tell its declaration shape apart: named-field `{ x, y }` (named=true,
// fields populated), tuple `(T, T)` (hasParen=true, arity = field count),
// or unit `;` (both false).
func classifyAggregate(n *syntax.Node) (named, hasParen bool, fields []string, arity int) {
	inParens := false
	for _, c := range n.Children {
		if c.Kind == syntax.KFieldDecl {
			named = true
			fields = append(fields, fieldDeclName(c))
			continue
		}
		if c.Tok == nil {
			continue
		}
		switch c.Tok.Kind {
		case lexer.LBrace:
			named = true
		case lexer.LParen:
			hasParen = true
			inParens = true
		case lexer.RParen:
			inParens = false
		case lexer.Ident:
			if inParens {
				arity++
			}
		}
	}
	return
}

func fieldDeclName(fd *syntax.Node) string {
	for _, c := range fd.Children {
		if c.Tok != nil && c.Tok.Kind == lexer.Ident {
			return c.Text()
		}
	}
	return ""
}

func (a *Assembler) assembleFn(fn *syntax.Node) error {
	// The function name is the first Ident leaf following the 'fn' keyword;
	// walk children directly since KTrivia covers every bare token leaf.
	var fnName string
	var params []*syntax.Node
	var body *syntax.Node
	seenFn := false
	for _, c := range fn.Children {
		if c.Tok != nil && c.Tok.Text == "fn" {
			seenFn = true
			continue
		}
		if seenFn && fnName == "" && c.Tok != nil {
			fnName = c.Tok.Text
			continue
		}
		if c.Kind == syntax.KParam {
			params = append(params, c)
		}
		if c.Kind == syntax.KBlock {
			body = c
		}
	}
	if body == nil {
		return fmt.Errorf("function %q has no body (trait declaration, not yet lowered)", fnName)
	}

	fc := &funcCtx{asm: a, sc: newScope(nil)}
	for _, p := range params {
		pat := p.Children[0]
		addr := fc.alloc()
		a.bindPattern(fc, pat, addr)
	}

	retAddr, diverged, err := a.compileBlockExpr(fc, body)
	if err != nil {
		return err
	}
	if !diverged {
		if retAddr == noAddr {
			fc.emit(unit.Inst{Op: unit.OpReturnUnit})
		} else {
			fc.emit(unit.Inst{Op: unit.OpReturn, A: retAddr})
		}
	}

	hash := FnHash(fnName)
	return a.b.AddAssembly(unit.FuncAssembly{
		Hash:      hash,
		Call:      classifyCallConv(body),
		Args:      uint32(len(params)),
		Kind:      unit.FnOffset,
		Insts:     fc.insts,
		NumLabels: fc.nLbl,
		Signature: fnName,
	})
}

// classifyCallConv is the Layer classification of spec §4.8: a function's
// call convention is inferred from whether its body contains an await
// and/or a yield, not from a keyword at the declaration site. Recursion
// stops at a nested closure/async-block boundary, since those have their
// own independent Layer and are compiled (and classified) separately.
func classifyCallConv(body *syntax.Node) unit.CallConv {
	var hasAwait, hasYield bool
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case syntax.KAwaitExpr:
			hasAwait = true
			return
		case syntax.KYieldExpr:
			hasYield = true
			return
		case syntax.KClosureExpr, syntax.KAsyncBlockExpr:
			// own Layer; don't let its await/yield leak into this one.
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(body)

	switch {
	case hasAwait && hasYield:
		return unit.CallStream
	case hasYield:
		return unit.CallGenerator
	case hasAwait:
		return unit.CallAsync
	default:
		return unit.CallImmediate
	}
}

// noAddr marks "no value" (a Unit-typed or diverging expression) distinct
// from a real stack address.
const noAddr = ^value.Address(0)

func (a *Assembler) bindPattern(fc *funcCtx, pat *syntax.Node, addr value.Address) {
	switch pat.Kind {
	case syntax.KPatBinding:
		fc.sc.bind(pat.Text(), addr)
	case syntax.KPatIgnore, syntax.KPatRest:
		// nothing bound
	case syntax.KPatArray:
		a.bindSequencePattern(fc, pat, addr, unit.TypeCheckVec)
	case syntax.KPatTuple:
		a.bindSequencePattern(fc, pat, addr, unit.TypeCheckTuple)
	case syntax.KPatObject:
		a.bindObjectPattern(fc, pat, addr)
	default:
		a.bag.Errorf(pat.Span, diag.KindUnsupportedPattern, "pattern not supported in this position")
	}
}

// bindSequencePattern lowers `let [a, .., c] = xs` and `let (a, b) = t`
// (spec §8 scenario 4): a MatchSequence shape guard — at least
// `len(elems)` elements if a `..` rest marker is present (Exact: false),
// exactly that many otherwise — followed by positional binds. Elements
// before the rest marker are indexed from the front; elements after it are
// indexed from the back (execTupleIndexGetAt resolves a negative index
// against the runtime length), so a trailing binder like `c` above is
// never dropped. kind distinguishes a Vec-shaped array pattern from a
// Tuple-shaped one; both destructure the same way once the shape guard
// passes.
func (a *Assembler) bindSequencePattern(fc *funcCtx, pat *syntax.Node, addr value.Address, kind unit.TypeCheckKind) {
	var elems []*syntax.Node
	restPos := -1
	for _, c := range pat.Children {
		switch c.Kind {
		case syntax.KTrivia:
			continue
		case syntax.KPatRest:
			restPos = len(elems)
		default:
			elems = append(elems, c)
		}
	}

	exact := restPos < 0
	failLbl := fc.label()
	okLbl := fc.label()
	fc.emit(unit.Inst{
		Op:        unit.OpMatchSequence,
		A:         addr,
		TypeCheck: unit.TypeCheck{Kind: kind},
		N:         int32(len(elems)),
		Exact:     exact,
		LabelRef:  failLbl,
	})

	head := elems
	if !exact {
		head = elems[:restPos]
	}
	for i, c := range head {
		elemAddr := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpTupleIndexGetAt, A: addr, N: int32(i), Out: value.OutputTo(elemAddr)})
		a.bindPattern(fc, c, elemAddr)
	}
	if !exact {
		tail := elems[restPos:]
		for i, c := range tail {
			elemAddr := fc.alloc()
			fromEnd := -(len(tail) - i)
			fc.emit(unit.Inst{Op: unit.OpTupleIndexGetAt, A: addr, N: int32(fromEnd), Out: value.OutputTo(elemAddr)})
			a.bindPattern(fc, c, elemAddr)
		}
	}

	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: okLbl})
	fc.mark(failLbl)
	fc.emit(unit.Inst{Op: unit.OpPanic, Panic: unit.PanicReason{Kind: unit.PanicUnmatchedPattern}})
	fc.mark(okLbl)
}

// bindObjectPattern lowers `let { x, y: q, .. } = obj`: a MatchObject shape
// guard against the interned key-set (Exact unless a `..` rest marker is
// present), then a positional ObjectIndexGetAt per named field — `x:`
// shorthand binds the field under its own name, `y: q` binds it under `q`
// or recurses into a nested subpattern.
func (a *Assembler) bindObjectPattern(fc *funcCtx, pat *syntax.Node, addr value.Address) {
	var keys []string
	var subs []*syntax.Node
	hasRest := false
	for _, c := range pat.Children {
		switch c.Kind {
		case syntax.KTrivia:
			continue
		case syntax.KPatRest:
			hasRest = true
		case syntax.KPatObjectField:
			keys = append(keys, c.Children[0].Text())
			if len(c.Children) > 2 {
				subs = append(subs, c.Children[2])
			} else {
				subs = append(subs, nil)
			}
		}
	}

	slot := a.b.InternObjectKeys(keys)
	failLbl := fc.label()
	okLbl := fc.label()
	fc.emit(unit.Inst{
		Op:         unit.OpMatchObject,
		A:          addr,
		StaticSlot: slot,
		Exact:      !hasRest,
		LabelRef:   failLbl,
	})

	for i, name := range keys {
		fieldAddr := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpObjectIndexGetAt, A: addr, StaticSlot: slot, N: int32(i), Out: value.OutputTo(fieldAddr)})
		if sub := subs[i]; sub != nil {
			a.bindPattern(fc, sub, fieldAddr)
		} else {
			fc.sc.bind(name, fieldAddr)
		}
	}

	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: okLbl})
	fc.mark(failLbl)
	fc.emit(unit.Inst{Op: unit.OpPanic, Panic: unit.PanicReason{Kind: unit.PanicUnmatchedPattern}})
	fc.mark(okLbl)
}

// compileBlockExpr compiles a KBlock's statements, returning the address
// holding its tail value (noAddr if the block's tail is Unit or the block
// diverged via return/break/continue, in which case diverged is true and
// the caller must not emit any fall-through instruction).
func (a *Assembler) compileBlockExpr(fc *funcCtx, blk *syntax.Node) (value.Address, bool, error) {
	fc.sc = newScope(fc.sc)
	defer func() { fc.sc = fc.sc.parent }()

	var last value.Address = noAddr
	diverged := false
	stmts := blk.Children[1 : len(blk.Children)-1] // strip '{' and '}'
	for i, s := range stmts {
		if diverged {
			break
		}
		switch s.Kind {
		case syntax.KTrivia:
			continue // a bare ';' between statements
		case syntax.KLetExpr:
			if err := a.compileLet(fc, s); err != nil {
				return noAddr, false, err
			}
			last = noAddr
		default:
			isLastStmt := i == len(stmts)-1
			addr, div, err := a.compileExpr(fc, s)
			if err != nil {
				return noAddr, false, err
			}
			if div {
				diverged = true
				last = noAddr
				continue
			}
			if isLastStmt {
				last = addr
			} else {
				last = noAddr
			}
		}
	}
	return last, diverged, nil
}

func (a *Assembler) compileLet(fc *funcCtx, letNode *syntax.Node) error {
	// Children: 'let', pattern, ['=' | ':' type '='], rhs expr, [';'].
	pat := letNode.Children[1]
	var rhs *syntax.Node
	for i := 2; i < len(letNode.Children); i++ {
		c := letNode.Children[i]
		if c.Kind != syntax.KTrivia {
			rhs = c
			break
		}
	}
	if rhs == nil {
		return fmt.Errorf("malformed let binding")
	}
	addr, diverged, err := a.compileExpr(fc, rhs)
	if err != nil {
		return err
	}
	if diverged {
		return nil
	}
	a.bindPattern(fc, pat, addr)
	return nil
}
