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

// compileExpr lowers one expression node, returning the address holding its
// result (noAddr for a Unit-valued or diverging expression) and whether
// control diverged (return/break/continue), in which case the caller must
// stop emitting further fall-through code for the enclosing block.
func (a *Assembler) compileExpr(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	switch n.Kind {
	case syntax.KLitInt:
		return a.pushLiteral(fc, intLiteralValue(n)), false, nil
	case syntax.KLitFloat:
		return a.pushLiteral(fc, floatLiteralValue(n)), false, nil
	case syntax.KLitBool:
		return a.pushLiteral(fc, value.Bool(n.Children[0].Text() == "true")), false, nil
	case syntax.KLitChar:
		r := []rune(n.Children[0].Text())
		var c rune
		if len(r) > 0 {
			c = r[0]
		}
		return a.pushLiteral(fc, value.Char(c)), false, nil
	case syntax.KLitString:
		return a.pushLiteral(fc, value.String(n.Children[0].Text())), false, nil
	case syntax.KLitUnit:
		return a.pushLiteral(fc, value.Unit()), false, nil
	case syntax.KPath:
		return a.compilePath(fc, n)
	case syntax.KBlock:
		return a.compileBlockExpr(fc, n)
	case syntax.KUnaryExpr:
		return a.compileUnary(fc, n)
	case syntax.KBinaryExpr:
		return a.compileBinary(fc, n)
	case syntax.KRangeExpr:
		return a.compileRange(fc, n)
	case syntax.KAssignExpr:
		return a.compileAssign(fc, n)
	case syntax.KIfExpr:
		return a.compileIf(fc, n)
	case syntax.KWhileExpr:
		return a.compileWhile(fc, n)
	case syntax.KLoopExpr:
		return a.compileLoop(fc, n)
	case syntax.KForExpr:
		return a.compileFor(fc, n)
	case syntax.KArrayExpr:
		return a.compileArray(fc, n)
	case syntax.KTupleExpr:
		return a.compileTuple(fc, n)
	case syntax.KObjectExpr:
		return a.compileObject(fc, n)
	case syntax.KFieldExpr:
		return a.compileField(fc, n)
	case syntax.KIndexExpr:
		return a.compileIndex(fc, n)
	case syntax.KCallExpr:
		return a.compileCall(fc, n)
	case syntax.KMethodCallExpr:
		return a.compileMethodCall(fc, n)
	case syntax.KTryExpr:
		return a.compileTry(fc, n)
	case syntax.KAwaitExpr:
		return a.compileAwait(fc, n)
	case syntax.KAsyncBlockExpr:
		return a.compileAsyncBlock(fc, n)
	case syntax.KBreakExpr:
		return a.compileBreak(fc, n)
	case syntax.KContinueExpr:
		return a.compileContinue(fc, n)
	case syntax.KReturnExpr:
		return a.compileReturn(fc, n)
	case syntax.KYieldExpr:
		return a.compileYield(fc, n)
	case syntax.KMatchExpr:
		return a.compileMatch(fc, n)
	case syntax.KSelectExpr:
		return a.compileSelect(fc, n)
	case syntax.KClosureExpr:
		return a.compileClosure(fc, n)
	case syntax.KError:
		return noAddr, false, fmt.Errorf("cannot assemble a syntax error node at %s", n.Span)
	default:
		return noAddr, false, fmt.Errorf("unhandled expression kind %s", n.Kind)
	}
}

func (a *Assembler) pushLiteral(fc *funcCtx, v value.Value) value.Address {
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpPush, PushValue: v, Out: value.OutputTo(out)})
	return out
}

func intLiteralValue(n *syntax.Node) value.Value {
	text := n.Children[0].Text()
	var i int64
	fmt.Sscanf(text, "%d", &i)
	return value.Integer(i)
}

func floatLiteralValue(n *syntax.Node) value.Value {
	text := n.Children[0].Text()
	var f float64
	fmt.Sscanf(text, "%g", &f)
	return value.Float(f)
}

// compilePath resolves a path expression: a single-segment bare identifier
// against the lexical scope first (a local variable), then any segment
// count as a zero-argument function/unit-struct/unit-variant reference,
// resolved and required at link time just like a call (spec §4.6). Full
// module-path resolution (imports, aliasing) is internal/query's job (spec
// §4.3); this assembler only ever sees RootCrate-relative paths.
func (a *Assembler) compilePath(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	segs := pathSegments(n)
	if len(segs) == 1 {
		name := segs[0]
		if addr, ok := fc.sc.lookup(name); ok {
			return addr, false, nil
		}
		if name == "true" || name == "false" {
			return a.pushLiteral(fc, value.Bool(name == "true")), false, nil
		}
	}
	out := fc.alloc()
	hash := PathHash(segs...)
	a.b.RequireHash(hash, diag.Span{Source: a.src, Start: n.Span.Start, End: n.Span.End})
	fc.emit(unit.Inst{Op: unit.OpCall, Hash: hash, N: 0, Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileUnary(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	op := n.Children[0].Text()
	operand, div, err := a.compileExpr(fc, n.Children[1])
	if err != nil || div {
		return noAddr, div, err
	}
	out := fc.alloc()
	switch op {
	case "-":
		zero := a.pushLiteral(fc, value.Integer(0))
		fc.emit(unit.Inst{Op: unit.OpArith, Arith: unit.ArithSub, A: zero, B: operand, Out: value.OutputTo(out)})
	case "!":
		fc.emit(unit.Inst{Op: unit.OpArith, Arith: unit.ArithEq, A: operand, B: zeroFalse(fc), Out: value.OutputTo(out)})
	default:
		return noAddr, false, fmt.Errorf("unsupported unary operator %q", op)
	}
	return out, false, nil
}

func zeroFalse(fc *funcCtx) value.Address {
	return fc.asm.pushLiteral(fc, value.Bool(false))
}

var binArith = map[string]unit.ArithOp{
	"+": unit.ArithAdd, "-": unit.ArithSub, "*": unit.ArithMul, "/": unit.ArithDiv,
	"%": unit.ArithRem, "&": unit.ArithBitAnd, "|": unit.ArithBitOr, "^": unit.ArithBitXor,
	"<<": unit.ArithShl, ">>": unit.ArithShr,
	"==": unit.ArithEq, "!=": unit.ArithNeq, "<": unit.ArithLt, "<=": unit.ArithLte,
	">": unit.ArithGt, ">=": unit.ArithGte, "&&": unit.ArithAnd, "||": unit.ArithOr,
}

func (a *Assembler) compileBinary(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	if n.Children[1].Tok != nil && n.Children[1].Tok.Kind == lexer.KwIs {
		return a.compileIs(fc, n)
	}
	opText := n.Children[1].Text()
	lhs, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	rhs, div, err := a.compileExpr(fc, n.Children[2])
	if err != nil || div {
		return noAddr, div, err
	}
	arith, ok := binArith[opText]
	if !ok {
		return noAddr, false, fmt.Errorf("unsupported binary operator %q", opText)
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpArith, Arith: arith, A: lhs, B: rhs, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileIs lowers `lhs is Type` / `lhs is not Type` (parser.go's
// parseBinary gives "is not" a distinct 4-child node shape: lhs, 'is',
// 'not', rhs, rather than folding it into binArith's uniform 3-child
// shape, since a type-identity test has no ArithOp of its own).
func (a *Assembler) compileIs(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	lhs, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	negate := len(n.Children) == 4
	rhsIdx := 2
	if negate {
		rhsIdx = 3
	}
	rhsPath := n.Children[rhsIdx]
	if rhsPath.Kind != syntax.KPath {
		return noAddr, false, fmt.Errorf("'is' requires a type name on the right-hand side")
	}
	hash := PathHash(pathSegments(rhsPath)...)
	op := unit.OpIs
	if negate {
		op = unit.OpIsNot
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: op, A: lhs, Hash: hash, Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileRange(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	lo, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	hi, div, err := a.compileExpr(fc, n.Children[2])
	if err != nil || div {
		return noAddr, div, err
	}
	out := fc.alloc()
	// A range is represented at runtime as a 2-tuple (lo, hi).
	fc.emit(unit.Inst{Op: unit.OpTuple, N: 2, Args: []value.Address{lo, hi}, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileAssign lowers `target op= rhs` for every assignable target: a
// plain variable, a `.field`/`.N` field/tuple-index, or a `[idx]` index. A
// compound op (`+=` etc.) on a field/index target reads the field's
// current value before writing, since there is no dedicated
// compound-assign opcode for container writes the way OpCompoundAssign
// covers a plain stack slot.
func (a *Assembler) compileAssign(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	target := n.Children[0]
	opText := n.Children[1].Text()
	rhs, div, err := a.compileExpr(fc, n.Children[2])
	if err != nil || div {
		return noAddr, div, err
	}

	switch target.Kind {
	case syntax.KPath:
		segs := pathSegments(target)
		if len(segs) != 1 {
			return noAddr, false, fmt.Errorf("only a local variable can be assigned to")
		}
		addr, ok := fc.sc.lookup(segs[0])
		if !ok {
			return noAddr, false, fmt.Errorf("assignment to undeclared variable %q", segs[0])
		}
		return noAddr, false, a.emitSimpleAssign(fc, addr, opText, rhs)

	case syntax.KFieldExpr:
		obj, div, err := a.compileExpr(fc, target.Children[0])
		if err != nil || div {
			return noAddr, div, err
		}
		fieldName := target.Children[2]
		if fieldName.Tok != nil && fieldName.Tok.Kind == lexer.Int {
			var idx int32
			fmt.Sscanf(fieldName.Text(), "%d", &idx)
			return noAddr, false, a.emitTupleFieldAssign(fc, obj, idx, opText, rhs)
		}
		slot := a.b.InternString(fieldName.Text())
		return noAddr, false, a.emitObjectFieldAssign(fc, obj, slot, opText, rhs)

	case syntax.KIndexExpr:
		obj, div, err := a.compileExpr(fc, target.Children[0])
		if err != nil || div {
			return noAddr, div, err
		}
		idx, div, err := a.compileExpr(fc, target.Children[2])
		if err != nil || div {
			return noAddr, div, err
		}
		return noAddr, false, a.emitIndexAssign(fc, obj, idx, opText, rhs)

	default:
		return noAddr, false, fmt.Errorf("unsupported assignment target %s", target.Kind)
	}
}

func (a *Assembler) emitSimpleAssign(fc *funcCtx, addr value.Address, opText string, rhs value.Address) error {
	if opText == "=" {
		fc.emit(unit.Inst{Op: unit.OpCopy, A: rhs, Out: value.OutputTo(addr)})
		return nil
	}
	arith, ok := compoundArith[opText]
	if !ok {
		return fmt.Errorf("unsupported compound assignment %q", opText)
	}
	fc.emit(unit.Inst{Op: unit.OpCompoundAssign, Arith: arith, A: addr, B: rhs, Out: value.OutputTo(addr)})
	return nil
}

// resolvedValue folds a compound op's current-value read into its rhs,
// returning rhs unchanged for a plain `=`.
func (a *Assembler) resolvedValue(fc *funcCtx, cur value.Address, opText string, rhs value.Address) (value.Address, error) {
	if opText == "=" {
		return rhs, nil
	}
	arith, ok := compoundArith[opText]
	if !ok {
		return noAddr, fmt.Errorf("unsupported compound assignment %q", opText)
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpArith, Arith: arith, A: cur, B: rhs, Out: value.OutputTo(out)})
	return out, nil
}

func (a *Assembler) emitObjectFieldAssign(fc *funcCtx, obj value.Address, slot uint32, opText string, rhs value.Address) error {
	val := rhs
	if opText != "=" {
		cur := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpObjectIndexGet, A: obj, StaticSlot: slot, Out: value.OutputTo(cur)})
		var err error
		if val, err = a.resolvedValue(fc, cur, opText, rhs); err != nil {
			return err
		}
	}
	fc.emit(unit.Inst{Op: unit.OpObjectIndexSet, A: obj, StaticSlot: slot, Args: []value.Address{val}})
	return nil
}

func (a *Assembler) emitTupleFieldAssign(fc *funcCtx, obj value.Address, idx int32, opText string, rhs value.Address) error {
	val := rhs
	if opText != "=" {
		cur := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpTupleIndexGetAt, A: obj, N: idx, Out: value.OutputTo(cur)})
		var err error
		if val, err = a.resolvedValue(fc, cur, opText, rhs); err != nil {
			return err
		}
	}
	fc.emit(unit.Inst{Op: unit.OpTupleIndexSet, A: obj, N: idx, Args: []value.Address{val}})
	return nil
}

func (a *Assembler) emitIndexAssign(fc *funcCtx, obj, idx value.Address, opText string, rhs value.Address) error {
	val := rhs
	if opText != "=" {
		cur := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpIndexGet, A: obj, B: idx, Out: value.OutputTo(cur)})
		var err error
		if val, err = a.resolvedValue(fc, cur, opText, rhs); err != nil {
			return err
		}
	}
	fc.emit(unit.Inst{Op: unit.OpIndexSet, A: obj, B: idx, Args: []value.Address{val}})
	return nil
}

var compoundArith = map[string]unit.ArithOp{
	"+=": unit.ArithAdd, "-=": unit.ArithSub, "*=": unit.ArithMul, "/=": unit.ArithDiv,
	"%=": unit.ArithRem, "&=": unit.ArithBitAnd, "|=": unit.ArithBitOr, "^=": unit.ArithBitXor,
	"<<=": unit.ArithShl, ">>=": unit.ArithShr,
}

func (a *Assembler) compileIf(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	cond, div, err := a.compileExpr(fc, n.Children[1])
	if err != nil || div {
		return noAddr, div, err
	}
	elseLbl := fc.label()
	endLbl := fc.label()
	fc.emit(unit.Inst{Op: unit.OpJumpIfNot, A: cond, LabelRef: elseLbl})

	out := fc.alloc()
	thenAddr, thenDiv, err := a.compileExpr(fc, n.Children[2])
	if err != nil {
		return noAddr, false, err
	}
	if !thenDiv {
		copyOrUnit(fc, thenAddr, out)
		fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: endLbl})
	}
	fc.mark(elseLbl)

	allDiverge := thenDiv
	if len(n.Children) > 4 {
		elseAddr, elseDiv, err := a.compileExpr(fc, n.Children[4])
		if err != nil {
			return noAddr, false, err
		}
		if !elseDiv {
			copyOrUnit(fc, elseAddr, out)
		}
		allDiverge = allDiverge && elseDiv
	} else {
		allDiverge = false // missing else branch always falls through with Unit
	}
	fc.mark(endLbl)
	if allDiverge {
		return noAddr, true, nil
	}
	return out, false, nil
}

func copyOrUnit(fc *funcCtx, src, dst value.Address) {
	if src == noAddr {
		fc.emit(unit.Inst{Op: unit.OpPush, PushValue: value.Unit(), Out: value.OutputTo(dst)})
		return
	}
	fc.emit(unit.Inst{Op: unit.OpCopy, A: src, Out: value.OutputTo(dst)})
}

func (a *Assembler) compileWhile(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	condLbl := fc.label()
	endLbl := fc.label()
	fc.mark(condLbl)
	cond, div, err := a.compileExpr(fc, n.Children[1])
	if err != nil || div {
		return noAddr, div, err
	}
	fc.emit(unit.Inst{Op: unit.OpJumpIfNot, A: cond, LabelRef: endLbl})

	fc.loops = append(fc.loops, loopCtx{breakLabel: endLbl, continueLabel: condLbl, resultSlot: noAddr})
	if _, _, err := a.compileExpr(fc, n.Children[2]); err != nil {
		return noAddr, false, err
	}
	fc.loops = fc.loops[:len(fc.loops)-1]

	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: condLbl})
	fc.mark(endLbl)
	return noAddr, false, nil
}

func (a *Assembler) compileLoop(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	startLbl := fc.label()
	endLbl := fc.label()
	resultSlot := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpPush, PushValue: value.Unit(), Out: value.OutputTo(resultSlot)})
	fc.mark(startLbl)

	fc.loops = append(fc.loops, loopCtx{breakLabel: endLbl, continueLabel: startLbl, resultSlot: resultSlot})
	if _, _, err := a.compileExpr(fc, n.Children[1]); err != nil {
		return noAddr, false, err
	}
	fc.loops = fc.loops[:len(fc.loops)-1]

	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: startLbl})
	fc.mark(endLbl)
	return resultSlot, false, nil
}

// compileFor lowers `for pat in iter { body }` to the Iterator protocol of
// spec §4.4/§4.7: OpIterNext is called once per pass, rewriting the
// iterator's state slot in place (a (cursor, hi) tuple for a range, the
// remaining-elements Vec for an array, or a Generator handle that tracks
// its own state) and jumping to the loop's end once it reports exhausted.
// The iterable expression is copied into a fresh slot before the first
// call so iterating `xs` never mutates the caller's own `xs` binding.
func (a *Assembler) compileFor(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	pat := n.Children[1]
	iterExpr := n.Children[3]
	iterVal, div, err := a.compileExpr(fc, iterExpr)
	if err != nil || div {
		return noAddr, div, err
	}
	iterState := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpCopy, A: iterVal, Out: value.OutputTo(iterState)})

	condLbl := fc.label()
	endLbl := fc.label()
	fc.mark(condLbl)
	elemAddr := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpIterNext, A: iterState, Out: value.OutputTo(elemAddr), LabelRef: endLbl})

	fc.sc = newScope(fc.sc)
	a.bindPattern(fc, pat, elemAddr)

	fc.loops = append(fc.loops, loopCtx{breakLabel: endLbl, continueLabel: condLbl, resultSlot: noAddr})
	if _, _, err := a.compileExpr(fc, n.Children[4]); err != nil {
		return noAddr, false, err
	}
	fc.loops = fc.loops[:len(fc.loops)-1]
	fc.sc = fc.sc.parent

	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: condLbl})
	fc.mark(endLbl)
	return noAddr, false, nil
}

func (a *Assembler) compileArray(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	var elems []value.Address
	for _, c := range n.Children {
		if c.Kind == syntax.KTrivia || c.Kind == syntax.KPatRest {
			continue
		}
		addr, div, err := a.compileExpr(fc, c)
		if err != nil || div {
			return noAddr, div, err
		}
		elems = append(elems, addr)
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpVec, N: int32(len(elems)), Args: elems, Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileTuple(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	var elems []value.Address
	for _, c := range n.Children {
		if c.Kind == syntax.KTrivia {
			continue
		}
		addr, div, err := a.compileExpr(fc, c)
		if err != nil || div {
			return noAddr, div, err
		}
		elems = append(elems, addr)
	}
	if len(elems) == 1 {
		return elems[0], false, nil // a parenthesized single expression, not a 1-tuple
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpTuple, N: int32(len(elems)), Args: elems, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileObject lowers a bare object literal to the untyped runtime Object
// (spec §3.3), but a `Path { k: v, .. }` struct literal whose Path resolves
// to a registered struct's RTTI (spec §8 scenario 2) instead emits a typed
// OpTypedObject, reordering the written fields to the declaration's field
// order so the VM can address them positionally and never has to consult a
// key-set at construction time.
func (a *Assembler) compileObject(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	start := 0
	var rtti *value.Rtti
	if n.Children[0].Kind == syntax.KPath {
		start = 1 // skip the struct-literal's type path
		rtti = a.structRttis[PathHash(pathSegments(n.Children[0])...)]
	}

	var keys []string
	fieldVals := make(map[string]value.Address)
	i := start + 1 // skip '{'
	for i < len(n.Children) {
		c := n.Children[i]
		if c.Tok != nil && c.Text() == "}" {
			break
		}
		if c.Tok != nil && c.Text() == "," {
			i++
			continue
		}
		// name ':' value
		name := c.Text()
		keys = append(keys, name)
		i += 2 // skip name and ':'
		addr, div, err := a.compileExpr(fc, n.Children[i])
		if err != nil || div {
			return noAddr, div, err
		}
		fieldVals[name] = addr
		i++
	}

	if rtti != nil {
		args := make([]value.Address, len(rtti.Fields))
		for i, f := range rtti.Fields {
			addr, ok := fieldVals[f]
			if !ok {
				return noAddr, false, fmt.Errorf("struct literal is missing field %q", f)
			}
			args[i] = addr
		}
		out := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpTypedObject, Hash: rtti.Hash, Args: args, N: int32(len(args)), Out: value.OutputTo(out)})
		return out, false, nil
	}

	fieldAddrs := make([]value.Address, len(keys))
	for i, k := range keys {
		fieldAddrs[i] = fieldVals[k]
	}
	slot := fc.asm.b.InternObjectKeys(keys)
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpObject, N: int32(len(keys)), Args: fieldAddrs, StaticSlot: slot, Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileField(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	obj, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	fieldName := n.Children[2]
	if fieldName.Tok != nil && fieldName.Tok.Kind == lexer.Int {
		var idx int32
		fmt.Sscanf(fieldName.Text(), "%d", &idx)
		out := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpTupleIndexGetAt, A: obj, N: idx, Out: value.OutputTo(out)})
		return out, false, nil
	}
	slot := a.b.InternString(fieldName.Text())
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpObjectIndexGet, A: obj, StaticSlot: slot, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileIndex lowers `obj[idx]`. A literal integer index (`t[0]`) is
// always positional access on a tuple/vec/struct, never a string-keyed
// object lookup, so it gets the dedicated OpTupleIndexGet rather than the
// generic OpIndexGet a computed or object-keyed index falls back to.
func (a *Assembler) compileIndex(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	obj, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	idxNode := n.Children[2]
	idx, div, err := a.compileExpr(fc, idxNode)
	if err != nil || div {
		return noAddr, div, err
	}
	op := unit.OpIndexGet
	if idxNode.Kind == syntax.KLitInt {
		op = unit.OpTupleIndexGet
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: op, A: obj, B: idx, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileCall lowers `callee(args...)`. A multi-segment or single-segment
// path callee not bound to a local variable is a direct call, resolved by
// hash (a free function, or — when the path names a registered tuple
// struct/variant — a typed constructor built inline via OpTypedTuple/
// OpVariant rather than the generic OpCall/function-table indirection). Any
// other callee (a path bound to a local, a closure literal, or any
// expression that evaluates to a function value) is an indirect OpCallFn.
func (a *Assembler) compileCall(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	callee := n.Children[0]
	var args []value.Address
	for _, c := range n.Children[1:] {
		if c.Tok != nil {
			continue
		}
		addr, div, err := a.compileExpr(fc, c)
		if err != nil {
			return noAddr, false, err
		}
		if div {
			return noAddr, true, nil
		}
		args = append(args, addr)
	}

	if callee.Kind == syntax.KPath {
		segs := pathSegments(callee)
		if len(segs) != 1 {
			return a.compileCallByHash(fc, n, PathHash(segs...), args)
		}
		if addr, ok := fc.sc.lookup(segs[0]); ok {
			return a.compileCallFn(fc, addr, args), false, nil
		}
		return a.compileCallByHash(fc, n, FnHash(segs[0]), args)
	}

	calleeAddr, div, err := a.compileExpr(fc, callee)
	if err != nil || div {
		return noAddr, div, err
	}
	return a.compileCallFn(fc, calleeAddr, args), false, nil
}

// compileCallByHash emits a typed constructor call when hash names a
// registered tuple-struct/tuple-variant, falling back to the generic
// host/free-function OpCall otherwise.
func (a *Assembler) compileCallByHash(fc *funcCtx, n *syntax.Node, hash item.Hash, args []value.Address) (value.Address, bool, error) {
	out := fc.alloc()
	if rtti, ok := a.structRttis[hash]; ok {
		fc.emit(unit.Inst{Op: unit.OpTypedTuple, Hash: rtti.Hash, Args: args, N: int32(len(args)), Out: value.OutputTo(out)})
		return out, false, nil
	}
	if vr, ok := a.variantRttis[hash]; ok {
		fc.emit(unit.Inst{Op: unit.OpVariant, Hash: vr.Hash, Args: args, N: int32(len(args)), Out: value.OutputTo(out)})
		return out, false, nil
	}
	a.b.RequireHash(hash, diag.Span{Source: a.src, Start: n.Span.Start, End: n.Span.End})
	fc.emit(unit.Inst{Op: unit.OpCall, Hash: hash, N: int32(len(args)), Args: args, Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileCallFn(fc *funcCtx, calleeAddr value.Address, args []value.Address) value.Address {
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpCallFn, A: calleeAddr, Args: args, N: int32(len(args)), Out: value.OutputTo(out)})
	return out
}

// compileMethodCall lowers `recv.name(args)` to an instance call keyed by
// Associated(typeHash_of_any, name) — without indexer-level type inference
// the receiver's runtime type tag stands in for typeHash (spec §3.1
// Associated), which the VM resolves dynamically at the call site.
func (a *Assembler) compileMethodCall(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	recv, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	name := n.Children[2].Text()
	args := []value.Address{recv} // receiver is arg 0
	for _, c := range n.Children[3:] {
		if c.Tok != nil {
			continue
		}
		addr, div, err := a.compileExpr(fc, c)
		if err != nil {
			return noAddr, false, err
		}
		if div {
			return noAddr, true, nil
		}
		args = append(args, addr)
	}
	out := fc.alloc()
	// Without indexer-level receiver type inference, the method hash is
	// keyed off a fixed zero type hash; the VM resolves the actual
	// instance method by (runtime-kind, name) instead at the call site.
	fc.emit(unit.Inst{Op: unit.OpCallInstance, A: recv, N: int32(len(args)), Args: args, Hash: item.Associated(0, name), Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileTry(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	operand, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	out := fc.alloc()
	// OpIsValue reports whether operand holds the Ok/Some variant of a
	// Result/Option (true) or the Err/None variant (false); `?` inlines the
	// propagate-on-failure branch directly rather than the VM having a
	// dedicated try-fast-path instruction (see DESIGN.md).
	okLbl := fc.label()
	isOk := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpIsValue, A: operand, Out: value.OutputTo(isOk)})
	fc.emit(unit.Inst{Op: unit.OpJumpIf, A: isOk, LabelRef: okLbl})
	fc.emit(unit.Inst{Op: unit.OpReturn, A: operand})
	fc.mark(okLbl)
	fc.emit(unit.Inst{Op: unit.OpCopy, A: operand, Out: value.OutputTo(out)})
	return out, false, nil
}

func (a *Assembler) compileAwait(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	fut, div, err := a.compileExpr(fc, n.Children[0])
	if err != nil || div {
		return noAddr, div, err
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpAwait, A: fut, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileAsyncBlock lowers `async { body }` into a call to a freshly
// registered generated function with CallConv Async, matching how the
// upstream compiler turns async blocks into anonymous async fns
// (original_source).
func (a *Assembler) compileAsyncBlock(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	body := n.Children[len(n.Children)-1]
	inner := &funcCtx{asm: a, sc: newScope(fc.sc)}
	retAddr, diverged, err := a.compileBlockExpr(inner, body)
	if err != nil {
		return noAddr, false, err
	}
	if !diverged {
		if retAddr == noAddr {
			inner.emit(unit.Inst{Op: unit.OpReturnUnit})
		} else {
			inner.emit(unit.Inst{Op: unit.OpReturn, A: retAddr})
		}
	}
	genHash := item.Hash(uint64(len(a.genBlocks)) + asyncBlockHashBase)
	a.genBlocks = append(a.genBlocks, genHash)
	if err := a.b.AddAssembly(unit.FuncAssembly{
		Hash: genHash, Call: unit.CallAsync, Args: 0, Kind: unit.FnOffset,
		Insts: inner.insts, NumLabels: inner.nLbl,
	}); err != nil {
		return noAddr, false, err
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpCall, Hash: genHash, N: 0, Out: value.OutputTo(out)})
	return out, false, nil
}

const asyncBlockHashBase = item.Hash(0x9e3779b97f4a7c00)

// compileClosure lowers `|params| body` / `move |params| body` to an
// OpLoadFn over a freshly registered generated function, the same
// generated-function-as-FuncAssembly trick compileAsyncBlock uses for
// `async { .. }` blocks, except the generated function also takes every
// free variable of body (found by freeVars) as leading formal parameters,
// snapshotted by value into OpLoadFn's Args at closure-creation time — so
// the returned value.Function closes over the values its free variables
// held when the closure literal ran, not whatever they hold later.
func (a *Assembler) compileClosure(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	var paramPats []*syntax.Node
	for _, c := range n.Children {
		if c.Kind == syntax.KParam {
			paramPats = append(paramPats, c.Children[0])
		}
	}
	body := n.Children[len(n.Children)-1]

	var paramNames []string
	for _, p := range paramPats {
		if p.Kind == syntax.KPatBinding {
			paramNames = append(paramNames, p.Text())
		}
	}

	var captureAddrs []value.Address
	var captureNames []string
	for _, name := range freeVars(paramNames, body) {
		if addr, ok := fc.sc.lookup(name); ok {
			captureAddrs = append(captureAddrs, addr)
			captureNames = append(captureNames, name)
		}
		// A free name not bound in the enclosing scope resolves as a free
		// function reference inside the closure body instead, through the
		// same compilePath fallback an ordinary function uses.
	}

	inner := &funcCtx{asm: a, sc: newScope(nil)}
	for _, name := range captureNames {
		inner.sc.bind(name, inner.alloc())
	}
	for _, p := range paramPats {
		addr := inner.alloc()
		a.bindPattern(inner, p, addr)
	}

	retAddr, diverged, err := a.compileExpr(inner, body)
	if err != nil {
		return noAddr, false, err
	}
	if !diverged {
		if retAddr == noAddr {
			inner.emit(unit.Inst{Op: unit.OpReturnUnit})
		} else {
			inner.emit(unit.Inst{Op: unit.OpReturn, A: retAddr})
		}
	}

	genHash := item.Hash(uint64(len(a.genBlocks)) + asyncBlockHashBase)
	a.genBlocks = append(a.genBlocks, genHash)
	if err := a.b.AddAssembly(unit.FuncAssembly{
		Hash:      genHash,
		Call:      classifyCallConv(body),
		Args:      uint32(len(captureNames) + len(paramPats)),
		Kind:      unit.FnOffset,
		Insts:     inner.insts,
		NumLabels: inner.nLbl,
	}); err != nil {
		return noAddr, false, err
	}

	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpLoadFn, Hash: genHash, Args: captureAddrs, N: int32(len(captureAddrs)), Out: value.OutputTo(out)})
	return out, false, nil
}

// freeVars returns, in first-reference order, every single-segment KPath
// name read inside body that isn't one of params and isn't bound by a
// nested let/for/match pattern it walks through along the way — the set a
// compiled closure must capture from its enclosing scope. A name bound by
// a nested closure's own params is (conservatively) treated as bound for
// the remainder of this walk too; the narrowing is documented in
// DESIGN.md and only matters if an outer capture is shadowed and then
// un-shadowed by reusing the same name, which source using distinct names
// never triggers.
func freeVars(params []string, body *syntax.Node) []string {
	bound := make(map[string]bool, len(params))
	for _, p := range params {
		bound[p] = true
	}
	var order []string
	seen := make(map[string]bool)
	record := func(name string) {
		if !bound[name] && !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}

	var bindPat func(pat *syntax.Node)
	bindPat = func(pat *syntax.Node) {
		switch pat.Kind {
		case syntax.KPatBinding:
			bound[pat.Text()] = true
		case syntax.KPatArray, syntax.KPatTuple:
			for _, c := range pat.Children {
				if c.Kind == syntax.KPatBinding || c.Kind == syntax.KPatArray ||
					c.Kind == syntax.KPatTuple || c.Kind == syntax.KPatObject {
					bindPat(c)
				}
			}
		case syntax.KPatObject:
			for _, c := range pat.Children {
				if c.Kind != syntax.KPatObjectField {
					continue
				}
				if len(c.Children) > 2 {
					bindPat(c.Children[2])
				} else {
					bound[c.Children[0].Text()] = true
				}
			}
		}
	}

	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case syntax.KPath:
			if segs := pathSegments(n); len(segs) == 1 {
				record(segs[0])
			}
			return
		case syntax.KLetExpr:
			for i := 2; i < len(n.Children); i++ {
				if c := n.Children[i]; c.Kind != syntax.KTrivia {
					walk(c)
					break
				}
			}
			bindPat(n.Children[1])
			return
		case syntax.KForExpr:
			walk(n.Children[3])
			bindPat(n.Children[1])
			walk(n.Children[4])
			return
		case syntax.KParam:
			bindPat(n.Children[0])
			return
		case syntax.KMatchArm:
			bindPat(n.Children[0])
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(body)
	return order
}

// compileSelect lowers `select { pat = fut => body, .. }` (spec §4.4):
// every arm's future is evaluated up front into OpSelect's Args, which
// polls them in order and records the first ready arm's index in the VM's
// branch register; a chained OpJumpIfBranch per arm then dispatches to
// that arm's pattern bind and body, matching how parseSelect tags each arm
// KMatchArm but shapes it [pat, '=', future, '=>', body] (no guard).
func (a *Assembler) compileSelect(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	var arms []*syntax.Node
	var futAddrs []value.Address
	for _, c := range n.Children {
		if c.Kind != syntax.KMatchArm {
			continue
		}
		futAddr, div, err := a.compileExpr(fc, c.Children[2])
		if err != nil || div {
			return noAddr, div, err
		}
		arms = append(arms, c)
		futAddrs = append(futAddrs, futAddr)
	}

	selOut := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpSelect, Args: futAddrs, N: int32(len(futAddrs)), Out: value.OutputTo(selOut)})

	armLbls := make([]unit.Label, len(arms))
	for i := range arms {
		armLbls[i] = fc.label()
		fc.emit(unit.Inst{Op: unit.OpJumpIfBranch, Branch: int64(i), LabelRef: armLbls[i]})
	}
	fc.emit(unit.Inst{Op: unit.OpPanic, Panic: unit.PanicReason{Kind: unit.PanicUnmatchedPattern}})

	out := fc.alloc()
	endLbl := fc.label()
	for i, arm := range arms {
		fc.mark(armLbls[i])
		fc.sc = newScope(fc.sc)
		a.bindPattern(fc, arm.Children[0], selOut)
		bodyAddr, bodyDiv, err := a.compileExpr(fc, arm.Children[4])
		if err != nil {
			return noAddr, false, err
		}
		if !bodyDiv {
			copyOrUnit(fc, bodyAddr, out)
		}
		fc.sc = fc.sc.parent
		fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: endLbl})
	}
	fc.mark(endLbl)
	return out, false, nil
}

func (a *Assembler) compileBreak(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	if len(fc.loops) == 0 {
		return noAddr, false, fmt.Errorf("break outside of a loop")
	}
	l := fc.loops[len(fc.loops)-1]
	if len(n.Children) > 1 {
		val, div, err := a.compileExpr(fc, n.Children[1])
		if err != nil {
			return noAddr, false, err
		}
		if !div && l.resultSlot != noAddr {
			copyOrUnit(fc, val, l.resultSlot)
		}
	}
	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: l.breakLabel})
	return noAddr, true, nil
}

func (a *Assembler) compileContinue(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	if len(fc.loops) == 0 {
		return noAddr, false, fmt.Errorf("continue outside of a loop")
	}
	l := fc.loops[len(fc.loops)-1]
	fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: l.continueLabel})
	return noAddr, true, nil
}

func (a *Assembler) compileReturn(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	if len(n.Children) > 1 {
		val, div, err := a.compileExpr(fc, n.Children[1])
		if err != nil {
			return noAddr, false, err
		}
		if div {
			return noAddr, true, nil
		}
		if val == noAddr {
			fc.emit(unit.Inst{Op: unit.OpReturnUnit})
		} else {
			fc.emit(unit.Inst{Op: unit.OpReturn, A: val})
		}
		return noAddr, true, nil
	}
	fc.emit(unit.Inst{Op: unit.OpReturnUnit})
	return noAddr, true, nil
}

// compileYield lowers `yield expr` / bare `yield` to OpYield/OpYieldUnit
// (spec §4.4 Generator/Stream bodies); the instruction's Out slot receives
// whatever the VM's generator driver resumes the call with (currently
// always Unit — see DESIGN.md on the goroutine-backed generator driver).
func (a *Assembler) compileYield(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	if len(n.Children) > 1 {
		val, div, err := a.compileExpr(fc, n.Children[1])
		if err != nil || div {
			return noAddr, div, err
		}
		out := fc.alloc()
		fc.emit(unit.Inst{Op: unit.OpYield, A: val, Out: value.OutputTo(out)})
		return out, false, nil
	}
	out := fc.alloc()
	fc.emit(unit.Inst{Op: unit.OpYieldUnit, Out: value.OutputTo(out)})
	return out, false, nil
}

// compileMatch lowers to a chain of equality tests against literal/binding
// patterns; a trailing `_` arm is the only guaranteed-exhaustive case, so a
// Panic{UnmatchedPattern} guards non-exhaustive chains (spec §4.7 Panic).
func (a *Assembler) compileMatch(fc *funcCtx, n *syntax.Node) (value.Address, bool, error) {
	subject, div, err := a.compileExpr(fc, n.Children[1])
	if err != nil || div {
		return noAddr, div, err
	}
	out := fc.alloc()
	endLbl := fc.label()
	hasWildcard := false

	for _, c := range n.Children {
		if c.Kind != syntax.KMatchArm {
			continue
		}
		pat := c.Children[0]
		nextLbl := fc.label()

		fc.sc = newScope(fc.sc)
		if pat.Kind == syntax.KPatIgnore || pat.Kind == syntax.KPatBinding {
			if pat.Kind == syntax.KPatBinding {
				fc.sc.bind(pat.Text(), subject)
			}
			hasWildcard = true
		} else if pat.Kind == syntax.KPatLit {
			litVal := a.patternLiteralValue(pat)
			cmp := fc.alloc()
			if op, ok := literalEqOp(litVal); ok {
				fc.emit(unit.Inst{Op: op, A: subject, PushValue: litVal, Out: value.OutputTo(cmp)})
			} else {
				litAddr := a.pushLiteral(fc, litVal)
				fc.emit(unit.Inst{Op: unit.OpArith, Arith: unit.ArithEq, A: subject, B: litAddr, Out: value.OutputTo(cmp)})
			}
			fc.emit(unit.Inst{Op: unit.OpJumpIfNot, A: cmp, LabelRef: nextLbl})
		} else if pat.Kind == syntax.KPatPath && pat.Children[0].Kind == syntax.KPath {
			hash := PathHash(pathSegments(pat.Children[0])...)
			cmp := fc.alloc()
			fc.emit(unit.Inst{Op: unit.OpIsNot, A: subject, Hash: hash, Out: value.OutputTo(cmp)})
			fc.emit(unit.Inst{Op: unit.OpJumpIf, A: cmp, LabelRef: nextLbl})
		}

		bodyIdx := 1
		if c.Children[bodyIdx].Tok != nil && c.Children[bodyIdx].Text() == "if" {
			guard, div, err := a.compileExpr(fc, c.Children[bodyIdx+1])
			if err != nil {
				return noAddr, false, err
			}
			if !div {
				fc.emit(unit.Inst{Op: unit.OpJumpIfNot, A: guard, LabelRef: nextLbl})
			}
			bodyIdx += 3 // 'if', guard, '=>'
		} else {
			bodyIdx = 2 // '=>'
		}
		body := c.Children[bodyIdx]
		bodyAddr, bodyDiv, err := a.compileExpr(fc, body)
		if err != nil {
			return noAddr, false, err
		}
		if !bodyDiv {
			copyOrUnit(fc, bodyAddr, out)
		}
		fc.sc = fc.sc.parent
		fc.emit(unit.Inst{Op: unit.OpJump, LabelRef: endLbl})
		fc.mark(nextLbl)
	}

	if !hasWildcard {
		fc.emit(unit.Inst{Op: unit.OpPanic, Panic: unit.PanicReason{Kind: unit.PanicUnmatchedPattern}})
	}
	fc.mark(endLbl)
	return out, false, nil
}

// patternLiteralValue decodes a KPatLit node's leaf token(s) into the
// runtime Value it matches against. A leading '-' leaf (Children[0], only
// present for a negative integer literal — parsePattern's only accepted
// unary case) negates the parsed magnitude.
func (a *Assembler) patternLiteralValue(pat *syntax.Node) value.Value {
	lit := pat.Children[0]
	neg := false
	if lit.Kind == syntax.KTrivia && lit.Tok != nil && lit.Tok.Kind == lexer.Minus {
		neg = true
		lit = pat.Children[1]
	}
	text := lit.Text()
	switch lit.Tok.Kind {
	case lexer.Int:
		var i int64
		fmt.Sscanf(text, "%d", &i)
		if neg {
			i = -i
		}
		return value.Integer(i)
	case lexer.Float:
		var f float64
		fmt.Sscanf(text, "%g", &f)
		if neg {
			f = -f
		}
		return value.Float(f)
	case lexer.KwTrue, lexer.KwFalse:
		return value.Bool(text == "true")
	case lexer.Str:
		return value.String(text)
	case lexer.Char:
		r := []rune(text)
		var c rune
		if len(r) > 0 {
			c = r[0]
		}
		return value.Char(c)
	case lexer.Byte:
		var b byte
		if len(text) > 0 {
			b = text[0]
		}
		return value.Byte(b)
	default:
		return value.Unit()
	}
}

// literalEqOp picks the dedicated Eq opcode for a pattern literal's kind
// (spec §4.7), matching how OpPush carries its operand directly in
// Inst.PushValue rather than through a static slot. Float has no dedicated
// opcode (spec leaves float pattern equality to the generic arithmetic
// comparison, same as `==`), so callers fall back to OpArith/ArithEq.
func literalEqOp(v value.Value) (unit.Op, bool) {
	switch v.Kind() {
	case value.KindInteger:
		return unit.OpEqInteger, true
	case value.KindByte:
		return unit.OpEqByte, true
	case value.KindChar:
		return unit.OpEqCharacter, true
	case value.KindString:
		return unit.OpEqStaticString, true
	case value.KindBool:
		return unit.OpEqBool, true
	default:
		return 0, false
	}
}
