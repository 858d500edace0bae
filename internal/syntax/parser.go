package syntax

import (
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/lexer"
)

// Parser builds a Node tree from a token stream, generalized from the
// teacher's Pratt read/readOp loop (lang/parser.go) to Rune's grammar: the
// teacher parsed a single fixed Prolog operator table into a term tree, this
// parser walks items/statements/expressions/patterns into a lossless CST
// and never aborts on the first error — on a grammar mismatch it emits a
// KError node wrapping the offending tokens and resynchronizes at the next
// statement/item boundary, exactly as spec §4.2 requires.
type parser struct {
	c      *lexer.Cursor
	bag    *diag.Bag
	source diag.SourceID
}

// Parse tokenizes an already-lexed stream into a lossless CST rooted at a
// KSourceFile node. Diagnostics are appended to bag; a non-nil tree is
// always returned even when bag.HasErrors().
func Parse(source diag.SourceID, tokens []lexer.Token, bag *diag.Bag) *Node {
	p := &parser{c: lexer.NewCursor(tokens), bag: bag, source: source}
	return p.parseSourceFile()
}

func (p *parser) span(start, end lexer.Token) diag.Span {
	return diag.Span{Source: p.source, Start: start.Span.Start, End: end.Span.End}
}

func (p *parser) errf(tok lexer.Token, kind diag.Kind, format string, args ...any) *Node {
	p.bag.Errorf(tok.Span, kind, format, args...)
	return &Node{Kind: KError, Span: tok.Span, Tok: &tok}
}

// expect consumes the next non-trivia token if it matches k, else reports
// KindExpected and resynchronizes by returning an Error leaf without
// consuming (so the caller's recovery loop can make progress on the token
// that actually appeared).
func (p *parser) expect(k lexer.Kind, what string) *Node {
	tok := p.c.Peek(0)
	if tok.Kind != k {
		return p.errf(tok, diag.KindExpected, "expected %s", what)
	}
	return leafRaw(p.c.Next())
}

func leafRaw(tok lexer.Token) *Node {
	return &Node{Kind: KTrivia, Span: tok.Span, Tok: &tok}
}

func (p *parser) at(k lexer.Kind) bool  { return p.c.Peek(0).Kind == k }
func (p *parser) atEOF() bool           { return p.c.Peek(0).Kind == lexer.EOF }
func (p *parser) next() lexer.Token     { return p.c.Next() }
func (p *parser) peek() lexer.Token     { return p.c.Peek(0) }
func (p *parser) peek2() lexer.Token    { return p.c.Peek(1) }

// startsConstItem reports whether the `const` token at the current position
// introduces a bare `const NAME = expr;` item rather than being the first of
// a modifier run (`const fn`, `const async fn`, `pub const async fn`, ...)
// that eventually reaches `fn`. It scans ahead over Pub/Const/Async/Move
// tokens — including a `pub(...)` visibility group — without consuming
// anything; reaching `fn` means the run is a modifier run, reaching
// anything else (the const's name) means it's a const item.
func (p *parser) startsConstItem() bool {
	n := 0
	for {
		t := p.c.Peek(n)
		switch t.Kind {
		case lexer.KwPub:
			n++
			if p.c.Peek(n).Kind == lexer.LParen {
				n++
				for p.c.Peek(n).Kind != lexer.RParen && p.c.Peek(n).Kind != lexer.EOF {
					n++
				}
				if p.c.Peek(n).Kind == lexer.RParen {
					n++
				}
			}
		case lexer.KwConst, lexer.KwAsync, lexer.KwMove:
			n++
		case lexer.KwFn:
			return false
		default:
			return true
		}
	}
}

// ---- source file / items --------------------------------------------------

func (p *parser) parseSourceFile() *Node {
	start := p.peek()
	var items []*Node
	for !p.atEOF() {
		items = append(items, p.parseItem())
	}
	end := start
	if len(items) > 0 {
		end = lexer.Token{Span: items[len(items)-1].Span}
	}
	return node(KSourceFile, p.span(start, end), items...)
}

// parseItem parses one top-level or nested item, per spec §4.2's item
// grammar: struct/enum/fn/impl/mod/use/const, each with optional leading
// attributes and a visibility/async/const/move modifier set.
func (p *parser) parseItem() *Node {
	start := p.peek()
	var children []*Node

	for p.at(lexer.Pound) {
		children = append(children, p.parseAttribute())
	}

	seenMods := map[lexer.Kind]bool{}
	for {
		k := p.peek().Kind
		// A leading `const` only reads as a modifier (`const fn`, `const
		// async fn`, ...) when the run eventually reaches `fn`; a bare
		// `const NAME = expr;` item keeps its `const` for parseConstItem to
		// consume itself, so don't swallow it here.
		if k == lexer.KwConst && p.startsConstItem() {
			break
		}
		if k == lexer.KwPub || k == lexer.KwConst || k == lexer.KwAsync || k == lexer.KwMove {
			if seenMods[k] {
				p.errf(p.peek(), diag.KindDuplicateModifier, "duplicate modifier")
			}
			seenMods[k] = true
			children = append(children, leafRaw(p.next()))
			if k == lexer.KwPub && p.at(lexer.LParen) {
				children = append(children, leafRaw(p.next()))
				for !p.at(lexer.RParen) && !p.atEOF() {
					children = append(children, leafRaw(p.next()))
				}
				if p.at(lexer.RParen) {
					children = append(children, leafRaw(p.next()))
				}
			}
			continue
		}
		break
	}

	switch p.peek().Kind {
	case lexer.KwStruct:
		return p.parseStruct(start, children)
	case lexer.KwEnum:
		return p.parseEnum(start, children)
	case lexer.KwFn:
		return p.parseFn(start, children)
	case lexer.KwImpl:
		return p.parseImpl(start, children)
	case lexer.KwMod:
		return p.parseMod(start, children)
	case lexer.KwUse:
		return p.parseUse(start, children)
	case lexer.KwConst:
		return p.parseConstItem(start, children)
	default:
		bad := p.next()
		children = append(children, p.errf(bad, diag.KindExpected, "expected an item"))
		return node(KError, p.span(start, bad), children...)
	}
}

func (p *parser) parseAttribute() *Node {
	start := p.next() // '#'
	children := []*Node{leafRaw(start)}
	children = append(children, p.expect(lexer.LBracket, "'['"))
	depth := 1
	for depth > 0 && !p.atEOF() {
		t := p.peek()
		if t.Kind == lexer.LBracket {
			depth++
		} else if t.Kind == lexer.RBracket {
			depth--
			if depth == 0 {
				children = append(children, leafRaw(p.next()))
				break
			}
		}
		children = append(children, leafRaw(p.next()))
	}
	last := children[len(children)-1]
	return node(KAttribute, p.span(start, *last.Tok), children...)
}

func (p *parser) parseStruct(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'struct'
	head = append(head, p.expect(lexer.Ident, "struct name"))
	if p.at(lexer.LBrace) {
		head = append(head, leafRaw(p.next()))
		for !p.at(lexer.RBrace) && !p.atEOF() {
			head = append(head, p.parseFieldDecl())
			if p.at(lexer.Comma) {
				head = append(head, leafRaw(p.next()))
			}
		}
		head = append(head, p.expect(lexer.RBrace, "'}'"))
	} else if p.at(lexer.LParen) {
		head = append(head, leafRaw(p.next()))
		for !p.at(lexer.RParen) && !p.atEOF() {
			head = append(head, p.expect(lexer.Ident, "type path"))
			if p.at(lexer.Comma) {
				head = append(head, leafRaw(p.next()))
			}
		}
		head = append(head, p.expect(lexer.RParen, "')'"))
		head = append(head, p.expect(lexer.Semi, "';'"))
	} else {
		head = append(head, p.expect(lexer.Semi, "';'"))
	}
	last := head[len(head)-1]
	return node(KItemStruct, p.span(start, endTok(last)), head...)
}

func (p *parser) parseFieldDecl() *Node {
	start := p.peek()
	var children []*Node
	if p.at(lexer.KwPub) {
		children = append(children, leafRaw(p.next()))
	}
	children = append(children, p.expect(lexer.Ident, "field name"))
	if p.at(lexer.Colon) {
		children = append(children, leafRaw(p.next()))
		children = append(children, p.expect(lexer.Ident, "type"))
	}
	last := children[len(children)-1]
	return node(KFieldDecl, p.span(start, endTok(last)), children...)
}

func (p *parser) parseEnum(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'enum'
	head = append(head, p.expect(lexer.Ident, "enum name"))
	head = append(head, p.expect(lexer.LBrace, "'{'"))
	for !p.at(lexer.RBrace) && !p.atEOF() {
		head = append(head, p.parseEnumVariant())
		if p.at(lexer.Comma) {
			head = append(head, leafRaw(p.next()))
		}
	}
	head = append(head, p.expect(lexer.RBrace, "'}'"))
	last := head[len(head)-1]
	return node(KItemEnum, p.span(start, endTok(last)), head...)
}

func (p *parser) parseEnumVariant() *Node {
	start := p.peek()
	children := []*Node{p.expect(lexer.Ident, "variant name")}
	if p.at(lexer.LBrace) {
		children = append(children, leafRaw(p.next()))
		for !p.at(lexer.RBrace) && !p.atEOF() {
			children = append(children, p.parseFieldDecl())
			if p.at(lexer.Comma) {
				children = append(children, leafRaw(p.next()))
			}
		}
		children = append(children, p.expect(lexer.RBrace, "'}'"))
	} else if p.at(lexer.LParen) {
		children = append(children, leafRaw(p.next()))
		for !p.at(lexer.RParen) && !p.atEOF() {
			children = append(children, p.expect(lexer.Ident, "type"))
			if p.at(lexer.Comma) {
				children = append(children, leafRaw(p.next()))
			}
		}
		children = append(children, p.expect(lexer.RParen, "')'"))
	}
	last := children[len(children)-1]
	return node(KItemEnumVariant, p.span(start, endTok(last)), children...)
}

func (p *parser) parseFn(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'fn'
	head = append(head, p.expect(lexer.Ident, "function name"))
	head = append(head, p.expect(lexer.LParen, "'('"))
	for !p.at(lexer.RParen) && !p.atEOF() {
		head = append(head, p.parseParam())
		if p.at(lexer.Comma) {
			head = append(head, leafRaw(p.next()))
		}
	}
	head = append(head, p.expect(lexer.RParen, "')'"))
	if p.at(lexer.ThinArrow) {
		head = append(head, leafRaw(p.next()))
		head = append(head, p.expect(lexer.Ident, "return type"))
	}
	if p.at(lexer.Semi) {
		head = append(head, leafRaw(p.next())) // trait-method declaration, no body
	} else {
		head = append(head, p.parseBlock())
	}
	last := head[len(head)-1]
	return node(KItemFn, p.span(start, endTok(last)), head...)
}

func (p *parser) parseParam() *Node {
	start := p.peek()
	var children []*Node
	if p.at(lexer.KwSelf) {
		children = append(children, leafRaw(p.next()))
		last := children[len(children)-1]
		return node(KParam, p.span(start, endTok(last)), children...)
	}
	children = append(children, p.parsePattern())
	if p.at(lexer.Colon) {
		children = append(children, leafRaw(p.next()))
		children = append(children, p.expect(lexer.Ident, "type"))
	}
	last := children[len(children)-1]
	return node(KParam, p.span(start, endTok(last)), children...)
}

func (p *parser) parseImpl(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'impl'
	head = append(head, p.expect(lexer.Ident, "type name"))
	head = append(head, p.expect(lexer.LBrace, "'{'"))
	for !p.at(lexer.RBrace) && !p.atEOF() {
		head = append(head, p.parseItem())
	}
	head = append(head, p.expect(lexer.RBrace, "'}'"))
	last := head[len(head)-1]
	return node(KItemImpl, p.span(start, endTok(last)), head...)
}

func (p *parser) parseMod(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'mod'
	head = append(head, p.expect(lexer.Ident, "module name"))
	if p.at(lexer.Semi) {
		head = append(head, leafRaw(p.next()))
		last := head[len(head)-1]
		return node(KItemMod, p.span(start, endTok(last)), head...)
	}
	head = append(head, p.expect(lexer.LBrace, "'{'"))
	for !p.at(lexer.RBrace) && !p.atEOF() {
		head = append(head, p.parseItem())
	}
	head = append(head, p.expect(lexer.RBrace, "'}'"))
	last := head[len(head)-1]
	return node(KItemMod, p.span(start, endTok(last)), head...)
}

func (p *parser) parseUse(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'use'
	for !p.at(lexer.Semi) && !p.atEOF() {
		head = append(head, leafRaw(p.next()))
	}
	head = append(head, p.expect(lexer.Semi, "';'"))
	last := head[len(head)-1]
	return node(KItemUse, p.span(start, endTok(last)), head...)
}

func (p *parser) parseConstItem(start lexer.Token, head []*Node) *Node {
	head = append(head, leafRaw(p.next())) // 'const'
	head = append(head, p.expect(lexer.Ident, "const name"))
	head = append(head, p.expect(lexer.Eq, "'='"))
	head = append(head, p.parseExpr())
	head = append(head, p.expect(lexer.Semi, "';'"))
	last := head[len(head)-1]
	return node(KItemConst, p.span(start, endTok(last)), head...)
}

func endTok(n *Node) lexer.Token {
	if n.Tok != nil {
		return *n.Tok
	}
	if len(n.Children) > 0 {
		return endTok(n.Children[len(n.Children)-1])
	}
	return lexer.Token{Span: n.Span}
}

// ---- blocks / statements ----------------------------------------------------

func (p *parser) parseBlock() *Node {
	start := p.expect(lexer.LBrace, "'{'")
	children := []*Node{start}
	for !p.at(lexer.RBrace) && !p.atEOF() {
		children = append(children, p.parseStmt()...)
	}
	children = append(children, p.expect(lexer.RBrace, "'}'"))
	last := children[len(children)-1]
	return node(KBlock, spanOf(start, last), children...)
}

func spanOf(a, b *Node) diag.Span {
	return diag.Span{Source: a.Span.Source, Start: a.Span.Start, End: b.Span.End}
}

// parseStmt handles a let-binding, a nested item, or an expression
// statement; blocks are expressions. An expression statement's trailing
// semicolon is optional on every statement and is kept as a leaf when
// present; a block's final expression without one is its tail value.
func (p *parser) parseStmt() []*Node {
	switch p.peek().Kind {
	case lexer.KwLet:
		return []*Node{p.parseLet()}
	case lexer.KwFn, lexer.KwStruct, lexer.KwEnum, lexer.KwConst, lexer.KwUse, lexer.KwImpl, lexer.KwMod, lexer.Pound:
		return []*Node{p.parseItem()}
	default:
		e := p.parseExpr()
		if p.at(lexer.Semi) {
			return []*Node{e, leafRaw(p.next())}
		}
		return []*Node{e}
	}
}

func (p *parser) parseLet() *Node {
	start := p.next() // 'let'
	children := []*Node{leafRaw(start), p.parsePattern()}
	if p.at(lexer.Colon) {
		children = append(children, leafRaw(p.next()))
		children = append(children, p.expect(lexer.Ident, "type"))
	}
	children = append(children, p.expect(lexer.Eq, "'='"))
	children = append(children, p.parseExpr())
	if p.at(lexer.Semi) {
		children = append(children, leafRaw(p.next()))
	}
	last := children[len(children)-1]
	return node(KLetExpr, p.span(start, endTok(last)), children...)
}

// ---- expressions ------------------------------------------------------------

func (p *parser) parseExpr() *Node { return p.parseAssign() }

func (p *parser) parseAssign() *Node {
	lhs := p.parseBinary(0)
	if assignKinds[p.peek().Kind] {
		op := leafRaw(p.next())
		rhs := p.parseAssign()
		return node(KAssignExpr, spanOf(lhs, rhs), lhs, op, rhs)
	}
	return lhs
}

// parseBinary climbs the fixed precedence table generalized from the
// teacher's readOp loop; comparisons at the same tier cannot chain without
// parentheses (spec §4.2), matching KindPrecedenceGroupNeeded.
func (p *parser) parseBinary(minPrec int) *Node {
	lhs := p.parseUnary()
	usedComparison := false
	for {
		op, ok := lookupBinOp(p.peek().Kind)
		if !ok || op.prec < minPrec {
			return lhs
		}
		if comparisonKinds[op.kind] {
			if usedComparison {
				bad := p.peek()
				p.bag.Errorf(bad.Span, diag.KindPrecedenceGroupNeeded,
					"chained comparisons require explicit parentheses")
			}
			usedComparison = true
		}
		opTok := leafRaw(p.next())
		nextMin := op.prec + 1
		if op.rightAssoc {
			nextMin = op.prec
		}
		if op.kind == lexer.KwIs && p.at(lexer.KwNot) {
			notTok := leafRaw(p.next())
			rhs := p.parseBinary(nextMin)
			lhs = node(KBinaryExpr, spanOf(lhs, rhs), lhs, opTok, notTok, rhs)
			continue
		}
		rhs := p.parseBinary(nextMin)
		kind := KBinaryExpr
		if op.kind == lexer.DotDot || op.kind == lexer.DotDotEq {
			kind = KRangeExpr
		}
		lhs = node(kind, spanOf(lhs, rhs), lhs, opTok, rhs)
	}
}

func (p *parser) parseUnary() *Node {
	switch p.peek().Kind {
	case lexer.Minus, lexer.Bang, lexer.Tilde:
		op := leafRaw(p.next())
		operand := p.parseUnary()
		return node(KUnaryExpr, spanOf(op, operand), op, operand)
	default:
		return p.parsePostfix(p.parsePrimary())
	}
}

// parsePostfix chains field access, index, call, method call, `?`, and
// `.await` suffixes onto an already-parsed primary expression.
func (p *parser) parsePostfix(e *Node) *Node {
	for {
		switch p.peek().Kind {
		case lexer.Dot:
			dot := leafRaw(p.next())
			if p.at(lexer.KwAwait) {
				kw := leafRaw(p.next())
				e = node(KAwaitExpr, spanOf(e, kw), e, dot, kw)
				continue
			}
			if p.at(lexer.Int) {
				idx := leafRaw(p.next())
				e = node(KFieldExpr, spanOf(e, idx), e, dot, idx)
				continue
			}
			name := p.expect(lexer.Ident, "field or method name")
			if p.at(lexer.LParen) {
				args := p.parseArgList()
				e = node(KMethodCallExpr, spanOf(e, args), append([]*Node{e, dot, name}, args)...)
			} else {
				e = node(KFieldExpr, spanOf(e, name), e, dot, name)
			}
		case lexer.LParen:
			args := p.parseArgList()
			e = node(KCallExpr, spanOf(e, args), append([]*Node{e}, args)...)
		case lexer.LBracket:
			lb := leafRaw(p.next())
			idx := p.parseExpr()
			rb := p.expect(lexer.RBracket, "']'")
			e = node(KIndexExpr, spanOf(e, rb), e, lb, idx, rb)
		case lexer.Question:
			q := leafRaw(p.next())
			e = node(KTryExpr, spanOf(e, q), e, q)
		default:
			return e
		}
	}
}

// parseArgList returns the flattened `(`, args (with commas), `)` sequence
// so the caller can splice it after the callee/receiver.
func (p *parser) parseArgList() []*Node {
	lp := leafRaw(p.next()) // '('
	children := []*Node{lp}
	for !p.at(lexer.RParen) && !p.atEOF() {
		children = append(children, p.parseExpr())
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	children = append(children, p.expect(lexer.RParen, "')'"))
	return children
}

func (p *parser) parsePrimary() *Node {
	start := p.peek()
	switch start.Kind {
	case lexer.Int:
		return node(KLitInt, start.Span, leafRaw(p.next()))
	case lexer.Float:
		return node(KLitFloat, start.Span, leafRaw(p.next()))
	case lexer.KwTrue, lexer.KwFalse:
		return node(KLitBool, start.Span, leafRaw(p.next()))
	case lexer.Char:
		return node(KLitChar, start.Span, leafRaw(p.next()))
	case lexer.Byte:
		return node(KLitByte, start.Span, leafRaw(p.next()))
	case lexer.Str:
		return node(KLitString, start.Span, leafRaw(p.next()))
	case lexer.ByteStr:
		return node(KLitByteStr, start.Span, leafRaw(p.next()))
	case lexer.Ident, lexer.KwSelf, lexer.KwCrate, lexer.KwSuper:
		return p.parsePathOrStructLit()
	case lexer.LParen:
		return p.parseParenOrTuple()
	case lexer.LBracket:
		return p.parseArrayLit()
	case lexer.LBrace:
		return p.parseBlock()
	case lexer.KwIf:
		return p.parseIf()
	case lexer.KwWhile:
		return p.parseWhile()
	case lexer.KwLoop:
		return p.parseLoop()
	case lexer.KwFor:
		return p.parseFor()
	case lexer.KwMatch:
		return p.parseMatch()
	case lexer.KwSelect:
		return p.parseSelect()
	case lexer.KwBreak:
		kw := leafRaw(p.next())
		if p.startsExpr() {
			v := p.parseExpr()
			return node(KBreakExpr, spanOf(kw, v), kw, v)
		}
		return node(KBreakExpr, kw.Span, kw)
	case lexer.KwContinue:
		kw := leafRaw(p.next())
		return node(KContinueExpr, kw.Span, kw)
	case lexer.KwReturn:
		kw := leafRaw(p.next())
		if p.startsExpr() {
			v := p.parseExpr()
			return node(KReturnExpr, spanOf(kw, v), kw, v)
		}
		return node(KReturnExpr, kw.Span, kw)
	case lexer.KwYield:
		kw := leafRaw(p.next())
		if p.startsExpr() {
			v := p.parseExpr()
			return node(KYieldExpr, spanOf(kw, v), kw, v)
		}
		return node(KYieldExpr, kw.Span, kw)
	case lexer.KwAsync:
		kw := leafRaw(p.next())
		if p.at(lexer.KwMove) {
			kw2 := leafRaw(p.next())
			blk := p.parseBlock()
			return node(KAsyncBlockExpr, spanOf(kw, blk), kw, kw2, blk)
		}
		blk := p.parseBlock()
		return node(KAsyncBlockExpr, spanOf(kw, blk), kw, blk)
	case lexer.KwMove, lexer.Pipe, lexer.PipePipe:
		return p.parseClosure()
	default:
		bad := p.next()
		return p.errf(bad, diag.KindExpected, "expected an expression")
	}
}

func (p *parser) startsExpr() bool {
	switch p.peek().Kind {
	case lexer.Semi, lexer.RBrace, lexer.RParen, lexer.RBracket, lexer.Comma, lexer.EOF:
		return false
	default:
		return true
	}
}

// parsePathOrStructLit disambiguates `Ident { ... }` as a struct literal
// versus a bare path/identifier used as a value (e.g. the condition of an
// `if`, where `{` opens the arm, not a struct body) by requiring the
// following token after `{` to look like a field initializer.
func (p *parser) parsePathOrStructLit() *Node {
	start := p.peek()
	var children []*Node
	children = append(children, leafRaw(p.next()))
	for p.at(lexer.ColonColon) {
		children = append(children, leafRaw(p.next()))
		children = append(children, p.expect(lexer.Ident, "path segment"))
	}
	path := node(KPath, spanOf(leafRaw(start), children[len(children)-1]), children...)
	if p.at(lexer.LBrace) && looksLikeStructLitBody(p.c) {
		return p.parseStructLit(path)
	}
	return path
}

// looksLikeStructLitBody peeks past `{` for `ident :` or an immediate `}`,
// the two shapes that distinguish a struct literal body from a control-flow
// block that happens to follow a bare path.
func looksLikeStructLitBody(c *lexer.Cursor) bool {
	if c.Peek(1).Kind == lexer.RBrace {
		return true
	}
	return c.Peek(1).Kind == lexer.Ident && c.Peek(2).Kind == lexer.Colon
}

func (p *parser) parseStructLit(path *Node) *Node {
	lb := leafRaw(p.next())
	children := []*Node{path, lb}
	for !p.at(lexer.RBrace) && !p.atEOF() {
		name := p.expect(lexer.Ident, "field name")
		colon := p.expect(lexer.Colon, "':'")
		val := p.parseExpr()
		children = append(children, name, colon, val)
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	children = append(children, p.expect(lexer.RBrace, "'}'"))
	last := children[len(children)-1]
	return node(KObjectExpr, spanOf(path, last), children...)
}

func (p *parser) parseParenOrTuple() *Node {
	lp := leafRaw(p.next())
	if p.at(lexer.RParen) {
		rp := leafRaw(p.next())
		return node(KLitUnit, spanOf(lp, rp), lp, rp)
	}
	children := []*Node{lp}
	first := p.parseExpr()
	children = append(children, first)
	isTuple := false
	for p.at(lexer.Comma) {
		isTuple = true
		children = append(children, leafRaw(p.next()))
		if p.at(lexer.RParen) {
			break
		}
		children = append(children, p.parseExpr())
	}
	children = append(children, p.expect(lexer.RParen, "')'"))
	last := children[len(children)-1]
	if !isTuple {
		return node(KTupleExpr, spanOf(lp, last), children...) // single parenthesized expr; treated as a 1-ary grouping node
	}
	return node(KTupleExpr, spanOf(lp, last), children...)
}

func (p *parser) parseArrayLit() *Node {
	lb := leafRaw(p.next())
	children := []*Node{lb}
	for !p.at(lexer.RBracket) && !p.atEOF() {
		if p.at(lexer.DotDot) {
			children = append(children, node(KPatRest, p.peek().Span, leafRaw(p.next())))
		} else {
			children = append(children, p.parseExpr())
		}
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	children = append(children, p.expect(lexer.RBracket, "']'"))
	last := children[len(children)-1]
	return node(KArrayExpr, spanOf(lb, last), children...)
}

func (p *parser) parseIf() *Node {
	kw := leafRaw(p.next())
	cond := p.parseExpr()
	thenBlk := p.parseBlock()
	children := []*Node{kw, cond, thenBlk}
	if p.at(lexer.KwElse) {
		elseKw := leafRaw(p.next())
		children = append(children, elseKw)
		if p.at(lexer.KwIf) {
			children = append(children, p.parseIf())
		} else {
			children = append(children, p.parseBlock())
		}
	}
	last := children[len(children)-1]
	return node(KIfExpr, spanOf(kw, last), children...)
}

func (p *parser) parseWhile() *Node {
	kw := leafRaw(p.next())
	cond := p.parseExpr()
	body := p.parseBlock()
	return node(KWhileExpr, spanOf(kw, body), kw, cond, body)
}

func (p *parser) parseLoop() *Node {
	kw := leafRaw(p.next())
	body := p.parseBlock()
	return node(KLoopExpr, spanOf(kw, body), kw, body)
}

func (p *parser) parseFor() *Node {
	kw := leafRaw(p.next())
	pat := p.parsePattern()
	inKw := p.expect(lexer.KwIn, "'in'")
	iter := p.parseExpr()
	body := p.parseBlock()
	return node(KForExpr, spanOf(kw, body), kw, pat, inKw, iter, body)
}

func (p *parser) parseMatch() *Node {
	kw := leafRaw(p.next())
	subject := p.parseExpr()
	lb := p.expect(lexer.LBrace, "'{'")
	children := []*Node{kw, subject, lb}
	for !p.at(lexer.RBrace) && !p.atEOF() {
		children = append(children, p.parseMatchArm())
	}
	rb := p.expect(lexer.RBrace, "'}'")
	children = append(children, rb)
	return node(KMatchExpr, spanOf(kw, rb), children...)
}

func (p *parser) parseMatchArm() *Node {
	pat := p.parsePattern()
	children := []*Node{pat}
	if p.at(lexer.KwIf) {
		children = append(children, leafRaw(p.next()))
		children = append(children, p.parseExpr())
	}
	arrow := p.expect(lexer.FatArrow, "'=>'")
	body := p.parseExpr()
	children = append(children, arrow, body)
	if p.at(lexer.Comma) {
		children = append(children, leafRaw(p.next()))
	}
	last := children[len(children)-1]
	return node(KMatchArm, spanOf(pat, last), children...)
}

// parseSelect parses the coroutine-fanin form (spec §4.4 Stream call
// convention): `select { pat = future => body, ... }`.
func (p *parser) parseSelect() *Node {
	kw := leafRaw(p.next())
	lb := p.expect(lexer.LBrace, "'{'")
	children := []*Node{kw, lb}
	for !p.at(lexer.RBrace) && !p.atEOF() {
		pat := p.parsePattern()
		eq := p.expect(lexer.Eq, "'='")
		fut := p.parseExpr()
		arrow := p.expect(lexer.FatArrow, "'=>'")
		body := p.parseExpr()
		arm := node(KMatchArm, spanOf(pat, body), pat, eq, fut, arrow, body)
		children = append(children, arm)
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	rb := p.expect(lexer.RBrace, "'}'")
	children = append(children, rb)
	return node(KSelectExpr, spanOf(kw, rb), children...)
}

func (p *parser) parseClosure() *Node {
	start := p.peek()
	var children []*Node
	if p.at(lexer.KwMove) {
		children = append(children, leafRaw(p.next()))
	}
	if p.at(lexer.PipePipe) {
		children = append(children, leafRaw(p.next()))
	} else {
		children = append(children, leafRaw(p.next())) // '|'
		for !p.at(lexer.Pipe) && !p.atEOF() {
			children = append(children, p.parseParam())
			if p.at(lexer.Comma) {
				children = append(children, leafRaw(p.next()))
			}
		}
		children = append(children, p.expect(lexer.Pipe, "'|'"))
	}
	body := p.parseExpr()
	children = append(children, body)
	return node(KClosureExpr, spanOf(leafRaw(start), body), children...)
}

// ---- patterns ---------------------------------------------------------------

func (p *parser) parsePattern() *Node {
	start := p.peek()
	switch start.Kind {
	case lexer.Ident:
		if start.Text == "_" {
			return node(KPatIgnore, start.Span, leafRaw(p.next()))
		}
		if p.peek2().Kind == lexer.ColonColon || p.peek2().Kind == lexer.LParen || p.peek2().Kind == lexer.LBrace {
			path := p.parsePathOrStructLit()
			return node(KPatPath, path.Span, path)
		}
		return node(KPatBinding, start.Span, leafRaw(p.next()))
	case lexer.DotDot:
		return node(KPatRest, start.Span, leafRaw(p.next()))
	case lexer.Int, lexer.Float, lexer.KwTrue, lexer.KwFalse, lexer.Char, lexer.Str, lexer.Byte:
		return node(KPatLit, start.Span, leafRaw(p.next()))
	case lexer.Minus:
		neg := leafRaw(p.next())
		lit := p.expect(lexer.Int, "integer literal")
		return node(KPatLit, spanOf(neg, lit), neg, lit)
	case lexer.LParen:
		return p.parseTuplePattern()
	case lexer.LBracket:
		return p.parseArrayPattern()
	case lexer.LBrace:
		return p.parseObjectPattern()
	default:
		bad := p.next()
		return p.errf(bad, diag.KindUnsupportedPattern, "unsupported pattern")
	}
}

func (p *parser) parseObjectPattern() *Node {
	lb := leafRaw(p.next())
	children := []*Node{lb}
	for !p.at(lexer.RBrace) && !p.atEOF() {
		if p.at(lexer.DotDot) {
			children = append(children, node(KPatRest, p.peek().Span, leafRaw(p.next())))
		} else {
			start := p.expect(lexer.Ident, "field name")
			field := []*Node{start}
			if p.at(lexer.Colon) {
				field = append(field, leafRaw(p.next()))
				field = append(field, p.parsePattern())
			}
			last := field[len(field)-1]
			children = append(children, node(KPatObjectField, spanOf(start, last), field...))
		}
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	children = append(children, p.expect(lexer.RBrace, "'}'"))
	last := children[len(children)-1]
	return node(KPatObject, spanOf(lb, last), children...)
}

func (p *parser) parseTuplePattern() *Node {
	lp := leafRaw(p.next())
	children := []*Node{lp}
	for !p.at(lexer.RParen) && !p.atEOF() {
		children = append(children, p.parsePattern())
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	children = append(children, p.expect(lexer.RParen, "')'"))
	last := children[len(children)-1]
	return node(KPatTuple, spanOf(lp, last), children...)
}

func (p *parser) parseArrayPattern() *Node {
	lb := leafRaw(p.next())
	children := []*Node{lb}
	for !p.at(lexer.RBracket) && !p.atEOF() {
		children = append(children, p.parsePattern())
		if p.at(lexer.Comma) {
			children = append(children, leafRaw(p.next()))
		}
	}
	children = append(children, p.expect(lexer.RBracket, "']'"))
	last := children[len(children)-1]
	return node(KPatArray, spanOf(lb, last), children...)
}
