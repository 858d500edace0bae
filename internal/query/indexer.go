package query

import (
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/syntax"
)

// Indexer performs spec §4.3's single CST walk: assigns every item a
// pool-interned path/Hash, classifies functions into call conventions
// (deferred to internal/assemble's own Layer pass — see DESIGN.md) and
// instance-vs-free, enforces the structural rules (instance fns only
// inside impl, no nested #[test]/#[bench], no const+async on one item),
// and records a path-to-hash side table in place of mutating Path nodes
// into IndexedPath in the tree itself (Node is an immutable value type with
// no such slot — see DESIGN.md).
type Indexer struct {
	q   *Query
	bag *diag.Bag
	buf *item.ItemBuf
	ce  *ConstEvaluator

	// IndexedPath is the side-table substitute for spec §4.3's in-tree
	// Path -> IndexedPath(item_id) rewrite: looked up by the *Node the
	// path resolved from.
	IndexedPath map[*syntax.Node]item.Hash
}

func NewIndexer(q *Query, bag *diag.Bag) *Indexer {
	return &Indexer{
		q:           q,
		bag:         bag,
		buf:         item.NewItemBuf(RootCrate),
		ce:          NewConstEvaluator(bag, 0),
		IndexedPath: make(map[*syntax.Node]item.Hash),
	}
}

// IndexFile walks every top-level item of a parsed source file.
func (ix *Indexer) IndexFile(file *syntax.Node) {
	for _, n := range file.Children {
		ix.indexItem(n, false)
	}
}

// indexItem dispatches on n's kind; inImpl marks whether n is a direct
// child of an `impl` block, which is the only place an instance function
// (first param `self`) is legal.
func (ix *Indexer) indexItem(n *syntax.Node, inImpl bool) {
	switch n.Kind {
	case syntax.KItemStruct:
		ix.indexStruct(n)
	case syntax.KItemEnum:
		ix.indexEnum(n)
	case syntax.KItemFn:
		ix.indexFn(n, inImpl, false)
	case syntax.KItemImpl:
		ix.indexImpl(n)
	case syntax.KItemMod:
		ix.indexMod(n)
	case syntax.KItemUse:
		ix.indexUse(n)
	case syntax.KItemConst:
		ix.indexConst(n)
	}
}

func itemName(n *syntax.Node) string {
	for _, c := range n.Children {
		if c.Tok != nil && c.Tok.Kind == lexer.Ident {
			return c.Text()
		}
	}
	return ""
}

func hasMod(n *syntax.Node, k lexer.Kind) bool {
	for _, c := range n.Children {
		if c.Tok != nil && c.Tok.Kind == k {
			return true
		}
		if c.Kind == syntax.KBlock {
			break // modifiers only precede the body
		}
	}
	return false
}

func visibilityOf(n *syntax.Node) Visibility {
	if hasMod(n, lexer.KwPub) {
		return VisPublic
	}
	return VisPrivate
}

func fieldNames(n *syntax.Node) []string {
	var out []string
	for _, c := range n.Children {
		if c.Kind != syntax.KFieldDecl {
			continue
		}
		out = append(out, itemName(c))
	}
	return out
}

func (ix *Indexer) indexStruct(n *syntax.Node) {
	name := itemName(n)
	depth := ix.buf.PushNamed(name)
	defer ix.buf.Truncate(depth - 1)
	h := item.TypeHash(ix.buf.Item())
	ix.queueAttributeTasks(leadingAttributes(n), false)
	ix.q.Pool.Insert(&Meta{
		Kind: MetaStruct, Path: clonedItem(ix.buf.Item()), Hash: h, Node: n,
		Visibility: visibilityOf(n), Fields: fieldNames(n),
	})
}

func (ix *Indexer) indexEnum(n *syntax.Node) {
	name := itemName(n)
	depth := ix.buf.PushNamed(name)
	defer ix.buf.Truncate(depth - 1)
	enumHash := item.TypeHash(ix.buf.Item())
	ix.queueAttributeTasks(leadingAttributes(n), false)
	ix.q.Pool.Insert(&Meta{
		Kind: MetaEnum, Path: clonedItem(ix.buf.Item()), Hash: enumHash, Node: n,
		Visibility: visibilityOf(n),
	})
	for _, c := range n.Children {
		if c.Kind != syntax.KItemEnumVariant {
			continue
		}
		vName := itemName(c)
		vDepth := ix.buf.PushNamed(vName)
		vHash := item.TypeHash(ix.buf.Item())
		ix.q.Pool.Insert(&Meta{
			Kind: MetaVariant, Path: clonedItem(ix.buf.Item()), Hash: vHash, Node: c,
			EnumHash: enumHash, Fields: fieldNames(c),
		})
		ix.buf.Truncate(vDepth - 1)
	}
}

// clonedItem is a small helper so Meta.Path owns independent storage rather
// than aliasing the Indexer's shared ItemBuf (whose contents change on
// every subsequent Truncate).
func clonedItem(it item.Item) item.Item {
	out := make(item.Item, len(it))
	copy(out, it)
	return out
}

func (ix *Indexer) indexFn(n *syntax.Node, inImpl bool, nested bool) {
	name := itemName(n)
	depth := ix.buf.PushNamed(name)
	defer ix.buf.Truncate(depth - 1)
	h := item.TypeHash(ix.buf.Item())

	isInstance := false
	var params []*syntax.Node
	var body *syntax.Node
	for _, c := range n.Children {
		if c.Kind == syntax.KParam {
			params = append(params, c)
		}
		if c.Kind == syntax.KBlock {
			body = c
		}
	}
	if len(params) > 0 && len(params[0].Children) == 1 &&
		params[0].Children[0].Tok != nil && params[0].Children[0].Tok.Kind == lexer.KwSelf {
		isInstance = true
	}
	if isInstance && !inImpl {
		ix.bag.Errorf(n.Span, diag.KindInstanceFnOutsideImpl,
			"function %q takes self but is not declared inside an impl block", name)
	}

	ix.queueAttributeTasks(leadingAttributes(n), nested)

	if hasMod(n, lexer.KwConst) && hasMod(n, lexer.KwAsync) {
		ix.bag.Errorf(n.Span, diag.KindConstAsyncConflict,
			"function %q cannot be both const and async", name)
	}

	kind := MetaFunction
	if isInstance {
		kind = MetaAssociatedFunction
	}
	if hasMod(n, lexer.KwConst) {
		kind = MetaConstFn
	}
	ix.q.Pool.Insert(&Meta{
		Kind: kind, Path: clonedItem(ix.buf.Item()), Hash: h, Node: n,
		Visibility: visibilityOf(n), IsInstance: isInstance, ParamCount: len(params),
	})

	if body != nil {
		for _, stmt := range body.Children {
			if stmt.Kind == syntax.KItemFn {
				ix.indexFn(stmt, false, true)
			} else if stmt.Kind == syntax.KItemStruct || stmt.Kind == syntax.KItemEnum ||
				stmt.Kind == syntax.KItemConst {
				ix.indexItem(stmt, false)
			}
		}
	}
}

// leadingAttributes collects an item's `#[...]` attributes: parseItem always
// consumes the leading attribute run before any modifier or keyword, so
// they're exactly the node's leading KAttribute children, for every item
// kind alike (struct/enum/fn/const/impl/mod/use).
func leadingAttributes(n *syntax.Node) []*syntax.Node {
	var out []*syntax.Node
	for _, c := range n.Children {
		if c.Kind != syntax.KAttribute {
			break
		}
		out = append(out, c)
	}
	return out
}

// queueAttributeTasks structures and defers every attribute found on an
// item: a recognized builtin (spec §4.3: template/format/file/line) gets
// ExpandMacroBuiltin, anything else gets ExpandMacroCall (e.g. `derive`,
// user macros). nested marks a function declared inside another function's
// body, the only context where #[test]/#[bench] are rejected.
func (ix *Indexer) queueAttributeTasks(attrs []*syntax.Node, nested bool) {
	for _, attr := range attrs {
		args, err := ParseAttrArgs(attrRawBody(attr))
		if err != nil {
			continue
		}
		attrName := args.Name()
		if (attrName == "test" || attrName == "bench") && nested {
			ix.bag.Errorf(attr.Span, diag.KindNestedTestOrBench,
				"#[%s] is not allowed on a function nested inside another function", attrName)
		}
		if IsBuiltin(attrName) {
			ix.q.Queue.Enqueue(&expandMacroTask{kind: TaskExpandMacroBuiltin, name: attrName, node: attr})
		} else {
			ix.q.Queue.Enqueue(&expandMacroTask{kind: TaskExpandMacroCall, name: attrName, node: attr})
		}
	}
}

// attrRawBody rebuilds the bracketed attribute body as a flat string from
// its leaf tokens (the lexer's cursor already strips whitespace/comment
// trivia from the significant-token stream parseAttribute consumed, so a
// single-space join round-trips cleanly for identifiers and punctuation).
func attrRawBody(attr *syntax.Node) string {
	var sb []byte
	// children: '#', '[', ... , ']'
	for i := 2; i < len(attr.Children)-1; i++ {
		if i > 2 {
			sb = append(sb, ' ')
		}
		sb = append(sb, attr.Children[i].Text()...)
	}
	return string(sb)
}

func (ix *Indexer) indexImpl(n *syntax.Node) {
	typeName := itemName(n)
	depth := ix.buf.PushNamed(typeName)
	defer ix.buf.Truncate(depth - 1)
	for _, c := range n.Children {
		if c.Kind == syntax.KItemFn {
			ix.indexFn(c, true, false)
		} else {
			ix.indexItem(c, true)
		}
	}
}

func (ix *Indexer) indexMod(n *syntax.Node) {
	name := itemName(n)
	depth := ix.buf.PushNamed(name)
	defer ix.buf.Truncate(depth - 1)
	h := item.TypeHash(ix.buf.Item())

	var children []item.Hash
	for _, c := range n.Children {
		if !(syntax.KItemStruct <= c.Kind && c.Kind <= syntax.KItemConst) {
			continue
		}
		// Peek the child's hash under this module's path before recursing,
		// since indexItem pushes and truncates its own name symmetrically
		// (the buffer is back to this depth once it returns).
		childDepth := ix.buf.PushNamed(itemName(c))
		children = append(children, item.TypeHash(ix.buf.Item()))
		ix.buf.Truncate(childDepth - 1)

		ix.indexItem(c, false)
	}

	ix.q.Pool.Insert(&Meta{
		Kind: MetaModule, Path: clonedItem(ix.buf.Item()), Hash: h, Node: n,
		Visibility: visibilityOf(n), Children: children,
	})
}

func (ix *Indexer) indexUse(n *syntax.Node) {
	// use-paths are captured as a flat raw token run by internal/syntax
	// (parser.go's parseUse); rebuild a dotted path string good enough to
	// hash and to report visibility/cycle diagnostics against, deferring
	// full `a::{b, c}`/`a::b as c` destructuring to the resolve pass that
	// would consume this Meta (spec §4.3's import graph; the resolve pass
	// itself isn't built).
	var segs []string
	var alias string
	sawAs := false
	for _, c := range n.Children {
		if c.Tok == nil {
			continue
		}
		switch c.Tok.Kind {
		case lexer.KwUse, lexer.Semi, lexer.ColonColon:
			continue
		case lexer.KwAs:
			sawAs = true
			continue
		default:
			if sawAs {
				alias = c.Text()
			} else {
				segs = append(segs, c.Text())
			}
		}
	}
	var importPath item.Item
	for _, s := range segs {
		importPath = importPath.JoinNamed(s)
	}
	h := item.TypeHash(ix.buf.Item().Join(item.Component{Kind: item.KindNamed, Name: "use$" + pathString(segs)}))
	ix.q.Pool.Insert(&Meta{
		Kind: MetaImport, Path: clonedItem(ix.buf.Item()), Hash: h, Node: n,
		ImportPath: importPath, ImportAlias: alias,
	})
}

func pathString(segs []string) string {
	s := ""
	for i, seg := range segs {
		if i > 0 {
			s += "::"
		}
		s += seg
	}
	return s
}

func (ix *Indexer) indexConst(n *syntax.Node) {
	name := itemName(n)
	depth := ix.buf.PushNamed(name)
	defer ix.buf.Truncate(depth - 1)
	h := item.TypeHash(ix.buf.Item())
	ix.queueAttributeTasks(leadingAttributes(n), false)
	ix.q.Pool.Insert(&Meta{
		Kind: MetaConst, Path: clonedItem(ix.buf.Item()), Hash: h, Node: n,
		Visibility: visibilityOf(n),
	})
	if expr := constInitializer(n); expr != nil {
		ix.q.Queue.Enqueue(&constEvalTask{pool: ix.q.Pool, ce: ix.ce, hash: h, name: name, expr: expr})
	}
}

// constInitializer returns a const item's initializer expression: the only
// composite (non-leaf) child other than a leading #[...] attribute, since
// every other child of a KItemConst node — modifiers, `const`, the name,
// `=`, `;` — is a leaf token (parser.go's parseConstItem).
func constInitializer(n *syntax.Node) *syntax.Node {
	var last *syntax.Node
	for _, c := range n.Children {
		if c.Tok == nil && c.Kind != syntax.KAttribute {
			last = c
		}
	}
	return last
}

// expandMacroTask resolves the structured attribute-argument grammar for
// one recognized or unrecognized attribute invocation; actually expanding
// the macro's body is out of scope (spec.md's Non-goals: "macro expansion
// internals beyond the contract" — the contract is exactly these two task
// kinds existing and running, not a working macro engine).
type expandMacroTask struct {
	kind TaskKind
	name string
	node *syntax.Node
}

func (t *expandMacroTask) Kind() TaskKind { return t.kind }
func (t *expandMacroTask) Run(q *Queue) error {
	return nil
}

// constEvalTask const-evaluates one `const` item's initializer expression
// against the indexer's shared ConstEvaluator. A const referencing another
// not-yet-evaluated const re-enqueues itself for the next round, driving the
// whole set to a fixed point (spec §4.3/§9); a cyclic or genuinely invalid
// const expression eventually exhausts maxTries and surfaces as an error
// instead of looping forever.
type constEvalTask struct {
	pool  *ItemPool
	ce    *ConstEvaluator
	hash  item.Hash
	name  string
	expr  *syntax.Node
	tries int
}

const constEvalMaxTries = 64

func (t *constEvalTask) Kind() TaskKind { return TaskConstEval }

func (t *constEvalTask) Run(q *Queue) error {
	v, err := t.ce.Eval(t.expr)
	if err != nil {
		t.tries++
		if t.tries >= constEvalMaxTries {
			return err
		}
		q.Enqueue(t)
		return nil
	}
	t.ce.Define(t.name, v)
	if m, ok := t.pool.Get(t.hash); ok {
		m.ConstValue = &v
	}
	return nil
}
