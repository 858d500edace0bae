// Package query implements the Indexer and the Query item database it
// populates (spec §4.3): a single static-analysis pass over a parsed source
// file that assigns every struct/enum/variant/function/const/import/module
// a stable Hash, classifies functions as instance or free (call
// conventions are classified by internal/assemble), and queues deferred
// work (macro expansion, const
// evaluation) to be driven to a fixed point.
package query

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/runelang/rune/internal/item"
	"github.com/runelang/rune/internal/syntax"
	"github.com/runelang/rune/internal/value"
)

// MetaKind discriminates the shape of item a Meta record describes (spec
// §4.3's Meta map: Struct/Enum/Variant/Function/AssociatedFunction/Closure/
// AsyncBlock/Const/ConstFn/Macro/Import/Module/Type/Trait).
type MetaKind uint8

const (
	MetaStruct MetaKind = iota
	MetaEnum
	MetaVariant
	MetaFunction
	MetaAssociatedFunction
	MetaClosure
	MetaAsyncBlock
	MetaConst
	MetaConstFn
	MetaMacro
	MetaImport
	MetaModule
	MetaType
	MetaTrait
)

func (k MetaKind) String() string {
	switch k {
	case MetaStruct:
		return "struct"
	case MetaEnum:
		return "enum"
	case MetaVariant:
		return "variant"
	case MetaFunction:
		return "function"
	case MetaAssociatedFunction:
		return "associated-function"
	case MetaClosure:
		return "closure"
	case MetaAsyncBlock:
		return "async-block"
	case MetaConst:
		return "const"
	case MetaConstFn:
		return "const-fn"
	case MetaMacro:
		return "macro"
	case MetaImport:
		return "import"
	case MetaModule:
		return "module"
	case MetaType:
		return "type"
	case MetaTrait:
		return "trait"
	default:
		return fmt.Sprintf("MetaKind(%d)", k)
	}
}

// Visibility is the subset of spec §4.2's `pub`/`pub(...)` modifier the
// indexer needs to enforce import visibility (spec §4.3/§4.6).
type Visibility uint8

const (
	VisPrivate Visibility = iota
	VisPublic
	VisPublicIn // pub(crate)/pub(super) — restricted scope, stored as Path
)

// Meta is one entry of the Query's item database: everything the indexer
// learned about a single path during its single CST walk.
type Meta struct {
	Kind       MetaKind
	Path       item.Item
	Hash       item.Hash
	Node       *syntax.Node
	Visibility Visibility
	VisPath    item.Item // meaningful only for VisPublicIn

	// Struct/Enum/Variant
	Fields   []string
	EnumHash item.Hash // set on MetaVariant: parent enum's Hash

	// Function/AssociatedFunction/Closure/AsyncBlock/ConstFn
	IsInstance bool // first param pattern is bare `self`
	ParamCount int

	// Const/ConstFn
	ConstValue *value.ConstValue

	// Import
	ImportPath   item.Item
	ImportAlias string

	// Module
	Children []item.Hash
}

// ItemPool is the indexer's content-hash-keyed item store (spec §3.1's pool
// interning, generalized from the teacher's persistent-treap Namespace in
// lang/sym/namespace.go to a flat hash map): unlike Prolog functors, a Rune
// item's Hash already gives total identity and equality, so the treap's
// ordering machinery has no work left to do here — an LRU-bounded map is
// the right-sized replacement (see DESIGN.md).
type ItemPool struct {
	cache *lru.Cache[item.Hash, *Meta]
	all   map[item.Hash]*Meta
}

// NewItemPool creates a pool whose hot-path lookups are served by an LRU of
// the given capacity; the full set is retained in `all` regardless (queries
// over "every public function" still need completeness, not just recency).
func NewItemPool(lruSize int) *ItemPool {
	if lruSize <= 0 {
		lruSize = 256
	}
	c, _ := lru.New[item.Hash, *Meta](lruSize)
	return &ItemPool{cache: c, all: make(map[item.Hash]*Meta)}
}

func (p *ItemPool) Insert(m *Meta) {
	p.all[m.Hash] = m
	p.cache.Add(m.Hash, m)
}

func (p *ItemPool) Get(h item.Hash) (*Meta, bool) {
	if m, ok := p.cache.Get(h); ok {
		return m, true
	}
	m, ok := p.all[h]
	if ok {
		p.cache.Add(h, m)
	}
	return m, ok
}

func (p *ItemPool) All() map[item.Hash]*Meta { return p.all }

func (p *ItemPool) Len() int { return len(p.all) }
