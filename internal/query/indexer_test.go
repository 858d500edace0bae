package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/query"
	"github.com/runelang/rune/internal/syntax"
)

func index(t *testing.T, src string) (*query.Query, *diag.Bag) {
	t.Helper()
	toks := lexer.Lex("test", src)
	var bag diag.Bag
	tree := syntax.Parse("test", toks, &bag)
	require.False(t, bag.HasErrors(), "parse errors: %v", bag.All())

	q := query.NewQuery(0)
	ix := query.NewIndexer(q, &bag)
	ix.IndexFile(tree)
	require.NoError(t, q.Queue.Drain(context.Background()))
	return q, &bag
}

func findOne(q *query.Query, kind query.MetaKind) *query.Meta {
	for _, m := range q.Pool.All() {
		if m.Kind == kind {
			return m
		}
	}
	return nil
}

func TestStructIsIndexedWithItsFields(t *testing.T) {
	q, _ := index(t, `
		struct Point { x, y }
	`)
	m := findOne(q, query.MetaStruct)
	require.NotNil(t, m)
	assert.Equal(t, []string{"x", "y"}, m.Fields)
	assert.Equal(t, query.VisPrivate, m.Visibility)
}

func TestPublicStructIsMarkedPublic(t *testing.T) {
	q, _ := index(t, `pub struct Point { x, y }`)
	m := findOne(q, query.MetaStruct)
	require.NotNil(t, m)
	assert.Equal(t, query.VisPublic, m.Visibility)
}

func TestEnumRegistersItsVariantsLinkedToTheEnum(t *testing.T) {
	q, _ := index(t, `
		enum Shape {
			Circle(f64),
			Point,
		}
	`)
	enum := findOne(q, query.MetaEnum)
	require.NotNil(t, enum)

	found := 0
	for _, m := range q.Pool.All() {
		if m.Kind == query.MetaVariant {
			found++
			assert.Equal(t, enum.Hash, m.EnumHash)
		}
	}
	assert.Equal(t, 2, found)
}

func TestFreeFunctionIsClassifiedAsFunction(t *testing.T) {
	q, _ := index(t, `fn add(a, b) { a + b }`)
	m := findOne(q, query.MetaFunction)
	require.NotNil(t, m)
	assert.False(t, m.IsInstance)
	assert.Equal(t, 2, m.ParamCount)
}

func TestInstanceFunctionInsideImplIsClassifiedAsAssociated(t *testing.T) {
	q, _ := index(t, `
		struct Counter { n }
		impl Counter {
			fn get(self) { self }
		}
	`)
	m := findOne(q, query.MetaAssociatedFunction)
	require.NotNil(t, m)
	assert.True(t, m.IsInstance)
}

func TestInstanceFunctionOutsideImplIsRejected(t *testing.T) {
	_, bag := index(t, `fn get(self) { self }`)
	require.True(t, bag.HasErrors())
	found := false
	for _, d := range bag.All() {
		if d.Kind == diag.KindInstanceFnOutsideImpl {
			found = true
		}
	}
	assert.True(t, found, "expected a KindInstanceFnOutsideImpl diagnostic")
}

func TestConstAndAsyncOnTheSameFunctionIsRejected(t *testing.T) {
	_, bag := index(t, `const async fn compute() { 1 }`)
	require.True(t, bag.HasErrors())
	found := false
	for _, d := range bag.All() {
		if d.Kind == diag.KindConstAsyncConflict {
			found = true
		}
	}
	assert.True(t, found, "expected a KindConstAsyncConflict diagnostic")
}

func TestNestedTestAttributeInsideAnotherFunctionIsRejected(t *testing.T) {
	_, bag := index(t, `
		fn outer() {
			#[test]
			fn inner() { 1 }
			inner()
		}
	`)
	require.True(t, bag.HasErrors())
	found := false
	for _, d := range bag.All() {
		if d.Kind == diag.KindNestedTestOrBench {
			found = true
		}
	}
	assert.True(t, found, "expected a KindNestedTestOrBench diagnostic")
}

func TestTopLevelTestAttributeIsNotRejected(t *testing.T) {
	_, bag := index(t, `
		#[test]
		fn check_addition() { 1 }
	`)
	assert.False(t, bag.HasErrors())
}

func TestConstItemEvaluatesItsLiteralInitializer(t *testing.T) {
	q, bag := index(t, `const LIMIT = 10;`)
	assert.False(t, bag.HasErrors())
	m := findOne(q, query.MetaConst)
	require.NotNil(t, m)
	require.NotNil(t, m.ConstValue)
	n, ok := m.ConstValue.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(10), n)
}

func TestConstItemReferencingAnEarlierConstResolvesAcrossRounds(t *testing.T) {
	q, bag := index(t, `
		const BASE = 10;
		const ALIAS = BASE;
	`)
	assert.False(t, bag.HasErrors())

	var alias *query.Meta
	for _, m := range q.Pool.All() {
		if m.Kind == query.MetaConst && m.Path.String() == "root::ALIAS" {
			alias = m
		}
	}
	require.NotNil(t, alias, "expected a const Meta at root::ALIAS")
	require.NotNil(t, alias.ConstValue, "ALIAS should resolve once BASE's task has run")
	n, ok := alias.ConstValue.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(10), n)
}

func TestUseImportIsIndexedWithItsPath(t *testing.T) {
	q, _ := index(t, `use collections::HashMap;`)
	m := findOne(q, query.MetaImport)
	require.NotNil(t, m)
	assert.Equal(t, "collections::HashMap", m.ImportPath.String())
}

func TestUseImportWithAliasRecordsTheAlias(t *testing.T) {
	q, _ := index(t, `use collections::HashMap as Map;`)
	m := findOne(q, query.MetaImport)
	require.NotNil(t, m)
	assert.Equal(t, "Map", m.ImportAlias)
}

func TestModuleRegistersItsNestedStruct(t *testing.T) {
	q, _ := index(t, `
		mod shapes {
			struct Circle { radius }
		}
	`)
	mod := findOne(q, query.MetaModule)
	require.NotNil(t, mod)
	require.Len(t, mod.Children, 1)

	s := findOne(q, query.MetaStruct)
	require.NotNil(t, s)
	assert.Equal(t, s.Hash, mod.Children[0])
}

func TestDeriveAttributeIsQueuedAsAnUnrecognizedMacroCall(t *testing.T) {
	_, bag := index(t, `
		#[derive(Debug)]
		struct Point { x, y }
	`)
	// derive isn't one of the recognized builtins, but it's still a
	// syntactically valid attribute: queuing it as ExpandMacroCall rather
	// than erroring is the point of the test.
	assert.False(t, bag.HasErrors())
}
