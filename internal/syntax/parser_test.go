package syntax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/lexer"
	"github.com/runelang/rune/internal/syntax"
)

func parse(t *testing.T, src string) (*syntax.Node, *diag.Bag) {
	t.Helper()
	toks := lexer.Lex("test", src)
	var bag diag.Bag
	tree := syntax.Parse("test", toks, &bag)
	require.NotNil(t, tree)
	return tree, &bag
}

func countKind(n *syntax.Node, k syntax.Kind) int {
	c := 0
	syntax.Walk(n, func(n *syntax.Node) {
		if n.Kind == k {
			c++
		}
	})
	return c
}

func TestParseArithmeticFn(t *testing.T) {
	tree, bag := parse(t, "pub fn main() { 1 + 2 * 3 }")
	assert.False(t, bag.HasErrors())
	assert.Equal(t, 1, countKind(tree, syntax.KItemFn))
	assert.Equal(t, 2, countKind(tree, syntax.KBinaryExpr))
}

func TestParseStructLiteralAndFieldAccess(t *testing.T) {
	tree, bag := parse(t, `
		struct Point { x, y }
		fn main() { let p = Point { x: 1, y: 2 }; p.x }
	`)
	assert.False(t, bag.HasErrors())
	assert.Equal(t, 1, countKind(tree, syntax.KItemStruct))
	assert.Equal(t, 1, countKind(tree, syntax.KObjectExpr))
	assert.Equal(t, 1, countKind(tree, syntax.KFieldExpr))
}

func TestParseAsyncAwait(t *testing.T) {
	tree, bag := parse(t, "fn main() { let f = async { 1 }; f.await }")
	assert.False(t, bag.HasErrors())
	assert.Equal(t, 1, countKind(tree, syntax.KAsyncBlockExpr))
	assert.Equal(t, 1, countKind(tree, syntax.KAwaitExpr))
}

func TestParseArrayPatternWithRest(t *testing.T) {
	tree, bag := parse(t, "fn main() { let [a, .., c] = [1, 2, 3]; a }")
	assert.False(t, bag.HasErrors())
	require.Equal(t, 1, countKind(tree, syntax.KPatArray))
	assert.Equal(t, 1, countKind(tree, syntax.KPatRest))
}

func TestParseForRange(t *testing.T) {
	tree, bag := parse(t, "fn main() { for i in 0..10 { i } }")
	assert.False(t, bag.HasErrors())
	assert.Equal(t, 1, countKind(tree, syntax.KForExpr))
	assert.Equal(t, 1, countKind(tree, syntax.KRangeExpr))
}

func TestParseCallAndMethodCall(t *testing.T) {
	tree, bag := parse(t, "fn main() { foo(1, 2).bar(3) }")
	assert.False(t, bag.HasErrors())
	assert.Equal(t, 1, countKind(tree, syntax.KCallExpr))
	assert.Equal(t, 1, countKind(tree, syntax.KMethodCallExpr))
}

func TestParseChainedComparisonRequiresGrouping(t *testing.T) {
	_, bag := parse(t, "fn main() { 1 < 2 < 3 }")
	require.True(t, bag.HasErrors())
	found := false
	for _, d := range bag.All() {
		if d.Kind == diag.KindPrecedenceGroupNeeded {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseMatchWithGuard(t *testing.T) {
	tree, bag := parse(t, `
		fn classify(n) {
			match n {
				0 => "zero",
				x if x > 0 => "positive",
				_ => "negative",
			}
		}
	`)
	assert.False(t, bag.HasErrors())
	assert.Equal(t, 1, countKind(tree, syntax.KMatchExpr))
	assert.Equal(t, 3, countKind(tree, syntax.KMatchArm))
}

func TestParseRecoversFromBadToken(t *testing.T) {
	tree, bag := parse(t, "fn main() { let = 1; }")
	require.True(t, bag.HasErrors())
	// Even on error the tree still accounts for the tokens around the
	// mistake; the caller gets a best-effort tree alongside diagnostics.
	assert.NotNil(t, tree)
}
