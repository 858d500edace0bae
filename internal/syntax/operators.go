package syntax

import "github.com/runelang/rune/internal/lexer"

// binOp describes one binary operator's parse rule, generalized from the
// teacher's Op/OpType precedence table (lang/operators.go) down to Rune's
// fixed, non-extensible operator set: unlike Prolog's user-definable
// OpTable, every Rune binary operator's precedence is a grammar constant, so
// a flat slice replaces the teacher's sorted, mutable OpTable.
type binOp struct {
	kind       lexer.Kind
	prec       int
	rightAssoc bool
}

// Precedence climbs low to high; operators at the same level group
// left-to-right unless rightAssoc. Comparison operators are deliberately
// non-associative at the grammar level (spec §4.2 "chained comparisons
// require explicit grouping") even though they share a precedence tier here
// — the parser's parseBinary rejects a second comparison at the same level
// without parentheses, raising KindPrecedenceGroupNeeded.
var binOps = []binOp{
	{lexer.PipePipe, 1, false},
	{lexer.AmpAmp, 2, false},
	{lexer.KwIs, 3, false},
	{lexer.EqEq, 4, false},
	{lexer.Neq, 4, false},
	{lexer.Lt, 4, false},
	{lexer.Lte, 4, false},
	{lexer.Gt, 4, false},
	{lexer.Gte, 4, false},
	{lexer.DotDot, 5, false},
	{lexer.DotDotEq, 5, false},
	{lexer.Pipe, 6, false},
	{lexer.Caret, 7, false},
	{lexer.Amp, 8, false},
	{lexer.Shl, 9, false},
	{lexer.Shr, 9, false},
	{lexer.Plus, 10, false},
	{lexer.Minus, 10, false},
	{lexer.Star, 11, false},
	{lexer.Slash, 11, false},
	{lexer.Percent, 11, false},
}

var comparisonKinds = map[lexer.Kind]bool{
	lexer.EqEq: true, lexer.Neq: true,
	lexer.Lt: true, lexer.Lte: true, lexer.Gt: true, lexer.Gte: true,
}

func lookupBinOp(k lexer.Kind) (binOp, bool) {
	for _, op := range binOps {
		if op.kind == k {
			return op, true
		}
	}
	return binOp{}, false
}

var assignKinds = map[lexer.Kind]bool{
	lexer.Eq: true, lexer.PlusEq: true, lexer.MinusEq: true, lexer.StarEq: true,
	lexer.SlashEq: true, lexer.PercentEq: true, lexer.AmpEq: true,
	lexer.PipeEq: true, lexer.CaretEq: true, lexer.ShlEq: true, lexer.ShrEq: true,
}
