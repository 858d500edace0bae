package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runelang/rune/internal/lexer"
)

func kinds(toks []lexer.Token) []lexer.Kind {
	var out []lexer.Kind
	for _, t := range toks {
		if t.Kind == lexer.Whitespace || t.Kind == lexer.Comment {
			continue
		}
		out = append(out, t.Kind)
	}
	return out
}

func TestLexArithmetic(t *testing.T) {
	toks := lexer.Lex("test", "1 + 2 * 3")
	assert.Equal(t, []lexer.Kind{
		lexer.Int, lexer.Plus, lexer.Int, lexer.Star, lexer.Int, lexer.EOF,
	}, kinds(toks))
}

func TestLexKeywordsAndIdents(t *testing.T) {
	toks := lexer.Lex("test", "pub fn main")
	assert.Equal(t, []lexer.Kind{
		lexer.KwPub, lexer.KwFn, lexer.Ident, lexer.EOF,
	}, kinds(toks))
}

func TestLexMethodCallDotNotConsumedIntoNumber(t *testing.T) {
	toks := lexer.Lex("test", "x.method()")
	assert.Equal(t, []lexer.Kind{
		lexer.Ident, lexer.Dot, lexer.Ident, lexer.LParen, lexer.RParen, lexer.EOF,
	}, kinds(toks))
}

func TestLexFloatAndRangeDoNotCollide(t *testing.T) {
	toks := lexer.Lex("test", "1.5")
	assert.Equal(t, []lexer.Kind{lexer.Float, lexer.EOF}, kinds(toks))

	toks = lexer.Lex("test", "0..5")
	assert.Equal(t, []lexer.Kind{lexer.Int, lexer.DotDot, lexer.Int, lexer.EOF}, kinds(toks))

	toks = lexer.Lex("test", "0..=5")
	assert.Equal(t, []lexer.Kind{lexer.Int, lexer.DotDotEq, lexer.Int, lexer.EOF}, kinds(toks))
}

func TestLexBases(t *testing.T) {
	toks := lexer.Lex("test", "0xFF 0o17 0b101")
	assert.Equal(t, []lexer.Kind{lexer.Int, lexer.Int, lexer.Int, lexer.EOF}, kinds(toks))
}

func TestLexMultiCharOperators(t *testing.T) {
	toks := lexer.Lex("test", "<<= >>= => -> :: <<")
	assert.Equal(t, []lexer.Kind{
		lexer.ShlEq, lexer.ShrEq, lexer.FatArrow, lexer.ThinArrow, lexer.ColonColon, lexer.Shl, lexer.EOF,
	}, kinds(toks))
}

func TestLexLabelVsChar(t *testing.T) {
	toks := lexer.Lex("test", "'a'")
	assert.Equal(t, []lexer.Kind{lexer.Char, lexer.EOF}, kinds(toks))

	toks = lexer.Lex("test", "'outer")
	assert.Equal(t, []lexer.Kind{lexer.Label, lexer.EOF}, kinds(toks))
}

func TestLexString(t *testing.T) {
	toks := lexer.Lex("test", `"hello\nworld"`)
	assert.Equal(t, []lexer.Kind{lexer.Str, lexer.EOF}, kinds(toks))
	assert.Equal(t, "hello\nworld", toks[0].Text)
	assert.True(t, toks[0].Escaped)
}

func TestLexTemplateString(t *testing.T) {
	toks := lexer.Lex("test", "`a${1+2}b`")
	var kindsOut []lexer.Kind
	for _, tok := range toks {
		if tok.Kind == lexer.Whitespace || tok.Kind == lexer.Comment {
			continue
		}
		kindsOut = append(kindsOut, tok.Kind)
	}
	assert.Equal(t, []lexer.Kind{
		lexer.TemplateMacroStart,
		lexer.Str,
		lexer.LBrace,
		lexer.Int, lexer.Plus, lexer.Int,
		lexer.RBrace,
		lexer.Str,
		lexer.TemplateMacroEnd,
		lexer.EOF,
	}, kindsOut)
}

func TestLexUnterminatedString(t *testing.T) {
	toks := lexer.Lex("test", `"unterminated`)
	assert.Equal(t, lexer.Error, toks[len(toks)-1].Kind)
}
