package lexer

import "github.com/runelang/rune/internal/diag"

// Kind discriminates lexical token categories. The set mirrors spec §4.1:
// trivia, identifiers/keywords, literals, and punctuation/operators.
type Kind int

const (
	Error Kind = iota
	EOF

	Whitespace
	Comment

	Ident
	Label // 'label, distinguished from a char literal by content + lookahead

	// Keywords are returned as their own Kind so the parser can switch on
	// them directly; Keyword() maps raw text to one of these during scan.
	KwPub
	KwSelf
	KwSuper
	KwCrate
	KwIn
	KwConst
	KwAsync
	KwMove
	KwStruct
	KwEnum
	KwFn
	KwImpl
	KwMod
	KwUse
	KwAs
	KwIf
	KwElse
	KwWhile
	KwLoop
	KwFor
	KwMatch
	KwSelect
	KwBreak
	KwContinue
	KwReturn
	KwYield
	KwLet
	KwTrue
	KwFalse
	KwAwait
	KwIs
	KwNot
	KwAnd
	KwOr

	Int
	Float
	Char
	Byte
	Str
	ByteStr

	// Punctuation / operators.
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Semi
	Colon
	ColonColon
	Dot
	DotDot
	DotDotEq
	FatArrow  // =>
	ThinArrow // ->
	Question
	At
	Pound // #
	Bang
	Amp
	AmpAmp
	Pipe
	PipePipe
	Caret
	Tilde
	Plus
	Minus
	Star
	Slash
	Percent
	Lt
	Lte
	Gt
	Gte
	EqEq
	Neq
	Eq
	Shl
	Shr
	PlusEq
	MinusEq
	StarEq
	SlashEq
	PercentEq
	AmpEq
	PipeEq
	CaretEq
	ShlEq
	ShrEq

	// Emitted by the template-string sub-lexer on closing backtick: the
	// parser sees a synthetic macro-call token sequence, per spec §4.1.
	TemplateMacroStart // template!(
	TemplateMacroEnd   // )
)

var keywords = map[string]Kind{
	"pub": KwPub, "self": KwSelf, "Self": KwSelf, "super": KwSuper,
	"crate": KwCrate, "in": KwIn, "const": KwConst, "async": KwAsync,
	"move": KwMove, "struct": KwStruct, "enum": KwEnum, "fn": KwFn,
	"impl": KwImpl, "mod": KwMod, "use": KwUse, "as": KwAs, "if": KwIf,
	"else": KwElse, "while": KwWhile, "loop": KwLoop, "for": KwFor,
	"match": KwMatch, "select": KwSelect, "break": KwBreak,
	"continue": KwContinue, "return": KwReturn, "yield": KwYield,
	"let": KwLet, "true": KwTrue, "false": KwFalse, "await": KwAwait,
	"is": KwIs, "not": KwNot, "and": KwAnd, "or": KwOr,
}

// Keyword maps an identifier's raw text to its keyword Kind, or returns
// (Ident, false) if it is not one of the closed keyword set (spec §4.1:
// "unknown idents return Ident").
func Keyword(text string) (Kind, bool) {
	k, ok := keywords[text]
	if !ok {
		return Ident, false
	}
	return k, true
}

func (k Kind) IsKeyword() bool {
	return k >= KwPub && k <= KwOr
}

// Token is one lexeme: a kind, its source span, and the raw text (or, for
// escaped string/char/byte literals, the already-unescaped value).
type Token struct {
	Kind    Kind
	Span    diag.Span
	Text    string
	Escaped bool // true if Text required escape processing (spec §4.1)
}

func (t Token) String() string {
	return t.Text
}
