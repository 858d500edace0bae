package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/runelang/rune/internal/diag"
)

// Norm is the form to which Unicode source text is normalized before
// lexing, matching the teacher's Prolog lexer (lang/lexer.go): combining
// character sequences compare equal regardless of how the source encoded
// them.
const Norm = norm.NFD

// modeKind distinguishes the default lexer mode from a template-string
// sub-mode. A stack of modes lets `${ ... }` expressions nest arbitrarily
// inside a backtick-delimited template string (spec §4.1).
type modeKind uint8

const (
	modeDefault modeKind = iota
	modeTemplate
)

type mode struct {
	kind  modeKind
	depth int // unclosed `{` nesting once inside a `${` interpolation
}

// lexState functions receive the lexer's mutable state, advance it, and
// return the next state. The machine halts when a state returns nil. This
// shape is carried over directly from the teacher's Prolog lexer
// (lang/lexer.go's lexState machine), generalized from Prolog's token set
// to Rune's.
type lexState func(*lexer) lexState

type lexer struct {
	src      string
	pos      int // byte offset of l.cur
	curStart int // byte offset where the current token begins
	cur      rune
	curSize  int
	atEOF    bool

	source diag.SourceID
	tokens []Token
	modes  []mode
}

// Lex scans src in full and returns its token stream, including trivia
// (whitespace/comment) tokens for the formatter/CST per spec §4.1. The
// parser is responsible for skipping trivia; nothing here discards bytes,
// keeping the eventual CST lossless.
func Lex(source diag.SourceID, src string) []Token {
	l := &lexer{
		src:    string(Norm.String(src)),
		source: source,
		modes:  []mode{{kind: modeDefault}},
	}
	l.advance()

	state := lexState(lexDefault)
	for state != nil {
		state = state(l)
	}
	return l.tokens
}

func (l *lexer) curMode() *mode {
	return &l.modes[len(l.modes)-1]
}

func (l *lexer) pushMode(k modeKind) {
	l.modes = append(l.modes, mode{kind: k})
}

func (l *lexer) popMode() {
	if len(l.modes) > 1 {
		l.modes = l.modes[:len(l.modes)-1]
	}
}

// advance consumes the current rune, loading the next one into l.cur.
func (l *lexer) advance() rune {
	prev := l.cur
	l.pos += l.curSize
	if l.pos >= len(l.src) {
		l.cur, l.curSize = 0, 0
		l.atEOF = true
		return prev
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == utf8.RuneError && size <= 1 {
		l.cur, l.curSize = utf8.RuneError, 1
		return prev
	}
	l.cur, l.curSize = r, size
	return prev
}

func (l *lexer) peekAt(offset int) rune {
	p := l.pos + l.curSize
	for i := 0; i < offset; i++ {
		if p >= len(l.src) {
			return 0
		}
		_, size := utf8.DecodeRuneInString(l.src[p:])
		p += size
	}
	if p >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[p:])
	return r
}

func (l *lexer) begin() {
	l.curStart = l.pos
}

func (l *lexer) text() string {
	return l.src[l.curStart:l.pos]
}

func (l *lexer) emit(k Kind) {
	l.tokens = append(l.tokens, Token{
		Kind: k,
		Span: diag.Span{Source: l.source, Start: uint32(l.curStart), End: uint32(l.pos)},
		Text: l.text(),
	})
}

func (l *lexer) emitText(k Kind, text string, escaped bool) {
	l.tokens = append(l.tokens, Token{
		Kind:    k,
		Span:    diag.Span{Source: l.source, Start: uint32(l.curStart), End: uint32(l.pos)},
		Text:    text,
		Escaped: escaped,
	})
}

func (l *lexer) errorf(kind Kind, msg string) {
	l.tokens = append(l.tokens, Token{
		Kind: Error,
		Span: diag.Span{Source: l.source, Start: uint32(l.curStart), End: uint32(l.pos)},
		Text: msg,
	})
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentCont(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// lexDefault is the entry state of the default-mode machine.
func lexDefault(l *lexer) lexState {
	if l.curMode().kind == modeTemplate {
		return lexTemplateBody
	}

	l.begin()
	r := l.cur

	switch {
	case r == 0 && l.atEOF:
		l.emit(EOF)
		return nil

	case unicode.IsSpace(r):
		for unicode.IsSpace(l.cur) && !l.atEOF {
			l.advance()
		}
		l.emit(Whitespace)
		return lexDefault

	case r == '/' && l.peekAt(1) == '/':
		for l.cur != '\n' && !l.atEOF {
			l.advance()
		}
		l.emit(Comment)
		return lexDefault

	case r == '/' && l.peekAt(1) == '*':
		l.advance()
		l.advance()
		for !l.atEOF {
			if l.cur == '*' && l.peekAt(1) == '/' {
				l.advance()
				l.advance()
				break
			}
			l.advance()
		}
		l.emit(Comment)
		return lexDefault

	case isIdentStart(r):
		return lexIdentOrLabel

	case r == '\'':
		return lexCharOrLabel

	case r == '"':
		return lexString

	case r == 'b' && l.peekAt(1) == '\'':
		l.advance()
		return lexByteChar
	case r == 'b' && l.peekAt(1) == '"':
		l.advance()
		return lexByteString

	case r == '`':
		return lexTemplateOpen

	case unicode.IsDigit(r):
		return lexNumber

	case r == 0:
		l.emit(EOF)
		return nil

	default:
		return lexPunct
	}
}

func lexIdentOrLabel(l *lexer) lexState {
	for isIdentCont(l.cur) && !l.atEOF {
		l.advance()
	}
	text := l.text()
	if k, ok := Keyword(text); ok {
		l.emit(k)
	} else {
		l.emit(Ident)
	}
	return lexDefault
}

// lexCharOrLabel distinguishes 'c' character literals from 'label
// identifiers by bounded look-ahead for a closing quote (spec §4.1).
func lexCharOrLabel(l *lexer) lexState {
	l.advance() // consume opening '

	// Labels: 'ident not immediately followed by another '.
	if isIdentStart(l.cur) {
		save := l.pos
		start := l.curStart
		_ = start
		var ident strings.Builder
		for isIdentCont(l.cur) && !l.atEOF {
			ident.WriteRune(l.cur)
			l.advance()
		}
		if l.cur != '\'' {
			l.emitText(Label, ident.String(), false)
			return lexDefault
		}
		// A single-rune ident followed by ' is a char literal, e.g. 'a'.
		if utf8.RuneCountInString(ident.String()) == 1 {
			l.advance() // consume closing '
			l.emitText(Char, ident.String(), false)
			return lexDefault
		}
		// Otherwise this was a label that happened to hit a stray quote;
		// rewind is not possible over the consumed runes, so report it
		// as a label (bounded look-ahead already committed).
		_ = save
		l.emitText(Label, ident.String(), false)
		return lexDefault
	}

	var buf strings.Builder
	escaped := false
	for l.cur != '\'' && !l.atEOF {
		if l.cur == '\\' {
			escaped = true
			l.advance()
			buf.WriteRune(unescapeOne(l))
			continue
		}
		buf.WriteRune(l.cur)
		l.advance()
	}
	if l.atEOF {
		l.errorf(Error, "unterminated char literal")
		return nil
	}
	l.advance() // consume closing '
	l.emitText(Char, buf.String(), escaped)
	return lexDefault
}

func lexByteChar(l *lexer) lexState {
	l.advance() // consume opening '
	var buf strings.Builder
	escaped := false
	for l.cur != '\'' && !l.atEOF {
		if l.cur == '\\' {
			escaped = true
			l.advance()
			buf.WriteRune(unescapeOne(l))
			continue
		}
		buf.WriteRune(l.cur)
		l.advance()
	}
	if l.atEOF {
		l.errorf(Error, "unterminated byte literal")
		return nil
	}
	l.advance()
	l.emitText(Byte, buf.String(), escaped)
	return lexDefault
}

func lexString(l *lexer) lexState {
	l.advance() // consume opening "
	var buf strings.Builder
	escaped := false
	for l.cur != '"' && !l.atEOF {
		if l.cur == '\\' {
			escaped = true
			l.advance()
			buf.WriteRune(unescapeOne(l))
			continue
		}
		buf.WriteRune(l.cur)
		l.advance()
	}
	if l.atEOF {
		l.errorf(Error, "unterminated string literal")
		return nil
	}
	l.advance()
	l.emitText(Str, buf.String(), escaped)
	return lexDefault
}

func lexByteString(l *lexer) lexState {
	l.advance() // consume opening "
	var buf strings.Builder
	escaped := false
	for l.cur != '"' && !l.atEOF {
		if l.cur == '\\' {
			escaped = true
			l.advance()
			buf.WriteRune(unescapeOne(l))
			continue
		}
		buf.WriteRune(l.cur)
		l.advance()
	}
	if l.atEOF {
		l.errorf(Error, "unterminated byte string literal")
		return nil
	}
	l.advance()
	l.emitText(ByteStr, buf.String(), escaped)
	return lexDefault
}

// unescapeOne consumes and decodes one backslash escape sequence, the
// backslash itself already having been consumed by the caller.
func unescapeOne(l *lexer) rune {
	r := l.cur
	l.advance()
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	case '\\', '\'', '"', '`':
		return r
	default:
		l.errorf(KindBadEscapeLocal, "bad escape \\"+string(r))
		return r
	}
}

// KindBadEscapeLocal aliases Error; kept distinct for readability at call
// sites that report bad escapes specifically.
const KindBadEscapeLocal = Error

// lexNumber handles decimal, 0x/0o/0b bases, optional fractional part, and
// `e` exponent. A `.` followed by an identifier is not consumed, so that
// `x.method` lexes cleanly (spec §4.1).
func lexNumber(l *lexer) lexState {
	if l.cur == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.advance()
		l.advance()
		for isHex(l.cur) && !l.atEOF {
			l.advance()
		}
		l.emit(Int)
		return lexDefault
	}
	if l.cur == '0' && (l.peekAt(1) == 'o' || l.peekAt(1) == 'O') {
		l.advance()
		l.advance()
		for l.cur >= '0' && l.cur <= '7' && !l.atEOF {
			l.advance()
		}
		l.emit(Int)
		return lexDefault
	}
	if l.cur == '0' && (l.peekAt(1) == 'b' || l.peekAt(1) == 'B') {
		l.advance()
		l.advance()
		for (l.cur == '0' || l.cur == '1') && !l.atEOF {
			l.advance()
		}
		l.emit(Int)
		return lexDefault
	}

	for unicode.IsDigit(l.cur) && !l.atEOF {
		l.advance()
	}

	isFloat := false
	if l.cur == '.' && unicode.IsDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		for unicode.IsDigit(l.cur) && !l.atEOF {
			l.advance()
		}
	}
	if l.cur == 'e' || l.cur == 'E' {
		save, saveSize, saveAtEOF := l.pos, l.curSize, l.atEOF
		l.advance()
		if l.cur == '+' || l.cur == '-' {
			l.advance()
		}
		if unicode.IsDigit(l.cur) {
			isFloat = true
			for unicode.IsDigit(l.cur) && !l.atEOF {
				l.advance()
			}
		} else {
			l.pos, l.curSize, l.atEOF = save, saveSize, saveAtEOF
			l.cur, _ = utf8.DecodeRuneInString(l.src[l.pos:])
		}
	}

	if isFloat {
		l.emit(Float)
	} else {
		l.emit(Int)
	}
	return lexDefault
}

func isHex(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// lexPunct handles all punctuation and multi-char operators.
func lexPunct(l *lexer) lexState {
	r := l.advance()
	two := func(next rune, k Kind, single Kind) Kind {
		if l.cur == next {
			l.advance()
			return k
		}
		return single
	}

	switch r {
	case '(':
		l.emit(LParen)
	case ')':
		l.emit(RParen)
	case '{':
		if l.curMode().kind == modeTemplate {
			l.curMode().depth++
		}
		l.emit(LBrace)
	case '}':
		if l.curMode().kind == modeTemplate {
			if l.curMode().depth == 0 {
				l.popMode()
				l.emit(TemplateMacroEnd)
				return lexDefault
			}
			l.curMode().depth--
		}
		l.emit(RBrace)
	case '[':
		l.emit(LBracket)
	case ']':
		l.emit(RBracket)
	case ',':
		l.emit(Comma)
	case ';':
		l.emit(Semi)
	case ':':
		l.emit(two(':', ColonColon, Colon))
	case '.':
		if l.cur == '.' {
			l.advance()
			if l.cur == '=' {
				l.advance()
				l.emit(DotDotEq)
			} else {
				l.emit(DotDot)
			}
		} else {
			l.emit(Dot)
		}
	case '?':
		l.emit(Question)
	case '@':
		l.emit(At)
	case '#':
		l.emit(Pound)
	case '!':
		l.emit(two('=', Neq, Bang))
	case '&':
		if l.cur == '&' {
			l.advance()
			l.emit(AmpAmp)
		} else if l.cur == '=' {
			l.advance()
			l.emit(AmpEq)
		} else {
			l.emit(Amp)
		}
	case '|':
		if l.cur == '|' {
			l.advance()
			l.emit(PipePipe)
		} else if l.cur == '=' {
			l.advance()
			l.emit(PipeEq)
		} else {
			l.emit(Pipe)
		}
	case '^':
		l.emit(two('=', CaretEq, Caret))
	case '~':
		l.emit(Tilde)
	case '+':
		l.emit(two('=', PlusEq, Plus))
	case '-':
		if l.cur == '>' {
			l.advance()
			l.emit(ThinArrow)
		} else if l.cur == '=' {
			l.advance()
			l.emit(MinusEq)
		} else {
			l.emit(Minus)
		}
	case '*':
		l.emit(two('=', StarEq, Star))
	case '/':
		l.emit(two('=', SlashEq, Slash))
	case '%':
		l.emit(two('=', PercentEq, Percent))
	case '<':
		if l.cur == '<' {
			l.advance()
			if l.cur == '=' {
				l.advance()
				l.emit(ShlEq)
			} else {
				l.emit(Shl)
			}
		} else {
			l.emit(two('=', Lte, Lt))
		}
	case '>':
		if l.cur == '>' {
			l.advance()
			if l.cur == '=' {
				l.advance()
				l.emit(ShrEq)
			} else {
				l.emit(Shr)
			}
		} else {
			l.emit(two('=', Gte, Gt))
		}
	case '=':
		if l.cur == '=' {
			l.advance()
			l.emit(EqEq)
		} else if l.cur == '>' {
			l.advance()
			l.emit(FatArrow)
		} else {
			l.emit(Eq)
		}
	default:
		l.errorf(Error, "unexpected character")
	}
	return lexDefault
}

// lexTemplateOpen consumes the opening backtick and switches into the
// template-string sub-mode (spec §4.1).
func lexTemplateOpen(l *lexer) lexState {
	l.advance() // consume `
	l.emitText(TemplateMacroStart, "template!(", false)
	l.pushMode(modeTemplate)
	return lexDefault
}

// lexTemplateBody runs plain text up to the next `${` interpolation or the
// closing backtick, emitting Str tokens for literal runs.
func lexTemplateBody(l *lexer) lexState {
	l.begin()
	var buf strings.Builder
	escaped := false
	for !l.atEOF {
		if l.cur == '`' {
			if buf.Len() > 0 {
				l.emitText(Str, buf.String(), escaped)
			}
			l.advance()
			l.popMode()
			l.emitText(TemplateMacroEnd, ")", false)
			return lexDefault
		}
		if l.cur == '$' && l.peekAt(1) == '{' {
			if buf.Len() > 0 {
				l.emitText(Str, buf.String(), escaped)
			}
			l.advance()
			l.advance()
			l.emit(LBrace)
			// Interpolation runs in default mode until its matching `}`;
			// the mode stack entry stays modeTemplate with depth
			// tracking so nested `{` inside the expression don't close
			// the interpolation early.
			l.curMode().depth = 0
			return lexInterpolation
		}
		if l.cur == '\\' {
			escaped = true
			l.advance()
			buf.WriteRune(unescapeOne(l))
			continue
		}
		buf.WriteRune(l.cur)
		l.advance()
	}
	l.errorf(Error, "unterminated template string")
	return nil
}

// lexInterpolation lexes a `${ ... }` body as ordinary default-mode tokens
// until the matching close brace, tracked via the mode's depth counter.
func lexInterpolation(l *lexer) lexState {
	l.begin()
	r := l.cur
	if r == '{' {
		l.curMode().depth++
	}
	if r == '}' {
		if l.curMode().depth == 0 {
			l.advance()
			l.emit(RBrace)
			// Return to scanning template body text.
			return lexTemplateBody
		}
		l.curMode().depth--
	}
	return lexDefaultOneToken
}

// lexDefaultOneToken scans exactly one default-mode token and then resumes
// lexInterpolation, so `${ ... }` bodies share the full default grammar
// (identifiers, operators, nested strings) without leaving template mode.
func lexDefaultOneToken(l *lexer) lexState {
	savedKind := l.curMode().kind
	l.modes[len(l.modes)-1].kind = modeDefault
	n := len(l.tokens)
	state := lexState(lexDefault)
	for state != nil && len(l.tokens) == n {
		state = state(l)
	}
	if len(l.modes) > 0 {
		l.modes[len(l.modes)-1].kind = savedKind
	}
	if state == nil {
		return nil
	}
	return lexInterpolation
}
