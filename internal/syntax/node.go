package syntax

import (
	"github.com/runelang/rune/internal/diag"
	"github.com/runelang/rune/internal/lexer"
)

// Node is one CST node. Leaf nodes (Tok != nil) wrap a single token,
// including KTrivia leaves so the tree stays lossless end to end. Composite
// nodes own Children in source order; a KError node swallows the raw tokens
// it recovered over so every byte still lands in the tree (spec §4.2).
type Node struct {
	Kind     Kind
	Span     diag.Span
	Tok      *lexer.Token
	Children []*Node
}

func leaf(tok lexer.Token) *Node {
	k := KTrivia
	switch tok.Kind {
	case lexer.Whitespace, lexer.Comment:
		k = KTrivia
	default:
		k = kindForLiteralToken(tok.Kind)
	}
	t := tok
	return &Node{Kind: k, Span: tok.Span, Tok: &t}
}

func kindForLiteralToken(k lexer.Kind) Kind {
	switch k {
	case lexer.Int:
		return KLitInt
	case lexer.Float:
		return KLitFloat
	case lexer.Char:
		return KLitChar
	case lexer.Byte:
		return KLitByte
	case lexer.Str:
		return KLitString
	case lexer.ByteStr:
		return KLitByteStr
	default:
		return KTrivia // generic token leaf (punctuation, ident, keyword)
	}
}

func node(k Kind, span diag.Span, children ...*Node) *Node {
	return &Node{Kind: k, Span: span, Children: children}
}

// Walk invokes fn for n and every descendant, depth first, pre-order.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Text returns the node's own token text, or "" for composite nodes.
func (n *Node) Text() string {
	if n.Tok == nil {
		return ""
	}
	return n.Tok.Text
}

// FirstChild returns the first child of the given kind, or nil.
func (n *Node) FirstChild(k Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == k {
			return c
		}
	}
	return nil
}
