package css

import (
	"strings"
)

// Span is a half-open byte range into the parsed source.
type Span struct {
	Start int
	End   int
}

// Join returns the smallest span covering both s and o. Zero spans are ignored.
func (s Span) Join(o Span) Span {
	switch {
	case s == Span{}:
		return o
	case o == Span{}:
		return s
	}
	return Span{Start: min(s.Start, o.Start), End: max(s.End, o.End)}
}

// TokenKind identifies component value kinds.
type TokenKind uint8

const (
	KindIdent TokenKind = iota
	KindFunction
	KindURL
	KindString
	KindNumber
	KindPercentage
	KindDimension
	KindHash
	KindDelim
	KindWhitespace
	KindComma
	KindColon
	KindSemicolon
	KindParen
	KindBracket
	KindBrace
	KindAtKeyword
	KindUnicodeRange
	KindMatch
	KindCDO
	KindCDC
)

var kindNames = [...]string{
	KindIdent:        "ident",
	KindFunction:     "function",
	KindURL:          "url",
	KindString:       "string",
	KindNumber:       "number",
	KindPercentage:   "percentage",
	KindDimension:    "dimension",
	KindHash:         "hash",
	KindDelim:        "delim",
	KindWhitespace:   "whitespace",
	KindComma:        "comma",
	KindColon:        "colon",
	KindSemicolon:    "semicolon",
	KindParen:        "paren",
	KindBracket:      "bracket",
	KindBrace:        "brace",
	KindAtKeyword:    "at-keyword",
	KindUnicodeRange: "unicode-range",
	KindMatch:        "match",
	KindCDO:          "cdo",
	KindCDC:          "cdc",
}

func (k TokenKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Token is a single component value. Text always holds decoded content:
// identifiers and strings without escapes, url() contents without quotes,
// function names without the opening parenthesis.
type Token struct {
	Kind TokenKind
	Text string
	// Unit is the unit of a dimension token.
	Unit string
	// Quote is the quote character a string or url() was written with, 0 if none.
	Quote byte
	// IsID is set for hash tokens whose name is a valid identifier.
	IsID bool
	// NoValue is set for url() without any payload.
	NoValue bool
	// Children of functions and simple blocks.
	Children []Token
	Span     Span
}

// IsDelim reports whether token is a delimiter with given text.
func (t *Token) IsDelim(d string) bool {
	return t.Kind == KindDelim && t.Text == d
}

// IsIdent reports whether token is an identifier matching name case-insensitively.
func (t *Token) IsIdent(name string) bool {
	return t.Kind == KindIdent && strings.EqualFold(t.Text, name)
}

// IsFunction reports whether token is a function with given name (case-insensitive).
func (t *Token) IsFunction(name string) bool {
	return t.Kind == KindFunction && strings.EqualFold(t.Text, name)
}

// URLValue returns decoded payload of url() token or url("...") function.
// ok is false when token is not a url or has no payload.
func (t *Token) URLValue() (string, bool) {
	switch t.Kind {
	case KindURL:
		if t.NoValue {
			return "", false
		}
		return t.Text, true
	case KindFunction:
		if !strings.EqualFold(t.Text, "url") && !strings.EqualFold(t.Text, "src") {
			return "", false
		}
		for i := range t.Children {
			switch t.Children[i].Kind {
			case KindWhitespace:
				continue
			case KindString:
				return t.Children[i].Text, true
			}
			return "", false
		}
	}
	return "", false
}

// Node is implemented by every tree node kind: *Stylesheet, *StyleRule,
// *AtRule, *ImportRule and *Declaration.
type Node interface {
	node()
	Pos() Span
}

// Stylesheet is the root of a parsed document.
type Stylesheet struct {
	Rules []Node
	Span  Span
}

// StyleRule is a qualified rule: selectors followed by a block which may
// contain declarations and nested rules.
type StyleRule struct {
	Selectors []*Selector
	Block     []Node
	Span      Span
}

// Selector is one complex selector of a selector list.
type Selector struct {
	Tokens []Token
	Span   Span
}

// AtRule is any at-rule other than @import. Block is nil for statement
// at-rules, HasBlock tells an empty block apart from no block.
type AtRule struct {
	Name     string
	Prelude  []Token
	Block    []Node
	HasBlock bool
	Span     Span
}

// ImportRule is an @import statement with its conditions split out.
type ImportRule struct {
	// Href is a url or string token, nil when prelude does not start with one.
	Href *Token
	// Layer holds "layer" ident or layer(...) function.
	Layer *Token
	// Supports holds supports(...) function.
	Supports *Token
	// Media is the remaining media query list.
	Media []Token
	// Prelude keeps original tokens for imports without href.
	Prelude []Token
	Span    Span
}

// Declaration is a property declaration.
type Declaration struct {
	Name      string
	Value     []Token
	Important bool
	Span      Span
}

func (*Stylesheet) node()  {}
func (*StyleRule) node()   {}
func (*AtRule) node()      {}
func (*ImportRule) node()  {}
func (*Declaration) node() {}

func (n *Stylesheet) Pos() Span  { return n.Span }
func (n *StyleRule) Pos() Span   { return n.Span }
func (n *AtRule) Pos() Span      { return n.Span }
func (n *ImportRule) Pos() Span  { return n.Span }
func (n *Declaration) Pos() Span { return n.Span }

// IsCustomProperty reports whether declaration defines a custom property.
func (d *Declaration) IsCustomProperty() bool {
	return strings.HasPrefix(d.Name, "--")
}

// Declarations returns declarations of the block in source order.
func Declarations(block []Node) []*Declaration {
	var out []*Declaration
	for _, n := range block {
		if d, ok := n.(*Declaration); ok {
			out = append(out, d)
		}
	}
	return out
}

// Imports returns all top-level @import rules in source order.
func (s *Stylesheet) Imports() []*ImportRule {
	var out []*ImportRule
	for _, n := range s.Rules {
		if r, ok := n.(*ImportRule); ok {
			out = append(out, r)
		}
	}
	return out
}

// RulesBySelector returns top-level style rules whose minified selector list
// text equals selector.
func (s *Stylesheet) RulesBySelector(selector string) []*StyleRule {
	var matches []*StyleRule
	for _, n := range s.Rules {
		if r, ok := n.(*StyleRule); ok && SelectorListText(r.Selectors) == selector {
			matches = append(matches, r)
		}
	}
	return matches
}

// trimWhitespace removes leading and trailing whitespace tokens.
func trimWhitespace(toks []Token) []Token {
	for len(toks) > 0 && toks[0].Kind == KindWhitespace {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].Kind == KindWhitespace {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// splitTopLevel splits tokens on top-level commas trimming whitespace around
// each part.
func splitTopLevel(toks []Token) [][]Token {
	var (
		parts [][]Token
		start int
	)
	for i := range toks {
		if toks[i].Kind == KindComma {
			parts = append(parts, trimWhitespace(toks[start:i]))
			start = i + 1
		}
	}
	return append(parts, trimWhitespace(toks[start:]))
}

// tokensSpan returns span covering all tokens.
func tokensSpan(toks []Token) Span {
	if len(toks) == 0 {
		return Span{}
	}
	return Span{Start: toks[0].Span.Start, End: toks[len(toks)-1].Span.End}
}
