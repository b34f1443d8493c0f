package css

import (
	"bytes"
	"io"
	"strings"
)

// PrintOptions controls Print output.
type PrintOptions struct {
	// Minify drops optional whitespace and trailing semicolons.
	Minify bool
	// Mappings enables collection of source mappings.
	Mappings bool
}

// Mapping ties generated position to source byte offset. Generated line and
// column are zero based, column counts UTF-16 code units.
type Mapping struct {
	GenLine   int
	GenColumn int
	Source    int
}

// Print serializes sheet into w. Mappings are returned when requested.
func Print(w io.Writer, sheet *Stylesheet, opts PrintOptions) ([]Mapping, error) {
	p := &printer{opts: opts}
	p.stylesheet(sheet)
	if _, err := w.Write(p.buf.Bytes()); err != nil {
		return nil, err
	}
	return p.mappings, nil
}

// MinifiedText returns minified serialization of tokens.
func MinifiedText(toks []Token) string {
	p := &printer{opts: PrintOptions{Minify: true}}
	p.tokens(trimWhitespace(toks), ctxValue)
	return p.buf.String()
}

// SelectorListText returns minified serialization of selector list.
func SelectorListText(sels []*Selector) string {
	p := &printer{opts: PrintOptions{Minify: true}}
	p.selectors(sels)
	return p.buf.String()
}

type tokenContext int

const (
	ctxValue tokenContext = iota
	ctxSelector
)

type printer struct {
	opts     PrintOptions
	buf      bytes.Buffer
	line     int
	column   int
	depth    int
	mappings []Mapping
}

func (p *printer) write(s string) {
	p.buf.WriteString(s)
	if !p.opts.Mappings {
		return
	}
	for _, r := range s {
		switch {
		case r == '\n':
			p.line++
			p.column = 0
		case r >= 0x10000:
			p.column += 2
		default:
			p.column++
		}
	}
}

func (p *printer) mark(span Span) {
	if !p.opts.Mappings || span == (Span{}) {
		return
	}
	if n := len(p.mappings); n > 0 {
		last := p.mappings[n-1]
		if last.GenLine == p.line && last.GenColumn == p.column {
			return
		}
	}
	p.mappings = append(p.mappings, Mapping{GenLine: p.line, GenColumn: p.column, Source: span.Start})
}

func (p *printer) newline() {
	if p.opts.Minify {
		return
	}
	p.write("\n")
	p.write(strings.Repeat("  ", p.depth))
}

func (p *printer) stylesheet(s *Stylesheet) {
	for i, n := range s.Rules {
		if i > 0 && !p.opts.Minify {
			p.write("\n")
		}
		p.node(n, true)
	}
	if !p.opts.Minify && len(s.Rules) > 0 {
		p.write("\n")
	}
}

// node prints single node. Statements are terminated with semicolon when
// terminate is set.
func (p *printer) node(n Node, terminate bool) {
	switch n := n.(type) {
	case *StyleRule:
		p.mark(n.Span)
		p.selectors(n.Selectors)
		p.block(n.Block)
	case *AtRule:
		p.mark(n.Span)
		p.write("@" + EscapeIdent(n.Name))
		if len(n.Prelude) > 0 {
			p.write(" ")
			p.tokens(n.Prelude, ctxValue)
		}
		if n.HasBlock {
			p.block(n.Block)
		} else if terminate {
			p.write(";")
		}
	case *ImportRule:
		p.mark(n.Span)
		p.write("@import ")
		if n.Href == nil {
			p.tokens(n.Prelude, ctxValue)
		} else {
			p.token(n.Href, ctxValue)
			for _, t := range []*Token{n.Layer, n.Supports} {
				if t != nil {
					p.write(" ")
					p.token(t, ctxValue)
				}
			}
			if len(n.Media) > 0 {
				p.write(" ")
				p.tokens(n.Media, ctxValue)
			}
		}
		if terminate {
			p.write(";")
		}
	case *Declaration:
		p.mark(n.Span)
		p.write(EscapeIdent(n.Name))
		p.write(":")
		if !p.opts.Minify && len(n.Value) > 0 {
			p.write(" ")
		}
		p.tokens(n.Value, ctxValue)
		if n.Important {
			if !p.opts.Minify {
				p.write(" ")
			}
			p.write("!important")
		}
		if terminate {
			p.write(";")
		}
	}
}

func (p *printer) block(items []Node) {
	if !p.opts.Minify {
		p.write(" ")
	}
	p.write("{")
	p.depth++
	for i, n := range items {
		p.newline()
		last := i == len(items)-1
		p.node(n, !p.opts.Minify || !last)
	}
	p.depth--
	if len(items) > 0 {
		p.newline()
	}
	p.write("}")
}

func (p *printer) selectors(sels []*Selector) {
	for i, sel := range sels {
		if i > 0 {
			p.write(",")
			if !p.opts.Minify {
				p.write(" ")
			}
		}
		p.mark(sel.Span)
		p.tokens(trimWhitespace(sel.Tokens), ctxSelector)
	}
}

func isCombinator(t *Token) bool {
	return t.IsDelim(">") || t.IsDelim("+") || t.IsDelim("~")
}

// dropSpace reports whether whitespace between prev and next can be omitted.
func (p *printer) dropSpace(prev, next *Token, ctx tokenContext) bool {
	if prev == nil || next == nil {
		return true
	}
	if prev.Kind == KindComma || next.Kind == KindComma {
		return true
	}
	if !p.opts.Minify {
		return false
	}
	if ctx == ctxSelector {
		return isCombinator(prev) || isCombinator(next)
	}
	return prev.Kind == KindColon || next.Kind == KindColon
}

func (p *printer) tokens(toks []Token, ctx tokenContext) {
	for i := range toks {
		t := &toks[i]
		if t.Kind == KindWhitespace {
			var prev, next *Token
			if i > 0 {
				prev = &toks[i-1]
			}
			if i+1 < len(toks) {
				next = &toks[i+1]
			}
			if next != nil && next.Kind == KindWhitespace {
				continue
			}
			if !p.dropSpace(prev, next, ctx) {
				p.write(" ")
			}
			continue
		}
		p.token(t, ctx)
		if t.Kind == KindComma && !p.opts.Minify && i+1 < len(toks) {
			p.write(" ")
		}
	}
}

func (p *printer) token(t *Token, ctx tokenContext) {
	switch t.Kind {
	case KindIdent:
		p.write(EscapeIdent(t.Text))
	case KindFunction:
		p.write(EscapeIdent(t.Text))
		p.write("(")
		p.tokens(trimWhitespace(t.Children), ctx)
		p.write(")")
	case KindURL:
		p.write(urlText(t, p.opts.Minify))
	case KindString:
		p.write(QuoteString(t.Text))
	case KindNumber:
		p.write(t.Text)
	case KindPercentage:
		p.write(t.Text + "%")
	case KindDimension:
		unit := EscapeIdent(t.Unit)
		if looksLikeExponent(unit) {
			unit = `\` + unit
		}
		p.write(t.Text + unit)
	case KindHash:
		if t.IsID {
			p.write("#" + EscapeIdent(t.Text))
		} else {
			p.write("#" + escapeName(t.Text))
		}
	case KindParen:
		p.write("(")
		p.tokens(trimWhitespace(t.Children), ctx)
		p.write(")")
	case KindBracket:
		p.write("[")
		p.tokens(trimWhitespace(t.Children), ctx)
		p.write("]")
	case KindBrace:
		p.write("{")
		p.tokens(trimWhitespace(t.Children), ctx)
		p.write("}")
	case KindWhitespace:
		p.write(" ")
	case KindAtKeyword:
		p.write("@" + EscapeIdent(t.Text))
	default:
		p.write(t.Text)
	}
}

func urlText(t *Token, minify bool) string {
	if t.NoValue {
		return "url()"
	}
	plain := escapeURL(t.Text) == t.Text
	if (minify && plain) || (!minify && t.Quote == 0) {
		return "url(" + escapeURL(t.Text) + ")"
	}
	return "url(" + QuoteString(t.Text) + ")"
}

// looksLikeExponent reports whether unit would be read back as number exponent.
func looksLikeExponent(unit string) bool {
	if len(unit) < 2 || (unit[0] != 'e' && unit[0] != 'E') {
		return false
	}
	rest := unit[1:]
	if rest[0] == '-' || rest[0] == '+' {
		rest = rest[1:]
	}
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

// escapeName serializes name which need not start like identifier.
func escapeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isNameChar(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return b.String()
}
