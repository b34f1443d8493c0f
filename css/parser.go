package css

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// ErrParse is returned (wrapped) when input cannot be turned into a tree.
var ErrParse = errors.New("failed to parse input as stylesheet")

// Level is severity of a parser diagnostic.
type Level int

const (
	LevelError Level = iota
	LevelWarning
)

func (l Level) String() string {
	if l == LevelWarning {
		return "warning"
	}
	return "error"
}

// Error is a recoverable problem found while parsing. Tree is still usable.
type Error struct {
	Level   Level
	Message string
	Span    Span
}

func (e Error) Error() string {
	return e.Message
}

// ParseError reports input which could not be turned into a tree at all.
type ParseError struct {
	Message string
	Span    Span
}

func (e *ParseError) Error() string {
	return ErrParse.Error() + ": " + e.Message
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ParserConfig controls optional syntax handling.
type ParserConfig struct {
	// CSSModules enables validation of :global and :local pseudo classes.
	CSSModules bool
}

// Parser turns stylesheet source into a tree.
type Parser struct {
	log *zap.Logger
	cfg ParserConfig
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger, cfg ParserConfig) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser"), cfg: cfg}
}

// Parse is a shorthand for NewParser(nil, cfg).Parse(data, filename).
func Parse(data []byte, filename string, cfg ParserConfig) (*Stylesheet, []Error, error) {
	return NewParser(nil, cfg).Parse(data, filename)
}

// Parse parses data into a Stylesheet. Recoverable problems are returned in
// source order together with the tree. When error is not nil tree is nil and
// returned diagnostics are everything found before giving up.
func (p *Parser) Parse(data []byte, filename string) (*Stylesheet, []Error, error) {
	if filename != "" {
		p.log.Debug("Parsing CSS", zap.String("source", filename), zap.Int("bytes", len(data)))
	}

	if err := checkInput(data); err != nil {
		return nil, nil, err
	}

	toks, errs, err := lex(data)
	if err != nil {
		return nil, errs, err
	}

	b := &treeBuilder{toks: toks, errs: errs, cfg: p.cfg}
	sheet := b.consumeStylesheet()
	sheet.Span = Span{Start: 0, End: len(data)}

	sort.SliceStable(b.errs, func(i, j int) bool {
		return b.errs[i].Span.Start < b.errs[j].Span.Start
	})
	if b.fatal != nil {
		p.log.Debug("CSS parse failed", zap.String("source", filename), zap.Error(b.fatal))
		return nil, b.errs, b.fatal
	}
	p.log.Debug("Parsed CSS", zap.Int("rules", len(sheet.Rules)), zap.Int("diagnostics", len(b.errs)))
	return sheet, b.errs, nil
}

func checkInput(data []byte) error {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			return &ParseError{Message: "input is not valid UTF-8", Span: Span{Start: i, End: i + 1}}
		case r == 0:
			return &ParseError{Message: "unexpected NUL character", Span: Span{Start: i, End: i + 1}}
		}
		i += size
	}
	return nil
}

type lexeme struct {
	tt   css.TokenType
	data string
	span Span
}

// lex splits input into lexemes, dropping comments. Lexeme spans are
// contiguous because lexer returns every consumed byte.
func lex(data []byte) ([]lexeme, []Error, error) {
	var (
		toks   []lexeme
		errs   []Error
		offset int
	)
	l := css.NewLexer(parse.NewInputBytes(data))
	for {
		tt, text := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, errs, &ParseError{Message: err.Error(), Span: Span{Start: offset, End: offset}}
			}
			break
		}
		span := Span{Start: offset, End: offset + len(text)}
		offset += len(text)

		switch tt {
		case css.CommentToken:
			continue
		case css.BadStringToken:
			errs = append(errs, Error{Level: LevelError, Message: "Unterminated string", Span: span})
		case css.BadURLToken:
			errs = append(errs, Error{Level: LevelError, Message: "Invalid url()", Span: span})
		}
		toks = append(toks, lexeme{tt: tt, data: string(text), span: span})
	}
	return toks, errs, nil
}

type blockMode int

const (
	modeRules blockMode = iota
	modeDecls
	modeMixed
)

// at-rules whose blocks hold declarations only
var declarationAtRules = map[string]struct{}{
	"font-face":           {},
	"page":                {},
	"property":            {},
	"counter-style":       {},
	"font-palette-values": {},
	"viewport":            {},
	"-ms-viewport":        {},
	"position-try":        {},
	"view-transition":     {},
}

// at-rules whose blocks hold rules (and declarations when nested in a style rule)
var groupingAtRules = map[string]struct{}{
	"media":          {},
	"supports":       {},
	"container":      {},
	"layer":          {},
	"scope":          {},
	"starting-style": {},
	"document":       {},
	"-moz-document":  {},
}

type treeBuilder struct {
	toks []lexeme
	pos  int
	errs []Error
	cfg  ParserConfig

	// set when bad string or bad url lexeme was consumed
	bad bool
	// set when top-level rule other than @charset, @import, @layer was seen
	seenRule bool
	fatal    *ParseError
}

func (b *treeBuilder) eof() bool {
	return b.fatal != nil || b.pos >= len(b.toks)
}

func (b *treeBuilder) peek() *lexeme {
	if b.pos >= len(b.toks) {
		return nil
	}
	return &b.toks[b.pos]
}

func (b *treeBuilder) next() lexeme {
	t := b.toks[b.pos]
	b.pos++
	return t
}

func (b *treeBuilder) endOffset() int {
	if len(b.toks) == 0 {
		return 0
	}
	return b.toks[len(b.toks)-1].span.End
}

func (b *treeBuilder) report(level Level, span Span, format string, args ...any) {
	b.errs = append(b.errs, Error{Level: level, Message: fmt.Sprintf(format, args...), Span: span})
}

func (b *treeBuilder) fail(format string, args ...any) {
	if b.fatal != nil {
		return
	}
	end := b.endOffset()
	b.fatal = &ParseError{Message: fmt.Sprintf(format, args...), Span: Span{Start: end, End: end}}
}

func (b *treeBuilder) skipWhitespace() {
	for t := b.peek(); t != nil && t.tt == css.WhitespaceToken; t = b.peek() {
		b.pos++
	}
}

func (b *treeBuilder) consumeStylesheet() *Stylesheet {
	sheet := &Stylesheet{}
	for !b.eof() {
		t := b.peek()
		switch t.tt {
		case css.WhitespaceToken, css.CDOToken, css.CDCToken, css.SemicolonToken:
			b.pos++
		case css.AtKeywordToken:
			if n := b.consumeAtRule(false, true); n != nil {
				sheet.Rules = append(sheet.Rules, n)
			}
		case css.RightBraceToken:
			b.report(LevelError, t.span, "Unexpected '}'")
			b.pos++
		default:
			if n := b.consumeQualifiedRule(false); n != nil {
				sheet.Rules = append(sheet.Rules, n)
				b.seenRule = true
			}
		}
	}
	return sheet
}

func (b *treeBuilder) consumeAtRule(nested, topLevel bool) Node {
	kw := b.next()
	name := unescape(kw.data[1:])
	lname := strings.ToLower(name)
	span := kw.span

	var prelude []Token
	for !b.eof() {
		t := b.peek()
		switch t.tt {
		case css.SemicolonToken:
			span = span.Join(b.next().span)
			return b.finishAtRule(name, prelude, span, topLevel)
		case css.RightBraceToken:
			if !topLevel {
				return b.finishAtRule(name, prelude, span, topLevel)
			}
			b.report(LevelError, t.span, "Unexpected '}'")
			b.pos++
			continue
		case css.LeftBraceToken:
			b.pos++
			mode := modeMixed
			if _, ok := declarationAtRules[lname]; ok {
				mode = modeDecls
			} else if _, ok := groupingAtRules[lname]; ok && !nested {
				mode = modeRules
			} else if strings.HasSuffix(lname, "keyframes") {
				mode = modeRules
			}
			block, end := b.consumeBlock(mode, nested || mode == modeMixed)
			if topLevel && lname != "layer" {
				b.seenRule = true
			}
			return &AtRule{
				Name:     name,
				Prelude:  trimWhitespace(prelude),
				Block:    block,
				HasBlock: true,
				Span:     Span{Start: kw.span.Start, End: end},
			}
		}
		tok := b.consumeComponentValue()
		prelude = append(prelude, tok)
		span = span.Join(tok.Span)
	}
	if b.fatal != nil {
		return nil
	}
	return b.finishAtRule(name, prelude, span, topLevel)
}

func (b *treeBuilder) finishAtRule(name string, prelude []Token, span Span, topLevel bool) Node {
	lname := strings.ToLower(name)
	if lname == "import" {
		r := newImportRule(prelude, span)
		if topLevel && b.seenRule {
			b.report(LevelWarning, span, "All @import rules must precede all other rules")
		}
		return r
	}
	if topLevel && lname != "charset" && lname != "layer" {
		b.seenRule = true
	}
	return &AtRule{Name: name, Prelude: trimWhitespace(prelude), Span: span}
}

func newImportRule(prelude []Token, span Span) *ImportRule {
	r := &ImportRule{Prelude: trimWhitespace(prelude), Span: span}
	toks := r.Prelude
	if len(toks) == 0 {
		return r
	}

	first := toks[0]
	switch {
	case first.Kind == KindString || first.Kind == KindURL:
		r.Href = &first
	case first.IsFunction("url"):
		if v, ok := first.URLValue(); ok {
			r.Href = &Token{Kind: KindURL, Text: v, Quote: '"', Span: first.Span}
		}
	}
	if r.Href == nil {
		return r
	}

	rest := trimWhitespace(toks[1:])
	if len(rest) > 0 && (rest[0].IsIdent("layer") || rest[0].IsFunction("layer")) {
		layer := rest[0]
		r.Layer = &layer
		rest = trimWhitespace(rest[1:])
	}
	if len(rest) > 0 && rest[0].IsFunction("supports") {
		supports := rest[0]
		r.Supports = &supports
		rest = trimWhitespace(rest[1:])
	}
	if len(rest) > 0 {
		r.Media = rest
	}
	return r
}

// consumeBlock consumes block contents up to and including closing brace.
// Returns end offset of the block.
func (b *treeBuilder) consumeBlock(mode blockMode, nested bool) ([]Node, int) {
	var items []Node
	for !b.eof() {
		t := b.peek()
		switch t.tt {
		case css.WhitespaceToken, css.SemicolonToken:
			b.pos++
			continue
		case css.RightBraceToken:
			return items, b.next().span.End
		case css.AtKeywordToken:
			if n := b.consumeAtRule(nested, false); n != nil {
				items = append(items, n)
			}
			continue
		}

		rule := mode == modeRules || (mode == modeMixed && b.looksLikeRule())
		if rule {
			if r := b.consumeQualifiedRule(true); r != nil {
				items = append(items, r)
			}
		} else if d := b.consumeDeclaration(); d != nil {
			items = append(items, d)
		}
	}
	b.fail("Unexpected end of input, expected '}'")
	return items, b.endOffset()
}

// looksLikeRule decides whether upcoming tokens inside a mixed block form a
// nested rule: the first top-level '{' comes before ';' or '}'.
func (b *treeBuilder) looksLikeRule() bool {
	if t := b.peek(); t.tt == css.IdentToken && strings.HasPrefix(t.data, "--") {
		return false
	}
	depth := 0
	for i := b.pos; i < len(b.toks); i++ {
		switch b.toks[i].tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.LeftBraceToken:
			if depth == 0 {
				return true
			}
		case css.SemicolonToken, css.RightBraceToken:
			if depth == 0 {
				return false
			}
		}
	}
	return false
}

func (b *treeBuilder) consumeQualifiedRule(nested bool) *StyleRule {
	var prelude []Token
	start := b.peek().span
	for !b.eof() {
		t := b.peek()
		switch t.tt {
		case css.LeftBraceToken:
			b.pos++
			block, end := b.consumeBlock(modeMixed, true)
			if b.fatal != nil {
				return nil
			}
			return b.newStyleRule(prelude, block, Span{Start: start.Start, End: end})
		case css.RightBraceToken:
			if nested {
				b.report(LevelError, tokensSpan(prelude).Join(start), "Expected '{'")
			}
			return nil
		}
		prelude = append(prelude, b.consumeComponentValue())
	}
	if b.fatal == nil {
		b.report(LevelError, tokensSpan(prelude).Join(start), "Unexpected end of input in rule prelude")
	}
	return nil
}

func (b *treeBuilder) newStyleRule(prelude []Token, block []Node, span Span) *StyleRule {
	parts := splitTopLevel(prelude)
	r := &StyleRule{Block: block, Span: span}
	for _, part := range parts {
		if len(part) == 0 {
			b.report(LevelError, tokensSpan(prelude), "Empty selector")
			return nil
		}
		if b.cfg.CSSModules {
			b.checkModulePseudo(part)
		}
		r.Selectors = append(r.Selectors, &Selector{Tokens: part, Span: tokensSpan(part)})
	}
	return r
}

// checkModulePseudo reports :global() and :local() without arguments.
func (b *treeBuilder) checkModulePseudo(toks []Token) {
	for i := range toks {
		t := &toks[i]
		if t.Kind == KindFunction && (t.IsFunction("global") || t.IsFunction("local")) {
			if len(trimWhitespace(t.Children)) == 0 {
				b.report(LevelError, t.Span, "Empty :%s() selector", strings.ToLower(t.Text))
			}
		}
		if len(t.Children) > 0 {
			b.checkModulePseudo(t.Children)
		}
	}
}

func (b *treeBuilder) consumeDeclaration() *Declaration {
	first := b.peek()
	if first.tt != css.IdentToken {
		b.report(LevelError, first.span, "Expected declaration but found '%s'", first.data)
		b.skipDeclaration()
		return nil
	}
	nameTok := b.next()
	b.skipWhitespace()
	if t := b.peek(); t == nil || t.tt != css.ColonToken {
		b.report(LevelError, nameTok.span, "Expected ':' after '%s'", nameTok.data)
		b.skipDeclaration()
		return nil
	}
	b.pos++

	b.bad = false
	d := &Declaration{Name: unescape(nameTok.data), Span: nameTok.span}
	for !b.eof() {
		t := b.peek()
		if t.tt == css.SemicolonToken {
			b.pos++
			break
		}
		if t.tt == css.RightBraceToken {
			break
		}
		tok := b.consumeComponentValue()
		d.Value = append(d.Value, tok)
		d.Span = d.Span.Join(tok.Span)
	}
	if b.bad {
		// already reported by lexer
		return nil
	}

	d.Value = trimWhitespace(d.Value)
	if n := len(d.Value); n >= 2 && d.Value[n-1].IsIdent("important") {
		bang := trimWhitespace(d.Value[:n-1])
		if m := len(bang); m > 0 && bang[m-1].IsDelim("!") {
			d.Important = true
			d.Value = trimWhitespace(bang[:m-1])
		}
	}
	if len(d.Value) == 0 && !d.IsCustomProperty() {
		b.report(LevelError, d.Span, "Expected value for property '%s'", d.Name)
		return nil
	}
	return d
}

// skipDeclaration drops tokens up to and including next top-level ';', stops
// before '}'.
func (b *treeBuilder) skipDeclaration() {
	for !b.eof() {
		switch b.peek().tt {
		case css.SemicolonToken:
			b.pos++
			return
		case css.RightBraceToken:
			return
		}
		b.consumeComponentValue()
	}
}

func (b *treeBuilder) consumeComponentValue() Token {
	t := b.next()
	switch t.tt {
	case css.FunctionToken:
		tok := Token{Kind: KindFunction, Text: unescape(t.data[:len(t.data)-1]), Span: t.span}
		tok.Children, tok.Span.End = b.consumeUntil(css.RightParenthesisToken, ')')
		return tok
	case css.LeftParenthesisToken:
		tok := Token{Kind: KindParen, Span: t.span}
		tok.Children, tok.Span.End = b.consumeUntil(css.RightParenthesisToken, ')')
		return tok
	case css.LeftBracketToken:
		tok := Token{Kind: KindBracket, Span: t.span}
		tok.Children, tok.Span.End = b.consumeUntil(css.RightBracketToken, ']')
		return tok
	case css.LeftBraceToken:
		tok := Token{Kind: KindBrace, Span: t.span}
		tok.Children, tok.Span.End = b.consumeUntil(css.RightBraceToken, '}')
		return tok
	}
	return b.convert(t)
}

func (b *treeBuilder) consumeUntil(closing css.TokenType, c byte) ([]Token, int) {
	var children []Token
	for !b.eof() {
		if b.peek().tt == closing {
			return children, b.next().span.End
		}
		children = append(children, b.consumeComponentValue())
	}
	b.fail("Unexpected end of input, expected '%c'", c)
	return children, b.endOffset()
}

func (b *treeBuilder) convert(t lexeme) Token {
	tok := Token{Span: t.span}
	switch t.tt {
	case css.IdentToken:
		tok.Kind, tok.Text = KindIdent, unescape(t.data)
	case css.AtKeywordToken:
		tok.Kind, tok.Text = KindAtKeyword, unescape(t.data[1:])
	case css.HashToken:
		tok.Kind, tok.Text = KindHash, unescape(t.data[1:])
		tok.IsID = startsIdentifier(t.data[1:])
	case css.StringToken:
		tok.Kind = KindString
		tok.Text, tok.Quote = decodeString(t.data)
	case css.BadStringToken:
		b.bad = true
		tok.Kind = KindString
		tok.Text, tok.Quote = decodeString(t.data)
	case css.URLToken:
		tok.Kind = KindURL
		tok.Text, tok.Quote, tok.NoValue = decodeURL(t.data)
	case css.BadURLToken:
		b.bad = true
		tok.Kind = KindURL
		tok.Text, tok.Quote, tok.NoValue = decodeURL(t.data)
	case css.NumberToken:
		tok.Kind, tok.Text = KindNumber, t.data
	case css.PercentageToken:
		tok.Kind, tok.Text = KindPercentage, t.data[:len(t.data)-1]
	case css.DimensionToken:
		num, unit := splitDimension(t.data)
		tok.Kind, tok.Text, tok.Unit = KindDimension, num, unescape(unit)
	case css.UnicodeRangeToken:
		tok.Kind, tok.Text = KindUnicodeRange, t.data
	case css.IncludeMatchToken, css.DashMatchToken, css.PrefixMatchToken,
		css.SuffixMatchToken, css.SubstringMatchToken, css.ColumnToken:
		tok.Kind, tok.Text = KindMatch, t.data
	case css.WhitespaceToken:
		tok.Kind, tok.Text = KindWhitespace, " "
	case css.CDOToken:
		tok.Kind, tok.Text = KindCDO, t.data
	case css.CDCToken:
		tok.Kind, tok.Text = KindCDC, t.data
	case css.ColonToken:
		tok.Kind, tok.Text = KindColon, ":"
	case css.SemicolonToken:
		tok.Kind, tok.Text = KindSemicolon, ";"
	case css.CommaToken:
		tok.Kind, tok.Text = KindComma, ","
	default:
		// delimiters and unmatched closing brackets
		tok.Kind, tok.Text = KindDelim, t.data
	}
	return tok
}

// splitDimension splits dimension token text into number and unit.
func splitDimension(s string) (string, string) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i+1 < len(s) && s[i] == '.' && s[i+1] >= '0' && s[i+1] <= '9' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	if i+1 < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if s[j] == '+' || s[j] == '-' {
			j++
		}
		if j < len(s) && s[j] >= '0' && s[j] <= '9' {
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	}
	return s[:i], s[i:]
}

// startsIdentifier reports whether s would start an identifier.
func startsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	r, size := utf8.DecodeRuneInString(s)
	switch {
	case r == '-':
		if len(s) == 1 {
			return false
		}
		r2, _ := utf8.DecodeRuneInString(s[size:])
		return r2 == '-' || isNameStart(r2) || r2 == '\\'
	case r == '\\':
		return true
	}
	return isNameStart(r)
}
