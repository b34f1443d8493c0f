package css_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"cssc/css"
)

func parse(t *testing.T, input string) (*css.Stylesheet, []css.Error) {
	t.Helper()
	p := css.NewParser(zap.NewNop(), css.ParserConfig{})
	sheet, errs, err := p.Parse([]byte(input), "test.css")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	return sheet, errs
}

func styleRules(sheet *css.Stylesheet) []*css.StyleRule {
	var rules []*css.StyleRule
	for _, n := range sheet.Rules {
		if r, ok := n.(*css.StyleRule); ok {
			rules = append(rules, r)
		}
	}
	return rules
}

func TestParser_ElementSelector(t *testing.T) {
	sheet, errs := parse(t, `p { text-indent: 1em; }`)
	if len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %v", errs)
	}

	rules := styleRules(sheet)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if got := css.SelectorListText(rules[0].Selectors); got != "p" {
		t.Errorf("expected selector 'p', got %q", got)
	}

	decls := css.Declarations(rules[0].Block)
	if len(decls) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(decls))
	}
	d := decls[0]
	if d.Name != "text-indent" {
		t.Errorf("expected property 'text-indent', got %q", d.Name)
	}
	if len(d.Value) != 1 || d.Value[0].Kind != css.KindDimension {
		t.Fatalf("expected single dimension value, got %+v", d.Value)
	}
	if d.Value[0].Text != "1" || d.Value[0].Unit != "em" {
		t.Errorf("expected 1em, got %s%s", d.Value[0].Text, d.Value[0].Unit)
	}
}

func TestParser_GroupedSelectors(t *testing.T) {
	sheet, _ := parse(t, `h1, h2 , .title { font-weight: bold }`)
	rules := styleRules(sheet)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if n := len(rules[0].Selectors); n != 3 {
		t.Fatalf("expected 3 selectors, got %d", n)
	}
	if got := css.SelectorListText(rules[0].Selectors); got != "h1,h2,.title" {
		t.Errorf("unexpected selector list %q", got)
	}
}

func TestParser_Spans(t *testing.T) {
	sheet, _ := parse(t, `.a{color:red}`)
	rule := styleRules(sheet)[0]
	if rule.Span != (css.Span{Start: 0, End: 13}) {
		t.Errorf("rule span = %+v", rule.Span)
	}
	if rule.Selectors[0].Span != (css.Span{Start: 0, End: 2}) {
		t.Errorf("selector span = %+v", rule.Selectors[0].Span)
	}
	d := css.Declarations(rule.Block)[0]
	if d.Span != (css.Span{Start: 3, End: 12}) {
		t.Errorf("declaration span = %+v", d.Span)
	}
}

func TestParser_Important(t *testing.T) {
	sheet, _ := parse(t, `.a { color: red ! important; top: 0 }`)
	decls := css.Declarations(styleRules(sheet)[0].Block)
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}
	if !decls[0].Important {
		t.Error("expected first declaration to be important")
	}
	if got := css.MinifiedText(decls[0].Value); got != "red" {
		t.Errorf("expected value 'red', got %q", got)
	}
	if decls[1].Important {
		t.Error("second declaration is not important")
	}
}

func TestParser_Import(t *testing.T) {
	sheet, errs := parse(t, `@import url("a.css") layer(base) supports(display: grid) screen and (min-width: 600px);`)
	if len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %v", errs)
	}
	imports := sheet.Imports()
	if len(imports) != 1 {
		t.Fatalf("expected 1 import, got %d", len(imports))
	}
	imp := imports[0]
	if imp.Href == nil || imp.Href.Text != "a.css" {
		t.Fatalf("unexpected href %+v", imp.Href)
	}
	if imp.Href.Kind != css.KindURL || imp.Href.Quote != '"' {
		t.Errorf("expected quoted url token, got kind %v quote %q", imp.Href.Kind, imp.Href.Quote)
	}
	if imp.Layer == nil || css.MinifiedText([]css.Token{*imp.Layer}) != "layer(base)" {
		t.Errorf("unexpected layer %+v", imp.Layer)
	}
	if imp.Supports == nil || css.MinifiedText([]css.Token{*imp.Supports}) != "supports(display:grid)" {
		t.Errorf("unexpected supports %+v", imp.Supports)
	}
	if got := css.MinifiedText(imp.Media); got != "screen and (min-width:600px)" {
		t.Errorf("unexpected media %q", got)
	}
}

func TestParser_ImportForms(t *testing.T) {
	tests := []struct {
		input string
		href  string
		kind  css.TokenKind
		layer bool
	}{
		{input: `@import "a.css";`, href: "a.css", kind: css.KindString},
		{input: `@import 'a.css' layer;`, href: "a.css", kind: css.KindString, layer: true},
		{input: `@import url(a.css);`, href: "a.css", kind: css.KindURL},
		{input: `@import url( 'a b.css' );`, href: "a b.css", kind: css.KindURL},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sheet, _ := parse(t, tt.input)
			imports := sheet.Imports()
			if len(imports) != 1 || imports[0].Href == nil {
				t.Fatalf("expected 1 import with href, got %+v", imports)
			}
			if got := imports[0].Href; got.Text != tt.href || got.Kind != tt.kind {
				t.Errorf("href = %q (%v), want %q (%v)", got.Text, got.Kind, tt.href, tt.kind)
			}
			if (imports[0].Layer != nil) != tt.layer {
				t.Errorf("layer presence = %v, want %v", imports[0].Layer != nil, tt.layer)
			}
		})
	}
}

func TestParser_ImportAfterRule(t *testing.T) {
	sheet, errs := parse(t, `.a { top: 0 } @import "late.css";`)
	if len(sheet.Imports()) != 1 {
		t.Fatalf("import should still be parsed")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %v", len(errs), errs)
	}
	if errs[0].Level != css.LevelWarning {
		t.Errorf("expected warning, got %v", errs[0].Level)
	}
}

func TestParser_ImportAfterCharsetAndLayer(t *testing.T) {
	_, errs := parse(t, `@charset "utf-8"; @layer base; @import "a.css";`)
	if len(errs) != 0 {
		t.Errorf("unexpected diagnostics: %v", errs)
	}
}

func TestParser_UnterminatedString(t *testing.T) {
	sheet, errs := parse(t, ".a { content: \"abc\n; color: red; }")
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 diagnostic, got %d: %v", len(errs), errs)
	}
	if errs[0].Message != "Unterminated string" {
		t.Errorf("unexpected message %q", errs[0].Message)
	}

	decls := css.Declarations(styleRules(sheet)[0].Block)
	if len(decls) != 1 || decls[0].Name != "color" {
		t.Fatalf("expected only 'color' declaration to survive, got %+v", decls)
	}
}

func TestParser_RecoverableErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		rules int
		decls int
	}{
		{name: "stray brace", input: `} .a { top: 0 }`, rules: 1, decls: 1},
		{name: "missing colon", input: `.a { color red; margin: 0 }`, rules: 1, decls: 1},
		{name: "empty value", input: `.a { color: ; margin: 0 }`, rules: 1, decls: 1},
		{name: "unexpected token", input: `.a { 12px; margin: 0 }`, rules: 1, decls: 1},
		{name: "empty selector", input: `.a, { top: 0 } .b { top: 0 }`, rules: 1, decls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, errs := parse(t, tt.input)
			if len(errs) != 1 {
				t.Fatalf("expected 1 diagnostic, got %d: %v", len(errs), errs)
			}
			if errs[0].Level != css.LevelError {
				t.Errorf("expected error level, got %v", errs[0].Level)
			}
			rules := styleRules(sheet)
			if len(rules) != tt.rules {
				t.Fatalf("expected %d rules, got %d", tt.rules, len(rules))
			}
			if n := len(css.Declarations(rules[0].Block)); n != tt.decls {
				t.Errorf("expected %d declarations, got %d", tt.decls, n)
			}
		})
	}
}

func TestParser_Fatal(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "unclosed block", input: []byte(`.a { color: red;`)},
		{name: "unclosed function", input: []byte(`.a { width: calc(1px + 2px }`)},
		{name: "invalid utf-8", input: []byte{'.', 'a', 0xff, '{', '}'}},
		{name: "nul byte", input: []byte(".a{}\x00")},
	}

	p := css.NewParser(zap.NewNop(), css.ParserConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, _, err := p.Parse(tt.input, "")
			if err == nil {
				t.Fatal("expected fatal error")
			}
			if !errors.Is(err, css.ErrParse) {
				t.Errorf("expected error to wrap ErrParse, got %v", err)
			}
			var perr *css.ParseError
			if !errors.As(err, &perr) {
				t.Errorf("expected *ParseError, got %T", err)
			}
			if sheet != nil {
				t.Error("expected no tree on fatal error")
			}
		})
	}
}

func TestParser_Nesting(t *testing.T) {
	sheet, errs := parse(t, `.a { color: red; &:hover { color: blue } .b { top: 0 } a:focus { top: 1px } }`)
	if len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %v", errs)
	}
	block := styleRules(sheet)[0].Block
	if len(block) != 4 {
		t.Fatalf("expected 4 block items, got %d", len(block))
	}
	if _, ok := block[0].(*css.Declaration); !ok {
		t.Errorf("expected declaration first, got %T", block[0])
	}
	for i, want := range []string{"&:hover", ".b", "a:focus"} {
		r, ok := block[i+1].(*css.StyleRule)
		if !ok {
			t.Fatalf("expected nested rule at %d, got %T", i+1, block[i+1])
		}
		if got := css.SelectorListText(r.Selectors); got != want {
			t.Errorf("nested selector %d = %q, want %q", i, got, want)
		}
	}
}

func TestParser_AtRules(t *testing.T) {
	sheet, errs := parse(t, `
@font-face { font-family: X; src: url(x.woff2) format("woff2") }
@media screen and (max-width: 600px) { .a { top: 0 } }
@keyframes spin { from { top: 0 } to { top: 10px } }
@layer base, theme;
`)
	if len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %v", errs)
	}
	if len(sheet.Rules) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(sheet.Rules))
	}

	names := []string{"font-face", "media", "keyframes", "layer"}
	blocks := []bool{true, true, true, false}
	for i, n := range sheet.Rules {
		r, ok := n.(*css.AtRule)
		if !ok {
			t.Fatalf("rule %d: expected *AtRule, got %T", i, n)
		}
		if r.Name != names[i] {
			t.Errorf("rule %d: name %q, want %q", i, r.Name, names[i])
		}
		if r.HasBlock != blocks[i] {
			t.Errorf("rule %d: HasBlock = %v", i, r.HasBlock)
		}
	}

	media := sheet.Rules[1].(*css.AtRule)
	if got := css.MinifiedText(media.Prelude); got != "screen and (max-width:600px)" {
		t.Errorf("media prelude = %q", got)
	}
	if len(media.Block) != 1 {
		t.Errorf("expected 1 rule inside @media, got %d", len(media.Block))
	}
	if n := len(css.Declarations(sheet.Rules[0].(*css.AtRule).Block)); n != 2 {
		t.Errorf("expected 2 @font-face declarations, got %d", n)
	}
}

func TestParser_Comments(t *testing.T) {
	sheet, errs := parse(t, `/* header */ .a { /* inside */ color: /* value */ red }`)
	if len(errs) != 0 {
		t.Fatalf("unexpected diagnostics: %v", errs)
	}
	decls := css.Declarations(styleRules(sheet)[0].Block)
	if len(decls) != 1 || css.MinifiedText(decls[0].Value) != "red" {
		t.Fatalf("unexpected declarations %+v", decls)
	}
}

func TestParser_Escapes(t *testing.T) {
	sheet, _ := parse(t, `.a\:b, .\31 0 { content: "q\"x" }`)
	rule := styleRules(sheet)[0]

	sel := rule.Selectors[0].Tokens
	if sel[1].Kind != css.KindIdent || sel[1].Text != "a:b" {
		t.Errorf("expected decoded identifier 'a:b', got %+v", sel[1])
	}
	sel = rule.Selectors[1].Tokens
	if sel[1].Text != "10" {
		t.Errorf("expected decoded identifier '10', got %q", sel[1].Text)
	}
	d := css.Declarations(rule.Block)[0]
	if d.Value[0].Kind != css.KindString || d.Value[0].Text != `q"x` {
		t.Errorf("unexpected string %+v", d.Value[0])
	}
}

func TestParser_HashTokens(t *testing.T) {
	sheet, _ := parse(t, `#main { color: #123 }`)
	rule := styleRules(sheet)[0]
	if h := rule.Selectors[0].Tokens[0]; h.Kind != css.KindHash || !h.IsID || h.Text != "main" {
		t.Errorf("unexpected id token %+v", h)
	}
	if h := css.Declarations(rule.Block)[0].Value[0]; h.Kind != css.KindHash || h.IsID {
		t.Errorf("color hash should not be an id: %+v", h)
	}
}

func TestParser_ModulePseudo(t *testing.T) {
	p := css.NewParser(zap.NewNop(), css.ParserConfig{CSSModules: true})
	_, errs, err := p.Parse([]byte(`:global() .a { top: 0 } :global(.b) { top: 0 }`), "m.css")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 diagnostic for empty :global(), got %v", errs)
	}
}

func TestRulesBySelector(t *testing.T) {
	sheet, _ := parse(t, `.a, .b { top: 0 } p { top: 0 } .a,.b { left: 0 }`)
	if n := len(sheet.RulesBySelector(".a,.b")); n != 2 {
		t.Errorf("expected 2 rules, got %d", n)
	}
	if n := len(sheet.RulesBySelector("p")); n != 1 {
		t.Errorf("expected 1 rule, got %d", n)
	}
	if n := len(sheet.RulesBySelector(".c")); n != 0 {
		t.Errorf("expected no rules, got %d", n)
	}
}
