package css

import (
	"math"
	"strconv"
	"strings"
)

// Features selects syntax rewritten by Downlevel.
type Features uint32

const (
	// FeatureNesting flattens nested style rules.
	FeatureNesting Features = 1 << iota
	// FeatureHexAlpha rewrites #rgba and #rrggbbaa colors to rgba().
	FeatureHexAlpha
	// FeatureMediaRanges rewrites media range syntax to min-/max- features.
	FeatureMediaRanges

	FeaturesAll = FeatureNesting | FeatureHexAlpha | FeatureMediaRanges
)

// Has reports whether all features of o are enabled.
func (f Features) Has(o Features) bool {
	return f&o == o
}

// Downlevel rewrites modern syntax into equivalent older syntax in place.
func Downlevel(sheet *Stylesheet, f Features) {
	if f.Has(FeatureNesting) {
		sheet.Rules = flattenBlock(sheet.Rules, nil)
	}
	if f.Has(FeatureHexAlpha) || f.Has(FeatureMediaRanges) {
		Walk(&downleveler{features: f}, sheet)
	}
}

type downleveler struct {
	BaseVisitor
	features Features
}

func (d *downleveler) VisitDeclaration(decl *Declaration) {
	if d.features.Has(FeatureHexAlpha) && !decl.IsCustomProperty() {
		rewriteHexAlpha(decl.Value)
	}
}

func (d *downleveler) VisitAtRule(r *AtRule) {
	if d.features.Has(FeatureMediaRanges) && strings.EqualFold(r.Name, "media") {
		r.Prelude = rewriteMediaRanges(r.Prelude)
	}
}

func (d *downleveler) VisitImportRule(r *ImportRule) {
	if d.features.Has(FeatureMediaRanges) && len(r.Media) > 0 {
		r.Media = rewriteMediaRanges(r.Media)
	}
}

// flattenBlock lifts nested style rules out of their parents. parents holds
// resolved selectors of the enclosing rule, nil at top level.
func flattenBlock(nodes []Node, parents []*Selector) []Node {
	var out []Node
	for _, n := range nodes {
		switch n := n.(type) {
		case *StyleRule:
			out = append(out, flattenRule(n, parents)...)
		case *AtRule:
			if n.HasBlock && parents == nil && len(Declarations(n.Block)) == len(n.Block) {
				// declaration-only blocks such as @font-face
				out = append(out, n)
				continue
			}
			switch {
			case n.HasBlock && parents != nil:
				n.Block = flattenBlock(wrapDeclarations(n.Block, n.Span), parents)
			case n.HasBlock:
				n.Block = flattenBlock(n.Block, nil)
			}
			out = append(out, n)
		default:
			out = append(out, n)
		}
	}
	return out
}

func flattenRule(r *StyleRule, parents []*Selector) []Node {
	sels := r.Selectors
	if parents != nil {
		sels = resolveSelectors(parents, r.Selectors)
	}

	var (
		out   []Node
		decls []Node
	)
	flush := func() {
		if len(decls) > 0 {
			out = append(out, &StyleRule{Selectors: cloneSelectors(sels), Block: decls, Span: r.Span})
			decls = nil
		}
	}
	for _, n := range r.Block {
		switch n := n.(type) {
		case *Declaration:
			decls = append(decls, n)
		case *StyleRule:
			flush()
			out = append(out, flattenRule(n, sels)...)
		case *AtRule:
			flush()
			if !n.HasBlock {
				out = append(out, n)
				continue
			}
			n.Block = flattenBlock(wrapDeclarations(n.Block, n.Span), sels)
			out = append(out, n)
		default:
			flush()
			out = append(out, n)
		}
	}
	flush()
	if len(out) == 0 {
		// keep empty rule so later phases see it
		out = append(out, &StyleRule{Selectors: sels, Span: r.Span})
	}
	return out
}

// wrapDeclarations puts bare declarations of a nested at-rule block under a
// rule with "&" selector so they pick up parent selectors.
func wrapDeclarations(block []Node, span Span) []Node {
	var (
		out   []Node
		decls []Node
	)
	flush := func() {
		if len(decls) > 0 {
			amp := &Selector{Tokens: []Token{{Kind: KindDelim, Text: "&"}}}
			out = append(out, &StyleRule{Selectors: []*Selector{amp}, Block: decls, Span: span})
			decls = nil
		}
	}
	for _, n := range block {
		if d, ok := n.(*Declaration); ok {
			decls = append(decls, d)
			continue
		}
		flush()
		out = append(out, n)
	}
	flush()
	return out
}

// resolveSelectors combines every parent with every child selector. Each
// nesting selector of a child ranges over all parents independently.
func resolveSelectors(parents, children []*Selector) []*Selector {
	var out []*Selector
	for _, c := range children {
		k := countNesting(c.Tokens)
		if k == 0 {
			for _, p := range parents {
				toks := append(cloneTokens(p.Tokens), Token{Kind: KindWhitespace, Text: " "})
				toks = append(toks, cloneTokens(c.Tokens)...)
				out = append(out, &Selector{Tokens: toks, Span: c.Span})
			}
			continue
		}

		idx := make([]int, k)
		for {
			n := 0
			next := func() []Token {
				p := parents[idx[n]]
				n++
				return p.Tokens
			}
			out = append(out, &Selector{Tokens: substituteNesting(c.Tokens, next), Span: c.Span})

			i := k - 1
			for ; i >= 0; i-- {
				if idx[i]++; idx[i] < len(parents) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				break
			}
		}
	}
	return out
}

func countNesting(toks []Token) int {
	n := 0
	for i := range toks {
		if toks[i].IsDelim("&") {
			n++
		}
		n += countNesting(toks[i].Children)
	}
	return n
}

// substituteNesting replaces nesting selectors in document order with
// selectors returned by next.
func substituteNesting(toks []Token, next func() []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.IsDelim("&") {
			out = append(out, cloneTokens(next())...)
			continue
		}
		if len(t.Children) > 0 {
			t.Children = substituteNesting(t.Children, next)
		}
		out = append(out, t)
	}
	return out
}

func cloneTokens(toks []Token) []Token {
	if toks == nil {
		return nil
	}
	out := make([]Token, len(toks))
	for i, t := range toks {
		t.Children = cloneTokens(t.Children)
		out[i] = t
	}
	return out
}

func cloneSelectors(sels []*Selector) []*Selector {
	out := make([]*Selector, len(sels))
	for i, s := range sels {
		out[i] = &Selector{Tokens: cloneTokens(s.Tokens), Span: s.Span}
	}
	return out
}

func rewriteHexAlpha(toks []Token) {
	for i := range toks {
		t := &toks[i]
		if t.Kind == KindHash && (len(t.Text) == 4 || len(t.Text) == 8) && isHexColor(t.Text) {
			*t = hexToRGBA(t.Text, t.Span)
			continue
		}
		rewriteHexAlpha(t.Children)
	}
}

func hexToRGBA(hex string, span Span) Token {
	if len(hex) == 4 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2], hex[3], hex[3]})
	}
	var ch [4]uint64
	for i := range ch {
		ch[i], _ = strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
	}
	alpha := math.Round(float64(ch[3])/255*1000) / 1000

	fn := Token{Kind: KindFunction, Text: "rgba", Span: span}
	for i, v := range []string{
		strconv.FormatUint(ch[0], 10),
		strconv.FormatUint(ch[1], 10),
		strconv.FormatUint(ch[2], 10),
		strconv.FormatFloat(alpha, 'f', -1, 64),
	} {
		if i > 0 {
			fn.Children = append(fn.Children, Token{Kind: KindComma, Text: ",", Span: span})
		}
		fn.Children = append(fn.Children, Token{Kind: KindNumber, Text: v, Span: span})
	}
	return fn
}

// rewriteMediaRanges replaces range features like (width >= 600px) with
// (min-width: 600px).
func rewriteMediaRanges(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != KindParen {
			if len(t.Children) > 0 {
				t.Children = rewriteMediaRanges(t.Children)
			}
			out = append(out, t)
			continue
		}
		if repl, ok := rangeToFeatures(t); ok {
			out = append(out, repl...)
			continue
		}
		t.Children = rewriteMediaRanges(t.Children)
		out = append(out, t)
	}
	return out
}

type rangeOp int

const (
	opLT rangeOp = iota
	opLE
	opGT
	opGE
	opEQ
)

// flip returns operator for swapped operands.
func (op rangeOp) flip() rangeOp {
	switch op {
	case opLT:
		return opGT
	case opLE:
		return opGE
	case opGT:
		return opLT
	case opGE:
		return opLE
	}
	return op
}

// splitRange splits paren contents into operands and operators. Operands
// are single tokens.
func splitRange(toks []Token) (operands []Token, ops []rangeOp, ok bool) {
	toks = withoutWhitespace(toks)
	for i := 0; i < len(toks); {
		if len(operands) == len(ops) {
			switch toks[i].Kind {
			case KindIdent, KindNumber, KindDimension:
				operands = append(operands, toks[i])
				i++
				continue
			}
			return nil, nil, false
		}
		var op rangeOp
		switch {
		case toks[i].IsDelim("<"):
			op = opLT
		case toks[i].IsDelim(">"):
			op = opGT
		case toks[i].IsDelim("="):
			op = opEQ
		default:
			return nil, nil, false
		}
		i++
		if op != opEQ && i < len(toks) && toks[i].IsDelim("=") {
			op++
			i++
		}
		ops = append(ops, op)
	}
	if len(ops) == 0 || len(operands) != len(ops)+1 {
		return nil, nil, false
	}
	return operands, ops, true
}

func withoutWhitespace(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != KindWhitespace {
			out = append(out, t)
		}
	}
	return out
}

func rangeToFeatures(paren Token) ([]Token, bool) {
	operands, ops, ok := splitRange(paren.Children)
	if !ok {
		return nil, false
	}

	switch len(ops) {
	case 1:
		if operands[0].Kind == KindIdent {
			return singleFeature(operands[0].Text, ops[0], operands[1], paren.Span)
		}
		if operands[1].Kind == KindIdent {
			return singleFeature(operands[1].Text, ops[0].flip(), operands[0], paren.Span)
		}
	case 2:
		// v1 < name < v2
		if operands[1].Kind != KindIdent || ops[0] == opEQ || ops[1] == opEQ {
			return nil, false
		}
		lower, ok := singleFeature(operands[1].Text, ops[0].flip(), operands[0], paren.Span)
		if !ok {
			return nil, false
		}
		upper, ok := singleFeature(operands[1].Text, ops[1], operands[2], paren.Span)
		if !ok {
			return nil, false
		}
		out := append(lower,
			Token{Kind: KindWhitespace, Text: " "},
			Token{Kind: KindIdent, Text: "and"},
			Token{Kind: KindWhitespace, Text: " "},
		)
		return append(out, upper...), true
	}
	return nil, false
}

func singleFeature(name string, op rangeOp, value Token, span Span) ([]Token, bool) {
	if value.Kind == KindIdent {
		return nil, false
	}
	prefix := ""
	switch op {
	case opGE:
		prefix = "min-"
	case opLE:
		prefix = "max-"
	case opGT, opLT:
		delta := 0.001
		prefix = "min-"
		if op == opLT {
			delta, prefix = -delta, "max-"
		}
		v, err := strconv.ParseFloat(value.Text, 64)
		if err != nil {
			return nil, false
		}
		value.Text = strconv.FormatFloat(math.Round((v+delta)*1000)/1000, 'f', -1, 64)
	}

	paren := Token{Kind: KindParen, Span: span, Children: []Token{
		{Kind: KindIdent, Text: prefix + name, Span: span},
		{Kind: KindColon, Text: ":", Span: span},
		{Kind: KindWhitespace, Text: " "},
		value,
	}}
	return []Token{paren}, true
}
