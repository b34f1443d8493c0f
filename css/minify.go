package css

import (
	"strings"
)

var lengthUnits = map[string]struct{}{
	"px": {}, "em": {}, "rem": {}, "ex": {}, "ch": {}, "vw": {}, "vh": {}, "vmin": {},
	"vmax": {}, "cm": {}, "mm": {}, "in": {}, "pt": {}, "pc": {}, "q": {},
}

// at-rules which can be dropped when their block is empty
var droppableAtRules = map[string]struct{}{
	"media":          {},
	"supports":       {},
	"container":      {},
	"document":       {},
	"-moz-document":  {},
	"scope":          {},
	"starting-style": {},
}

// Minify reduces stylesheet size in place: empty rules are removed, colors
// and numbers shortened, adjacent rules with equal selectors merged.
func Minify(sheet *Stylesheet) {
	sheet.Rules = minifyBlock(sheet.Rules)
}

func minifyBlock(nodes []Node) []Node {
	out := nodes[:0]
	for _, n := range nodes {
		switch n := n.(type) {
		case *StyleRule:
			n.Block = minifyBlock(n.Block)
			if len(n.Block) == 0 {
				continue
			}
			if prev, ok := lastStyleRule(out); ok && canMerge(prev, n) {
				prev.Block = append(prev.Block, n.Block...)
				prev.Span = prev.Span.Join(n.Span)
				continue
			}
		case *AtRule:
			if !n.HasBlock {
				break
			}
			n.Block = minifyBlock(n.Block)
			if _, ok := droppableAtRules[strings.ToLower(n.Name)]; ok && len(n.Block) == 0 {
				continue
			}
			n.Prelude = minifyValue(n.Prelude, false)
		case *Declaration:
			if !n.IsCustomProperty() {
				n.Value = minifyValue(n.Value, true)
			}
		}
		out = append(out, n)
	}
	return out
}

func lastStyleRule(nodes []Node) (*StyleRule, bool) {
	if len(nodes) == 0 {
		return nil, false
	}
	r, ok := nodes[len(nodes)-1].(*StyleRule)
	return r, ok
}

// canMerge reports whether two adjacent rules may share one block. Rules with
// nested rules are left alone.
func canMerge(a, b *StyleRule) bool {
	if SelectorListText(a.Selectors) != SelectorListText(b.Selectors) {
		return false
	}
	return len(Declarations(a.Block)) == len(a.Block) && len(Declarations(b.Block)) == len(b.Block)
}

// minifyValue shortens colors and numbers. Zero lengths lose their unit when
// dropUnits is set, never inside functions.
func minifyValue(toks []Token, dropUnits bool) []Token {
	for i := range toks {
		t := &toks[i]
		switch t.Kind {
		case KindHash:
			if isHexColor(t.Text) {
				t.Text = shortenHex(strings.ToLower(t.Text))
				t.IsID = startsIdentifier(t.Text)
			}
		case KindNumber, KindPercentage:
			t.Text = compactNumber(t.Text)
		case KindDimension:
			t.Text = compactNumber(t.Text)
			if _, ok := lengthUnits[strings.ToLower(t.Unit)]; ok && dropUnits && isZero(t.Text) {
				t.Kind, t.Text, t.Unit = KindNumber, "0", ""
			}
		case KindFunction, KindParen, KindBracket:
			t.Children = minifyValue(t.Children, false)
		}
	}
	return toks
}

func isHexColor(s string) bool {
	switch len(s) {
	case 3, 4, 6, 8:
	default:
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

func shortenHex(s string) string {
	if len(s) != 6 && len(s) != 8 {
		return s
	}
	short := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		if s[i] != s[i+1] {
			return s
		}
		short = append(short, s[i])
	}
	return string(short)
}

func isZero(num string) bool {
	num = strings.TrimLeft(num, "+-")
	return strings.Trim(num, "0.") == ""
}

// compactNumber drops redundant zeros and plus sign: 0.50 -> .5, +1.0 -> 1.
func compactNumber(num string) string {
	if strings.ContainsAny(num, "eE") {
		return num
	}
	sign := ""
	switch {
	case strings.HasPrefix(num, "-"):
		sign, num = "-", num[1:]
	case strings.HasPrefix(num, "+"):
		num = num[1:]
	}

	intPart, frac, hasFrac := strings.Cut(num, ".")
	if hasFrac {
		frac = strings.TrimRight(frac, "0")
	}
	intPart = strings.TrimLeft(intPart, "0")

	switch {
	case intPart == "" && frac == "":
		return "0"
	case frac == "":
		return sign + intPart
	}
	return sign + intPart + "." + frac
}
