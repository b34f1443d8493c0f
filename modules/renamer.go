package modules

import (
	"strings"

	"cssc/css"
)

// Config controls Compile.
type Config struct {
	Pattern  Pattern
	Identity FileIdentity
}

// Compile scopes class and id selectors and keyframes names of sheet in place
// and returns classification of every original identifier it saw. Selectors
// wrapped in :global(...) or following bare :global keep their names, so do
// @keyframes :global(name). animation and animation-name values are rewritten
// for keyframes declared locally in the same sheet. composes declarations are
// recorded and removed.
func Compile(sheet *css.Stylesheet, cfg Config) *Mapping {
	kc := &keyframesCollector{local: make(map[string]bool)}
	css.Walk(kc, sheet)

	r := &renamer{
		cfg:       cfg,
		mapping:   NewMapping(),
		names:     make(map[string]string),
		keyframes: kc.local,
	}
	css.Walk(r, sheet)
	return r.mapping
}

type renamer struct {
	css.BaseVisitor

	cfg     Config
	mapping *Mapping
	// generated names by original identifier
	names map[string]string
	// local classes of the rule being processed, in order
	owners []string
	// keyframes declared in local mode
	keyframes map[string]bool
}

func (r *renamer) generate(local string) string {
	if name, ok := r.names[local]; ok {
		return name
	}
	name := r.cfg.Pattern.Generate(r.cfg.Identity, local)
	r.names[local] = name
	return name
}

func (r *renamer) rename(original string, global bool) string {
	if global {
		r.mapping.Add(original, Global(original))
		return original
	}
	name := r.generate(original)
	r.mapping.Add(original, Local(name))
	return name
}

func (r *renamer) VisitStyleRule(rule *css.StyleRule) {
	r.owners = r.owners[:0]
	for _, sel := range rule.Selectors {
		sel.Tokens = trimSpace(r.selector(sel.Tokens, false, true))
	}
	rule.Block = r.composes(rule.Block)
}

// selector rewrites one complex selector. global is the mode in effect, top
// tells whether class names found here may own composes declarations.
func (r *renamer) selector(toks []css.Token, global, top bool) []css.Token {
	out := make([]css.Token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		var next *css.Token
		if i+1 < len(toks) {
			next = &toks[i+1]
		}

		switch {
		case t.Kind == css.KindColon && next != nil && (next.IsFunction("global") || next.IsFunction("local")):
			inner := r.selector(next.Children, next.IsFunction("global"), top)
			out = append(out, trimSpace(inner)...)
			i++
		case t.Kind == css.KindColon && next != nil && (next.IsIdent("global") || next.IsIdent("local")) && !prevIsColon(toks, i):
			global = next.IsIdent("global")
			i++
		case t.IsDelim(".") && next != nil && next.Kind == css.KindIdent:
			id := *next
			id.Text = r.rename(next.Text, global)
			if !global && top {
				r.addOwner(next.Text)
			}
			out = append(out, t, id)
			i++
		case t.Kind == css.KindHash && t.IsID:
			t.Text = r.rename(t.Text, global)
			out = append(out, t)
		case len(t.Children) > 0:
			t.Children = r.selector(t.Children, global, false)
			out = append(out, t)
		default:
			out = append(out, t)
		}
	}
	return out
}

func (r *renamer) VisitAtRule(rule *css.AtRule) {
	name, global, ok := keyframesName(rule)
	if !ok {
		return
	}
	id := css.Token{Kind: css.KindIdent, Text: r.rename(name, global), Span: rule.Prelude[0].Span}
	rule.Prelude = []css.Token{id}
}

func (r *renamer) VisitDeclaration(d *css.Declaration) {
	if len(r.keyframes) == 0 {
		return
	}
	switch unprefixed(d.Name) {
	case "animation", "animation-name":
	default:
		return
	}
	for i := range d.Value {
		t := &d.Value[i]
		if t.Kind == css.KindIdent && r.keyframes[t.Text] {
			t.Text = r.generate(t.Text)
		}
	}
}

// keyframesName extracts name from @keyframes prelude written either as
// identifier or wrapped in :global(...) / :local(...).
func keyframesName(rule *css.AtRule) (name string, global, ok bool) {
	if !strings.HasSuffix(strings.ToLower(rule.Name), "keyframes") {
		return "", false, false
	}
	toks := trimSpace(rule.Prelude)
	switch {
	case len(toks) == 1 && toks[0].Kind == css.KindIdent:
		return toks[0].Text, false, true
	case len(toks) == 2 && toks[0].Kind == css.KindColon &&
		(toks[1].IsFunction("global") || toks[1].IsFunction("local")):
		inner := trimSpace(toks[1].Children)
		if len(inner) == 1 && inner[0].Kind == css.KindIdent {
			return inner[0].Text, toks[1].IsFunction("global"), true
		}
	}
	return "", false, false
}

// unprefixed lower-cases property name and drops vendor prefix.
func unprefixed(name string) string {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "-") {
		if i := strings.IndexByte(name[1:], '-'); i >= 0 {
			return name[i+2:]
		}
	}
	return name
}

type keyframesCollector struct {
	css.BaseVisitor

	local map[string]bool
}

func (kc *keyframesCollector) VisitAtRule(rule *css.AtRule) {
	if name, global, ok := keyframesName(rule); ok && !global {
		kc.local[name] = true
	}
}

func prevIsColon(toks []css.Token, i int) bool {
	return i > 0 && toks[i-1].Kind == css.KindColon
}

func (r *renamer) addOwner(name string) {
	for _, o := range r.owners {
		if o == name {
			return
		}
	}
	r.owners = append(r.owners, name)
}

// composes records composes declarations of block under owner classes and
// returns block without them.
func (r *renamer) composes(block []css.Node) []css.Node {
	out := block[:0]
	for _, n := range block {
		d, ok := n.(*css.Declaration)
		if !ok || !strings.EqualFold(d.Name, "composes") {
			out = append(out, n)
			continue
		}
		names, from, global := parseComposes(d.Value)
		for _, owner := range r.owners {
			for _, name := range names {
				switch {
				case global:
					r.mapping.Add(owner, Global(name))
				case from != "":
					r.mapping.Add(owner, Import(name, from))
				default:
					r.mapping.Add(owner, Local(r.generate(name)))
				}
			}
		}
	}
	return out
}

// parseComposes splits "a b from global" or "a b from './x.css'" value.
func parseComposes(value []css.Token) (names []string, from string, global bool) {
	for i := 0; i < len(value); i++ {
		t := &value[i]
		switch {
		case t.Kind == css.KindWhitespace:
		case t.IsIdent("from"):
			rest := trimSpace(value[i+1:])
			if len(rest) == 0 {
				return names, "", false
			}
			switch {
			case rest[0].IsIdent("global"):
				return names, "", true
			case rest[0].Kind == css.KindString:
				return names, rest[0].Text, false
			}
			return names, "", false
		case t.Kind == css.KindIdent:
			names = append(names, t.Text)
		}
	}
	return names, "", false
}

func trimSpace(toks []css.Token) []css.Token {
	for len(toks) > 0 && toks[0].Kind == css.KindWhitespace {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].Kind == css.KindWhitespace {
		toks = toks[:len(toks)-1]
	}
	return toks
}
