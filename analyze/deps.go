// Package analyze extracts external references of a stylesheet.
package analyze

import (
	"cssc/css"
)

// URLRecord is decoded content of url() or import target.
type URLRecord struct {
	Value string `json:"value"`
}

// ImportRecord describes single @import with its conditions re-serialized
// as minified text.
type ImportRecord struct {
	URL      URLRecord `json:"url"`
	Supports string    `json:"supports,omitempty"`
	Layer    string    `json:"layer,omitempty"`
	Media    []string  `json:"media,omitempty"`
}

// Dependencies lists imports and urls in document order.
type Dependencies struct {
	Imports []ImportRecord `json:"imports"`
	URLs    []URLRecord    `json:"urls"`
}

// Analyze walks sheet and collects its dependencies. It never fails, anything
// it cannot resolve is left out.
func Analyze(sheet *css.Stylesheet) *Dependencies {
	a := &analyzer{deps: &Dependencies{
		Imports: []ImportRecord{},
		URLs:    []URLRecord{},
	}}
	if sheet != nil {
		css.Walk(a, sheet)
	}
	return a.deps
}

type analyzer struct {
	css.BaseVisitor
	deps *Dependencies
}

// VisitImportRule is called after nested url() of import conditions were
// recorded.
func (a *analyzer) VisitImportRule(r *css.ImportRule) {
	if r.Href == nil {
		return
	}
	value, ok := r.Href.URLValue()
	if r.Href.Kind == css.KindString {
		value, ok = r.Href.Text, true
	}
	if !ok {
		return
	}

	rec := ImportRecord{URL: URLRecord{Value: value}}
	if r.Layer != nil {
		rec.Layer = css.MinifiedText([]css.Token{*r.Layer})
	}
	if r.Supports != nil {
		rec.Supports = css.MinifiedText([]css.Token{*r.Supports})
	}
	if len(r.Media) > 0 {
		for _, q := range splitQueries(r.Media) {
			if len(q) > 0 {
				rec.Media = append(rec.Media, css.MinifiedText(q))
			}
		}
	}
	a.deps.Imports = append(a.deps.Imports, rec)
}

func (a *analyzer) VisitURL(t *css.Token) {
	if value, ok := t.URLValue(); ok {
		a.deps.URLs = append(a.deps.URLs, URLRecord{Value: value})
	}
}

// splitQueries splits media query list on top-level commas.
func splitQueries(toks []css.Token) [][]css.Token {
	var (
		out   [][]css.Token
		start int
	)
	for i := range toks {
		if toks[i].Kind == css.KindComma {
			out = append(out, toks[start:i])
			start = i + 1
		}
	}
	return append(out, toks[start:])
}
