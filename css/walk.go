package css

import "strings"

// Visitor receives tree nodes from Walk. Embed BaseVisitor to implement only
// the methods of interest.
type Visitor interface {
	VisitStyleRule(r *StyleRule)
	VisitSelector(s *Selector)
	VisitAtRule(r *AtRule)
	VisitImportRule(r *ImportRule)
	VisitDeclaration(d *Declaration)
	// VisitURL is called for url tokens and url("...") functions. Token may be
	// modified in place.
	VisitURL(t *Token)
}

// BaseVisitor implements Visitor with no-op methods.
type BaseVisitor struct{}

func (BaseVisitor) VisitStyleRule(*StyleRule)     {}
func (BaseVisitor) VisitSelector(*Selector)       {}
func (BaseVisitor) VisitAtRule(*AtRule)           {}
func (BaseVisitor) VisitImportRule(*ImportRule)   {}
func (BaseVisitor) VisitDeclaration(*Declaration) {}
func (BaseVisitor) VisitURL(*Token)               {}

// Walk traverses tree depth-first in document order. Nodes are visited before
// their children. Import rules are the exception: their condition clauses are
// walked first and VisitImportRule is called afterwards, import target itself
// is never passed to VisitURL.
func Walk(v Visitor, n Node) {
	switch n := n.(type) {
	case *Stylesheet:
		walkBlock(v, n.Rules)
	case *StyleRule:
		v.VisitStyleRule(n)
		for _, sel := range n.Selectors {
			v.VisitSelector(sel)
			walkTokens(v, sel.Tokens)
		}
		walkBlock(v, n.Block)
	case *AtRule:
		v.VisitAtRule(n)
		walkTokens(v, n.Prelude)
		walkBlock(v, n.Block)
	case *ImportRule:
		if n.Href == nil {
			walkTokens(v, n.Prelude)
		} else {
			if n.Layer != nil {
				walkToken(v, n.Layer)
			}
			if n.Supports != nil {
				walkToken(v, n.Supports)
			}
			walkTokens(v, n.Media)
		}
		v.VisitImportRule(n)
	case *Declaration:
		v.VisitDeclaration(n)
		walkTokens(v, n.Value)
	}
}

func walkBlock(v Visitor, nodes []Node) {
	for _, n := range nodes {
		Walk(v, n)
	}
}

func walkTokens(v Visitor, toks []Token) {
	for i := range toks {
		walkToken(v, &toks[i])
	}
}

func walkToken(v Visitor, t *Token) {
	switch {
	case t.Kind == KindURL:
		v.VisitURL(t)
		return
	case t.Kind == KindFunction && (strings.EqualFold(t.Text, "url") || strings.EqualFold(t.Text, "src")):
		v.VisitURL(t)
		return
	}
	walkTokens(v, t.Children)
}
