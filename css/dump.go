package css

import (
	"cssc/utils/debug"
)

// Dump returns indented text representation of the tree for debug reports.
func Dump(sheet *Stylesheet) string {
	tw := debug.NewTreeWriter()
	tw.Node(0, "Stylesheet", sheet.Span.Start, sheet.Span.End, "")
	dumpBlock(tw, 1, sheet.Rules)
	return tw.String()
}

func dumpBlock(tw *debug.TreeWriter, depth int, nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *StyleRule:
			tw.Node(depth, "StyleRule", n.Span.Start, n.Span.End, "")
			for _, sel := range n.Selectors {
				tw.Node(depth+1, "Selector", sel.Span.Start, sel.Span.End, SelectorListText([]*Selector{sel}))
			}
			dumpBlock(tw, depth+1, n.Block)
		case *AtRule:
			tw.Node(depth, "AtRule", n.Span.Start, n.Span.End, n.Name)
			if len(n.Prelude) > 0 {
				tw.TextBlock(depth+1, "prelude", MinifiedText(n.Prelude))
			}
			dumpBlock(tw, depth+1, n.Block)
		case *ImportRule:
			tw.Node(depth, "ImportRule", n.Span.Start, n.Span.End, "")
			if n.Href != nil {
				tw.TextBlock(depth+1, "href", n.Href.Text)
			}
			if n.Layer != nil {
				tw.TextBlock(depth+1, "layer", MinifiedText([]Token{*n.Layer}))
			}
			if n.Supports != nil {
				tw.TextBlock(depth+1, "supports", MinifiedText([]Token{*n.Supports}))
			}
			if len(n.Media) > 0 {
				tw.TextBlock(depth+1, "media", MinifiedText(n.Media))
			}
		case *Declaration:
			tw.Node(depth, "Declaration", n.Span.Start, n.Span.End, n.Name)
			tw.TextBlock(depth+1, "value", MinifiedText(n.Value))
			if n.Important {
				tw.Line(depth+1, "important")
			}
		}
	}
}
