package debug

import (
	"fmt"
	"strconv"
	"strings"
)

// TreeWriter accumulates indented text describing tree-like structures.
type TreeWriter struct {
	w      *strings.Builder
	indent string
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{
		w:      &strings.Builder{},
		indent: "  ",
	}
}

func (tw *TreeWriter) String() string {
	return tw.w.String()
}

func (tw *TreeWriter) pad(depth int) {
	for range depth {
		tw.w.WriteString(tw.indent)
	}
}

func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.pad(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// Node writes node header with its byte range: "Kind [start:end] label".
func (tw *TreeWriter) Node(depth int, kind string, start, end int, label string) {
	tw.pad(depth)
	fmt.Fprintf(tw.w, "%s [%d:%d]", kind, start, end)
	if label != "" {
		tw.w.WriteByte(' ')
		tw.w.WriteString(encodeText(label))
	}
	tw.w.WriteByte('\n')
}

func (tw *TreeWriter) TextBlock(depth int, label, value string) {
	tw.pad(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(encodeText(value))
	tw.w.WriteByte('\n')
}

func encodeText(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}
