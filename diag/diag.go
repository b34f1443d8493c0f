// Package diag collects diagnostics produced while processing one stylesheet
// and renders them into a flat ordered list.
package diag

import (
	"encoding/json"
	"errors"
	"strconv"

	"cssc/css"
)

// Severity labels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// Position is a location in source. Line and Column are zero based, Column
// counts UTF-16 code units.
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a structured position payload of a Diagnostic.
type Span struct {
	File  string   `json:"file,omitempty"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Diagnostic is a single immutable finding. Span is kept serialized so callers
// do not depend on its structure.
type Diagnostic struct {
	Level   string          `json:"level"`
	Message string          `json:"message"`
	Span    json.RawMessage `json:"span"`
}

func (d Diagnostic) Error() string {
	return d.Level + ": " + d.Message
}

// DecodeSpan returns structured span of the diagnostic.
func (d Diagnostic) DecodeSpan() (Span, error) {
	var s Span
	if len(d.Span) == 0 {
		return s, nil
	}
	err := json.Unmarshal(d.Span, &s)
	return s, err
}

// Location formats diagnostic position as "file:line:column" using one based
// numbers, the way compilers report it.
func (d Diagnostic) Location() string {
	s, err := d.DecodeSpan()
	if err != nil {
		return ""
	}
	file := s.File
	if file == "" {
		file = css.AnonymousSource
	}
	return file + ":" + strconv.Itoa(s.Start.Line+1) + ":" + strconv.Itoa(s.Start.Column+1)
}

// Buffer is an ordered append only diagnostics sink for one source document.
// It is not safe for concurrent use, every invocation owns its own Buffer.
type Buffer struct {
	file  string
	lines *css.LineIndex
	list  []Diagnostic
}

// NewBuffer creates sink resolving spans against src.
func NewBuffer(filename string, src []byte) *Buffer {
	return &Buffer{file: filename, lines: css.NewLineIndex(src)}
}

// Span converts byte range into structured span.
func (b *Buffer) Span(sp css.Span) Span {
	out := Span{File: b.file}
	out.Start.Offset = sp.Start
	out.Start.Line, out.Start.Column = b.lines.Position(sp.Start)
	out.End.Offset = sp.End
	out.End.Line, out.End.Column = b.lines.Position(sp.End)
	return out
}

// Add appends diagnostic at the end of the list.
func (b *Buffer) Add(level, message string, sp css.Span) {
	// marshaling plain struct of strings and ints cannot fail
	data, _ := json.Marshal(b.Span(sp))
	b.list = append(b.list, Diagnostic{Level: level, Message: message, Span: data})
}

// AddParse appends recoverable parser diagnostics preserving their order.
func (b *Buffer) AddParse(errs []css.Error) {
	for _, e := range errs {
		b.Add(e.Level.String(), e.Message, e.Span)
	}
}

// Len returns number of collected diagnostics.
func (b *Buffer) Len() int {
	return len(b.list)
}

// Diagnostics returns copy of collected diagnostics, nil when there are none.
func (b *Buffer) Diagnostics() []Diagnostic {
	if len(b.list) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(b.list))
	copy(out, b.list)
	return out
}

// Fatal drains the buffer, appends err as the last error level entry and
// returns everything as one FatalError.
func (b *Buffer) Fatal(err error) *FatalError {
	var (
		sp   css.Span
		msg  = err.Error()
		perr *css.ParseError
	)
	if errors.As(err, &perr) {
		sp, msg = perr.Span, perr.Message
	}
	b.Add(LevelError, msg, sp)

	fe := &FatalError{Diagnostics: b.list, Err: err}
	b.list = nil
	return fe
}
