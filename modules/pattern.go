// Package modules implements CSS Modules scoping: naming patterns, name
// generation and renaming of class and id selectors.
package modules

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrConfiguration is wrapped by all pattern compilation errors.
var ErrConfiguration = errors.New("invalid CSS Modules configuration")

// AnonymousName is emitted for [name] when input has no file name.
const AnonymousName = "[anon]"

// PatternError describes empty pattern, unknown or unterminated placeholder.
type PatternError struct {
	Pattern string
	// Token is placeholder name without brackets, or the unterminated tail
	// starting with '['.
	Token    string
	Offset   int
	Unclosed bool
	// Empty is set when pattern has no segments at all.
	Empty bool
}

func (e *PatternError) Error() string {
	switch {
	case e.Empty:
		return "empty CSS Modules pattern"
	case e.Unclosed:
		return fmt.Sprintf("unclosed brackets at %d in CSS Modules pattern: %s", e.Offset, e.Pattern)
	}
	return fmt.Sprintf("unknown placeholder [%s] at %d in CSS Modules pattern: %s", e.Token, e.Offset, e.Pattern)
}

func (e *PatternError) Unwrap() error {
	return ErrConfiguration
}

// SegmentKind identifies pattern segment.
type SegmentKind int

const (
	SegmentLiteral SegmentKind = iota
	SegmentName
	SegmentLocal
	SegmentHash
)

// Segment is one piece of compiled pattern. Text is set for literals only.
type Segment struct {
	Kind SegmentKind
	Text string
}

// Pattern is compiled naming pattern.
type Pattern struct {
	source   string
	segments []Segment
}

// String returns source text of the pattern.
func (p Pattern) String() string {
	return p.source
}

// Segments returns compiled segments in order.
func (p Pattern) Segments() []Segment {
	return p.segments
}

var placeholders = map[string]SegmentKind{
	"name":  SegmentName,
	"local": SegmentLocal,
	"hash":  SegmentHash,
}

// CompilePattern parses pattern made of literal text and [name], [local] and
// [hash] placeholders.
func CompilePattern(pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, &PatternError{Empty: true}
	}

	segments := make([]Segment, 0, 4)
	for i := 0; i < len(pattern); {
		if pattern[i] != '[' {
			end := strings.IndexByte(pattern[i:], '[')
			if end < 0 {
				end = len(pattern) - i
			}
			segments = append(segments, Segment{Kind: SegmentLiteral, Text: pattern[i : i+end]})
			i += end
			continue
		}

		end := strings.IndexByte(pattern[i:], ']')
		if end < 0 {
			return Pattern{}, &PatternError{Pattern: pattern, Token: pattern[i:], Offset: i, Unclosed: true}
		}
		name := pattern[i+1 : i+end]
		kind, ok := placeholders[name]
		if !ok {
			return Pattern{}, &PatternError{Pattern: pattern, Token: name, Offset: i}
		}
		segments = append(segments, Segment{Kind: kind})
		i += end + 1
	}
	return Pattern{source: pattern, segments: segments}, nil
}

// FileIdentity is per-file input of name generation.
type FileIdentity struct {
	// Stem is base name of the file without extension.
	Stem      string
	Anonymous bool
	// Hash is stable per-file hash byte.
	Hash byte
}

// IdentityFor derives identity from file name. Empty name is anonymous.
func IdentityFor(filename string) FileIdentity {
	if filename == "" {
		return FileIdentity{Anonymous: true, Hash: byte(xxhash.Sum64String("<anon>"))}
	}
	base := filepath.Base(filename)
	return FileIdentity{
		Stem: strings.TrimSuffix(base, filepath.Ext(base)),
		Hash: byte(xxhash.Sum64String(filename)),
	}
}

// Generate produces scoped name for local identifier. Result depends only on
// its arguments.
func (p Pattern) Generate(id FileIdentity, local string) string {
	var b strings.Builder
	for _, s := range p.segments {
		switch s.Kind {
		case SegmentLiteral:
			b.WriteString(s.Text)
		case SegmentName:
			if id.Anonymous {
				b.WriteString(AnonymousName)
			} else {
				b.WriteString(id.Stem)
			}
		case SegmentLocal:
			b.WriteString(local)
		case SegmentHash:
			fmt.Fprintf(&b, "%02x", id.Hash)
		}
	}
	return b.String()
}
