package css

import (
	"encoding/json"
	"strings"
)

// AnonymousSource is the source name used for inputs without file name.
const AnonymousSource = "<anon>"

// SourceMap is a version 3 source map for single source.
type SourceMap struct {
	Version        int      `json:"version"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// NewSourceMap builds source map for printer mappings against src.
func NewSourceMap(filename string, src []byte, mappings []Mapping) *SourceMap {
	if filename == "" {
		filename = AnonymousSource
	}
	return &SourceMap{
		Version:        3,
		Sources:        []string{filename},
		SourcesContent: []string{string(src)},
		Names:          []string{},
		Mappings:       encodeMappings(NewLineIndex(src), mappings),
	}
}

// Encode returns JSON text of the map.
func (m *SourceMap) Encode() (string, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func encodeMappings(li *LineIndex, mappings []Mapping) string {
	var (
		b               strings.Builder
		genLine, genCol int
		srcLine, srcCol int
	)
	first := true
	for _, m := range mappings {
		for genLine < m.GenLine {
			b.WriteByte(';')
			genLine++
			genCol = 0
			first = true
		}
		if !first {
			b.WriteByte(',')
		}
		first = false

		line, col := li.Position(m.Source)
		writeVLQ(&b, m.GenColumn-genCol)
		writeVLQ(&b, 0)
		writeVLQ(&b, line-srcLine)
		writeVLQ(&b, col-srcCol)
		genCol, srcLine, srcCol = m.GenColumn, line, col
	}
	return b.String()
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func writeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 0x1f
		u >>= 5
		if u > 0 {
			digit |= 0x20
		}
		b.WriteByte(base64Digits[digit])
		if u == 0 {
			return
		}
	}
}
