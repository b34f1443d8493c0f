package modules_test

import (
	"errors"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cssc/modules"
)

func TestCompilePattern(t *testing.T) {
	p, err := modules.CompilePattern("[name]__[local]___[hash]")
	require.NoError(t, err)

	want := []modules.Segment{
		{Kind: modules.SegmentName},
		{Kind: modules.SegmentLiteral, Text: "__"},
		{Kind: modules.SegmentLocal},
		{Kind: modules.SegmentLiteral, Text: "___"},
		{Kind: modules.SegmentHash},
	}
	assert.Equal(t, want, p.Segments())
	assert.Equal(t, "[name]__[local]___[hash]", p.String())
}

func TestCompilePattern_LiteralOnly(t *testing.T) {
	p, err := modules.CompilePattern("prefix-")
	require.NoError(t, err)
	assert.Equal(t, []modules.Segment{{Kind: modules.SegmentLiteral, Text: "prefix-"}}, p.Segments())
}

func TestCompilePattern_Errors(t *testing.T) {
	tests := []struct {
		pattern  string
		token    string
		offset   int
		unclosed bool
		message  string
	}{
		{
			pattern: "[bogus]",
			token:   "bogus",
			offset:  0,
			message: "unknown placeholder [bogus] at 0 in CSS Modules pattern: [bogus]",
		},
		{
			pattern:  "[name",
			token:    "[name",
			offset:   0,
			unclosed: true,
			message:  "unclosed brackets at 0 in CSS Modules pattern: [name",
		},
		{
			pattern:  "x-[local]-[hash",
			token:    "[hash",
			offset:   10,
			unclosed: true,
			message:  "unclosed brackets at 10 in CSS Modules pattern: x-[local]-[hash",
		},
		{
			pattern: "a[hash]b[Name]",
			token:   "Name",
			offset:  8,
			message: "unknown placeholder [Name] at 8 in CSS Modules pattern: a[hash]b[Name]",
		},
		{
			pattern: "[]",
			token:   "",
			offset:  0,
			message: "unknown placeholder [] at 0 in CSS Modules pattern: []",
		},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			_, err := modules.CompilePattern(tt.pattern)
			require.Error(t, err)
			assert.True(t, errors.Is(err, modules.ErrConfiguration))

			var perr *modules.PatternError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.token, perr.Token)
			assert.Equal(t, tt.offset, perr.Offset)
			assert.Equal(t, tt.unclosed, perr.Unclosed)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestCompilePattern_Empty(t *testing.T) {
	_, err := modules.CompilePattern("")
	require.Error(t, err)
	assert.ErrorIs(t, err, modules.ErrConfiguration)

	var perr *modules.PatternError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Empty)
	assert.False(t, perr.Unclosed)
	assert.Equal(t, "empty CSS Modules pattern", err.Error())

	// without Empty set the message is about placeholder
	assert.Contains(t, (&modules.PatternError{Token: "x"}).Error(), "unknown placeholder [x]")
}

func TestGenerate_Deterministic(t *testing.T) {
	p, err := modules.CompilePattern("[name]__[local]___[hash]")
	require.NoError(t, err)

	id := modules.FileIdentity{Stem: "button", Hash: 0x0a}
	first := p.Generate(id, "root")
	assert.Equal(t, "button__root___0a", first)
	for range 10 {
		assert.Equal(t, first, p.Generate(id, "root"))
	}

	again, err := modules.CompilePattern("[name]__[local]___[hash]")
	require.NoError(t, err)
	assert.Equal(t, first, again.Generate(id, "root"))
}

func TestGenerate_Anonymous(t *testing.T) {
	p, err := modules.CompilePattern("[name]-[local]")
	require.NoError(t, err)

	id := modules.IdentityFor("")
	assert.True(t, id.Anonymous)
	assert.Equal(t, "[anon]-title", p.Generate(id, "title"))
}

func TestGenerate_HashPadding(t *testing.T) {
	p, err := modules.CompilePattern("h[hash]")
	require.NoError(t, err)
	assert.Equal(t, "h05", p.Generate(modules.FileIdentity{Hash: 5}, "x"))
	assert.Equal(t, "hff", p.Generate(modules.FileIdentity{Hash: 0xff}, "x"))
}

func TestIdentityFor(t *testing.T) {
	id := modules.IdentityFor("/src/components/button.module.css")
	assert.False(t, id.Anonymous)
	assert.Equal(t, "button.module", id.Stem)
	assert.Equal(t, byte(xxhash.Sum64String("/src/components/button.module.css")), id.Hash)

	assert.Equal(t, id, modules.IdentityFor("/src/components/button.module.css"))
	assert.Equal(t, byte(xxhash.Sum64String("<anon>")), modules.IdentityFor("").Hash)
}
