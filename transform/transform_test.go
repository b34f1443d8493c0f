package transform_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"cssc/css"
	"cssc/diag"
	"cssc/modules"
	"cssc/transform"
)

func newTransformer(t *testing.T) *transform.Transformer {
	t.Helper()
	return transform.New(zaptest.NewLogger(t))
}

func TestTransform_AbsentParts(t *testing.T) {
	out, err := newTransformer(t).Transform(context.Background(), []byte(`.a { color: red }`), transform.Options{})
	require.NoError(t, err)

	assert.Equal(t, ".a {\n  color: red;\n}\n", out.Code)
	assert.Nil(t, out.Map)
	assert.Nil(t, out.Diagnostics)
	assert.Nil(t, out.Dependencies)
	assert.Nil(t, out.ClassMapping)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":".a {\n  color: red;\n}\n"}`, string(data))
}

func TestTransform_AllPhases(t *testing.T) {
	src := `@import "base.css" screen;
.a { color: #ff0000; background: url(x.png) }
:global(.b) { color: red }
`
	out, err := newTransformer(t).Transform(context.Background(), []byte(src), transform.Options{
		Filename:            "/styles/button.css",
		SourceMap:           true,
		CSSModules:          &transform.ModulesOptions{Pattern: "[name]_[local]"},
		Minify:              true,
		AnalyzeDependencies: true,
	})
	require.NoError(t, err)

	assert.Equal(t, `@import "base.css" screen;.button_a{color:#f00;background:url(x.png)}.b{color:red}`, out.Code)
	assert.Nil(t, out.Diagnostics)

	require.NotNil(t, out.Dependencies)
	require.Len(t, out.Dependencies.Imports, 1)
	assert.Equal(t, "base.css", out.Dependencies.Imports[0].URL.Value)
	assert.Equal(t, []string{"screen"}, out.Dependencies.Imports[0].Media)
	require.Len(t, out.Dependencies.URLs, 1)
	assert.Equal(t, "x.png", out.Dependencies.URLs[0].Value)

	require.NotNil(t, out.ClassMapping)
	assert.Equal(t, []modules.ClassName{modules.Local("button_a")}, out.ClassMapping.Get("a"))
	assert.Equal(t, []modules.ClassName{modules.Global("b")}, out.ClassMapping.Get("b"))

	require.NotNil(t, out.Map)
	var sm css.SourceMap
	require.NoError(t, json.Unmarshal([]byte(*out.Map), &sm))
	assert.Equal(t, 3, sm.Version)
	assert.Equal(t, []string{"/styles/button.css"}, sm.Sources)
	assert.Equal(t, []string{src}, sm.SourcesContent)
	assert.NotEmpty(t, sm.Mappings)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.ElementsMatch(t, []string{"code", "map", "deps", "modulesMapping"}, keys(generic))
	assert.JSONEq(t, `{"a":[{"type":"Local","name":"button_a"}],"b":[{"type":"Global","name":"b"}]}`, string(generic["modulesMapping"]))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestTransform_PatternError(t *testing.T) {
	tests := []struct {
		pattern string
		token   string
	}{
		{pattern: "[bogus]", token: "bogus"},
		{pattern: "[name", token: "[name"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			// input is not parseable, configuration is checked first
			out, err := newTransformer(t).Transform(context.Background(), []byte(".a{}\x00"), transform.Options{
				CSSModules: &transform.ModulesOptions{Pattern: tt.pattern},
			})
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, modules.ErrConfiguration)

			var perr *modules.PatternError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.token, perr.Token)
			assert.Contains(t, err.Error(), tt.pattern)
		})
	}
}

func TestTransform_RecoverableDiagnostic(t *testing.T) {
	src := ".a { content: \"abc\n; color: red }\n.b { top: 0 }"
	out, err := newTransformer(t).Transform(context.Background(), []byte(src), transform.Options{
		Filename: "test.css",
		Minify:   true,
	})
	require.NoError(t, err)

	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, diag.LevelError, out.Diagnostics[0].Level)
	assert.Equal(t, "Unterminated string", out.Diagnostics[0].Message)
	assert.Contains(t, out.Code, ".b{top:0}")

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"errors":[{"level":"error","message":"Unterminated string","span":{"file":"test.css"`)
}

func TestTransform_Fatal(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "nul", input: ".a{}\x00"},
		{name: "invalid utf8", input: ".a{content:'\xff'}"},
		{name: "unclosed block", input: ".a { color: red"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTransformer(t).Transform(context.Background(), []byte(tt.input), transform.Options{
				AnalyzeDependencies: true,
				CSSModules:          &transform.ModulesOptions{Pattern: "[local]"},
			})
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, css.ErrParse)

			var fe *diag.FatalError
			require.True(t, errors.As(err, &fe))
			require.NotEmpty(t, fe.Diagnostics)
			assert.Equal(t, diag.LevelError, fe.Diagnostics[len(fe.Diagnostics)-1].Level)
			assert.Len(t, multierr.Errors(err), len(fe.Diagnostics))
		})
	}
}

func TestTransform_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newTransformer(t).Transform(ctx, []byte(`.a{}`), transform.Options{})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)

	out, err = newTransformer(t).Minify(ctx, []byte(`.a{}`), transform.MinifyOptions{})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransform_DownlevelAlwaysRuns(t *testing.T) {
	out, err := newTransformer(t).Transform(context.Background(), []byte(`.a { .b { color: #ff000080 } }`), transform.Options{Minify: true})
	require.NoError(t, err)
	assert.Equal(t, `.a .b{color:rgba(255,0,0,.502)}`, out.Code)
}

func TestTransform_NestedModules(t *testing.T) {
	out, err := newTransformer(t).Transform(context.Background(), []byte(`.a { &:hover { top: 0 } .b { top: 1px } }`), transform.Options{
		Filename:   "x.css",
		CSSModules: &transform.ModulesOptions{Pattern: "x-[local]"},
		Minify:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, `.x-a:hover{top:0}.x-a .x-b{top:1px}`, out.Code)
	assert.Equal(t, []string{"a", "b"}, out.ClassMapping.Keys())
}

func TestTransform_Deterministic(t *testing.T) {
	tr := newTransformer(t)
	opts := transform.Options{
		Filename:   "/a/card.css",
		CSSModules: &transform.ModulesOptions{Pattern: "[name]__[local]___[hash]"},
		SourceMap:  true,
	}
	src := []byte(`.root { color: red } .title { font-weight: bold }`)

	first, err := tr.Transform(context.Background(), src, opts)
	require.NoError(t, err)
	for range 5 {
		next, err := tr.Transform(context.Background(), src, opts)
		require.NoError(t, err)
		assert.Equal(t, first.Code, next.Code)
		assert.Equal(t, *first.Map, *next.Map)
		assert.Equal(t, first.ClassMapping.Keys(), next.ClassMapping.Keys())
	}
	assert.True(t, strings.HasPrefix(first.Code, ".card__root___"))
}

func TestMinify(t *testing.T) {
	out, err := newTransformer(t).Minify(context.Background(), []byte(".a { color: #FFFFFF; margin: 0px }\n.a { top: 0.50em }\n.b {}"), transform.MinifyOptions{SourceMap: true})
	require.NoError(t, err)

	assert.Equal(t, `.a{color:#fff;margin:0;top:.5em}`, out.Code)
	require.NotNil(t, out.Map)
	assert.Contains(t, *out.Map, `"sources":["<anon>"]`)
	assert.Nil(t, out.Dependencies)
	assert.Nil(t, out.ClassMapping)
}

func TestMinify_KeepsNesting(t *testing.T) {
	out, err := newTransformer(t).Minify(context.Background(), []byte(`.a { .b { top: 0 } }`), transform.MinifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, `.a{.b{top:0}}`, out.Code)
}

func TestParseOptions(t *testing.T) {
	opts, err := transform.ParseOptions([]byte(`{"filename":"a.css","sourceMap":true,"cssModules":{"pattern":"[local]"},"minify":true,"analyzeDependencies":true}`))
	require.NoError(t, err)
	assert.Equal(t, transform.Options{
		Filename:            "a.css",
		SourceMap:           true,
		CSSModules:          &transform.ModulesOptions{Pattern: "[local]"},
		Minify:              true,
		AnalyzeDependencies: true,
	}, opts)

	opts, err = transform.ParseOptions([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, transform.Options{}, opts)

	for _, bad := range []string{
		`{"minified":true}`,
		`{"cssModules":{"pattern":"x","hash":1}}`,
		`{"minify":"yes"}`,
		`{} {}`,
		``,
	} {
		_, err := transform.ParseOptions([]byte(bad))
		assert.Error(t, err, bad)
	}

	mopts, err := transform.ParseMinifyOptions([]byte(`{"filename":"m.css","sourceMap":true}`))
	require.NoError(t, err)
	assert.Equal(t, transform.MinifyOptions{Filename: "m.css", SourceMap: true}, mopts)

	_, err = transform.ParseMinifyOptions([]byte(`{"minify":true}`))
	assert.Error(t, err)
}

func TestEmitError(t *testing.T) {
	cause := errors.New("short write")
	err := error(&transform.EmitError{Stage: "code", Err: cause})

	assert.ErrorIs(t, err, transform.ErrEmit)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to emit: code: short write", err.Error())
}
