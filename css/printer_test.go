package css_test

import (
	"bytes"
	"errors"
	"testing"

	"cssc/css"
)

func render(t *testing.T, sheet *css.Stylesheet, opts css.PrintOptions) (string, []css.Mapping) {
	t.Helper()
	var buf bytes.Buffer
	mappings, err := css.Print(&buf, sheet, opts)
	if err != nil {
		t.Fatalf("print failed: %v", err)
	}
	return buf.String(), mappings
}

func TestPrint_Pretty(t *testing.T) {
	sheet, _ := parse(t, `.a,.b{color:red;margin:0 auto}@media screen{.c{top:0}}`)
	got, _ := render(t, sheet, css.PrintOptions{})
	want := `.a, .b {
  color: red;
  margin: 0 auto;
}
@media screen {
  .c {
    top: 0;
  }
}
`
	if got != want {
		t.Errorf("pretty output mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrint_Minified(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: `.a,.b{color:red;margin:0 auto}@media screen{.c{top:0}}`, want: `.a,.b{color:red;margin:0 auto}@media screen{.c{top:0}}`},
		{input: ".a > .b  ~ .c + .d  .e { top : 0 }", want: `.a>.b~.c+.d .e{top:0}`},
		{input: `.a:hover , .b :focus { color : red ! important }`, want: `.a:hover,.b :focus{color:red!important}`},
		{input: `@import url(a.css) screen;`, want: `@import url(a.css) screen;`},
		{input: `@import url("a b.css");`, want: `@import url("a b.css");`},
		{input: `.a{background:url( 'x.png' )}`, want: `.a{background:url(x.png)}`},
		{input: `.a{content:'x'}`, want: `.a{content:"x"}`},
		{input: `.a{font:12px / 1.5 serif, sans-serif}`, want: `.a{font:12px / 1.5 serif,sans-serif}`},
		{input: `.a\:b{top:0}`, want: `.a\:b{top:0}`},
		{input: `.a{}`, want: `.a{}`},
		{input: `@layer a, b;`, want: `@layer a,b;`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sheet, _ := parse(t, tt.input)
			got, _ := render(t, sheet, css.PrintOptions{Minify: true})
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrint_Escapes(t *testing.T) {
	sheet, _ := parse(t, `.a\:b{content:'x'}`)
	got, _ := render(t, sheet, css.PrintOptions{})
	want := ".a\\:b {\n  content: \"x\";\n}\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrint_Mappings(t *testing.T) {
	sheet, _ := parse(t, `.a{color:red}`)
	_, mappings := render(t, sheet, css.PrintOptions{Minify: true, Mappings: true})

	want := []css.Mapping{
		{GenLine: 0, GenColumn: 0, Source: 0},
		{GenLine: 0, GenColumn: 3, Source: 3},
	}
	if len(mappings) != len(want) {
		t.Fatalf("expected %d mappings, got %d: %+v", len(want), len(mappings), mappings)
	}
	for i := range want {
		if mappings[i] != want[i] {
			t.Errorf("mapping %d = %+v, want %+v", i, mappings[i], want[i])
		}
	}
}

func TestPrint_MappingsPretty(t *testing.T) {
	sheet, _ := parse(t, ".a {\n  color: red;\n}\n.b { top: 0 }")
	_, mappings := render(t, sheet, css.PrintOptions{Mappings: true})

	// .a, color, .b
	want := []css.Mapping{
		{GenLine: 0, GenColumn: 0, Source: 0},
		{GenLine: 1, GenColumn: 2, Source: 7},
		{GenLine: 3, GenColumn: 0, Source: 21},
		{GenLine: 4, GenColumn: 2, Source: 26},
	}
	if len(mappings) != len(want) {
		t.Fatalf("expected %d mappings, got %d: %+v", len(want), len(mappings), mappings)
	}
	for i := range want {
		if mappings[i] != want[i] {
			t.Errorf("mapping %d = %+v, want %+v", i, mappings[i], want[i])
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestPrint_WriterError(t *testing.T) {
	sheet, _ := parse(t, `.a{top:0}`)
	if _, err := css.Print(failingWriter{}, sheet, css.PrintOptions{}); err == nil {
		t.Fatal("expected writer error to be returned")
	}
}

func TestSourceMap_Encode(t *testing.T) {
	src := []byte(`.a{color:red}`)
	sheet, _ := parse(t, string(src))
	_, mappings := render(t, sheet, css.PrintOptions{Minify: true, Mappings: true})

	got, err := css.NewSourceMap("a.css", src, mappings).Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	want := `{"version":3,"sources":["a.css"],"sourcesContent":[".a{color:red}"],"names":[],"mappings":"AAAA,GAAG"}`
	if got != want {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestSourceMap_Anonymous(t *testing.T) {
	sm := css.NewSourceMap("", []byte(""), nil)
	if sm.Sources[0] != css.AnonymousSource {
		t.Errorf("expected %q source, got %q", css.AnonymousSource, sm.Sources[0])
	}
	if sm.Mappings != "" {
		t.Errorf("expected empty mappings, got %q", sm.Mappings)
	}
}

func TestSourceMap_MultiLine(t *testing.T) {
	src := []byte(".a{top:0}\n.b{top:0}")
	mappings := []css.Mapping{
		{GenLine: 0, GenColumn: 0, Source: 0},
		{GenLine: 2, GenColumn: 16, Source: 10},
	}
	sm := css.NewSourceMap("x.css", src, mappings)
	// second segment: column +16, source line +1, source column 0
	if sm.Mappings != "AAAA;;gBACA" {
		t.Errorf("got %q", sm.Mappings)
	}
}

func TestLineIndex_Position(t *testing.T) {
	li := css.NewLineIndex([]byte("a\nbc\r\ndé\U0001F600x"))
	tests := []struct {
		offset    int
		line, col int
	}{
		{offset: 0, line: 0, col: 0},
		{offset: 1, line: 0, col: 1},
		{offset: 2, line: 1, col: 0},
		{offset: 3, line: 1, col: 1},
		{offset: 6, line: 2, col: 0},
		{offset: 7, line: 2, col: 1},
		{offset: 9, line: 2, col: 2},
		{offset: 13, line: 2, col: 4},
		{offset: 100, line: 2, col: 5},
	}

	for _, tt := range tests {
		line, col := li.Position(tt.offset)
		if line != tt.line || col != tt.col {
			t.Errorf("Position(%d) = %d:%d, want %d:%d", tt.offset, line, col, tt.line, tt.col)
		}
	}
}
