package convert

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssc/config"
	"cssc/state"
)

func setupTestEnvForOutputPath(t *testing.T, noDirs bool, transliterate bool, template string) *state.LocalEnv {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Output.FileNameTransliterate = transliterate
	cfg.Output.NameTemplate = template

	return &state.LocalEnv{
		Log:    logger,
		Cfg:    cfg,
		NoDirs: noDirs,
	}
}

const defaultNameTemplate = "{{ .Stem }}{{ if .Minify }}.min{{ end }}"

func TestBuildOutputPath(t *testing.T) {
	tests := []struct {
		name          string
		noDirs        bool
		transliterate bool
		template      string
		src           string
		minify        bool
		modules       bool
		want          string
	}{
		{
			name:     "default template keeps directories",
			template: defaultNameTemplate,
			src:      filepath.Join("styles", "button.css"),
			want:     filepath.Join("/output", "styles", "button"),
		},
		{
			name:     "default template minified",
			template: defaultNameTemplate,
			src:      filepath.Join("styles", "button.css"),
			minify:   true,
			want:     filepath.Join("/output", "styles", "button.min"),
		},
		{
			name:     "no dirs",
			noDirs:   true,
			template: defaultNameTemplate,
			src:      filepath.Join("styles", "button.css"),
			want:     filepath.Join("/output", "button"),
		},
		{
			name: "empty template",
			src:  "button.css",
			want: filepath.Join("/output", "button"),
		},
		{
			name:          "transliterate",
			noDirs:        true,
			transliterate: true,
			src:           "Стили.css",
			want:          filepath.Join("/output", "stili"),
		},
		{
			name:     "template with subdirectories",
			noDirs:   true,
			template: "{{ .Dir }}/scoped/{{ .Stem }}",
			src:      filepath.Join("styles", "button.css"),
			want:     filepath.Join("/output", "styles", "scoped", "button"),
		},
		{
			name:     "template with extension",
			noDirs:   true,
			template: "{{ .Stem }}{{ if .Modules }}.module{{ end }}.css",
			src:      "button.css",
			modules:  true,
			want:     filepath.Join("/output", "button.module"),
		},
		{
			name:     "template with bad characters",
			noDirs:   true,
			template: "{{ .Stem }}:",
			src:      "button.css",
			want:     filepath.Join("/output", "button"),
		},
		{
			name:     "broken template falls back",
			noDirs:   true,
			template: "{{ .Stem",
			src:      "button.css",
			want:     filepath.Join("/output", "button"),
		},
		{
			name:     "unknown field falls back",
			noDirs:   true,
			template: "{{ .Title }}",
			src:      "button.css",
			want:     filepath.Join("/output", "button"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnvForOutputPath(t, tt.noDirs, tt.transliterate, tt.template)
			got := buildOutputPath(tt.src, "/output", tt.minify, tt.modules, env)
			if got != tt.want {
				t.Errorf("buildOutputPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewOutputPaths(t *testing.T) {
	base := filepath.Join("out", "button.min")
	got := newOutputPaths(base)
	want := outputPaths{
		CSS:     base + ".css",
		Map:     base + ".css.map",
		Deps:    base + ".deps.json",
		Mapping: base + ".modules.json",
	}
	if got != want {
		t.Errorf("newOutputPaths() = %+v, want %+v", got, want)
	}
}

func TestSplitAndCleanPath(t *testing.T) {
	got := splitAndCleanPath(filepath.Join("a", "b", "c") + string(filepath.Separator))
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("splitAndCleanPath() = %v", got)
	}
	if got := splitAndCleanPath(""); len(got) != 0 {
		t.Errorf("splitAndCleanPath(\"\") = %v", got)
	}
}
