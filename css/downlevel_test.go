package css_test

import (
	"testing"

	"cssc/css"
)

func TestDownlevel(t *testing.T) {
	tests := []struct {
		name     string
		features css.Features
		input    string
		want     string
	}{
		{
			name:     "nesting",
			features: css.FeaturesAll,
			input:    `.a{color:red;&:hover{color:blue}.b{top:0}}`,
			want:     `.a{color:red}.a:hover{color:blue}.a .b{top:0}`,
		},
		{
			name:     "nesting with selector lists",
			features: css.FeatureNesting,
			input:    `.a,.b{& + &{top:0}}`,
			want:     `.a+.a,.a+.b,.b+.a,.b+.b{top:0}`,
		},
		{
			name:     "nesting with combinator",
			features: css.FeatureNesting,
			input:    `.a{> .b{top:0}}`,
			want:     `.a>.b{top:0}`,
		},
		{
			name:     "declarations after nested rule",
			features: css.FeatureNesting,
			input:    `.a{top:0;.b{top:1px}left:0}`,
			want:     `.a{top:0}.a .b{top:1px}.a{left:0}`,
		},
		{
			name:     "nested media",
			features: css.FeatureNesting,
			input:    `.a{@media (min-width:600px){color:red;.b{top:0}}}`,
			want:     `@media (min-width:600px){.a{color:red}.a .b{top:0}}`,
		},
		{
			name:     "deeply nested",
			features: css.FeatureNesting,
			input:    `.a{.b{.c{top:0}}}`,
			want:     `.a .b .c{top:0}`,
		},
		{
			name:     "top level untouched",
			features: css.FeaturesAll,
			input:    `.a{top:0}@media screen{.b{top:0}}@font-face{font-family:x}`,
			want:     `.a{top:0}@media screen{.b{top:0}}@font-face{font-family:x}`,
		},
		{
			name:     "hex alpha",
			features: css.FeatureHexAlpha,
			input:    `.a{color:#ff000080;background:#f008;border-color:#fff}`,
			want:     `.a{color:rgba(255,0,0,0.502);background:rgba(255,0,0,0.533);border-color:#fff}`,
		},
		{
			name:     "hex alpha disabled",
			features: css.FeatureNesting,
			input:    `.a{color:#ff000080}`,
			want:     `.a{color:#ff000080}`,
		},
		{
			name:     "media ranges",
			features: css.FeatureMediaRanges,
			input:    `@media (width >= 600px) and (width < 900px){.a{top:0}}`,
			want:     `@media (min-width:600px) and (max-width:899.999px){.a{top:0}}`,
		},
		{
			name:     "media double range",
			features: css.FeatureMediaRanges,
			input:    `@media (400px <= width <= 700px){.a{top:0}}`,
			want:     `@media (min-width:400px) and (max-width:700px){.a{top:0}}`,
		},
		{
			name:     "media reversed range",
			features: css.FeatureMediaRanges,
			input:    `@media (600px < height){.a{top:0}}`,
			want:     `@media (min-height:600.001px){.a{top:0}}`,
		},
		{
			name:     "media import",
			features: css.FeatureMediaRanges,
			input:    `@import "a.css" screen and (width <= 30em);`,
			want:     `@import "a.css" screen and (max-width:30em);`,
		},
		{
			name:     "media plain feature",
			features: css.FeaturesAll,
			input:    `@media (min-width:600px){.a{top:0}}`,
			want:     `@media (min-width:600px){.a{top:0}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, errs := parse(t, tt.input)
			if len(errs) != 0 {
				t.Fatalf("unexpected diagnostics: %v", errs)
			}
			css.Downlevel(sheet, tt.features)
			got, _ := render(t, sheet, css.PrintOptions{Minify: true})
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeatures_Has(t *testing.T) {
	if !css.FeaturesAll.Has(css.FeatureNesting | css.FeatureHexAlpha) {
		t.Error("FeaturesAll should include nesting and hex alpha")
	}
	if css.FeatureNesting.Has(css.FeatureMediaRanges) {
		t.Error("nesting alone should not include media ranges")
	}
}
