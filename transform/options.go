package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cssc/analyze"
	"cssc/diag"
	"cssc/modules"
)

// ModulesOptions enables CSS Modules scoping.
type ModulesOptions struct {
	Pattern string `json:"pattern"`
}

// Options select phases of a single Transform invocation.
type Options struct {
	// Filename names the source in spans, source map and [name] placeholder.
	// Empty means anonymous input.
	Filename            string          `json:"filename,omitempty"`
	SourceMap           bool            `json:"sourceMap,omitempty"`
	CSSModules          *ModulesOptions `json:"cssModules,omitempty"`
	Minify              bool            `json:"minify,omitempty"`
	AnalyzeDependencies bool            `json:"analyzeDependencies,omitempty"`
}

// MinifyOptions select phases of a single Minify invocation.
type MinifyOptions struct {
	Filename  string `json:"filename,omitempty"`
	SourceMap bool   `json:"sourceMap,omitempty"`
}

// ParseOptions decodes JSON options. Unknown fields are rejected.
func ParseOptions(data []byte) (Options, error) {
	var opts Options
	if err := decodeStrict(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to deserialize transform options: %w", err)
	}
	return opts, nil
}

// ParseMinifyOptions decodes JSON options for Minify. Unknown fields are
// rejected.
func ParseMinifyOptions(data []byte) (MinifyOptions, error) {
	var opts MinifyOptions
	if err := decodeStrict(data, &opts); err != nil {
		return MinifyOptions{}, fmt.Errorf("failed to deserialize minify options: %w", err)
	}
	return opts, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after options object")
	}
	return nil
}

// Output is the result of a successful invocation. Optional parts are nil
// when they were not requested, Diagnostics is nil when nothing was found.
type Output struct {
	Code         string                `json:"code"`
	Map          *string               `json:"map,omitempty"`
	Diagnostics  []diag.Diagnostic     `json:"errors,omitempty"`
	Dependencies *analyze.Dependencies `json:"deps,omitempty"`
	ClassMapping *modules.Mapping      `json:"modulesMapping,omitempty"`
}
