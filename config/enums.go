package config

// Specification of source map output.
// ENUM(none, external, inline)
type SourceMapMode int

// Enabled reports whether source map has to be produced at all.
func (m SourceMapMode) Enabled() bool {
	return m == SourceMapModeExternal || m == SourceMapModeInline
}
