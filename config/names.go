package config

import (
	"strings"
)

// CleanFileName removes characters not allowed in file names. Leading dots
// are dropped so output never becomes hidden file.
func CleanFileName(in string) string {
	out := strings.TrimLeft(strings.Map(func(sym rune) rune {
		if strings.ContainsRune(forbiddenNameChars, sym) {
			return -1
		}
		return sym
	}, in), ".")
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}
