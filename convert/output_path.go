package convert

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"cssc/config"
	"cssc/state"
)

const cssExt = ".css"

// outputPaths keeps names of all files produced for a single source.
type outputPaths struct {
	CSS     string
	Map     string
	Deps    string
	Mapping string
}

func newOutputPaths(base string) outputPaths {
	return outputPaths{
		CSS:     base + cssExt,
		Map:     base + cssExt + ".map",
		Deps:    base + ".deps.json",
		Mapping: base + ".modules.json",
	}
}

// buildOutputPath returns constructed output file path/name without
// extension based on various input parameters. It uses either default naming
// scheme or user-defined template and takes into account whether to preserve
// source directory structure on the output. If cleans up path and if
// requested transliterates it
func buildOutputPath(src, dst string, minify, modules bool, env *state.LocalEnv) string {
	outDir := determineOutputDir(src, dst, env)
	defaultFile := buildDefaultFileName(src, env)

	if env.Cfg.Output.NameTemplate == "" {
		return filepath.Join(outDir, defaultFile)
	}

	expandedName := expandOutputNameTemplate(src, minify, modules, env)
	if expandedName == "" {
		// fallback to default name if template expansion failed
		return filepath.Join(outDir, defaultFile)
	}

	return assemblePathWithSubdirs(outDir, expandedName, env)
}

func determineOutputDir(src, dst string, env *state.LocalEnv) string {
	if env.NoDirs {
		return dst
	}
	return filepath.Join(dst, filepath.Dir(src))
}

func buildDefaultFileName(src string, env *state.LocalEnv) string {
	baseName := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if env.Cfg.Output.FileNameTransliterate {
		baseName = slug.Make(baseName)
	}
	return config.CleanFileName(baseName)
}

func expandOutputNameTemplate(src string, minify, modules bool, env *state.LocalEnv) string {
	values := newValues(config.NameTemplateFieldName, src, minify, modules)
	expandedName, err := expandTemplate(config.NameTemplateFieldName, env.Cfg.Output.NameTemplate, values)
	if err != nil {
		env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		return ""
	}
	expandedName = strings.TrimSuffix(strings.TrimSpace(expandedName), cssExt)
	return filepath.FromSlash(expandedName)
}

// assemblePathWithSubdirs takes an expanded template name (which may contain
// path separators for subdirectories) and assembles it into a full output path,
// cleaning and transliterating segments as needed
func assemblePathWithSubdirs(outDir, expandedName string, env *state.LocalEnv) string {
	pathSegments := splitAndCleanPath(expandedName)

	if len(pathSegments) == 0 {
		return filepath.Join(outDir, config.CleanFileName(""))
	}

	dirParts := make([]string, 0, len(pathSegments)+1)
	dirParts = append(dirParts, outDir)
	for _, segment := range pathSegments {
		dirParts = append(dirParts, cleanPathSegment(segment, env))
	}
	return filepath.Join(dirParts...)
}

func splitAndCleanPath(path string) []string {
	path = strings.TrimSuffix(path, string(os.PathSeparator))
	segments := make([]string, 0, 8)

	for head, tail := filepath.Split(path); tail != ""; head, tail = filepath.Split(head) {
		segments = slices.Insert(segments, 0, tail)
		head = strings.TrimSuffix(head, string(os.PathSeparator))
		if head == "" {
			break
		}
	}

	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Output.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
