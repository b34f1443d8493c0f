package convert

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"cssc/config"
	"cssc/css"
	"cssc/transform"
)

type outputFile struct {
	path string
	data []byte
}

// write produces all requested outputs for a single source. In diff mode
// unified diff between source and result is printed instead, in stdout mode
// resulting code is printed and nothing else is produced.
func (r *runner) write(s source, text []byte, out *transform.Output, paths outputPaths, log *zap.Logger) error {
	cfg := &r.env.Cfg.Transform

	code := out.Code
	if out.Map != nil {
		m := *out.Map
		if s.dir != "" {
			// make source reachable from the map location
			if relocated, err := relocateMap(m, s.origin, filepath.Dir(paths.Map)); err != nil {
				log.Debug("Unable to relocate source map", zap.Error(err))
			} else {
				m = relocated
			}
		}
		out.Map = &m
		code = appendMapReference(code, cfg.SourceMap, filepath.Base(paths.Map), m)
	}

	switch {
	case r.env.Stdout:
		return r.print(code)
	case r.env.Diff:
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(text)),
			B:        difflib.SplitLines(code),
			FromFile: s.origin,
			ToFile:   paths.CSS,
			Context:  3,
		})
		if err != nil {
			return fmt.Errorf("unable to build diff: %w", err)
		}
		return r.print(diff)
	}

	files := []outputFile{{path: paths.CSS, data: []byte(code)}}
	if out.Map != nil && cfg.SourceMap == config.SourceMapModeExternal {
		files = append(files, outputFile{path: paths.Map, data: []byte(*out.Map)})
	}
	if out.Dependencies != nil && cfg.AnalyzeDependencies && r.env.Cfg.Output.WriteDeps && !r.minifyOnly {
		data, err := json.MarshalIndent(out.Dependencies, "", "  ")
		if err != nil {
			return fmt.Errorf("unable to serialize dependencies: %w", err)
		}
		files = append(files, outputFile{path: paths.Deps, data: data})
	}
	if out.ClassMapping != nil && r.env.Cfg.Output.WriteMapping {
		data, err := json.MarshalIndent(out.ClassMapping, "", "  ")
		if err != nil {
			return fmt.Errorf("unable to serialize CSS Modules mapping: %w", err)
		}
		files = append(files, outputFile{path: paths.Mapping, data: data})
	}

	for _, f := range files {
		if err := r.writeFile(f, log); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) writeFile(f outputFile, log *zap.Logger) error {
	// Check if output file already exists
	if _, err := os.Stat(f.path); err == nil {
		if !r.env.Overwrite {
			return fmt.Errorf("output file already exists: %s", f.path)
		}
		log.Warn("Overwriting existing file", zap.String("file", f.path))
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	if err := os.WriteFile(f.path, f.data, 0644); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}

	// Store result for debugging
	if r.env.Rpt != nil {
		name := filepath.Base(f.path)
		if rel, err := filepath.Rel(r.dst, f.path); err == nil {
			name = filepath.ToSlash(rel)
		}
		r.env.Rpt.Store("result/"+name, f.path)
	}
	return nil
}

func (r *runner) print(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := fmt.Fprint(r.out, text); err != nil {
		return fmt.Errorf("unable to write to stdout: %w", err)
	}
	return nil
}

// appendMapReference adds sourceMappingURL comment pointing either to the
// external map file or carrying the whole map.
func appendMapReference(code string, mode config.SourceMapMode, mapName, m string) string {
	var url string
	switch mode {
	case config.SourceMapModeExternal:
		url = mapName
	case config.SourceMapModeInline:
		url = "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(m))
	default:
		return code
	}
	if len(code) > 0 && !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	return code + "/*# sourceMappingURL=" + url + " */\n"
}

// relocateMap rewrites map source to be relative to the directory map is
// written to.
func relocateMap(m, sourcePath, mapDir string) (string, error) {
	var sm css.SourceMap
	if err := json.Unmarshal([]byte(m), &sm); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(mapDir, sourcePath)
	if err != nil {
		return "", err
	}
	sm.Sources = []string{filepath.ToSlash(rel)}
	return sm.Encode()
}
