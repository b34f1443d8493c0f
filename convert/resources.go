package convert

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"cssc/analyze"
)

// resourceProblem describes local reference which cannot be used as is.
type resourceProblem struct {
	URL    string
	Path   string
	Reason string
}

var fontTypes = map[string]string{
	".woff":  "woff",
	".woff2": "woff2",
	".ttf":   "ttf",
	".otf":   "otf",
}

// checkResources resolves relative references against dir and reports
// missing files and fonts whose content does not match extension. Absolute,
// remote and data references are not checked.
func checkResources(deps *analyze.Dependencies, dir string) []resourceProblem {
	if deps == nil {
		return nil
	}

	refs := make([]string, 0, len(deps.Imports)+len(deps.URLs))
	for _, imp := range deps.Imports {
		refs = append(refs, imp.URL.Value)
	}
	for _, u := range deps.URLs {
		refs = append(refs, u.Value)
	}

	var problems []resourceProblem
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		rel, ok := localReference(ref)
		if !ok {
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if reason := checkFile(path); reason != "" {
			problems = append(problems, resourceProblem{URL: ref, Path: path, Reason: reason})
		}
	}
	return problems
}

// localReference returns relative path part of ref or false when ref does not
// point to local file.
func localReference(ref string) (string, bool) {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

func checkFile(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "file not found"
		}
		return err.Error()
	}
	if !fi.Mode().IsRegular() {
		return "not a regular file"
	}

	kind, ok := fontTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return ""
	}

	f, err := os.Open(path)
	if err != nil {
		return err.Error()
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err.Error()
	}
	if !filetype.Is(head[:n], kind) {
		return "content is not " + kind + " font"
	}
	return ""
}
