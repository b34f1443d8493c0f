// Package archive builds Walk abstraction on top of "archive/zip".
package archive

import (
	"archive/zip"
	"fmt"
	"path"
	"strings"
)

// WalkFunc is the type of the function called for each file in archive
// visited by Walk. The archive argument contains path to archive passed to
// Walk. The file argument is the zip.File structure for file in archive which
// satisfies match condition. If an error is returned, processing stops.
type WalkFunc func(archive string, file *zip.File) error

// SelectFunc reports whether file should be visited. It receives slash
// separated path relative to the prefix passed to Walk.
type SelectFunc func(rel string) bool

// Walk walks all files in the archive located under prefix and accepted by
// selected (nil accepts everything), calling walkFn for each item. Entries
// with path traversal components ("..") or absolute paths abort the walk to
// prevent Zip Slip attacks.
func Walk(archive, prefix string, selected SelectFunc, walkFn WalkFunc) error {

	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	prefix = strings.Trim(path.Clean("/"+strings.ReplaceAll(prefix, `\`, "/")), "/")

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rel, ok := underPrefix(name, prefix)
		if !ok {
			continue
		}
		if selected != nil && !selected(rel) {
			continue
		}
		if err := walkFn(archive, f); err != nil {
			return err
		}
	}
	return nil
}

// underPrefix returns name relative to prefix when name is prefix itself or
// is located in prefix directory.
func underPrefix(name, prefix string) (string, bool) {
	if prefix == "" {
		return name, true
	}
	if name == prefix {
		return path.Base(name), true
	}
	if rel, ok := strings.CutPrefix(name, prefix+"/"); ok {
		return rel, true
	}
	return "", false
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
