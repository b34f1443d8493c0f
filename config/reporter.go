package config

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"cssc/misc"
)

// ReporterConfig tells where debug report archive goes when --debug is given.
type ReporterConfig struct {
	Destination string `yaml:"destination" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
}

// Prepare opens report archive at Destination. When that is not writable the
// archive is created in temporary directory, Report.Name tells where.
func (conf *ReporterConfig) Prepare() (*Report, error) {

	r := &Report{entries: make(map[string]entry)}

	if f, err := os.Create(conf.Destination); err == nil {
		r.file = f
	} else if f, err = os.CreateTemp("", misc.GetAppName()+"-report.*.zip"); err == nil {
		r.file = f
	} else {
		return nil, fmt.Errorf("unable to create report: %w", err)
	}
	return r, nil
}

// entry is either a path read on Close or data kept in memory.
type entry struct {
	original string
	actual   string
	stamp    time.Time
	data     []byte
}

// Report collects debug artifacts of a single run into one zip archive.
// Stylesheets are processed in parallel so all methods lock. A nil *Report
// accepts every call and does nothing.
type Report struct {
	mu sync.Mutex
	// archive name -> what to put there
	entries map[string]entry
	// scratch directories of StoreCopy
	temps []string
	file  *os.File
}

// Close writes the archive and removes scratch copies.
func (r *Report) Close() error {
	if r == nil {
		// --debug was not given
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		for _, dir := range r.temps {
			os.RemoveAll(dir)
		}
		r.temps = nil
	}()
	if r.file == nil {
		return nil
	}
	defer r.file.Close()
	return r.finalize()
}

// Name is absolute path of the archive, empty for nil report.
func (r *Report) Name() string {
	if r == nil || r.file == nil {
		return ""
	}
	if n, err := filepath.Abs(r.file.Name()); err == nil {
		return n
	}
	return r.file.Name()
}

// Store registers file or directory to be read when archive is written. Only
// the path is kept, content is whatever is there on Close.
func (r *Report) Store(name, path string) {
	if r == nil {
		// --debug was not given
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.entries[name]; exists && old.original != path {
		// two writers claim the same archive name
		panic(fmt.Sprintf("Attempt to overwrite file in the report for [%s]: was %s, now %s", name, old.original, path))
	}

	e := entry{
		original: path,
		actual:   path,
	}
	if p, err := filepath.Abs(path); err == nil {
		e.actual = p
	}
	r.entries[name] = e
}

// StoreData keeps data in memory under archive name. Stylesheet from a
// directory and from an archive may share a name, so a taken name gets
// timestamp suffix.
func (r *Report) StoreData(name string, data []byte) {
	if r == nil {
		// --debug was not given
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry{
		data:  data,
		stamp: time.Now(),
	}
	if _, exists := r.entries[name]; exists {
		name = fmt.Sprintf("%s-%d", name, e.stamp.UnixNano())
	}
	r.entries[name] = e
}

// StoreCopy snapshots file or directory into scratch directory right away, so
// later changes to path do not show in the archive. Taken names get timestamp
// suffix as in StoreData.
func (r *Report) StoreCopy(name, path string) error {
	if r == nil {
		// --debug was not given
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	scratch, err := os.MkdirTemp("", misc.GetAppName()+"-r-")
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.temps = append(r.temps, scratch)

	e := entry{stamp: time.Now(), original: path, actual: scratch}
	switch {
	case info.Mode().IsRegular():
		if e.actual, err = copyFile(scratch, abs, info.ModTime()); err != nil {
			return err
		}
	case info.Mode().IsDir():
		if err := copyDir(scratch, abs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unable to copy %s into report: not a file or directory", path)
	}

	if _, taken := r.entries[name]; taken {
		name = fmt.Sprintf("%s-%d", name, e.stamp.UnixNano())
	}
	r.entries[name] = e
	return nil
}

// copyFile puts src into dir keeping its base name and modification time.
func copyFile(dir, src string, modTime time.Time) (string, error) {
	// copyDir passes nested directories which do not exist yet
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(out, in)
	err = multierr.Combine(err, out.Sync(), out.Close())
	if err != nil {
		return "", err
	}
	return dst, os.Chtimes(dst, modTime, modTime)
}

func copyDir(dir, src string) error {
	return walkFiles(src, func(rel, path string, info fs.FileInfo) error {
		_, err := copyFile(filepath.Join(dir, filepath.Dir(rel)), path, info.ModTime())
		return err
	})
}

// walkFiles calls fn for every regular file under root, rel is relative to
// root. Links and special files are skipped.
func walkFiles(root string, fn func(rel, path string, info fs.FileInfo) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(rel, path, info)
	})
}

// finalize writes MANIFEST followed by every entry in name order. Caller
// holds the lock.
func (r *Report) finalize() error {
	arc := zip.NewWriter(r.file)
	defer arc.Close()

	names, manifest := prepareManifest(r.entries)
	if err := saveFile(arc, "MANIFEST", time.Now(), manifest); err != nil {
		return err
	}
	for _, name := range names {
		if err := saveEntry(arc, name, r.entries[name]); err != nil {
			return fmt.Errorf("unable to save %s into report: %w", name, err)
		}
	}
	return nil
}

func saveEntry(arc *zip.Writer, name string, e entry) error {
	if len(e.data) > 0 {
		return saveFile(arc, name, e.stamp, bytes.NewReader(e.data))
	}

	info, err := os.Stat(e.actual)
	if err != nil {
		// stored path may be gone by now, e.g. output removed by user
		return nil
	}
	switch {
	case info.Mode().IsRegular():
		f, err := os.Open(e.actual)
		if err != nil {
			return err
		}
		defer f.Close()
		return saveFile(arc, name, info.ModTime(), f)
	case info.Mode().IsDir():
		return saveDir(arc, name, e.actual)
	}
	return nil
}

// prepareManifest lists entries one per line: stamp, archive name, stored
// path and path actually read.
func prepareManifest(entries map[string]entry) ([]string, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	names := slices.Sorted(maps.Keys(entries))

	now := time.Now()
	for _, name := range names {
		e := entries[name]
		if e.stamp.IsZero() {
			e.stamp = now
		}
		fmt.Fprintf(buf, "%s\t%s\t%s : %s\n", e.stamp.UTC().Format(time.UnixDate), name, e.original, e.actual)
	}
	return names, buf
}

func saveFile(dst *zip.Writer, name string, t time.Time, src io.Reader) error {
	w, err := dst.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: t})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// saveDir puts every file under dir into archive directory name.
func saveDir(dst *zip.Writer, name, dir string) error {
	return walkFiles(dir, func(rel, path string, info fs.FileInfo) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return saveFile(dst, filepath.ToSlash(filepath.Join(name, rel)), info.ModTime(), f)
	})
}
