package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"cssc/config"
)

// selector decides which files of a directory tree or archive are processed.
// All paths it receives are slash separated and relative to the walk root.
type selector struct {
	include []string
	exclude []string
	ignore  *ignore.GitIgnore
}

func newSelector(cfg *config.InputConfig) (*selector, error) {
	for _, p := range cfg.Include {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("bad include pattern %q", p)
		}
	}
	for _, p := range cfg.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("bad exclude pattern %q", p)
		}
	}
	return &selector{include: cfg.Include, exclude: cfg.Exclude}, nil
}

// loadGitignore picks up .gitignore from the walk root. Absent file is not an
// error.
func (s *selector) loadGitignore(root string) error {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("unable to load .gitignore: %w", err)
	}
	s.ignore = gi
	return nil
}

func (s *selector) selected(rel string) bool {
	if s.ignore != nil && s.ignore.MatchesPath(rel) {
		return false
	}
	if matchAny(s.exclude, rel) {
		return false
	}
	return matchAny(s.include, rel)
}

// skipDir reports whether nothing under directory could be selected.
func (s *selector) skipDir(rel string) bool {
	if rel == ".git" || strings.HasSuffix(rel, "/.git") {
		return true
	}
	if s.ignore != nil && s.ignore.MatchesPath(rel+"/") {
		return true
	}
	for _, p := range s.exclude {
		if dir, ok := strings.CutSuffix(p, "/**"); ok {
			if m, _ := doublestar.Match(dir, rel); m {
				return true
			}
		}
	}
	return false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if m, err := doublestar.Match(p, rel); err == nil && m {
			return true
		}
	}
	return false
}
