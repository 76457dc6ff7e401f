// Package scan discovers the dotfiles to track by combining an explicit
// tracked list, include globs and exclude globs from the configuration.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// Walker produces the tracked set for a profile. Explicit tracked paths are
// passed through even when unreadable so capture can report them; include
// patterns are walked and matched; excludes filter the walked results but
// never an explicitly tracked path.
type Walker struct {
	layout  dot.Layout
	tracked []string
	include []string
	exclude []string
	files   map[string]config.FileOverride
	skip    []string
	logger  dot.Logger
}

var _ dot.Scanner = (*Walker)(nil)

// NewWalker builds a Walker from the scan configuration. repoDir is the
// repository root, which the walker never descends into. Per-file override
// keys are normalized to entry form so "~/.zshrc" and the absolute spelling
// address the same file.
func NewWalker(layout dot.Layout, cfg config.ScanConfig, files map[string]config.FileOverride, repoDir string, logger dot.Logger) *Walker {
	w := &Walker{
		layout:  layout,
		tracked: cfg.Tracked,
		include: cfg.Include,
		exclude: cfg.Exclude,
		files:   make(map[string]config.FileOverride, len(files)),
		logger:  logger,
	}
	for key, ov := range files {
		w.files[layout.Contract(layout.Expand(key))] = ov
	}
	if repoDir != "" {
		w.skip = append(w.skip, filepath.Clean(layout.Expand(repoDir)))
	}
	return w
}

// collector gathers entries from concurrent walk callbacks.
type collector struct {
	mu    sync.Mutex
	found map[string]struct{}
}

func (c *collector) add(entry string) {
	c.mu.Lock()
	c.found[entry] = struct{}{}
	c.mu.Unlock()
}

func (w *Walker) Scan() ([]dot.TrackedPath, error) {
	c := &collector{found: make(map[string]struct{})}

	for _, raw := range w.tracked {
		entry := w.layout.Contract(w.layout.Expand(raw))
		if strings.HasSuffix(entry, dot.EncryptedSuffix) {
			c.add(entry)
			continue
		}
		abs := w.layout.Expand(entry)
		info, err := os.Lstat(abs)
		if err != nil {
			// Capture reports the unreadable path instead of hiding it.
			c.add(entry)
			continue
		}
		if info.IsDir() {
			if err := w.walk(abs, "", c); err != nil {
				return nil, err
			}
			continue
		}
		c.add(entry)
	}

	for _, pattern := range w.include {
		if err := w.glob(pattern, c); err != nil {
			return nil, err
		}
	}

	// An explicit encrypted entry owns its plaintext sibling; tracking the
	// sibling as well would capture the secret unencrypted.
	for entry := range c.found {
		if strings.HasSuffix(entry, dot.EncryptedSuffix) {
			delete(c.found, strings.TrimSuffix(entry, dot.EncryptedSuffix))
		}
	}

	entries := make([]string, 0, len(c.found))
	for entry := range c.found {
		entries = append(entries, entry)
	}
	sort.Strings(entries)

	out := make([]dot.TrackedPath, 0, len(entries))
	for _, entry := range entries {
		ov, hasOverride := w.files[entry]
		if hasOverride && ov.Exclude {
			continue
		}
		tp := dot.TrackedPath{Path: entry}
		if hasOverride && ov.Mode != "" {
			mode, err := dot.ParseMode(ov.Mode)
			if err != nil {
				return nil, fmt.Errorf("file override for %s: %w", entry, err)
			}
			tp.Mode = mode
		}
		out = append(out, tp)
	}
	return out, nil
}

// glob resolves one include pattern. Patterns without meta characters are
// literal paths and, naming one file exactly, beat the exclude patterns the
// same way tracked entries do. The rest are split into a fixed base and a
// match pattern, and the base is walked.
func (w *Walker) glob(pattern string, c *collector) error {
	expanded := dot.ExpandHome(w.layout.Home, pattern)
	if !strings.ContainsAny(expanded, "*?[{") {
		info, err := os.Lstat(expanded)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.walk(expanded, "", c)
		}
		if entry := w.layout.Contract(expanded); !strings.HasSuffix(entry, dot.EncryptedSuffix) {
			c.add(entry)
		}
		return nil
	}

	base, match := doublestar.SplitPattern(expanded)
	if _, err := os.Lstat(base); err != nil {
		w.logger.Debug("include base not present", "pattern", pattern, "base", base)
		return nil
	}
	return w.walk(base, match, c)
}

// walk descends root collecting regular files and symlinks. match, when
// non-empty, is a doublestar pattern applied to the path relative to root.
func (w *Walker) walk(root, match string, c *collector) error {
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		entry := w.layout.Contract(path)
		if d.IsDir() {
			if path == root {
				return nil
			}
			if w.skipDir(path) || w.prunable(entry) {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		// On-disk .age files are repository artifacts, never live dotfiles.
		if strings.HasSuffix(path, dot.EncryptedSuffix) {
			return nil
		}
		if w.excluded(entry) {
			return nil
		}
		if match != "" {
			rel := strings.TrimPrefix(path, root+string(filepath.Separator))
			if ok, merr := doublestar.Match(match, filepath.ToSlash(rel)); merr != nil || !ok {
				return nil
			}
		}
		c.add(entry)
		return nil
	})
	if err != nil {
		return &dot.IOError{Path: root, Err: err}
	}
	return nil
}

// skipDir reports whether path is a directory the walker must never enter,
// such as the repository itself.
func (w *Walker) skipDir(path string) bool {
	clean := filepath.Clean(path)
	for _, s := range w.skip {
		if clean == s {
			return true
		}
	}
	return false
}

// excluded matches an entry against the exclude patterns. Anchored patterns
// ("~/..." or absolute) match the entry form; bare patterns match the
// home-relative form.
func (w *Walker) excluded(entry string) bool {
	rel := relativeForm(entry)
	for _, p := range w.exclude {
		target := rel
		if anchored(p) {
			target = entry
		}
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}

// prunable reports whether a directory entry can be skipped wholesale. A
// pattern ending in "/**" excludes the directory itself, not just its
// contents, so the walk never enters it.
func (w *Walker) prunable(entry string) bool {
	if w.excluded(entry) {
		return true
	}
	rel := relativeForm(entry)
	for _, p := range w.exclude {
		stem, found := strings.CutSuffix(p, "/**")
		if !found {
			continue
		}
		target := rel
		if anchored(stem) {
			target = entry
		}
		if ok, _ := doublestar.Match(stem, target); ok {
			return true
		}
	}
	return false
}

func anchored(pattern string) bool {
	return strings.HasPrefix(pattern, "~/") || strings.HasPrefix(pattern, "/")
}

func relativeForm(entry string) string {
	return strings.TrimPrefix(strings.TrimPrefix(entry, "~/"), "/")
}
