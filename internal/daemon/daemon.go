// Package daemon watches the directories holding tracked files and turns
// bursts of change events into snapshot requests. A PID file enforces a
// single instance per repository.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// SnapshotFunc is invoked once per settled burst of changes. The daemon
// holds no state of its own across calls.
type SnapshotFunc func(ctx context.Context, message string) error

// Daemon is the file-watching loop. Run blocks until the context ends.
type Daemon struct {
	pidPath  string
	roots    []string
	mode     string
	debounce time.Duration
	snapshot SnapshotFunc
	logger   dot.Logger
}

// New validates the daemon configuration and binds its collaborators.
// roots are the directories to watch, usually from WatchRoots.
func New(pidPath string, roots []string, cfg config.DaemonConfig, snapshot SnapshotFunc, logger dot.Logger) (*Daemon, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = "ask"
	}
	if mode != "ask" && mode != "auto" {
		return nil, fmt.Errorf("unknown daemon mode %q, want ask or auto", cfg.Mode)
	}
	if mode == "auto" && snapshot == nil {
		return nil, fmt.Errorf("auto mode needs a snapshot function")
	}
	return &Daemon{
		pidPath:  pidPath,
		roots:    roots,
		mode:     mode,
		debounce: cfg.Debounce(),
		snapshot: snapshot,
		logger:   logger,
	}, nil
}

// Run acquires the PID file, watches the roots and processes events until
// ctx is cancelled. A stale PID file left by a dead process is taken over.
func (d *Daemon) Run(ctx context.Context) error {
	if pid, running := Running(d.pidPath); running {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, root := range d.roots {
		if err := watcher.Add(root); err != nil {
			d.logger.Warn("cannot watch directory", "dir", root, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no watchable directories")
	}

	// The PID file is written only after the watches are in place, so its
	// presence means the daemon is fully up.
	if err := writePIDFile(d.pidPath); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer removePIDFile(d.pidPath)

	d.logger.Info("daemon started", "dirs", watched, "mode", d.mode, "debounce", d.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time
	changes := 0
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			changes++
			if timer == nil {
				timer = time.NewTimer(d.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(d.debounce)
			}

		case <-timerC:
			count := changes
			changes = 0
			timer = nil
			timerC = nil
			d.fire(ctx, count)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watch error", "error", err)
		}
	}
}

// fire handles one settled burst.
func (d *Daemon) fire(ctx context.Context, count int) {
	if d.mode == "ask" {
		d.logger.Info("changes detected, run `dotkeep snapshot create` to capture them", "events", count)
		return
	}
	message := fmt.Sprintf("auto: %d change(s) detected", count)
	if err := d.snapshot(ctx, message); err != nil {
		d.logger.Error("automatic snapshot failed", "error", err)
		return
	}
	d.logger.Info("automatic snapshot created", "events", count)
}

// relevant filters out chmod-only events and this tool's own scratch
// files, which would otherwise re-trigger the daemon after every apply.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.Contains(base, ".tmp-") || strings.Contains(base, ".bak.") {
		return false
	}
	return true
}

// WatchRoots derives watch directories from tracked paths: each path's
// parent, existing directories only, deduplicated and sorted. Anything
// under the repository directory is excluded so the daemon never reacts
// to its own writes.
func WatchRoots(tracked []dot.TrackedPath, layout dot.Layout, repoDir string) []string {
	seen := make(map[string]struct{})
	var roots []string
	for _, tp := range tracked {
		dir := filepath.Dir(layout.Expand(tp.Path))
		if dir == repoDir || strings.HasPrefix(dir, repoDir+string(filepath.Separator)) {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		roots = append(roots, dir)
	}
	sort.Strings(roots)
	return roots
}
