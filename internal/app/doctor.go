package app

import (
	"errors"
	"fmt"
	"os"

	"dotkeep/internal/dot"
	"dotkeep/internal/journal"
	"dotkeep/internal/remote"
)

// History returns the most recent journal runs, newest first.
func (a *App) History(limit int) ([]journal.Run, error) {
	if a.journal == nil {
		return nil, fmt.Errorf("journal is disabled in config")
	}
	return a.journal.Recent(limit)
}

// Check is one doctor verdict.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Doctor inspects the repository and reports per-area health. It never
// fails as a whole; each problem surfaces as a failed check.
func (a *App) Doctor() []Check {
	var checks []Check
	add := func(name string, ok bool, format string, args ...any) {
		checks = append(checks, Check{Name: name, OK: ok, Detail: fmt.Sprintf(format, args...)})
	}

	if info, err := os.Stat(a.repoDir); err != nil {
		add("repository", false, "%s missing, run 'dotkeep init'", a.repoDir)
	} else if !info.IsDir() {
		add("repository", false, "%s is not a directory", a.repoDir)
	} else {
		add("repository", true, "%s", a.repoDir)
	}

	add("profile", true, "%s", a.profile)

	var encrypted int
	m, err := a.service.Manifest()
	switch {
	case errors.Is(err, dot.ErrNoManifest):
		add("manifest", false, "not captured yet, run 'dotkeep snapshot create'")
	case err != nil:
		add("manifest", false, "%v", err)
	default:
		for _, e := range m.Entries {
			if e.Encrypted {
				encrypted++
			}
		}
		add("manifest", true, "%d entries", len(m.Entries))
	}

	switch {
	case encrypted > 0 && !a.secrets.IsConfigured():
		add("secrets", false, "%d encrypted entries but no identity, run 'dotkeep secrets init'", encrypted)
	case a.secrets.IsConfigured():
		add("secrets", true, "identity present")
	default:
		add("secrets", true, "no identity (nothing encrypted)")
	}

	if tracked, err := a.service.Tracked(); err != nil {
		add("scan", false, "%v", err)
	} else {
		add("scan", true, "%d tracked path(s)", len(tracked))
	}

	if snaps, err := a.service.Snapshots(); err != nil {
		add("snapshots", false, "%v", err)
	} else {
		add("snapshots", true, "%d snapshot(s)", len(snaps))
	}

	if a.journal == nil {
		add("journal", true, "disabled")
	} else if err := a.journal.CheckSchema(); err != nil {
		add("journal", false, "%v", err)
	} else {
		add("journal", true, "schema up to date")
	}

	if a.cfg.Remote.Kind == "" {
		add("remote", true, "not configured")
	} else if _, err := remote.New(a.cfg.Remote, a.logger); err != nil {
		add("remote", false, "%v", err)
	} else {
		add("remote", true, "%s", a.cfg.Remote.Kind)
	}

	if pid, running := a.DaemonStatus(); running {
		add("daemon", true, "running (pid %d)", pid)
	} else {
		add("daemon", true, "not running")
	}

	return checks
}
