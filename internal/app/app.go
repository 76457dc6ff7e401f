// Package app is the application layer between the CLI and the engine. It
// builds every dependency from configuration, generates the operation ID
// that ties log lines and journal rows together, and finalizes both on
// Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
	"dotkeep/internal/hooks"
	"dotkeep/internal/journal"
	"dotkeep/internal/profile"
	"dotkeep/internal/scan"
	"dotkeep/internal/secrets"
	"dotkeep/internal/snapshot"
)

// App wires the engine together for one CLI invocation. The caller must
// call Close when done.
type App struct {
	cfg      *config.Config
	home     string
	repoDir  string
	profile  string
	profiles *profile.Manager
	secrets  secrets.Provider
	service  *dot.Service
	journal  *journal.Journal
	op       *Operation
	clock    dot.Clock
	logger   dot.Logger
	logFile  *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "apply", "snapshot.create").
func New(cfg *config.Config, operation string) (*App, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}
	repoDir := dot.ExpandHome(home, cfg.General.RepoDir)

	mode, err := dot.ParseMode(cfg.General.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("invalid default_mode: %w", err)
	}

	opID := dot.UUIDGenerator{}.New()

	logDir := dot.ExpandHome(home, cfg.Log.Dir)
	if logDir == "" {
		defaults, err := GetDefaults()
		if err != nil {
			return nil, err
		}
		logDir = defaults["log_dir"]
	}
	slogger, logFile, err := newLogger(logDir, opID, parseLevel(cfg.Log.Level))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	profiles := profile.NewManager(repoDir, logger)
	name, err := profiles.Active()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("resolving active profile: %w", err)
	}
	if err := profiles.Ensure(name); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("preparing profile %s: %w", name, err)
	}
	layout := profiles.Layout(home, name, mode)

	sec, err := secrets.NewProviderFromConfig(cfg.Secrets, home, AskPassphrase)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating secrets provider: %w", err)
	}

	clock := dot.RealClock{}
	scanner := scan.NewWalker(layout, cfg.Scan, cfg.Files, repoDir, logger)
	runner := hooks.NewRunner(cfg.Hooks, home, logger)
	snaps := snapshot.NewStore(filepath.Join(repoDir, "snapshots"), layout, name, clock, logger)
	service := dot.NewService(layout, sec, scanner, runner, snaps, clock, logger)

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jpath := dot.ExpandHome(home, cfg.Journal.Path)
		if jpath == "" {
			jpath = filepath.Join(repoDir, "journal.db")
		}
		jnl, err = journal.Open(jpath, clock)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("opening journal: %w", err)
		}
	}

	return &App{
		cfg:      cfg,
		home:     home,
		repoDir:  repoDir,
		profile:  name,
		profiles: profiles,
		secrets:  sec,
		service:  service,
		journal:  jnl,
		op:       NewOperation(opID, operation),
		clock:    clock,
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// RepoDir returns the absolute repository directory.
func (a *App) RepoDir() string { return a.repoDir }

// Profile returns the active profile name.
func (a *App) Profile() string { return a.profile }

// Layout returns the path mapping for the active profile.
func (a *App) Layout() dot.Layout { return a.service.Layout() }

// persist records the operation in the journal, giving it a run ID. Only
// state-changing commands call this; read-only commands leave no row.
func (a *App) persist() error {
	if a.journal == nil || a.op.Persisted() {
		return nil
	}
	id, err := a.journal.Begin(a.op.OpID, a.profile, a.op.Name)
	if err != nil {
		return fmt.Errorf("recording operation: %w", err)
	}
	a.op.RunID = id
	return nil
}

// fail marks the operation failed and passes the error through.
func (a *App) fail(err error) error {
	if err != nil {
		a.op.Status = journal.StatusFailed
		a.op.Detail = err.Error()
	}
	return err
}

// note sets the journal detail for a successful operation.
func (a *App) note(format string, args ...any) {
	a.op.Detail = fmt.Sprintf(format, args...)
}

// Status loads the manifest, scans the tracked set and diffs them.
func (a *App) Status() ([]dot.DiffEntry, error) {
	return a.service.Status()
}

// Manifest loads the active profile's manifest.
func (a *App) Manifest() (*dot.Manifest, error) {
	return a.service.Manifest()
}

// Discovery is one scanner candidate and whether the manifest already
// covers it.
type Discovery struct {
	Path       string
	Mode       dot.Mode
	InManifest bool
}

// Discover runs the scanner and reports each candidate path alongside its
// manifest membership. No manifest yet means every candidate is new.
func (a *App) Discover() ([]Discovery, error) {
	tracked, err := a.service.Tracked()
	if err != nil {
		return nil, fmt.Errorf("scanning tracked paths: %w", err)
	}

	m, err := a.service.Manifest()
	if err != nil && !errors.Is(err, dot.ErrNoManifest) {
		return nil, err
	}

	layout := a.service.Layout()
	out := make([]Discovery, 0, len(tracked))
	for _, t := range tracked {
		path := layout.Contract(dot.ExpandHome(layout.Home, t.Path))
		d := Discovery{Path: path, Mode: t.Mode}
		if m != nil {
			_, d.InManifest = m.Lookup(path)
		}
		out = append(out, d)
	}
	return out, nil
}

// TrackPaths appends the given paths to the config's tracked list and
// rewrites the config file. Already-listed paths are skipped. Returns the
// number of paths added.
func (a *App) TrackPaths(configPath string, paths []string) (int, error) {
	if err := a.persist(); err != nil {
		return 0, err
	}

	have := make(map[string]bool, len(a.cfg.Scan.Tracked))
	for _, p := range a.cfg.Scan.Tracked {
		have[p] = true
	}

	added := 0
	for _, p := range paths {
		if have[p] {
			continue
		}
		a.cfg.Scan.Tracked = append(a.cfg.Scan.Tracked, p)
		have[p] = true
		added++
	}
	if added == 0 {
		a.note("no new paths")
		return 0, nil
	}

	if err := config.Save(configPath, a.cfg); err != nil {
		return 0, a.fail(fmt.Errorf("writing config: %w", err))
	}
	a.logger.Info("tracked paths written", "config", configPath, "added", added)
	a.note("tracked %d new path(s)", added)
	return added, nil
}

// Apply materializes the manifest onto the live filesystem. Without force
// it refuses to overwrite destinations that drifted since the last capture,
// so local edits are never clobbered by accident.
func (a *App) Apply(ctx context.Context, force bool, opts dot.ApplyOptions) (*dot.ApplyReport, error) {
	if err := a.persist(); err != nil {
		return nil, err
	}

	m, err := a.service.Manifest()
	if err != nil {
		return nil, a.fail(err)
	}

	if !force {
		n, err := a.drifted(m, opts.Only)
		if err != nil {
			return nil, a.fail(err)
		}
		if n > 0 {
			return nil, a.fail(fmt.Errorf("%d destination(s) modified since the last capture, re-run with --force to overwrite them", n))
		}
	}

	report, err := a.service.Apply(ctx, m, opts)
	if err != nil {
		return report, a.fail(err)
	}
	if report.Failed() > 0 {
		a.op.Status = journal.StatusPartial
		a.op.Detail = fmt.Sprintf("applied %d, skipped %d, failed %d", report.Applied(), report.Skipped(), report.Failed())
	} else {
		a.note("applied %d, skipped %d", report.Applied(), report.Skipped())
	}
	return report, nil
}

// drifted counts manifest entries whose live destination changed since the
// last capture. Missing destinations do not count: writing those is the
// point of apply.
func (a *App) drifted(m *dot.Manifest, only []string) (int, error) {
	entries, err := a.service.Diff(m, nil)
	if err != nil {
		return 0, err
	}

	layout := a.service.Layout()
	var filter map[string]bool
	if len(only) > 0 {
		filter = make(map[string]bool, len(only))
		for _, p := range only {
			filter[layout.Contract(dot.ExpandHome(layout.Home, p))] = true
		}
	}

	n := 0
	for _, e := range entries {
		if filter != nil && !filter[e.Path] {
			continue
		}
		if e.Status == dot.StatusModified || e.Status == dot.StatusDecryptFailed {
			n++
		}
	}
	return n, nil
}

// Close finalizes the journal record for persisted operations and releases
// all resources. Call it exactly once; New cleans up after itself on its
// own error paths.
func (a *App) Close() error {
	var firstErr error

	if a.journal != nil {
		if a.op.Persisted() {
			if err := a.journal.Finish(a.op.RunID, a.op.Status, a.op.Detail); err != nil {
				firstErr = fmt.Errorf("finishing journal run: %w", err)
			}
		}
		if err := a.journal.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
