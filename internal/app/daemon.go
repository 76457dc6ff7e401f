package app

import (
	"context"
	"path/filepath"

	"dotkeep/internal/daemon"
)

// PIDPath returns the daemon PID file location.
func (a *App) PIDPath() string {
	return filepath.Join(a.repoDir, "daemon.pid")
}

// RunDaemon watches the parent directories of all tracked paths and blocks
// until ctx is cancelled. In auto mode change bursts are captured as
// snapshots; in ask mode a hint is logged.
func (a *App) RunDaemon(ctx context.Context) error {
	if err := a.persist(); err != nil {
		return err
	}

	tracked, err := a.service.Tracked()
	if err != nil {
		return a.fail(err)
	}
	roots := daemon.WatchRoots(tracked, a.service.Layout(), a.repoDir)

	snap := func(ctx context.Context, message string) error {
		_, _, err := a.service.Snapshot(ctx, message)
		return err
	}
	d, err := daemon.New(a.PIDPath(), roots, a.cfg.Daemon, snap, a.logger)
	if err != nil {
		return a.fail(err)
	}

	if err := d.Run(ctx); err != nil {
		return a.fail(err)
	}
	a.note("daemon stopped")
	return nil
}

// StopDaemon signals a running daemon to shut down.
func (a *App) StopDaemon() error {
	if err := a.persist(); err != nil {
		return err
	}

	if err := daemon.Stop(a.PIDPath()); err != nil {
		return a.fail(err)
	}
	a.note("daemon signalled")
	return nil
}

// DaemonStatus reports the running daemon's PID, if any.
func (a *App) DaemonStatus() (int, bool) {
	return daemon.Running(a.PIDPath())
}
