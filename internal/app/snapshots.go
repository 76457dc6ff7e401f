package app

import (
	"context"
	"errors"
	"fmt"

	"dotkeep/internal/dot"
)

// ErrNoChanges reports that a snapshot was skipped because nothing drifted
// since the last capture.
var ErrNoChanges = errors.New("no changes since the last capture")

// CreateSnapshot captures the live state of every tracked path and records
// an immutable snapshot. Without force a capture-over-clean-state is
// skipped with ErrNoChanges.
func (a *App) CreateSnapshot(ctx context.Context, message string, force bool) (*dot.SnapshotInfo, []dot.SkippedPath, error) {
	if err := a.persist(); err != nil {
		return nil, nil, err
	}

	if !force {
		clean, err := a.unchanged()
		if err != nil {
			return nil, nil, a.fail(err)
		}
		if clean {
			a.note("no changes")
			return nil, nil, ErrNoChanges
		}
	}

	info, skipped, err := a.service.Snapshot(ctx, message)
	if err != nil {
		return nil, skipped, a.fail(err)
	}
	a.note("snapshot %s (%d files)", info.ID, info.FileCount)
	return info, skipped, nil
}

// unchanged reports whether a manifest exists and nothing drifted from it.
// No manifest counts as changed: the first capture must always run.
func (a *App) unchanged() (bool, error) {
	entries, err := a.service.Status()
	if errors.Is(err, dot.ErrNoManifest) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !dot.Summarize(entries).Changed(), nil
}

// Snapshots lists all snapshots, newest first.
func (a *App) Snapshots() ([]dot.SnapshotInfo, error) {
	return a.service.Snapshots()
}

// Rollback restores the repository state recorded in the given snapshot. A
// safety snapshot of the current state is taken first.
func (a *App) Rollback(id string) (*dot.Manifest, error) {
	if err := a.persist(); err != nil {
		return nil, err
	}

	m, err := a.service.Rollback(id)
	if err != nil {
		return nil, a.fail(err)
	}
	a.note("rolled back to %s (%d files)", id, len(m.Entries))
	return m, nil
}

// DeleteSnapshot removes one snapshot and garbage-collects blobs no other
// snapshot references.
func (a *App) DeleteSnapshot(id string) error {
	if err := a.persist(); err != nil {
		return err
	}

	if err := a.service.DeleteSnapshot(id); err != nil {
		return a.fail(err)
	}
	a.note("deleted snapshot %s", id)
	return nil
}

// PruneSnapshots removes snapshots that no configured retention criterion
// keeps.
func (a *App) PruneSnapshots(ret dot.Retention) (*dot.PruneResult, error) {
	if err := a.persist(); err != nil {
		return nil, err
	}

	res, err := a.service.PruneSnapshots(ret)
	if err != nil {
		return nil, a.fail(err)
	}
	a.note("pruned %d snapshot(s), kept %d", len(res.Removed), res.Kept)
	return res, nil
}

// Retention builds prune criteria from the [snapshots] config section.
func (a *App) Retention() (dot.Retention, error) {
	age, err := a.cfg.Snapshots.Age()
	if err != nil {
		return dot.Retention{}, fmt.Errorf("invalid snapshots config: %w", err)
	}
	size, err := a.cfg.Snapshots.SizeBytes()
	if err != nil {
		return dot.Retention{}, fmt.Errorf("invalid snapshots config: %w", err)
	}
	return dot.Retention{
		KeepCount: a.cfg.Snapshots.KeepCount,
		KeepAge:   age,
		KeepSize:  size,
	}, nil
}
