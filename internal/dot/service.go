package dot

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"dotkeep/internal/hash"
)

// Service is the orchestration layer that coordinates capture, diff, apply
// and snapshot operations needed by the CLI and the daemon.
type Service struct {
	layout  Layout
	secrets SecretsProvider
	scanner Scanner
	hooks   HookRunner
	snaps   SnapshotStore
	clock   Clock
	logger  Logger
}

// NewService creates a new Service with the provided dependencies. Secrets,
// scanner, hooks and snapshot store may be nil when the corresponding
// feature is unconfigured; operations that need a missing collaborator fail
// with a descriptive error instead of panicking.
func NewService(layout Layout, secrets SecretsProvider, scanner Scanner, hooks HookRunner, snaps SnapshotStore, clock Clock, logger Logger) *Service {
	return &Service{
		layout:  layout,
		secrets: secrets,
		scanner: scanner,
		hooks:   hooks,
		snaps:   snaps,
		clock:   clock,
		logger:  logger,
	}
}

// Layout exposes the path mapping the service was built with.
func (s *Service) Layout() Layout { return s.layout }

// Manifest loads the current manifest from the active profile.
func (s *Service) Manifest() (*Manifest, error) {
	return LoadManifest(s.layout.ManifestPath)
}

// Tracked returns the scanner's current candidate set.
func (s *Service) Tracked() ([]TrackedPath, error) {
	if s.scanner == nil {
		return nil, nil
	}
	return s.scanner.Scan()
}

// Status loads the manifest and the tracked set and diffs them.
func (s *Service) Status() ([]DiffEntry, error) {
	m, err := s.Manifest()
	if err != nil {
		return nil, err
	}
	tracked, err := s.Tracked()
	if err != nil {
		return nil, fmt.Errorf("scanning tracked paths: %w", err)
	}
	return s.Diff(m, tracked)
}

// Snapshot captures the live state of every tracked path into the
// repository and records an immutable snapshot of the result. The write
// order is compiled tree, then manifest, then snapshot, so an interrupted
// run never leaves a manifest describing content that was not captured.
func (s *Service) Snapshot(ctx context.Context, message string) (*SnapshotInfo, []SkippedPath, error) {
	if s.hooks != nil {
		results := s.hooks.Run(ctx, StagePreSnapshot)
		if _, failed := FailedHook(results); failed {
			return nil, nil, &HookError{Stage: StagePreSnapshot, Results: results}
		}
	}

	tracked, err := s.Tracked()
	if err != nil {
		return nil, nil, fmt.Errorf("scanning tracked paths: %w", err)
	}
	m, skipped := BuildManifest(s.layout, tracked, s.clock)
	if len(m.Entries) == 0 {
		return nil, skipped, fmt.Errorf("nothing to capture: no readable tracked paths")
	}

	for _, e := range m.Entries {
		if err := s.captureEntry(e); err != nil {
			return nil, skipped, fmt.Errorf("capturing %s: %w", e.Path, err)
		}
	}

	if err := m.WriteFile(s.layout.ManifestPath); err != nil {
		return nil, skipped, err
	}

	var info *SnapshotInfo
	if s.snaps != nil {
		info, err = s.snaps.Create(m, message)
		if err != nil {
			return nil, skipped, fmt.Errorf("storing snapshot: %w", err)
		}
	}

	if s.hooks != nil {
		results := s.hooks.Run(ctx, StagePostSnapshot)
		if failed, ok := FailedHook(results); ok {
			s.logger.Warn("post-snapshot hook failed", "command", failed.Command, "error", failed.Err)
		}
	}

	s.logger.Info("snapshot captured", "entries", len(m.Entries), "skipped", len(skipped))
	return info, skipped, nil
}

// captureEntry copies one live path into the compiled tree. Unchanged
// entries are left alone; for encrypted entries this keeps the existing
// ciphertext stable across snapshots, which is what lets the snapshot store
// deduplicate them.
func (s *Service) captureEntry(e ManifestEntry) error {
	compiled := s.layout.CompiledPath(e.Path)
	if s.compiledCurrent(e, compiled) {
		return nil
	}

	data, err := s.liveContent(e)
	if err != nil {
		return err
	}
	if e.Encrypted {
		if s.secrets == nil {
			return &SecretsError{Path: e.Path, Err: fmt.Errorf("no secrets provider configured")}
		}
		data, err = s.secrets.Encrypt(data)
		if err != nil {
			return &SecretsError{Path: e.Path, Err: err}
		}
	}
	if err := WriteFileAtomic(compiled, data, e.FileMode()); err != nil {
		return err
	}
	s.logger.Debug("captured", "path", e.Path, "encrypted", e.Encrypted)
	return nil
}

// compiledCurrent reports whether the existing repository copy already
// matches the entry's digest.
func (s *Service) compiledCurrent(e ManifestEntry, compiled string) bool {
	if e.Encrypted {
		if s.secrets == nil {
			return false
		}
		cipher, err := os.ReadFile(compiled)
		if err != nil {
			return false
		}
		plain, err := s.secrets.Decrypt(cipher)
		if err != nil {
			return false
		}
		return hash.Bytes(plain) == e.Digest
	}
	got, err := hash.File(compiled)
	return err == nil && got == e.Digest
}

// liveContent reads the bytes to capture for an entry. A live path that is
// itself a symlink is captured as its target string, matching how such
// paths are hashed.
func (s *Service) liveContent(e ManifestEntry) ([]byte, error) {
	src := s.layout.Destination(e.Path)
	info, err := os.Lstat(src)
	if err != nil {
		return nil, &IOError{Path: src, Err: err}
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return nil, &IOError{Path: src, Err: err}
		}
		return []byte(target), nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &IOError{Path: src, Err: err}
	}
	return data, nil
}

// Snapshots lists stored snapshots, newest first.
func (s *Service) Snapshots() ([]SnapshotInfo, error) {
	if s.snaps == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	return s.snaps.List()
}

// Rollback restores the repository state recorded in the named snapshot and
// returns the restored manifest. The live filesystem is not touched; apply
// materializes the restored state when asked.
func (s *Service) Rollback(id string) (*Manifest, error) {
	if s.snaps == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	m, err := s.snaps.Rollback(id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rolled back", "snapshot", id, "entries", len(m.Entries))
	return m, nil
}

// DeleteSnapshot removes one snapshot and any blobs only it referenced.
func (s *Service) DeleteSnapshot(id string) error {
	if s.snaps == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	return s.snaps.Delete(id)
}

// PruneSnapshots removes snapshots not retained by any configured criterion.
func (s *Service) PruneSnapshots(ret Retention) (*PruneResult, error) {
	if s.snaps == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	res, err := s.snaps.Prune(ret)
	if err != nil {
		return nil, err
	}
	s.logger.Info("pruned snapshots", "removed", len(res.Removed), "kept", res.Kept)
	return res, nil
}
