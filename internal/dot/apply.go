package dot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dotkeep/internal/hash"
)

// ApplyOptions controls a materialization run.
type ApplyOptions struct {
	// Backup saves the current destination beside itself before it is
	// replaced. Identical and missing destinations never produce backups.
	Backup bool
	// AllowOutsideHome permits entries whose destination lies outside the
	// home directory. Without it such entries fail their safety check.
	AllowOutsideHome bool
	// Only restricts the run to the named paths. Empty means all entries.
	Only []string
}

// Action is the outcome of one entry in an apply run.
type Action string

const (
	ActionApplied Action = "applied"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// ApplyResult records what happened to one manifest entry.
type ApplyResult struct {
	Path       string
	Status     Status
	Action     Action
	BackupPath string
	Err        error
}

// ApplyReport aggregates per-entry results of an apply run. Entries are
// isolated from each other: one failure does not stop the rest.
type ApplyReport struct {
	Results   []ApplyResult
	PostHooks []HookResult
}

// Applied counts entries that were written and verified.
func (r *ApplyReport) Applied() int { return r.count(ActionApplied) }

// Skipped counts entries left alone because they were already in sync.
func (r *ApplyReport) Skipped() int { return r.count(ActionSkipped) }

// Failed counts entries that errored.
func (r *ApplyReport) Failed() int { return r.count(ActionFailed) }

func (r *ApplyReport) count(a Action) int {
	n := 0
	for _, res := range r.Results {
		if res.Action == a {
			n++
		}
	}
	return n
}

// Apply materializes the manifest onto the live filesystem. Each entry runs
// through safety check, decryption, backup, write and verification; entries
// already in sync are skipped so a second run over an unchanged system
// mutates nothing. Pre hooks abort the run before any file is touched.
func (s *Service) Apply(ctx context.Context, m *Manifest, opts ApplyOptions) (*ApplyReport, error) {
	if m == nil {
		return nil, &ManifestError{Path: s.layout.ManifestPath, Err: ErrNoManifest}
	}

	if s.hooks != nil {
		results := s.hooks.Run(ctx, StagePreApply)
		if _, failed := FailedHook(results); failed {
			return nil, &HookError{Stage: StagePreApply, Results: results}
		}
	}

	only := s.onlySet(opts.Only)
	report := &ApplyReport{}

	for _, me := range m.Entries {
		if only != nil && !only[me.Path] {
			continue
		}
		res := s.applyEntry(me, opts)
		report.Results = append(report.Results, res)
		switch res.Action {
		case ActionApplied:
			s.logger.Info("applied", "path", me.Path, "mode", me.Mode)
		case ActionFailed:
			s.logger.Error("apply failed", "path", me.Path, "error", res.Err)
		}
	}

	if s.hooks != nil {
		report.PostHooks = s.hooks.Run(ctx, StagePostApply)
		if failed, ok := FailedHook(report.PostHooks); ok {
			s.logger.Warn("post-apply hook failed", "command", failed.Command, "error", failed.Err)
		}
	}
	return report, nil
}

// onlySet normalizes the Only filter to contracted paths.
func (s *Service) onlySet(only []string) map[string]bool {
	if len(only) == 0 {
		return nil
	}
	set := make(map[string]bool, len(only))
	for _, p := range only {
		set[s.layout.Contract(ExpandHome(s.layout.Home, p))] = true
	}
	return set
}

// applyEntry runs one entry through the full sequence. It returns rather
// than propagates errors so siblings still get their turn.
func (s *Service) applyEntry(me ManifestEntry, opts ApplyOptions) ApplyResult {
	res := ApplyResult{Path: me.Path}

	d := s.classify(me)
	res.Status = d.Status
	if d.Status == StatusIdentical {
		res.Action = ActionSkipped
		return res
	}

	dest := s.layout.Destination(me.Path)
	if !s.layout.UnderHome(dest) && !opts.AllowOutsideHome {
		res.Action = ActionFailed
		res.Err = &SafetyViolationError{Path: me.Path, Dest: dest, Root: s.layout.Home}
		return res
	}

	// Resolve the payload before touching the destination, so a missing
	// repository copy or a failed decryption leaves the live file alone.
	var (
		target string
		data   []byte
	)
	var err error
	if me.Mode == ModeSymlink {
		target = s.layout.CompiledPath(me.Path)
	} else {
		data, err = s.payload(me)
		if err != nil {
			res.Action = ActionFailed
			res.Err = err
			return res
		}
	}

	if opts.Backup && d.Status != StatusMissing {
		res.BackupPath, err = s.backup(dest)
		if err != nil {
			res.Action = ActionFailed
			res.Err = err
			return res
		}
	}

	if me.Mode == ModeSymlink {
		err = s.writeSymlink(dest, target)
	} else {
		err = s.writeCopy(dest, data, me)
	}
	if err != nil {
		res.Action = ActionFailed
		res.Err = err
		return res
	}

	if err := s.verify(me, dest, target, data); err != nil {
		res.Action = ActionFailed
		res.Err = err
		return res
	}
	res.Action = ActionApplied
	return res
}

// payload loads the bytes to write for a copy-mode entry, decrypting in
// memory when the entry is encrypted. Plaintext never hits the repository.
func (s *Service) payload(me ManifestEntry) ([]byte, error) {
	src := s.layout.CompiledPath(me.Path)
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, &IOError{Path: src, Err: err}
	}
	if !me.Encrypted {
		return data, nil
	}
	if s.secrets == nil {
		return nil, &SecretsError{Path: me.Path, Err: fmt.Errorf("no secrets provider configured")}
	}
	plain, err := s.secrets.Decrypt(data)
	if err != nil {
		return nil, &SecretsError{Path: me.Path, Err: err}
	}
	return plain, nil
}

// backup moves the current destination aside under a timestamped name and
// returns the backup path. Rename keeps symlinks as symlinks.
func (s *Service) backup(dest string) (string, error) {
	if _, err := os.Lstat(dest); os.IsNotExist(err) {
		return "", nil
	}
	backupPath := fmt.Sprintf("%s.bak.%s", dest, s.clock.Now().Format("20060102-150405"))
	if err := os.Rename(dest, backupPath); err != nil {
		return "", &IOError{Path: dest, Err: fmt.Errorf("backup: %w", err)}
	}
	s.logger.Debug("backed up destination", "path", dest, "backup", backupPath)
	return backupPath, nil
}

// writeSymlink links dest to target, replacing whatever is there. The link
// is created under a temporary name and renamed into place so readers never
// observe a half-made destination.
func (s *Service) writeSymlink(dest, target string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &IOError{Path: dest, Err: err}
	}
	tmp := dest + ".tmp-dotkeep"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return &IOError{Path: tmp, Err: err}
	}
	if err := os.Symlink(target, tmp); err != nil {
		return &IOError{Path: dest, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return &IOError{Path: dest, Err: err}
	}
	return nil
}

// writeCopy writes data to dest atomically with the entry's permissions and
// carries the repository copy's mtime over so downstream tools relying on
// timestamps see a stable value.
func (s *Service) writeCopy(dest string, data []byte, me ManifestEntry) error {
	if info, err := os.Lstat(dest); err == nil && info.Mode()&os.ModeSymlink != 0 {
		// A stale symlink would make the atomic rename land elsewhere.
		if err := os.Remove(dest); err != nil {
			return &IOError{Path: dest, Err: err}
		}
	}
	if err := WriteFileAtomic(dest, data, me.FileMode()); err != nil {
		return &IOError{Path: dest, Err: err}
	}
	if info, err := os.Lstat(s.layout.CompiledPath(me.Path)); err == nil {
		if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
			s.logger.Debug("preserving mtime failed", "path", dest, "error", err)
		}
	}
	return nil
}

// verify re-reads the destination and checks it matches what was written.
func (s *Service) verify(me ManifestEntry, dest, target string, data []byte) error {
	if me.Mode == ModeSymlink {
		got, err := os.Readlink(dest)
		if err != nil {
			return &IOError{Path: dest, Err: err}
		}
		if got != target {
			return &VerifyError{Path: me.Path, Want: hash.Target(target), Got: hash.Target(got)}
		}
		return nil
	}

	want := me.Digest
	if me.Encrypted {
		want = hash.Bytes(data)
	}
	got, err := hash.File(dest)
	if err != nil {
		return &IOError{Path: dest, Err: err}
	}
	if got != want {
		return &VerifyError{Path: me.Path, Want: want, Got: got}
	}
	return nil
}
