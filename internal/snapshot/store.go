// Package snapshot implements the content-addressed snapshot archive. Every
// distinct blob of content is stored once under objects/ keyed by its
// digest; each snapshot realizes its file tree as hardlinks into that blob
// area, so unchanged files cost one directory entry instead of a copy.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"dotkeep/internal/dot"
	"dotkeep/internal/hash"
)

const (
	objectsDir   = "objects"
	treeDir      = "tree"
	metaFile     = "snapshot.json"
	manifestFile = "manifest.lock"
	idFormat     = "20060102_150405"
)

// Store keeps snapshots under one directory per snapshot plus a shared blob
// area. A snapshot directory without its metadata file is an aborted create
// and is ignored everywhere; the metadata file is written last and serves
// as the commit marker.
type Store struct {
	root    string
	layout  dot.Layout
	profile string
	clock   dot.Clock
	logger  dot.Logger
}

var _ dot.SnapshotStore = (*Store)(nil)

// NewStore creates a Store rooted at root for the given profile.
func NewStore(root string, layout dot.Layout, profile string, clock dot.Clock, logger dot.Logger) *Store {
	return &Store{
		root:    root,
		layout:  layout,
		profile: profile,
		clock:   clock,
		logger:  logger,
	}
}

func (s *Store) Create(m *dot.Manifest, message string) (*dot.SnapshotInfo, error) {
	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(filepath.Join(dir, treeDir), 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.RemoveAll(dir)
		}
	}()

	var totalBytes int64
	for _, e := range m.Entries {
		n, err := s.storeEntry(dir, e)
		if err != nil {
			return nil, fmt.Errorf("storing %s: %w", e.Path, err)
		}
		totalBytes += n
	}

	data, err := m.Serialize()
	if err != nil {
		return nil, err
	}
	if err := dot.WriteFileAtomic(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		return nil, err
	}

	info := &dot.SnapshotInfo{
		ID:         id,
		Message:    message,
		CreatedAt:  s.clock.Now().UTC(),
		FileCount:  len(m.Entries),
		TotalBytes: totalBytes,
		Profile:    s.profile,
	}
	meta, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot metadata: %w", err)
	}
	if err := dot.WriteFileAtomic(filepath.Join(dir, metaFile), append(meta, '\n'), 0644); err != nil {
		return nil, err
	}

	success = true
	s.logger.Debug("snapshot created", "id", id, "files", info.FileCount, "bytes", info.TotalBytes)
	return info, nil
}

// newID allocates a timestamp ID, appending a sequence suffix when two
// snapshots land in the same clock second. Suffixed IDs still sort after
// the unsuffixed one, preserving the newest-first list order.
func (s *Store) newID() (string, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot root: %w", err)
	}
	base := s.clock.Now().UTC().Format(idFormat)
	id := base
	for n := 2; ; n++ {
		if _, err := os.Lstat(filepath.Join(s.root, id)); errors.Is(err, fs.ErrNotExist) {
			return id, nil
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// storeEntry puts one entry's repository copy into the blob area (unless an
// identical blob already exists) and hardlinks it into the snapshot tree.
// Blobs are keyed by the digest of the stored bytes, which for an encrypted
// entry is the ciphertext digest.
func (s *Store) storeEntry(dir string, e dot.ManifestEntry) (int64, error) {
	compiled := s.layout.CompiledPath(e.Path)
	data, err := os.ReadFile(compiled)
	if err != nil {
		return 0, &dot.IOError{Path: compiled, Err: err}
	}

	blob := filepath.Join(s.root, objectsDir, string(hash.Bytes(data)))
	if _, err := os.Lstat(blob); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return 0, &dot.IOError{Path: blob, Err: err}
		}
		// Blobs are immutable once written.
		if err := dot.WriteFileAtomic(blob, data, 0444); err != nil {
			return 0, err
		}
	}

	tree := filepath.Join(dir, treeDir, dot.TreeRelative(e.Path))
	if err := os.MkdirAll(filepath.Dir(tree), 0755); err != nil {
		return 0, fmt.Errorf("creating tree directory: %w", err)
	}
	if err := os.Link(blob, tree); err != nil {
		return 0, fmt.Errorf("linking blob into tree: %w", err)
	}
	return int64(len(data)), nil
}

func (s *Store) List() ([]dot.SnapshotInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot root: %w", err)
	}

	var infos []dot.SnapshotInfo
	for _, de := range entries {
		if !de.IsDir() || de.Name() == objectsDir {
			continue
		}
		info, err := s.readMeta(de.Name())
		if err != nil {
			s.logger.Debug("ignoring snapshot directory", "id", de.Name(), "error", err)
			continue
		}
		infos = append(infos, *info)
	}

	// IDs are lexicographically sortable timestamps.
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID > infos[j].ID })
	return infos, nil
}

func (s *Store) readMeta(id string) (*dot.SnapshotInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.root, id, metaFile))
	if err != nil {
		return nil, err
	}
	var info dot.SnapshotInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing snapshot metadata: %w", err)
	}
	return &info, nil
}

// Rollback restores the repository copies and manifest recorded by snapshot
// id, after archiving the current state in an automatic safety snapshot.
// The manifest is written last; a crash mid-restore leaves the old manifest
// pointing at partially restored copies, which a re-run repairs.
func (s *Store) Rollback(id string) (*dot.Manifest, error) {
	dir := filepath.Join(s.root, id)
	if _, err := s.readMeta(id); err != nil {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	m, err := dot.LoadManifest(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}

	current, err := dot.LoadManifest(s.layout.ManifestPath)
	switch {
	case err == nil:
		if _, err := s.Create(current, "auto: before rollback to "+id); err != nil {
			return nil, fmt.Errorf("creating safety snapshot: %w", err)
		}
	case errors.Is(err, dot.ErrNoManifest):
		// Nothing to protect.
	default:
		return nil, err
	}

	if err := os.RemoveAll(s.layout.CompiledDir); err != nil {
		return nil, fmt.Errorf("clearing repository copies: %w", err)
	}
	for _, e := range m.Entries {
		src := filepath.Join(dir, treeDir, dot.TreeRelative(e.Path))
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, &dot.IOError{Path: src, Err: err}
		}
		if err := dot.WriteFileAtomic(s.layout.CompiledPath(e.Path), data, e.FileMode()); err != nil {
			return nil, err
		}
	}
	if err := m.WriteFile(s.layout.ManifestPath); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) Delete(id string) error {
	if _, err := s.readMeta(id); err != nil {
		return fmt.Errorf("snapshot %s not found", id)
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	_, err := s.collectGarbage()
	return err
}

func (s *Store) Prune(ret dot.Retention) (*dot.PruneResult, error) {
	if !ret.Configured() {
		return nil, fmt.Errorf("no retention criteria configured")
	}
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return &dot.PruneResult{}, nil
	}

	keep := make([]bool, len(infos))
	if ret.KeepCount > 0 {
		for i := 0; i < len(infos) && i < ret.KeepCount; i++ {
			keep[i] = true
		}
	}
	if ret.KeepAge > 0 {
		cutoff := s.clock.Now().UTC().Add(-ret.KeepAge)
		for i, info := range infos {
			if info.CreatedAt.After(cutoff) {
				keep[i] = true
			}
		}
	}
	if ret.KeepSize > 0 {
		var sum int64
		for i, info := range infos {
			sum += info.TotalBytes
			if sum > ret.KeepSize {
				break
			}
			keep[i] = true
		}
	}

	// However the criteria land, the newest snapshot survives: pruning is
	// housekeeping, not history erasure.
	anyKept := false
	for _, k := range keep {
		if k {
			anyKept = true
			break
		}
	}
	if !anyKept {
		keep[0] = true
	}

	res := &dot.PruneResult{}
	for i, info := range infos {
		if keep[i] {
			res.Kept++
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, info.ID)); err != nil {
			return nil, fmt.Errorf("pruning snapshot %s: %w", info.ID, err)
		}
		res.Removed = append(res.Removed, info.ID)
	}

	freed, err := s.collectGarbage()
	if err != nil {
		return nil, err
	}
	res.BytesFreed = freed
	return res, nil
}

// collectGarbage removes blobs no snapshot tree links to anymore and
// reports the bytes reclaimed. A blob's only remaining link is the objects/
// entry itself, so a link count of one marks it unreferenced.
func (s *Store) collectGarbage() (int64, error) {
	dir := filepath.Join(s.root, objectsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading blob area: %w", err)
	}

	var freed int64
	for _, de := range entries {
		path := filepath.Join(dir, de.Name())
		info, err := os.Lstat(path)
		if err != nil {
			continue
		}
		links, err := linkCount(info)
		if err != nil {
			return freed, err
		}
		if links > 1 {
			continue
		}
		if err := os.Remove(path); err != nil {
			return freed, fmt.Errorf("removing blob %s: %w", de.Name(), err)
		}
		freed += info.Size()
	}
	return freed, nil
}
