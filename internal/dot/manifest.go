// Package dot holds the core reconciliation engine: the manifest data model,
// the diff classifier, and the apply state machine, together with the
// interfaces for the collaborators they are composed with (secrets, scanner,
// hooks, snapshot store, remote backends).
package dot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dotkeep/internal/hash"
)

// ManifestVersion is written into every serialized manifest.
const ManifestVersion = 1

// Mode selects how an entry is materialized on apply: a symlink pointing at
// the repository copy, or a byte-for-byte copy.
type Mode string

const (
	ModeSymlink Mode = "symlink"
	ModeCopy    Mode = "copy"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSymlink, ModeCopy:
		return Mode(s), nil
	case "":
		return ModeSymlink, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeSymlink, ModeCopy)
	}
}

// ManifestEntry records one tracked path: its content digest, how it is
// applied, its permission bits, and whether the repository copy is encrypted.
// Entries are uniquely keyed by Path.
type ManifestEntry struct {
	Path        string      `json:"path"`
	Digest      hash.Digest `json:"digest"`
	Mode        Mode        `json:"mode"`
	Permissions uint32      `json:"permissions"`
	Encrypted   bool        `json:"is_encrypted"`
}

// FileMode returns the entry's permission bits as an fs.FileMode.
func (e ManifestEntry) FileMode() fs.FileMode { return fs.FileMode(e.Permissions) }

// SkippedPath records a tracked path that could not be captured. Skips are
// reported, never fatal: dotfiles trees commonly reference machine-specific
// optional files.
type SkippedPath struct {
	Path   string
	Reason string
}

// Manifest is the canonical, sorted inventory of tracked paths. Serialization
// is byte-for-byte reproducible for identical inputs: entries are totally
// ordered by path and fields marshal in a fixed order.
type Manifest struct {
	Version     int             `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []ManifestEntry `json:"entries"`
}

// Sort orders entries lexicographically by path.
func (m *Manifest) Sort() {
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })
}

// Lookup returns the entry for path, if present. Entries must be sorted.
func (m *Manifest) Lookup(path string) (ManifestEntry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Path >= path })
	if i < len(m.Entries) && m.Entries[i].Path == path {
		return m.Entries[i], true
	}
	return ManifestEntry{}, false
}

// Serialize renders the manifest as deterministic, human-diffable JSON.
func (m *Manifest) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile writes the manifest atomically: serialized to a temp file in the
// destination directory, then renamed into place.
func (m *Manifest) WriteFile(path string) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0644)
}

// LoadManifest reads and validates a manifest file. A missing file yields
// ErrNoManifest (wrapped); malformed content yields a ManifestError.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ManifestError{Path: path, Err: ErrNoManifest}
		}
		return nil, &ManifestError{Path: path, Err: err}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Err: fmt.Errorf("parsing: %w", err)}
	}
	if m.Version > ManifestVersion {
		return nil, &ManifestError{Path: path, Err: fmt.Errorf("version %d is newer than supported %d", m.Version, ManifestVersion)}
	}

	m.Sort()
	return &m, nil
}

// BuildManifest captures manifest entries for the tracked paths. The digest
// of each path is computed from its live state, with one resolution reversal:
// a live symlink pointing at the path's own repository copy is the applied
// state, so its digest is the repository copy's content digest rather than
// the link target string. Per-path mode overrides win over the layout
// default; the encrypted suffix forces copy mode, since a decrypted file can
// never be a link into the repository. Unreadable paths are skipped and
// recorded. Output is deterministic for identical filesystem state,
// configuration, and clock.
func BuildManifest(layout Layout, tracked []TrackedPath, clock Clock) (*Manifest, []SkippedPath) {
	m := &Manifest{
		Version:     ManifestVersion,
		GeneratedAt: clock.Now().UTC(),
	}
	var skipped []SkippedPath
	seen := make(map[string]bool, len(tracked))

	for _, t := range tracked {
		path := layout.Contract(ExpandHome(layout.Home, t.Path))
		if seen[path] {
			continue
		}
		seen[path] = true

		// Encrypted entries carry the suffix in their path while the live
		// plaintext lives at the destination, so stat the destination.
		abs := layout.Destination(path)
		info, err := os.Lstat(abs)
		if err != nil {
			skipped = append(skipped, SkippedPath{Path: path, Reason: err.Error()})
			continue
		}
		if info.IsDir() {
			skipped = append(skipped, SkippedPath{Path: path, Reason: "is a directory"})
			continue
		}

		digest, perm, err := liveDigest(layout, path, abs, info)
		if err != nil {
			skipped = append(skipped, SkippedPath{Path: path, Reason: err.Error()})
			continue
		}

		mode := t.Mode
		if mode == "" {
			mode = layout.DefaultMode
		}
		encrypted := strings.HasSuffix(path, EncryptedSuffix)
		if encrypted {
			mode = ModeCopy
		}

		m.Entries = append(m.Entries, ManifestEntry{
			Path:        path,
			Digest:      digest,
			Mode:        mode,
			Permissions: uint32(perm),
			Encrypted:   encrypted,
		})
	}

	m.Sort()
	return m, skipped
}

// liveDigest computes the digest and permission bits for one live path. abs
// has already been lstat'ed into info.
func liveDigest(layout Layout, path, abs string, info fs.FileInfo) (hash.Digest, fs.FileMode, error) {
	if info.Mode()&fs.ModeSymlink == 0 {
		d, err := hash.File(abs)
		return d, info.Mode().Perm(), err
	}

	target, err := os.Readlink(abs)
	if err != nil {
		return "", 0, err
	}
	if target == layout.CompiledPath(path) {
		// Already applied: the content lives behind the link. Capturing the
		// link target here would snapshot the repository's own path string
		// over the real content.
		d, err := hash.File(target)
		if err != nil {
			return "", 0, fmt.Errorf("dangling repository link: %w", err)
		}
		st, err := os.Stat(abs)
		if err != nil {
			return "", 0, err
		}
		return d, st.Mode().Perm(), nil
	}

	// A foreign symlink is content in its own right: the digest covers the
	// target string, so retargeting shows up as a change.
	perm := fs.FileMode(0644)
	if st, err := os.Stat(abs); err == nil {
		perm = st.Mode().Perm()
	}
	return hash.Target(target), perm, nil
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a truncated file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	success = true
	return nil
}
