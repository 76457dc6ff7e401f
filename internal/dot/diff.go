package dot

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"dotkeep/internal/hash"
)

// Status classifies one tracked path against the manifest.
type Status string

const (
	// StatusIdentical means repository and live state agree.
	StatusIdentical Status = "identical"
	// StatusModified means both exist with differing digests.
	StatusModified Status = "modified"
	// StatusNew means the path is tracked on disk but absent from the manifest.
	StatusNew Status = "new"
	// StatusMissing means the manifest entry has no live counterpart.
	StatusMissing Status = "missing"
	// StatusDecryptFailed means an encrypted entry could not be compared
	// because decryption failed. It counts as changed: a false "changed" is
	// preferred over a false "unchanged".
	StatusDecryptFailed Status = "decrypt-failed"
)

// Changed reports whether the status represents drift.
func (s Status) Changed() bool { return s != StatusIdentical }

// DiffEntry is the classification of one path. RepoDigest and LiveDigest
// carry the digests that were actually compared; for encrypted entries these
// are plaintext digests, not the manifest's ciphertext digest.
type DiffEntry struct {
	Path       string
	Status     Status
	RepoDigest hash.Digest
	LiveDigest hash.Digest
	Detail     string
}

// DiffSummary counts entries per status.
type DiffSummary struct {
	Identical     int
	Modified      int
	New           int
	Missing       int
	DecryptFailed int
}

// Changed reports whether any entry drifted.
func (s DiffSummary) Changed() bool {
	return s.Modified+s.New+s.Missing+s.DecryptFailed > 0
}

// Summarize tallies a diff result.
func Summarize(entries []DiffEntry) DiffSummary {
	var s DiffSummary
	for _, e := range entries {
		switch e.Status {
		case StatusIdentical:
			s.Identical++
		case StatusModified:
			s.Modified++
		case StatusNew:
			s.New++
		case StatusMissing:
			s.Missing++
		case StatusDecryptFailed:
			s.DecryptFailed++
		}
	}
	return s
}

// Diff compares the manifest against the live filesystem and the tracked
// set, producing one classified entry per path, sorted by path so repeated
// invocations over an unchanged system yield byte-identical output.
func (s *Service) Diff(m *Manifest, tracked []TrackedPath) ([]DiffEntry, error) {
	if m == nil {
		return nil, &ManifestError{Path: s.layout.ManifestPath, Err: ErrNoManifest}
	}

	entries := make([]DiffEntry, 0, len(m.Entries))
	for _, me := range m.Entries {
		entries = append(entries, s.classify(me))
	}

	// Tracked paths absent from the manifest are new.
	for _, t := range tracked {
		path := s.layout.Contract(ExpandHome(s.layout.Home, t.Path))
		if _, ok := m.Lookup(path); ok {
			continue
		}
		live, err := hash.File(s.layout.Destination(path))
		if err != nil {
			s.logger.Debug("skipping unreadable new path", "path", path, "error", err)
			continue
		}
		entries = append(entries, DiffEntry{Path: path, Status: StatusNew, LiveDigest: live})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// classify applies the four-way rule to one manifest entry. Classification
// is strictly digest-based; textual differences are a viewer's concern.
func (s *Service) classify(me ManifestEntry) DiffEntry {
	d := DiffEntry{Path: me.Path, RepoDigest: me.Digest}
	dest := s.layout.Destination(me.Path)

	info, err := os.Lstat(dest)
	if os.IsNotExist(err) {
		d.Status = StatusMissing
		return d
	}
	if err != nil {
		// Unreadable live state: report as modified rather than pretending
		// it is unchanged.
		d.Status = StatusModified
		d.Detail = err.Error()
		return d
	}

	if me.Mode == ModeSymlink {
		return s.classifySymlink(me, dest, info, d)
	}
	if me.Encrypted {
		return s.classifyEncrypted(me, dest, d)
	}

	live, err := hash.File(dest)
	if err != nil {
		d.Status = StatusModified
		d.Detail = err.Error()
		return d
	}
	d.LiveDigest = live
	if live == me.Digest {
		d.Status = StatusIdentical
	} else {
		d.Status = StatusModified
	}
	return d
}

// classifySymlink compares the destination's link target against the
// repository copy path. Content is irrelevant for link-mode entries: the
// applied state is "a symlink into the repository", nothing else.
func (s *Service) classifySymlink(me ManifestEntry, dest string, info fs.FileInfo, d DiffEntry) DiffEntry {
	want := s.layout.CompiledPath(me.Path)

	if info.Mode()&fs.ModeSymlink == 0 {
		d.Status = StatusModified
		d.Detail = "expected a symlink"
		if live, err := hash.File(dest); err == nil {
			d.LiveDigest = live
		}
		return d
	}

	target, err := os.Readlink(dest)
	if err != nil {
		d.Status = StatusModified
		d.Detail = err.Error()
		return d
	}
	d.LiveDigest = hash.Target(target)
	if target == want {
		d.Status = StatusIdentical
	} else {
		d.Status = StatusModified
		d.Detail = fmt.Sprintf("links to %s", target)
	}
	return d
}

// classifyEncrypted compares by decrypted digest: the repository ciphertext
// is decrypted in memory and its plaintext digest compared against the live
// file's digest. Failure to decrypt is its own status so callers and tests
// can tell "changed" from "cannot judge".
func (s *Service) classifyEncrypted(me ManifestEntry, dest string, d DiffEntry) DiffEntry {
	live, err := hash.File(dest)
	if err != nil {
		d.Status = StatusModified
		d.Detail = err.Error()
		return d
	}
	d.LiveDigest = live

	if s.secrets == nil {
		d.Status = StatusDecryptFailed
		d.Detail = "no secrets provider configured"
		return d
	}

	cipher, err := os.ReadFile(s.layout.CompiledPath(me.Path))
	if err != nil {
		d.Status = StatusModified
		d.Detail = fmt.Sprintf("repository copy unreadable: %v", err)
		return d
	}
	plain, err := s.secrets.Decrypt(cipher)
	if err != nil {
		d.Status = StatusDecryptFailed
		d.Detail = err.Error()
		return d
	}

	repoPlain := hash.Bytes(plain)
	d.RepoDigest = repoPlain
	if live == repoPlain {
		d.Status = StatusIdentical
	} else {
		d.Status = StatusModified
	}
	return d
}
