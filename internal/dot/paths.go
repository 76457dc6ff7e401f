package dot

import (
	"path/filepath"
	"strings"
)

// EncryptedSuffix marks entries whose repository copy is age-encrypted.
// The suffix is stripped from the destination path on apply.
const EncryptedSuffix = ".age"

// Layout describes where a profile's files live and how entry paths map to
// filesystem locations. Entry paths are stored home-relative with a "~/"
// prefix when under the home directory, absolute otherwise.
type Layout struct {
	Home         string // the user's home directory, absolute
	CompiledDir  string // repository copies for the active profile
	ManifestPath string
	DefaultMode  Mode
}

// ExpandHome resolves a "~/"-prefixed path against home. Other paths are
// returned unchanged.
func ExpandHome(home, path string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// ContractHome rewrites an absolute path under home to its "~/" form so
// manifests stay portable across machines.
func ContractHome(home, path string) string {
	rel, err := filepath.Rel(home, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return path
	}
	if rel == "." {
		return "~"
	}
	return "~/" + rel
}

// Expand resolves an entry path to an absolute filesystem path.
func (l Layout) Expand(path string) string {
	return ExpandHome(l.Home, path)
}

// Contract rewrites an absolute path to its manifest form.
func (l Layout) Contract(path string) string {
	return ContractHome(l.Home, path)
}

// CompiledPath returns the repository copy location for an entry path.
// Paths outside home keep their structure under an "abs" subtree.
func (l Layout) CompiledPath(path string) string {
	return filepath.Join(l.CompiledDir, treeRelative(path))
}

// Destination returns the absolute path an entry is applied to: the entry
// path expanded against home, with any encrypted suffix stripped.
func (l Layout) Destination(path string) string {
	return l.Expand(strings.TrimSuffix(path, EncryptedSuffix))
}

// UnderHome reports whether the absolute path abs lies within home.
func (l Layout) UnderHome(abs string) bool {
	rel, err := filepath.Rel(l.Home, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

// treeRelative maps an entry path to a relative path usable inside a
// repository or snapshot tree.
func treeRelative(path string) string {
	if path == "~" {
		return "."
	}
	if strings.HasPrefix(path, "~/") {
		return path[2:]
	}
	return filepath.Join("abs", strings.TrimPrefix(path, "/"))
}

// TreeRelative is the exported form used by the snapshot store so snapshot
// trees and repository copies share one path scheme.
func TreeRelative(path string) string { return treeRelative(path) }
