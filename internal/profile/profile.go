// Package profile manages named profiles inside the repository directory.
// Each profile owns its own manifest and compiled tree under
// profiles/<name>/; the active_profile file records which one commands
// operate on.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dotkeep/internal/dot"
)

// DefaultName is the profile used until the user switches to another one.
const DefaultName = "default"

const (
	activeFile  = "active_profile"
	profilesDir = "profiles"
)

// Manager reads and mutates the profile area of a repository directory.
type Manager struct {
	repoDir string
	logger  dot.Logger
}

// NewManager creates a Manager rooted at the absolute repository directory.
func NewManager(repoDir string, logger dot.Logger) *Manager {
	return &Manager{repoDir: repoDir, logger: logger}
}

// Active returns the profile named by the active_profile file, or
// DefaultName when the file does not exist yet.
func (m *Manager) Active() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.repoDir, activeFile))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultName, nil
		}
		return "", fmt.Errorf("reading active profile: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return DefaultName, nil
	}
	if err := validateName(name); err != nil {
		return "", fmt.Errorf("active profile file is corrupt: %w", err)
	}
	return name, nil
}

// List returns the known profile names sorted ascending. The active
// profile is always included, whether or not its directory exists yet.
func (m *Manager) List() ([]string, error) {
	active, err := m.Active()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{active: {}}

	entries, err := os.ReadDir(filepath.Join(m.repoDir, profilesDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() {
			seen[de.Name()] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Create makes a new empty profile. The name must not be in use.
func (m *Manager) Create(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := os.Stat(m.Dir(name)); err == nil {
		return fmt.Errorf("profile %s already exists", name)
	}
	if err := m.Ensure(name); err != nil {
		return err
	}
	m.logger.Info("profile created", "name", name)
	return nil
}

// Switch makes name the active profile. The profile must exist, except
// for the default profile, which is created on demand.
func (m *Manager) Switch(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, err := os.Stat(m.Dir(name)); err != nil {
		if name != DefaultName {
			return fmt.Errorf("profile %s does not exist, create it first", name)
		}
		if err := m.Ensure(name); err != nil {
			return err
		}
	}
	if err := dot.WriteFileAtomic(filepath.Join(m.repoDir, activeFile), []byte(name+"\n"), 0644); err != nil {
		return fmt.Errorf("recording active profile: %w", err)
	}
	m.logger.Info("profile switched", "name", name)
	return nil
}

// Remove deletes a profile and everything it tracks. The active profile
// cannot be removed.
func (m *Manager) Remove(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	active, err := m.Active()
	if err != nil {
		return err
	}
	if name == active {
		return fmt.Errorf("cannot remove the active profile %s, switch away first", name)
	}
	if _, err := os.Stat(m.Dir(name)); err != nil {
		return fmt.Errorf("profile %s does not exist", name)
	}
	if err := os.RemoveAll(m.Dir(name)); err != nil {
		return fmt.Errorf("removing profile %s: %w", name, err)
	}
	m.logger.Info("profile removed", "name", name)
	return nil
}

// Ensure creates the profile's directories if they are missing.
func (m *Manager) Ensure(name string) error {
	if err := os.MkdirAll(m.CompiledDir(name), 0755); err != nil {
		return fmt.Errorf("creating profile %s: %w", name, err)
	}
	return nil
}

// Dir returns the profile's directory.
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.repoDir, profilesDir, name)
}

// CompiledDir returns the profile's repository-copy tree.
func (m *Manager) CompiledDir(name string) string {
	return filepath.Join(m.Dir(name), "compiled")
}

// ManifestPath returns the profile's manifest file.
func (m *Manager) ManifestPath(name string) string {
	return filepath.Join(m.Dir(name), "manifest.lock")
}

// Layout builds the filesystem layout commands use for the named profile.
func (m *Manager) Layout(home, name string, mode dot.Mode) dot.Layout {
	return dot.Layout{
		Home:         home,
		CompiledDir:  m.CompiledDir(name),
		ManifestPath: m.ManifestPath(name),
		DefaultMode:  mode,
	}
}

// validateName rejects names that would escape the profiles directory or
// collide with hidden files.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name is empty")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid profile name %q", name)
	}
	return nil
}
