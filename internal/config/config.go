// Package config owns the dotkeep configuration file: the struct model, the
// defaults, and a Manager for reading and writing it as TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

// Config represents the main configuration for dotkeep.
type Config struct {
	General   GeneralConfig           `toml:"general"`
	Scan      ScanConfig              `toml:"scan"`
	Files     map[string]FileOverride `toml:"files"`
	Secrets   SecretsConfig           `toml:"secrets"`
	Hooks     HooksConfig             `toml:"hooks"`
	Snapshots SnapshotsConfig         `toml:"snapshots"`
	Daemon    DaemonConfig            `toml:"daemon"`
	Remote    RemoteConfig            `toml:"remote"`
	Journal   JournalConfig           `toml:"journal"`
	Log       LogConfig               `toml:"log"`
}

// GeneralConfig holds repository-wide settings.
type GeneralConfig struct {
	RepoDir     string `toml:"repo_dir"`     // defaults to ~/.dotkeep
	DefaultMode string `toml:"default_mode"` // "symlink" (default) or "copy"
	Backup      bool   `toml:"backup"`       // save replaced destinations on apply
}

// ScanConfig selects which paths are tracked. Tracked entries are always
// included; include patterns are walked and matched; exclude patterns win
// over includes.
type ScanConfig struct {
	Tracked []string `toml:"tracked"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// FileOverride adjusts handling of a single path. The map key is the path
// in its "~/" form.
type FileOverride struct {
	Mode    string `toml:"mode,omitempty"` // "symlink" or "copy"
	Exclude bool   `toml:"exclude,omitempty"`
}

// SecretsConfig holds paths to the age key material.
type SecretsConfig struct {
	Type          string `toml:"type"` // "age" (default) or "test"
	KeyFile       string `toml:"key_file"`
	RecipientFile string `toml:"recipient_file"`
}

// HooksConfig lists shell commands run around mutating operations. Each
// command runs via "sh -c" with a shared timeout.
type HooksConfig struct {
	PreApply     []string `toml:"pre_apply"`
	PostApply    []string `toml:"post_apply"`
	PreSnapshot  []string `toml:"pre_snapshot"`
	PostSnapshot []string `toml:"post_snapshot"`
	TimeoutSecs  int      `toml:"timeout_seconds"`
}

// Timeout returns the per-command hook timeout.
func (h HooksConfig) Timeout() time.Duration {
	if h.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(h.TimeoutSecs) * time.Second
}

// SnapshotsConfig holds retention criteria for pruning. A snapshot is kept
// if it satisfies any configured criterion.
type SnapshotsConfig struct {
	KeepCount int    `toml:"keep_count"`
	KeepAge   string `toml:"keep_age"`  // e.g. "30d"; h/d/w/m/y units
	KeepSize  string `toml:"keep_size"` // e.g. "1 GB"
}

// Age parses the keep_age setting.
func (s SnapshotsConfig) Age() (time.Duration, error) {
	return ParseKeepAge(s.KeepAge)
}

// SizeBytes parses the keep_size setting.
func (s SnapshotsConfig) SizeBytes() (int64, error) {
	if s.KeepSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s.KeepSize)
	if err != nil {
		return 0, fmt.Errorf("invalid keep_size %q: %w", s.KeepSize, err)
	}
	return int64(n), nil
}

// DaemonConfig controls the file-watching daemon.
type DaemonConfig struct {
	Mode       string `toml:"mode"`        // "ask" (default) or "auto"
	DebounceMS int    `toml:"debounce_ms"` // quiet period after the last change
}

// Debounce returns the event debounce window.
func (d DaemonConfig) Debounce() time.Duration {
	if d.DebounceMS <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// RemoteConfig selects an off-machine bundle backend.
// This uses a tagged union pattern - the Kind field determines which other
// fields are relevant.
type RemoteConfig struct {
	Kind string `toml:"kind"` // "localfs", "s3", or "webdav"; empty disables

	// localfs-specific fields (only used when Kind == "localfs")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Kind == "s3")
	Bucket    string `toml:"bucket,omitempty"`
	Prefix    string `toml:"prefix,omitempty"`
	Region    string `toml:"region,omitempty"`
	Endpoint  string `toml:"endpoint,omitempty"`
	AccessKey string `toml:"access_key,omitempty"`
	SecretKey string `toml:"secret_key,omitempty"`

	// WebDAV-specific fields (only used when Kind == "webdav")
	URL      string `toml:"url,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

// JournalConfig controls the local operation journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"` // defaults to <repo_dir>/journal.db
}

// LogConfig controls file logging.
type LogConfig struct {
	Dir   string `toml:"dir,omitempty"` // defaults to the XDG state directory
	Level string `toml:"level"`         // debug, info, warn, error
}

// Default returns a Config populated with every default value. Read decodes
// on top of this, so absent keys keep their defaults.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			RepoDir:     "~/.dotkeep",
			DefaultMode: "symlink",
			Backup:      true,
		},
		Scan: ScanConfig{
			Include: []string{
				"~/.config/**",
				"~/.zshrc",
				"~/.bashrc",
				"~/.profile",
				"~/.gitconfig",
				"~/.gitignore_global",
				"~/.vimrc",
				"~/.tmux.conf",
				"~/.ssh/config",
			},
			Exclude: []string{
				"~/.ssh/**",
				"~/.gnupg/**",
				"**/*.key",
				"**/*.pem",
				"**/node_modules/**",
				"**/.git/**",
				"**/target/**",
				"**/dist/**",
				"**/build/**",
				"**/.DS_Store",
				"**/.env",
				"**/secrets/**",
				"**/cache/**",
				"**/Cache/**",
				"**/tmp/**",
				"~/.local/share/Trash/**",
			},
		},
		Secrets: SecretsConfig{
			Type:          "age",
			KeyFile:       "~/.dotkeep/identity.txt",
			RecipientFile: "~/.dotkeep/recipient.txt",
		},
		Hooks:   HooksConfig{TimeoutSecs: 30},
		Daemon:  DaemonConfig{Mode: "ask", DebounceMS: 1500},
		Journal: JournalConfig{Enabled: true},
		Log:     LogConfig{Level: "info"},
	}
}

// ParseKeepAge parses a retention age such as "36h", "30d", "4w", "6m" or
// "1y". Months count as 30 days and years as 365. Empty means unset.
func ParseKeepAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid keep_age %q", s)
	}
	day := 24 * time.Hour
	switch s[len(s)-1] {
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	case 'm':
		return time.Duration(n) * 30 * day, nil
	case 'y':
		return time.Duration(n) * 365 * day, nil
	default:
		return 0, fmt.Errorf("invalid keep_age %q (want an h, d, w, m or y suffix)", s)
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of the defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Load reads the config file at path, or returns the defaults when no file
// exists yet. A present but malformed file is an error, never silently
// replaced with defaults.
func Load(path string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes a Config to the specified file path, replacing any existing
// file. Used by commands that rewrite configuration, such as discover.
func Save(path string, cfg *Config) error {
	return writeToFile(path, cfg)
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided
// Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
