package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
	"dotkeep/internal/journal"
)

// testConfig returns a config rooted in a throwaway home directory. HOME is
// overridden so os.UserHomeDir resolves into the temp dir and nothing
// touches the real home.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.Default()
	cfg.Secrets.Type = "test"
	cfg.Log.Dir = filepath.Join(home, "logs")
	cfg.Scan.Include = nil
	cfg.Scan.Exclude = nil
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *App {
	t.Helper()
	a, err := New(cfg, operation)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNew_WiresRepository(t *testing.T) {
	cfg := testConfig(t)

	a := newTestApp(t, cfg, "doctor")

	home, _ := os.UserHomeDir()
	wantRepo := filepath.Join(home, ".dotkeep")
	if a.RepoDir() != wantRepo {
		t.Errorf("RepoDir() = %q, want %q", a.RepoDir(), wantRepo)
	}
	if a.Profile() != "default" {
		t.Errorf("Profile() = %q, want %q", a.Profile(), "default")
	}

	compiled := filepath.Join(wantRepo, "profiles", "default", "compiled")
	if _, err := os.Stat(compiled); err != nil {
		t.Errorf("compiled dir not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wantRepo, "journal.db")); err != nil {
		t.Errorf("journal db not created: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestApp_StatusWithoutManifest(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "status")
	defer a.Close()

	if _, err := a.Status(); !errors.Is(err, dot.ErrNoManifest) {
		t.Fatalf("Status() error = %v, want ErrNoManifest", err)
	}
}

func TestApp_MutatingOperationIsJournaled(t *testing.T) {
	cfg := testConfig(t)

	a := newTestApp(t, cfg, "profile.create")
	if err := a.CreateProfile("work"); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	j, err := journal.Open(filepath.Join(home, ".dotkeep", "journal.db"), dot.RealClock{})
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	defer j.Close()

	runs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Recent() returned %d runs, want 1", len(runs))
	}
	if runs[0].Operation != "profile.create" {
		t.Errorf("Operation = %q, want %q", runs[0].Operation, "profile.create")
	}
	if runs[0].Status != journal.StatusOK {
		t.Errorf("Status = %q, want %q", runs[0].Status, journal.StatusOK)
	}
	if runs[0].Detail != "created profile work" {
		t.Errorf("Detail = %q, want %q", runs[0].Detail, "created profile work")
	}
	if !runs[0].FinishedAt.Valid {
		t.Error("FinishedAt not set after Close")
	}
}

func TestApp_ReadOnlyOperationLeavesNoJournalRow(t *testing.T) {
	cfg := testConfig(t)

	a := newTestApp(t, cfg, "status")
	a.Status() // fails without a manifest, which is fine here
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	j, err := journal.Open(filepath.Join(home, ".dotkeep", "journal.db"), dot.RealClock{})
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	defer j.Close()

	runs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("Recent() returned %d runs for a read-only command, want 0", len(runs))
	}
}

func TestApp_EncryptDecryptRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "secrets.encrypt")
	defer a.Close()

	home, _ := os.UserHomeDir()
	plainPath := filepath.Join(home, "token.txt")
	if err := os.WriteFile(plainPath, []byte("hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := a.EncryptFile("~/token.txt")
	if err != nil {
		t.Fatalf("EncryptFile() error = %v", err)
	}
	if out != plainPath+".age" {
		t.Errorf("EncryptFile() out = %q, want %q", out, plainPath+".age")
	}
	cipher, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(cipher, []byte("hunter2\n")) {
		t.Error("ciphertext equals plaintext")
	}

	// Decrypt restores the original bytes with private permissions.
	os.Remove(plainPath)
	back, err := a.DecryptFile("~/token.txt.age")
	if err != nil {
		t.Fatalf("DecryptFile() error = %v", err)
	}
	got, err := os.ReadFile(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hunter2\n" {
		t.Errorf("decrypted content = %q, want %q", got, "hunter2\n")
	}
	info, err := os.Stat(back)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("decrypted file mode = %o, want 0600", perm)
	}
}

func TestApp_DecryptFileRejectsPlainPath(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg, "secrets.decrypt")
	defer a.Close()

	_, err := a.DecryptFile("~/token.txt")
	if err == nil || !strings.Contains(err.Error(), ".age") {
		t.Fatalf("DecryptFile() error = %v, want a complaint about the .age suffix", err)
	}
}

func TestApp_DiscoverAndTrack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scan.Include = []string{"~/.zshrc"}

	home := os.Getenv("HOME")
	if err := os.WriteFile(filepath.Join(home, ".zshrc"), []byte("export EDITOR=vim\n"), 0644); err != nil {
		t.Fatal(err)
	}

	a := newTestApp(t, cfg, "discover")
	defer a.Close()

	found, err := a.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Discover() returned %d entries, want 1: %+v", len(found), found)
	}
	if found[0].Path != "~/.zshrc" {
		t.Errorf("Path = %q, want %q", found[0].Path, "~/.zshrc")
	}
	if found[0].InManifest {
		t.Error("InManifest = true before any capture, want false")
	}

	configPath := filepath.Join(a.RepoDir(), "config.toml")
	added, err := a.TrackPaths(configPath, []string{"~/.zshrc"})
	if err != nil {
		t.Fatalf("TrackPaths() error = %v", err)
	}
	if added != 1 {
		t.Errorf("TrackPaths() added = %d, want 1", added)
	}

	loaded, err := config.ReadFromFile(configPath)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	hasPath := false
	for _, p := range loaded.Scan.Tracked {
		if p == "~/.zshrc" {
			hasPath = true
		}
	}
	if !hasPath {
		t.Errorf("written config tracked = %v, want to contain ~/.zshrc", loaded.Scan.Tracked)
	}

	// A second run adds nothing.
	added, err = a.TrackPaths(configPath, []string{"~/.zshrc"})
	if err != nil {
		t.Fatalf("TrackPaths() second run error = %v", err)
	}
	if added != 0 {
		t.Errorf("TrackPaths() second run added = %d, want 0", added)
	}
}
