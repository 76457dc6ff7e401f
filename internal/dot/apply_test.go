package dot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dotkeep/internal/dot"
	"dotkeep/internal/hash"
	"dotkeep/internal/testutil"
)

func applyService(t *testing.T, layout dot.Layout, secrets dot.SecretsProvider, hooks dot.HookRunner) *dot.Service {
	t.Helper()
	return dot.NewService(layout, secrets, nil, hooks, nil, testutil.FixedClock(), dot.NewNopLogger())
}

// backupsIn lists backup files under dir, recursively.
func backupsIn(t *testing.T, dir string) []string {
	t.Helper()
	var found []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(filepath.Base(path), ".bak.") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return found
}

func TestApply_CreatesSymlink(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.zshrc", "zsh config", dot.ModeSymlink)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied() != 1 || report.Failed() != 0 {
		t.Fatalf("applied = %d, failed = %d, want 1/0", report.Applied(), report.Failed())
	}

	dest := filepath.Join(layout.Home, ".zshrc")
	target, err := os.Readlink(dest)
	if err != nil {
		t.Fatalf("destination is not a symlink: %v", err)
	}
	if want := layout.CompiledPath("~/.zshrc"); target != want {
		t.Errorf("link target = %q, want %q", target, want)
	}
}

func TestApply_CopyContentAndPermissions(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.netrc", "machine example login u", dot.ModeCopy)
	e.Permissions = 0600
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied() != 1 {
		t.Fatalf("applied = %d, want 1", report.Applied())
	}

	dest := filepath.Join(layout.Home, ".netrc")
	if got := testutil.ReadFile(t, dest); got != "machine example login u" {
		t.Errorf("content = %q", got)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{
		entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeSymlink),
		entryFor(t, layout, "~/.gitconfig", "git", dot.ModeCopy),
	}}
	m.Sort()
	svc := applyService(t, layout, nil, nil)
	opts := dot.ApplyOptions{Backup: true}

	first, err := svc.Apply(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if first.Applied() != 2 {
		t.Fatalf("first run applied = %d, want 2", first.Applied())
	}

	second, err := svc.Apply(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if second.Applied() != 0 || second.Skipped() != 2 {
		t.Errorf("second run applied = %d, skipped = %d, want 0/2", second.Applied(), second.Skipped())
	}
	if got := backupsIn(t, layout.Home); len(got) != 0 {
		t.Errorf("idempotent re-apply produced backups: %v", got)
	}
}

func TestApply_BackupInvariant(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.zshrc", "new content", dot.ModeCopy)
	dest := filepath.Join(layout.Home, ".zshrc")
	testutil.WriteFile(t, dest, "old content")
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{Backup: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	res := report.Results[0]
	if res.Action != dot.ActionApplied {
		t.Fatalf("action = %q, err = %v", res.Action, res.Err)
	}

	// The fixed clock pins the backup name.
	wantBackup := dest + ".bak.20240115-103000"
	if res.BackupPath != wantBackup {
		t.Errorf("BackupPath = %q, want %q", res.BackupPath, wantBackup)
	}
	if got := testutil.ReadFile(t, wantBackup); got != "old content" {
		t.Errorf("backup content = %q, want old content", got)
	}
	if got := testutil.ReadFile(t, dest); got != "new content" {
		t.Errorf("destination content = %q, want new content", got)
	}
}

func TestApply_NoBackupWhenDisabled(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.zshrc", "new", dot.ModeCopy)
	dest := filepath.Join(layout.Home, ".zshrc")
	testutil.WriteFile(t, dest, "old")
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Results[0].BackupPath != "" {
		t.Errorf("BackupPath = %q, want empty", report.Results[0].BackupPath)
	}
	if got := backupsIn(t, layout.Home); len(got) != 0 {
		t.Errorf("backups created with Backup disabled: %v", got)
	}
	if got := testutil.ReadFile(t, dest); got != "new" {
		t.Errorf("destination content = %q, want new", got)
	}
}

func TestApply_MissingDestinationNeverBackedUp(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeCopy)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{Backup: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Results[0].BackupPath != "" {
		t.Errorf("BackupPath = %q for a missing destination, want empty", report.Results[0].BackupPath)
	}
}

func TestApply_SafetyOutsideHome(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	outside := filepath.Join(t.TempDir(), "app.conf")
	e := entryFor(t, layout, outside, "conf", dot.ModeCopy)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}
	svc := applyService(t, layout, nil, nil)

	t.Run("refused by default", func(t *testing.T) {
		report, err := svc.Apply(context.Background(), m, dot.ApplyOptions{})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		res := report.Results[0]
		if res.Action != dot.ActionFailed {
			t.Fatalf("action = %q, want failed", res.Action)
		}
		var sv *dot.SafetyViolationError
		if !errors.As(res.Err, &sv) {
			t.Fatalf("err = %v, want SafetyViolationError", res.Err)
		}
		if _, err := os.Lstat(outside); !os.IsNotExist(err) {
			t.Error("safety violation still wrote the destination")
		}
	})

	t.Run("allowed when opted in", func(t *testing.T) {
		report, err := svc.Apply(context.Background(), m, dot.ApplyOptions{AllowOutsideHome: true})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if report.Applied() != 1 {
			t.Fatalf("applied = %d, want 1 (err %v)", report.Applied(), report.Results[0].Err)
		}
		if got := testutil.ReadFile(t, outside); got != "conf" {
			t.Errorf("content = %q, want conf", got)
		}
	})
}

func TestApply_PerEntryIsolation(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	good := entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeCopy)
	// The repository copy for this entry is gone.
	broken := dot.ManifestEntry{
		Path:        "~/.vimrc",
		Digest:      hash.Bytes([]byte("vim")),
		Mode:        dot.ModeCopy,
		Permissions: 0644,
	}
	m := &dot.Manifest{Entries: []dot.ManifestEntry{good, broken}}
	m.Sort()

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied() != 1 || report.Failed() != 1 {
		t.Fatalf("applied = %d, failed = %d, want 1/1", report.Applied(), report.Failed())
	}
	if got := testutil.ReadFile(t, filepath.Join(layout.Home, ".zshrc")); got != "zsh" {
		t.Error("healthy sibling was not applied")
	}
}

func TestApply_PreHookFailureAbortsBeforeMutation(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeCopy)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	hooks := testutil.NewRecordingHooks()
	hooks.FailStage(dot.StagePreApply, errors.New("exit status 1"))

	_, err := applyService(t, layout, nil, hooks).Apply(context.Background(), m, dot.ApplyOptions{})
	var herr *dot.HookError
	if !errors.As(err, &herr) {
		t.Fatalf("Apply() error = %v, want HookError", err)
	}
	if herr.Stage != dot.StagePreApply {
		t.Errorf("Stage = %q, want pre_apply", herr.Stage)
	}
	if _, err := os.Lstat(filepath.Join(layout.Home, ".zshrc")); !os.IsNotExist(err) {
		t.Error("failed pre hook did not prevent mutation")
	}
	if got := hooks.Ran(); len(got) != 1 || got[0] != dot.StagePreApply {
		t.Errorf("stages run = %v, want [pre_apply]", got)
	}
}

func TestApply_HookOrder(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	e := entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeCopy)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}
	hooks := testutil.NewRecordingHooks()

	report, err := applyService(t, layout, nil, hooks).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied() != 1 {
		t.Fatalf("applied = %d, want 1", report.Applied())
	}
	got := hooks.Ran()
	want := []string{dot.StagePreApply, dot.StagePostApply}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("stages run = %v, want %v", got, want)
	}
}

func TestApply_OnlyFilter(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	m := &dot.Manifest{Entries: []dot.ManifestEntry{
		entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeCopy),
		entryFor(t, layout, "~/.vimrc", "vim", dot.ModeCopy),
	}}
	m.Sort()

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{Only: []string{"~/.vimrc"}})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Path != "~/.vimrc" {
		t.Fatalf("results = %+v, want only ~/.vimrc", report.Results)
	}
	if _, err := os.Lstat(filepath.Join(layout.Home, ".zshrc")); !os.IsNotExist(err) {
		t.Error("filtered-out entry was applied")
	}
}

func TestApply_EncryptedWritesPlaintext(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	secrets := testutil.NewTestSecrets()

	cipher, err := secrets.Encrypt([]byte("TOKEN=a\n"))
	if err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, layout.CompiledPath("~/.env.secret.age"), string(cipher))
	e := dot.ManifestEntry{
		Path:        "~/.env.secret.age",
		Digest:      hash.Bytes([]byte("TOKEN=a\n")),
		Mode:        dot.ModeCopy,
		Permissions: 0600,
		Encrypted:   true,
	}
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, secrets, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied() != 1 {
		t.Fatalf("applied = %d, want 1 (err %v)", report.Applied(), report.Results[0].Err)
	}

	// Plaintext lands at the unsuffixed destination.
	dest := filepath.Join(layout.Home, ".env.secret")
	if got := testutil.ReadFile(t, dest); got != "TOKEN=a\n" {
		t.Errorf("content = %q, want decrypted plaintext", got)
	}
	if _, err := os.Lstat(dest + ".age"); !os.IsNotExist(err) {
		t.Error("suffixed path exists in the live tree")
	}
}

func TestApply_EncryptedWithoutProviderFails(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	testutil.WriteFile(t, layout.CompiledPath("~/.env.secret.age"), "whatever")
	e := dot.ManifestEntry{
		Path:      "~/.env.secret.age",
		Digest:    hash.Bytes([]byte("x")),
		Mode:      dot.ModeCopy,
		Encrypted: true,
	}
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	res := report.Results[0]
	if res.Action != dot.ActionFailed {
		t.Fatalf("action = %q, want failed", res.Action)
	}
	var serr *dot.SecretsError
	if !errors.As(res.Err, &serr) {
		t.Errorf("err = %v, want SecretsError", res.Err)
	}
	if _, err := os.Lstat(filepath.Join(layout.Home, ".env.secret")); !os.IsNotExist(err) {
		t.Error("destination written despite decryption failure")
	}
}

func TestApply_ReplacesStrayState(t *testing.T) {
	t.Parallel()

	t.Run("symlink over regular file", func(t *testing.T) {
		t.Parallel()
		layout := newTestLayout(t)
		e := entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeSymlink)
		dest := filepath.Join(layout.Home, ".zshrc")
		testutil.WriteFile(t, dest, "plain old file")
		m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

		report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if report.Applied() != 1 {
			t.Fatalf("applied = %d (err %v)", report.Applied(), report.Results[0].Err)
		}
		if _, err := os.Readlink(dest); err != nil {
			t.Errorf("destination is not a symlink: %v", err)
		}
	})

	t.Run("regular file over stray symlink", func(t *testing.T) {
		t.Parallel()
		layout := newTestLayout(t)
		e := entryFor(t, layout, "~/.zshrc", "zsh", dot.ModeCopy)
		dest := filepath.Join(layout.Home, ".zshrc")
		testutil.Symlink(t, "/etc/zshrc", dest)
		m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

		report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if report.Applied() != 1 {
			t.Fatalf("applied = %d (err %v)", report.Applied(), report.Results[0].Err)
		}
		info, err := os.Lstat(dest)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			t.Error("destination is still a symlink")
		}
		if got := testutil.ReadFile(t, dest); got != "zsh" {
			t.Errorf("content = %q, want zsh", got)
		}
	})
}

func TestApply_VerifyCatchesStaleCompiled(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	// Manifest says one thing, the repository copy says another.
	testutil.WriteFile(t, layout.CompiledPath("~/.zshrc"), "tampered")
	e := dot.ManifestEntry{
		Path:        "~/.zshrc",
		Digest:      hash.Bytes([]byte("recorded content")),
		Mode:        dot.ModeCopy,
		Permissions: 0644,
	}
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}

	report, err := applyService(t, layout, nil, nil).Apply(context.Background(), m, dot.ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	res := report.Results[0]
	if res.Action != dot.ActionFailed {
		t.Fatalf("action = %q, want failed", res.Action)
	}
	var verr *dot.VerifyError
	if !errors.As(res.Err, &verr) {
		t.Errorf("err = %v, want VerifyError", res.Err)
	}
}

func TestApply_NilManifest(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)

	_, err := applyService(t, layout, nil, nil).Apply(context.Background(), nil, dot.ApplyOptions{})
	if err == nil {
		t.Fatal("Apply(nil) expected error")
	}
}

// The full drift-and-reconcile loop on one file, the way a user hits it.
func TestApply_EndToEnd(t *testing.T) {
	t.Parallel()
	layout := newTestLayout(t)
	dest := filepath.Join(layout.Home, ".zshrc")

	// Captured state: manifest + repository copy agree with the live file.
	e := entryFor(t, layout, "~/.zshrc", "alias ls='ls --color'\n", dot.ModeCopy)
	testutil.WriteFile(t, dest, "alias ls='ls --color'\n")
	m := &dot.Manifest{Entries: []dot.ManifestEntry{e}}
	svc := applyService(t, layout, nil, nil)

	// Local edit drifts the file.
	testutil.WriteFile(t, dest, "alias ls='ls --color'\nexport EDITOR=vim\n")

	diff, err := svc.Diff(m, nil)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if diff[0].Status != dot.StatusModified {
		t.Fatalf("status before apply = %q, want modified", diff[0].Status)
	}

	report, err := svc.Apply(context.Background(), m, dot.ApplyOptions{Backup: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied() != 1 {
		t.Fatalf("applied = %d (err %v)", report.Applied(), report.Results[0].Err)
	}

	diff, err = svc.Diff(m, nil)
	if err != nil {
		t.Fatalf("Diff() after apply error = %v", err)
	}
	if diff[0].Status != dot.StatusIdentical {
		t.Errorf("status after apply = %q, want identical", diff[0].Status)
	}
	if got := testutil.ReadFile(t, report.Results[0].BackupPath); !strings.Contains(got, "EDITOR=vim") {
		t.Error("backup does not hold the drifted content")
	}
}
