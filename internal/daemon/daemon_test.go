package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
	"dotkeep/internal/testutil"
)

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

func TestRunning_Lifecycle(t *testing.T) {
	t.Parallel()
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")

	if _, running := Running(pidPath); running {
		t.Fatal("Running() = true before any pid file exists")
	}

	// Our own PID is alive by definition.
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}
	pid, running := Running(pidPath)
	if !running || pid != os.Getpid() {
		t.Errorf("Running() = %d/%v, want own pid and true", pid, running)
	}

	if err := removePIDFile(pidPath); err != nil {
		t.Fatal(err)
	}
	if _, running := Running(pidPath); running {
		t.Error("Running() = true after pid file removal")
	}
}

func TestRunning_StaleAndGarbage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// No realistic system hands out this PID, so the file is stale.
	stale := filepath.Join(dir, "stale.pid")
	testutil.WriteFile(t, stale, "999999999")
	if _, running := Running(stale); running {
		t.Error("Running() = true for a stale pid")
	}

	garbage := filepath.Join(dir, "garbage.pid")
	testutil.WriteFile(t, garbage, "not-a-pid")
	if _, running := Running(garbage); running {
		t.Error("Running() = true for a garbage pid file")
	}
}

func TestStop_NotRunning(t *testing.T) {
	t.Parallel()
	err := Stop(filepath.Join(t.TempDir(), "daemon.pid"))
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	logger := dot.NewNopLogger()
	nop := func(context.Context, string) error { return nil }

	if _, err := New("p", nil, config.DaemonConfig{Mode: "sometimes"}, nop, logger); err == nil {
		t.Error("New() with unknown mode expected error")
	}
	if _, err := New("p", nil, config.DaemonConfig{Mode: "auto"}, nil, logger); err == nil {
		t.Error("New() auto without snapshot function expected error")
	}
	if _, err := New("p", nil, config.DaemonConfig{}, nil, logger); err != nil {
		t.Errorf("New() default ask mode error = %v", err)
	}
}

func TestDaemon_RejectsSecondInstance(t *testing.T) {
	t.Parallel()
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := New(pidPath, []string{t.TempDir()}, config.DaemonConfig{}, nil, dot.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestDaemon_AutoSnapshotDebounce(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")

	var mu sync.Mutex
	var messages []string
	snap := func(ctx context.Context, message string) error {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, message)
		return nil
	}

	d, err := New(pidPath, []string{home}, config.DaemonConfig{Mode: "auto", DebounceMS: 100}, snap, dot.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	waitForFile(t, pidPath)

	// A burst of writes inside one debounce window.
	for i := 0; i < 3; i++ {
		testutil.WriteFile(t, filepath.Join(home, fmt.Sprintf(".zshrc%d", i)), "export X=1")
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(messages)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	// Leave room for a spurious second fire before counting.
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	got := append([]string(nil), messages...)
	mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("burst produced %d snapshots, want 1: %v", len(got), got)
	}
	if !strings.HasPrefix(got[0], "auto: ") || !strings.Contains(got[0], "change(s) detected") {
		t.Errorf("snapshot message = %q", got[0])
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, running := Running(pidPath); running {
		t.Error("pid file survived shutdown")
	}
}

func TestDaemon_AskModeNeverSnapshots(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")

	called := false
	snap := func(context.Context, string) error { called = true; return nil }

	d, err := New(pidPath, []string{home}, config.DaemonConfig{Mode: "ask", DebounceMS: 50}, snap, dot.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	waitForFile(t, pidPath)

	testutil.WriteFile(t, filepath.Join(home, ".zshrc"), "export X=1")
	time.Sleep(400 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if called {
		t.Error("snapshot function called in ask mode")
	}
}

func TestWatchRoots(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	repoDir := filepath.Join(home, ".dotkeep")
	for _, dir := range []string{
		filepath.Join(home, ".config/nvim"),
		filepath.Join(repoDir, "profiles/default/compiled"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	layout := dot.Layout{Home: home, DefaultMode: dot.ModeSymlink}

	tracked := []dot.TrackedPath{
		{Path: "~/.zshrc"},
		{Path: "~/.vimrc"}, // same parent, deduplicated
		{Path: "~/.config/nvim/init.vim"},
		{Path: "~/.dotkeep/profiles/default/compiled/.zshrc"}, // own writes, excluded
		{Path: "~/.missing/tool.conf"},                        // parent does not exist
	}

	got := WatchRoots(tracked, layout, repoDir)
	want := []string{home, filepath.Join(home, ".config/nvim")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WatchRoots() = %v, want %v", got, want)
	}
}
