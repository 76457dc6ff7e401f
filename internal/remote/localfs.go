package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dotkeep/internal/dot"
)

// LocalFS stores bundles as files in a directory, typically a mounted
// network share or a synced folder.
type LocalFS struct {
	dir    string
	logger dot.Logger
}

// NewLocalFS creates the backend, making the directory if needed.
func NewLocalFS(dir string, logger dot.Logger) (*LocalFS, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating remote directory: %w", err)
	}
	return &LocalFS{dir: dir, logger: logger}, nil
}

// Push writes the bundle under name via a temp file and rename, so a
// torn upload never shows up as a valid bundle.
func (l *LocalFS) Push(ctx context.Context, bundle io.Reader, name string) error {
	tmp, err := os.CreateTemp(l.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, bundle)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(l.dir, name)); err != nil {
		return fmt.Errorf("publishing bundle: %w", err)
	}

	success = true
	l.logger.Info("bundle pushed", "dir", l.dir, "name", name, "bytes", written)
	return nil
}

// Pull opens the newest bundle in the directory.
func (l *LocalFS) Pull(ctx context.Context) (io.ReadCloser, string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, "", fmt.Errorf("reading remote directory: %w", err)
	}

	// Bundle names embed their creation time, so the lexicographic maximum
	// is the newest.
	var newest string
	for _, de := range entries {
		if de.IsDir() || !IsBundleName(de.Name()) {
			continue
		}
		if de.Name() > newest {
			newest = de.Name()
		}
	}
	if newest == "" {
		return nil, "", fmt.Errorf("no bundles found in %s", l.dir)
	}

	f, err := os.Open(filepath.Join(l.dir, newest))
	if err != nil {
		return nil, "", fmt.Errorf("opening bundle: %w", err)
	}
	return f, newest, nil
}

var _ dot.RemoteBackend = (*LocalFS)(nil)
