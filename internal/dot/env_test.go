package dot_test

import (
	"path/filepath"
	"testing"

	"dotkeep/internal/dot"
)

// newTestLayout builds a layout over a temp home with the repository inside
// it, the way a default installation lays things out.
func newTestLayout(t *testing.T) dot.Layout {
	t.Helper()
	home := t.TempDir()
	profile := filepath.Join(home, ".dotkeep", "profiles", "default")
	return dot.Layout{
		Home:         home,
		CompiledDir:  filepath.Join(profile, "compiled"),
		ManifestPath: filepath.Join(profile, "manifest.lock"),
		DefaultMode:  dot.ModeSymlink,
	}
}
