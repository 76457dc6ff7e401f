// Package remote moves repository state between machines as bundles.
// A bundle is a zstd-compressed tar of the profile's metadata, manifest and
// repository copies. Backends store bundles under timestamped names, and
// pulling always selects the newest one.
package remote

import (
	"fmt"
	"strings"
	"time"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// bundleSuffix marks backend entries that hold bundles. Anything else in
// the storage area is ignored.
const bundleSuffix = ".tar.zst"

// BundleName returns the storage name for a bundle created now. Names sort
// lexicographically by creation time, which is what Pull relies on.
func BundleName(profile string, now time.Time) string {
	return fmt.Sprintf("%s-%s%s", profile, now.UTC().Format("20060102_150405"), bundleSuffix)
}

// IsBundleName reports whether a storage entry looks like a bundle.
func IsBundleName(name string) bool {
	return strings.HasSuffix(name, bundleSuffix)
}

// New creates the backend selected by cfg.Kind.
func New(cfg config.RemoteConfig, logger dot.Logger) (dot.RemoteBackend, error) {
	switch cfg.Kind {
	case "":
		return nil, fmt.Errorf("no remote configured, set [remote] kind in the config")
	case "localfs":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("localfs remote requires dir to be set")
		}
		b, err := NewLocalFS(cfg.Dir, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "s3":
		b, err := NewS3(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "webdav":
		b, err := NewWebDAV(cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown remote kind: %s", cfg.Kind)
	}
}
