package app

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"dotkeep/internal/remote"
)

// PushRemote bundles the active profile's repository state and uploads it
// to the configured remote. Returns the bundle name and its size in bytes.
func (a *App) PushRemote(ctx context.Context) (string, int64, error) {
	if err := a.persist(); err != nil {
		return "", 0, err
	}

	backend, err := remote.New(a.cfg.Remote, a.logger)
	if err != nil {
		return "", 0, a.fail(err)
	}

	m, err := a.service.Manifest()
	if err != nil {
		return "", 0, a.fail(err)
	}

	layout := a.service.Layout()
	var total int64
	for _, e := range m.Entries {
		if info, err := os.Stat(layout.CompiledPath(e.Path)); err == nil {
			total += info.Size()
		}
	}
	meta := remote.Meta{
		Profile:    a.profile,
		CreatedAt:  a.clock.Now().UTC(),
		FileCount:  len(m.Entries),
		TotalBytes: total,
	}

	var buf bytes.Buffer
	if err := remote.Pack(&buf, layout, m, meta); err != nil {
		return "", 0, a.fail(fmt.Errorf("packing bundle: %w", err))
	}

	name := remote.BundleName(a.profile, a.clock.Now())
	size := int64(buf.Len())
	if err := backend.Push(ctx, &buf, name); err != nil {
		return "", 0, a.fail(fmt.Errorf("pushing %s: %w", name, err))
	}
	a.note("pushed %s (%d files)", name, meta.FileCount)
	return name, size, nil
}

// PullRemote downloads the most recent bundle from the configured remote
// and unpacks it into the active profile. The live filesystem is untouched;
// reconciling it is apply's job.
func (a *App) PullRemote(ctx context.Context) (string, *remote.Meta, error) {
	if err := a.persist(); err != nil {
		return "", nil, err
	}

	backend, err := remote.New(a.cfg.Remote, a.logger)
	if err != nil {
		return "", nil, a.fail(err)
	}

	rc, name, err := backend.Pull(ctx)
	if err != nil {
		return "", nil, a.fail(err)
	}
	defer rc.Close()

	meta, err := remote.Unpack(rc, a.profiles.Dir(a.profile))
	if err != nil {
		return "", nil, a.fail(fmt.Errorf("unpacking %s: %w", name, err))
	}
	if meta.Profile != "" && meta.Profile != a.profile {
		a.logger.Warn("bundle was pushed from a different profile",
			"bundle_profile", meta.Profile, "active_profile", a.profile)
	}
	a.note("pulled %s (%d files)", name, meta.FileCount)
	return name, meta, nil
}
