package remote

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"dotkeep/internal/dot"
)

// Meta travels inside every bundle as meta.json and describes what the
// bundle holds.
type Meta struct {
	Profile    string    `json:"profile"`
	CreatedAt  time.Time `json:"created_at"`
	FileCount  int       `json:"file_count"`
	TotalBytes int64     `json:"total_bytes"`
}

const (
	metaName     = "meta.json"
	manifestName = "manifest.lock"
	treePrefix   = "compiled"
)

// Pack writes a bundle of the manifest and its repository copies to w.
// Copies are packed exactly as stored, so encrypted entries travel as
// ciphertext and plaintext never leaves the machine.
func Pack(w io.Writer, layout dot.Layout, m *dot.Manifest, meta Meta) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding bundle metadata: %w", err)
	}
	if err := packBytes(tw, metaName, append(metaData, '\n'), meta.CreatedAt); err != nil {
		return err
	}

	manifestData, err := m.Serialize()
	if err != nil {
		return err
	}
	if err := packBytes(tw, manifestName, manifestData, meta.CreatedAt); err != nil {
		return err
	}

	for _, e := range m.Entries {
		if err := packFile(tw, layout, e, meta.CreatedAt); err != nil {
			return fmt.Errorf("packing %s: %w", e.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing compression: %w", err)
	}
	return nil
}

func packBytes(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func packFile(tw *tar.Writer, layout dot.Layout, e dot.ManifestEntry, modTime time.Time) error {
	src := layout.CompiledPath(e.Path)
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    filepath.ToSlash(filepath.Join(treePrefix, dot.TreeRelative(e.Path))),
		Mode:    int64(e.FileMode()),
		Size:    info.Size(),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}
	return nil
}

// Unpack extracts a bundle into dir and returns its metadata. Entry names
// are confined to dir; a bundle naming paths outside it is rejected.
func Unpack(r io.Reader, dir string) (*Meta, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening compressed stream: %w", err)
	}
	defer zr.Close()

	var meta *Meta
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("bundle entry escapes destination: %s", hdr.Name)
		}
		dest := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", name, err)
			}
		case tar.TypeReg:
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			if name == metaName {
				var m Meta
				if err := json.Unmarshal(data, &m); err != nil {
					return nil, fmt.Errorf("parsing bundle metadata: %w", err)
				}
				meta = &m
			}
			if err := dot.WriteFileAtomic(dest, data, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported entry type %d for %s", hdr.Typeflag, hdr.Name)
		}
	}

	if meta == nil {
		return nil, fmt.Errorf("bundle has no %s", metaName)
	}
	return meta, nil
}
