// Package hash computes the content digests used for change detection and
// deduplication. Digests are 256-bit BLAKE3 sums rendered as lowercase hex.
//
// For a regular file the digest covers the full byte stream. For a symlink it
// covers the UTF-8 target string, never the pointee's content: retargeting a
// link is a content change even when the pointee is unchanged.
package hash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Digest is a lowercase hex-encoded 256-bit content hash.
type Digest string

// Short returns a truncated form suitable for display.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// Bytes computes the digest of a byte slice.
func Bytes(b []byte) Digest {
	sum := blake3.Sum256(b)
	return Digest(hex.EncodeToString(sum[:]))
}

// Target computes the digest of a symlink target string.
func Target(target string) Digest {
	return Bytes([]byte(target))
}

// Reader computes the digest of everything readable from r, streaming in
// bounded chunks so large inputs never occupy memory whole.
func Reader(r io.Reader) (Digest, error) {
	h := blake3.New(Size, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing stream: %w", err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// File computes the digest of the filesystem object at path. A symlink is
// digested by its target string (via lstat), a regular file by its bytes.
func File(path string) (Digest, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", path, err)
		}
		return Target(target), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return d, nil
}
