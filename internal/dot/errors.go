package dot

import (
	"errors"
	"fmt"

	"dotkeep/internal/hash"
)

// ErrNoManifest indicates no manifest has been captured yet.
var ErrNoManifest = errors.New("no manifest found (run 'dotkeep snapshot create' first)")

// IOError reports an unreadable or unwritable path. It is recoverable per
// entry: the entry is skipped and reported, siblings proceed.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// SafetyViolationError reports a destination that resolves outside the
// permitted root. It is never silently allowed; the entry is skipped and
// reported unless the caller explicitly overrides the boundary check.
type SafetyViolationError struct {
	Path string
	Dest string
	Root string
}

func (e *SafetyViolationError) Error() string {
	return fmt.Sprintf("%s: destination %s is outside %s (use the outside-home override to allow)", e.Path, e.Dest, e.Root)
}

// SecretsError reports an encrypt or decrypt failure for one entry. The
// wrapped error distinguishes the cause (missing key, bad passphrase,
// corrupt input) via errors.Is against the secrets package sentinels.
type SecretsError struct {
	Path string
	Err  error
}

func (e *SecretsError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *SecretsError) Unwrap() error { return e.Err }

// VerifyError reports a post-write digest mismatch. It is recoverable per
// entry but indicates either a write-path bug or concurrent external
// modification, so callers surface it prominently.
type VerifyError struct {
	Path string
	Want hash.Digest
	Got  hash.Digest
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: written file digest %s does not match expected %s", e.Path, e.Got.Short(), e.Want.Short())
}

// HookError reports a failed hook stage. A pre-stage failure aborts the run
// before any mutation; a post-stage failure is reported but cannot undo
// entries already applied.
type HookError struct {
	Stage   string
	Results []HookResult
}

func (e *HookError) Error() string {
	for _, r := range e.Results {
		if r.Err != nil {
			return fmt.Sprintf("hook %s: %q failed: %v", e.Stage, r.Command, r.Err)
		}
	}
	return fmt.Sprintf("hook %s failed", e.Stage)
}

// ManifestError reports a missing or malformed manifest. It is fatal for the
// whole operation, before any mutation begins.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string { return fmt.Sprintf("manifest %s: %v", e.Path, e.Err) }
func (e *ManifestError) Unwrap() error { return e.Err }
