package dot

import (
	"context"
	"io"
	"time"
)

// TrackedPath is one candidate produced by the Scanner: a path to reconcile
// plus its per-path mode override (empty means the layout default applies).
// The core never decides what to track, only how to reconcile what it is
// given.
type TrackedPath struct {
	Path string
	Mode Mode
}

// Scanner produces the candidate set of tracked paths with overrides already
// applied and excluded paths already removed.
type Scanner interface {
	Scan() ([]TrackedPath, error)
}

// SecretsProvider encrypts and decrypts entry content. Plaintext returned by
// Decrypt lives only in memory; implementations fail with distinguishable
// errors for a missing key, a locked key, and corrupt input.
type SecretsProvider interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(cipher []byte) ([]byte, error)
}

// Hook stages recognized by HookRunner implementations.
const (
	StagePreApply     = "pre_apply"
	StagePostApply    = "post_apply"
	StagePreSnapshot  = "pre_snapshot"
	StagePostSnapshot = "post_snapshot"
)

// HookResult reports one hook command's outcome, with captured output.
type HookResult struct {
	Command string
	Output  string
	Err     error
}

// HookRunner executes the configured commands for a named stage, in order,
// and reports per-command success or failure. A stage with no configured
// commands returns no results.
type HookRunner interface {
	Run(ctx context.Context, stage string) []HookResult
}

// FailedHook returns the first failed result of a stage, if any.
func FailedHook(results []HookResult) (HookResult, bool) {
	for _, r := range results {
		if r.Err != nil {
			return r, true
		}
	}
	return HookResult{}, false
}

// SnapshotInfo is the persisted metadata of one snapshot.
type SnapshotInfo struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	FileCount  int       `json:"file_count"`
	TotalBytes int64     `json:"total_bytes"`
	Profile    string    `json:"profile,omitempty"`
}

// Retention selects which snapshots pruning keeps. Criteria combine with OR
// semantics: a snapshot is retained if it satisfies any configured criterion.
// A zero value means the criterion is not configured and does not vote.
type Retention struct {
	KeepCount int
	KeepAge   time.Duration
	KeepSize  int64
}

// Configured reports whether at least one criterion is set.
func (r Retention) Configured() bool {
	return r.KeepCount > 0 || r.KeepAge > 0 || r.KeepSize > 0
}

// PruneResult summarizes one pruning pass.
type PruneResult struct {
	Removed    []string
	Kept       int
	BytesFreed int64
}

// SnapshotStore owns all snapshots and their shared blob storage. Snapshots
// are immutable once created and destroyed only by Delete or Prune.
type SnapshotStore interface {
	Create(m *Manifest, message string) (*SnapshotInfo, error)
	List() ([]SnapshotInfo, error)
	Rollback(id string) (*Manifest, error)
	Delete(id string) error
	Prune(ret Retention) (*PruneResult, error)
}

// RemoteBackend is the capability interface for off-machine repository
// state. Push uploads a bundle under the given name; Pull streams the most
// recent bundle and reports its name. Variants are selected by tagged
// configuration, not subclassing.
type RemoteBackend interface {
	Push(ctx context.Context, bundle io.Reader, name string) error
	Pull(ctx context.Context) (io.ReadCloser, string, error)
}
