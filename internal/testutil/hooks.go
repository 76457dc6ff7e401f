package testutil

import (
	"context"
	"sync"

	"dotkeep/internal/dot"
)

// RecordingHooks records which stages ran and returns scripted results.
// Stages with no script return no results, like an unconfigured stage.
type RecordingHooks struct {
	mu      sync.Mutex
	ran     []string
	scripts map[string][]dot.HookResult
}

var _ dot.HookRunner = (*RecordingHooks)(nil)

func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{scripts: make(map[string][]dot.HookResult)}
}

// Script sets the results a stage will report.
func (h *RecordingHooks) Script(stage string, results ...dot.HookResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scripts[stage] = results
}

// FailStage makes a stage report one failed command.
func (h *RecordingHooks) FailStage(stage string, err error) {
	h.Script(stage, dot.HookResult{Command: "scripted-failure", Err: err})
}

func (h *RecordingHooks) Run(ctx context.Context, stage string) []dot.HookResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ran = append(h.ran, stage)
	return h.scripts[stage]
}

// Ran returns the stages that were run, in order.
func (h *RecordingHooks) Ran() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ran...)
}
