// Package hooks runs the user's shell commands around apply and snapshot
// operations.
package hooks

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// Runner executes the commands configured for each stage through "sh -c",
// in order, stopping at the first failure. Whether a failed stage aborts
// the surrounding operation is the caller's decision.
type Runner struct {
	stages  map[string][]string
	timeout time.Duration
	dir     string
	logger  dot.Logger
}

var _ dot.HookRunner = (*Runner)(nil)

// NewRunner builds a Runner from the hooks configuration. dir is the
// working directory for every command, normally the user's home.
func NewRunner(cfg config.HooksConfig, dir string, logger dot.Logger) *Runner {
	return &Runner{
		stages: map[string][]string{
			dot.StagePreApply:     cfg.PreApply,
			dot.StagePostApply:    cfg.PostApply,
			dot.StagePreSnapshot:  cfg.PreSnapshot,
			dot.StagePostSnapshot: cfg.PostSnapshot,
		},
		timeout: cfg.Timeout(),
		dir:     dir,
		logger:  logger,
	}
}

func (r *Runner) Run(ctx context.Context, stage string) []dot.HookResult {
	commands := r.stages[stage]
	if len(commands) == 0 {
		return nil
	}
	results := make([]dot.HookResult, 0, len(commands))
	for _, command := range commands {
		res := r.run(ctx, stage, command)
		results = append(results, res)
		if res.Err != nil {
			break
		}
	}
	return results
}

func (r *Runner) run(ctx context.Context, stage, command string) dot.HookResult {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()

	res := dot.HookResult{Command: command, Output: strings.TrimSpace(string(out))}
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", r.timeout)
		}
		res.Err = err
		r.logger.Warn("hook failed", "stage", stage, "command", command, "error", err)
		return res
	}
	r.logger.Debug("hook finished", "stage", stage, "command", command)
	return res
}
