package worker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/models"
)

// stage mirrors the job's inputs from the store into the workspace
// caches. Scripts and assets are pulled wholesale; both prefixes are
// idempotent, so re-staging over a warm cache only transfers deltas on
// stores that dedupe, and is merely slow on ones that don't.
// A script the store doesn't have is a permanent missing_input failure;
// transport errors surface so the manifest stays in processing/ for a
// retry.
func (a *Agent) stage(ctx context.Context, m *models.Manifest) error {
	if err := a.store.Pull(ctx, models.ScriptsPrefix, a.workspace.ScriptsDir()); err != nil {
		return err
	}

	keys, err := a.store.List(ctx, models.AssetsPrefix)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := a.store.Pull(ctx, models.AssetsPrefix, a.workspace.AssetsDir()); err != nil {
			return err
		}
	}

	scriptPath := a.workspace.ScriptPath(m.Params.Script)
	if _, err := os.Stat(scriptPath); err != nil {
		return fmt.Errorf("%w: script %s is not on the store", errMissingInput, m.Params.Script)
	}

	outputDir := a.workspace.OutputDir(m)
	if !strings.HasPrefix(outputDir, a.workspace.OutputRoot()) {
		return fmt.Errorf("%w: output dir escapes the workspace", errMissingInput)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create output dir: %v", common.ErrInternal, err)
	}

	a.logger.Debug().
		Str("job_id", m.JobID).
		Str("script", scriptPath).
		Str("output_dir", outputDir).
		Msg("Staged job inputs")
	return nil
}
