// Package worker implements the GPU-host agent: a strictly serial loop
// that drains jobs/pending/ one job at a time. One job in flight per
// process; GPU memory and render-tool licensing do not admit
// parallelism, and serialization is what makes the claim protocol
// correct.
package worker

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/models"
	"github.com/posefactory/renderq/internal/store"
)

// Agent polls the store for pending jobs and executes them to
// completion or recorded failure.
type Agent struct {
	store     store.Store
	config    *common.Config
	workspace *Workspace
	logger    arbor.ILogger
	cron      *cron.Cron
	name      string
}

// NewAgent creates a worker over the given store, building the local
// workspace tree if needed.
func NewAgent(st store.Store, config *common.Config, logger arbor.ILogger) (*Agent, error) {
	workspace, err := NewWorkspace(config.Worker.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "worker"
	}

	return &Agent{
		store:     st,
		config:    config,
		workspace: workspace,
		logger:    logger,
		cron:      cron.New(),
		name:      name,
	}, nil
}

// Run is the agent main loop. It recovers stale claims left by a dead
// worker, starts the maintenance schedule, then polls pending/ until
// the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info().
		Str("worker", a.name).
		Str("workspace", a.workspace.Root()).
		Str("tool", a.config.Worker.Tool).
		Msg("Worker agent starting")

	if err := a.recoverStaleClaims(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Stale claim recovery failed, continuing")
	}

	if _, err := a.cron.AddFunc(a.config.Worker.CleanupSchedule, a.runCleanup); err != nil {
		a.logger.Warn().Err(err).
			Str("schedule", a.config.Worker.CleanupSchedule).
			Msg("Invalid cleanup schedule, maintenance disabled")
	} else {
		a.cron.Start()
		defer a.cron.Stop()
	}

	interval := a.config.Worker.PollIntervalDuration()
	for {
		busy, err := a.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			a.logger.Warn().Err(err).Msg("Poll cycle failed")
		}
		if busy {
			// A claim just resolved; check for more work immediately.
			continue
		}

		select {
		case <-ctx.Done():
			a.logger.Info().Str("worker", a.name).Msg("Worker agent stopping")
			return nil
		case <-time.After(interval):
		}
	}

	a.logger.Info().Str("worker", a.name).Msg("Worker agent stopping")
	return nil
}

// pollOnce lists pending/, claims the lexically first job, and runs it
// to completion or recorded failure. Lexicographic order equals
// creation order because ids embed the creation timestamp.
func (a *Agent) pollOnce(ctx context.Context) (bool, error) {
	keys, err := a.store.List(ctx, models.PendingPrefix)
	if err != nil {
		return false, err
	}

	var candidate string
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		if id := models.JobIDFromManifestKey(key); id == "" || !common.IsValidSlug(id) {
			a.logger.Warn().Str("key", key).Msg("Ignoring pending object with invalid id")
			continue
		}
		candidate = key
		break
	}
	if candidate == "" {
		return false, nil
	}

	manifest, err := a.claim(ctx, candidate)
	if err != nil {
		return false, err
	}
	if manifest == nil {
		// Lost the race or the manifest was discarded; look again.
		return true, nil
	}

	a.process(ctx, manifest)
	return true, nil
}

// process drives one claimed job through stage, execute, and publish.
// Permanent failures publish a _FAILED sentinel and clean up; transient
// transport failures leave the manifest in processing/ so a restart or
// the reap command can retry it.
func (a *Agent) process(ctx context.Context, m *models.Manifest) {
	if err := a.stage(ctx, m); err != nil {
		if ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, errMissingInput):
			a.publishFailure(ctx, m, models.CauseMissingInput, err.Error())
		case errors.Is(err, common.ErrInternal):
			a.publishFailure(ctx, m, models.CauseInternal, err.Error())
		default:
			a.logger.Warn().Err(err).
				Str("job_id", m.JobID).
				Msg("Staging failed on transport, leaving job in processing")
			return
		}
		a.cleanup(ctx, m)
		return
	}

	execErr := a.execute(ctx, m, a.workspace.OutputDir(m))
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		// Shutdown mid-execution: the stale-claim recovery on next
		// start will retry this job.
		return
	}

	switch {
	case execErr == nil:
		if err := a.publishSuccess(ctx, m); err != nil {
			a.logger.Warn().Err(err).
				Str("job_id", m.JobID).
				Msg("Publish failed on transport, leaving job in processing")
			return
		}
	case errors.Is(execErr, errToolTimeout):
		a.publishFailure(ctx, m, models.CauseTimeout, execErr.Error())
	case errors.Is(execErr, errToolFailed):
		a.publishFailure(ctx, m, models.CauseToolError, execErr.Error())
	default:
		a.publishFailure(ctx, m, models.CauseInternal, execErr.Error())
	}

	a.cleanup(ctx, m)
}

// runCleanup is the cron-scheduled maintenance pass: prune local job
// records and tool logs past their TTL.
func (a *Agent) runCleanup() {
	removed, err := a.workspace.Prune(a.config.Worker.RecordTTLDuration())
	if err != nil {
		a.logger.Warn().Err(err).Msg("Workspace cleanup failed")
		return
	}
	if removed > 0 {
		a.logger.Info().Int("removed", removed).Msg("Pruned expired workspace records")
	}
}
