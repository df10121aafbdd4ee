package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/models"
	"github.com/posefactory/renderq/internal/store"
)

// Service translates client intent into store state. It never blocks
// on job execution; the worker fleet picks work up from the store.
type Service struct {
	store    store.Store
	records  *Records
	config   *common.Config
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewService creates a dispatcher over the given store.
func NewService(st store.Store, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		store:    st,
		records:  NewRecords(config.Dispatcher.DataDir),
		config:   config,
		logger:   logger,
		validate: validator.New(),
	}
}

// Records exposes the local record manager, used by the CLI listing.
func (s *Service) Records() *Records {
	return s.records
}

// SubmitRequest is the caller-facing submission payload, shared by the
// CLI and the HTTP handler.
type SubmitRequest struct {
	Kind       string                 `json:"kind" validate:"required,oneof=render character"`
	Script     string                 `json:"script" validate:"required"`
	Characters []string               `json:"characters,omitempty"`
	OutputDir  string                 `json:"output_dir,omitempty"`
	Overrides  map[string]interface{} `json:"overrides,omitempty"`
}

// Submit validates the request, mirrors the local scripts tree to the
// store, and uploads the manifest to jobs/pending/. The manifest upload
// is the commit point: a job half-submitted before it is invisible to
// workers, and the script mirror is idempotent.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Manifest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	characters := make([]string, 0, len(req.Characters))
	for _, c := range req.Characters {
		slug := common.SafeSlug(c)
		if slug == "" {
			return nil, fmt.Errorf("%w: character name %q is empty after sanitization", common.ErrValidation, c)
		}
		characters = append(characters, slug)
	}

	script := strings.TrimPrefix(req.Script, models.ScriptsPrefix)
	manifest := models.NewManifest(models.JobType(req.Kind), models.Params{
		Script:     script,
		Characters: characters,
		OutputDir:  req.OutputDir,
		Overrides:  req.Overrides,
	})
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	localScript := filepath.Join(s.config.Dispatcher.ScriptsDir, filepath.FromSlash(script))
	if _, err := os.Stat(localScript); err != nil {
		return nil, fmt.Errorf("%w: script %s not found locally", common.ErrValidation, script)
	}

	s.logger.Info().
		Str("job_id", manifest.JobID).
		Str("job_type", string(manifest.JobType)).
		Str("script", script).
		Msg("Submitting job")

	if err := s.store.Mirror(ctx, s.config.Dispatcher.ScriptsDir, strings.TrimSuffix(models.ScriptsPrefix, "/")); err != nil {
		return nil, err
	}

	data, err := manifest.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	if err := s.store.Put(ctx, models.PendingKey(manifest.JobID), data); err != nil {
		return nil, err
	}

	if err := s.records.Write(manifest); err != nil {
		s.logger.Warn().Err(err).Str("job_id", manifest.JobID).Msg("Failed to write local job record")
	}

	return manifest, nil
}

// Status derives a job's status from store contents. Probe order is
// fixed — results, then processing, then pending — so the publish race
// (results written, processing not yet deleted) resolves to completed.
// An id that fails sanitization is unknown without touching the store.
func (s *Service) Status(ctx context.Context, id string) (models.JobStatus, error) {
	if !common.IsValidSlug(id) {
		return models.StatusUnknown, nil
	}

	results, err := s.store.List(ctx, models.ResultsKeyPrefix(id))
	if err != nil {
		return models.StatusUnknown, err
	}
	if len(results) > 0 {
		return models.StatusCompleted, nil
	}

	if ok, err := s.store.Exists(ctx, models.ProcessingKey(id)); err != nil {
		return models.StatusUnknown, err
	} else if ok {
		return models.StatusProcessing, nil
	}

	if ok, err := s.store.Exists(ctx, models.PendingKey(id)); err != nil {
		return models.StatusUnknown, err
	} else if ok {
		return models.StatusPending, nil
	}

	return models.StatusUnknown, nil
}

// Wait polls Status until the job completes or timeout elapses.
// Cancelling the context stops the poll loop only; the worker-side job
// keeps running.
func (s *Service) Wait(ctx context.Context, id string, timeout time.Duration) (models.JobStatus, error) {
	if timeout <= 0 {
		timeout = s.config.Dispatcher.WaitTimeoutDuration()
	}
	interval := s.config.Dispatcher.PollIntervalDuration()
	deadline := time.Now().Add(timeout)

	for {
		status, err := s.Status(ctx, id)
		if err != nil {
			return status, err
		}
		if status == models.StatusCompleted {
			return status, nil
		}

		if time.Now().After(deadline) {
			return status, fmt.Errorf("%w: job %s not completed after %s", common.ErrTimeout, id, timeout)
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Download mirrors results/<id>/ into destDir/<id>/, overwriting on
// conflict. A worker may still be publishing when the first result
// object appears, so the listing is re-probed until it is stable for
// one poll interval before the pull. force skips the stability wait
// and takes whatever exists now.
func (s *Service) Download(ctx context.Context, id, destDir string, force bool) (string, error) {
	if !common.IsValidSlug(id) {
		return "", fmt.Errorf("%w: job id %q is not a valid slug", common.ErrValidation, id)
	}

	prefix := models.ResultsKeyPrefix(id)
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no results for job %s", common.ErrNotFound, id)
	}

	if !force {
		interval := s.config.Dispatcher.PollIntervalDuration()
		for {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(interval):
			}
			next, err := s.store.List(ctx, prefix)
			if err != nil {
				return "", err
			}
			if sameKeys(keys, next) {
				break
			}
			s.logger.Debug().
				Str("job_id", id).
				Int("objects", len(next)).
				Msg("Results still growing, waiting for stable listing")
			keys = next
		}
	}

	target := filepath.Join(destDir, id)
	if err := s.store.Pull(ctx, prefix, target); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("job_id", id).
		Int("objects", len(keys)).
		Str("dest", target).
		Msg("Downloaded job results")
	return target, nil
}

// List returns the local job records, newest first.
func (s *Service) List(ctx context.Context) ([]*models.Manifest, error) {
	return s.records.List()
}

// Reap moves processing manifests older than olderThan back to
// pending/ so a worker can pick them up again. Deliberately manual:
// automatic reaping plus duplicate-execution tolerance could re-run a
// poisoned job forever.
func (s *Service) Reap(ctx context.Context, olderThan time.Duration) ([]string, error) {
	keys, err := s.store.List(ctx, models.ProcessingPrefix)
	if err != nil {
		return nil, err
	}

	var moved []string
	cutoff := time.Now().Add(-olderThan)
	for _, key := range keys {
		id := models.JobIDFromManifestKey(key)
		if id == "" {
			continue
		}
		info, err := s.store.Stat(ctx, key)
		if err != nil {
			continue // racing with a worker's cleanup
		}
		if info.LastModified.After(cutoff) {
			continue
		}

		if err := s.store.Move(ctx, key, models.PendingKey(id)); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to reap stale claim")
			continue
		}
		s.logger.Info().
			Str("job_id", id).
			Str("claimed_at", info.LastModified.Format(time.RFC3339)).
			Msg("Moved stale claim back to pending")
		moved = append(moved, id)
	}
	return moved, nil
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
