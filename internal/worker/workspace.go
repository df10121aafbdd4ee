package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/posefactory/renderq/internal/models"
)

// Workspace is the worker's local directory tree. The layout under the
// root is fixed:
//
//	assets/   cached store assets, survive across jobs
//	scripts/  cached store scripts, survive across jobs
//	output/   per-job tool output, removed after publish
//	jobs/     processed-manifest records, pruned by TTL
//	logs/     captured tool output, pruned by TTL
type Workspace struct {
	root string
}

// NewWorkspace creates the tree under root, making any missing
// directories.
func NewWorkspace(root string) (*Workspace, error) {
	w := &Workspace{root: root}
	for _, dir := range []string{w.AssetsDir(), w.ScriptsDir(), w.OutputRoot(), w.JobsDir(), w.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}
	return w, nil
}

func (w *Workspace) Root() string       { return w.root }
func (w *Workspace) AssetsDir() string  { return filepath.Join(w.root, "assets") }
func (w *Workspace) ScriptsDir() string { return filepath.Join(w.root, "scripts") }
func (w *Workspace) OutputRoot() string { return filepath.Join(w.root, "output") }
func (w *Workspace) JobsDir() string    { return filepath.Join(w.root, "jobs") }
func (w *Workspace) LogsDir() string    { return filepath.Join(w.root, "logs") }

// ScriptPath resolves a manifest's store-relative script path to the
// local scripts cache.
func (w *Workspace) ScriptPath(script string) string {
	return filepath.Join(w.ScriptsDir(), filepath.FromSlash(script))
}

// OutputDir returns the per-job output directory the tool writes into.
// The manifest's output_dir is already slug-validated; a manifest
// without one uses the job id.
func (w *Workspace) OutputDir(m *models.Manifest) string {
	sub := m.Params.OutputDir
	if sub == "" {
		sub = m.JobID
	}
	return filepath.Join(w.OutputRoot(), sub)
}

// LogPath returns the capture file for one job's tool output.
func (w *Workspace) LogPath(id string) string {
	return filepath.Join(w.LogsDir(), id+".log")
}

// RecordJob keeps a local copy of a processed manifest for debugging.
func (w *Workspace) RecordJob(m *models.Manifest) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.JobsDir(), m.JobID+".json"), data, 0644)
}

// CleanupJob removes the per-job output directory. Cached assets and
// scripts are kept.
func (w *Workspace) CleanupJob(m *models.Manifest) error {
	return os.RemoveAll(w.OutputDir(m))
}

// Prune removes job records and logs older than ttl, judged by file
// modification time. Returns the number of files removed.
func (w *Workspace) Prune(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, dir := range []string{w.JobsDir(), w.LogsDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if !strings.HasSuffix(entry.Name(), ".json") && !strings.HasSuffix(entry.Name(), ".log") {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
