package dispatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/posefactory/renderq/internal/models"
)

// Records manages the workstation-local job record directory
// (<data_dir>/jobs). One file per job, named <id>.json, holding the
// manifest bytes exactly as uploaded. Records are a convenience cache;
// the store stays authoritative.
type Records struct {
	dir string
}

// NewRecords creates the record manager rooted at dataDir.
func NewRecords(dataDir string) *Records {
	return &Records{dir: filepath.Join(dataDir, "jobs")}
}

func (r *Records) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// Write persists a manifest as a local record.
func (r *Records) Write(m *models.Manifest) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	return os.WriteFile(r.path(m.JobID), data, 0644)
}

// Read loads one record by id, or nil if no record exists.
func (r *Records) Read(id string) (*models.Manifest, error) {
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return models.ManifestFromJSON(data)
}

// List returns all local records sorted by creation time descending.
// Unparseable files are skipped rather than failing the whole listing.
func (r *Records) List() ([]*models.Manifest, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var manifests []*models.Manifest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		m, err := models.ManifestFromJSON(data)
		if err != nil {
			continue
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt > manifests[j].CreatedAt
	})
	return manifests, nil
}

// Prune removes records older than ttl, judged by the manifest's
// created_at. Returns the number of records removed.
func (r *Records) Prune(ttl time.Duration) (int, error) {
	manifests, err := r.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-ttl)
	removed := 0
	for _, m := range manifests {
		created, err := m.CreatedTime()
		if err != nil || created.After(cutoff) {
			continue
		}
		if err := os.Remove(r.path(m.JobID)); err == nil {
			removed++
		}
	}
	return removed, nil
}
