package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/posefactory/renderq/internal/common"
)

func validManifest() *Manifest {
	return NewManifest(JobTypeRender, Params{
		Script:     "render/r.py",
		Characters: []string{"alice", "bob"},
		OutputDir:  "batch_1",
		Overrides:  map[string]interface{}{"quality": "high"},
	})
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Manifest)
		valid  bool
	}{
		{"valid render", func(m *Manifest) {}, true},
		{"valid character", func(m *Manifest) {
			m.JobType = JobTypeCharacter
			m.JobID = common.NewJobID("character")
			m.Params.Characters = nil
		}, true},
		{"unknown type", func(m *Manifest) { m.JobType = "sculpt" }, false},
		{"missing script", func(m *Manifest) { m.Params.Script = "" }, false},
		{"script traversal", func(m *Manifest) { m.Params.Script = "../secrets/key.pem" }, false},
		{"output dir traversal", func(m *Manifest) { m.Params.OutputDir = "../../etc/passwd" }, false},
		{"output dir with slash", func(m *Manifest) { m.Params.OutputDir = "a/b" }, false},
		{"empty output dir allowed", func(m *Manifest) { m.Params.OutputDir = "" }, true},
		{"id with slash", func(m *Manifest) { m.JobID = "render/evil" }, false},
		{"id too long", func(m *Manifest) { m.JobID = strings.Repeat("a", 97) }, false},
		{"unsalvageable character name", func(m *Manifest) { m.Params.Characters = []string{"!!!"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)
			err := m.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, common.ErrValidation) {
					t.Errorf("Validate() = %v, want ErrValidation", err)
				}
			}
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m := validManifest()

	data, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	parsed, err := ManifestFromJSON(data)
	if err != nil {
		t.Fatalf("ManifestFromJSON() error = %v", err)
	}

	if parsed.JobID != m.JobID || parsed.JobType != m.JobType || parsed.CreatedAt != m.CreatedAt {
		t.Errorf("header fields changed: %+v vs %+v", parsed, m)
	}
	if parsed.Params.Script != m.Params.Script || parsed.Params.OutputDir != m.Params.OutputDir {
		t.Errorf("params changed: %+v vs %+v", parsed.Params, m.Params)
	}
	if len(parsed.Params.Characters) != 2 || parsed.Params.Characters[0] != "alice" {
		t.Errorf("characters changed: %v", parsed.Params.Characters)
	}
	if parsed.Params.Overrides["quality"] != "high" {
		t.Errorf("overrides changed: %v", parsed.Params.Overrides)
	}
}

// A newer dispatcher may add fields an older worker doesn't know; the
// worker must carry them through untouched.
func TestManifestPreservesUnknownFields(t *testing.T) {
	wire := `{
		"job_id": "render_20260101_120000_abcd1234",
		"job_type": "render",
		"created_at": "2026-01-01T12:00:00Z",
		"priority": 7,
		"params": {
			"script": "render/r.py",
			"output_dir": "out",
			"gpu_class": "a100"
		}
	}`

	m, err := ManifestFromJSON([]byte(wire))
	if err != nil {
		t.Fatalf("ManifestFromJSON() error = %v", err)
	}
	if _, ok := m.Extra["priority"]; !ok {
		t.Error("top-level unknown field dropped at parse")
	}
	if _, ok := m.Params.Extra["gpu_class"]; !ok {
		t.Error("params unknown field dropped at parse")
	}

	data, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if string(out["priority"]) != "7" {
		t.Errorf("priority = %s, want 7", out["priority"])
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(out["params"], &params); err != nil {
		t.Fatal(err)
	}
	if string(params["gpu_class"]) != `"a100"` {
		t.Errorf("gpu_class = %s", params["gpu_class"])
	}

	// Second round-trip is stable too.
	again, err := ManifestFromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if string(again.Extra["priority"]) != "7" {
		t.Error("unknown field lost on second round-trip")
	}
}

func TestNewManifestGeneratesOrderedIDs(t *testing.T) {
	m := validManifest()
	if !common.IsValidSlug(m.JobID) {
		t.Errorf("generated id %q is not a valid slug", m.JobID)
	}
	if !strings.HasPrefix(m.JobID, "render_") {
		t.Errorf("id %q missing kind prefix", m.JobID)
	}
	if _, err := m.CreatedTime(); err != nil {
		t.Errorf("created_at %q does not parse: %v", m.CreatedAt, err)
	}
}
