package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/posefactory/renderq/internal/common"
)

// JobType identifies which execution recipe the worker applies.
// Closed enumeration, extensible only by code change.
type JobType string

const (
	JobTypeRender    JobType = "render"
	JobTypeCharacter JobType = "character"
)

// Valid reports whether the job type is a known recipe.
func (t JobType) Valid() bool {
	return t == JobTypeRender || t == JobTypeCharacter
}

// JobTypes returns all known job types.
func JobTypes() []JobType {
	return []JobType{JobTypeRender, JobTypeCharacter}
}

// Params is the recipe-specific record carried by a manifest.
// Unknown fields are preserved across parse/serialize so newer
// dispatchers can talk to older workers.
type Params struct {
	Script     string                 `json:"script"`               // store-relative path under scripts/
	Characters []string               `json:"characters,omitempty"` // render only
	OutputDir  string                 `json:"output_dir"`           // subpath under output/
	Overrides  map[string]interface{} `json:"overrides,omitempty"`  // arbitrary scalars passed as --param KEY=VAL

	// Extra holds fields this version doesn't know about.
	Extra map[string]json.RawMessage `json:"-"`
}

// Manifest is the immutable on-wire serialization of a job. Status is
// never stored here; it is derived from which store prefix holds the
// manifest.
type Manifest struct {
	JobID     string  `json:"job_id"`
	JobType   JobType `json:"job_type"`
	CreatedAt string  `json:"created_at"` // ISO-8601 UTC

	Params Params `json:"params"`

	// Extra holds top-level fields this version doesn't know about.
	Extra map[string]json.RawMessage `json:"-"`
}

// NewManifest builds a manifest for a fresh job, generating its id.
func NewManifest(jobType JobType, params Params) *Manifest {
	return &Manifest{
		JobID:     common.NewJobID(string(jobType)),
		JobType:   jobType,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Params:    params,
	}
}

// CreatedTime parses the creation timestamp.
func (m *Manifest) CreatedTime() (time.Time, error) {
	return time.Parse(time.RFC3339, m.CreatedAt)
}

// Validate checks the manifest against the declared kind's contract.
func (m *Manifest) Validate() error {
	if !common.IsValidSlug(m.JobID) {
		return fmt.Errorf("%w: job id %q is not a valid slug", common.ErrValidation, m.JobID)
	}
	if !m.JobType.Valid() {
		return fmt.Errorf("%w: unknown job type %q", common.ErrValidation, m.JobType)
	}
	if m.Params.Script == "" {
		return fmt.Errorf("%w: script is required", common.ErrValidation)
	}
	if !ValidKey(m.Params.Script) {
		return fmt.Errorf("%w: script path %q contains illegal characters", common.ErrValidation, m.Params.Script)
	}
	if m.Params.OutputDir != "" && !common.IsValidSlug(m.Params.OutputDir) {
		return fmt.Errorf("%w: output_dir %q is not a valid slug", common.ErrValidation, m.Params.OutputDir)
	}
	for _, c := range m.Params.Characters {
		if common.SafeSlug(c) == "" {
			return fmt.Errorf("%w: character name %q is empty after sanitization", common.ErrValidation, c)
		}
	}
	return nil
}

// ToJSON serializes the manifest for upload. The output is stable for
// a given manifest, including preserved unknown fields.
func (m *Manifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// ManifestFromJSON deserializes a manifest downloaded from the store.
func ManifestFromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Known keys, used to split unknown fields out during unmarshal.
var (
	manifestKeys = map[string]bool{"job_id": true, "job_type": true, "created_at": true, "params": true}
	paramsKeys   = map[string]bool{"script": true, "characters": true, "output_dir": true, "overrides": true}
)

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["job_id"]; ok {
		if err := json.Unmarshal(v, &m.JobID); err != nil {
			return err
		}
	}
	if v, ok := raw["job_type"]; ok {
		if err := json.Unmarshal(v, &m.JobType); err != nil {
			return err
		}
	}
	if v, ok := raw["created_at"]; ok {
		if err := json.Unmarshal(v, &m.CreatedAt); err != nil {
			return err
		}
	}
	if v, ok := raw["params"]; ok {
		if err := json.Unmarshal(v, &m.Params); err != nil {
			return err
		}
	}
	for k, v := range raw {
		if manifestKeys[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 4+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}
	var err error
	if out["job_id"], err = json.Marshal(m.JobID); err != nil {
		return nil, err
	}
	if out["job_type"], err = json.Marshal(m.JobType); err != nil {
		return nil, err
	}
	if out["created_at"], err = json.Marshal(m.CreatedAt); err != nil {
		return nil, err
	}
	if out["params"], err = json.Marshal(m.Params); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["script"]; ok {
		if err := json.Unmarshal(v, &p.Script); err != nil {
			return err
		}
	}
	if v, ok := raw["characters"]; ok {
		if err := json.Unmarshal(v, &p.Characters); err != nil {
			return err
		}
	}
	if v, ok := raw["output_dir"]; ok {
		if err := json.Unmarshal(v, &p.OutputDir); err != nil {
			return err
		}
	}
	if v, ok := raw["overrides"]; ok {
		if err := json.Unmarshal(v, &p.Overrides); err != nil {
			return err
		}
	}
	for k, v := range raw {
		if paramsKeys[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return nil
}

func (p Params) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 4+len(p.Extra))
	for k, v := range p.Extra {
		out[k] = v
	}
	var err error
	if out["script"], err = json.Marshal(p.Script); err != nil {
		return nil, err
	}
	if out["output_dir"], err = json.Marshal(p.OutputDir); err != nil {
		return nil, err
	}
	if len(p.Characters) > 0 {
		if out["characters"], err = json.Marshal(p.Characters); err != nil {
			return nil, err
		}
	}
	if len(p.Overrides) > 0 {
		if out["overrides"], err = json.Marshal(p.Overrides); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}
