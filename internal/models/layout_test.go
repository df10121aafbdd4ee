package models

import "testing"

func TestValidKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"scripts/render/r.py", true},
		{"jobs/pending/render_20260101_120000_abcd1234.json", true},
		{"results/id/front.png", true},
		{"", false},
		{"a//b", false},
		{"../escape", false},
		{"a/./b", false},
		{"a/../b", false},
		{"has space", false},
		{"quote'", false},
	}

	for _, tt := range tests {
		if got := ValidKey(tt.key); got != tt.valid {
			t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.valid)
		}
	}
}

func TestManifestKeys(t *testing.T) {
	id := "render_20260101_120000_abcd1234"

	if got := PendingKey(id); got != "jobs/pending/"+id+".json" {
		t.Errorf("PendingKey = %q", got)
	}
	if got := ProcessingKey(id); got != "jobs/processing/"+id+".json" {
		t.Errorf("ProcessingKey = %q", got)
	}
	if got := ResultsKeyPrefix(id); got != "results/"+id+"/" {
		t.Errorf("ResultsKeyPrefix = %q", got)
	}
}

func TestJobIDFromManifestKey(t *testing.T) {
	id := "render_20260101_120000_abcd1234"
	tests := []struct {
		key      string
		expected string
	}{
		{PendingKey(id), id},
		{ProcessingKey(id), id},
		{"results/" + id + "/front.png", ""},
		{"jobs/pending/" + id, ""}, // no .json suffix
		{"other/" + id + ".json", ""},
	}

	for _, tt := range tests {
		if got := JobIDFromManifestKey(tt.key); got != tt.expected {
			t.Errorf("JobIDFromManifestKey(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}
