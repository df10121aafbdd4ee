package models

// JobStatus is derived from store contents, never stored in a manifest.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusUnknown    JobStatus = "unknown"
)

// FailureCause codes recorded in the failure sentinel.
const (
	CauseMissingInput = "missing_input"
	CauseToolError    = "tool_error"
	CauseTimeout      = "timeout"
	CauseInternal     = "internal"
)

// FailureRecord is the body of the _FAILED sentinel under results/<id>/.
type FailureRecord struct {
	Cause   string `json:"cause"`
	Message string `json:"message"`
}

// AngleNames are the eight camera angles a render job produces per
// character, one PNG each.
var AngleNames = []string{
	"front", "front_right", "right", "back_right",
	"back", "back_left", "left", "front_left",
}
