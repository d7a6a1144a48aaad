package source

import (
	"time"

	"github.com/theirongolddev/cccost/internal/model"
)

// UnknownModel is reported when a response never names its model.
const UnknownModel = "unknown"

// Result is the terminal (model, usage) pair extracted from a response.
type Result struct {
	Model string
	Usage model.UsageRecord
	// HasUsage reports whether any usage object was seen.
	HasUsage bool
	// Events counts data lines that parsed as JSON.
	Events int
}

// DiscoveredFile represents a usage file found during directory scanning.
type DiscoveredFile struct {
	Path          string
	Project       string // decoded display name (e.g., "gitlore")
	ProjectDir    string // raw directory name
	SessionID     string // extracted from filename
	ModTime       time.Time
	HasTranscript bool
}
