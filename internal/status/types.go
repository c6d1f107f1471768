package status

import "time"

// Phase represents the state of the last generation run for a cache key
type Phase string

const (
	// PhaseGenerating means a generation run holds the lock
	PhaseGenerating Phase = "Generating"

	// PhaseComplete means the last run published a cache file
	PhaseComplete Phase = "Complete"

	// PhaseFailed means the last run did not publish
	PhaseFailed Phase = "Failed"
)

// GenerationStatus records the outcome of cache generation for one key
type GenerationStatus struct {
	// Phase represents the current generation phase
	Phase Phase `json:"phase"`

	// Message provides additional information, usually the failure
	Message string `json:"message,omitempty"`

	// Root is the scan root the cache file describes
	Root string `json:"root,omitempty"`

	// LastAttempt is the start of the last generation run
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed runs since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastGenerated is the time of the last successful publish
	LastGenerated *time.Time `json:"lastGenerated,omitempty"`

	// RepositoryCount is the number of records in the last published file
	RepositoryCount int `json:"repositoryCount,omitempty"`

	// Duration of the last run
	Duration time.Duration `json:"duration,omitempty"`
}
