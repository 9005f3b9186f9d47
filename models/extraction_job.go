package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the lifecycle of an extraction job. Transitions are
// pending -> extracting -> ready -> analyzing -> completed, with failed
// reachable from extracting and analyzing.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusExtracting JobStatus = "extracting"
	JobStatusReady      JobStatus = "ready"
	JobStatusAnalyzing  JobStatus = "analyzing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ExtractionJob represents a row of the extraction_jobs table in Supabase.
// Nullable columns use pointer fields so they round-trip as SQL NULL.
type ExtractionJob struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	SourceURL        string          `json:"source_url"`
	Status           JobStatus       `json:"status"`
	ExtractedImages  []string        `json:"extracted_images,omitempty"`
	SelectedImageURL *string         `json:"selected_image_url,omitempty"`
	AnalysisResult   *AnalysisResult `json:"analysis_result,omitempty"` // JSONB
	ErrorMessage     *string         `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the job has reached a state the orchestrator
// treats as final for a single analysis pass.
func (j *ExtractionJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// HasImages reports whether extraction produced at least one candidate image.
func (j *ExtractionJob) HasImages() bool {
	return len(j.ExtractedImages) > 0
}
