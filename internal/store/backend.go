package store

import (
	"context"

	"eventpulse/event-service/models"
)

// JobBackend is the persistence boundary for extraction jobs. The production
// implementation talks to Supabase; tests inject a fake.
type JobBackend interface {
	InsertJob(ctx context.Context, fields map[string]interface{}) (*models.ExtractionJob, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]models.ExtractionJob, error)
	UpdateJob(ctx context.Context, id string, fields map[string]interface{}) (*models.ExtractionJob, error)
	DeleteJob(ctx context.Context, id string) error
	DeleteJobsByStatus(ctx context.Context, ownerID string, statuses []models.JobStatus) error
}

// DraftBackend is the persistence boundary for event drafts and the
// insert-only events table the publish operation targets.
type DraftBackend interface {
	InsertDraft(ctx context.Context, fields map[string]interface{}) (*models.EventDraft, error)
	ListDrafts(ctx context.Context, ownerID string) ([]models.EventDraft, error)
	UpdateDraft(ctx context.Context, id string, fields map[string]interface{}) (*models.EventDraft, error)
	DeleteDraft(ctx context.Context, id string) error
	InsertEvent(ctx context.Context, fields map[string]interface{}) (*models.Event, error)
}
