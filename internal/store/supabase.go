package store

import (
	"context"
	"encoding/json"
	"fmt"

	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"eventpulse/event-service/models"
)

const (
	jobsTable   = "extraction_jobs"
	draftsTable = "event_drafts"
	eventsTable = "events"
)

// MaxJobsPerOwner caps how many jobs a refresh pulls per owner, newest first.
const MaxJobsPerOwner = 50

// SupabaseBackend implements JobBackend and DraftBackend on top of the
// Supabase PostgREST API.
type SupabaseBackend struct {
	client *supa.Client
}

func NewSupabaseBackend(client *supa.Client) *SupabaseBackend {
	return &SupabaseBackend{client: client}
}

func (b *SupabaseBackend) InsertJob(_ context.Context, fields map[string]interface{}) (*models.ExtractionJob, error) {
	body, _, err := b.client.From(jobsTable).
		Insert(fields, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("insert extraction job: %w", err)
	}
	var rows []models.ExtractionJob
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode inserted job: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no row returned after job insert")
	}
	return &rows[0], nil
}

func (b *SupabaseBackend) ListJobs(_ context.Context, ownerID string, limit int) ([]models.ExtractionJob, error) {
	body, _, err := b.client.From(jobsTable).
		Select("*", "", false).
		Eq("user_id", ownerID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list extraction jobs: %w", err)
	}
	var rows []models.ExtractionJob
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode extraction jobs: %w", err)
	}
	return rows, nil
}

func (b *SupabaseBackend) UpdateJob(_ context.Context, id string, fields map[string]interface{}) (*models.ExtractionJob, error) {
	body, _, err := b.client.From(jobsTable).
		Update(fields, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("update extraction job %s: %w", id, err)
	}
	var rows []models.ExtractionJob
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode updated job %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("extraction job %s not found for update", id)
	}
	return &rows[0], nil
}

func (b *SupabaseBackend) DeleteJob(_ context.Context, id string) error {
	_, _, err := b.client.From(jobsTable).
		Delete("", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("delete extraction job %s: %w", id, err)
	}
	return nil
}

func (b *SupabaseBackend) DeleteJobsByStatus(_ context.Context, ownerID string, statuses []models.JobStatus) error {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	_, _, err := b.client.From(jobsTable).
		Delete("", "").
		Eq("user_id", ownerID).
		In("status", values).
		Execute()
	if err != nil {
		return fmt.Errorf("bulk delete extraction jobs: %w", err)
	}
	return nil
}

func (b *SupabaseBackend) InsertDraft(_ context.Context, fields map[string]interface{}) (*models.EventDraft, error) {
	body, _, err := b.client.From(draftsTable).
		Insert(fields, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("insert event draft: %w", err)
	}
	var rows []models.EventDraft
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode inserted draft: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no row returned after draft insert")
	}
	return &rows[0], nil
}

func (b *SupabaseBackend) ListDrafts(_ context.Context, ownerID string) ([]models.EventDraft, error) {
	body, _, err := b.client.From(draftsTable).
		Select("*", "", false).
		Eq("user_id", ownerID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("list event drafts: %w", err)
	}
	var rows []models.EventDraft
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode event drafts: %w", err)
	}
	return rows, nil
}

func (b *SupabaseBackend) UpdateDraft(_ context.Context, id string, fields map[string]interface{}) (*models.EventDraft, error) {
	body, _, err := b.client.From(draftsTable).
		Update(fields, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("update event draft %s: %w", id, err)
	}
	var rows []models.EventDraft
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode updated draft %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("event draft %s not found for update", id)
	}
	return &rows[0], nil
}

func (b *SupabaseBackend) DeleteDraft(_ context.Context, id string) error {
	_, _, err := b.client.From(draftsTable).
		Delete("", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("delete event draft %s: %w", id, err)
	}
	return nil
}

func (b *SupabaseBackend) InsertEvent(_ context.Context, fields map[string]interface{}) (*models.Event, error) {
	body, _, err := b.client.From(eventsTable).
		Insert(fields, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	var rows []models.Event
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode inserted event: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no row returned after event insert")
	}
	return &rows[0], nil
}
