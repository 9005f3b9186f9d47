package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"eventpulse/event-service/models"
)

// DraftStore is the CRUD layer over event_drafts plus the publish operation
// that materializes a draft into a permanent event. Like the job store it
// never surfaces raw backend errors: operations return ""/false sentinels and
// record the failure in LastError.
type DraftStore struct {
	backend DraftBackend
	log     *logrus.Logger

	mu        sync.RWMutex
	drafts    map[string]models.EventDraft
	lastError string
}

func NewDraftStore(backend DraftBackend, log *logrus.Logger) *DraftStore {
	return &DraftStore{
		backend: backend,
		log:     log,
		drafts:  make(map[string]models.EventDraft),
	}
}

// FetchDrafts replaces local state with the owner's drafts from the backend.
func (s *DraftStore) FetchDrafts(ctx context.Context, ownerID string) bool {
	rows, err := s.backend.ListDrafts(ctx, ownerID)
	if err != nil {
		s.fail("fetch drafts failed", err)
		return false
	}
	s.mu.Lock()
	s.drafts = make(map[string]models.EventDraft, len(rows))
	for _, row := range rows {
		s.drafts[row.ID.String()] = row
	}
	s.mu.Unlock()
	return true
}

// SaveDraft persists a new draft and returns its id, or "" on failure.
func (s *DraftStore) SaveDraft(ctx context.Context, draft models.EventDraft) string {
	if !draft.IsRecurring {
		// recurring_dates is only meaningful on recurring drafts
		draft.RecurringDates = nil
	}
	row, err := s.backend.InsertDraft(ctx, draftFields(draft))
	if err != nil {
		s.fail("save draft failed", err)
		return ""
	}
	s.mu.Lock()
	s.drafts[row.ID.String()] = *row
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"draft_id": row.ID, "title": row.Title}).Info("draft saved")
	return row.ID.String()
}

// UpdateDraft applies a partial update to a draft.
func (s *DraftStore) UpdateDraft(ctx context.Context, id string, fields map[string]interface{}) bool {
	fields["updated_at"] = time.Now()
	row, err := s.backend.UpdateDraft(ctx, id, fields)
	if err != nil {
		s.fail("update draft failed", err)
		return false
	}
	s.mu.Lock()
	s.drafts[id] = *row
	s.mu.Unlock()
	return true
}

// DeleteDraft removes a draft from the backend and local state.
func (s *DraftStore) DeleteDraft(ctx context.Context, id string) bool {
	if err := s.backend.DeleteDraft(ctx, id); err != nil {
		s.fail("delete draft failed", err)
		return false
	}
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
	return true
}

// PublishDraft creates a permanent event from the draft, then deletes the
// draft. The draft must carry a title; recurring dates left over from edits on
// a no-longer-recurring draft are stripped rather than published. If the event
// insert fails the draft is untouched and publish fails. If the insert
// succeeds but the draft deletion fails, the publish still succeeds: the event
// exists, which is what the user asked for, and the orphaned draft is
// tolerated.
func (s *DraftStore) PublishDraft(ctx context.Context, id string) bool {
	s.mu.RLock()
	draft, ok := s.drafts[id]
	s.mu.RUnlock()
	if !ok {
		s.log.WithField("draft_id", id).Warn("publish failed: draft not found")
		s.mu.Lock()
		s.lastError = "draft not found"
		s.mu.Unlock()
		return false
	}

	if strings.TrimSpace(draft.Title) == "" {
		s.log.WithField("draft_id", id).Warn("publish failed: draft has no title")
		s.mu.Lock()
		s.lastError = "draft title is required"
		s.mu.Unlock()
		return false
	}
	if !draft.IsRecurring {
		draft.RecurringDates = nil
	}

	if _, err := s.backend.InsertEvent(ctx, eventFields(draft)); err != nil {
		s.fail("publish failed: could not create event", err)
		return false
	}

	if err := s.backend.DeleteDraft(ctx, id); err != nil {
		s.log.WithError(err).WithField("draft_id", id).Warn("event published but draft cleanup failed, orphaned draft left behind")
	}

	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"draft_id": id, "title": draft.Title}).Info("draft published")
	return true
}

// Drafts returns the local snapshot ordered by creation time, newest first.
func (s *DraftStore) Drafts() []models.EventDraft {
	s.mu.RLock()
	out := make([]models.EventDraft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Draft returns one draft from the local snapshot.
func (s *DraftStore) Draft(id string) (models.EventDraft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	return d, ok
}

// LastError returns the most recent backend failure message.
func (s *DraftStore) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *DraftStore) fail(msg string, err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
	s.log.WithError(err).Error(msg)
}

// draftFields builds the insert payload for a draft, omitting unset optionals
// so the database can apply its defaults.
func draftFields(d models.EventDraft) map[string]interface{} {
	category := d.Category
	if category == "" {
		category = models.CategoryGeneral
	}
	fields := map[string]interface{}{
		"user_id":      d.UserID.String(),
		"title":        d.Title,
		"category":     category,
		"is_recurring": d.IsRecurring,
	}
	if d.ExtractionJobID != nil {
		fields["extraction_job_id"] = d.ExtractionJobID.String()
	}
	putString(fields, "description", d.Description)
	putString(fields, "image", d.Image)
	putString(fields, "date", d.Date)
	putString(fields, "time", d.Time)
	putString(fields, "end_time", d.EndTime)
	putString(fields, "location", d.Location)
	putString(fields, "organizer", d.Organizer)
	putString(fields, "registration_form_url", d.RegistrationFormURL)
	putString(fields, "bank_name", d.BankName)
	putString(fields, "bank_account_number", d.BankAccountNumber)
	putString(fields, "source_image_url", d.SourceImageURL)
	putString(fields, "subcategory", d.Subcategory)
	if d.Price != nil {
		fields["price"] = *d.Price
	}
	if len(d.TargetAudience) > 0 {
		fields["target_audience"] = d.TargetAudience
	}
	if len(d.RecurringDates) > 0 {
		fields["recurring_dates"] = d.RecurringDates
	}
	if len(d.Tags) > 0 {
		fields["tags"] = d.Tags
	}
	if len(d.EventFeatures) > 0 {
		fields["event_features"] = d.EventFeatures
	}
	return fields
}

// eventFields copies a draft's publishable fields into an events insert
// payload, leaving the draft-only bookkeeping (draft id, extraction job
// back-reference) behind.
func eventFields(d models.EventDraft) map[string]interface{} {
	fields := draftFields(d)
	delete(fields, "extraction_job_id")
	return fields
}

func putString(fields map[string]interface{}, key string, val *string) {
	if val != nil && *val != "" {
		fields[key] = *val
	}
}
