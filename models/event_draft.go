package models

import (
	"time"

	"github.com/google/uuid"
)

// Event categories accepted by the events and event_drafts tables.
const (
	CategoryMusic     = "music"
	CategoryVolunteer = "volunteer"
	CategoryGeneral   = "general"
)

// DefaultTargetAudience is applied when the analyzer did not tag an audience.
var DefaultTargetAudience = []string{"general"}

// EventDraft represents a row of the event_drafts table: an editable,
// not-yet-public event, optionally seeded from an extraction job's analysis.
// RecurringDates must be non-empty only when IsRecurring is true; bank fields
// are only meaningful when Price is positive.
type EventDraft struct {
	ID                  uuid.UUID         `json:"id"`
	UserID              uuid.UUID         `json:"user_id"`
	ExtractionJobID     *uuid.UUID        `json:"extraction_job_id,omitempty"`
	Title               string            `json:"title"`
	Description         *string           `json:"description,omitempty"`
	Category            string            `json:"category"`
	Image               *string           `json:"image,omitempty"`
	Date                *string           `json:"date,omitempty"`     // YYYY-MM-DD
	Time                *string           `json:"time,omitempty"`     // HH:MM
	EndTime             *string           `json:"end_time,omitempty"` // HH:MM
	Location            *string           `json:"location,omitempty"`
	Organizer           *string           `json:"organizer,omitempty"`
	Price               *float64          `json:"price,omitempty"`
	RegistrationFormURL *string           `json:"registration_form_url,omitempty"`
	BankName            *string           `json:"bank_name,omitempty"`
	BankAccountNumber   *string           `json:"bank_account_number,omitempty"`
	SourceImageURL      *string           `json:"source_image_url,omitempty"`
	TargetAudience      []string          `json:"target_audience,omitempty"`
	IsRecurring         bool              `json:"is_recurring"`
	RecurringDates      []string          `json:"recurring_dates,omitempty"` // YYYY-MM-DD each
	Subcategory         *string           `json:"subcategory,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	EventFeatures       map[string]string `json:"event_features,omitempty"` // JSONB
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
