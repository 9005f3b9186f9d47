package models

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a row of the events table: the permanent, publicly visible
// record a draft is materialized into on publish. The core only ever inserts
// into this table.
type Event struct {
	ID                  uuid.UUID         `json:"id"`
	UserID              uuid.UUID         `json:"user_id"`
	Title               string            `json:"title"`
	Description         *string           `json:"description,omitempty"`
	Category            string            `json:"category"`
	Image               *string           `json:"image,omitempty"`
	Date                *string           `json:"date,omitempty"`
	Time                *string           `json:"time,omitempty"`
	EndTime             *string           `json:"end_time,omitempty"`
	Location            *string           `json:"location,omitempty"`
	Organizer           *string           `json:"organizer,omitempty"`
	Price               *float64          `json:"price,omitempty"`
	RegistrationFormURL *string           `json:"registration_form_url,omitempty"`
	BankName            *string           `json:"bank_name,omitempty"`
	BankAccountNumber   *string           `json:"bank_account_number,omitempty"`
	SourceImageURL      *string           `json:"source_image_url,omitempty"`
	TargetAudience      []string          `json:"target_audience,omitempty"`
	IsRecurring         bool              `json:"is_recurring"`
	RecurringDates      []string          `json:"recurring_dates,omitempty"`
	Subcategory         *string           `json:"subcategory,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	EventFeatures       map[string]string `json:"event_features,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
