package models

// AnalysisResult is the structured output the AI flyer analyzer writes back to
// a job's analysis_result column (or returns inline from the direct endpoint).
// All fields are free text as produced by the model; consumers treat the
// sentinels "No especificado", "Gratis" and the empty string as absent data.
type AnalysisResult struct {
	EventName       string            `json:"event_name"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	EndTime         string            `json:"end_time"`
	Description     string            `json:"description"`
	Location        string            `json:"location"`
	Organizer       string            `json:"organizer"`
	Price           string            `json:"price"`
	IsRecurring     bool              `json:"is_recurring"`
	RecurringDates  []string          `json:"recurring_dates,omitempty"`
	RegistrationURL string            `json:"registration_url"`
	Tags            []string          `json:"tags,omitempty"`
	Subcategory     string            `json:"subcategory"`
	TargetAudience  []string          `json:"target_audience,omitempty"`
	EventFeatures   map[string]string `json:"event_features,omitempty"`
}
