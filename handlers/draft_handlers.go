package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"eventpulse/event-service/models"
	"eventpulse/event-service/utils"
)

// CreateDraftRequest is the payload for explicitly saving a draft.
type CreateDraftRequest struct {
	UserID              string            `json:"user_id" validate:"required,uuid4"`
	ExtractionJobID     *string           `json:"extraction_job_id,omitempty" validate:"omitempty,uuid4"`
	Title               string            `json:"title" validate:"required"`
	Description         *string           `json:"description,omitempty"`
	Category            string            `json:"category" validate:"omitempty,oneof=music volunteer general"`
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
}

// draftUpdateColumns is the whitelist of columns a partial update may touch.
var draftUpdateColumns = map[string]struct{}{
	"title": {}, "description": {}, "category": {}, "image": {}, "date": {},
	"time": {}, "end_time": {}, "location": {}, "organizer": {}, "price": {},
	"registration_form_url": {}, "bank_name": {}, "bank_account_number": {},
	"source_image_url": {}, "target_audience": {}, "is_recurring": {},
	"recurring_dates": {}, "subcategory": {}, "tags": {}, "event_features": {},
}

// ListDrafts refreshes and returns the user's drafts, newest first.
// GET /api/v1/drafts?user_id=...
func (h *ApplicationHandler) ListDrafts(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "user_id query parameter is required")
	}
	if !h.Drafts.FetchDrafts(c.UserContext(), userID) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve drafts")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, h.Drafts.Drafts())
}

// CreateDraft saves a new draft.
// POST /api/v1/drafts
func (h *ApplicationHandler) CreateDraft(c *fiber.Ctx) error {
	req := new(CreateDraftRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse draft")
	}
	req.Title = utils.SanitizeInput(req.Title)
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}
	if len(req.RecurringDates) > 0 && !req.IsRecurring {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "recurring_dates requires is_recurring to be true")
	}

	draft, err := req.toDraft()
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, err.Error())
	}
	id := h.Drafts.SaveDraft(c.UserContext(), draft)
	if id == "" {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not save draft")
	}
	return utils.RespondWithJSON(c, fiber.StatusCreated, fiber.Map{"id": id})
}

// UpdateDraft applies a partial update to a draft. The update may not blank
// the title, and the recurrence pair is cross-checked against the stored draft
// so recurring_dates can never end up set on a non-recurring draft.
// PATCH /api/v1/drafts/:id
func (h *ApplicationHandler) UpdateDraft(c *fiber.Ctx) error {
	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse draft update")
	}

	id := c.Params("id")
	current, ok := h.Drafts.Draft(id)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Draft not found")
	}

	fields := make(map[string]interface{}, len(payload))
	for key, val := range payload {
		if _, ok := draftUpdateColumns[key]; ok {
			fields[key] = val
		}
	}
	if len(fields) == 0 {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "No updatable fields provided")
	}

	if raw, present := fields["title"]; present {
		title, _ := raw.(string)
		if utils.SanitizeInput(title) == "" {
			return utils.RespondWithError(c, fiber.StatusBadRequest, "title cannot be empty")
		}
	}

	// Merge the update onto the stored draft to judge the resulting pair.
	isRecurring := current.IsRecurring
	if v, ok := fields["is_recurring"].(bool); ok {
		isRecurring = v
	}
	recurringCount := len(current.RecurringDates)
	if raw, present := fields["recurring_dates"]; present {
		recurringCount = 0
		if list, ok := raw.([]interface{}); ok {
			recurringCount = len(list)
		}
	}
	if recurringCount > 0 && !isRecurring {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "recurring_dates requires is_recurring to be true")
	}

	if !h.Drafts.UpdateDraft(c.UserContext(), id, fields) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not update draft")
	}
	draft, _ := h.Drafts.Draft(id)
	return utils.RespondWithJSON(c, fiber.StatusOK, draft)
}

// DeleteDraft removes a draft.
// DELETE /api/v1/drafts/:id
func (h *ApplicationHandler) DeleteDraft(c *fiber.Ctx) error {
	if !h.Drafts.DeleteDraft(c.UserContext(), c.Params("id")) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not delete draft")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

// PublishDraft converts a draft into a permanent event and discards it.
// POST /api/v1/drafts/:id/publish
func (h *ApplicationHandler) PublishDraft(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := h.Drafts.Draft(id); !ok {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Draft not found")
	}
	if !h.Drafts.PublishDraft(c.UserContext(), id) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not publish draft")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"published": true})
}

func (r *CreateDraftRequest) toDraft() (models.EventDraft, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return models.EventDraft{}, err
	}
	draft := models.EventDraft{
		UserID:              userID,
		Title:               r.Title,
		Description:         r.Description,
		Category:            r.Category,
		Image:               r.Image,
		Date:                r.Date,
		Time:                r.Time,
		EndTime:             r.EndTime,
		Location:            r.Location,
		Organizer:           r.Organizer,
		Price:               r.Price,
		RegistrationFormURL: r.RegistrationFormURL,
		BankName:            r.BankName,
		BankAccountNumber:   r.BankAccountNumber,
		SourceImageURL:      r.SourceImageURL,
		TargetAudience:      r.TargetAudience,
		IsRecurring:         r.IsRecurring,
		RecurringDates:      r.RecurringDates,
		Subcategory:         r.Subcategory,
		Tags:                r.Tags,
		EventFeatures:       r.EventFeatures,
	}
	if r.ExtractionJobID != nil {
		jobID, err := uuid.Parse(*r.ExtractionJobID)
		if err != nil {
			return models.EventDraft{}, err
		}
		draft.ExtractionJobID = &jobID
	}
	return draft, nil
}
