package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"eventpulse/event-service/internal/orchestrator"
	"eventpulse/event-service/utils"
)

// CreateExtractionRequest is the payload for queueing a new extraction job.
type CreateExtractionRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid4"`
	SourceURL string `json:"source_url" validate:"required,url"`
}

// SelectImageRequest names the candidate image to analyze.
type SelectImageRequest struct {
	ImageURL string `json:"image_url" validate:"required,url"`
}

// PollingRequest identifies whose jobs the background refresh should track.
type PollingRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
}

// BatchAnalyzeRequest queues multiple candidate images for sequential analysis.
type BatchAnalyzeRequest struct {
	UserID string                   `json:"user_id" validate:"required,uuid4"`
	Items  []orchestrator.BatchItem `json:"items" validate:"required,min=1,dive"`
}

// CreateExtraction queues extraction of candidate images from a URL.
// POST /api/v1/extractions
func (h *ApplicationHandler) CreateExtraction(c *fiber.Ctx) error {
	req := new(CreateExtractionRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse extraction request")
	}
	req.SourceURL = utils.SanitizeInput(req.SourceURL)
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}

	jobID := h.Jobs.QueueExtraction(c.UserContext(), req.UserID, req.SourceURL)
	if jobID == "" {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not create extraction job")
	}
	return utils.RespondWithJSON(c, fiber.StatusCreated, fiber.Map{"id": jobID})
}

// ListExtractions refreshes and returns the user's jobs, newest first.
// GET /api/v1/extractions?user_id=...
func (h *ApplicationHandler) ListExtractions(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "user_id query parameter is required")
	}
	if !h.Jobs.Refresh(c.UserContext(), userID) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not retrieve extraction jobs")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, h.Jobs.Jobs())
}

// GetExtraction returns one job from the current snapshot.
// GET /api/v1/extractions/:id
func (h *ApplicationHandler) GetExtraction(c *fiber.Ctx) error {
	job, ok := h.Jobs.Job(c.Params("id"))
	if !ok {
		return utils.RespondWithError(c, fiber.StatusNotFound, "Extraction job not found")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, job)
}

// SelectImage picks a candidate image and starts its analysis.
// POST /api/v1/extractions/:id/select
func (h *ApplicationHandler) SelectImage(c *fiber.Ctx) error {
	req := new(SelectImageRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse image selection")
	}
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}

	jobID := c.Params("id")
	if !h.Jobs.SelectImage(c.UserContext(), jobID, req.ImageURL) {
		return utils.RespondWithError(c, fiber.StatusConflict, "Job is not in a selectable state")
	}
	job, _ := h.Jobs.Job(jobID)
	return utils.RespondWithJSON(c, fiber.StatusOK, job)
}

// RetryExtraction re-arms a failed job.
// POST /api/v1/extractions/:id/retry
func (h *ApplicationHandler) RetryExtraction(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if !h.Jobs.RetryExtraction(c.UserContext(), jobID) {
		return utils.RespondWithError(c, fiber.StatusConflict, "Job is not in a retryable state")
	}
	job, _ := h.Jobs.Job(jobID)
	return utils.RespondWithJSON(c, fiber.StatusOK, job)
}

// DeleteExtraction removes a job regardless of status.
// DELETE /api/v1/extractions/:id
func (h *ApplicationHandler) DeleteExtraction(c *fiber.Ctx) error {
	if !h.Jobs.RemoveExtraction(c.UserContext(), c.Params("id")) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not delete extraction job")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

// ClearCompletedExtractions bulk-deletes the user's completed and failed jobs.
// DELETE /api/v1/extractions?user_id=...
func (h *ApplicationHandler) ClearCompletedExtractions(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "user_id query parameter is required")
	}
	if !h.Jobs.ClearCompleted(c.UserContext(), userID) {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, "Could not clear completed jobs")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"cleared": true})
}

// StartPolling begins the background job refresh for a user. Idempotent.
// POST /api/v1/extractions/polling/start
func (h *ApplicationHandler) StartPolling(c *fiber.Ctx) error {
	req := new(PollingRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse polling request")
	}
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}
	h.Jobs.StartPolling(req.UserID)
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"polling": true})
}

// StopPolling halts the background job refresh.
// POST /api/v1/extractions/polling/stop
func (h *ApplicationHandler) StopPolling(c *fiber.Ctx) error {
	h.Jobs.StopPolling()
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"polling": false})
}

// AnalyzeJobImage runs the interactive flow: select one image, wait for the
// analysis to finish, and return pre-filled draft form data without saving it.
// POST /api/v1/extractions/:id/analyze
func (h *ApplicationHandler) AnalyzeJobImage(c *fiber.Ctx) error {
	req := new(SelectImageRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse image selection")
	}
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}

	form, ok := h.Orchestrator.AnalyzeInteractive(c.UserContext(), c.Params("id"), req.ImageURL)
	if !ok {
		return utils.RespondWithError(c, fiber.StatusUnprocessableEntity, "Analysis did not complete")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, form)
}

// BatchAnalyze queues multiple candidate images for sequential analysis, each
// producing its own draft.
// POST /api/v1/extractions/batch
func (h *ApplicationHandler) BatchAnalyze(c *fiber.Ctx) error {
	req := new(BatchAnalyzeRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse batch request")
	}
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}

	if !h.Orchestrator.StartBatch(req.UserID, req.Items) {
		return utils.RespondWithError(c, fiber.StatusConflict, "A batch is already running or no items could be queued")
	}
	return utils.RespondWithJSON(c, fiber.StatusAccepted, h.Orchestrator.Progress())
}

// BatchStatus reports progress of the current (or last) batch.
// GET /api/v1/extractions/batch/status
func (h *ApplicationHandler) BatchStatus(c *fiber.Ctx) error {
	return utils.RespondWithJSON(c, fiber.StatusOK, h.Orchestrator.Progress())
}
