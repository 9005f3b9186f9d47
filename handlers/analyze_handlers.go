package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"eventpulse/event-service/internal/orchestrator"
	"eventpulse/event-service/models"
	"eventpulse/event-service/utils"
)

// AnalyzeImageRequest is the payload for the direct, non-queued analysis flow
// used by the single-image form: exactly one of image_url or image_base64.
type AnalyzeImageRequest struct {
	UserID      string `json:"user_id" validate:"required,uuid4"`
	ImageURL    string `json:"image_url,omitempty" validate:"omitempty,url"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

// AnalyzeImage analyzes a single image synchronously, outside the job
// pipeline, and returns both the raw analysis and pre-filled draft form data.
// POST /api/v1/analyze
func (h *ApplicationHandler) AnalyzeImage(c *fiber.Ctx) error {
	req := new(AnalyzeImageRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Cannot parse analyze request")
	}
	if err := h.Validate.Struct(req); err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, strings.Join(utils.FormatValidationErrors(err), "; "))
	}
	if (req.ImageURL == "") == (req.ImageBase64 == "") {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Provide exactly one of image_url or image_base64")
	}

	var (
		analysis *models.AnalysisResult
		err      error
	)
	if req.ImageURL != "" {
		analysis, err = h.Analyzer.AnalyzeImageURL(c.UserContext(), req.ImageURL)
	} else {
		analysis, err = h.Analyzer.AnalyzeImageBase64(c.UserContext(), req.ImageBase64)
	}
	if err != nil {
		h.Log.WithError(err).Error("direct analysis failed")
		return utils.RespondWithError(c, fiber.StatusBadGateway, "Analyzer is unavailable")
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "Invalid user_id")
	}
	form := orchestrator.MapAnalysisToDraft(*analysis, userID, nil, req.ImageURL)
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"analysis": analysis,
		"draft":    form,
	})
}
