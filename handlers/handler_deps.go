package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"eventpulse/event-service/internal/orchestrator"
	"eventpulse/event-service/internal/store"
	"eventpulse/event-service/models"
)

// AnalyzerClient defines the direct-analysis operations handlers expect from
// the flyer analyzer. The concrete implementation lives in internal/analyzer;
// the interface keeps handlers testable with a fake.
type AnalyzerClient interface {
	AnalyzeImageURL(ctx context.Context, imageURL string) (*models.AnalysisResult, error)
	AnalyzeImageBase64(ctx context.Context, imageBase64 string) (*models.AnalysisResult, error)
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Jobs         *store.ExtractionJobStore
	Drafts       *store.DraftStore
	Orchestrator *orchestrator.Orchestrator
	Analyzer     AnalyzerClient
	Log          *logrus.Logger
	Validate     *validator.Validate
}

// NewApplicationHandler creates an ApplicationHandler with the given dependencies.
func NewApplicationHandler(jobs *store.ExtractionJobStore, drafts *store.DraftStore, orc *orchestrator.Orchestrator, analyzer AnalyzerClient, log *logrus.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		Jobs:         jobs,
		Drafts:       drafts,
		Orchestrator: orc,
		Analyzer:     analyzer,
		Log:          log,
		Validate:     validator.New(),
	}
}
