package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ExtractionTrigger asks the external worker to fetch candidate images for a
// job's URL and write the results back to the job record. The call is one-way:
// an error here means the request never reached the worker, not that
// extraction failed (processing failures surface as status=failed on the job).
type ExtractionTrigger interface {
	SubmitExtraction(ctx context.Context, jobID string) error
}

// AnalysisTrigger asks the external AI analyzer to extract structured event
// fields from the job's selected image and write them back to the job record.
type AnalysisTrigger interface {
	SubmitAnalysis(ctx context.Context, jobID, imageURL string) error
}

// Edge function names deployed alongside the extraction_jobs table.
const (
	extractFunction = "extract-flyer-images"
	analyzeFunction = "analyze-flyer-image"
)

// EdgeFunctions invokes Supabase Edge Functions over HTTP. It implements both
// trigger interfaces.
type EdgeFunctions struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

func NewEdgeFunctions(baseURL, apiKey string, log *logrus.Logger) *EdgeFunctions {
	return &EdgeFunctions{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

func (e *EdgeFunctions) SubmitExtraction(ctx context.Context, jobID string) error {
	e.log.WithField("job_id", jobID).Info("submitting extraction trigger")
	return e.invoke(ctx, extractFunction, map[string]string{"job_id": jobID})
}

func (e *EdgeFunctions) SubmitAnalysis(ctx context.Context, jobID, imageURL string) error {
	e.log.WithFields(logrus.Fields{"job_id": jobID, "image_url": imageURL}).Info("submitting analysis trigger")
	return e.invoke(ctx, analyzeFunction, map[string]string{"job_id": jobID, "image_url": imageURL})
}

func (e *EdgeFunctions) invoke(ctx context.Context, fn string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", fn, err)
	}

	url := fmt.Sprintf("%s/functions/v1/%s", e.baseURL, fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.apiKey)
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", fn, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("invoke %s: non-2xx status %d", fn, resp.StatusCode)
	}
	return nil
}
