package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"eventpulse/event-service/models"
)

// Client calls the flyer analyzer synchronously, outside the job pipeline.
// The single-image form flow uses this to analyze an uploaded or linked image
// without creating an extraction job first.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

const analyzeFunction = "analyze-flyer-image"

func NewClient(baseURL, apiKey string, log *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Vision models are slow; allow well over the interactive norm.
		httpClient: &http.Client{Timeout: 90 * time.Second},
		log:        log,
	}
}

// AnalyzeImageURL analyzes an image reachable at the given URL.
func (c *Client) AnalyzeImageURL(ctx context.Context, imageURL string) (*models.AnalysisResult, error) {
	return c.analyze(ctx, map[string]string{"image_url": imageURL})
}

// AnalyzeImageBase64 analyzes a base64-encoded image payload.
func (c *Client) AnalyzeImageBase64(ctx context.Context, imageBase64 string) (*models.AnalysisResult, error) {
	return c.analyze(ctx, map[string]string{"image_base64": imageBase64})
}

func (c *Client) analyze(ctx context.Context, payload map[string]string) (*models.AnalysisResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analyze payload: %w", err)
	}

	start := time.Now()
	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, analyzeFunction)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("analyzer responded")

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode analyze response: %w", err)
	}
	return &result, nil
}
