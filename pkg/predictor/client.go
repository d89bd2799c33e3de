// Package predictor is a thin client for the NeuroLens risk assessment API.
// The pipeline's final enhanced image is posted together with the visit
// vitals; the prediction itself happens server-side.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Vitals are the patient measurements submitted alongside the image. The
// bounds mirror the server-side validation.
type Vitals struct {
	Age         int
	SystolicBP  float64
	DiastolicBP float64
}

// Validate checks the vitals against the ranges the API accepts.
func (v Vitals) Validate() error {
	if v.Age < 0 || v.Age > 120 {
		return fmt.Errorf("age must be between 0 and 120, got %d", v.Age)
	}
	if v.SystolicBP < 50 || v.SystolicBP > 300 {
		return fmt.Errorf("systolic blood pressure must be between 50-300 mmHg, got %g", v.SystolicBP)
	}
	if v.DiastolicBP < 30 || v.DiastolicBP > 200 {
		return fmt.Errorf("diastolic blood pressure must be between 30-200 mmHg, got %g", v.DiastolicBP)
	}
	if v.DiastolicBP >= v.SystolicBP {
		return fmt.Errorf("diastolic blood pressure must be less than systolic")
	}
	return nil
}

// Result is the risk assessment returned by the API.
type Result struct {
	Success     bool            `json:"success"`
	RiskScore   float64         `json:"risk_score"`
	RiskLevel   string          `json:"risk_level"`
	RiskFactors map[string]bool `json:"risk_factors"`
}

// Client calls the NeuroLens risk assessment API.
type Client struct {
	logger     zerolog.Logger
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a client for the API at the given base URL.
func NewClient(baseURL string, logger zerolog.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsed.Scheme)
	}

	return &Client{
		logger:  logger.With().Str("component", "predictor").Logger(),
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Health checks that the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

// PredictRisk posts an enhanced fundus JPEG and the visit vitals and returns
// the risk assessment.
func (c *Client) PredictRisk(ctx context.Context, imageJPEG []byte, vitals Vitals) (*Result, error) {
	if err := vitals.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vitals: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "fundus.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}
	if _, err := part.Write(imageJPEG); err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	fields := map[string]string{
		"age":          strconv.Itoa(vitals.Age),
		"systolic_bp":  strconv.FormatFloat(vitals.SystolicBP, 'f', -1, 64),
		"diastolic_bp": strconv.FormatFloat(vitals.DiastolicBP, 'f', -1, 64),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to build request body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/predict-risk"), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug().
		Int("age", vitals.Age).
		Int("image_bytes", len(imageJPEG)).
		Msg("requesting risk prediction")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("prediction request failed: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse prediction response: %w", err)
	}

	c.logger.Info().
		Float64("risk_score", result.RiskScore).
		Str("risk_level", result.RiskLevel).
		Msg("received risk prediction")

	return &result, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = path
	return u.String()
}
