package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// GenerateResult is the normalized output of the text-to-text service.
type GenerateResult struct {
	UserID int64
	Text   *string
}

// Generator calls the remote text-to-text (TTOT) service over HTTP.
type Generator struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewGenerator creates a Generator targeting the given base URL.
func NewGenerator(baseURL string, timeout time.Duration) *Generator {
	return &Generator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// generateResponse mirrors the JSON returned by GET /generate.
type generateResponse struct {
	UserID   int64   `json:"user_id"`
	Response *string `json:"response"`
}

// Generate performs one attempt against GET /generate. A 2xx response
// without the response field is a success with a nil Text.
func (c *Generator) Generate(ctx context.Context) (GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generate", nil)
	if err != nil {
		return GenerateResult{}, unreachable(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GenerateResult{}, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return GenerateResult{}, remoteStatus(resp.StatusCode)
	}

	var body generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GenerateResult{}, malformed(err)
	}

	if body.Response == nil {
		slog.Warn("generate response missing response field")
	}
	return GenerateResult{UserID: body.UserID, Text: body.Response}, nil
}

// BaseURL returns the configured service base URL.
func (c *Generator) BaseURL() string { return c.baseURL }
