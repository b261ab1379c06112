package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RecognizeResult is the normalized output of the speech-to-text service.
// Text and AudioRef are nil when the service answered 2xx without the
// expected nested fields; callers decide what to do with the gap.
type RecognizeResult struct {
	UserID   int64
	Text     *string
	AudioRef *string
}

// Recognizer calls the remote speech-to-text (ATOT) service over HTTP.
type Recognizer struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewRecognizer creates a Recognizer targeting the given base URL. Each call
// is bounded by timeout.
func NewRecognizer(baseURL string, timeout time.Duration) *Recognizer {
	return &Recognizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// recognizeResponse mirrors the JSON returned by GET /run-model.
type recognizeResponse struct {
	UserID int64 `json:"user_id"`
	Result struct {
		Details struct {
			ReceivedText *string `json:"received_text"`
			AudioURL     *string `json:"audio_url"`
		} `json:"details"`
	} `json:"result"`
}

// Recognize performs one attempt against GET /run-model. A 2xx response with
// missing nested fields is a success with nil fields, not a failure; the
// gap is logged so it stays visible.
func (c *Recognizer) Recognize(ctx context.Context) (RecognizeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/run-model", nil)
	if err != nil {
		return RecognizeResult{}, unreachable(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RecognizeResult{}, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RecognizeResult{}, remoteStatus(resp.StatusCode)
	}

	var body recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RecognizeResult{}, malformed(err)
	}

	result := RecognizeResult{
		UserID:   body.UserID,
		Text:     body.Result.Details.ReceivedText,
		AudioRef: body.Result.Details.AudioURL,
	}
	if result.Text == nil || result.AudioRef == nil {
		slog.Warn("recognize response missing expected fields",
			"has_text", result.Text != nil,
			"has_audio_ref", result.AudioRef != nil,
		)
	}
	return result, nil
}

// BaseURL returns the configured service base URL.
func (c *Recognizer) BaseURL() string { return c.baseURL }
