package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Synthesizer calls the remote text-to-speech (TTS) service over HTTP.
type Synthesizer struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewSynthesizer creates a Synthesizer targeting the given base URL.
func NewSynthesizer(baseURL string, timeout time.Duration) *Synthesizer {
	return &Synthesizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// synthesizeRequest is the JSON body for POST /generate-speech/.
type synthesizeRequest struct {
	RequestText string `json:"request_text"`
}

// Synthesize performs one attempt against POST /generate-speech/ and returns
// the raw audio bytes. The response is buffered fully in memory; a 2xx with
// a zero-length body is an EmptyPayload failure.
func (c *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(synthesizeRequest{RequestText: text})
	if err != nil {
		return nil, malformed(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-speech/", bytes.NewReader(payload))
	if err != nil {
		return nil, unreachable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, remoteStatus(resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, malformed(err)
	}
	if len(audio) == 0 {
		return nil, &Error{Kind: KindEmptyPayload, Detail: "speech service returned empty audio"}
	}
	return audio, nil
}

// BaseURL returns the configured service base URL.
func (c *Synthesizer) BaseURL() string { return c.baseURL }
