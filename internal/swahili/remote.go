package swahili

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RemoteClassifier calls an external language-identification service over
// HTTP. The service accepts {"text": ...} and answers with a language tag
// and a confidence in [0,1].
type RemoteClassifier struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteClassifier builds a classifier client for the given endpoint.
func NewRemoteClassifier(endpoint string, timeout time.Duration) (*RemoteClassifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("classifier endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse classifier endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClassifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Classify sends text to the classification service.
func (c *RemoteClassifier) Classify(ctx context.Context, text string) (Detection, error) {
	payload, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Detection{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Detection{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Detection{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Detection{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Detection{}, fmt.Errorf("classifier error (status %d): %s", resp.StatusCode, string(body))
	}

	var result classifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Detection{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return Detection{Language: result.Language, Confidence: result.Confidence}, nil
}
