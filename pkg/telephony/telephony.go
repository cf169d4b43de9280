package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	URL      string        `split_words:"true" required:"true"`
	APIKey   string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	CallerID string        `envconfig:"CALLER_ID" split_words:"true" required:"true"`
	Timeout  time.Duration `split_words:"true" default:"15s"`
}

// Client places outbound calls through the telephony bridge. The bridge
// reports outcomes as free text; Place maps that text onto a structured
// CallResult so callers never do substring matching themselves.
type Client struct {
	baseURL    string
	apiKey     string
	callerID   string
	httpClient *http.Client
}

var _ contractx.Telephony = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("telephony bridge url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid telephony bridge url: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("telephony api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:  baseURL,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		callerID: strings.TrimSpace(cfg.CallerID),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type placeRequest struct {
	AppID       string `json:"app_id"`
	SessionID   string `json:"session_id"`
	Destination string `json:"destination"`
	CallerID    string `json:"caller_id,omitempty"`
}

type placeResponse struct {
	Result string `json:"result"`
}

// Place bridges the session onto an outbound call to destination. A transport
// error is returned as an error; a bridge-reported failure comes back as a
// CallResult with OK=false and a reason code.
func (c *Client) Place(ctx context.Context, appID, sessionID, destination string) (contractx.CallResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return contractx.CallResult{}, errors.New("session id is required")
	}
	if strings.TrimSpace(destination) == "" {
		return contractx.CallResult{}, errors.New("destination is required")
	}

	body, err := json.Marshal(placeRequest{
		AppID:       appID,
		SessionID:   sessionID,
		Destination: destination,
		CallerID:    c.callerID,
	})
	if err != nil {
		return contractx.CallResult{}, fmt.Errorf("marshal place request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return contractx.CallResult{}, fmt.Errorf("build place request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.CallResult{}, fmt.Errorf("execute place request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.CallResult{}, fmt.Errorf("read place response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.CallResult{}, fmt.Errorf("telephony http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed placeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.CallResult{}, fmt.Errorf("decode place response: %w", err)
	}

	return ClassifyResult(parsed.Result), nil
}

// ClassifyResult maps the bridge's free-text result onto a structured outcome.
// The bridge defines no failure taxonomy, so only the distinctions its text
// actually makes are mapped; everything else is ReasonUnknownFailure.
func ClassifyResult(result string) contractx.CallResult {
	lowered := strings.ToLower(result)

	failed := strings.Contains(lowered, "failed") ||
		strings.Contains(lowered, "error") ||
		strings.Contains(lowered, "invalid")
	if !failed {
		return contractx.CallResult{OK: true, Detail: result}
	}

	reason := contractx.ReasonUnknownFailure
	switch {
	case strings.Contains(lowered, "busy"):
		reason = contractx.ReasonBusy
	case strings.Contains(lowered, "invalid"):
		reason = contractx.ReasonInvalidDestination
	case strings.Contains(lowered, "error"):
		reason = contractx.ReasonProviderError
	}

	return contractx.CallResult{
		OK:         false,
		ReasonCode: reason,
		Detail:     result,
	}
}
