package voiceagent

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

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL              string        `split_words:"true" required:"true"`
	APIKey           string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	ProvisionTimeout time.Duration `split_words:"true" default:"30s"`
	HistoryTimeout   time.Duration `split_words:"true" default:"10s"`
}

// Client talks to the conversational-agent provisioning API: one endpoint to
// spin up an ephemeral agent, one to read its conversation so far.
type Client struct {
	baseURL          string
	apiKey           string
	httpClient       *http.Client
	provisionTimeout time.Duration
	historyTimeout   time.Duration
}

var _ contractx.Provisioner = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("voice agent api url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid voice agent api url: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("voice agent api key is required")
	}

	provisionTimeout := cfg.ProvisionTimeout
	if provisionTimeout <= 0 {
		provisionTimeout = 30 * time.Second
	}
	historyTimeout := cfg.HistoryTimeout
	if historyTimeout <= 0 {
		historyTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:          baseURL,
		apiKey:           strings.TrimSpace(cfg.APIKey),
		httpClient:       &http.Client{},
		provisionTimeout: provisionTimeout,
		historyTimeout:   historyTimeout,
	}, nil
}

// Join provisions a new ephemeral agent and returns its id. Bounded by the
// provisioning timeout.
func (c *Client) Join(ctx context.Context, req contractx.JoinRequest) (contractx.JoinResponse, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return contractx.JoinResponse{}, errors.New("session id is required")
	}
	if strings.TrimSpace(req.Script) == "" {
		return contractx.JoinResponse{}, errors.New("agent script is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.provisionTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return contractx.JoinResponse{}, fmt.Errorf("marshal join request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/join", bytes.NewReader(body))
	if err != nil {
		return contractx.JoinResponse{}, err
	}

	var parsed contractx.JoinResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.JoinResponse{}, fmt.Errorf("decode join response: %w", err)
	}
	if strings.TrimSpace(parsed.AgentID) == "" {
		return contractx.JoinResponse{}, errors.New("join response carries no agent_id")
	}
	return parsed, nil
}

// History fetches the agent's conversation so far. Bounded by the history
// timeout.
func (c *Client) History(ctx context.Context, agentID string) (contractx.HistoryResponse, error) {
	if strings.TrimSpace(agentID) == "" {
		return contractx.HistoryResponse{}, errors.New("agent id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.historyTimeout)
	defer cancel()

	raw, err := c.do(ctx, http.MethodGet, "/history?agent_id="+url.QueryEscape(agentID), nil)
	if err != nil {
		return contractx.HistoryResponse{}, err
	}

	var parsed contractx.HistoryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.HistoryResponse{}, fmt.Errorf("decode history response: %w", err)
	}
	return parsed, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build voice agent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute voice agent request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read voice agent response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("voice agent http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
