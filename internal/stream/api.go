package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qaml-ai/camel-go/internal/log"
)

// Sentinel errors for send outcomes. Checked with errors.Is.
var (
	// ErrQuotaExceeded maps the server's 402 response: the user has run out
	// of messages. Distinct from generic failures so the surface can show
	// quota-specific copy.
	ErrQuotaExceeded = errors.New("message quota exceeded")

	// ErrSendFailed covers every other non-success send response.
	ErrSendFailed = errors.New("send message failed")
)

// CredentialProvider supplies a short-lived bearer token on demand. The
// client attaches the token to every outgoing request and never caches or
// refreshes it itself.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredential is a CredentialProvider returning a fixed token. Suited
// to CLI use and tests; interactive hosts wire in their own refresh logic.
type StaticCredential string

// Token implements CredentialProvider.
func (s StaticCredential) Token(context.Context) (string, error) {
	return string(s), nil
}

// APIConfig contains the required parameters for an APIClient.
type APIConfig struct {
	BaseURL     string
	Credentials CredentialProvider
	Logger      log.Logger
	HTTPClient  *http.Client // optional, defaults to a 30s-timeout client
}

func (cfg APIConfig) validate() error {
	if cfg.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if cfg.Credentials == nil {
		return errors.New("credential provider is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// APIClient issues the outbound requests of the session protocol: send,
// cancel, and recommendations, plus opening the per-thread push channel.
type APIClient struct {
	baseURL string
	creds   CredentialProvider
	logger  log.Logger
	http    *http.Client

	// streamHTTP has no overall timeout: the push connection is long-lived.
	streamHTTP *http.Client
}

// NewAPIClient creates a client for the given endpoint.
func NewAPIClient(cfg APIConfig) (*APIClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid API config: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &APIClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
		logger:     cfg.Logger.With("component", "api"),
		http:       httpClient,
		streamHTTP: &http.Client{},
	}, nil
}

// SendRequest is the send-message payload. ThreadID is empty for the first
// message of a new conversation.
type SendRequest struct {
	ThreadID        string   `json:"threadId,omitempty"`
	Model           string   `json:"model"`
	Message         string   `json:"message"`
	SelectedSources []string `json:"selectedSources"`
	AutographMode   bool     `json:"autographMode"`
}

// SendResponse carries the server-confirmed thread id.
type SendResponse struct {
	ThreadID string `json:"threadId"`
}

// SendMessage submits a user message. A 402 response returns
// ErrQuotaExceeded; any other non-2xx status returns ErrSendFailed.
func (c *APIClient) SendMessage(ctx context.Context, req SendRequest) (SendResponse, error) {
	var out SendResponse

	resp, err := c.postJSON(ctx, "/threads/messages", req)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		io.Copy(io.Discard, resp.Body)
		return out, ErrQuotaExceeded
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return out, fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("%w: decode response: %w", ErrSendFailed, err)
	}
	return out, nil
}

// CancelStream asks the server to stop the thread's active turn. The server
// acknowledges by eventually emitting streamEnded on the push channel; the
// returned flag only reports whether the request itself was accepted.
func (c *APIClient) CancelStream(ctx context.Context, threadID string) (bool, error) {
	resp, err := c.postJSON(ctx, "/threads/"+threadID+"/cancel", struct{}{})
	if err != nil {
		return false, fmt.Errorf("cancel stream: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode <= 299, nil
}

// Recommendations fetches suggested prompts for the given data sources.
func (c *APIClient) Recommendations(ctx context.Context, dataSources []string) ([]string, error) {
	payload := struct {
		DataSources []string `json:"dataSources"`
	}{DataSources: dataSources}

	resp, err := c.postJSON(ctx, "/recommendations", payload)
	if err != nil {
		return nil, fmt.Errorf("fetch recommendations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch recommendations: status %d", resp.StatusCode)
	}

	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	return out.Suggestions, nil
}

// OpenChannel opens the thread's push channel over SSE.
func (c *APIClient) OpenChannel(ctx context.Context, threadID string) (PushChannel, error) {
	url := c.baseURL + "/threads/" + threadID + "/events"
	return OpenSSE(ctx, c.streamHTTP, url, c.creds, c.logger.With("component", "sse"))
}

func (c *APIClient) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.http.Do(req)
}
