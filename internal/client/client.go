// Package client wraps the relay façade for the operator UI. It re-derives
// every response field defensively: old deployments of the façade shipped
// several looser shapes, and a sheet served through a stale cache can still
// produce any of them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"captcha_relay/internal/state"

	"github.com/rs/zerolog/log"
)

var answerPattern = regexp.MustCompile(`^[0-9]{3}$`)

// NetworkError means the façade was unreachable or answered with a non-2xx
// status.
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError means the façade was reached but reported a logical failure in
// its envelope.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("relay error: %s", e.Message)
}

// Client talks to the relay façade.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a façade client. An empty base URL fails fast here, before any
// network call is ever attempted.
func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("relay base URL is required (set RELAY_API_URL)")
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

type sheetRequest struct {
	Action string      `json:"action"`
	Cell   string      `json:"cell,omitempty"`
	Value  interface{} `json:"value,omitempty"`
}

type sheetEnvelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

// FetchState reads the full normalized sheet state from the façade.
func (c *Client) FetchState(ctx context.Context) (*state.State, error) {
	env, err := c.post(ctx, sheetRequest{Action: "get-state"})
	if err != nil {
		return nil, err
	}

	st := normalizeData(env.Data)
	log.Debug().
		Str("status", st.A2).
		Int("logs", len(st.Logs)).
		Msg("Fetched sheet state")
	return st, nil
}

// TriggerRun writes the RUN command into the status cell.
func (c *Client) TriggerRun(ctx context.Context) error {
	_, err := c.post(ctx, sheetRequest{Action: "update-cell", Cell: "A2", Value: "RUN"})
	return err
}

// SubmitAnswer writes the captcha answer into the answer cell. The answer
// must be exactly three digits; anything else is rejected here without
// issuing a write.
func (c *Client) SubmitAnswer(ctx context.Context, answer string) error {
	if !answerPattern.MatchString(answer) {
		return fmt.Errorf("answer must be exactly 3 digits, got %q", answer)
	}
	_, err := c.post(ctx, sheetRequest{Action: "update-cell", Cell: "D2", Value: answer})
	return err
}

func (c *Client) post(ctx context.Context, body sheetRequest) (*sheetEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sheet", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &NetworkError{StatusCode: resp.StatusCode}
	}

	var env sheetEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unknown remote failure"
		}
		return nil, &RemoteError{Message: msg}
	}
	return &env, nil
}
