// Package notifications pushes operator alerts through an ntfy topic. The
// captcha workflow is latency-sensitive: a captcha expires while the operator
// is away, so the UI pings their phone the moment one shows up.
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	topic      string
	enabled    bool
	priority   string
}

func NewClient(baseURL, topic string, enabled bool, priority string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:  baseURL,
		topic:    topic,
		enabled:  enabled,
		priority: priority,
	}
}

// Send posts one plain-text notification. Disabled clients report success
// without any network traffic.
func (c *Client) Send(ctx context.Context, message string) error {
	if !c.enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	if c.priority != "" {
		req.Header.Set("Priority", c.priority)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification rejected: HTTP %d", resp.StatusCode)
	}

	log.Debug().
		Int("status_code", resp.StatusCode).
		Msg("Notification sent")
	return nil
}

// SendAsync fires Send on its own goroutine; failures are logged, not
// surfaced. Alerting must never stall or break the poll loop.
func (c *Client) SendAsync(ctx context.Context, message string) {
	go func() {
		if err := c.Send(ctx, message); err != nil {
			log.Warn().Err(err).Msg("Async notification failed")
		}
	}()
}

// NotifyCaptcha alerts the operator that a fresh captcha is waiting.
func (c *Client) NotifyCaptcha(ctx context.Context) {
	if !c.enabled {
		return
	}
	log.Info().Msg("Notifying operator about new captcha")
	c.SendAsync(ctx, "Captcha ready: a login run is waiting for a 3-digit answer")
}
