package pushover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"home-control/internal/application"
	"home-control/internal/infra"
)

const DefaultBaseURL = "https://api.pushover.net"

type Client struct {
	token      string
	userKey    string
	title      string
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig
}

var _ application.Notifier = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func WithRetry(cfg infra.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(token, userKey, title string, opts ...Option) *Client {
	if title == "" {
		title = "Home Control"
	}
	c := &Client{
		token:      token,
		userKey:    userKey,
		title:      title,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify is a no-op without credentials. Throttling and server errors are
// retried; other rejections fail on the first attempt.
func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", c.title)
	encoded := data.Encode()

	return infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/1/messages.json", strings.NewReader(encoded))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending notification: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return infra.CheckStatus("pushover", resp)
	})
}
