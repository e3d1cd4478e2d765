// Package chatwoot implements the Chatwoot REST API client used to mirror
// WhatsApp traffic into a helpdesk inbox: contact resolution, conversation
// resolution with an in-process cache, and message creation.
//
// All requests carry the account access token in the api_access_token header.
package chatwoot

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// Config holds the Chatwoot API connection settings.
type Config struct {
	// BaseURL is the Chatwoot installation URL (no trailing slash needed).
	BaseURL string `yaml:"base_url"`

	// AccountID is the numeric Chatwoot account id.
	AccountID int `yaml:"account_id"`

	// Token is the API access token (api_access_token header).
	Token string `yaml:"token"`

	// InboxID is the inbox all bridged conversations are created in.
	InboxID int `yaml:"inbox_id"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
	}
}

// Client talks to a single Chatwoot account/inbox.
//
// It owns the conversation cache: a process-wide map from source id (the raw
// WhatsApp JID) to conversation id, populated lazily and never evicted. The
// cache is an accelerator only; the remote system remains the source of truth
// and is consulted once per source id after a restart.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger

	cacheMu   sync.Mutex
	convCache map[string]int

	// resolving coalesces concurrent conversation resolutions for the same
	// source id so a burst of messages cannot create duplicate conversations.
	resolving singleflight.Group
}

// New creates a Chatwoot client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("api_access_token", cfg.Token).
		SetTimeout(cfg.Timeout)

	return &Client{
		cfg:       cfg,
		http:      http,
		logger:    logger.With("component", "chatwoot"),
		convCache: make(map[string]int),
	}
}

// accountPath builds an /api/v1/accounts/{id} relative path.
func (c *Client) accountPath(suffix string) string {
	return fmt.Sprintf("/api/v1/accounts/%d%s", c.cfg.AccountID, suffix)
}

// ok reports whether the response is a 2xx.
func ok(resp *resty.Response) bool {
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300
}
