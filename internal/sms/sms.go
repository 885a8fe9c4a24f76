package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	GatewayURL string
	APIKey     string
	Sender     string
}

// ErrNotConfigured is returned for every send when no gateway URL is set, so
// queued messages are retried and then failed instead of marked sent.
var ErrNotConfigured = errors.New("sms gateway not configured")

// Client posts messages to an HTTP SMS gateway.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

type sendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	if c.cfg.GatewayURL == "" {
		c.log.Warn().Str("to", to).Msg("sms gateway not configured, message not sent")
		return ErrNotConfigured
	}

	payload, err := json.Marshal(sendRequest{From: c.cfg.Sender, To: to, Body: body})
	if err != nil {
		return fmt.Errorf("marshal sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	c.log.Info().Str("to", to).Msg("sms sent")
	return nil
}
