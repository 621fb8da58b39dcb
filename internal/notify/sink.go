// Package notify renders messages and broadcasts them to the configured
// recipients.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Sink delivers one rendered message to one recipient.
type Sink interface {
	Send(ctx context.Context, recipient, text string) error
}

// TelegramSink sends messages through the Telegram Bot API.
type TelegramSink struct {
	token   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewTelegramSink creates a sink for the bot identified by token. baseURL
// defaults to the public API.
func NewTelegramSink(token, baseURL string) *TelegramSink {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramSink{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send posts text to chat recipient as HTML.
func (s *TelegramSink) Send(ctx context.Context, recipient, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    recipient,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		return fmt.Errorf("telegram request failed: %w", redact(err, s.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	result := gjson.ParseBytes(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !result.Get("ok").Bool() {
		desc := result.Get("description").String()
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("telegram rejected message (status %d): %s", resp.StatusCode, desc)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
