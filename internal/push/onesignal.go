// Package push delivers notifications to devices through OneSignal.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/glenn-app/glenn-backend/internal/config"
)

var (
	// ErrNotConfigured is returned when the app id or REST key is missing.
	ErrNotConfigured = errors.New("push provider credentials not configured")
	// ErrNoRecipients is returned for a message without player ids.
	ErrNoRecipients = errors.New("no player ids provided")
)

// Message is one push notification.
type Message struct {
	PlayerIDs []string
	Heading   string
	Content   string
	Data      map[string]any
}

// ProviderError is returned when OneSignal rejects a notification, either
// with a non-2xx status or with an error list in an otherwise successful
// response.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("onesignal rejected notification (status %d): %s", e.StatusCode, e.Body)
}

// OneSignalClient calls the OneSignal REST API.
type OneSignalClient struct {
	appID   string
	restKey string
	baseURL string
	client  *http.Client
}

// NewOneSignalClient builds a client from config.
func NewOneSignalClient(cfg config.OneSignalConfig) *OneSignalClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://onesignal.com/api/v1"
	}
	return &OneSignalClient{
		appID:   cfg.AppID,
		restKey: cfg.RESTKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type createNotificationRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]any    `json:"data,omitempty"`
}

type createNotificationResponse struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors"`
}

// Push sends msg and returns nil only when OneSignal accepted it.
func (c *OneSignalClient) Push(ctx context.Context, msg Message) error {
	if c.appID == "" || c.restKey == "" {
		return ErrNotConfigured
	}
	if len(msg.PlayerIDs) == 0 {
		return ErrNoRecipients
	}

	payload, err := json.Marshal(createNotificationRequest{
		AppID:            c.appID,
		IncludePlayerIDs: msg.PlayerIDs,
		Headings:         map[string]string{"en": msg.Heading},
		Contents:         map[string]string{"en": msg.Content},
		Data:             msg.Data,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.restKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out createNotificationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if hasErrors(out.Errors) {
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(out.Errors)}
	}
	return nil
}

// hasErrors reports whether an "errors" field carries anything.
func hasErrors(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}":
		return false
	default:
		return true
	}
}
