package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trade-desk-gateway/internal/domain"
)

// APIError is a structured failure from the authenticated notification API.
// Non-success responses carrying an error body are surfaced to the caller,
// never swallowed, and never auto-retried.
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notification api: %s (status %d)", e.Message, e.Status)
}

// Client is the REST client for the notification API. All reads and writes
// require the authorization token and base58 identity as headers.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string) *Client {
	base := strings.TrimSuffix(baseURL, "/")

	http := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{http: http}
}

// errorBody is the error shape returned by the API on failure.
type errorBody struct {
	Error string `json:"error"`
}

// request builds an authenticated request.
func (c *Client) request(ctx context.Context, token, identity string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("authorization", token).
		SetHeader("publickey", identity)
}

// decode maps a response to either the target value or an APIError.
func decode(resp *resty.Response, out any) error {
	var apiErr errorBody
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error != "" {
		return &APIError{Message: apiErr.Error, Status: resp.StatusCode()}
	}
	if resp.IsError() {
		return &APIError{Message: resp.Status(), Status: resp.StatusCode()}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FetchSettings retrieves the account's notification preferences.
func (c *Client) FetchSettings(ctx context.Context, identity, token string) (*domain.NotificationSettings, error) {
	resp, err := c.request(ctx, token, identity).Get("/notifications/user/getSettings")
	if err != nil {
		return nil, fmt.Errorf("fetch settings: %w", err)
	}

	var settings domain.NotificationSettings
	if err := decode(resp, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings writes the account's notification preferences.
func (c *Client) UpdateSettings(ctx context.Context, identity, token string, settings *domain.NotificationSettings) error {
	resp, err := c.request(ctx, token, identity).
		SetHeader("Content-Type", "application/json").
		SetBody(settings).
		Post("/notifications/user/editSettings")
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return decode(resp, nil)
}

// FetchList retrieves the account's notification history.
func (c *Client) FetchList(ctx context.Context, identity, token string) ([]domain.Notification, error) {
	resp, err := c.request(ctx, token, identity).Get("/notifications/history")
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}

	var list []domain.Notification
	if err := decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// markSeenBody is the payload of the seen endpoint.
type markSeenBody struct {
	IDs  []int64 `json:"ids"`
	Seen bool    `json:"seen"`
}

// MarkSeen flags the given notification ids as seen in one batched call.
func (c *Client) MarkSeen(ctx context.Context, identity, token string, ids []int64) error {
	resp, err := c.request(ctx, token, identity).
		SetHeader("Content-Type", "application/json").
		SetBody(markSeenBody{IDs: ids, Seen: true}).
		Post("/notifications/seen")
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return decode(resp, nil)
}
