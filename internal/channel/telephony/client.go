// Package telephony places plain outbound calls through a conventional
// telephony gateway. Unlike the AI voice agent it carries no briefing;
// the user speaks for themselves.
package telephony

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/service/call"
)

const channelName = "telephony"

// Client is the conventional telephony calling channel.
type Client struct {
	http *resty.Client
}

// NewClient creates the telephony channel from endpoint settings.
func NewClient(endpoint config.ChannelEndpoint) *Client {
	http := resty.New().
		SetBaseURL(endpoint.BaseURL).
		SetTimeout(endpoint.Timeout).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if endpoint.APIKey != "" {
		http.SetAuthToken(endpoint.APIKey)
	}

	return &Client{http: http}
}

// Name implements call.Channel.
func (c *Client) Name() string {
	return channelName
}

type dialRequest struct {
	Destination string `json:"destination"`
}

type dialResponse struct {
	CallID string `json:"call_id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Initiate implements call.Channel. The snapshot is ignored: a gateway
// call connects the user directly.
func (c *Client) Initiate(
	ctx context.Context,
	destination string,
	_ trigger.Severity,
	_ *trigger.Snapshot,
) (string, error) {
	var response dialResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(dialRequest{Destination: destination}).
		SetResult(&response).
		Post("/v1/calls")
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("dial: %s", resp.Status())
	}

	if response.CallID == "" {
		return "", fmt.Errorf("dial: empty call id")
	}

	return response.CallID, nil
}

// PollStatus implements call.Channel.
func (c *Client) PollStatus(ctx context.Context, handle string) (call.ChannelStatus, error) {
	var response statusResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&response).
		Get(fmt.Sprintf("/v1/calls/%s", handle))
	if err != nil {
		return "", fmt.Errorf("poll call: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("poll call: %s", resp.Status())
	}

	switch response.Status {
	case "queued", "ringing":
		return call.StatusConnecting, nil
	case "in-progress":
		return call.StatusActive, nil
	case "completed":
		return call.StatusEnded, nil
	case "failed", "busy", "no-answer", "canceled":
		return call.StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown call status %q", response.Status)
	}
}

// Terminate implements call.Channel.
func (c *Client) Terminate(ctx context.Context, handle string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/calls/%s", handle))
	if err != nil {
		return fmt.Errorf("hang up: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("hang up: %s", resp.Status())
	}

	return nil
}
