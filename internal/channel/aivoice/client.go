// Package aivoice places calls through the AI voice-agent service. The
// agent speaks for the user, so initiation carries the collected context
// snapshot as a briefing.
package aivoice

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/service/call"
)

// channelName identifies this channel in records and logs.
const channelName = "ai-voice"

// Client is the AI voice-agent calling channel.
type Client struct {
	http       *resty.Client
	configured bool
}

// NewClient creates the AI voice-agent channel from endpoint settings.
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

	return &Client{
		http:       http,
		configured: endpoint.BaseURL != "",
	}
}

// Configured reports whether the service endpoint is set. The selection
// policy treats an unconfigured agent as absent.
func (c *Client) Configured() bool {
	return c.configured
}

// Name implements call.Channel.
func (c *Client) Name() string {
	return channelName
}

// initiateRequest asks the agent to place and conduct a call.
type initiateRequest struct {
	Destination string    `json:"destination"`
	Severity    string    `json:"severity"`
	Briefing    *briefing `json:"briefing,omitempty"`
}

// briefing is the context the agent relays to the callee.
type briefing struct {
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Address         string  `json:"address,omitempty"`
	BatteryPercent  int     `json:"battery_percent,omitempty"`
	HeartRate       float64 `json:"heart_rate,omitempty"`
	RespiratoryRate float64 `json:"respiratory_rate,omitempty"`
}

type initiateResponse struct {
	CallID string `json:"call_id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Initiate implements call.Channel.
func (c *Client) Initiate(
	ctx context.Context,
	destination string,
	severity trigger.Severity,
	snapshot *trigger.Snapshot,
) (string, error) {
	request := initiateRequest{
		Destination: destination,
		Severity:    severity.String(),
	}

	if snapshot != nil {
		request.Briefing = &briefing{
			Latitude:        snapshot.Latitude,
			Longitude:       snapshot.Longitude,
			Address:         snapshot.Address,
			BatteryPercent:  snapshot.BatteryPercent,
			HeartRate:       snapshot.HeartRate,
			RespiratoryRate: snapshot.RespiratoryRate,
		}
	}

	var response initiateResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/v1/calls")
	if err != nil {
		return "", fmt.Errorf("initiate agent call: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("initiate agent call: %s", resp.Status())
	}

	if response.CallID == "" {
		return "", fmt.Errorf("initiate agent call: empty call id")
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
		return "", fmt.Errorf("poll agent call: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("poll agent call: %s", resp.Status())
	}

	return mapStatus(response.Status)
}

// Terminate implements call.Channel.
func (c *Client) Terminate(ctx context.Context, handle string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/calls/%s", handle))
	if err != nil {
		return fmt.Errorf("terminate agent call: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("terminate agent call: %s", resp.Status())
	}

	return nil
}

// mapStatus translates the remote lifecycle vocabulary.
func mapStatus(remote string) (call.ChannelStatus, error) {
	switch remote {
	case "queued", "ringing", "connecting":
		return call.StatusConnecting, nil
	case "active", "in-progress":
		return call.StatusActive, nil
	case "completed", "ended":
		return call.StatusEnded, nil
	case "failed", "busy", "no-answer":
		return call.StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown agent call status %q", remote)
	}
}
