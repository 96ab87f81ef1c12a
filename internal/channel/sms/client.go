// Package sms delivers templated messages through a message gateway.
package sms

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/lifeline-core/internal/config"
)

// Client is the message gateway sender used by the action pipeline.
type Client struct {
	http *resty.Client
}

// NewClient creates the message gateway sender from endpoint settings.
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

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send delivers one message to one destination.
func (c *Client) Send(ctx context.Context, destination, body string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{To: destination, Body: body}).
		Post("/v1/messages")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("send message: %s", resp.Status())
	}

	return nil
}
