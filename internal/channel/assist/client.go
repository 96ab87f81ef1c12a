// Package assist answers configured questions through the remote
// assistant service.
package assist

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/lifeline-core/internal/config"
)

// Client is the question-answering assistant used by ask-effect rules.
type Client struct {
	http *resty.Client
}

// NewClient creates the assistant client from endpoint settings.
func NewClient(endpoint config.ChannelEndpoint) *Client {
	http := resty.New().
		SetBaseURL(endpoint.BaseURL).
		SetTimeout(endpoint.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if endpoint.APIKey != "" {
		http.SetAuthToken(endpoint.APIKey)
	}

	return &Client{http: http}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Ask sends the question and returns the assistant's answer.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	var response askResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(askRequest{Question: question}).
		SetResult(&response).
		Post("/v1/questions")
	if err != nil {
		return "", fmt.Errorf("ask assistant: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("ask assistant: %s", resp.Status())
	}

	return response.Answer, nil
}
