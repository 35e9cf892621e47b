// Package llm is the chat client for any OpenAI-compatible
// /chat/completions server.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/auris-ai/auris-agent/pkg/dialog"
)

type Client struct {
	url       string
	apiKey    string
	model     string
	maxTokens int
	http      *http.Client
}

// NewClient creates a chat client. baseURL is the API root (e.g.
// "http://localhost:11434/v1").
func NewClient(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		url:       baseURL + "/chat/completions",
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Complete(ctx context.Context, messages []dialog.Message) (string, error) {
	payload := map[string]interface{}{
		"model":      c.model,
		"messages":   messages,
		"max_tokens": c.maxTokens,
		"stream":     false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("llm returned malformed response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) Name() string {
	return "openai-chat"
}
