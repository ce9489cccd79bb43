// Package llm implements the OpenAI-compatible JSON completion client.
// Callers must treat every call as fallible and keep a deterministic
// fallback; a model failure must never fail a whole run.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	apiKey       string
	apiBase      string
	defaultModel string
	temperature  float64
	httpClient   *http.Client
}

// NewClient creates a completion client. apiBase defaults to the OpenAI
// endpoint, model to gpt-4o-mini.
func NewClient(apiKey, apiBase, model string, temperature float64) *Client {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		apiKey:       apiKey,
		apiBase:      strings.TrimSuffix(apiBase, "/"),
		defaultModel: model,
		temperature:  temperature,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteJSON sends a system+user prompt pair requesting a JSON object
// and unmarshals the model's reply into out. schemaHint, when non-empty,
// describes the expected keys and is appended to the system instruction.
func (c *Client) CompleteJSON(ctx context.Context, system, user, schemaHint string, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("llm: missing API key")
	}

	schemaBlock := "\n\nReturn ONLY valid JSON.\n"
	if schemaHint != "" {
		schemaBlock = "\n\nReturn ONLY valid JSON. Schema:\n" + schemaHint + "\n"
	}

	body := map[string]any{
		"model":           c.defaultModel,
		"temperature":     c.temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": system + schemaBlock},
			{"role": "user", "content": user},
		},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm: execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 400))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("llm: non-JSON response: %s", truncate(string(respBody), 400))
	}
	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return fmt.Errorf("llm: missing message content")
	}

	content := apiResp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("llm: content not JSON: %s", truncate(content, 400))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
