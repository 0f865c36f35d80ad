package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dotsetgreg/ircbots/pkg/logger"
)

const defaultHTTPTimeout = 60 * time.Second

type chatCompletionsClient struct {
	name         string
	apiBase      string
	defaultModel string
	key          KeySource
	httpClient   *http.Client
	extraHeaders map[string]string
}

func newChatCompletionsClient(name, apiBase, defaultModel string, timeout time.Duration, key KeySource, extraHeaders map[string]string) (*chatCompletionsClient, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("endpoint name is required")
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("%s API base not configured", name)
	}
	if key == nil {
		return nil, fmt.Errorf("%s: no API key source", name)
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	cleanHeaders := map[string]string{}
	for k, v := range extraHeaders {
		key := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if key == "" || value == "" {
			continue
		}
		cleanHeaders[key] = value
	}

	return &chatCompletionsClient{
		name:         name,
		apiBase:      apiBase,
		defaultModel: strings.TrimSpace(defaultModel),
		key:          key,
		httpClient:   &http.Client{Timeout: timeout},
		extraHeaders: cleanHeaders,
	}, nil
}

func (c *chatCompletionsClient) Complete(ctx context.Context, req Request) (string, error) {
	if c == nil {
		return "", fmt.Errorf("completion client not initialized")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return "", fmt.Errorf("%s: no model configured", c.name)
	}

	requestBody := map[string]interface{}{
		"model":       model,
		"messages":    BuildMessages(req),
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", c.name, err)
	}

	endpoint := c.apiBase + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", c.name, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if err := authorize(ctx, httpReq, c.key); err != nil {
		return "", fmt.Errorf("%s auth: %w", c.name, err)
	}
	for k, v := range c.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send %s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", c.name, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := augmentCompletionError(model, extractAPIError(body))
		return "", fmt.Errorf("%s API request failed: status=%d error=%s", c.name, resp.StatusCode, msg)
	}

	content, usage, err := parseChatCompletionsResponse(body)
	if err != nil {
		return "", fmt.Errorf("parse %s response: %w", c.name, err)
	}
	if usage != nil {
		logger.DebugCF("providers", "Completion usage", map[string]interface{}{
			"node":              c.name,
			"model":             model,
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
		})
	}
	return content, nil
}

func parseChatCompletionsResponse(body []byte) (string, *UsageInfo, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content interface{} `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *UsageInfo `json:"usage"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", nil, err
	}
	if len(apiResponse.Choices) == 0 {
		return "", apiResponse.Usage, nil
	}
	return strings.TrimSpace(flattenMessageContent(apiResponse.Choices[0].Message.Content)), apiResponse.Usage, nil
}

func flattenMessageContent(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				parts = append(parts, text)
				continue
			}
			if content, ok := m["content"].(string); ok {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}

func extractAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var structured struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &structured) == nil {
			if msg := strings.TrimSpace(structured.Message); msg != "" {
				return msg
			}
		}
		// Ollama reports {"error": "model \"x\" not found"}.
		var plain string
		if json.Unmarshal(payload.Error, &plain) == nil && strings.TrimSpace(plain) != "" {
			return strings.TrimSpace(plain)
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if len(trimmed) > 2000 {
		return trimmed[:2000] + "..."
	}
	return trimmed
}
