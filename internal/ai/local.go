package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// localClient is the concrete Completer backed by a locally-hosted inference
// daemon (Ollama, llama.cpp server, LM Studio). These all expose the
// OpenAI-compatible /v1/chat/completions endpoint, so the request/response
// shapes are standard OpenAI chat format — not Anthropic's.
type localClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLocalClient returns a Completer that calls a local inference daemon.
//   - baseURL: e.g. "http://127.0.0.1:11434"
//   - model:   e.g. "llama3.1:8b"
func NewLocalClient(baseURL, model string) Completer {
	return &localClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

// ─── OPENAI-COMPATIBLE API SHAPES ────────────────────────────────────────────

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
	Stream    bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Complete sends one request to the daemon's chat completions endpoint and
// returns the text content of the first choice.
func (c *localClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := make([]openAIMessage, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: prompt.System})
	}
	for _, m := range prompt.Messages {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}

	reqBody := openAIRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: 1024,
		// Streaming would return before the deadline more often, but the
		// orchestrator consumes whole replies; keep the protocol simple.
		Stream: false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("local ai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("local ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("local ai: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("local ai: read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("local ai: unmarshal response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("local ai: API error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local ai: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("local ai: no choices in response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
