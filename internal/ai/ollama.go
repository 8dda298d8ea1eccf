// Package ai talks to a local Ollama server on behalf of the worker process.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const DefaultHost = "http://localhost:11434"

type Client struct {
	host   string
	client *http.Client
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// TokensUsed is prompt plus completion tokens as reported by Ollama.
func (r *ChatResponse) TokensUsed() int {
	return r.PromptEvalCount + r.EvalCount
}

// NewClient returns a client for host, falling back to OLLAMA_HOST and then
// DefaultHost.
func NewClient(host string, timeout time.Duration) *Client {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return &Client{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Chat sends a non-streaming chat request.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	jsonData, err := json.Marshal(ChatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &chatResp, nil
}

// StatusError is a non-200 answer from Ollama, for example an unknown model.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Ollama API error (status %d): %s", e.Code, e.Body)
}

// Rejected reports whether Ollama refused the request itself, as opposed to
// being unreachable or failing on its side.
func Rejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// SummaryMessages builds the conversation for summarizing one article.
func SummaryMessages(systemPrompt, title, body string) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "# " + title + "\n\n---\n\n" + body},
	}
}

// RefineMessages continues the summary conversation with the previous draft
// and the reader's feedback on it.
func RefineMessages(systemPrompt, title, body, previous, feedback string) []Message {
	return append(SummaryMessages(systemPrompt, title, body),
		Message{Role: "assistant", Content: previous},
		Message{Role: "user", Content: "Refine this summary based on my feedback:\n\n" + feedback +
			"\n\nKeep the same structure and address every point."},
	)
}
