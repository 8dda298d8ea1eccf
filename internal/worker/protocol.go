// Package worker calls the external summarization worker. The worker is a
// separate process that reads one JSON request line on stdin and writes one
// JSON response line on stdout.
package worker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// maxLineSize bounds a single protocol line. Article bodies can be large.
const maxLineSize = 16 * 1024 * 1024

type Request struct {
	ArticleID       uuid.UUID `json:"article_id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	SystemPrompt    string    `json:"system_prompt"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Feedback        *string   `json:"feedback,omitempty"`
	PreviousSummary *string   `json:"previous_summary,omitempty"`
}

// Response is exactly one of {summary} or {error}. Model and TokensUsed are
// optional details some workers report.
type Response struct {
	Summary    *string `json:"summary,omitempty"`
	Error      *string `json:"error,omitempty"`
	Model      string  `json:"model,omitempty"`
	TokensUsed *int    `json:"tokens_used,omitempty"`
}

// ReadRequest reads the single request line a worker receives.
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	line, err := readLine(r)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(line, &req); err != nil {
		return req, fmt.Errorf("decoding request: %w", err)
	}
	return req, nil
}

// WriteResponse writes resp as one line.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// parseResponse decodes the first line of worker output and checks that it
// is one of the two legal shapes.
func parseResponse(out []byte) (Response, error) {
	var resp Response
	line, err := readLine(bytes.NewReader(out))
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("decoding response: %w", err)
	}

	switch {
	case resp.Summary != nil && resp.Error != nil:
		return resp, errors.New("response has both summary and error")
	case resp.Error != nil:
		return resp, nil
	case resp.Summary == nil:
		return resp, errors.New("response has neither summary nor error")
	case strings.TrimSpace(*resp.Summary) == "":
		return resp, errors.New("response summary is empty")
	}
	return resp, nil
}

// readLine returns the first non-blank line of r.
func readLine(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading line: %w", err)
	}
	return nil, errors.New("no output")
}
