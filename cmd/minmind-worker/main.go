// minmind-worker summarizes one article with a local Ollama model. It reads
// a single JSON request line on stdin and writes a single JSON response line
// on stdout. Requests Ollama refuses are reported as {"error": ...} with exit
// status 1; when Ollama is unreachable or failing it exits 1 with no output.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/thomaskoefod/minmind/internal/ai"
	"github.com/thomaskoefod/minmind/internal/logging"
	"github.com/thomaskoefod/minmind/internal/worker"
)

func main() {
	var host, logLevel string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("minmind-worker", pflag.ContinueOnError)
	flagSet.StringVar(&host, "host", "", "Ollama host (default: $OLLAMA_HOST or "+ai.DefaultHost+")")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "HTTP timeout for the Ollama call")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level for stderr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logger := logging.New(logLevel, "text", os.Stderr)
	client := ai.NewClient(host, timeout)

	if err := run(context.Background(), client, os.Stdin, os.Stdout, logger); err != nil {
		os.Exit(1)
	}
}

type chatter interface {
	Chat(ctx context.Context, model string, messages []ai.Message) (*ai.ChatResponse, error)
}

// run handles one request. A non-nil error means the request failed.
// Deterministic rejections are answered with an error response; transient
// failures such as an unreachable server or a 5xx are only logged, so the
// caller sees a crashed worker and may retry.
func run(ctx context.Context, client chatter, in io.Reader, out io.Writer, logger *slog.Logger) error {
	req, err := worker.ReadRequest(in)
	if err != nil {
		return reject(out, logger, err)
	}

	messages := ai.SummaryMessages(req.SystemPrompt, req.Title, req.Body)
	if req.PreviousSummary != nil && req.Feedback != nil {
		messages = ai.RefineMessages(req.SystemPrompt, req.Title, req.Body, *req.PreviousSummary, *req.Feedback)
	}

	logger.Info("summarizing", "article_id", req.ArticleID, "model", req.Model, "refine", req.PreviousSummary != nil)
	resp, err := client.Chat(ctx, req.Model, messages)
	if err != nil {
		if ai.Rejected(err) {
			return reject(out, logger, err)
		}
		logger.Error("summarization failed", "article_id", req.ArticleID, "error", err)
		return err
	}

	summary := strings.TrimSpace(resp.Message.Content)
	if summary == "" {
		return reject(out, logger, fmt.Errorf("model %s returned an empty summary", resp.Model))
	}

	tokens := resp.TokensUsed()
	return worker.WriteResponse(out, worker.Response{
		Summary:    &summary,
		Model:      resp.Model,
		TokensUsed: &tokens,
	})
}

func reject(out io.Writer, logger *slog.Logger, err error) error {
	logger.Error("request rejected", "error", err)
	msg := err.Error()
	if werr := worker.WriteResponse(out, worker.Response{Error: &msg}); werr != nil {
		logger.Error("writing response", "error", werr)
	}
	return err
}
