package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

// Retrying retries transient failures (timeouts and process failures) of
// the wrapped Summarizer with exponential backoff. Other failures return
// immediately.
type Retrying struct {
	next        Summarizer
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func WithRetry(next Summarizer, maxAttempts int, backoff time.Duration, logger *slog.Logger) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retrying{next: next, maxAttempts: maxAttempts, backoff: backoff, logger: logger}
}

func (r *Retrying) Summarize(ctx context.Context, req Request) (string, error) {
	var (
		summary string
		attempt int
	)

	policy := retry.WithMaxRetries(uint64(r.maxAttempts-1), retry.NewExponential(r.backoff))
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		s, err := r.next.Summarize(ctx, req)
		if err == nil {
			summary = s
			return nil
		}

		if IsRetryable(err) && attempt < r.maxAttempts {
			r.logger.Warn("worker attempt failed, retrying",
				"article_id", req.ArticleID,
				"attempt", attempt,
				"max_attempts", r.maxAttempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}
