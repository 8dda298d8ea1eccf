// Package pipeline owns the article lifecycle: it claims articles, calls
// the summarization worker, and records every state change in the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/promote"
	"github.com/thomaskoefod/minmind/internal/summary"
	"github.com/thomaskoefod/minmind/internal/worker"
	"github.com/thomaskoefod/minmind/pkg/models"
)

const (
	DefaultWorkers    = 2
	DefaultStaleAfter = 30 * time.Minute

	// InterruptedReason marks summarizations abandoned by a crashed process.
	InterruptedReason = "interrupted"
)

type Options struct {
	Provider   string
	Model      string
	Workers    int
	StaleAfter time.Duration
}

type Controller struct {
	db         *database.DB
	resolver   *summary.Resolver
	summarizer worker.Summarizer
	promoter   *promote.Promoter
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func New(db *database.DB, summarizer worker.Summarizer, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Controller{
		db:         db,
		resolver:   summary.NewResolver(db),
		summarizer: summarizer,
		promoter:   promote.New(db, logger),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Summarize claims a Pending article and summarizes it with the config that
// governs its collection. A missing config is reported before the article
// is touched. A worker failure leaves the article Failed and is returned.
func (c *Controller) Summarize(ctx context.Context, id uuid.UUID) (*models.Article, error) {
	return c.run(ctx, id, models.StatusPending, nil)
}

// Regenerate re-summarizes an UnderReview article with the reviewer's
// accumulated feedback appended to the effective prompt. The new summary
// replaces the previous one.
func (c *Controller) Regenerate(ctx context.Context, id uuid.UUID, feedback []string) (*models.Article, error) {
	return c.run(ctx, id, models.StatusUnderReview, feedback)
}

func (c *Controller) run(ctx context.Context, id uuid.UUID, from models.ArticleStatus, feedback []string) (*models.Article, error) {
	article, err := c.db.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status != from {
		return nil, &models.TransitionError{ArticleID: id, From: article.Status, To: models.StatusSummarizing}
	}

	cfg, err := c.resolver.Resolve(ctx, article.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("resolving summary config for %s: %w", article.ShortID(), err)
	}

	if err := c.transition(ctx, id, from, models.StatusSummarizing, ""); err != nil {
		return nil, err
	}

	req := worker.Request{
		ArticleID:    id,
		Title:        article.Title,
		Body:         article.RawContent,
		SystemPrompt: summary.EffectivePrompt(cfg.SystemPrompt, feedback),
		Provider:     c.opts.Provider,
		Model:        c.opts.Model,
	}
	if len(feedback) > 0 {
		joined := strings.Join(feedback, "\n")
		req.Feedback = &joined
		req.PreviousSummary = article.Summary
	}

	c.logger.Info("summarizing article",
		"article_id", id,
		"config", cfg.Name,
		"provider", req.Provider,
		"model", req.Model,
		"feedback_rounds", len(feedback),
	)

	// No transaction is open across the worker call.
	text, err := c.summarizer.Summarize(ctx, req)
	if err != nil {
		return nil, c.fail(ctx, id, err)
	}

	// The summary is paid for; keep it even if the caller has gone away.
	storeCtx := context.WithoutCancel(ctx)
	if err := c.db.UpdateArticleSummary(storeCtx, id, text, models.StatusSummarized); err != nil {
		return nil, c.fail(ctx, id, fmt.Errorf("storing summary: %w", err))
	}
	c.logger.Info("article transition", "article_id", id, "from", models.StatusSummarizing, "to", models.StatusSummarized)

	return c.db.GetArticle(storeCtx, id)
}

// fail records a worker failure. The write must land even when ctx was
// cancelled, otherwise the article would sit in Summarizing.
func (c *Controller) fail(ctx context.Context, id uuid.UUID, cause error) error {
	reason := cause.Error()
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		reason = InterruptedReason
	}

	c.logger.Error("summarization failed", "article_id", id, "error", cause)
	if err := c.transition(context.WithoutCancel(ctx), id, models.StatusSummarizing, models.StatusFailed, reason); err != nil {
		return errors.Join(fmt.Errorf("summarizing article %s: %w", id, cause), err)
	}
	return fmt.Errorf("summarizing article %s: %w", id, cause)
}

// SaveFeedbackConfig stores the article's effective prompt with feedback
// applied as a new config named name, and makes it the active config for the
// article's collection (or the global scope when unfiled).
func (c *Controller) SaveFeedbackConfig(ctx context.Context, id uuid.UUID, name string, feedback []string) (*models.SummaryConfig, error) {
	article, err := c.db.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	base, err := c.resolver.Resolve(ctx, article.CollectionID)
	if err != nil {
		return nil, err
	}

	cfg, err := c.db.CreateSummaryConfig(ctx, database.NewSummaryConfig{
		Name:         name,
		SystemPrompt: summary.EffectivePrompt(base.SystemPrompt, feedback),
		CollectionID: article.CollectionID,
	})
	if err != nil {
		return nil, err
	}
	if err := c.db.ActivateSummaryConfig(ctx, cfg.ID); err != nil {
		return nil, err
	}
	cfg.Active = true

	c.logger.Info("saved feedback as summary config", "config_id", cfg.ID, "name", cfg.Name, "based_on", base.ID)
	return cfg, nil
}

// Retry sends a Failed article back to Pending.
func (c *Controller) Retry(ctx context.Context, id uuid.UUID) error {
	return c.transition(ctx, id, models.StatusFailed, models.StatusPending, "")
}

// Abandon gives up on a Failed article.
func (c *Controller) Abandon(ctx context.Context, id uuid.UUID) error {
	return c.transition(ctx, id, models.StatusFailed, models.StatusArchived, "")
}

// BeginReview moves a Summarized article to UnderReview. An article already
// under review is returned as is.
func (c *Controller) BeginReview(ctx context.Context, id uuid.UUID) (*models.Article, error) {
	article, err := c.db.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status == models.StatusUnderReview {
		return article, nil
	}
	if err := c.transition(ctx, id, article.Status, models.StatusUnderReview, ""); err != nil {
		return nil, err
	}
	return c.db.GetArticle(ctx, id)
}

// Approve accepts an UnderReview article and promotes it to a note. An
// article with nowhere to go is left UnderReview. If promotion itself fails
// the article remains Approved and Promote can be retried.
func (c *Controller) Approve(ctx context.Context, id uuid.UUID, opts promote.Options) (*models.Note, error) {
	article, err := c.db.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts.TargetCollection == nil && article.CollectionID == nil {
		return nil, fmt.Errorf("approving %s: %w", article.ShortID(), promote.ErrNoTargetCollection)
	}

	if err := c.transition(ctx, id, models.StatusUnderReview, models.StatusApproved, ""); err != nil {
		return nil, err
	}
	return c.Promote(ctx, id, opts)
}

// Promote finishes an Approved article.
func (c *Controller) Promote(ctx context.Context, id uuid.UUID, opts promote.Options) (*models.Note, error) {
	return c.promoter.Promote(ctx, id, opts)
}

// Reject archives an UnderReview article.
func (c *Controller) Reject(ctx context.Context, id uuid.UUID) error {
	return c.transition(ctx, id, models.StatusUnderReview, models.StatusArchived, "")
}

func (c *Controller) transition(ctx context.Context, id uuid.UUID, from, to models.ArticleStatus, reason string) error {
	if err := c.db.TransitionArticle(ctx, id, from, to, reason); err != nil {
		return err
	}
	attrs := []any{"article_id", id, "from", from, "to", to}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	c.logger.Info("article transition", attrs...)
	return nil
}
