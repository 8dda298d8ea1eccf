package pipeline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/summary"
	"github.com/thomaskoefod/minmind/pkg/models"
)

// Stats counts the outcomes of a ProcessPending run.
type Stats struct {
	Summarized int
	Failed     int
	// Skipped articles were claimed by someone else first.
	Skipped int
}

// ProcessPending summarizes every Pending article using up to
// Options.Workers concurrent worker calls. Worker failures are counted, not
// returned; the affected articles are left Failed. A missing or broken
// summary config stops the run since every remaining article would hit it.
func (c *Controller) ProcessPending(ctx context.Context) (Stats, error) {
	pending, err := c.db.ListArticles(ctx, database.ArticleFilter{
		Statuses:    []models.ArticleStatus{models.StatusPending},
		OldestFirst: true,
	})
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		stats Stats
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for _, a := range pending {
		id := a.ID
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			_, err := c.Summarize(gctx, id)

			var te *models.TransitionError
			switch {
			case err == nil:
				count(&stats.Summarized)
			case errors.As(err, &te):
				count(&stats.Skipped)
			case errors.Is(err, summary.ErrNoActiveConfig), errors.Is(err, summary.ErrConfigIntegrity):
				return err
			case errors.Is(err, database.ErrArticleNotFound):
				count(&stats.Skipped)
			default:
				count(&stats.Failed)
			}
			return nil
		})
	}

	err = g.Wait()
	c.logger.Info("processed pending articles",
		"summarized", stats.Summarized,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
	return stats, err
}

// RecoverStale fails articles that have been Summarizing for longer than
// Options.StaleAfter, which only happens when a process died mid-call.
func (c *Controller) RecoverStale(ctx context.Context) (int, error) {
	stale, err := c.db.StaleArticles(ctx, c.now().Add(-c.opts.StaleAfter).UTC())
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, a := range stale {
		err := c.transition(ctx, a.ID, models.StatusSummarizing, models.StatusFailed, InterruptedReason)
		var te *models.TransitionError
		if errors.As(err, &te) {
			continue
		}
		if err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}
