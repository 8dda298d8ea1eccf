package review

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/internal/pipeline"
	"github.com/thomaskoefod/minmind/pkg/models"
)

// Reviewer makes decisions about an article under review.
type Reviewer interface {
	Decide(ctx context.Context, article *models.Article, feedback []string) (Decision, error)
}

// Loop drives a Reviewer over a Session until it approves, rejects or skips.
type Loop struct {
	ctrl   *pipeline.Controller
	logger *slog.Logger
}

func NewLoop(ctrl *pipeline.Controller, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{ctrl: ctrl, logger: logger}
}

// Run reviews id. Regeneration rounds are iterations here, not recursion, and
// there is no limit on them.
func (l *Loop) Run(ctx context.Context, id uuid.UUID, reviewer Reviewer) (Outcome, error) {
	session, err := NewSession(ctx, l.ctrl, id)
	if err != nil {
		return Outcome{}, err
	}

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Article: session.Article()}, err
		}

		decision, err := reviewer.Decide(ctx, session.Article(), session.Feedback())
		if err != nil {
			return Outcome{Article: session.Article()}, err
		}

		l.logger.Info("review decision", "article_id", id, "round", round, "action", decision.Action)
		out, err := session.Apply(ctx, decision)
		if err != nil || out.Done {
			return out, err
		}
	}
}
