// Package promote turns approved articles into permanent notes.
package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/pkg/models"
)

var (
	ErrNoTargetCollection = errors.New("no target collection for note")
	ErrNoSummary          = errors.New("article has no summary to promote")
)

type Options struct {
	// TargetCollection overrides the article's own collection.
	TargetCollection *uuid.UUID
	// UseRawBody stores the extracted body instead of the summary.
	UseRawBody bool
}

type Promoter struct {
	db     *database.DB
	logger *slog.Logger
}

func New(db *database.DB, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Promoter{db: db, logger: logger}
}

// Promote creates a reference note from an Approved article and marks the
// article Converted. Either both happen or neither does; on error the
// article stays Approved.
func (p *Promoter) Promote(ctx context.Context, articleID uuid.UUID, opts Options) (*models.Note, error) {
	article, err := p.db.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if article.Status != models.StatusApproved {
		return nil, &models.TransitionError{ArticleID: articleID, From: article.Status, To: models.StatusConverted}
	}

	target := opts.TargetCollection
	if target == nil {
		target = article.CollectionID
	}
	if target == nil {
		return nil, fmt.Errorf("%w: article %s is unfiled", ErrNoTargetCollection, article.ShortID())
	}

	content := article.RawContent
	if !opts.UseRawBody {
		if !article.HasSummary() {
			return nil, fmt.Errorf("%w: %s", ErrNoSummary, article.ShortID())
		}
		content = *article.Summary
	}

	note, err := p.db.PromoteArticle(ctx, articleID, database.NewNote{
		CollectionID: *target,
		Title:        article.Title,
		Content:      content,
		NoteType:     models.NoteTypeReference,
		Status:       models.NoteStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("promoting article %s: %w", article.ShortID(), err)
	}

	p.logger.Info("article promoted",
		"article_id", articleID,
		"note_id", note.ID,
		"collection_id", note.CollectionID,
		"raw_body", opts.UseRawBody,
	)
	return note, nil
}
