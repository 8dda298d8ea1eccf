// Package ingest is the hand-off point between content extraction and the
// article store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/pkg/models"
)

// Extracted is what an extractor hands over: a title and body for a URL.
type Extracted struct {
	URL          string
	Title        string
	Content      string
	CollectionID *uuid.UUID
	Metadata     models.SourceMetadata
}

type Ingester struct {
	db        *database.DB
	parser    *gofeed.Parser
	converter *md.Converter
	logger    *slog.Logger
}

func New(db *database.DB, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingester{
		db:        db,
		parser:    gofeed.NewParser(),
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Ingest stores extracted content as a Pending article. Re-ingesting a URL
// fails with database.ErrDuplicateURL.
func (i *Ingester) Ingest(ctx context.Context, e Extracted) (*models.Article, error) {
	article, err := i.db.InsertArticle(ctx, database.NewArticle{
		URL:          e.URL,
		Title:        e.Title,
		RawContent:   e.Content,
		CollectionID: e.CollectionID,
		Metadata:     e.Metadata,
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("article ingested", "article_id", article.ID, "url", article.URL)
	return article, nil
}

// IngestHTML converts an HTML body to markdown before ingesting it.
func (i *Ingester) IngestHTML(ctx context.Context, e Extracted) (*models.Article, error) {
	content, err := i.toMarkdown(e.Content)
	if err != nil {
		return nil, err
	}
	e.Content = content
	return i.Ingest(ctx, e)
}

func (i *Ingester) toMarkdown(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	markdown, err := i.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("converting html to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}
