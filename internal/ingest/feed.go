package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/pkg/models"
)

// FeedResult counts what happened to the items of one feed.
type FeedResult struct {
	Added []*models.Article
	// Skipped items were already stored or had no title, link or body.
	Skipped int
}

// IngestFeed fetches an RSS/Atom feed and ingests its items into
// collectionID.
func (i *Ingester) IngestFeed(ctx context.Context, feedURL string, collectionID *uuid.UUID) (FeedResult, error) {
	feed, err := i.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return FeedResult{}, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return i.ingestItems(ctx, feed, feedURL, collectionID)
}

// IngestFeedReader is IngestFeed for an already downloaded feed document.
func (i *Ingester) IngestFeedReader(ctx context.Context, r io.Reader, feedURL string, collectionID *uuid.UUID) (FeedResult, error) {
	feed, err := i.parser.Parse(r)
	if err != nil {
		return FeedResult{}, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return i.ingestItems(ctx, feed, feedURL, collectionID)
}

func (i *Ingester) ingestItems(ctx context.Context, feed *gofeed.Feed, feedURL string, collectionID *uuid.UUID) (FeedResult, error) {
	var result FeedResult
	for _, item := range feed.Items {
		e, err := i.fromItem(feed, item, feedURL)
		if err != nil {
			return result, err
		}
		e.CollectionID = collectionID

		article, err := i.Ingest(ctx, e)
		switch {
		case err == nil:
			result.Added = append(result.Added, article)
		case errors.Is(err, database.ErrDuplicateURL), errors.Is(err, database.ErrInvalidArticle):
			result.Skipped++
		default:
			return result, fmt.Errorf("ingesting %s: %w", item.Link, err)
		}
	}

	i.logger.Info("feed ingested", "feed", feedURL, "added", len(result.Added), "skipped", result.Skipped)
	return result, nil
}

// fromItem converts a feed item, preferring full content over the
// description.
func (i *Ingester) fromItem(feed *gofeed.Feed, item *gofeed.Item, feedURL string) (Extracted, error) {
	html := item.Content
	if html == "" {
		html = item.Description
	}
	content, err := i.toMarkdown(html)
	if err != nil {
		return Extracted{}, err
	}

	meta := models.SourceMetadata{"source": "feed", "feed_url": feedURL}
	if feed.Title != "" {
		meta["site"] = feed.Title
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		meta["author"] = item.Authors[0].Name
	}
	if published := item.PublishedParsed; published != nil {
		meta["published"] = published.UTC().Format(time.RFC3339)
	} else if updated := item.UpdatedParsed; updated != nil {
		meta["published"] = updated.UTC().Format(time.RFC3339)
	}
	if item.Image != nil && item.Image.URL != "" {
		meta["image"] = item.Image.URL
	}
	if item.GUID != "" {
		meta["guid"] = item.GUID
	}

	return Extracted{
		URL:      item.Link,
		Title:    item.Title,
		Content:  content,
		Metadata: meta,
	}, nil
}
