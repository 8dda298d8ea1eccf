package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/pkg/models"
)

const articleColumns = "id, url, title, raw_content, summary, collection_id, status, failure_reason, source_metadata, created_at, updated_at"

// NewArticle is the extracted input for InsertArticle.
type NewArticle struct {
	URL          string
	Title        string
	RawContent   string
	CollectionID *uuid.UUID
	Metadata     models.SourceMetadata
}

// ArticleFilter narrows ListArticles. Zero values mean no restriction.
type ArticleFilter struct {
	Statuses     []models.ArticleStatus
	CollectionID *uuid.UUID
	Limit        uint64
	OldestFirst  bool
}

// InsertArticle stores a new article in Pending.
func (db *DB) InsertArticle(ctx context.Context, in NewArticle) (*models.Article, error) {
	url := strings.TrimSpace(in.URL)
	title := strings.TrimSpace(in.Title)
	switch {
	case url == "":
		return nil, fmt.Errorf("%w: url is empty", ErrInvalidArticle)
	case title == "":
		return nil, fmt.Errorf("%w: title is empty", ErrInvalidArticle)
	case strings.TrimSpace(in.RawContent) == "":
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidArticle)
	}

	meta := in.Metadata
	if meta == nil {
		meta = models.SourceMetadata{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding source metadata: %w", err)
	}

	now := db.now()
	article := &models.Article{
		ID:             uuid.New(),
		URL:            url,
		Title:          title,
		RawContent:     in.RawContent,
		CollectionID:   in.CollectionID,
		Status:         models.StatusPending,
		SourceMetadata: meta,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO articles (id, url, title, raw_content, collection_id, status, source_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID, article.URL, article.Title, article.RawContent, article.CollectionID,
		article.Status.String(), string(metaJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting article: %w", classify(err))
	}

	return article, nil
}

// GetArticle loads one article by id.
func (db *DB) GetArticle(ctx context.Context, id uuid.UUID) (*models.Article, error) {
	return getArticle(ctx, db, id)
}

func getArticle(ctx context.Context, q querier, id uuid.UUID) (*models.Article, error) {
	row := q.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = ?", id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting article: %w", err)
	}
	return article, nil
}

// GetArticleByURL loads the article stored under url.
func (db *DB) GetArticleByURL(ctx context.Context, url string) (*models.Article, error) {
	row := db.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE url = ?", strings.TrimSpace(url))
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("getting article by url: %w", err)
	}
	return article, nil
}

// FindArticle resolves a full id or a unique hex prefix of one.
func (db *DB) FindArticle(ctx context.Context, ref string) (*models.Article, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if id, err := uuid.Parse(ref); err == nil {
		return db.GetArticle(ctx, id)
	}
	if !isIDPrefix(ref) {
		return nil, fmt.Errorf("%w: %q", ErrArticleNotFound, ref)
	}

	rows, err := db.QueryContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE id LIKE ? LIMIT 2", ref+"%")
	if err != nil {
		return nil, fmt.Errorf("finding article: %w", err)
	}
	matches, err := scanArticles(rows)
	if err != nil {
		return nil, fmt.Errorf("finding article: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrArticleNotFound, ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousID, ref)
	}
}

// ListArticles returns articles matching filter, newest first unless
// OldestFirst is set.
func (db *DB) ListArticles(ctx context.Context, filter ArticleFilter) ([]models.Article, error) {
	query := sq.Select(articleColumns).From("articles")

	if len(filter.Statuses) > 0 {
		names := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			names[i] = s.String()
		}
		query = query.Where(sq.Eq{"status": names})
	}
	if filter.CollectionID != nil {
		query = query.Where(sq.Eq{"collection_id": filter.CollectionID.String()})
	}
	if filter.OldestFirst {
		query = query.OrderBy("created_at ASC", "seq ASC")
	} else {
		query = query.OrderBy("created_at DESC", "seq DESC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building article query: %w", err)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	articles, err := scanArticles(rows)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	return articles, nil
}

// CountByStatus returns the number of articles in each status.
func (db *DB) CountByStatus(ctx context.Context) (map[models.ArticleStatus]int, error) {
	rows, err := db.QueryContext(ctx, "SELECT status, COUNT(*) FROM articles GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ArticleStatus]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		status, err := models.ParseArticleStatus(name)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// TransitionArticle moves an article from one status to another as a single
// compare-and-set. A concurrent writer that already moved the article makes
// this fail with a *models.TransitionError carrying the status it found.
// reason is recorded only when moving into Failed and cleared otherwise.
func (db *DB) TransitionArticle(ctx context.Context, id uuid.UUID, from, to models.ArticleStatus, reason string) error {
	if err := models.ValidateTransition(id, from, to); err != nil {
		return err
	}

	var failure *string
	if to == models.StatusFailed {
		failure = &reason
	}

	res, err := db.ExecContext(ctx, `
		UPDATE articles SET status = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to.String(), failure, db.now(), id, from.String(),
	)
	if err != nil {
		return fmt.Errorf("transitioning article: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return fmt.Errorf("transitioning article: %w", err)
	}
	if ok {
		return nil
	}

	current, err := db.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	return &models.TransitionError{ArticleID: id, From: current.Status, To: to}
}

// UpdateArticleSummary stores a generated summary and moves the article out
// of Summarizing in one transaction.
func (db *DB) UpdateArticleSummary(ctx context.Context, id uuid.UUID, summary string, to models.ArticleStatus) error {
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("%w: summary is empty", ErrInvalidArticle)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		article, err := getArticle(ctx, tx, id)
		if err != nil {
			return err
		}
		if article.Status != models.StatusSummarizing {
			return &models.TransitionError{ArticleID: id, From: article.Status, To: to}
		}
		if err := models.ValidateTransition(id, article.Status, to); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE articles SET summary = ?, status = ?, failure_reason = NULL, updated_at = ?
			WHERE id = ? AND status = ?`,
			summary, to.String(), db.now(), id, models.StatusSummarizing.String(),
		)
		if err != nil {
			return fmt.Errorf("updating article summary: %w", err)
		}
		return nil
	})
}

// DeleteArticle removes an article. Notes promoted from it keep their
// content and lose only the cross-reference.
func (db *DB) DeleteArticle(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM articles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting article: %w", classify(err))
	}
	ok, err := affectedOne(res)
	if err != nil {
		return fmt.Errorf("deleting article: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	return nil
}

// StaleArticles returns articles stuck in Summarizing since before cutoff.
func (db *DB) StaleArticles(ctx context.Context, cutoff time.Time) ([]models.Article, error) {
	inFlight, err := db.ListArticles(ctx, ArticleFilter{
		Statuses:    []models.ArticleStatus{models.StatusSummarizing},
		OldestFirst: true,
	})
	if err != nil {
		return nil, err
	}

	var stale []models.Article
	for _, a := range inFlight {
		if a.UpdatedAt.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	return stale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		a          models.Article
		summary    sql.NullString
		collection uuid.NullUUID
		status     string
		failure    sql.NullString
		meta       string
	)
	err := row.Scan(&a.ID, &a.URL, &a.Title, &a.RawContent, &summary, &collection,
		&status, &failure, &meta, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if summary.Valid {
		a.Summary = &summary.String
	}
	if collection.Valid {
		a.CollectionID = &collection.UUID
	}
	if a.Status, err = models.ParseArticleStatus(status); err != nil {
		return nil, err
	}
	a.FailureReason = failure.String
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &a.SourceMetadata); err != nil {
			return nil, fmt.Errorf("decoding source metadata: %w", err)
		}
	}
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]models.Article, error) {
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func isIDPrefix(s string) bool {
	if len(s) < 4 || len(s) > 36 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r == '-') {
			return false
		}
	}
	return true
}
