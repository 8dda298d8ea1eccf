package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/thomaskoefod/minmind/pkg/models"
)

const defaultSearchLimit = 20

// SearchArticles runs a full-text query over title, raw content and summary.
// Each whitespace-separated term is matched literally; all terms must match.
func (db *DB) SearchArticles(ctx context.Context, query string, limit int) ([]models.ArticleSearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.url, a.title, a.raw_content, a.summary, a.collection_id, a.status,
		       a.failure_reason, a.source_metadata, a.created_at, a.updated_at, bm25(articles_fts)
		FROM articles_fts
		JOIN articles a ON a.seq = articles_fts.rowid
		WHERE articles_fts MATCH ?
		ORDER BY bm25(articles_fts)
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("searching articles: %w", err)
	}
	defer rows.Close()

	var results []models.ArticleSearchResult
	for rows.Next() {
		var rank float64
		article, err := scanArticle(rankScanner{rows, &rank})
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, models.ArticleSearchResult{Article: *article, Rank: rank})
	}
	return results, rows.Err()
}

// ftsQuery turns free text into an FTS5 expression of quoted terms so that
// operators and punctuation in user input are never interpreted.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " ")
}

// rankScanner appends the rank column to an article scan.
type rankScanner struct {
	row  rowScanner
	rank *float64
}

func (r rankScanner) Scan(dest ...any) error {
	return r.row.Scan(append(dest, r.rank)...)
}
