package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaskoefod/minmind/pkg/models"
)

func searchIDs(t *testing.T, db *DB, q string) []string {
	t.Helper()
	results, err := db.SearchArticles(context.Background(), q, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID.String())
	}
	return ids
}

func TestSearch_FollowsArticleMutations(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	a := insertArticle(t, db, "https://example.com/a")

	assert.Contains(t, searchIDs(t, db, "lorem"), a.ID.String())
	assert.Empty(t, searchIDs(t, db, "zanzibar"))

	require.NoError(t, db.TransitionArticle(ctx, a.ID, models.StatusPending, models.StatusSummarizing, ""))
	require.NoError(t, db.UpdateArticleSummary(ctx, a.ID, "zanzibar spices", models.StatusSummarized))
	assert.Equal(t, []string{a.ID.String()}, searchIDs(t, db, "zanzibar"))

	// Regeneration replaces the summary; the old term must disappear.
	require.NoError(t, db.TransitionArticle(ctx, a.ID, models.StatusSummarized, models.StatusUnderReview, ""))
	require.NoError(t, db.TransitionArticle(ctx, a.ID, models.StatusUnderReview, models.StatusSummarizing, ""))
	require.NoError(t, db.UpdateArticleSummary(ctx, a.ID, "madagascar vanilla", models.StatusSummarized))
	assert.Empty(t, searchIDs(t, db, "zanzibar"))
	assert.Equal(t, []string{a.ID.String()}, searchIDs(t, db, "madagascar"))

	require.NoError(t, db.DeleteArticle(ctx, a.ID))
	assert.Empty(t, searchIDs(t, db, "madagascar"))
	assert.Empty(t, searchIDs(t, db, "lorem"))
}

func TestSearch_RanksAndEscapes(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.InsertArticle(ctx, NewArticle{URL: "https://example.com/1", Title: "Go concurrency", RawContent: "channels and goroutines, goroutines everywhere"})
	require.NoError(t, err)
	_, err = db.InsertArticle(ctx, NewArticle{URL: "https://example.com/2", Title: "Cooking", RawContent: "one mention of goroutines"})
	require.NoError(t, err)

	results, err := db.SearchArticles(ctx, "goroutines", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Go concurrency", results[0].Title)
	assert.LessOrEqual(t, results[0].Rank, results[1].Rank)

	// FTS operators in user input are treated as plain text.
	_, err = db.SearchArticles(ctx, `goroutines" OR NEAR(`, 10)
	assert.NoError(t, err)

	results, err = db.SearchArticles(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
