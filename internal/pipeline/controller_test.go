package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/promote"
	"github.com/thomaskoefod/minmind/internal/summary"
	"github.com/thomaskoefod/minmind/internal/worker"
	"github.com/thomaskoefod/minmind/pkg/models"
)

func setupDB(t *testing.T, seed bool) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "minmind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	if seed {
		require.NoError(t, summary.SeedDefault(ctx, db, nil))
	}
	return db
}

func ingest(t *testing.T, db *database.DB, url string, collection *uuid.UUID) *models.Article {
	t.Helper()
	a, err := db.InsertArticle(context.Background(), database.NewArticle{
		URL: url, Title: "A", RawContent: "lorem", CollectionID: collection,
	})
	require.NoError(t, err)
	return a
}

func constant(s string) worker.Func {
	return func(ctx context.Context, req worker.Request) (string, error) { return s, nil }
}

func status(t *testing.T, db *database.DB, id uuid.UUID) models.ArticleStatus {
	t.Helper()
	a, err := db.GetArticle(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

func TestScenario_HappyPath(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	room, err := db.CreateCollection(ctx, "Library", "", nil)
	require.NoError(t, err)
	a := ingest(t, db, "https://example.com/a", nil)

	c := New(db, constant("short"), Options{Provider: "ollama", Model: "llama3.1"}, nil)

	got, err := c.Summarize(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSummarized, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "short", *got.Summary)

	_, err = c.BeginReview(ctx, a.ID)
	require.NoError(t, err)
	note, err := c.Approve(ctx, a.ID, promote.Options{TargetCollection: &room.ID})
	require.NoError(t, err)
	assert.Equal(t, "short", note.Content)
	assert.Equal(t, room.ID, note.CollectionID)
	assert.Equal(t, models.StatusConverted, status(t, db, a.ID))
}

func TestScenario_TimeoutThenRetry(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)

	var calls atomic.Int32
	s := worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		if calls.Add(1) == 1 {
			return "", &worker.Error{Kind: worker.KindTimeout, Msg: "no response after 2m0s"}
		}
		return "short", nil
	})
	c := New(db, s, Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.ErrorIs(t, err, worker.ErrTimeout)

	failed, err := db.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Contains(t, failed.FailureReason, "timeout")

	require.NoError(t, c.Retry(ctx, a.ID))
	assert.Equal(t, models.StatusPending, status(t, db, a.ID))

	got, err := c.Summarize(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSummarized, got.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScenario_RegenerationLoop(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	room, err := db.CreateCollection(ctx, "Library", "", nil)
	require.NoError(t, err)
	a := ingest(t, db, "https://example.com/a", &room.ID)

	var requests []worker.Request
	s := worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		requests = append(requests, req)
		if req.Feedback == nil {
			return "a very long summary that goes on and on", nil
		}
		return "shorter", nil
	})
	c := New(db, s, Options{}, nil)

	_, err = c.Summarize(ctx, a.ID)
	require.NoError(t, err)
	_, err = c.BeginReview(ctx, a.ID)
	require.NoError(t, err)

	got, err := c.Regenerate(ctx, a.ID, []string{"too long"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSummarized, got.Status)
	assert.Equal(t, "shorter", *got.Summary)

	require.Len(t, requests, 2)
	assert.Equal(t, summary.DefaultPrompt, requests[0].SystemPrompt)
	assert.True(t, strings.HasPrefix(requests[1].SystemPrompt, summary.DefaultPrompt))
	assert.Contains(t, requests[1].SystemPrompt, "too long")
	require.NotNil(t, requests[1].Feedback)
	assert.Equal(t, "too long", *requests[1].Feedback)
	assert.Nil(t, requests[0].PreviousSummary)
	require.NotNil(t, requests[1].PreviousSummary)
	assert.Equal(t, "a very long summary that goes on and on", *requests[1].PreviousSummary)

	_, err = c.BeginReview(ctx, a.ID)
	require.NoError(t, err)
	note, err := c.Approve(ctx, a.ID, promote.Options{})
	require.NoError(t, err)
	assert.Equal(t, "shorter", note.Content)
	assert.Equal(t, models.StatusConverted, status(t, db, a.ID))
}

func TestSummarize_NoConfigLeavesArticleUntouched(t *testing.T) {
	db := setupDB(t, false)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)

	called := false
	c := New(db, worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		called = true
		return "x", nil
	}), Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.ErrorIs(t, err, summary.ErrNoActiveConfig)
	assert.False(t, called)
	assert.Equal(t, models.StatusPending, status(t, db, a.ID))
}

func TestSummarize_UsesCollectionConfig(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	room, err := db.CreateCollection(ctx, "Research", "", nil)
	require.NoError(t, err)
	_, err = db.CreateSummaryConfig(ctx, database.NewSummaryConfig{Name: "research", SystemPrompt: "cite every source", CollectionID: &room.ID, Active: true})
	require.NoError(t, err)

	var prompts []string
	c := New(db, worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		prompts = append(prompts, req.SystemPrompt)
		return "x", nil
	}), Options{}, nil)

	_, err = c.Summarize(ctx, ingest(t, db, "https://example.com/a", &room.ID).ID)
	require.NoError(t, err)
	_, err = c.Summarize(ctx, ingest(t, db, "https://example.com/b", nil).ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"cite every source", summary.DefaultPrompt}, prompts)
}

func TestSummarize_WrongState(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)
	c := New(db, constant("short"), Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.NoError(t, err)

	_, err = c.Summarize(ctx, a.ID)
	var te *models.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, models.StatusSummarized, te.From)

	// Regeneration needs review first.
	_, err = c.Regenerate(ctx, a.ID, []string{"x"})
	require.True(t, errors.As(err, &te))

	_, err = c.Summarize(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrArticleNotFound)
}

func TestSummarize_NonRetryableFailure(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)

	c := New(db, worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		return "", &worker.Error{Kind: worker.KindProviderRejected, Msg: "invalid api key"}
	}), Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.ErrorIs(t, err, worker.ErrProviderRejected)

	got, err := db.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "invalid api key")

	require.NoError(t, c.Abandon(ctx, a.ID))
	assert.Equal(t, models.StatusArchived, status(t, db, a.ID))
	assert.Error(t, c.Retry(ctx, a.ID))
}

func TestSummarize_CancelledCallStillRecordsFailure(t *testing.T) {
	db := setupDB(t, true)
	a := ingest(t, db, "https://example.com/a", nil)
	ctx, cancel := context.WithCancel(context.Background())

	c := New(db, worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	}), Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.ErrorIs(t, err, context.Canceled)

	got, err := db.GetArticle(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, InterruptedReason, got.FailureReason)
}

func TestSummarize_CancelledAfterWorkerAnsweredKeepsSummary(t *testing.T) {
	db := setupDB(t, true)
	a := ingest(t, db, "https://example.com/a", nil)
	ctx, cancel := context.WithCancel(context.Background())

	c := New(db, worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		cancel()
		return "short", nil
	}), Options{}, nil)

	got, err := c.Summarize(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSummarized, got.Status)

	stored, err := db.GetArticle(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSummarized, stored.Status)
	require.NotNil(t, stored.Summary)
	assert.Equal(t, "short", *stored.Summary)
}

func TestSummarize_TransientFailuresRetriedBeforeFailing(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)

	var calls atomic.Int32
	flaky := worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		calls.Add(1)
		return "", &worker.Error{Kind: worker.KindProcessFailure, Msg: "exit code 1"}
	})
	c := New(db, worker.WithRetry(flaky, 3, time.Millisecond, nil), Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.ErrorIs(t, err, worker.ErrProcessFailure)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, models.StatusFailed, status(t, db, a.ID))
}

func TestReject(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)
	c := New(db, constant("short"), Options{}, nil)

	_, err := c.Summarize(ctx, a.ID)
	require.NoError(t, err)

	// Rejecting requires the article to be under review.
	var te *models.TransitionError
	require.True(t, errors.As(c.Reject(ctx, a.ID), &te))

	_, err = c.BeginReview(ctx, a.ID)
	require.NoError(t, err)
	require.NoError(t, c.Reject(ctx, a.ID))
	assert.Equal(t, models.StatusArchived, status(t, db, a.ID))

	_, err = c.BeginReview(ctx, a.ID)
	require.True(t, errors.As(err, &te))
}

func TestApprove_WithoutTargetStaysUnderReview(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	room, err := db.CreateCollection(ctx, "Library", "", nil)
	require.NoError(t, err)
	a := ingest(t, db, "https://example.com/a", nil)
	c := New(db, constant("short"), Options{}, nil)

	_, err = c.Summarize(ctx, a.ID)
	require.NoError(t, err)
	_, err = c.BeginReview(ctx, a.ID)
	require.NoError(t, err)

	_, err = c.Approve(ctx, a.ID, promote.Options{})
	require.ErrorIs(t, err, promote.ErrNoTargetCollection)
	assert.Equal(t, models.StatusUnderReview, status(t, db, a.ID))

	note, err := c.Approve(ctx, a.ID, promote.Options{TargetCollection: &room.ID})
	require.NoError(t, err)
	assert.Equal(t, room.ID, note.CollectionID)
	assert.Equal(t, models.StatusConverted, status(t, db, a.ID))
}

func TestProcessPending(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()

	ids := make(map[uuid.UUID]bool)
	for i := range 6 {
		a := ingest(t, db, fmt.Sprintf("https://example.com/%d", i), nil)
		ids[a.ID] = i == 5
	}

	var (
		mu      sync.Mutex
		seen    = make(map[uuid.UUID]int)
		running atomic.Int32
		peak    atomic.Int32
	)
	s := worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		seen[req.ArticleID]++
		mu.Unlock()
		if ids[req.ArticleID] {
			return "", &worker.Error{Kind: worker.KindProviderRejected, Msg: "nope"}
		}
		return "summary", nil
	})

	c := New(db, s, Options{Workers: 2}, nil)
	stats, err := c.ProcessPending(ctx)
	require.NoError(t, err)

	assert.Equal(t, Stats{Summarized: 5, Failed: 1}, stats)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for id, n := range seen {
		assert.Equal(t, 1, n, "article %s summarized more than once", id)
	}

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[models.StatusSummarized])
	assert.Equal(t, 1, counts[models.StatusFailed])
	assert.Zero(t, counts[models.StatusPending])
}

func TestProcessPending_ConcurrentRunsClaimOnce(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	for i := range 10 {
		ingest(t, db, fmt.Sprintf("https://example.com/%d", i), nil)
	}

	var calls atomic.Int32
	s := worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return "summary", nil
	})

	a := New(db, s, Options{Workers: 3}, nil)
	b := New(db, s, Options{Workers: 3}, nil)

	var (
		wg           sync.WaitGroup
		statsA, statsB Stats
		errA, errB   error
	)
	wg.Add(2)
	go func() { defer wg.Done(); statsA, errA = a.ProcessPending(ctx) }()
	go func() { defer wg.Done(); statsB, errB = b.ProcessPending(ctx) }()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, int32(10), calls.Load())
	assert.Equal(t, 10, statsA.Summarized+statsB.Summarized)
}

func TestProcessPending_StopsWithoutConfig(t *testing.T) {
	db := setupDB(t, false)
	ingest(t, db, "https://example.com/a", nil)

	c := New(db, constant("x"), Options{}, nil)
	_, err := c.ProcessPending(context.Background())
	assert.ErrorIs(t, err, summary.ErrNoActiveConfig)
}

func TestRecoverStale(t *testing.T) {
	db := setupDB(t, true)
	ctx := context.Background()
	a := ingest(t, db, "https://example.com/a", nil)
	require.NoError(t, db.TransitionArticle(ctx, a.ID, models.StatusPending, models.StatusSummarizing, ""))

	c := New(db, constant("x"), Options{StaleAfter: time.Hour}, nil)

	n, err := c.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = c.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, InterruptedReason, got.FailureReason)
}
