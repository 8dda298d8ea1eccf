package review

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/pipeline"
	"github.com/thomaskoefod/minmind/internal/summary"
	"github.com/thomaskoefod/minmind/internal/worker"
	"github.com/thomaskoefod/minmind/pkg/models"
)

type fixture struct {
	db       *database.DB
	ctrl     *pipeline.Controller
	room     *models.Collection
	requests []worker.Request
}

// newFixture returns a controller whose worker answers "draft N" on the N-th call.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "minmind.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, summary.SeedDefault(ctx, db, nil))

	room, err := db.CreateCollection(ctx, "Library", "", nil)
	require.NoError(t, err)

	f := &fixture{db: db, room: room}
	f.ctrl = pipeline.New(db, worker.Func(func(ctx context.Context, req worker.Request) (string, error) {
		f.requests = append(f.requests, req)
		return "draft " + string(rune('0'+len(f.requests))), nil
	}), pipeline.Options{}, nil)
	return f
}

func (f *fixture) summarized(t *testing.T) *models.Article {
	t.Helper()
	ctx := context.Background()
	a, err := f.db.InsertArticle(ctx, database.NewArticle{
		URL: "https://example.com/" + uuid.NewString(), Title: "A", RawContent: "lorem", CollectionID: &f.room.ID,
	})
	require.NoError(t, err)
	_, err = f.ctrl.Summarize(ctx, a.ID)
	require.NoError(t, err)
	return a
}

func (f *fixture) status(t *testing.T, id uuid.UUID) models.ArticleStatus {
	t.Helper()
	a, err := f.db.GetArticle(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

func TestSession_RegenerateAccumulatesFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.summarized(t)

	s, err := NewSession(ctx, f.ctrl, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, s.Article().Status)

	out, err := s.Apply(ctx, Decision{Action: ActionRegenerate, Feedback: "too long"})
	require.NoError(t, err)
	assert.False(t, out.Done)
	assert.Equal(t, "draft 2", *out.Article.Summary)
	assert.Equal(t, models.StatusUnderReview, out.Article.Status)

	_, err = s.Apply(ctx, Decision{Action: ActionRegenerate, Feedback: "add examples"})
	require.NoError(t, err)
	assert.Equal(t, []string{"too long", "add examples"}, s.Feedback())

	last := f.requests[len(f.requests)-1]
	assert.Contains(t, last.SystemPrompt, "too long")
	assert.Contains(t, last.SystemPrompt, "add examples")

	out, err = s.Apply(ctx, Decision{Action: ActionApprove})
	require.NoError(t, err)
	assert.True(t, out.Done)
	require.NotNil(t, out.Note)
	assert.Equal(t, "draft 3", out.Note.Content)
	assert.Equal(t, f.room.ID, out.Note.CollectionID)
	assert.Equal(t, models.StatusConverted, f.status(t, a.ID))
}

func TestSession_Reject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.summarized(t)

	s, err := NewSession(ctx, f.ctrl, a.ID)
	require.NoError(t, err)
	out, err := s.Apply(ctx, Decision{Action: ActionReject})
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Equal(t, models.StatusArchived, f.status(t, a.ID))

	_, err = NewSession(ctx, f.ctrl, a.ID)
	var te *models.TransitionError
	assert.True(t, errors.As(err, &te))
}

func TestSession_SaveFeedbackAsConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.summarized(t)

	s, err := NewSession(ctx, f.ctrl, a.ID)
	require.NoError(t, err)
	_, err = s.Apply(ctx, Decision{Action: ActionRegenerate, Feedback: "use bullet points", SaveAs: "bullets"})
	require.NoError(t, err)
	assert.Empty(t, s.Feedback())

	cfg, err := f.db.FindSummaryConfig(ctx, "bullets")
	require.NoError(t, err)
	assert.True(t, cfg.Active)
	require.NotNil(t, cfg.CollectionID)
	assert.Equal(t, f.room.ID, *cfg.CollectionID)
	assert.Contains(t, cfg.SystemPrompt, "use bullet points")

	last := f.requests[len(f.requests)-1]
	assert.Equal(t, cfg.SystemPrompt, last.SystemPrompt)
	assert.Nil(t, last.Feedback)
}

func TestSession_UnknownAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.summarized(t)

	s, err := NewSession(ctx, f.ctrl, a.ID)
	require.NoError(t, err)
	_, err = s.Apply(ctx, Decision{})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

// scriptedReviewer replays decisions and records what it was shown.
type scriptedReviewer struct {
	decisions []Decision
	shown     []string
}

func (r *scriptedReviewer) Decide(ctx context.Context, a *models.Article, feedback []string) (Decision, error) {
	r.shown = append(r.shown, *a.Summary)
	d := r.decisions[0]
	r.decisions = r.decisions[1:]
	return d, nil
}

func TestLoop_IteratesUntilDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.summarized(t)

	r := &scriptedReviewer{decisions: []Decision{
		{Action: ActionRegenerate, Feedback: "too long"},
		{Action: ActionRegenerate, Feedback: "still too long"},
		{Action: ActionRegenerate},
		{Action: ActionApprove, UseRawBody: true},
	}}

	out, err := NewLoop(f.ctrl, nil).Run(ctx, a.ID, r)
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Equal(t, []string{"draft 1", "draft 2", "draft 3", "draft 4"}, r.shown)
	assert.Equal(t, "lorem", out.Note.Content)
	assert.Empty(t, r.decisions)
}

func TestLoop_SkipLeavesUnderReview(t *testing.T) {
	f := newFixture(t)
	a := f.summarized(t)

	out, err := NewLoop(f.ctrl, nil).Run(context.Background(), a.ID, &scriptedReviewer{decisions: []Decision{{Action: ActionSkip}}})
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.Equal(t, models.StatusUnderReview, f.status(t, a.ID))
}

func TestPromptReviewer(t *testing.T) {
	f := newFixture(t)
	a := f.summarized(t)

	in := strings.NewReader("bogus\ng make it shorter\nsave terse keep it terse\napprove\n")
	var out bytes.Buffer
	r := NewPromptReviewer(in, &out, nil)

	result, err := NewLoop(f.ctrl, nil).Run(context.Background(), a.ID, r)
	require.NoError(t, err)
	require.NotNil(t, result.Note)
	assert.Equal(t, models.StatusConverted, f.status(t, a.ID))

	text := out.String()
	assert.Contains(t, text, "unknown review action")
	assert.Contains(t, text, "draft 1")
	assert.Contains(t, text, "feedback so far: make it shorter")

	_, err = f.db.FindSummaryConfig(context.Background(), "terse")
	assert.NoError(t, err)
}

func TestPromptReviewer_EOFSkips(t *testing.T) {
	r := NewPromptReviewer(strings.NewReader(""), &bytes.Buffer{}, nil)
	summaryText := "s"
	d, err := r.Decide(context.Background(), &models.Article{ID: uuid.New(), Summary: &summaryText}, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, d.Action)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Decision
	}{
		{"a", Decision{Action: ActionApprove}},
		{"  APPROVE ", Decision{Action: ActionApprove}},
		{"raw", Decision{Action: ActionApprove, UseRawBody: true}},
		{"x", Decision{Action: ActionReject}},
		{"g too long", Decision{Action: ActionRegenerate, Feedback: "too long"}},
		{"regen", Decision{Action: ActionRegenerate}},
		{"save terse be brief", Decision{Action: ActionRegenerate, SaveAs: "terse", Feedback: "be brief"}},
		{"q", Decision{Action: ActionSkip}},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}

	for _, bad := range []string{"", "save", "publish"} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, bad)
	}
}
