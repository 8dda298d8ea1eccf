package summary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/pkg/models"
)

func cfg(name string, collection *uuid.UUID, active bool) models.SummaryConfig {
	return models.SummaryConfig{ID: uuid.New(), Name: name, SystemPrompt: name + " prompt", CollectionID: collection, Active: active}
}

func TestResolve_Precedence(t *testing.T) {
	room, other := uuid.New(), uuid.New()
	global := cfg("global", nil, true)
	scoped := cfg("room", &room, true)
	configs := []models.SummaryConfig{global, scoped, cfg("stale", &room, false)}

	got, err := Resolve(configs, &room)
	require.NoError(t, err)
	assert.Equal(t, scoped.ID, got.ID)

	got, err = Resolve(configs, &other)
	require.NoError(t, err)
	assert.Equal(t, global.ID, got.ID)

	got, err = Resolve(configs, nil)
	require.NoError(t, err)
	assert.Equal(t, global.ID, got.ID)
}

func TestResolve_NotFound(t *testing.T) {
	room := uuid.New()

	_, err := Resolve(nil, &room)
	assert.ErrorIs(t, err, ErrNoActiveConfig)

	_, err = Resolve([]models.SummaryConfig{cfg("off", nil, false), cfg("elsewhere", ptr(uuid.New()), true)}, &room)
	assert.ErrorIs(t, err, ErrNoActiveConfig)
}

func TestResolve_IntegrityViolation(t *testing.T) {
	room := uuid.New()

	_, err := Resolve([]models.SummaryConfig{cfg("a", nil, true), cfg("b", nil, true)}, nil)
	assert.ErrorIs(t, err, ErrConfigIntegrity)

	_, err = Resolve([]models.SummaryConfig{cfg("a", &room, true), cfg("b", &room, true), cfg("g", nil, true)}, &room)
	assert.ErrorIs(t, err, ErrConfigIntegrity)
}

func TestEffectivePrompt(t *testing.T) {
	assert.Equal(t, "base", EffectivePrompt("base", nil))
	assert.Equal(t, "base", EffectivePrompt("base", []string{"  "}))

	got := EffectivePrompt("base\n", []string{"too long", "more examples"})
	assert.Contains(t, got, "base\n\n")
	assert.Contains(t, got, "- too long\n- more examples")
}

func TestResolver_UsesStore(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(t.TempDir(), "minmind.db"))
	require.NoError(t, err)
	defer db.Close()

	r := NewResolver(db)
	_, err = r.Resolve(ctx, nil)
	require.ErrorIs(t, err, ErrNoActiveConfig)

	require.NoError(t, SeedDefault(ctx, db, nil))
	got, err := r.Resolve(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigName, got.Name)
	assert.Equal(t, DefaultPrompt, got.SystemPrompt)

	room, err := db.CreateCollection(ctx, "Research", "", nil)
	require.NoError(t, err)
	scoped, err := db.CreateSummaryConfig(ctx, database.NewSummaryConfig{Name: "research", SystemPrompt: "cite sources", CollectionID: &room.ID, Active: true})
	require.NoError(t, err)

	got, err = r.Resolve(ctx, &room.ID)
	require.NoError(t, err)
	assert.Equal(t, scoped.ID, got.ID)

	// Edits are visible without rebuilding the resolver.
	require.NoError(t, db.DeactivateSummaryConfig(ctx, scoped.ID))
	got, err = r.Resolve(ctx, &room.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigName, got.Name)

	// Seeding is a one-time bootstrap.
	require.NoError(t, db.DeactivateSummaryConfig(ctx, got.ID))
	require.NoError(t, SeedDefault(ctx, db, nil))
	_, err = r.Resolve(ctx, nil)
	assert.ErrorIs(t, err, ErrNoActiveConfig)
}

func ptr[T any](v T) *T { return &v }
