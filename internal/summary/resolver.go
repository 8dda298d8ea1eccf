// Package summary decides which summarization behavior applies to an article.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/pkg/models"
)

var (
	// ErrNoActiveConfig means neither the article's collection nor the global
	// scope has an active config. It needs user action and is never retried.
	ErrNoActiveConfig = errors.New("no active summary config")

	// ErrConfigIntegrity means more than one active config exists at a single
	// scope, which the store is supposed to make impossible.
	ErrConfigIntegrity = errors.New("summary config integrity violated")
)

// Resolve picks the effective config among configs for an article in
// collectionID: an active exact-scope match wins over the active global
// config. Inactive configs and configs scoped to other collections are
// ignored.
func Resolve(configs []models.SummaryConfig, collectionID *uuid.UUID) (models.SummaryConfig, error) {
	var scoped, global []models.SummaryConfig
	for _, c := range configs {
		if !c.Active {
			continue
		}
		switch {
		case c.CollectionID == nil:
			global = append(global, c)
		case collectionID != nil && *c.CollectionID == *collectionID:
			scoped = append(scoped, c)
		}
	}

	for _, candidates := range [][]models.SummaryConfig{scoped, global} {
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0], nil
		default:
			return models.SummaryConfig{}, fmt.Errorf("%w: %d active configs for %s", ErrConfigIntegrity, len(candidates), scopeName(candidates[0].CollectionID))
		}
	}

	return models.SummaryConfig{}, fmt.Errorf("%w for %s", ErrNoActiveConfig, scopeName(collectionID))
}

func scopeName(collectionID *uuid.UUID) string {
	if collectionID == nil {
		return "global scope"
	}
	return "collection " + collectionID.String()
}

// ConfigSource is the store query the Resolver needs.
type ConfigSource interface {
	ListActiveSummaryConfigsFor(ctx context.Context, collectionID *uuid.UUID) ([]models.SummaryConfig, error)
}

// Resolver reads configs from the store on every call so edits made
// mid-session take effect immediately.
type Resolver struct {
	source ConfigSource
}

func NewResolver(source ConfigSource) *Resolver {
	return &Resolver{source: source}
}

func (r *Resolver) Resolve(ctx context.Context, collectionID *uuid.UUID) (models.SummaryConfig, error) {
	configs, err := r.source.ListActiveSummaryConfigsFor(ctx, collectionID)
	if err != nil {
		return models.SummaryConfig{}, fmt.Errorf("loading summary configs: %w", err)
	}
	return Resolve(configs, collectionID)
}

// EffectivePrompt appends accumulated reviewer feedback to a base prompt.
func EffectivePrompt(base string, feedback []string) string {
	var notes []string
	for _, f := range feedback {
		if f = strings.TrimSpace(f); f != "" {
			notes = append(notes, "- "+f)
		}
	}
	if len(notes) == 0 {
		return base
	}
	return strings.TrimRight(base, "\n") +
		"\n\nThe reader reviewed earlier drafts of this summary and asked for the following changes:\n" +
		strings.Join(notes, "\n")
}

// ConfigStore is what SeedDefault needs from the store.
type ConfigStore interface {
	CountSummaryConfigs(ctx context.Context) (int, error)
	CreateSummaryConfig(ctx context.Context, in database.NewSummaryConfig) (*models.SummaryConfig, error)
}

// SeedDefault creates the built-in global config when no config exists at
// all. It does nothing once any config, active or not, has been stored.
func SeedDefault(ctx context.Context, store ConfigStore, logger *slog.Logger) error {
	n, err := store.CountSummaryConfigs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	cfg, err := store.CreateSummaryConfig(ctx, database.NewSummaryConfig{
		Name:         DefaultConfigName,
		SystemPrompt: DefaultPrompt,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("seeding default summary config: %w", err)
	}
	if logger != nil {
		logger.Info("seeded default summary config", "config_id", cfg.ID)
	}
	return nil
}
