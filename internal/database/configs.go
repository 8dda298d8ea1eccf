package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/pkg/models"
)

const configColumns = "id, name, system_prompt, collection_id, active, created_at"

// NewSummaryConfig is the input for CreateSummaryConfig.
type NewSummaryConfig struct {
	Name         string
	SystemPrompt string
	CollectionID *uuid.UUID
	Active       bool
}

// CreateSummaryConfig stores a config. Creating a second active config for a
// scope that already has one fails with ErrActiveConfigConflict.
func (db *DB) CreateSummaryConfig(ctx context.Context, in NewSummaryConfig) (*models.SummaryConfig, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("summary config name is empty")
	}
	if strings.TrimSpace(in.SystemPrompt) == "" {
		return nil, errors.New("summary config prompt is empty")
	}

	cfg := &models.SummaryConfig{
		ID:           uuid.New(),
		Name:         name,
		SystemPrompt: in.SystemPrompt,
		CollectionID: in.CollectionID,
		Active:       in.Active,
		CreatedAt:    db.now(),
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO summary_configs ("+configColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		cfg.ID, cfg.Name, cfg.SystemPrompt, cfg.CollectionID, cfg.Active, cfg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting summary config: %w", classify(err))
	}
	return cfg, nil
}

func (db *DB) GetSummaryConfig(ctx context.Context, id uuid.UUID) (*models.SummaryConfig, error) {
	return getSummaryConfig(ctx, db, id)
}

func getSummaryConfig(ctx context.Context, q querier, id uuid.UUID) (*models.SummaryConfig, error) {
	row := q.QueryRowContext(ctx, "SELECT "+configColumns+" FROM summary_configs WHERE id = ?", id)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting summary config: %w", err)
	}
	return cfg, nil
}

// FindSummaryConfig resolves a config by id, unique id prefix or exact name.
func (db *DB) FindSummaryConfig(ctx context.Context, ref string) (*models.SummaryConfig, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return db.GetSummaryConfig(ctx, id)
	}

	query := "SELECT " + configColumns + " FROM summary_configs WHERE name = ?"
	args := []any{ref}
	if prefix := strings.ToLower(ref); isIDPrefix(prefix) {
		query += " OR id LIKE ?"
		args = append(args, prefix+"%")
	}

	rows, err := db.QueryContext(ctx, query+" ORDER BY created_at DESC LIMIT 2", args...)
	if err != nil {
		return nil, fmt.Errorf("finding summary config: %w", err)
	}
	configs, err := scanConfigs(rows)
	if err != nil {
		return nil, fmt.Errorf("finding summary config: %w", err)
	}

	switch len(configs) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrConfigNotFound, ref)
	case 1:
		return &configs[0], nil
	default:
		return nil, fmt.Errorf("%w: summary config %q", ErrAmbiguousID, ref)
	}
}

func (db *DB) ListSummaryConfigs(ctx context.Context) ([]models.SummaryConfig, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+configColumns+" FROM summary_configs ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("listing summary configs: %w", err)
	}
	return scanConfigs(rows)
}

func (db *DB) CountSummaryConfigs(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summary_configs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting summary configs: %w", err)
	}
	return n, nil
}

// ListActiveSummaryConfigsFor returns the active configs that could govern an
// article in collectionID: every active global config plus, when
// collectionID is set, the active configs scoped to it.
func (db *DB) ListActiveSummaryConfigsFor(ctx context.Context, collectionID *uuid.UUID) ([]models.SummaryConfig, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if collectionID == nil {
		rows, err = db.QueryContext(ctx,
			"SELECT "+configColumns+" FROM summary_configs WHERE active = 1 AND collection_id IS NULL")
	} else {
		rows, err = db.QueryContext(ctx,
			"SELECT "+configColumns+" FROM summary_configs WHERE active = 1 AND (collection_id IS NULL OR collection_id = ?)",
			*collectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing active summary configs: %w", err)
	}
	return scanConfigs(rows)
}

// ActivateSummaryConfig makes id the active config for its scope,
// deactivating whichever config held that scope before.
func (db *DB) ActivateSummaryConfig(ctx context.Context, id uuid.UUID) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		cfg, err := getSummaryConfig(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE summary_configs SET active = 0 WHERE active = 1 AND collection_id IS ? AND id <> ?",
			cfg.CollectionID, id,
		); err != nil {
			return fmt.Errorf("deactivating previous summary config: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "UPDATE summary_configs SET active = 1 WHERE id = ?", id); err != nil {
			return fmt.Errorf("activating summary config: %w", classify(err))
		}
		return nil
	})
}

func (db *DB) DeactivateSummaryConfig(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, "UPDATE summary_configs SET active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivating summary config: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return fmt.Errorf("deactivating summary config: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}
	return nil
}

func scanConfig(row rowScanner) (*models.SummaryConfig, error) {
	var (
		cfg        models.SummaryConfig
		collection uuid.NullUUID
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.SystemPrompt, &collection, &cfg.Active, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	if collection.Valid {
		cfg.CollectionID = &collection.UUID
	}
	return &cfg, nil
}

func scanConfigs(rows *sql.Rows) ([]models.SummaryConfig, error) {
	defer rows.Close()

	var configs []models.SummaryConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning summary config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}
