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

const collectionColumns = "id, name, description, parent_id, created_at, updated_at"

// CreateCollection adds a collection, optionally nested under parentID.
func (db *DB) CreateCollection(ctx context.Context, name, description string, parentID *uuid.UUID) (*models.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("collection name is empty")
	}

	now := db.now()
	c := &models.Collection{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		ParentID:    parentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO collections ("+collectionColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, c.Description, c.ParentID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting collection: %w", classify(err))
	}
	return c, nil
}

func (db *DB) GetCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	row := db.QueryRowContext(ctx, "SELECT "+collectionColumns+" FROM collections WHERE id = ?", id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection: %w", err)
	}
	return c, nil
}

// FindCollection resolves a collection by id or by case-insensitive name.
func (db *DB) FindCollection(ctx context.Context, ref string) (*models.Collection, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return db.GetCollection(ctx, id)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+collectionColumns+" FROM collections WHERE name = ? COLLATE NOCASE ORDER BY created_at LIMIT 2", ref)
	if err != nil {
		return nil, fmt.Errorf("finding collection: %w", err)
	}
	defer rows.Close()

	var found []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding collection: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: collection name %q", ErrAmbiguousID, ref)
	}
}

func (db *DB) ListCollections(ctx context.Context) ([]models.Collection, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+collectionColumns+" FROM collections ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var collections []models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		collections = append(collections, *c)
	}
	return collections, rows.Err()
}

func scanCollection(row rowScanner) (*models.Collection, error) {
	var (
		c      models.Collection
		parent uuid.NullUUID
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &parent, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if parent.Valid {
		c.ParentID = &parent.UUID
	}
	return &c, nil
}
