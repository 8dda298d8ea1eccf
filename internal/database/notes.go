package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/pkg/models"
)

const noteColumns = "id, collection_id, title, content, note_type, status, source_article_id, created_at, updated_at"

// NewNote is the content of a note about to be created from an article.
type NewNote struct {
	CollectionID uuid.UUID
	Title        string
	Content      string
	NoteType     models.NoteType
	Status       models.NoteStatus
}

// PromoteArticle creates a note from an Approved article and marks the
// article Converted. Both happen in one transaction: on any failure neither
// the note nor the status change is visible.
func (db *DB) PromoteArticle(ctx context.Context, articleID uuid.UUID, in NewNote) (*models.Note, error) {
	if in.NoteType == "" {
		in.NoteType = models.NoteTypeReference
	}

	var note *models.Note
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		article, err := getArticle(ctx, tx, articleID)
		if err != nil {
			return err
		}
		if err := models.ValidateTransition(articleID, article.Status, models.StatusConverted); err != nil {
			return err
		}

		now := db.now()
		note = &models.Note{
			ID:              uuid.New(),
			CollectionID:    in.CollectionID,
			Title:           in.Title,
			Content:         in.Content,
			NoteType:        in.NoteType,
			Status:          in.Status,
			SourceArticleID: &articleID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		var status *string
		if note.Status != "" {
			s := string(note.Status)
			status = &s
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO notes ("+noteColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			note.ID, note.CollectionID, note.Title, note.Content, string(note.NoteType),
			status, note.SourceArticleID, now, now,
		); err != nil {
			return fmt.Errorf("inserting note: %w", classify(err))
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE articles SET status = ?, failure_reason = NULL, updated_at = ? WHERE id = ? AND status = ?",
			models.StatusConverted.String(), now, articleID, models.StatusApproved.String(),
		)
		if err != nil {
			return fmt.Errorf("converting article: %w", err)
		}
		ok, err := affectedOne(res)
		if err != nil {
			return fmt.Errorf("converting article: %w", err)
		}
		if !ok {
			return &models.TransitionError{ArticleID: articleID, From: article.Status, To: models.StatusConverted}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (db *DB) GetNote(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	row := db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}
	return note, nil
}

// ListNotes returns the notes in a collection, most recently updated first.
func (db *DB) ListNotes(ctx context.Context, collectionID uuid.UUID) ([]models.Note, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE collection_id = ? ORDER BY updated_at DESC", collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return scanNotes(rows)
}

// NotesBySourceArticle returns the notes promoted from articleID.
func (db *DB) NotesBySourceArticle(ctx context.Context, articleID uuid.UUID) ([]models.Note, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE source_article_id = ? ORDER BY created_at", articleID)
	if err != nil {
		return nil, fmt.Errorf("listing notes by article: %w", err)
	}
	return scanNotes(rows)
}

func scanNote(row rowScanner) (*models.Note, error) {
	var (
		n        models.Note
		noteType string
		status   sql.NullString
		source   uuid.NullUUID
	)
	err := row.Scan(&n.ID, &n.CollectionID, &n.Title, &n.Content, &noteType, &status, &source, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.NoteType = models.NoteType(noteType)
	n.Status = models.NoteStatus(status.String)
	if source.Valid {
		n.SourceArticleID = &source.UUID
	}
	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}
