package database

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateURL         = errors.New("article with this url already exists")
	ErrReferentialIntegrity = errors.New("referenced record does not exist")
	ErrActiveConfigConflict = errors.New("another summary config is already active for this scope")
	ErrArticleNotFound      = errors.New("article not found")
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrConfigNotFound       = errors.New("summary config not found")
	ErrNoteNotFound         = errors.New("note not found")
	ErrAmbiguousID          = errors.New("id prefix matches more than one record")
	ErrInvalidArticle       = errors.New("invalid article")
)

// classify maps sqlite constraint failures onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: articles.url"):
		return fmt.Errorf("%w: %w", ErrDuplicateURL, err)
	case strings.Contains(msg, "UNIQUE constraint failed: summary_configs"):
		return fmt.Errorf("%w: %w", ErrActiveConfigConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %w", ErrReferentialIntegrity, err)
	}
	return err
}
