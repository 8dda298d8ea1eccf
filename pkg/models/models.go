package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceMetadata is free-form key/value data supplied by whichever extractor
// produced an article. It is stored as JSON and never interpreted here.
type SourceMetadata map[string]string

type Article struct {
	ID             uuid.UUID      `json:"id"`
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	RawContent     string         `json:"raw_content"`
	Summary        *string        `json:"summary,omitempty"`
	CollectionID   *uuid.UUID     `json:"collection_id,omitempty"`
	Status         ArticleStatus  `json:"status"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	SourceMetadata SourceMetadata `json:"source_metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HasSummary reports whether a non-empty summary has been generated.
func (a *Article) HasSummary() bool {
	return a.Summary != nil && *a.Summary != ""
}

// ShortID is the first eight characters of the id, used for display and
// prefix lookups.
func (a *Article) ShortID() string {
	return a.ID.String()[:8]
}

// ArticleSearchResult pairs an article with its full-text relevance. Lower
// Rank is more relevant (bm25 ordering).
type ArticleSearchResult struct {
	Article
	Rank float64 `json:"rank"`
}

// Collection is a nestable organizational scope, called a room in the UI.
type Collection struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SummaryConfig is a named summarization behavior. A nil CollectionID makes
// it the global default.
type SummaryConfig struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	SystemPrompt string     `json:"system_prompt"`
	CollectionID *uuid.UUID `json:"collection_id,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (c *SummaryConfig) IsGlobal() bool {
	return c.CollectionID == nil
}

type NoteType string

const (
	NoteTypeIdea      NoteType = "idea"
	NoteTypeTask      NoteType = "task"
	NoteTypeReference NoteType = "reference"
	NoteTypeLog       NoteType = "log"
)

type NoteStatus string

const (
	NoteStatusActive    NoteStatus = "active"
	NoteStatusCompleted NoteStatus = "completed"
	NoteStatusArchived  NoteStatus = "archived"
)

// Note is the permanent artifact produced by promoting an article.
// SourceArticleID is an audit cross-reference only.
type Note struct {
	ID              uuid.UUID  `json:"id"`
	CollectionID    uuid.UUID  `json:"collection_id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	NoteType        NoteType   `json:"note_type"`
	Status          NoteStatus `json:"status,omitempty"`
	SourceArticleID *uuid.UUID `json:"source_article_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
