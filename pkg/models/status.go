package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ArticleStatus is the lifecycle state of an article. It is persisted as
// lowercase text but kept as a closed enum in memory.
type ArticleStatus int

const (
	StatusPending ArticleStatus = iota
	StatusSummarizing
	StatusSummarized
	StatusUnderReview
	StatusApproved
	StatusConverted
	StatusFailed
	StatusArchived
)

var statusNames = [...]string{
	StatusPending:     "pending",
	StatusSummarizing: "summarizing",
	StatusSummarized:  "summarized",
	StatusUnderReview: "under_review",
	StatusApproved:    "approved",
	StatusConverted:   "converted",
	StatusFailed:      "failed",
	StatusArchived:    "archived",
}

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ArticleStatus{
	StatusPending,
	StatusSummarizing,
	StatusSummarized,
	StatusUnderReview,
	StatusApproved,
	StatusConverted,
	StatusFailed,
	StatusArchived,
}

// transitions is the complete lifecycle graph. Anything absent is illegal.
var transitions = map[ArticleStatus][]ArticleStatus{
	StatusPending:     {StatusSummarizing},
	StatusSummarizing: {StatusSummarized, StatusFailed},
	StatusFailed:      {StatusPending, StatusArchived},
	StatusSummarized:  {StatusUnderReview},
	StatusUnderReview: {StatusSummarizing, StatusApproved, StatusArchived},
	StatusApproved:    {StatusConverted},
}

func (s ArticleStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// IsTerminal reports whether no transition leaves s.
func (s ArticleStatus) IsTerminal() bool {
	return s == StatusConverted || s == StatusArchived
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to ArticleStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseArticleStatus converts stored text back into a status.
func ParseArticleStatus(s string) (ArticleStatus, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for i, name := range statusNames {
		if name == needle {
			return ArticleStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown article status %q", s)
}

func (s ArticleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ArticleStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseArticleStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TransitionError reports an attempted transition the lifecycle does not
// allow. It always indicates a caller bug or a lost race and is never retried.
type TransitionError struct {
	ArticleID uuid.UUID
	From      ArticleStatus
	To        ArticleStatus
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("article %s is %s (terminal), cannot move to %s", e.ArticleID, e.From, e.To)
	}
	return fmt.Sprintf("article %s cannot move from %s to %s", e.ArticleID, e.From, e.To)
}

// ValidateTransition returns a *TransitionError when from -> to is illegal.
func ValidateTransition(id uuid.UUID, from, to ArticleStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{ArticleID: id, From: from, To: to}
	}
	return nil
}
