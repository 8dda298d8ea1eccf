// Package review runs the human review loop over summarized articles.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/internal/pipeline"
	"github.com/thomaskoefod/minmind/internal/promote"
	"github.com/thomaskoefod/minmind/pkg/models"
)

type Action int

const (
	ActionApprove Action = iota + 1
	ActionReject
	ActionRegenerate
	// ActionSkip ends the session and leaves the article under review.
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionApprove:
		return "approve"
	case ActionReject:
		return "reject"
	case ActionRegenerate:
		return "regenerate"
	case ActionSkip:
		return "skip"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

var ErrUnknownAction = errors.New("unknown review action")

// Decision is one reviewer choice.
type Decision struct {
	Action Action

	// Feedback is added to the session's accumulated feedback on Regenerate.
	Feedback string
	// SaveAs, on Regenerate, stores the prompt with feedback applied as a
	// new active summary config with this name.
	SaveAs string

	// TargetCollection and UseRawBody apply to Approve.
	TargetCollection *uuid.UUID
	UseRawBody       bool
}

// Outcome is the result of applying a Decision.
type Outcome struct {
	Article *models.Article
	Note    *models.Note
	// Done means the session is over.
	Done bool
}

// Session reviews one article. It accumulates regeneration feedback so each
// new summary sees every earlier request.
type Session struct {
	ctrl     *pipeline.Controller
	article  *models.Article
	feedback []string
}

// NewSession starts reviewing id, moving it from Summarized to UnderReview
// if needed.
func NewSession(ctx context.Context, ctrl *pipeline.Controller, id uuid.UUID) (*Session, error) {
	article, err := ctrl.BeginReview(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Session{ctrl: ctrl, article: article}, nil
}

func (s *Session) Article() *models.Article { return s.article }

func (s *Session) Feedback() []string { return s.feedback }

// Apply executes d. Approve and Reject end the session. Regenerate produces
// a new summary and leaves the article under review for the next decision.
// A failed regeneration leaves the article Failed and ends the session with
// the error.
func (s *Session) Apply(ctx context.Context, d Decision) (Outcome, error) {
	id := s.article.ID

	switch d.Action {
	case ActionApprove:
		note, err := s.ctrl.Approve(ctx, id, promote.Options{
			TargetCollection: d.TargetCollection,
			UseRawBody:       d.UseRawBody,
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Article: s.article, Note: note, Done: true}, nil

	case ActionReject:
		if err := s.ctrl.Reject(ctx, id); err != nil {
			return Outcome{}, err
		}
		return Outcome{Article: s.article, Done: true}, nil

	case ActionRegenerate:
		if fb := strings.TrimSpace(d.Feedback); fb != "" {
			s.feedback = append(s.feedback, fb)
		}
		if d.SaveAs != "" {
			if _, err := s.ctrl.SaveFeedbackConfig(ctx, id, d.SaveAs, s.feedback); err != nil {
				return Outcome{}, fmt.Errorf("saving feedback as config: %w", err)
			}
			// The saved prompt already carries the feedback.
			s.feedback = nil
		}

		if _, err := s.ctrl.Regenerate(ctx, id, s.feedback); err != nil {
			return Outcome{Done: true}, err
		}
		article, err := s.ctrl.BeginReview(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		s.article = article
		return Outcome{Article: article}, nil

	case ActionSkip:
		return Outcome{Article: s.article, Done: true}, nil
	}

	return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownAction, d.Action)
}
