package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/thomaskoefod/minmind/pkg/models"
)

type articleItem struct {
	article models.Article
}

func (i articleItem) Title() string {
	return i.article.Title
}

func (i articleItem) Description() string {
	desc := fmt.Sprintf("%s | %s | %s", i.article.ShortID(), i.article.Status, i.article.UpdatedAt.Local().Format("Jan 2, 2006 15:04"))
	if i.article.Status == models.StatusFailed && i.article.FailureReason != "" {
		desc += " | " + i.article.FailureReason
	}
	return desc
}

func (i articleItem) FilterValue() string {
	return i.article.Title + " " + i.article.Status.String()
}

var _ list.Item = articleItem{}

// dashboardStatuses are the states a reviewer can act on.
var dashboardStatuses = []models.ArticleStatus{
	models.StatusPending,
	models.StatusSummarizing,
	models.StatusSummarized,
	models.StatusUnderReview,
	models.StatusApproved,
	models.StatusFailed,
}
