package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/internal/config"
	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/ingest"
	"github.com/thomaskoefod/minmind/internal/pipeline"
	"github.com/thomaskoefod/minmind/internal/review"
	"github.com/thomaskoefod/minmind/pkg/models"
)

type View int

const (
	ViewArticleList View = iota
	ViewArticleDetail
	ViewFeedback
	ViewHelp
)

// Options tune the dashboard.
type Options struct {
	// Target is the collection approvals go to; nil uses each article's own.
	Target *uuid.UUID
	Feeds  []config.FeedConfig
	// Style is a glamour style name; empty picks one from the terminal.
	Style string
}

type Model struct {
	ctx      context.Context
	db       *database.DB
	ctrl     *pipeline.Controller
	ingester *ingest.Ingester
	opts     Options
	renderer *glamour.TermRenderer

	view      View
	prevView  View
	articles  []models.Article
	list      list.Model
	input     textinput.Model
	session   *review.Session
	busy      bool
	width     int
	height    int
	err       error
	statusMsg string
	detail    string
}

type articlesLoadedMsg struct {
	articles []models.Article
}

type sessionMsg struct {
	session *review.Session
}

type outcomeMsg struct {
	outcome review.Outcome
	status  string
}

type errorMsg struct {
	err error
}

type statusMsg string

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	articleTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86")).
				MarginBottom(1)
)

func New(ctx context.Context, db *database.DB, ctrl *pipeline.Controller, ingester *ingest.Ingester, opts Options) (Model, error) {
	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return Model{}, fmt.Errorf("creating markdown renderer: %w", err)
	}

	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "minmind - Review Queue"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	ti := textinput.New()
	ti.Placeholder = "what should change? (prefix with name: to save as a config)"
	ti.CharLimit = 500

	return Model{
		ctx:      ctx,
		db:       db,
		ctrl:     ctrl,
		ingester: ingester,
		opts:     opts,
		renderer: renderer,
		view:     ViewArticleList,
		list:     l,
		input:    ti,
	}, nil
}

func (m Model) Init() tea.Cmd {
	return loadArticles(m.ctx, m.db)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if m.busy && msg.String() != "ctrl+c" {
			return m, nil
		}
		return m.handleKeyPress(msg)

	case articlesLoadedMsg:
		m.articles = msg.articles
		items := make([]list.Item, len(m.articles))
		for i, article := range m.articles {
			items[i] = articleItem{article}
		}
		m.list.SetItems(items)
		if m.statusMsg == "" {
			m.statusMsg = fmt.Sprintf("Loaded %d articles", len(m.articles))
		}
		return m, nil

	case sessionMsg:
		m.busy = false
		m.err = nil
		m.session = msg.session
		m.view = ViewArticleDetail
		m.detail = m.formatArticle(msg.session.Article())
		return m, nil

	case outcomeMsg:
		m.busy = false
		m.err = nil
		m.statusMsg = msg.status
		if msg.outcome.Done {
			m.session = nil
			m.view = ViewArticleList
			m.detail = ""
		} else {
			m.view = ViewArticleDetail
			m.detail = m.formatArticle(msg.outcome.Article)
		}
		return m, loadArticles(m.ctx, m.db)

	case errorMsg:
		m.busy = false
		m.err = msg.err
		return m, loadArticles(m.ctx, m.db)

	case statusMsg:
		m.busy = false
		m.err = nil
		m.statusMsg = string(msg)
		return m, loadArticles(m.ctx, m.db)
	}

	var cmd tea.Cmd
	if m.view == ViewFeedback {
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewArticleList:
		return m.handleListKeys(msg)
	case ViewArticleDetail:
		return m.handleDetailKeys(msg)
	case ViewFeedback:
		return m.handleFeedbackKeys(msg)
	case ViewHelp:
		return m.handleHelpKeys(msg)
	}
	return m, nil
}

func (m Model) selected() (models.Article, bool) {
	i, ok := m.list.SelectedItem().(articleItem)
	return i.article, ok
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "enter":
		if a, ok := m.selected(); ok {
			switch a.Status {
			case models.StatusSummarized, models.StatusUnderReview:
				m.busy = true
				return m, openSession(m.ctx, m.ctrl, a.ID)
			default:
				m.session = nil
				m.view = ViewArticleDetail
				m.detail = m.formatArticle(&a)
				return m, nil
			}
		}

	case "s":
		if a, ok := m.selected(); ok {
			m.busy = true
			m.statusMsg = "Summarizing " + a.ShortID() + "..."
			return m, summarize(m.ctx, m.ctrl, a)
		}

	case "p":
		m.busy = true
		m.statusMsg = "Processing pending articles..."
		return m, processPending(m.ctx, m.ctrl)

	case "t":
		if a, ok := m.selected(); ok {
			return m, run(func() (string, error) {
				return "Queued " + a.ShortID() + " for retry", m.ctrl.Retry(m.ctx, a.ID)
			})
		}

	case "x":
		if a, ok := m.selected(); ok {
			return m, run(func() (string, error) {
				return "Abandoned " + a.ShortID(), m.ctrl.Abandon(m.ctx, a.ID)
			})
		}

	case "r":
		m.statusMsg = ""
		return m, loadArticles(m.ctx, m.db)

	case "f":
		m.busy = true
		m.statusMsg = "Fetching feeds..."
		return m, fetchFeeds(m.ctx, m.db, m.ingester, m.opts.Feeds)

	case "?":
		m.prevView = m.view
		m.view = ViewHelp
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "esc", "backspace":
		m.view = ViewArticleList
		m.session = nil
		m.detail = ""
		return m, nil

	case "a", "A":
		if m.session != nil {
			m.busy = true
			return m, apply(m.ctx, m.session, review.Decision{
				Action:           review.ActionApprove,
				TargetCollection: m.opts.Target,
				UseRawBody:       msg.String() == "A",
			})
		}

	case "x":
		if m.session != nil {
			m.busy = true
			return m, apply(m.ctx, m.session, review.Decision{Action: review.ActionReject})
		}

	case "g":
		if m.session != nil {
			m.view = ViewFeedback
			m.input.Reset()
			cmd := m.input.Focus()
			return m, cmd
		}

	case "?":
		m.prevView = m.view
		m.view = ViewHelp
		return m, nil
	}

	return m, nil
}

func (m Model) handleFeedbackKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.input.Blur()
		m.view = ViewArticleDetail
		return m, nil

	case "enter":
		m.input.Blur()
		m.busy = true
		m.statusMsg = "Regenerating..."
		return m, apply(m.ctx, m.session, feedbackDecision(m.input.Value()))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// feedbackDecision reads "name: feedback" as a request to save the feedback
// as a summary config called name.
func feedbackDecision(text string) review.Decision {
	d := review.Decision{Action: review.ActionRegenerate, Feedback: strings.TrimSpace(text)}
	if name, fb, ok := strings.Cut(text, ":"); ok && !strings.ContainsAny(strings.TrimSpace(name), " \t") && strings.TrimSpace(name) != "" {
		d.SaveAs = strings.TrimSpace(name)
		d.Feedback = strings.TrimSpace(fb)
	}
	return d
}

func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "?", "q":
		m.view = m.prevView
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.view {
	case ViewArticleList:
		return m.renderList()
	case ViewArticleDetail:
		return m.renderDetail()
	case ViewFeedback:
		return m.renderFeedback()
	case ViewHelp:
		return m.renderHelp()
	}
	return ""
}

func (m Model) renderStatus(s *strings.Builder) {
	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.statusMsg != "" {
		s.WriteString(statusStyle.Render(m.statusMsg))
	}
	s.WriteString("\n")
}

func (m Model) renderList() string {
	var s strings.Builder

	s.WriteString(m.list.View())
	s.WriteString("\n")
	m.renderStatus(&s)
	s.WriteString(helpStyle.Render("enter: review • s: summarize • p: process pending • t: retry • x: abandon • f: fetch feeds • r: refresh • ?: help • q: quit"))

	return s.String()
}

func (m Model) renderDetail() string {
	var s strings.Builder

	s.WriteString(m.detail)
	s.WriteString("\n\n")
	m.renderStatus(&s)

	if m.session != nil {
		s.WriteString(helpStyle.Render("a: approve • A: approve raw body • x: reject • g: regenerate with feedback • esc: back • ?: help • q: quit"))
	} else {
		s.WriteString(helpStyle.Render("esc: back • ?: help • q: quit"))
	}

	return s.String()
}

func (m Model) renderFeedback() string {
	var s strings.Builder

	s.WriteString(m.detail)
	s.WriteString("\n\n")
	if m.session != nil && len(m.session.Feedback()) > 0 {
		s.WriteString(helpStyle.Render("Feedback so far: " + strings.Join(m.session.Feedback(), "; ")))
		s.WriteString("\n")
	}
	s.WriteString(m.input.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter: regenerate • esc: cancel"))

	return s.String()
}

func (m Model) renderHelp() string {
	help := `
minmind - Keyboard Shortcuts

Review Queue:
  ↑/↓, j/k     Navigate articles
  enter        Review a summarized article, or show any other
  s            Summarize the selected pending article
  p            Summarize all pending articles
  t            Retry a failed article
  x            Abandon a failed article
  f            Ingest configured feeds
  r            Refresh
  /            Filter articles
  q, ctrl+c    Quit

Review:
  a            Approve and promote the summary to a note
  A            Approve and promote the raw body
  x            Reject (archive)
  g            Regenerate with feedback ("name: feedback" saves a config)
  esc          Back to queue

General:
  ?            Show/hide this help
`
	return help + "\n" + helpStyle.Render("Press ? or esc to close help")
}

func (m Model) formatArticle(a *models.Article) string {
	var s strings.Builder

	s.WriteString(articleTitleStyle.Render(a.Title))
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(fmt.Sprintf("%s | %s | %s", a.ShortID(), a.Status, a.URL)))
	s.WriteString("\n")
	if a.FailureReason != "" {
		s.WriteString(errorStyle.Render("Failure: " + a.FailureReason))
		s.WriteString("\n")
	}

	body := a.RawContent
	if a.HasSummary() {
		body = *a.Summary
	}
	rendered, err := m.renderer.Render(body)
	if err != nil {
		rendered = body
	}
	s.WriteString(rendered)

	return s.String()
}

func loadArticles(ctx context.Context, db *database.DB) tea.Cmd {
	return func() tea.Msg {
		articles, err := db.ListArticles(ctx, database.ArticleFilter{Statuses: dashboardStatuses})
		if err != nil {
			return errorMsg{err}
		}
		return articlesLoadedMsg{articles}
	}
}

func openSession(ctx context.Context, ctrl *pipeline.Controller, id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		session, err := review.NewSession(ctx, ctrl, id)
		if err != nil {
			return errorMsg{err}
		}
		return sessionMsg{session}
	}
}

func apply(ctx context.Context, session *review.Session, d review.Decision) tea.Cmd {
	return func() tea.Msg {
		out, err := session.Apply(ctx, d)
		if err != nil {
			return errorMsg{err}
		}
		status := fmt.Sprintf("%s: %s", d.Action, session.Article().ShortID())
		if out.Note != nil {
			status = fmt.Sprintf("Promoted %s to note %s", session.Article().ShortID(), out.Note.ID.String()[:8])
		}
		return outcomeMsg{outcome: out, status: status}
	}
}

func summarize(ctx context.Context, ctrl *pipeline.Controller, a models.Article) tea.Cmd {
	return func() tea.Msg {
		if _, err := ctrl.Summarize(ctx, a.ID); err != nil {
			return errorMsg{err}
		}
		return statusMsg("Summarized " + a.ShortID())
	}
}

func processPending(ctx context.Context, ctrl *pipeline.Controller) tea.Cmd {
	return func() tea.Msg {
		stats, err := ctrl.ProcessPending(ctx)
		if err != nil {
			return errorMsg{err}
		}
		return statusMsg(fmt.Sprintf("Summarized %d, failed %d, skipped %d", stats.Summarized, stats.Failed, stats.Skipped))
	}
}

func run(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := fn()
		if err != nil {
			return errorMsg{err}
		}
		return statusMsg(status)
	}
}

func fetchFeeds(ctx context.Context, db *database.DB, ingester *ingest.Ingester, feeds []config.FeedConfig) tea.Cmd {
	return func() tea.Msg {
		if len(feeds) == 0 {
			return statusMsg("No feeds configured")
		}

		added, failed := 0, 0
		for _, f := range feeds {
			var room *uuid.UUID
			if f.Room != "" {
				c, err := db.FindCollection(ctx, f.Room)
				if err != nil {
					failed++
					continue
				}
				room = &c.ID
			}
			result, err := ingester.IngestFeed(ctx, f.URL, room)
			if err != nil {
				failed++
				continue
			}
			added += len(result.Added)
		}

		return statusMsg(fmt.Sprintf("Fetched %d new articles (%d feeds failed)", added, failed))
	}
}
