package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/ingest"
	"github.com/thomaskoefod/minmind/internal/promote"
	"github.com/thomaskoefod/minmind/internal/review"
	"github.com/thomaskoefod/minmind/internal/tui"
	"github.com/thomaskoefod/minmind/pkg/models"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"add":       {"store an extracted article", runAdd},
	"ingest":    {"ingest RSS/Atom feeds", runIngest},
	"list":      {"list articles", runList},
	"status":    {"count articles per status", runStatus},
	"search":    {"full-text search over articles", runSearch},
	"summarize": {"summarize one pending article", runSummarize},
	"process":   {"summarize all pending articles", runProcess},
	"review":    {"review summarized articles interactively", runReview},
	"promote":   {"promote an approved article to a note", runPromote},
	"retry":     {"move a failed article back to pending", runRetry},
	"abandon":   {"archive a failed article", runAbandon},
	"delete":    {"delete an article", runDelete},
	"room":      {"create or list collections", runRoom},
	"config":    {"manage summary configs", runConfig},
	"notes":     {"list the notes of a collection", runNotes},
	"tui":       {"open the review dashboard", runTUI},
}

var commandOrder = []string{
	"add", "ingest", "list", "status", "search", "summarize", "process",
	"review", "promote", "retry", "abandon", "delete", "room", "config", "notes", "tui",
}

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("minmind "+name, pflag.ContinueOnError)
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

func oneArg(fs *pflag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 {
		return "", usage("%s takes exactly one %s", fs.Name(), what)
	}
	return fs.Arg(0), nil
}

func (a *app) article(ctx context.Context, ref string) (*models.Article, error) {
	return a.db.FindArticle(ctx, ref)
}

// room resolves an optional collection reference; empty means none.
func (a *app) room(ctx context.Context, ref string) (*uuid.UUID, error) {
	if ref == "" {
		return nil, nil
	}
	c, err := a.db.FindCollection(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("room %q: %w", ref, err)
	}
	return &c.ID, nil
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("add")
	url := fs.String("url", "", "source URL of the article")
	title := fs.String("title", "", "article title")
	file := fs.String("file", "-", "file holding the extracted body, - for stdin")
	html := fs.Bool("html", false, "body is HTML and is converted to markdown")
	roomRef := fs.String("room", "", "collection to file the article under")
	author := fs.String("author", "", "author name")
	site := fs.String("site", "", "site name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var body []byte
	var err error
	if *file == "-" {
		body, err = io.ReadAll(a.in)
	} else {
		body, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	room, err := a.room(ctx, *roomRef)
	if err != nil {
		return err
	}

	meta := models.SourceMetadata{"source": "cli"}
	if *author != "" {
		meta["author"] = *author
	}
	if *site != "" {
		meta["site"] = *site
	}

	e := ingest.Extracted{
		URL:          *url,
		Title:        *title,
		Content:      string(body),
		CollectionID: room,
		Metadata:     meta,
	}

	var article *models.Article
	if *html {
		article, err = a.ingester.IngestHTML(ctx, e)
	} else {
		article, err = a.ingester.Ingest(ctx, e)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Added %s %s\n", article.ShortID(), article.Title)
	return nil
}

func runIngest(ctx context.Context, a *app, args []string) error {
	fs := newFlags("ingest")
	roomRef := fs.String("room", "", "collection for feeds given on the command line")
	if err := fs.Parse(args); err != nil {
		return err
	}

	type source struct{ url, room string }
	var sources []source
	for _, u := range fs.Args() {
		sources = append(sources, source{u, *roomRef})
	}
	if len(sources) == 0 {
		for _, f := range a.cfg.Feeds {
			sources = append(sources, source{f.URL, f.Room})
		}
	}
	if len(sources) == 0 {
		return usage("no feeds configured and none given")
	}

	var errs []error
	for _, s := range sources {
		room, err := a.room(ctx, s.room)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result, err := a.ingester.IngestFeed(ctx, s.url, room)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.out, "%s: %d added, %d already known\n", s.url, len(result.Added), result.Skipped)
	}
	return errors.Join(errs...)
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlags("list")
	statuses := fs.StringSlice("status", nil, "only these statuses (comma separated)")
	roomRef := fs.String("room", "", "only this collection")
	limit := fs.Uint64("limit", 0, "maximum number of articles")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := database.ArticleFilter{Limit: *limit}
	for _, s := range *statuses {
		st, err := models.ParseArticleStatus(s)
		if err != nil {
			return err
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	room, err := a.room(ctx, *roomRef)
	if err != nil {
		return err
	}
	filter.CollectionID = room

	articles, err := a.db.ListArticles(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tREASON")
	for _, art := range articles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", art.ShortID(), art.Status, art.Title, art.FailureReason)
	}
	return w.Flush()
}

func runStatus(ctx context.Context, a *app, args []string) error {
	counts, err := a.db.CountByStatus(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, st := range models.AllStatuses {
		fmt.Fprintf(w, "%s\t%d\n", st, counts[st])
	}
	return w.Flush()
}

func runSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlags("search")
	limit := fs.Int("limit", 20, "maximum number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usage("search needs a query")
	}

	results, err := a.db.SearchArticles(ctx, strings.Join(fs.Args(), " "), *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ShortID(), r.Status, r.Title)
	}
	return w.Flush()
}

func runSummarize(ctx context.Context, a *app, args []string) error {
	fs := newFlags("summarize")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := oneArg(fs, "article id")
	if err != nil {
		return err
	}
	article, err := a.article(ctx, ref)
	if err != nil {
		return err
	}

	article, err = a.ctrl.Summarize(ctx, article.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n\n%s\n", article.Title, *article.Summary)
	return nil
}

func runProcess(ctx context.Context, a *app, args []string) error {
	fs := newFlags("process")
	if err := fs.Parse(args); err != nil {
		return err
	}

	recovered, err := a.ctrl.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		fmt.Fprintf(a.out, "Marked %d interrupted summarizations as failed\n", recovered)
	}

	stats, err := a.ctrl.ProcessPending(ctx)
	fmt.Fprintf(a.out, "Summarized %d, failed %d, skipped %d\n", stats.Summarized, stats.Failed, stats.Skipped)
	return err
}

func runReview(ctx context.Context, a *app, args []string) error {
	fs := newFlags("review")
	roomRef := fs.String("room", "", "collection approved notes go to (default: the article's own)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target, err := a.room(ctx, *roomRef)
	if err != nil {
		return err
	}

	var ids []uuid.UUID
	if fs.NArg() > 0 {
		for _, ref := range fs.Args() {
			article, err := a.article(ctx, ref)
			if err != nil {
				return err
			}
			ids = append(ids, article.ID)
		}
	} else {
		articles, err := a.db.ListArticles(ctx, database.ArticleFilter{
			Statuses:    []models.ArticleStatus{models.StatusSummarized, models.StatusUnderReview},
			OldestFirst: true,
		})
		if err != nil {
			return err
		}
		for _, art := range articles {
			ids = append(ids, art.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "Nothing to review")
		return nil
	}

	reviewer := review.NewPromptReviewer(a.in, a.out, target)
	loop := review.NewLoop(a.ctrl, a.logger)
	for _, id := range ids {
		out, err := loop.Run(ctx, id, reviewer)
		if err != nil {
			return err
		}
		if out.Note != nil {
			fmt.Fprintf(a.out, "Created note %s\n", out.Note.ID)
		}
	}
	return nil
}

func runPromote(ctx context.Context, a *app, args []string) error {
	fs := newFlags("promote")
	roomRef := fs.String("room", "", "collection the note goes to (default: the article's own)")
	raw := fs.Bool("raw", false, "store the raw body instead of the summary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := oneArg(fs, "article id")
	if err != nil {
		return err
	}
	article, err := a.article(ctx, ref)
	if err != nil {
		return err
	}
	target, err := a.room(ctx, *roomRef)
	if err != nil {
		return err
	}

	note, err := a.ctrl.Promote(ctx, article.ID, promote.Options{TargetCollection: target, UseRawBody: *raw})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created note %s\n", note.ID)
	return nil
}

func runRetry(ctx context.Context, a *app, args []string) error {
	return onArticle(ctx, a, "retry", args, a.ctrl.Retry, "queued for retry")
}

func runAbandon(ctx context.Context, a *app, args []string) error {
	return onArticle(ctx, a, "abandon", args, a.ctrl.Abandon, "archived")
}

func runDelete(ctx context.Context, a *app, args []string) error {
	return onArticle(ctx, a, "delete", args, a.db.DeleteArticle, "deleted")
}

func onArticle(ctx context.Context, a *app, name string, args []string, fn func(context.Context, uuid.UUID) error, done string) error {
	fs := newFlags(name)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := oneArg(fs, "article id")
	if err != nil {
		return err
	}
	article, err := a.article(ctx, ref)
	if err != nil {
		return err
	}
	if err := fn(ctx, article.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s\n", article.ShortID(), done)
	return nil
}

func runRoom(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usage("room needs a subcommand: create, list")
	}

	switch args[0] {
	case "create":
		fs := newFlags("room create")
		desc := fs.String("description", "", "collection description")
		parentRef := fs.String("parent", "", "parent collection")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		name, err := oneArg(fs, "name")
		if err != nil {
			return err
		}
		parent, err := a.room(ctx, *parentRef)
		if err != nil {
			return err
		}
		c, err := a.db.CreateCollection(ctx, name, *desc, parent)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created room %s %s\n", c.ID, c.Name)
		return nil

	case "list":
		rooms, err := a.db.ListCollections(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for _, c := range rooms {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID.String()[:8], c.Name, c.Description)
		}
		return w.Flush()
	}
	return usage("unknown room subcommand %q", args[0])
}

func runConfig(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usage("config needs a subcommand: list, create, activate, deactivate")
	}

	switch args[0] {
	case "list":
		configs, err := a.db.ListSummaryConfigs(ctx)
		if err != nil {
			return err
		}
		names := make(map[uuid.UUID]string)
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCOPE\tACTIVE")
		for _, c := range configs {
			scope := "global"
			if c.CollectionID != nil {
				if _, ok := names[*c.CollectionID]; !ok {
					room, err := a.db.GetCollection(ctx, *c.CollectionID)
					if err != nil {
						return err
					}
					names[room.ID] = room.Name
				}
				scope = names[*c.CollectionID]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", c.ID.String()[:8], c.Name, scope, c.Active)
		}
		return w.Flush()

	case "create":
		fs := newFlags("config create")
		name := fs.String("name", "", "config name")
		prompt := fs.String("prompt", "", "system prompt")
		promptFile := fs.String("prompt-file", "", "read the system prompt from this file")
		roomRef := fs.String("room", "", "collection the config applies to (default: global)")
		active := fs.Bool("active", false, "make this the active config for its scope")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *promptFile != "" {
			data, err := os.ReadFile(*promptFile)
			if err != nil {
				return fmt.Errorf("reading prompt: %w", err)
			}
			*prompt = string(data)
		}
		room, err := a.room(ctx, *roomRef)
		if err != nil {
			return err
		}
		c, err := a.db.CreateSummaryConfig(ctx, database.NewSummaryConfig{
			Name:         *name,
			SystemPrompt: *prompt,
			CollectionID: room,
			Active:       *active,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created config %s %s\n", c.ID, c.Name)
		return nil

	case "activate", "deactivate":
		fs := newFlags("config " + args[0])
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		ref, err := oneArg(fs, "config name or id")
		if err != nil {
			return err
		}
		c, err := a.db.FindSummaryConfig(ctx, ref)
		if err != nil {
			return err
		}
		if args[0] == "activate" {
			err = a.db.ActivateSummaryConfig(ctx, c.ID)
		} else {
			err = a.db.DeactivateSummaryConfig(ctx, c.ID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%sd %s\n", args[0], c.Name)
		return nil
	}
	return usage("unknown config subcommand %q", args[0])
}

func runNotes(ctx context.Context, a *app, args []string) error {
	fs := newFlags("notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ref, err := oneArg(fs, "room")
	if err != nil {
		return err
	}
	room, err := a.room(ctx, ref)
	if err != nil {
		return err
	}

	notes, err := a.db.ListNotes(ctx, *room)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, n := range notes {
		source := ""
		if n.SourceArticleID != nil {
			source = n.SourceArticleID.String()[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID.String()[:8], n.NoteType, n.Title, source)
	}
	return w.Flush()
}

func runTUI(ctx context.Context, a *app, args []string) error {
	fs := newFlags("tui")
	roomRef := fs.String("room", "", "collection approved notes go to (default: the article's own)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target, err := a.room(ctx, *roomRef)
	if err != nil {
		return err
	}

	model, err := tui.New(ctx, a.db, a.ctrl, a.ingester, tui.Options{Target: target, Feeds: a.cfg.Feeds})
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
