package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/thomaskoefod/minmind/pkg/models"
)

const promptHelp = `commands:
  a, approve          promote the summary to a note
  raw                 promote the raw body instead of the summary
  r, reject           archive the article
  g, regen <feedback> regenerate with feedback
  save <name> <fb>    regenerate and keep the feedback as summary config <name>
  s, skip             leave the article under review
`

// PromptReviewer reads decisions as text commands, one per line.
type PromptReviewer struct {
	in  *bufio.Scanner
	out io.Writer
	// Target is used for approvals; nil promotes into the article's own
	// collection.
	Target *uuid.UUID
}

func NewPromptReviewer(in io.Reader, out io.Writer, target *uuid.UUID) *PromptReviewer {
	return &PromptReviewer{in: bufio.NewScanner(in), out: out, Target: target}
}

func (p *PromptReviewer) Decide(ctx context.Context, article *models.Article, feedback []string) (Decision, error) {
	p.show(article, feedback)

	for {
		fmt.Fprint(p.out, "> ")
		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return Decision{}, err
			}
			return Decision{Action: ActionSkip}, nil
		}

		d, err := ParseCommand(p.in.Text())
		if err != nil {
			fmt.Fprintf(p.out, "%v\n%s", err, promptHelp)
			continue
		}
		if d.Action == ActionApprove {
			d.TargetCollection = p.Target
		}
		return d, nil
	}
}

func (p *PromptReviewer) show(article *models.Article, feedback []string) {
	fmt.Fprintf(p.out, "\n[%s] %s\n%s\n\n", article.ShortID(), article.Title, article.URL)
	if article.Summary != nil {
		fmt.Fprintf(p.out, "%s\n\n", strings.TrimSpace(*article.Summary))
	}
	if len(feedback) > 0 {
		fmt.Fprintf(p.out, "feedback so far: %s\n", strings.Join(feedback, "; "))
	}
}

var errEmptyCommand = errors.New("empty command")

// ParseCommand turns one line of reviewer input into a Decision.
func ParseCommand(line string) (Decision, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		return Decision{}, errEmptyCommand
	case "a", "approve":
		return Decision{Action: ActionApprove}, nil
	case "raw":
		return Decision{Action: ActionApprove, UseRawBody: true}, nil
	case "r", "x", "reject":
		return Decision{Action: ActionReject}, nil
	case "g", "regen", "regenerate":
		return Decision{Action: ActionRegenerate, Feedback: rest}, nil
	case "save":
		name, fb, _ := strings.Cut(rest, " ")
		if name == "" {
			return Decision{}, errors.New("save needs a config name")
		}
		return Decision{Action: ActionRegenerate, SaveAs: name, Feedback: strings.TrimSpace(fb)}, nil
	case "s", "q", "skip":
		return Decision{Action: ActionSkip}, nil
	}
	return Decision{}, fmt.Errorf("%w: %q", ErrUnknownAction, cmd)
}
