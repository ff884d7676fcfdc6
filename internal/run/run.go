// Package run orchestrates the digest pipeline for one user or for a
// whole schedule batch: fetch feeds, drop already-sent links,
// summarize, mail, then commit the ledger.
package run

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/larsvang/pressbrief/internal/feed"
	"github.com/larsvang/pressbrief/internal/ledger"
	"github.com/larsvang/pressbrief/internal/mail"
	"github.com/larsvang/pressbrief/internal/sheet"
	"github.com/larsvang/pressbrief/internal/summarize"
)

const (
	defaultSenderName    = "Pressbrief"
	defaultSubjectPrefix = "News watch"

	// Shown in the caught-up digest unless the operator sets banner_url.
	defaultBannerURL = "https://lh4.googleusercontent.com/-V2_Uc4SrLNKn1xYhsxaemHN37QJtpnbQ-5Txu8JFQbrHntsGDpE7S_iq1p2_EWq6Cx3preGYCOFQ1Ees0_rJliTFXMtJZgisCS1yjy6Zrv9FiJhB6ydUtAgyqbtI1kU1RVgiiSSmXaeU06gFoGecw4Cu06H36k2e4mp_CkuJv-VQ0bWN-Glnw=w1280"
)

// ConfigSource is the slice of the spreadsheet store the controller
// reads from.
type ConfigSource interface {
	Settings(ctx context.Context) (map[string]string, error)
	UserConfigs(ctx context.Context, tag sheet.Schedule) ([]sheet.UserConfig, error)
	FindUser(ctx context.Context, email string) (*sheet.UserConfig, error)
}

// Fetcher matches feed entries against keywords.
type Fetcher interface {
	Fetch(feeds, keywords []string) []feed.Article
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of one user's pipeline run.
type Result struct {
	Email string
	Steps []StepResult
	Sent  int // articles mailed, 0 for a caught-up digest
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// BatchResult holds the results of a schedule run.
type BatchResult struct {
	Tag     sheet.Schedule
	Results []*Result
	Failed  int
}

// Controller wires the pipeline stages together.
type Controller struct {
	store       ConfigSource
	fetcher     Fetcher
	ledger      *ledger.Ledger
	summarizer  *summarize.Summarizer
	renderer    *mail.Renderer
	sender      mail.Sender
	maxArticles int
}

// New creates a new controller.
func New(store ConfigSource, fetcher Fetcher, led *ledger.Ledger, summarizer *summarize.Summarizer, renderer *mail.Renderer, sender mail.Sender, maxArticles int) *Controller {
	if maxArticles <= 0 {
		maxArticles = 10
	}
	return &Controller{
		store:       store,
		fetcher:     fetcher,
		ledger:      led,
		summarizer:  summarizer,
		renderer:    renderer,
		sender:      sender,
		maxArticles: maxArticles,
	}
}

// ForUser runs the full pipeline for one user located by email.
// Returns sheet.ErrUserNotFound when no row matches.
func (c *Controller) ForUser(ctx context.Context, email string) (*Result, error) {
	user, err := c.store.FindUser(ctx, email)
	if err != nil {
		return nil, err
	}
	settings, err := c.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return c.runUser(ctx, *user, settings), nil
}

// ForSchedule runs the pipeline for every active user matching tag,
// sequentially. One user's failure is logged and counted; the batch
// continues.
func (c *Controller) ForSchedule(ctx context.Context, tag sheet.Schedule) (*BatchResult, error) {
	users, err := c.store.UserConfigs(ctx, tag)
	if err != nil {
		return nil, err
	}
	settings, err := c.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{Tag: tag}
	for _, user := range users {
		r := c.runUser(ctx, user, settings)
		batch.Results = append(batch.Results, r)
		if err := r.Err(); err != nil {
			log.Printf("Run failed for %s: %v", user.Email, err)
			batch.Failed++
			continue
		}
		log.Printf("Digest sent to %s (%d articles)", user.Email, r.Sent)
	}
	return batch, nil
}

// DryRun fetches and selects for one user without model calls, mail,
// or ledger writes.
func (c *Controller) DryRun(ctx context.Context, email string) (*Result, error) {
	user, err := c.store.FindUser(ctx, email)
	if err != nil {
		return nil, err
	}
	return c.dryRunUser(*user), nil
}

// DryRunSchedule fetches and selects for every active user matching
// tag, without model calls, mail, or ledger writes.
func (c *Controller) DryRunSchedule(ctx context.Context, tag sheet.Schedule) (*BatchResult, error) {
	users, err := c.store.UserConfigs(ctx, tag)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{Tag: tag}
	for _, user := range users {
		r := c.dryRunUser(user)
		batch.Results = append(batch.Results, r)
		if r.Err() != nil {
			batch.Failed++
		}
	}
	return batch, nil
}

func (c *Controller) dryRunUser(user sheet.UserConfig) *Result {
	r := &Result{Email: user.Email}

	articles := c.fetcher.Fetch(user.Feeds, user.Keywords)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("[dry-run] %d entries matched keywords", len(articles)),
	})

	fresh, err := c.ledger.SelectNew(articles, c.maxArticles)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Dedup", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedup",
		Summary: fmt.Sprintf("[dry-run] %d new articles would be summarized (cap %d)", len(fresh), c.maxArticles),
	})
	return r
}

// runUser executes Fetch -> SelectNew -> Summarize -> Render/Send ->
// Commit, in order. The ledger is committed only after a successful
// send, so an interrupted run re-sends next time (at-least-once).
func (c *Controller) runUser(ctx context.Context, user sheet.UserConfig, settings map[string]string) *Result {
	r := &Result{Email: user.Email}

	articles := c.fetcher.Fetch(user.Feeds, user.Keywords)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("%d entries matched keywords", len(articles)),
	})

	fresh, err := c.ledger.SelectNew(articles, c.maxArticles)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Dedup", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedup",
		Summary: fmt.Sprintf("%d new of %d matched", len(fresh), len(articles)),
	})

	summaries := c.summarizer.All(ctx, fresh)
	var overview summarize.Overview
	if len(summaries) > 0 {
		titles := make([]string, len(fresh))
		for i, a := range fresh {
			titles[i] = a.Title
		}
		overview = c.summarizer.OverviewOf(ctx, titles)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Summarize",
		Summary: fmt.Sprintf("%d summaries, %d failed", len(summaries), countFailed(summaries)),
	})

	html, text, err := c.renderer.Render(user.Name, overview, summaries, setting(settings, "banner_url", defaultBannerURL))
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Render", Err: err})
		return r
	}

	msg := mail.Message{
		To:         user.Email,
		Subject:    fmt.Sprintf("%s - %s", setting(settings, "subject_prefix", defaultSubjectPrefix), time.Now().Format("2006-01-02")),
		SenderName: setting(settings, "sender_name", defaultSenderName),
		HTML:       html,
		Text:       text,
	}
	if err := c.sender.Send(msg); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Send", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{Name: "Send", Summary: "digest sent to " + user.Email})
	r.Sent = len(summaries)

	links := make([]string, len(summaries))
	for i, s := range summaries {
		links[i] = s.Article.Link
	}
	if err := c.ledger.Commit(links); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Commit", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Commit",
		Summary: fmt.Sprintf("%d links recorded", len(links)),
	})
	return r
}

func countFailed(summaries []summarize.Summary) int {
	n := 0
	for _, s := range summaries {
		if s.Failed() {
			n++
		}
	}
	return n
}

func setting(settings map[string]string, key, fallback string) string {
	if v, ok := settings[key]; ok && v != "" {
		return v
	}
	return fallback
}
