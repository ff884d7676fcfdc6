package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/larsvang/pressbrief/internal/feed"
	"github.com/larsvang/pressbrief/internal/fetch"
	"github.com/larsvang/pressbrief/internal/llm"
)

const articlePrompt = `Summarize this news article briefly and clearly for an email digest. Two or three sentences, no preamble.

Title: %s
Link: %s`

const overviewPrompt = `Summarize the following news headlines in a few sentences, as a short overview for the top of an email digest. No preamble.

Headlines: %s`

// Summary is the per-article result. Err non-empty means the model
// call failed and the mailer renders a visible failure marker instead
// of a summary. Failures are isolated per article.
type Summary struct {
	Article feed.Article
	Text    string
	Err     string
}

// Failed reports whether this summary is the failure variant.
func (s Summary) Failed() bool { return s.Err != "" }

// Overview is the holistic summary across all matched titles in a run.
type Overview struct {
	Text string
	Err  string
}

// Failed reports whether the overview call failed.
func (o Overview) Failed() bool { return o.Err != "" }

// Summarizer produces article summaries and run overviews via one
// model call each.
type Summarizer struct {
	provider  llm.Provider
	extractor *fetch.Extractor // nil disables prompt enrichment
	maxTokens int
}

// New creates a new summarizer. extractor may be nil.
func New(provider llm.Provider, extractor *fetch.Extractor, maxTokens int) *Summarizer {
	if maxTokens == 0 {
		maxTokens = 512
	}
	return &Summarizer{provider: provider, extractor: extractor, maxTokens: maxTokens}
}

// All summarizes each article with one model call. A failed call
// yields the failure variant for that article and the rest continue.
func (s *Summarizer) All(ctx context.Context, articles []feed.Article) []Summary {
	summaries := make([]Summary, 0, len(articles))
	for _, a := range articles {
		summaries = append(summaries, s.one(ctx, a))
	}
	return summaries
}

func (s *Summarizer) one(ctx context.Context, a feed.Article) Summary {
	if s.provider == nil {
		return Summary{Article: a, Err: "no summarization provider available"}
	}

	prompt := fmt.Sprintf(articlePrompt, a.Title, a.Link)
	if s.extractor != nil {
		if excerpt := s.extractor.Excerpt(a.Link); excerpt != "" {
			prompt += "\nArticle text:\n" + excerpt
		}
	}

	text, err := s.provider.Complete(ctx, prompt, s.maxTokens)
	if err != nil {
		log.Printf("Summarization failed for %s: %v", a.Link, err)
		return Summary{Article: a, Err: err.Error()}
	}
	return Summary{Article: a, Text: text}
}

// OverviewOf produces one holistic summary over all matched titles.
func (s *Summarizer) OverviewOf(ctx context.Context, titles []string) Overview {
	if len(titles) == 0 {
		return Overview{}
	}
	if s.provider == nil {
		return Overview{Err: "no summarization provider available"}
	}

	prompt := fmt.Sprintf(overviewPrompt, strings.Join(titles, ", "))
	text, err := s.provider.Complete(ctx, prompt, s.maxTokens)
	if err != nil {
		log.Printf("Overview summarization failed: %v", err)
		return Overview{Err: err.Error()}
	}
	return Overview{Text: text}
}
