package feed

import (
	"log"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Article is one matched feed entry. The link is its identity for
// deduplication downstream.
type Article struct {
	Title string
	Link  string
}

// Fetcher parses syndication feeds and selects entries by keyword.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a new feed fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{parser: gofeed.NewParser()}
}

// Fetch parses each feed URL and returns entries whose title contains
// any keyword, case-insensitively. A feed that is unreachable or
// malformed contributes zero entries and does not stop the rest.
// Order is feed order, then entry order; no dedup happens here.
func (f *Fetcher) Fetch(feeds, keywords []string) []Article {
	var articles []Article
	for _, feedURL := range feeds {
		parsed, err := f.parser.ParseURL(feedURL)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", feedURL, err)
			continue
		}

		matched := 0
		for _, item := range parsed.Items {
			if item.Link == "" {
				continue
			}
			if titleMatches(item.Title, keywords) {
				articles = append(articles, Article{
					Title: strings.TrimSpace(item.Title),
					Link:  item.Link,
				})
				matched++
			}
		}
		log.Printf("Feed %s: %d of %d entries matched", feedURL, matched, len(parsed.Items))
	}
	return articles
}

// titleMatches reports whether any keyword is a case-insensitive
// substring of the title.
func titleMatches(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
