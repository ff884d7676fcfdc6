package mail

import (
	"strings"
	"testing"

	"github.com/larsvang/pressbrief/internal/config"
	"github.com/larsvang/pressbrief/internal/feed"
	"github.com/larsvang/pressbrief/internal/summarize"
)

func testMailConfig() config.Mail {
	return config.Mail{
		Host:        "smtp.example.com",
		Port:        587,
		AddressEnv:  "PRESSBRIEF_TEST_ADDR",
		PasswordEnv: "PRESSBRIEF_TEST_PASS",
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func TestRenderDigest(t *testing.T) {
	r := newTestRenderer(t)

	summaries := []summarize.Summary{
		{
			Article: feed.Article{Title: "AI breakthrough", Link: "https://example.com/ai"},
			Text:    "Researchers announced a new model.",
		},
	}
	overview := summarize.Overview{Text: "One big AI story today."}

	html, text, err := r.Render("Anna", overview, summaries, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{"Hi Anna", "One big AI story today.", "AI breakthrough", "https://example.com/ai"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "all caught up") {
		t.Error("digest with summaries must not be the caught-up variant")
	}
	if !strings.Contains(text, "AI breakthrough") || !strings.Contains(text, "https://example.com/ai") {
		t.Error("text part missing article")
	}
}

func TestRenderFailureMarkers(t *testing.T) {
	r := newTestRenderer(t)

	summaries := []summarize.Summary{
		{
			Article: feed.Article{Title: "Broken story", Link: "https://example.com/broken"},
			Err:     "model unavailable",
		},
	}
	overview := summarize.Overview{Err: "rate limited"}

	html, text, err := r.Render("Anna", overview, summaries, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(html, "Could not summarize: model unavailable") {
		t.Error("html missing per-article failure marker")
	}
	if !strings.Contains(html, "Could not create overview: rate limited") {
		t.Error("html missing overview failure marker")
	}
	if !strings.Contains(text, "Could not summarize: model unavailable") {
		t.Error("text missing per-article failure marker")
	}
}

func TestRenderCaughtUp(t *testing.T) {
	r := newTestRenderer(t)

	html, text, err := r.Render("Anna", summarize.Overview{}, nil, "https://example.com/banner.png")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(html, "all caught up") {
		t.Error("expected caught-up marker text")
	}
	if !strings.Contains(html, "https://example.com/banner.png") {
		t.Error("expected banner image")
	}
	if strings.Contains(html, "Read the full article") {
		t.Error("caught-up digest must not contain article blocks")
	}
	if !strings.Contains(text, "all caught up") {
		t.Error("text part missing caught-up marker")
	}
}

func TestRenderCaughtUpWithoutBanner(t *testing.T) {
	r := newTestRenderer(t)

	html, _, err := r.Render("Anna", summarize.Overview{}, nil, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(html, "<img") {
		t.Error("expected no banner image without banner_url")
	}
}

func TestRenderMarkdownSummary(t *testing.T) {
	r := newTestRenderer(t)

	summaries := []summarize.Summary{
		{
			Article: feed.Article{Title: "Story", Link: "https://example.com/s"},
			Text:    "A summary with **bold** text.",
		},
	}

	html, _, err := r.Render("Anna", summarize.Overview{Text: "Overview."}, summaries, "")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Error("expected markdown rendered in summary body")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := Message{
		To:         "anna@example.com",
		Subject:    "News watch - 2026-08-28",
		SenderName: "Pressbrief",
		HTML:       "<html><body>hi</body></html>",
		Text:       "hi",
	}

	raw, err := buildMessage(msg, "sender@example.com")
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	s := string(raw)

	for _, want := range []string{
		"From: Pressbrief <sender@example.com>",
		"To: anna@example.com",
		"Subject: News watch - 2026-08-28",
		"Content-Type: multipart/alternative",
		"text/plain; charset=UTF-8",
		"text/html; charset=UTF-8",
		"<html><body>hi</body></html>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q", want)
		}
	}
	// Plain text part comes before the HTML part.
	if strings.Index(s, "text/plain") > strings.Index(s, "text/html") {
		t.Error("expected plain part before html part")
	}
}

func TestSMTPSenderRequiresCredentials(t *testing.T) {
	s := NewSMTPSender(testMailConfig())
	err := s.Send(Message{To: "anna@example.com"})
	if err == nil {
		t.Fatal("expected error without credentials in environment")
	}
	if !strings.Contains(err.Error(), "PRESSBRIEF_TEST_ADDR") {
		t.Errorf("expected env var names in error, got %v", err)
	}
}
