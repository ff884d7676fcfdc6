// Package mail renders the per-user HTML digest and sends it over an
// authenticated SMTP relay.
package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"mime/multipart"
	"net/smtp"
	"os"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/larsvang/pressbrief/internal/config"
	"github.com/larsvang/pressbrief/internal/summarize"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

// Message is one rendered digest ready to transmit.
type Message struct {
	To         string
	Subject    string
	SenderName string
	HTML       string
	Text       string
}

// Sender transmits a rendered digest. The SMTP implementation is
// swapped for a recorder in tests.
type Sender interface {
	Send(msg Message) error
}

// Renderer builds the digest document from summaries.
type Renderer struct {
	digest   *template.Template
	caughtUp *template.Template
}

// NewRenderer parses the embedded digest templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	digest, err := template.New("digest.html").Funcs(funcMap).ParseFS(templateFS, "templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("parsing digest template: %w", err)
	}
	caughtUp, err := template.New("caughtup.html").Funcs(funcMap).ParseFS(templateFS, "templates/caughtup.html")
	if err != nil {
		return nil, fmt.Errorf("parsing caught-up template: %w", err)
	}

	return &Renderer{digest: digest, caughtUp: caughtUp}, nil
}

// Render builds the HTML document plus a plain-text alternative. With
// no summaries it produces the fixed all-caught-up variant instead of
// an article section.
func (r *Renderer) Render(name string, overview summarize.Overview, summaries []summarize.Summary, bannerURL string) (html, text string, err error) {
	var buf bytes.Buffer

	if len(summaries) == 0 {
		data := map[string]any{"Name": name, "BannerURL": bannerURL}
		if err := r.caughtUp.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("rendering caught-up digest: %w", err)
		}
		return buf.String(), caughtUpText(name), nil
	}

	data := map[string]any{
		"Name":           name,
		"Overview":       overview.Text,
		"OverviewErr":    overview.Err,
		"OverviewFailed": overview.Failed(),
		"Summaries":      summaries,
	}
	if err := r.digest.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("rendering digest: %w", err)
	}
	return buf.String(), digestText(name, overview, summaries), nil
}

func caughtUpText(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s\n\n", name)
	b.WriteString("You're all caught up!\n")
	b.WriteString("No new articles matched your watch areas today.\n")
	return b.String()
}

func digestText(name string, overview summarize.Overview, summaries []summarize.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s\n\nHere is today's news watch:\n\n", name)

	if overview.Failed() {
		fmt.Fprintf(&b, "(Could not create overview: %s)\n\n", overview.Err)
	} else if overview.Text != "" {
		fmt.Fprintf(&b, "%s\n\n", overview.Text)
	}

	for _, s := range summaries {
		fmt.Fprintf(&b, "* %s\n", s.Article.Title)
		if s.Failed() {
			fmt.Fprintf(&b, "  Could not summarize: %s\n", s.Err)
		} else {
			fmt.Fprintf(&b, "  %s\n", s.Text)
		}
		fmt.Fprintf(&b, "  %s\n\n", s.Article.Link)
	}
	return b.String()
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// SMTPSender sends digests through an SMTP relay with STARTTLS.
// Account credentials are read from the environment at send time.
type SMTPSender struct {
	cfg config.Mail
}

// NewSMTPSender creates a sender for the configured relay.
func NewSMTPSender(cfg config.Mail) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send authenticates against the relay and transmits the digest as a
// multipart/alternative message.
func (s *SMTPSender) Send(msg Message) error {
	address := os.Getenv(s.cfg.AddressEnv)
	password := os.Getenv(s.cfg.PasswordEnv)
	if address == "" || password == "" {
		return fmt.Errorf("mail credentials not set: %s / %s", s.cfg.AddressEnv, s.cfg.PasswordEnv)
	}

	body, err := buildMessage(msg, address)
	if err != nil {
		return fmt.Errorf("building message: %w", err)
	}

	auth := smtp.PlainAuth("", address, password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if err := smtp.SendMail(addr, auth, address, []string{msg.To}, body); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}

// buildMessage assembles a multipart/alternative MIME message with a
// plain-text part followed by the HTML part.
func buildMessage(msg Message, from string) ([]byte, error) {
	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", msg.SenderName, from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n", mp.Boundary())
	buf.WriteString("\r\n")

	part, err := mp.CreatePart(textHeader("text/plain"))
	if err != nil {
		return nil, err
	}
	part.Write([]byte(msg.Text))

	part, err = mp.CreatePart(textHeader("text/html"))
	if err != nil {
		return nil, err
	}
	part.Write([]byte(msg.HTML))

	if err := mp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func textHeader(contentType string) map[string][]string {
	return map[string][]string{
		"Content-Type": {contentType + "; charset=UTF-8"},
	}
}
