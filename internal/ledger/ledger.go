// Package ledger persists the set of already-sent article links plus
// small bits of app state in an embedded SQLite database. SQLite
// replaces the original flat sent-links file so concurrent manual
// triggers cannot race on read-modify-append.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/larsvang/pressbrief/internal/feed"
)

// Ledger wraps the SQLite connection holding sent links and app state.
type Ledger struct {
	conn *sql.DB
	path string
}

// Open creates or opens the ledger database at the given path.
func Open(dbPath string) (*Ledger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Ledger{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// SelectNew returns, in input order, the first max articles whose
// links are not in the ledger. Articles past the cap are dropped for
// this run; since they are not committed they stay eligible next run.
func (l *Ledger) SelectNew(articles []feed.Article, max int) ([]feed.Article, error) {
	var selected []feed.Article
	for _, a := range articles {
		if len(selected) >= max {
			break
		}
		seen, err := l.Seen(a.Link)
		if err != nil {
			return nil, err
		}
		if !seen {
			selected = append(selected, a)
		}
	}
	return selected, nil
}

// Seen reports whether a link has already been sent.
func (l *Ledger) Seen(link string) (bool, error) {
	var n int
	err := l.conn.QueryRow("SELECT COUNT(*) FROM sent_links WHERE link = ?", link).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking link: %w", err)
	}
	return n > 0, nil
}

// Commit records links as sent. Inserts are idempotent, so replaying
// a commit after a crash is harmless. Called only after the digest
// went out: a crash before Commit re-sends next run (at-least-once).
func (l *Ledger) Commit(links []string) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := l.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	for _, link := range links {
		if _, err := tx.Exec("INSERT OR IGNORE INTO sent_links (link) VALUES (?)", link); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording link: %w", err)
		}
	}
	return tx.Commit()
}

// Count returns the number of links in the ledger.
func (l *Ledger) Count() (int, error) {
	var n int
	if err := l.conn.QueryRow("SELECT COUNT(*) FROM sent_links").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// AutoMode reads the persisted auto-mode flag. Missing means off.
func (l *Ledger) AutoMode() (bool, error) {
	var value string
	err := l.conn.QueryRow("SELECT value FROM app_state WHERE key = 'auto_mode'").Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading auto mode: %w", err)
	}
	return value == "true", nil
}

// SetAutoMode persists the auto-mode flag.
func (l *Ledger) SetAutoMode(on bool) error {
	value := "false"
	if on {
		value = "true"
	}
	_, err := l.conn.Exec(
		`INSERT INTO app_state (key, value) VALUES ('auto_mode', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, value,
	)
	return err
}

// ImportLegacy loads a one-URL-per-line sent-links file into the
// ledger. Returns the number of links imported. A missing file is not
// an error; the import is idempotent.
func (l *Ledger) ImportLegacy(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading legacy ledger: %w", err)
	}

	var links []string
	for _, line := range strings.Split(string(data), "\n") {
		if link := strings.TrimSpace(line); link != "" {
			links = append(links, link)
		}
	}
	if err := l.Commit(links); err != nil {
		return 0, err
	}
	return len(links), nil
}
