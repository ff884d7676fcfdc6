package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/larsvang/pressbrief/internal/config"
)

// ErrUserNotFound is returned by email lookups that match no row.
var ErrUserNotFound = errors.New("user not found")

// Schedule is the batch a user participates in.
type Schedule string

const (
	ScheduleMorning Schedule = "morning"
	ScheduleEvening Schedule = "evening"
	ScheduleBoth    Schedule = "both"
)

// ParseSchedule normalizes a raw schedule cell.
func ParseSchedule(s string) Schedule {
	return Schedule(strings.ToLower(strings.TrimSpace(s)))
}

// Matches reports whether a user with this schedule joins a run for tag.
// "both" joins every run.
func (s Schedule) Matches(tag Schedule) bool {
	return s == tag || s == ScheduleBoth
}

// UserConfig is one parsed subscriber row.
type UserConfig struct {
	Email    string
	Feeds    []string
	Keywords []string
	Active   bool
	Schedule Schedule
	Name     string
	Row      int // 1-based sheet row, header is row 1
}

// UserRow is one raw subscriber row, padded to six cells, for the
// dashboard table and the edit form.
type UserRow struct {
	Email    string
	Feeds    string
	Keywords string
	Active   string
	Schedule string
	Name     string
	Row      int
}

// rowAPI is the thin slice of the spreadsheet service the store needs.
type rowAPI interface {
	ReadTable(ctx context.Context, table string) ([][]string, error)
	WriteRow(ctx context.Context, table string, row int, values []string) error
}

// Store reads user configs and operator settings from the shared
// spreadsheet. Every call re-fetches; nothing is cached.
type Store struct {
	api      rowAPI
	users    string
	settings string
}

// New connects to the spreadsheet using service account credentials
// JSON taken from the environment.
func New(ctx context.Context, cfg config.Store) (*Store, error) {
	creds := os.Getenv(cfg.CredsEnv)
	if creds == "" {
		return nil, fmt.Errorf("spreadsheet credentials not set: %s", cfg.CredsEnv)
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("store.spreadsheet_id not configured")
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON([]byte(creds)),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Store{
		api:      &sheetsAPI{svc: svc, spreadsheetID: cfg.SpreadsheetID},
		users:    cfg.UsersTable,
		settings: cfg.SettingsTable,
	}, nil
}

// Settings returns the operator settings table as a key/value map.
// Keys are lowercased and trimmed; rows with fewer than two cells are skipped.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.api.ReadTable(ctx, s.settings)
	if err != nil {
		return nil, fmt.Errorf("reading settings table: %w", err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(row[0]))
		if key == "" {
			continue
		}
		settings[key] = strings.TrimSpace(row[1])
	}
	return settings, nil
}

// UserConfigs returns active users whose schedule matches tag, in
// table order. The header row and malformed rows are skipped.
func (s *Store) UserConfigs(ctx context.Context, tag Schedule) ([]UserConfig, error) {
	all, err := s.allUsers(ctx)
	if err != nil {
		return nil, err
	}

	var configs []UserConfig
	for _, u := range all {
		if u.Active && u.Schedule.Matches(tag) {
			configs = append(configs, u)
		}
	}
	return configs, nil
}

// FindUser locates a user row by case-insensitive email match.
func (s *Store) FindUser(ctx context.Context, email string) (*UserConfig, error) {
	all, err := s.allUsers(ctx)
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(strings.TrimSpace(email))
	for _, u := range all {
		if strings.ToLower(strings.TrimSpace(u.Email)) == want {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

// UserRows returns every subscriber row unparsed for the dashboard,
// padded to six cells. Unlike UserConfigs it keeps inactive and
// malformed rows visible to the operator.
func (s *Store) UserRows(ctx context.Context) ([]UserRow, error) {
	rows, err := s.api.ReadTable(ctx, s.users)
	if err != nil {
		return nil, fmt.Errorf("reading users table: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	users := make([]UserRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		users = append(users, UserRow{
			Email:    cell(row, 0),
			Feeds:    cell(row, 1),
			Keywords: cell(row, 2),
			Active:   cell(row, 3),
			Schedule: cell(row, 4),
			Name:     cell(row, 5),
			Row:      i + 2,
		})
	}
	return users, nil
}

// UpdateUser overwrites the six cells of the row matching email with
// the given raw field values (email, feeds, keywords, active,
// schedule, name).
func (s *Store) UpdateUser(ctx context.Context, email string, fields [6]string) error {
	user, err := s.FindUser(ctx, email)
	if err != nil {
		return err
	}
	if err := s.api.WriteRow(ctx, s.users, user.Row, fields[:]); err != nil {
		return fmt.Errorf("updating user row %d: %w", user.Row, err)
	}
	return nil
}

// allUsers reads and parses the users table, skipping the header row
// and rows with fewer than six cells.
func (s *Store) allUsers(ctx context.Context) ([]UserConfig, error) {
	rows, err := s.api.ReadTable(ctx, s.users)
	if err != nil {
		return nil, fmt.Errorf("reading users table: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	var users []UserConfig
	for i, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		users = append(users, UserConfig{
			Email:    strings.TrimSpace(row[0]),
			Feeds:    splitList(row[1], ";"),
			Keywords: splitList(row[2], ","),
			Active:   strings.EqualFold(strings.TrimSpace(row[3]), "true"),
			Schedule: ParseSchedule(row[4]),
			Name:     strings.TrimSpace(row[5]),
			Row:      i + 2,
		})
	}
	return users, nil
}

// splitList splits a delimited cell, trimming entries and dropping empties.
func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// sheetsAPI implements rowAPI against the Google Sheets API.
type sheetsAPI struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (a *sheetsAPI) ReadTable(ctx context.Context, table string) ([][]string, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(a.spreadsheetID, table).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, 0, len(r))
		for _, v := range r {
			row = append(row, fmt.Sprint(v))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (a *sheetsAPI) WriteRow(ctx context.Context, table string, row int, values []string) error {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	vr := &sheets.ValueRange{Values: [][]any{cells}}

	rng := fmt.Sprintf("%s!A%d:F%d", table, row, row)
	_, err := a.svc.Spreadsheets.Values.Update(a.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}
