package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout keeps stored timestamps lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id             TEXT PRIMARY KEY,
	customer_email TEXT NOT NULL,
	subject        TEXT,
	message        TEXT NOT NULL,
	classification TEXT,
	urgency        TEXT,
	sentiment      TEXT,
	ai_response    TEXT,
	reasoning      TEXT,
	actions_taken  TEXT,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     TEXT NOT NULL,
	processed_at   TEXT
);

CREATE INDEX IF NOT EXISTS idx_tickets_email   ON tickets(customer_email);
CREATE INDEX IF NOT EXISTS idx_tickets_status  ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_at DESC);

CREATE TABLE IF NOT EXISTS customer_insights (
	email             TEXT PRIMARY KEY,
	preferences       TEXT,
	history_summary   TEXT,
	interaction_count INTEGER NOT NULL DEFAULT 0,
	last_updated      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_logs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_id TEXT NOT NULL,
	step      TEXT NOT NULL,
	status    TEXT NOT NULL,
	details   TEXT,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_ticket ON processing_logs(ticket_id);

CREATE TABLE IF NOT EXISTS knowledge_documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	category   TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_category ON knowledge_documents(category);
`

var openDB = sql.Open

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its directory if needed and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migration: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, id, email, subject, message string) (Ticket, error) {
	t := Ticket{
		ID:               id,
		CustomerEmail:    email,
		Subject:          subject,
		Message:          message,
		Status:           StatusPending,
		SuggestedActions: []string{},
		CreatedAt:        s.stamp(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, customer_email, subject, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.CustomerEmail, nullString(t.Subject), t.Message, t.Status, formatTime(t.CreatedAt))
	if err != nil {
		return Ticket{}, fmt.Errorf("create ticket %s: %w", id, err)
	}
	return t, nil
}

const ticketColumns = `id, customer_email, subject, message, classification, urgency, sentiment,
	ai_response, reasoning, actions_taken, status, created_at, processed_at`

func (s *SQLiteStore) GetTicket(ctx context.Context, id string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ticket{}, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return t, nil
}

// MarkClassified moves a pending ticket to classified.
func (s *SQLiteStore) MarkClassified(ctx context.Context, id string, c Classified) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET classification = ?, urgency = ?, sentiment = ?, reasoning = ?, status = ?
		WHERE id = ? AND status = ?`,
		c.Category, c.Urgency, c.Sentiment, nullString(c.Reasoning), StatusClassified, id, StatusPending)
	if err != nil {
		return fmt.Errorf("classify ticket %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, StatusClassified)
}

// MarkProcessed moves a classified ticket to processed. The response fields
// cannot be written again afterwards.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id, response string, actions []string) error {
	if actions == nil {
		actions = []string{}
	}
	encoded, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET ai_response = ?, actions_taken = ?, status = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		response, string(encoded), StatusProcessed, formatTime(s.stamp()), id, StatusClassified)
	if err != nil {
		return fmt.Errorf("process ticket %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, StatusProcessed)
}

func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string, to Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("ticket %s %s -> %s: %w", id, t.Status, to, ErrInvalidTransition)
}

func (s *SQLiteStore) ListTickets(ctx context.Context, limit int) ([]Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) ListTicketsByStatus(ctx context.Context, status Status, limit int) ([]Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
}

// CustomerTickets returns the newest tickets of a customer, skipping excludeID.
func (s *SQLiteStore) CustomerTickets(ctx context.Context, email, excludeID string, limit int) ([]Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE customer_email = ? AND id != ? ORDER BY created_at DESC LIMIT ?`, email, excludeID, limit)
}

func (s *SQLiteStore) queryTickets(ctx context.Context, query string, args ...any) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(sc scanner) (Ticket, error) {
	var t Ticket
	var subject, category, urgency, sentiment sql.NullString
	var response, reasoning, actions, processedAt sql.NullString
	var createdAt string
	err := sc.Scan(&t.ID, &t.CustomerEmail, &subject, &t.Message, &category, &urgency, &sentiment,
		&response, &reasoning, &actions, &t.Status, &createdAt, &processedAt)
	if err != nil {
		return Ticket{}, err
	}
	t.Subject = subject.String
	t.Category = category.String
	t.Urgency = urgency.String
	t.Sentiment = sentiment.String
	t.AIResponse = response.String
	t.Reasoning = reasoning.String
	t.SuggestedActions = []string{}
	if actions.Valid && actions.String != "" {
		if err := json.Unmarshal([]byte(actions.String), &t.SuggestedActions); err != nil {
			return Ticket{}, fmt.Errorf("decode actions: %w", err)
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Ticket{}, err
	}
	if processedAt.Valid {
		p, err := parseTime(processedAt.String)
		if err != nil {
			return Ticket{}, err
		}
		t.ProcessedAt = &p
	}
	return t, nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, l ProcessingLog) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = s.stamp()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_logs (ticket_id, step, status, details, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		l.TicketID, l.Step, l.Status, l.Details, formatTime(l.Timestamp))
	if err != nil {
		return fmt.Errorf("append log for %s: %w", l.TicketID, err)
	}
	return nil
}

// Logs returns a ticket's processing log in insertion order.
func (s *SQLiteStore) Logs(ctx context.Context, ticketID string) ([]ProcessingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, step, status, details, timestamp
		FROM processing_logs WHERE ticket_id = ? ORDER BY id ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs := []ProcessingLog{}
	for rows.Next() {
		var (
			l       ProcessingLog
			details sql.NullString
			ts      string
		)
		if err := rows.Scan(&l.ID, &l.TicketID, &l.Step, &l.Status, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		l.Details = details.String
		if l.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) GetInsight(ctx context.Context, email string) (CustomerInsight, error) {
	var (
		in                   CustomerInsight
		preferences, summary sql.NullString
		updated              string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT email, preferences, history_summary, interaction_count, last_updated
		FROM customer_insights WHERE email = ?`, email).
		Scan(&in.Email, &preferences, &summary, &in.InteractionCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return CustomerInsight{}, fmt.Errorf("insight %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return CustomerInsight{}, fmt.Errorf("get insight %s: %w", email, err)
	}
	in.Preferences = preferences.String
	in.HistorySummary = summary.String
	if in.LastUpdated, err = parseTime(updated); err != nil {
		return CustomerInsight{}, err
	}
	return in, nil
}

// UpsertInsight increments the interaction counter and overwrites only the
// text fields that are set in u.
func (s *SQLiteStore) UpsertInsight(ctx context.Context, u InsightUpdate) (CustomerInsight, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_insights (email, preferences, history_summary, interaction_count, last_updated)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(email) DO UPDATE SET
			preferences       = COALESCE(excluded.preferences, customer_insights.preferences),
			history_summary   = COALESCE(excluded.history_summary, customer_insights.history_summary),
			interaction_count = customer_insights.interaction_count + 1,
			last_updated      = excluded.last_updated`,
		u.Email, nullString(u.Preferences), nullString(u.HistorySummary), formatTime(s.stamp()))
	if err != nil {
		return CustomerInsight{}, fmt.Errorf("upsert insight %s: %w", u.Email, err)
	}
	return s.GetInsight(ctx, u.Email)
}

func (s *SQLiteStore) Analytics(ctx context.Context) (Analytics, error) {
	a := Analytics{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&a.Total); err != nil {
		return Analytics{}, fmt.Errorf("count tickets: %w", err)
	}
	var err error
	if a.ByStatus, err = s.countBy(ctx, "status"); err != nil {
		return Analytics{}, err
	}
	if a.ByCategory, err = s.countBy(ctx, "classification"); err != nil {
		return Analytics{}, err
	}
	if a.ByUrgency, err = s.countBy(ctx, "urgency"); err != nil {
		return Analytics{}, err
	}
	return a, nil
}

// countBy groups tickets by a trusted column name.
func (s *SQLiteStore) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM tickets WHERE `+column+` IS NOT NULL GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		out[key] = count
	}
	return out, rows.Err()
}

func (s *SQLiteStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
