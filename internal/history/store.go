package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vitae/internal/config"
	"vitae/internal/queue"
	"vitae/internal/review"
	"vitae/internal/services"
)

// Store manages the SQLite archive of finished work.
type Store struct {
	db   *sql.DB
	path string
}

// ItemRecord is one archived work item.
type ItemRecord struct {
	ID          string                  `json:"id"`
	SourcePath  string                  `json:"source_path"`
	Fingerprint string                  `json:"fingerprint,omitempty"`
	Priority    string                  `json:"priority"`
	Status      queue.Status            `json:"status"`
	RetryCount  int                     `json:"retry_count"`
	MaxRetries  int                     `json:"max_retries"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   time.Time               `json:"started_at,omitzero"`
	CompletedAt time.Time               `json:"completed_at,omitzero"`
	LastError   string                  `json:"last_error,omitempty"`
	History     []services.ErrorContext `json:"history,omitempty"`
	ArchivedAt  time.Time               `json:"archived_at"`
}

// ReviewRecord is one archived review decision.
type ReviewRecord struct {
	ReviewID       string        `json:"review_id"`
	ItemID         string        `json:"item_id"`
	Score          float64       `json:"score"`
	CriticalIssues int           `json:"critical_issues"`
	Status         review.Status `json:"status"`
	Type           review.Type   `json:"type"`
	Reviewer       string        `json:"reviewer,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	DecidedAt      time.Time     `json:"decided_at,omitzero"`
	ArchivedAt     time.Time     `json:"archived_at"`
}

// Open initializes or connects to the archive database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the archive database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ArchiveItem records one terminal work item. Re-archiving the same id
// overwrites the previous row.
func (s *Store) ArchiveItem(ctx context.Context, item queue.Item) error {
	if !item.Status.IsTerminal() {
		return fmt.Errorf("archive item %s: status %s is not terminal", item.ID, item.Status)
	}

	var historyJSON sql.NullString
	if len(item.History) > 0 {
		data, err := json.Marshal(item.History)
		if err != nil {
			return fmt.Errorf("marshal error history: %w", err)
		}
		historyJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO work_items (
            id, source_path, fingerprint, priority, status, retry_count,
            max_retries, created_at, started_at, completed_at, last_error,
            error_history_json, archived_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Payload.SourcePath,
		nullableString(item.Payload.Fingerprint),
		item.Priority.String(),
		item.Status,
		item.RetryCount,
		item.MaxRetries,
		formatTime(item.CreatedAt),
		nullableTime(item.StartedAt),
		nullableTime(item.CompletedAt),
		nullableString(item.LastError),
		historyJSON,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("archive item: %w", err)
	}
	return nil
}

// ArchiveReview records one decided review item.
func (s *Store) ArchiveReview(ctx context.Context, item review.Item) error {
	reviewer := ""
	notes := ""
	if item.Decision != nil {
		reviewer = item.Decision.Reviewer
		notes = item.Decision.Notes
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO review_decisions (
            review_id, item_id, score, critical_issues, status, review_type,
            reviewer, notes, created_at, decided_at, archived_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.ItemID,
		item.Report.Score,
		item.Report.CriticalIssueCount(),
		item.Status,
		item.Type,
		nullableString(reviewer),
		nullableString(notes),
		formatTime(item.CreatedAt),
		nullableTime(item.DecidedAt),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("archive review: %w", err)
	}
	return nil
}

const itemColumns = `id, source_path, fingerprint, priority, status, retry_count,
    max_retries, created_at, started_at, completed_at, last_error,
    error_history_json, archived_at`

// ItemByID fetches one archived work item, or nil when absent.
func (s *Store) ItemByID(ctx context.Context, id string) (*ItemRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	record, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archived item: %w", err)
	}
	return record, nil
}

// Items returns the most recently archived work items.
func (s *Store) Items(ctx context.Context, limit int) ([]*ItemRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items ORDER BY archived_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query archived items: %w", err)
	}
	defer rows.Close()

	var records []*ItemRecord
	for rows.Next() {
		record, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived item: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived items: %w", err)
	}
	return records, nil
}

const reviewColumns = `review_id, item_id, score, critical_issues, status,
    review_type, reviewer, notes, created_at, decided_at, archived_at`

// ReviewByID fetches one archived review decision, or nil when absent.
func (s *Store) ReviewByID(ctx context.Context, reviewID string) (*ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM review_decisions WHERE review_id = ?`, reviewID)
	record, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archived review: %w", err)
	}
	return record, nil
}

// Reviews returns the most recently archived review decisions.
func (s *Store) Reviews(ctx context.Context, limit int) ([]*ReviewRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reviewColumns+` FROM review_decisions ORDER BY archived_at DESC, review_id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query archived reviews: %w", err)
	}
	defer rows.Close()

	var records []*ReviewRecord
	for rows.Next() {
		record, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived review: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived reviews: %w", err)
	}
	return records, nil
}

// ReviewsForItem returns all archived decisions referencing one work item.
func (s *Store) ReviewsForItem(ctx context.Context, itemID string) ([]*ReviewRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reviewColumns+` FROM review_decisions WHERE item_id = ? ORDER BY created_at`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reviews for item: %w", err)
	}
	defer rows.Close()

	var records []*ReviewRecord
	for rows.Next() {
		record, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review for item: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews for item: %w", err)
	}
	return records, nil
}

// Prune deletes archive rows older than the retention window and reports how
// many rows were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().UTC().Add(-retention))

	var removed int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE archived_at < ?`, cutoff)
	if err != nil {
		return removed, fmt.Errorf("prune work items: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM review_decisions WHERE archived_at < ?`, cutoff)
	if err != nil {
		return removed, fmt.Errorf("prune review decisions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*ItemRecord, error) {
	var (
		record      ItemRecord
		fingerprint sql.NullString
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
		lastError   sql.NullString
		historyJSON sql.NullString
		archivedAt  string
	)
	if err := row.Scan(
		&record.ID,
		&record.SourcePath,
		&fingerprint,
		&record.Priority,
		&record.Status,
		&record.RetryCount,
		&record.MaxRetries,
		&createdAt,
		&startedAt,
		&completedAt,
		&lastError,
		&historyJSON,
		&archivedAt,
	); err != nil {
		return nil, err
	}

	record.Fingerprint = fingerprint.String
	record.LastError = lastError.String

	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return nil, err
	}
	if record.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if record.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if historyJSON.Valid {
		if err := json.Unmarshal([]byte(historyJSON.String), &record.History); err != nil {
			return nil, fmt.Errorf("decode error history: %w", err)
		}
	}
	return &record, nil
}

func scanReview(row rowScanner) (*ReviewRecord, error) {
	var (
		record     ReviewRecord
		reviewer   sql.NullString
		notes      sql.NullString
		createdAt  string
		decidedAt  sql.NullString
		archivedAt string
	)
	if err := row.Scan(
		&record.ReviewID,
		&record.ItemID,
		&record.Score,
		&record.CriticalIssues,
		&record.Status,
		&record.Type,
		&reviewer,
		&notes,
		&createdAt,
		&decidedAt,
		&archivedAt,
	); err != nil {
		return nil, err
	}

	record.Reviewer = reviewer.String
	record.Notes = notes.String

	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return nil, err
	}
	if record.DecidedAt, err = parseNullTime(decidedAt); err != nil {
		return nil, err
	}
	return &record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseNullTime(value sql.NullString) (time.Time, error) {
	if !value.Valid || value.String == "" {
		return time.Time{}, nil
	}
	return parseTime(value.String)
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
