package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/betterme/internal/domain"
	"github.com/ashureev/betterme/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activity (
		user_id TEXT PRIMARY KEY,
		email TEXT,
		focus TEXT,
		need_slug TEXT,
		need_label TEXT,
		last_active_at INTEGER NOT NULL,
		last_checkin_email_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_activity_last_active ON activity(last_active_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUserByEmail creates a user or updates the name of the user owning email.
func (s *SQLiteStore) UpsertUserByEmail(ctx context.Context, name, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now().UTC().Unix()

	query := `
	INSERT INTO users (user_id, name, email, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(email) DO UPDATE SET
		name = excluded.name,
		updated_at = excluded.updated_at
	RETURNING user_id, name, email, created_at, updated_at`

	var user *domain.User
	err := shared.Retry(ctx, shared.SQLiteWritePolicy, func() error {
		row := s.db.QueryRowContext(ctx, query, uuid.NewString(), name, email, now, now)
		u, err := scanUser(row)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, name, email, created_at, updated_at FROM users WHERE user_id = ?`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &user, nil
}

// RecordActivity upserts the activity row for a user.
func (s *SQLiteStore) RecordActivity(ctx context.Context, a *domain.Activity) error {
	lastActive := a.LastActiveAt
	if lastActive.IsZero() {
		lastActive = s.now()
	}

	query := `
	INSERT INTO activity (user_id, email, focus, need_slug, need_label, last_active_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		email = COALESCE(excluded.email, activity.email),
		focus = COALESCE(excluded.focus, activity.focus),
		need_slug = COALESCE(excluded.need_slug, activity.need_slug),
		need_label = COALESCE(excluded.need_label, activity.need_label),
		last_active_at = excluded.last_active_at`

	err := shared.Retry(ctx, shared.SQLiteWritePolicy, func() error {
		_, err := s.db.ExecContext(ctx, query,
			a.UserID, nullIfEmpty(a.Email), nullIfEmpty(a.Focus),
			nullIfEmpty(a.NeedSlug), nullIfEmpty(a.NeedLabel),
			lastActive.UTC().Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ListActivity returns all activity rows ordered by user id.
func (s *SQLiteStore) ListActivity(ctx context.Context) ([]*domain.Activity, error) {
	query := `
		SELECT user_id, email, focus, need_slug, need_label,
		       last_active_at, last_checkin_email_at
		FROM activity ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close activity rows", "error", closeErr)
		}
	}()

	var out []*domain.Activity
	for rows.Next() {
		var a domain.Activity
		var email, focus, needSlug, needLabel sql.NullString
		var lastActive int64
		var lastEmailed sql.NullInt64

		if err := rows.Scan(
			&a.UserID, &email, &focus, &needSlug, &needLabel,
			&lastActive, &lastEmailed,
		); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}

		a.Email = email.String
		a.Focus = focus.String
		a.NeedSlug = needSlug.String
		a.NeedLabel = needLabel.String
		a.LastActiveAt = time.Unix(lastActive, 0).UTC()
		if lastEmailed.Valid {
			ts := time.Unix(lastEmailed.Int64, 0).UTC()
			a.LastCheckinEmailAt = &ts
		}
		out = append(out, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}

// MarkCheckinSent sets last_checkin_email_at for a user.
func (s *SQLiteStore) MarkCheckinSent(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE activity SET last_checkin_email_at = ? WHERE user_id = ?`

	var rows int64
	err := shared.Retry(ctx, shared.SQLiteWritePolicy, func() error {
		result, err := s.db.ExecContext(ctx, query, at.UTC().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("mark checkin sent: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
