package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"xcbot/internal/model"
	"xcbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// FindOrCreateUser returns the user with the given identity, creating it first
// if necessary. The insert and the read-back run in one transaction.
func (s *SQLite) FindOrCreateUser(ctx context.Context, username string, kind model.MessengerKind) (*model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username, kind, created_at) VALUES (?, ?, ?)`,
		username, string(kind), now,
	); err != nil {
		return nil, fmt.Errorf("insert user %s/%s: %w", kind, username, err)
	}

	var u model.User
	var kindStr, createdStr string
	err = tx.QueryRowContext(ctx,
		`SELECT id, username, kind, created_at FROM users WHERE username = ? AND kind = ?`,
		username, string(kind),
	).Scan(&u.ID, &u.Username, &kindStr, &createdStr)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s/%s: %w", kind, username, err)
	}
	u.Kind = model.MessengerKind(kindStr)
	u.CreatedAt, _ = time.Parse(timeLayout, createdStr)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &u, nil
}

// AddSubscription subscribes a user to a pilot. The UNIQUE(user_id, pilot)
// constraint makes the duplicate case an ignored insert.
func (s *SQLite) AddSubscription(ctx context.Context, userID int64, pilot string) (model.AddOutcome, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (user_id, pilot, created_at) VALUES (?, ?, ?)`,
		userID, pilot, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.SubscriptionExists, nil
	}
	return model.SubscriptionCreated, nil
}

// RemoveSubscription unsubscribes a user from a pilot.
func (s *SQLite) RemoveSubscription(ctx context.Context, userID int64, pilot string) (model.RemoveOutcome, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND pilot = ?`,
		userID, pilot,
	)
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.SubscriptionNotFound, nil
	}
	return model.SubscriptionRemoved, nil
}

// ListSubscriptions returns the pilots a user follows, sorted
// case-insensitively for deterministic replies.
func (s *SQLite) ListSubscriptions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pilot FROM subscriptions WHERE user_id = ? ORDER BY pilot COLLATE NOCASE ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pilots []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan pilot: %w", err)
		}
		pilots = append(pilots, p)
	}
	return pilots, rows.Err()
}

// SubscribersOf returns every user following the given pilot. The query runs
// fresh on every call so fan-out sees all committed subscriptions.
func (s *SQLite) SubscribersOf(ctx context.Context, pilot string) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.kind, u.created_at
		 FROM subscriptions s
		 INNER JOIN users u ON s.user_id = u.id
		 WHERE s.pilot = ?
		 ORDER BY u.id`,
		pilot,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var kindStr, createdStr string
		if err := rows.Scan(&u.ID, &u.Username, &kindStr, &createdStr); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		u.Kind = model.MessengerKind(kindStr)
		u.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		users = append(users, u)
	}
	return users, rows.Err()
}

// MarkProcessed records a flight as evaluated. Returns false when the flight
// id already exists, which means another cycle or instance claimed it first.
func (s *SQLite) MarkProcessed(ctx context.Context, flightID, pilot string, seenAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO flights (flight_id, pilot, first_seen_at) VALUES (?, ?, ?)`,
		flightID, pilot, seenAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// IsProcessed reports whether a flight has already been marked.
func (s *SQLite) IsProcessed(ctx context.Context, flightID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flights WHERE flight_id = ?`,
		flightID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return count > 0, nil
}

// Stats returns aggregate table counts.
func (s *SQLite) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM users),
		   (SELECT COUNT(*) FROM subscriptions),
		   (SELECT COUNT(*) FROM flights)`,
	).Scan(&st.Users, &st.Subscriptions, &st.Flights)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &st, nil
}
