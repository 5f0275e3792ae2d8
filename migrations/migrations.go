// Package migrations holds the embedded schema migrations for the bot
// database: users, subscriptions, and the processed-flights table with
// their uniqueness constraints.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files, applied by goose.
//
//go:embed *.sql
var FS embed.FS

// Apply brings the schema of db up to date.
func Apply(db *sql.DB) error {
	goose.SetBaseFS(FS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
