package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/nsafonov/proofdesk/internal/audit/migrations"
	"github.com/nsafonov/proofdesk/internal/dbx"
)

// PostgresRepository writes audit events to the audit_log table.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Record(ctx context.Context, ev Event) error {
	query :=
		`INSERT INTO audit_log (action, user_id, details, created_at)
		 VALUES ($1, $2, $3, now())
		 `

	_, err := r.db.ExecContext(ctx, query, ev.Action, ev.UserID, ev.Details)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
