// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"docflow/internal/dbx"
	"docflow/internal/server/migrations"
	"docflow/internal/server/repositories/accessgrants"
	"docflow/internal/server/repositories/documents"
	"docflow/internal/server/repositories/signingtasks"
	"docflow/internal/server/repositories/stamps"
	"docflow/internal/server/repositories/standingsigners"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Documents returns a documents.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Documents(db dbx.DBTX) documents.Repository {
	return documents.NewPostgresRepository(db)
}

// SigningTasks returns a signingtasks.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SigningTasks(db dbx.DBTX) signingtasks.Repository {
	return signingtasks.NewPostgresRepository(db)
}

// StandingSigners returns a standingsigners.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) StandingSigners(db dbx.DBTX) standingsigners.Repository {
	return standingsigners.NewPostgresRepository(db)
}

// AccessGrants returns an accessgrants.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) AccessGrants(db dbx.DBTX) accessgrants.Repository {
	return accessgrants.NewPostgresRepository(db)
}

// Stamps returns a stamps.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Stamps(db dbx.DBTX) stamps.Repository {
	return stamps.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
