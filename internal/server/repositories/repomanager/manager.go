package repomanager

import (
	"context"
	"database/sql"

	"docflow/internal/dbx"
	"docflow/internal/server/repositories/accessgrants"
	"docflow/internal/server/repositories/documents"
	"docflow/internal/server/repositories/signingtasks"
	"docflow/internal/server/repositories/stamps"
	"docflow/internal/server/repositories/standingsigners"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same repository code on a plain connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Documents(db dbx.DBTX) documents.Repository
	SigningTasks(db dbx.DBTX) signingtasks.Repository
	StandingSigners(db dbx.DBTX) standingsigners.Repository
	AccessGrants(db dbx.DBTX) accessgrants.Repository
	Stamps(db dbx.DBTX) stamps.Repository
}
