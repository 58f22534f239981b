package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/makazi/core"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a `%term%` ILIKE pattern matching term as a plain
// substring; `%`, `_` and `\` in term are escaped so they match literally.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// getExec returns the service-provided executor when set, db otherwise.
// Service-provided executors originate from atomic() and are always *sqlx.Tx.
func getExec(db *sqlx.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}

// atomic runs fn within a single transaction; fn's error (or a failed commit)
// rolls everything back.
func atomic(ctx context.Context, db *sqlx.DB, fn func(tx core.DBExecutor) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
