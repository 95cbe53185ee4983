package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/linkusage/internal/errx"
)

const shortURLUniqueConstraint = "short_urls_short_url_unique"

func isShortURLViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == shortURLUniqueConstraint
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapRepoError classifies a driver error. Errors already carrying a kind keep
// it.
func mapRepoError(op string, err error) error {
	if k := errx.KindOf(err); k != errx.Unknown {
		if errx.OpOf(err) == op {
			return err
		}
		return errx.E(op, k, err)
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case pgCode(err) == pgerrcode.UniqueViolation:
		return errx.E(op, errx.Conflict, err)

	case pgCode(err) == pgerrcode.ForeignKeyViolation:
		return errx.E(op, errx.NotFound, err)

	case pgCode(err) == pgerrcode.InvalidTextRepresentation,
		pgCode(err) == pgerrcode.NumericValueOutOfRange:
		return errx.E(op, errx.Invalid, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
