package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/sundayezeilo/linkusage/internal/errx"
	"github.com/sundayezeilo/linkusage/internal/shortener"
)

var mappingColumns = []string{"id", "initial_url", "short_url", "created_at", "active"}

type mappingRepo Store

func scanMapping(row pgx.Row) (shortener.Mapping, error) {
	var (
		m      shortener.Mapping
		active bool
	)
	if err := row.Scan(&m.ID, &m.InitialURL, &m.ShortURL, &m.CreatedAt, &active); err != nil {
		return shortener.Mapping{}, err
	}
	m.State = shortener.StateFromActive(active)
	return m, nil
}

func (r *mappingRepo) getBy(ctx context.Context, q queryRower, pred sq.Eq) (shortener.Mapping, error) {
	query, args, err := r.sb.
		Select(mappingColumns...).
		From("short_urls").
		Where(pred).
		ToSql()
	if err != nil {
		return shortener.Mapping{}, fmt.Errorf("build query: %w", err)
	}
	return scanMapping(q.QueryRow(ctx, query, args...))
}

// CreateOrGet relies on the unique constraints rather than a read-then-write,
// so concurrent callers for the same URL converge on one row.
func (r *mappingRepo) CreateOrGet(ctx context.Context, initialURL string) (shortener.Mapping, bool, error) {
	const op = "postgres.mappings.CreateOrGet"

	m, err := r.getBy(ctx, r.pool, sq.Eq{"initial_url": initialURL})
	if err == nil {
		return m, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return shortener.Mapping{}, false, mapRepoError(op, err)
	}

	for range MaxShortenAttempts {
		short, err := r.provider.Shorten(ctx, initialURL)
		if err != nil {
			return shortener.Mapping{}, false, errx.E(op, errx.ShorteningFailed, err)
		}

		query, args, err := r.sb.
			Insert("short_urls").
			Columns("initial_url", "short_url").
			Values(initialURL, short).
			Suffix("ON CONFLICT (initial_url) DO NOTHING RETURNING " + strings.Join(mappingColumns, ", ")).
			ToSql()
		if err != nil {
			return shortener.Mapping{}, false, errx.E(op, errx.Internal, fmt.Errorf("build query: %w", err))
		}

		m, err := scanMapping(r.pool.QueryRow(ctx, query, args...))
		switch {
		case err == nil:
			return m, true, nil

		case errors.Is(err, pgx.ErrNoRows):
			// Another writer inserted this initial URL first.
			m, err := r.getBy(ctx, r.pool, sq.Eq{"initial_url": initialURL})
			if err != nil {
				return shortener.Mapping{}, false, mapRepoError(op, err)
			}
			return m, false, nil

		case isShortURLViolation(err):
			continue

		default:
			return shortener.Mapping{}, false, mapRepoError(op, err)
		}
	}

	return shortener.Mapping{}, false, errx.E(op, errx.ShorteningFailed,
		fmt.Errorf("short url collided %d times", MaxShortenAttempts))
}

func (r *mappingRepo) GetByID(ctx context.Context, id int64) (shortener.Mapping, error) {
	const op = "postgres.mappings.GetByID"

	m, err := r.getBy(ctx, r.pool, sq.Eq{"id": id})
	if err != nil {
		return shortener.Mapping{}, mapRepoError(op, err)
	}
	return m, nil
}

func (r *mappingRepo) GetByShortURL(ctx context.Context, shortURL string) (shortener.Mapping, error) {
	const op = "postgres.mappings.GetByShortURL"

	m, err := r.getBy(ctx, r.pool, sq.Eq{"short_url": shortURL})
	if err != nil {
		return shortener.Mapping{}, mapRepoError(op, err)
	}
	return m, nil
}

func (r *mappingRepo) SoftDelete(ctx context.Context, id int64) (shortener.Mapping, error) {
	const op = "postgres.mappings.SoftDelete"

	var deleted shortener.Mapping
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query, args, err := r.sb.
			Update("short_urls").
			Set("active", false).
			Where(sq.Eq{"id": id, "active": true}).
			Suffix("RETURNING " + strings.Join(mappingColumns, ", ")).
			ToSql()
		if err != nil {
			return errx.E(op, errx.Internal, fmt.Errorf("build query: %w", err))
		}

		deleted, err = scanMapping(tx.QueryRow(ctx, query, args...))
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// Nothing updated: the row is missing or was already inactive.
		existing, err := r.getBy(ctx, tx, sq.Eq{"id": id})
		if err != nil {
			return err
		}
		if _, err := existing.State.Delete(); err != nil {
			return errx.E(op, errx.AlreadyDeleted, fmt.Errorf("mapping %d: %w", id, err))
		}
		return errx.E(op, errx.Internal, fmt.Errorf("mapping %d is active but was not updated", id))
	})
	if err != nil {
		return shortener.Mapping{}, mapRepoError(op, err)
	}
	return deleted, nil
}
