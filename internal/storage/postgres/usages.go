package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/sundayezeilo/linkusage/internal/errx"
	"github.com/sundayezeilo/linkusage/internal/shortener"
)

var usageColumns = []string{"id", "url_id", "usage_datetime", "client_host", "client_port"}

type usageRepo Store

func scanUsage(row pgx.Row) (shortener.UsageEvent, error) {
	var ev shortener.UsageEvent
	err := row.Scan(&ev.ID, &ev.URLID, &ev.UsageDatetime, &ev.ClientHost, &ev.ClientPort)
	return ev, err
}

// RecordUsage appends one event. A url_id without a mapping row fails the
// foreign key and is reported as NotFound.
func (r *usageRepo) RecordUsage(ctx context.Context, urlID int64, clientHost string, clientPort int) (shortener.UsageEvent, error) {
	const op = "postgres.usages.RecordUsage"

	query, args, err := r.sb.
		Insert("usages").
		Columns("url_id", "client_host", "client_port").
		Values(urlID, clientHost, clientPort).
		Suffix("RETURNING " + strings.Join(usageColumns, ", ")).
		ToSql()
	if err != nil {
		return shortener.UsageEvent{}, errx.E(op, errx.Internal, fmt.Errorf("build query: %w", err))
	}

	ev, err := scanUsage(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return shortener.UsageEvent{}, mapRepoError(op, err)
	}
	return ev, nil
}

func (r *usageRepo) Status(ctx context.Context, urlID int64, fullInfo bool, page shortener.Pagination) (shortener.UsageStatus, error) {
	if !fullInfo {
		return r.count(ctx, urlID)
	}
	return r.list(ctx, urlID, page)
}

func (r *usageRepo) count(ctx context.Context, urlID int64) (shortener.UsageStatus, error) {
	const op = "postgres.usages.Status"

	query, args, err := r.sb.
		Select("count(*)").
		From("usages").
		Where(sq.Eq{"url_id": urlID}).
		ToSql()
	if err != nil {
		return shortener.UsageStatus{}, errx.E(op, errx.Internal, fmt.Errorf("build query: %w", err))
	}

	var n int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return shortener.UsageStatus{}, mapRepoError(op, err)
	}
	return shortener.UsageStatus{Count: n}, nil
}

func (r *usageRepo) list(ctx context.Context, urlID int64, page shortener.Pagination) (shortener.UsageStatus, error) {
	const op = "postgres.usages.Status"

	events := []shortener.UsageEvent{}
	if page.MaxResult < 1 {
		return shortener.UsageStatus{FullInfo: true, Events: events}, nil
	}

	query, args, err := r.sb.
		Select(usageColumns...).
		From("usages").
		Where(sq.Eq{"url_id": urlID}).
		OrderBy("usage_datetime", "id").
		Limit(uint64(page.MaxResult)).
		Offset(uint64(max(page.Offset, 0))).
		ToSql()
	if err != nil {
		return shortener.UsageStatus{}, errx.E(op, errx.Internal, fmt.Errorf("build query: %w", err))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return shortener.UsageStatus{}, mapRepoError(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanUsage(rows)
		if err != nil {
			return shortener.UsageStatus{}, mapRepoError(op, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return shortener.UsageStatus{}, mapRepoError(op, err)
	}
	return shortener.UsageStatus{FullInfo: true, Events: events}, nil
}
