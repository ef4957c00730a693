package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brdforge/brdforge/internal/core"
)

type QuotaEntry struct {
	Provider string
	State    core.QuotaState
}

type QuotaQuery struct {
	All      bool
	Provider string
	Prefix   string
}

func (q QuotaQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Provider) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --provider, or --prefix")
}

func (q QuotaQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if provider := strings.TrimSpace(q.Provider); provider != "" {
		return "WHERE provider = ?", []any{provider}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE provider LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListQuotaStates(ctx context.Context, q QuotaQuery) ([]QuotaEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT provider, window_count, window_reset_at, last_dispatch_at, total_dispatched, last_rate_limit_at
		FROM dispatch_quota
		%s
		ORDER BY provider
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list quota states: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []QuotaEntry{}
	for rows.Next() {
		var (
			provider        string
			windowCount     int
			windowResetAt   int64
			lastDispatchAt  sql.NullInt64
			totalDispatched uint64
			lastRateLimitAt sql.NullInt64
		)
		if err := rows.Scan(&provider, &windowCount, &windowResetAt, &lastDispatchAt, &totalDispatched, &lastRateLimitAt); err != nil {
			return nil, fmt.Errorf("scan quota states: %w", err)
		}

		state := core.QuotaState{
			WindowCount:     windowCount,
			WindowResetAt:   time.Unix(windowResetAt, 0).UTC(),
			TotalDispatched: totalDispatched,
		}
		if lastDispatchAt.Valid {
			state.LastDispatchAt = time.Unix(lastDispatchAt.Int64, 0).UTC()
		}
		if lastRateLimitAt.Valid {
			value := time.Unix(lastRateLimitAt.Int64, 0).UTC()
			state.LastRateLimitAt = &value
		}

		entries = append(entries, QuotaEntry{Provider: provider, State: state})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quota states: %w", err)
	}

	return entries, nil
}

func (s *Store) CountQuotaStates(ctx context.Context, q QuotaQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM dispatch_quota
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count quota states: %w", err)
	}
	return count, nil
}

func (s *Store) ResetQuotaStates(ctx context.Context, q QuotaQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM dispatch_quota
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset quota states: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset quota states: %w", err)
	}
	return affected, nil
}
