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

// GetQuotaState returns the persisted dispatch-quota state for a provider.
// A provider with no stored row yields (nil, nil).
func (s *Store) GetQuotaState(ctx context.Context, provider string) (*core.QuotaState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, errors.New("provider is required")
	}

	var (
		windowCount     int
		windowResetAt   int64
		lastDispatchAt  sql.NullInt64
		totalDispatched uint64
		lastRateLimitAt sql.NullInt64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT window_count, window_reset_at, last_dispatch_at, total_dispatched, last_rate_limit_at
		FROM dispatch_quota
		WHERE provider = ?
	`, provider)

	if err := row.Scan(&windowCount, &windowResetAt, &lastDispatchAt, &totalDispatched, &lastRateLimitAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch quota state: %w", err)
	}

	state := &core.QuotaState{
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

	return state, nil
}

// UpsertQuotaState persists dispatch-quota state for a provider.
func (s *Store) UpsertQuotaState(ctx context.Context, provider string, state *core.QuotaState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	if state == nil {
		return errors.New("quota state is required")
	}

	var lastDispatchAt sql.NullInt64
	if !state.LastDispatchAt.IsZero() {
		lastDispatchAt = sql.NullInt64{Int64: state.LastDispatchAt.UTC().Unix(), Valid: true}
	}

	var lastRateLimitAt sql.NullInt64
	if state.LastRateLimitAt != nil {
		lastRateLimitAt = sql.NullInt64{Int64: state.LastRateLimitAt.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO dispatch_quota (provider, window_count, window_reset_at, last_dispatch_at, total_dispatched, last_rate_limit_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			window_count = excluded.window_count,
			window_reset_at = excluded.window_reset_at,
			last_dispatch_at = excluded.last_dispatch_at,
			total_dispatched = excluded.total_dispatched,
			last_rate_limit_at = excluded.last_rate_limit_at,
			updated_at = excluded.updated_at
	`, provider,
		state.WindowCount,
		state.WindowResetAt.UTC().Unix(),
		lastDispatchAt,
		state.TotalDispatched,
		lastRateLimitAt,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store quota state: %w", err)
	}

	return nil
}
