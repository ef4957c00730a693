//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brdforge/brdforge/internal/config"
	"github.com/brdforge/brdforge/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestQuotaStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	missing, err := store.GetQuotaState(ctx, "openai-primary")
	require.NoError(t, err)
	require.Nil(t, missing)

	rateLimitedAt := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	state := &core.QuotaState{
		WindowCount:     7,
		WindowResetAt:   time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC),
		LastDispatchAt:  time.Date(2026, 3, 1, 12, 0, 42, 0, time.UTC),
		LastRateLimitAt: &rateLimitedAt,
		TotalDispatched: 123,
	}
	require.NoError(t, store.UpsertQuotaState(ctx, "openai-primary", state))

	got, err := store.GetQuotaState(ctx, "openai-primary")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, state.WindowCount, got.WindowCount)
	require.Equal(t, state.WindowResetAt, got.WindowResetAt)
	require.Equal(t, state.LastDispatchAt, got.LastDispatchAt)
	require.Equal(t, state.TotalDispatched, got.TotalDispatched)
	require.NotNil(t, got.LastRateLimitAt)
	require.Equal(t, rateLimitedAt, *got.LastRateLimitAt)
}

func TestQuotaStateUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first := &core.QuotaState{WindowCount: 2, WindowResetAt: time.Now().Add(time.Minute).UTC().Truncate(time.Second)}
	require.NoError(t, store.UpsertQuotaState(ctx, "openai-primary", first))

	second := &core.QuotaState{
		WindowCount:     5,
		WindowResetAt:   first.WindowResetAt.Add(time.Minute),
		TotalDispatched: 20,
	}
	require.NoError(t, store.UpsertQuotaState(ctx, "openai-primary", second))

	got, err := store.GetQuotaState(ctx, "openai-primary")
	require.NoError(t, err)
	require.Equal(t, 5, got.WindowCount)
	require.Equal(t, second.WindowResetAt, got.WindowResetAt)
	require.Equal(t, uint64(20), got.TotalDispatched)
	require.Nil(t, got.LastRateLimitAt)
}

func TestQuotaQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	resetAt := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	for _, provider := range []string{"openai-primary", "openai-burst", "anthropic-primary"} {
		require.NoError(t, store.UpsertQuotaState(ctx, provider, &core.QuotaState{WindowCount: 1, WindowResetAt: resetAt}))
	}

	all, err := store.ListQuotaStates(ctx, QuotaQuery{All: true})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byPrefix, err := store.ListQuotaStates(ctx, QuotaQuery{Prefix: "openai-"})
	require.NoError(t, err)
	require.Len(t, byPrefix, 2)

	count, err := store.CountQuotaStates(ctx, QuotaQuery{Provider: "anthropic-primary"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	removed, err := store.ResetQuotaStates(ctx, QuotaQuery{Prefix: "openai-"})
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	remaining, err := store.ListQuotaStates(ctx, QuotaQuery{All: true})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "anthropic-primary", remaining[0].Provider)
}

func TestQuotaQueryValidate(t *testing.T) {
	require.Error(t, QuotaQuery{}.Validate())
	require.NoError(t, QuotaQuery{All: true}.Validate())
	require.NoError(t, QuotaQuery{Provider: "openai-primary"}.Validate())
	require.NoError(t, QuotaQuery{Prefix: "openai-"}.Validate())
}
