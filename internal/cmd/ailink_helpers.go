package cmd

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/brdforge/brdforge/internal/ailink"
	"github.com/brdforge/brdforge/internal/ailink/prompt"
	"github.com/brdforge/brdforge/internal/config"
	"github.com/brdforge/brdforge/internal/core"
	"github.com/brdforge/brdforge/internal/core/dispatch"
	"github.com/brdforge/brdforge/internal/core/store"
	"github.com/brdforge/brdforge/internal/metrics"
	"github.com/brdforge/brdforge/internal/observability"
)

const quotaPersistTimeout = 5 * time.Second

func buildPromptRegistry(cfg *config.Config) (prompt.Registry, error) {
	defaults, err := prompt.LoadDefaults()
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*prompt.Prompt, len(defaults))
	for _, p := range defaults {
		if p == nil {
			continue
		}
		merged[p.Config.Slug] = p
	}

	if cfg != nil {
		dir := strings.TrimSpace(cfg.AILink.PromptsDir)
		if dir != "" {
			overrides, err := prompt.LoadFromDir(dir)
			if err != nil {
				return nil, err
			}
			for _, p := range overrides {
				if p == nil {
					continue
				}
				merged[p.Config.Slug] = p
			}
		}
	}

	prompts := make([]*prompt.Prompt, 0, len(merged))
	for _, p := range merged {
		prompts = append(prompts, p)
	}
	return prompt.NewRegistry(prompts)
}

// buildAILinkService assembles the generation service: prompt registry,
// provider registry with metric and persistence hooks, and schedulers seeded
// from persisted quota state. db may be nil, in which case quota state is
// neither restored nor persisted.
func buildAILinkService(ctx context.Context, cfg *config.Config, db *store.Store) (*ailink.Service, *ailink.Registry, error) {
	prompts, err := buildPromptRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	providers := ailink.NewRegistry(cfg.AILink)
	tracker := &rateLimitTracker{}
	providers.SchedulerHooks = func(providerID string) dispatch.Hooks {
		hooks := []dispatch.Hooks{metrics.SchedulerHooks(providerID)}
		if db != nil {
			hooks = append(hooks, quotaPersistHooks(db, providers, tracker, providerID))
		}
		return dispatch.ChainHooks(hooks...)
	}

	if db != nil {
		seedSchedulers(ctx, cfg, providers, db)
	}

	service := &ailink.Service{
		Providers: providers,
		Prompts:   prompts,
	}
	return service, providers, nil
}

// seedSchedulers restores per-provider quota windows persisted by earlier
// invocations so a fresh process cannot overshoot a provider's window.
func seedSchedulers(ctx context.Context, cfg *config.Config, providers *ailink.Registry, db *store.Store) {
	now := time.Now().UTC()
	for providerID, providerCfg := range cfg.AILink.Providers {
		if !providerCfg.Enabled {
			continue
		}

		state, err := db.GetQuotaState(ctx, providerID)
		if err != nil {
			logHookWarn("Failed to load persisted quota state",
				zap.String("provider", providerID), zap.Error(err))
			continue
		}
		if state == nil || state.Expired(now) {
			continue
		}

		scheduler, err := providers.SchedulerFor(providerID)
		if err != nil {
			continue
		}
		scheduler.Restore(state.WindowCount, state.WindowResetAt, state.LastDispatchAt)
	}
}

// rateLimitTracker remembers the last rate-limited failure per provider so
// the persisted quota row can carry it.
type rateLimitTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (t *rateLimitTracker) mark(providerID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		t.last = make(map[string]time.Time)
	}
	t.last[providerID] = at
}

func (t *rateLimitTracker) get(providerID string) *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.last[providerID]
	if !ok {
		return nil
	}
	return &at
}

// quotaPersistHooks writes the scheduler's quota standing to the store after
// every terminal outcome.
func quotaPersistHooks(db *store.Store, providers *ailink.Registry, tracker *rateLimitTracker, providerID string) dispatch.Hooks {
	return dispatch.Hooks{
		OnRetryWait: func(meta dispatch.Meta, attempt int, class dispatch.Class, delay time.Duration) {
			if class == dispatch.ClassRateLimited {
				tracker.mark(providerID, time.Now().UTC())
			}
		},
		OnDone: func(meta dispatch.Meta, attempts int, elapsed time.Duration, err error) {
			scheduler, serr := providers.SchedulerFor(providerID)
			if serr != nil {
				return
			}
			snap := scheduler.Snapshot()

			state := &core.QuotaState{
				WindowCount:     snap.WindowCount,
				WindowResetAt:   snap.WindowResetAt,
				LastDispatchAt:  snap.LastDispatchAt,
				LastRateLimitAt: tracker.get(providerID),
				TotalDispatched: snap.TotalDispatched,
			}

			ctx, cancel := context.WithTimeout(context.Background(), quotaPersistTimeout)
			defer cancel()
			if perr := db.UpsertQuotaState(ctx, providerID, state); perr != nil {
				logHookWarn("Failed to persist quota state",
					zap.String("provider", providerID), zap.Error(perr))
			}
		},
	}
}

func hookLogger() *logging.Logger {
	if observability.ServerLogger != nil {
		return observability.ServerLogger
	}
	return observability.CLILogger
}

func logHookWarn(msg string, fields ...zap.Field) {
	if logger := hookLogger(); logger != nil {
		logger.Warn(msg, fields...)
	}
}
