package warming

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staylink/tenantcache/internal/config"
	"github.com/staylink/tenantcache/internal/types"
)

func newTestScheduler(t *testing.T, funcs map[string]types.WarmingFunc) *Scheduler {
	t.Helper()

	cfg := config.ForTesting().Warming
	cfg.ProactiveInterval = 0 // no proactive loop in tests

	s := NewScheduler(&cfg, nil, nil, funcs)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestSchedulerTaskAdministration(t *testing.T) {
	s := newTestScheduler(t, map[string]types.WarmingFunc{
		"warm_config": func(context.Context, string) error { return nil },
	})

	t.Run("task with registered function installs", func(t *testing.T) {
		err := s.AddTask(&types.WarmingTask{
			KeyPattern: `hotel:\d+:config.*`,
			Function:   "warm_config",
			Enabled:    true,
		})
		require.NoError(t, err)
		assert.Len(t, s.Tasks(), 1)
	})

	t.Run("unregistered function is rejected", func(t *testing.T) {
		err := s.AddTask(&types.WarmingTask{
			KeyPattern: `user:\d+:.*`,
			Function:   "nope",
			Enabled:    true,
		})
		assert.ErrorIs(t, err, types.ErrUnknownWarmingFunc)
	})

	t.Run("invalid task is rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.AddTask(nil), types.ErrInvalidWarmingTask)
		assert.ErrorIs(t, s.AddTask(&types.WarmingTask{Function: "warm_config"}), types.ErrInvalidWarmingTask)
		assert.ErrorIs(t, s.AddTask(&types.WarmingTask{KeyPattern: `k.*`, Function: "warm_config", RetryCount: -1}), types.ErrInvalidWarmingTask)
	})

	t.Run("remove", func(t *testing.T) {
		s.RemoveTask(`hotel:\d+:config.*`)
		assert.Empty(t, s.Tasks())
	})

	t.Run("register function validation", func(t *testing.T) {
		assert.ErrorIs(t, s.RegisterFunction("", nil), types.ErrInvalidWarmingTask)
		assert.NoError(t, s.RegisterFunction("warm_other", func(context.Context, string) error { return nil }))
	})
}

func TestSchedulerReactiveWarming(t *testing.T) {
	var warmed atomic.Int64
	var lastKey atomic.Value

	s := newTestScheduler(t, map[string]types.WarmingFunc{
		"warm_config": func(_ context.Context, key string) error {
			lastKey.Store(key)
			warmed.Add(1)
			return nil
		},
	})
	require.NoError(t, s.AddTask(&types.WarmingTask{
		KeyPattern: `hotel:\d+:config.*`,
		Function:   "warm_config",
		Enabled:    true,
	}))

	s.CheckEvent(context.Background(), types.NewCacheEvent("data_change", "hotel:42:config:name"))

	assert.Eventually(t, func() bool {
		return warmed.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hotel:42:config:name", lastKey.Load())

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Scheduled)

	t.Run("non-matching key does nothing", func(t *testing.T) {
		s.CheckEvent(context.Background(), types.NewCacheEvent("data_change", "user:1:profile"))
		assert.EqualValues(t, 1, s.Stats().Scheduled)
	})

	t.Run("disabled task does not fire", func(t *testing.T) {
		require.NoError(t, s.AddTask(&types.WarmingTask{
			KeyPattern: `hotel:\d+:rooms.*`,
			Function:   "warm_config",
			Enabled:    false,
		}))
		s.CheckEvent(context.Background(), types.NewCacheEvent("data_change", "hotel:42:rooms"))
		assert.EqualValues(t, 1, s.Stats().Scheduled)
	})
}

func TestSchedulerRetries(t *testing.T) {
	var calls atomic.Int64
	s := newTestScheduler(t, map[string]types.WarmingFunc{
		"flaky": func(context.Context, string) error {
			if calls.Add(1) < 3 {
				return errors.New("upstream timeout")
			}
			return nil
		},
	})
	require.NoError(t, s.AddTask(&types.WarmingTask{
		KeyPattern: `hotel:\d+:pms.*`,
		Function:   "flaky",
		RetryCount: 3,
		RetryDelay: time.Millisecond,
		Enabled:    true,
	}))

	err := s.WarmKey(context.Background(), `hotel:\d+:pms.*`, "hotel:42:pms:token")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 1, s.Stats().Succeeded)

	t.Run("no retries without retry settings", func(t *testing.T) {
		var attempts atomic.Int64
		require.NoError(t, s.RegisterFunction("failing", func(context.Context, string) error {
			attempts.Add(1)
			return errors.New("always fails")
		}))
		require.NoError(t, s.AddTask(&types.WarmingTask{
			KeyPattern: `one-shot.*`,
			Function:   "failing",
			Enabled:    true,
		}))

		err := s.WarmKey(context.Background(), `one-shot.*`, "one-shot:key")
		assert.Error(t, err)
		assert.EqualValues(t, 1, attempts.Load())
		assert.EqualValues(t, 1, s.Stats().Failed)
	})
}

func TestSchedulerUnknownFunction(t *testing.T) {
	s := newTestScheduler(t, map[string]types.WarmingFunc{
		"warm_config": func(context.Context, string) error { return nil },
	})
	require.NoError(t, s.AddTask(&types.WarmingTask{
		KeyPattern: `hotel:\d+:config.*`,
		Function:   "warm_config",
		Enabled:    true,
	}))

	// The function can disappear after the task was installed.
	s.mu.Lock()
	delete(s.functions, "warm_config")
	s.mu.Unlock()

	err := s.WarmKey(context.Background(), `hotel:\d+:config.*`, "hotel:42:config")
	assert.ErrorIs(t, err, types.ErrUnknownWarmingFunc)
	assert.EqualValues(t, 1, s.Stats().Failed)
}

func TestSchedulerWarmKeyUnknownPattern(t *testing.T) {
	s := newTestScheduler(t, nil)

	err := s.WarmKey(context.Background(), `missing.*`, "key")
	assert.ErrorIs(t, err, types.ErrInvalidWarmingTask)
}

func TestSchedulerBudgetExhaustionSkips(t *testing.T) {
	release := make(chan struct{})
	cfg := config.ForTesting().Warming
	cfg.MaxConcurrent = 1
	cfg.ProactiveInterval = 0

	s := NewScheduler(&cfg, nil, nil, map[string]types.WarmingFunc{
		"slow": func(ctx context.Context, _ string) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	t.Cleanup(func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	require.NoError(t, s.AddTask(&types.WarmingTask{
		KeyPattern: `hotel:\d+:config.*`,
		Function:   "slow",
		Enabled:    true,
	}))

	event := types.NewCacheEvent("data_change", "hotel:42:config")
	s.CheckEvent(context.Background(), event)

	assert.Eventually(t, func() bool {
		return s.Stats().Scheduled == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Budget is held by the in-flight warm; reactive warms skip, not queue.
	s.CheckEvent(context.Background(), event)
	assert.EqualValues(t, 1, s.Stats().Skipped)
}
