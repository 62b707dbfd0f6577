package tokens

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// maxConsecutiveFailures before a config is marked degraded and left
// alone until re-captured.
const maxConsecutiveFailures = 3

// ConfigSource is where refresh configs live between runs, keyed by
// skill id.
type ConfigSource interface {
	RefreshableSkills(ctx context.Context) (map[string]*types.RefreshConfig, error)
	SaveRefreshResult(ctx context.Context, skillID string, cfg *types.RefreshConfig, info *types.TokenInfo) error
	MarkDegraded(ctx context.Context, skillID string) error
}

// Scheduler sweeps stored refresh configs on a fixed tick and executes
// the ones whose tokens are about to expire.
type Scheduler struct {
	source        ConfigSource
	refresher     *Refresher
	tick          time.Duration
	bufferMinutes int

	group    singleflight.Group
	mu       sync.Mutex
	failures map[string]int
	now      func() time.Time
}

// NewScheduler wires a scheduler; tick <= 0 selects one minute.
func NewScheduler(source ConfigSource, refresher *Refresher, tick time.Duration, bufferMinutes int) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	if bufferMinutes <= 0 {
		bufferMinutes = DefaultBufferMinutes
	}
	return &Scheduler{
		source:        source,
		refresher:     refresher,
		tick:          tick,
		bufferMinutes: bufferMinutes,
		failures:      make(map[string]int),
		now:           time.Now,
	}
}

// Run sweeps until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep checks every stored config once. Errors are logged and retried
// on the next tick; they never stop the loop.
func (s *Scheduler) Sweep(ctx context.Context) {
	configs, err := s.source.RefreshableSkills(ctx)
	if err != nil {
		slog.Warn("refresh sweep: listing configs failed", slog.String("error", err.Error()))
		return
	}
	for skillID, cfg := range configs {
		if cfg == nil || cfg.Degraded {
			continue
		}
		if !NeedsRefresh(cfg, s.bufferMinutes, s.now()) {
			continue
		}
		s.Refresh(ctx, skillID, cfg)
	}
}

// Refresh executes one config, deduplicating concurrent attempts for
// the same skill. Three consecutive failures mark the config degraded.
func (s *Scheduler) Refresh(ctx context.Context, skillID string, cfg *types.RefreshConfig) (*types.TokenInfo, error) {
	v, err, _ := s.group.Do(skillID, func() (any, error) {
		info, err := s.refresher.Execute(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.source.SaveRefreshResult(ctx, skillID, cfg, info); err != nil {
			return nil, err
		}
		return info, nil
	})
	if err != nil {
		s.recordFailure(ctx, skillID)
		return nil, err
	}
	s.clearFailures(skillID)
	return v.(*types.TokenInfo), nil
}

func (s *Scheduler) recordFailure(ctx context.Context, skillID string) {
	s.mu.Lock()
	s.failures[skillID]++
	count := s.failures[skillID]
	s.mu.Unlock()

	slog.Warn("token refresh failed",
		slog.String("skill_id", skillID),
		slog.Int("consecutive_failures", count),
	)
	if count >= maxConsecutiveFailures {
		if err := s.source.MarkDegraded(ctx, skillID); err != nil {
			slog.Warn("marking refresh config degraded failed",
				slog.String("skill_id", skillID),
				slog.String("error", err.Error()),
			)
			return
		}
		slog.Warn("refresh config degraded after repeated failures",
			slog.String("skill_id", skillID),
		)
	}
}

func (s *Scheduler) clearFailures(skillID string) {
	s.mu.Lock()
	delete(s.failures, skillID)
	s.mu.Unlock()
}
