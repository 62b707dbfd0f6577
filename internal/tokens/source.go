package tokens

import (
	"context"
	"time"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// StoreSource adapts the skill store to the scheduler: refresh configs
// live inside each skill's persisted auth state.
type StoreSource struct {
	store *skillstore.Store
	now   func() time.Time
}

// NewStoreSource wires a config source over a skill store.
func NewStoreSource(store *skillstore.Store) *StoreSource {
	return &StoreSource{store: store, now: time.Now}
}

// RefreshableSkills lists every skill whose auth state carries a
// refresh config. Degraded configs are included; the scheduler skips
// them itself.
func (s *StoreSource) RefreshableSkills(ctx context.Context) (map[string]*types.RefreshConfig, error) {
	manifests, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*types.RefreshConfig)
	for _, m := range manifests {
		auth, err := s.store.Auth(m.SkillID)
		if err != nil || auth == nil || auth.RefreshConfig == nil {
			continue
		}
		out[m.SkillID] = auth.RefreshConfig
	}
	return out, nil
}

// SaveRefreshResult folds a refresh outcome into the skill's auth
// state: rotated refresh token, new expiry, updated bearer header.
func (s *StoreSource) SaveRefreshResult(ctx context.Context, skillID string, cfg *types.RefreshConfig, info *types.TokenInfo) error {
	auth, err := s.store.Auth(skillID)
	if err != nil {
		return err
	}
	if auth == nil {
		return fault.NotFound("auth state", skillID)
	}
	if auth.Headers == nil {
		auth.Headers = make(map[string]string)
	}
	Apply(cfg, info, auth.Headers, s.now())
	auth.RefreshConfig = cfg
	return s.store.SaveAuth(skillID, auth)
}

// MarkDegraded flags the skill's refresh config so sweeps leave it
// alone until a new capture replaces it. A skill without auth state is
// already effectively degraded.
func (s *StoreSource) MarkDegraded(ctx context.Context, skillID string) error {
	auth, err := s.store.Auth(skillID)
	if err != nil {
		return err
	}
	if auth == nil || auth.RefreshConfig == nil {
		return nil
	}
	auth.RefreshConfig.Degraded = true
	return s.store.SaveAuth(skillID, auth)
}
