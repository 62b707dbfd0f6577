package tools

import (
	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/pkg/jsoncompact"
)

// Deps contains all dependencies needed by tool handlers. Captures is
// nil when no browser gateway is configured; capture_session then
// reports itself unavailable.
type Deps struct {
	Config   *config.Config
	Store    *skillstore.Store
	Resolver *resolver.Resolver
	Captures *capture.Manager
}

// compactOptions builds display-budget settings from config.
func (d *Deps) compactOptions() *jsoncompact.Options {
	return &jsoncompact.Options{
		MaxArrayItems: d.Config.CompactMaxArrayItems,
		MaxStringLen:  d.Config.CompactMaxStringLen,
		MaxDepth:      d.Config.CompactMaxDepth,
	}
}
