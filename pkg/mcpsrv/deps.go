package mcpsrv

import (
	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/internal/skillindex"
	"github.com/unbrowse/unbrowse/internal/skillstore"
)

// Deps contains all dependencies available to custom tools.
// This gives custom tools access to the same infrastructure as builtin
// tools, plus the underlying intent index and marketplace client.
type Deps struct {
	Config   *config.Config
	Store    *skillstore.Store
	Index    *skillindex.Index
	Resolver *resolver.Resolver
	Captures *capture.Manager
	Market   *marketplace.Client
}
