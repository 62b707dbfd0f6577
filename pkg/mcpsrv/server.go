package mcpsrv

import (
	"context"
	"fmt"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/logging"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/internal/mcp"
	"github.com/unbrowse/unbrowse/internal/mcp/tools"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/internal/skillindex"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/internal/tokens"
)

// Server is the unbrowse MCP server.
// It wraps the internal implementation and provides extension points.
type Server struct {
	internal   *mcp.Server
	scheduler  *tokens.Scheduler
	deps       *Deps
	logCleanup func() error
}

// NewServer creates a new MCP server with builtin skill tools.
//
// Configuration is read from the environment; use functional options to
// override logging, supply a custom HTTP client, add custom tools, etc.
func NewServer(opts ...Option) (*Server, error) {
	// Build configuration from options
	cfg := &serverConfig{
		config: config.Load(), // Load defaults from environment
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// Setup logging
	logCfg := logging.Config{
		Level:      cfg.config.LogLevel,
		FilePath:   cfg.config.LogFile,
		MaxSizeMB:  cfg.config.LogMaxSizeMB,
		MaxBackups: cfg.config.LogMaxBackups,
		MaxAgeDays: cfg.config.LogMaxAgeDays,
		Compress:   cfg.config.LogCompress,
	}
	if cfg.logLevel != "" {
		logCfg.Level = cfg.logLevel
	}
	if cfg.logFile != "" {
		logCfg.FilePath = cfg.logFile
	}
	logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.config.HTTPClientTimeout}
	}

	// Create infrastructure
	store := skillstore.New(cfg.config.DataDir, skillstore.WithSkillsDir(cfg.config.SkillsDir))

	index := skillindex.New()
	manifests, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	index.Rebuild(manifests)

	bridge := browser.NewBridgeForGateway(cfg.config.GatewayPort)
	captures := capture.NewManager(bridge, store,
		capture.WithTimeout(cfg.config.CaptureTimeout),
		capture.WithOnSaved(index.Upsert),
	)

	market := marketplace.New(
		marketplace.WithBaseURL(cfg.config.IndexURL),
		marketplace.WithHTTPClient(httpClient),
	)

	// Create engines
	executor := resolver.NewExecutor(
		resolver.WithHTTPClient(httpClient),
		resolver.WithExecuteTimeout(cfg.config.ToolTimeout),
	)
	engine := resolver.New(store, index,
		resolver.WithMarketplace(market),
		resolver.WithCapture(captures),
		resolver.WithExecutor(executor),
		resolver.WithRaceTimeout(cfg.config.RaceTimeout),
		resolver.WithRouteTTL(cfg.config.RouteCacheTTL),
	)

	refresher := tokens.NewRefresher(cfg.config.HTTPClientTimeout)
	scheduler := tokens.NewScheduler(tokens.NewStoreSource(store), refresher,
		cfg.config.RefreshTick, cfg.config.RefreshBufferMin)

	// Create deps for internal tools and custom tools
	toolDeps := &tools.Deps{
		Config:   cfg.config,
		Store:    store,
		Resolver: engine,
		Captures: captures,
	}

	// Create public deps (same values, different type for public API)
	deps := &Deps{
		Config:   cfg.config,
		Store:    store,
		Index:    index,
		Resolver: engine,
		Captures: captures,
		Market:   market,
	}

	// Build internal server options
	var internalOpts []mcp.ServerOption
	if !cfg.disableBuiltinTools {
		internalOpts = append(internalOpts, mcp.WithBuiltinTools())
	}
	if !cfg.disableBuiltinPrompts {
		internalOpts = append(internalOpts, mcp.WithBuiltinPrompts())
	}

	// Add custom extension registration callbacks
	for _, fn := range cfg.toolRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range cfg.promptRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range cfg.resourceRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}

	// Add deferred tool registrations (tools that need Deps access)
	for _, fn := range cfg.deferredToolRegistrations {
		fn := fn // capture for closure
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(func(srv *sdkmcp.Server) {
			fn(srv, deps)
		}))
	}

	// Create internal server
	internal, err := mcp.NewServer(toolDeps, internalOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &Server{
		internal:   internal,
		scheduler:  scheduler,
		deps:       deps,
		logCleanup: logCleanup,
	}, nil
}

// Run starts the MCP server with stdio transport.
// It also starts the background token refresh scheduler.
// The server runs until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.scheduler.Run(ctx)
	return s.internal.Run(ctx)
}

// Close cleans up server resources.
func (s *Server) Close() error {
	if s.logCleanup != nil {
		return s.logCleanup()
	}
	return nil
}

// Deps returns the dependencies for building custom tools.
func (s *Server) Deps() *Deps {
	return s.deps
}
