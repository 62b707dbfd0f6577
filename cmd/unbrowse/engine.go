package main

import (
	"net/http"

	"github.com/unbrowse/unbrowse/internal/browser"
	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/creds"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/logging"
	"github.com/unbrowse/unbrowse/internal/marketplace"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/internal/skillindex"
	"github.com/unbrowse/unbrowse/internal/skillstore"
	"github.com/unbrowse/unbrowse/internal/tokens"
)

// engine bundles the wired subsystems a command needs. Construction
// mirrors the MCP server embedding in pkg/mcpsrv so both entrypoints
// behave identically.
type engine struct {
	cfg       *config.Config
	store     *skillstore.Store
	index     *skillindex.Index
	resolver  *resolver.Resolver
	captures  *capture.Manager
	market    *marketplace.Client
	creds     creds.Provider
	scheduler *tokens.Scheduler

	logCleanup func() error
}

// buildEngine loads config from the environment and wires the full
// stack. Callers own the returned engine and must call close.
func buildEngine() (*engine, error) {
	cfg := config.Load()

	logCleanup, err := logging.Setup(logging.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "setup logging", err)
	}

	store := skillstore.New(cfg.DataDir, skillstore.WithSkillsDir(cfg.SkillsDir))

	index := skillindex.New()
	manifests, err := store.List()
	if err != nil {
		_ = logCleanup()
		return nil, err
	}
	index.Rebuild(manifests)

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	bridge := browser.NewBridgeForGateway(cfg.GatewayPort)
	captures := capture.NewManager(bridge, store,
		capture.WithTimeout(cfg.CaptureTimeout),
		capture.WithOnSaved(index.Upsert),
	)

	market := marketplace.New(
		marketplace.WithBaseURL(cfg.IndexURL),
		marketplace.WithHTTPClient(httpClient),
	)

	executor := resolver.NewExecutor(
		resolver.WithHTTPClient(httpClient),
		resolver.WithExecuteTimeout(cfg.ToolTimeout),
	)
	res := resolver.New(store, index,
		resolver.WithMarketplace(market),
		resolver.WithCapture(captures),
		resolver.WithExecutor(executor),
		resolver.WithRaceTimeout(cfg.RaceTimeout),
		resolver.WithRouteTTL(cfg.RouteCacheTTL),
	)

	provider, err := creds.NewProvider(cfg.CredentialSource, cfg.DataDir, cfg.VaultKey, creds.NewOSKeychain())
	if err != nil {
		_ = logCleanup()
		return nil, err
	}

	refresher := tokens.NewRefresher(cfg.HTTPClientTimeout)
	scheduler := tokens.NewScheduler(tokens.NewStoreSource(store), refresher,
		cfg.RefreshTick, cfg.RefreshBufferMin)

	return &engine{
		cfg:        cfg,
		store:      store,
		index:      index,
		resolver:   res,
		captures:   captures,
		market:     market,
		creds:      provider,
		scheduler:  scheduler,
		logCleanup: logCleanup,
	}, nil
}

func (e *engine) close() {
	if e.logCleanup != nil {
		_ = e.logCleanup()
	}
}
