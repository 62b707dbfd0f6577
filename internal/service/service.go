// Package service is the local HTTP control surface. It exposes intent
// resolution, direct skill execution, feedback, marketplace search,
// recipe management, interactive login and capture history as a JSON
// API bound to localhost, so editors and agent runtimes that cannot
// speak MCP can still drive the engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/unbrowse/unbrowse/internal/capture"
	"github.com/unbrowse/unbrowse/internal/config"
	"github.com/unbrowse/unbrowse/internal/creds"
	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/internal/resolver"
	"github.com/unbrowse/unbrowse/internal/skillstore"
)

// lockFile guards against two instances sharing one skill store.
const lockFile = "unbrowse.lock"

// Server hosts the control API over a resolver and its skill store.
type Server struct {
	cfg      *config.Config
	store    *skillstore.Store
	resolver *resolver.Resolver
	captures *capture.Manager
	creds    creds.Provider
	logger   *slog.Logger

	http     *http.Server
	lockPath string
}

// Option configures a Server.
type Option func(*Server)

// WithCapture enables the login and session-history routes.
func WithCapture(m *capture.Manager) Option {
	return func(s *Server) { s.captures = m }
}

// WithCredentials sets the provider used to prefill login forms.
func WithCredentials(p creds.Provider) Option {
	return func(s *Server) { s.creds = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New wires a control server on cfg.Port. Without WithCapture the
// login route reports capture unavailable and session history is
// empty.
func New(cfg *config.Config, store *skillstore.Store, res *resolver.Resolver, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		resolver: res,
		logger:   slog.Default(),
		lockPath: filepath.Join(store.Root(), lockFile),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start acquires the instance lock and serves until the listener fails
// or Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.acquireLock(); err != nil {
		return err
	}
	s.logger.Info("control service listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and releases the instance lock.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.releaseLock()
	return s.http.Shutdown(ctx)
}

// acquireLock claims the pid file in the store root. A lock held by a
// live process refuses startup; a stale or unreadable one is taken
// over.
func (s *Server) acquireLock() error {
	if data, err := os.ReadFile(s.lockPath); err == nil {
		pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && pid > 0 && pid != os.Getpid() && processAlive(pid) {
			return fault.Newf(fault.CodePrecondition,
				"another instance is running (pid %d); stop it or remove %s", pid, s.lockPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fault.Wrap(fault.CodeInternal, "create data dir", err)
	}
	if err := os.WriteFile(s.lockPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fault.Wrap(fault.CodeInternal, "write instance lock", err)
	}
	return nil
}

// releaseLock removes the pid file only when it still names this
// process, so a takeover by a newer instance is never undone.
func (s *Server) releaseLock() {
	data, err := os.ReadFile(s.lockPath)
	if err != nil {
		return
	}
	if pid, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && pid == os.Getpid() {
		os.Remove(s.lockPath)
	}
}

// processAlive probes a pid with signal 0. EPERM means the process
// exists under another user, which still counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
