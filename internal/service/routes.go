package service

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handler builds the route tree. Exposed so tests can drive the API
// without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		// Local tooling only. The listener binds 127.0.0.1, CORS keeps
		// browser pages on other origins from driving it.
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/intent/resolve", s.handleResolve)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/search", s.handleSearch)
		r.Post("/search/domain", s.handleSearchDomain)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/skills", s.handleListSkills)
		r.Route("/skills/{skillID}", func(r chi.Router) {
			r.Get("/", s.handleGetSkill)
			r.Post("/execute", s.handleExecute)
			r.Post("/endpoints/{endpointID}/recipe", s.handleSaveRecipe)
		})

		r.Get("/sessions/{domain}", s.handleSessions)
	})

	return r
}

// logRequests emits one structured line per request, at warn for
// client errors and error for server errors.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logFn := s.logger.Debug
		switch {
		case ww.Status() >= 500:
			logFn = s.logger.Error
		case ww.Status() >= 400:
			logFn = s.logger.Warn
		}
		logFn("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
