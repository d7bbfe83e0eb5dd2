// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/connector"
	"github.com/streamlens/streamlens/internal/database"
	"github.com/streamlens/streamlens/internal/logging"
	"github.com/streamlens/streamlens/internal/metrics"
	"github.com/streamlens/streamlens/internal/models"
)

// Server exposes the catalog over HTTP.
type Server struct {
	cfg        *config.Config
	db         *database.DB
	connectors map[models.Platform]connector.Connector
	log        zerolog.Logger
}

// NewServer creates the API server over the catalog and the live
// connector set. Connectors are only consulted for status snapshots
// and submission validation.
func NewServer(cfg *config.Config, db *database.DB, connectors map[models.Platform]connector.Connector) *Server {
	return &Server{
		cfg:        cfg,
		db:         db,
		connectors: connectors,
		log:        logging.With().Str("component", "api").Logger(),
	}
}

// Handler builds the chi route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.API.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimiter())

		r.Get("/status", s.handleStatus)

		r.Route("/streams", func(r chi.Router) {
			r.Get("/", s.handleListStreams)
			r.Get("/{id}", s.handleGetStream)
			r.Post("/{id}/report", s.handleReportStream)
		})

		r.Route("/follows", func(r chi.Router) {
			r.Get("/", s.handleListFollows)
			r.Post("/", s.handleAddFollow)
			r.Delete("/", s.handleRemoveFollow)
		})

		r.Post("/submissions", s.handleSubmitChannel)
	})

	return r
}

// NewHTTPServer wraps the handler in an http.Server with the
// configured listen address and timeouts.
func (s *Server) NewHTTPServer() *http.Server {
	timeout := s.cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
	}
}

func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	reqs := s.cfg.API.RateLimitReqs
	window := s.cfg.API.RateLimitWindow
	if reqs <= 0 {
		reqs = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(reqs, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			writeError(w, r, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "rate limit exceeded")
		}),
	)
}

// requestLogger emits one structured line per request and feeds the
// API metrics. The route pattern keeps metric cardinality bounded.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		duration := time.Since(start)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, pattern, fmt.Sprintf("%d", ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, pattern).Observe(duration.Seconds())

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", duration).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}
