// Package server exposes the mapped tables over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/backoffice/internal/eventlog"
	"github.com/koustreak/backoffice/internal/export"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/mapper"
	"github.com/koustreak/backoffice/internal/metrics"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Exporter and Metrics may be nil.
type Options struct {
	Registry     *mapper.Registry
	Events       *eventlog.Sink
	Exporter     *export.Exporter
	Metrics      *metrics.Metrics
	DB           Pinger
	Logger       *logger.Logger
	MaxPageSize  int
	QueryTimeout time.Duration
}

// Server routes HTTP requests to table and view mappers.
type Server struct {
	registry     *mapper.Registry
	events       *eventlog.Sink
	exporter     *export.Exporter
	metrics      *metrics.Metrics
	db           Pinger
	log          *logger.Logger
	maxPageSize  int
	queryTimeout time.Duration
	router       chi.Router
}

func New(opts Options) *Server {
	s := &Server{
		registry:     opts.Registry,
		events:       opts.Events,
		exporter:     opts.Exporter,
		metrics:      opts.Metrics,
		db:           opts.DB,
		log:          opts.Logger,
		maxPageSize:  opts.MaxPageSize,
		queryTimeout: opts.QueryTimeout,
	}
	if s.log == nil {
		s.log = logger.L()
	}
	if s.events == nil {
		s.events = eventlog.NewSink(nil, "", s.log, s.metrics)
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = 500
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(withActor)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.withQueryTimeout)

		r.Get("/tables", s.handleListTables)
		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/", s.handleDescribeTable)
			r.Get("/rows", s.handleListRows)
			r.Post("/rows", s.handleInsertRow)
			r.Get("/rows/{pk}", s.handleGetRow)
			r.Patch("/rows/{pk}", s.handleUpdateRow)
			r.Put("/rows/{pk}", s.handleReplaceRow)
			r.Delete("/rows/{pk}", s.handleDeleteRow)
			r.Post("/export", s.handleExport)
		})
		r.Get("/views/{view}/rows", s.handleListViewRows)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWith("http server listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// requestLogger puts the logger on the request context and logs each
// request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

		reqLog.HTTPEvent().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

func (s *Server) withQueryTimeout(next http.Handler) http.Handler {
	if s.queryTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withActor takes the acting user from X-Actor, set by the
// authenticating proxy in front of the server.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := r.Header.Get("X-Actor"); actor != "" {
			r = r.WithContext(eventlog.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
