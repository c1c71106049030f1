package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/responder-tracker/internal/async"
	"github.com/joseph-ayodele/responder-tracker/internal/common"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
	"github.com/joseph-ayodele/responder-tracker/internal/repository"
	"github.com/joseph-ayodele/responder-tracker/internal/services/interpret"
)

// InterpretService is what the handlers need from the message service.
type InterpretService interface {
	Interpret(ctx context.Context, req pipeline.Request) (pipeline.Result, *pipeline.Trace, error)
	HandleMessage(ctx context.Context, msg interpret.Message) (*repository.Record, error)
	ListMission(ctx context.Context, missionID string) ([]*repository.Record, error)
	Validate(msg interpret.Message) error
}

type Exporter interface {
	ExportMissionXLSX(ctx context.Context, missionID string) ([]byte, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}

type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Deps wires the router. Queue, Exporter, Health and Metrics may be nil.
type Deps struct {
	Service     InterpretService
	Exporter    Exporter
	Queue       Enqueuer
	Health      HealthChecker
	Metrics     http.Handler
	CORSOrigins []string
	Logger      *slog.Logger
	// Now is the clock used for omitted timestamps.
	Now func() time.Time
}

const maxBodyBytes = 64 << 10

// NewRouter builds the HTTP API.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	h := &handlers{deps: d, logger: d.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/interpret", h.interpret)
		r.Post("/messages", h.postMessage)
		r.Get("/missions/{missionID}/interpretations", h.listMission)
		r.Get("/missions/{missionID}/export.xlsx", h.exportMission)
	})
	return r
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", rid)
			reqLogger := logger.With("req_id", rid)
			ctx := common.WithLogger(common.WithRequestID(r.Context(), rid), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
