package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/infra/redis"
	"catalog-enrichment/internal/infra/worker"
	"catalog-enrichment/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter guards the append route. The redis window limiter satisfies
// this; tests plug in a permissive fake.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Server exposes the operator API: job lifecycle, ingestion, batch
// processing and queue recovery.
type Server struct {
	ingest    *usecase.IngestUseCase
	queue     *usecase.QueueUseCase
	processor *worker.ItemProcessor
	auth      *AuthManager

	limiter    RateLimiter
	rateLimit  int
	rateWindow time.Duration

	log *zerolog.Logger
}

func NewServer(
	ingest *usecase.IngestUseCase,
	queue *usecase.QueueUseCase,
	processor *worker.ItemProcessor,
	auth *AuthManager,
	limiter RateLimiter,
	rateLimit int,
	rateWindow time.Duration,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		ingest:     ingest,
		queue:      queue,
		processor:  processor,
		auth:       auth,
		limiter:    limiter,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		log:        &l,
	}
}

// Router builds the full route tree including middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(s.log), RequestLog(s.log), Recover(s.log), Timeout(60*time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Use(s.auth.Require)
		r.Post("/", s.handleCreateJob)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.With(s.ingestRate).Post("/items", s.handleAppendItems)
			r.Post("/process", s.handleProcess)
			r.Post("/requeue", s.handleRequeue)
			r.Post("/skip", s.handleBulkSkip)
			r.Post("/reclaim", s.handleReclaim)
			r.Delete("/", s.handleDeleteJob)
		})
	})
	return r
}

// ingestRate buckets the append limiter per job so one bulk submitter
// cannot starve the others.
func (s *Server) ingestRate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || s.rateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := redis.AppendKey(chi.URLParam(r, "jobID"))
		ok, err := s.limiter.Allow(r.Context(), key, s.rateLimit, s.rateWindow)
		if err != nil {
			// a broken limiter must not block ingestion
			s.log.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			http.Error(w, "too many append requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrJobNotPending):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrEmptyPayload):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
