package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"docbatch/internal/usecase"
)

type ServerOptions struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	AllowedOrigins []string
	PublicBaseURL  string
}

// Server exposes the batch pipeline over HTTP.
type Server struct {
	batch usecase.BatchUseCase
	merge usecase.MergeUseCase
	links usecase.DownloadLinkIssuer
	auth  *AuthManager
	opts  ServerOptions
	log   *zerolog.Logger
}

func NewServer(
	batch usecase.BatchUseCase,
	merge usecase.MergeUseCase,
	links usecase.DownloadLinkIssuer,
	auth *AuthManager,
	opts ServerOptions,
	logger *zerolog.Logger,
) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 256 << 20
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{batch: batch, merge: merge, links: links, auth: auth, opts: opts, log: &l}
}

// Handler builds the router with all middlewares applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", traceHeader},
			ExposedHeaders:   []string{traceHeader, "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Download links carry their own credential.
		r.Get("/downloads/{outputID}", s.handleDownload)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Authenticate, Timeout(s.opts.RequestTimeout))
			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Post("/jobs/{jobID}/files", s.handleUpload)
			r.Post("/jobs/{jobID}/process", s.handleProcess)
			r.Post("/jobs/{jobID}/merge", s.handleMerge)
		})
	})

	return Chain(r, TraceID(), RequestLog(s.log), Recover(s.log))
}
