package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
	"intellidoc/internal/rag"
	"intellidoc/internal/service"
)

// Documents is the document and admin surface the handlers call.
type Documents interface {
	Ingest(ctx context.Context, filename string, data []byte) (service.IngestResult, error)
	LegalCheck(ctx context.Context, filename, documentType string, data []byte) (service.LegalResult, error)
	RuleTypes() ([]string, error)
	Status(ctx context.Context) (service.Status, error)
	Clear(ctx context.Context) error
	Docs(ctx context.Context) ([]models.Upload, error)
	Sources(ctx context.Context) ([]string, error)
	DeleteSource(ctx context.Context, source string) (service.DeleteResult, error)
}

// Assistant answers and compares.
type Assistant interface {
	Ask(ctx context.Context, question string, opts rag.Options) (models.Answer, error)
	Compare(ctx context.Context, doc1, doc2 string) (string, error)
}

type Server struct {
	docs      Documents
	assistant Assistant
	validate  *validator.Validate
	limiter   *rate.Limiter
	maxUpload int64
}

func NewServer(cfg config.ServerConfig, docs Documents, assistant Assistant) *Server {
	s := &Server{
		docs:      docs,
		assistant: assistant,
		validate:  validator.New(),
		maxUpload: cfg.MaxUploadMB << 20,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 32 << 20
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimitRPS))
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "IntelliDoc backend is running"})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /query/ask", s.handleAsk)
	mux.HandleFunc("POST /compare", s.handleCompare)
	mux.HandleFunc("POST /legal", s.handleLegal)
	mux.HandleFunc("GET /legal/types", s.handleLegalTypes)
	mux.HandleFunc("GET /admin/status", s.handleStatus)
	mux.HandleFunc("DELETE /admin/clear", s.handleClear)
	mux.HandleFunc("GET /admin/docs", s.handleDocs)
	mux.HandleFunc("GET /admin/sources", s.handleSources)
	mux.HandleFunc("DELETE /admin/sources/{source}", s.handleDeleteSource)
	return mux
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	h = corsMiddleware(h)
	h = rateLimitMiddleware(s.limiter, h)
	h = logMiddleware(h)
	return requestIDMiddleware(h)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
