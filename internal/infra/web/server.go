package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-bot-platform/internal/infra/metrics"
	"telegram-bot-platform/internal/usecase"
)

const requestTimeout = 30 * time.Second

// Server is the admin HTTP API over message processing.
type Server struct {
	processing usecase.MessageProcessingUseCase
	recovery   usecase.ProcessingRecoveryUseCase
	auth       *AuthManager
	log        *zerolog.Logger
}

func NewServer(
	processing usecase.MessageProcessingUseCase,
	recovery usecase.ProcessingRecoveryUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		processing: processing,
		recovery:   recovery,
		auth:       auth,
		log:        logger,
	}
}

// Routes builds the router. Everything under /api/v1 requires an admin token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Require, Timeout(requestTimeout))
		r.Route("/message-processing", func(r chi.Router) {
			r.Get("/", s.listProcessing)
			r.Get("/failed", s.listFailed)
			r.Post("/retry-failed", s.retryFailed)
			r.Get("/{id}", s.getProcessing)
			r.Post("/{id}/retry", s.retryProcessing)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("admin http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.log.Info().Msg("admin http server stopped")
		return nil
	}
}
