// Package http exposes the interview service over HTTP/JSON.
package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caliperhq/caliper/internal/platform/timeouts"
	"github.com/caliperhq/caliper/internal/services/interview/app"
)

// Server hosts the interview HTTP API.
type Server struct {
	service *app.Service
	router  *chi.Mux
	httpSrv *http.Server
}

// NewServer wires routes and middleware around the interview service.
func NewServer(service *app.Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("interview service is required")
	}
	s := &Server{
		service: service,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(tracing("interview-http"))

	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleScheduleSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetStatus)
			r.Post("/credentials", s.handleIssueCredential)
			r.Post("/start", s.handleStart)
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/cancel", s.handleCancel)
			r.Post("/terminate", s.handleTerminateEarly)
			r.Post("/fault", s.handleReportFault)
			r.Post("/responses", s.handleSubmitResponse)
			r.Get("/question", s.handleDeliverQuestion)
			r.Get("/analytics", s.handleGetAnalytics)
		})
	})
}

// Handler returns the HTTP handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves the API until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(listener)
	}()
	log.Printf("http server listening addr=%s", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
