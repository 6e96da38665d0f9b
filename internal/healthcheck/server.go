// Package healthcheck exposes liveness and readiness over a small HTTP
// server. Readiness tracks the push connection: the bot limps along without
// it, but the fleet should know.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/3r0ha/morpheus-project/internal/pushchan"
)

// PushStatus reports the push connection state. *pushchan.Client satisfies
// it.
type PushStatus interface {
	Status() pushchan.Status
}

type Options struct {
	Listen string
	Push   PushStatus
	Logger *slog.Logger
}

type Server struct {
	listen string
	push   PushStatus
	logger *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Listen == "" {
		return nil, errors.New("healthcheck: listen address is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{listen: opts.Listen, push: opts.Push, logger: logger}, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := pushchan.StatusDisconnected
	if s.push != nil {
		status = s.push.Status()
	}
	body := map[string]string{"push": status.String()}
	code := http.StatusOK
	if status != pushchan.StatusConnected {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Run serves until ctx is canceled, then shuts down with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("healthcheck_start", "listen", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
