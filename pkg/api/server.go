// Package api serves the operations endpoints: daemon health, run
// listing and detail, and request intake. Everything under /api/v1
// requires the bearer token; /healthz stays open for orchestrators.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelworks/reeler/pkg/checkpoint"
	"github.com/reelworks/reeler/pkg/queue"
	"github.com/reelworks/reeler/pkg/workspace"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the daemon's run and queue state over HTTP.
type Server struct {
	queue  *queue.Queue
	store  *checkpoint.Store
	spaces *workspace.Manager
	token  string
	logger *slog.Logger
}

// NewServer wires the operations API against the live queue, checkpoint
// store and workspace manager.
func NewServer(q *queue.Queue, store *checkpoint.Store, spaces *workspace.Manager, token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		queue:  q,
		store:  store,
		spaces: spaces,
		token:  token,
		logger: logger.With("component", "api"),
	}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1", s.requireBearer())
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.POST("/requests", s.createRequest)

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("Operations API listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
