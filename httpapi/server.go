// Package httpapi implements the read-only HTTP surface over the canvas
// indexer's store, plus the single ingest control endpoint and the SSE
// live-update stream.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/pubky-canvas/indexer/broadcast"
	"github.com/pubky-canvas/indexer/credit"
	"github.com/pubky-canvas/indexer/errors"
	"github.com/pubky-canvas/indexer/homeserver"
	"github.com/pubky-canvas/indexer/logger"
	"github.com/pubky-canvas/indexer/store"
)

// Server bundles the dependencies every handler needs: the store for reads,
// the broadcaster for SSE fan-out, the resolver for the ingest endpoint, and
// the credit parameters for the credits endpoint.
type Server struct {
	store        *store.Store
	broadcaster  *broadcast.Broadcaster
	resolver     homeserver.Resolver
	creditParams credit.Params

	shutdownTimeout time.Duration
	httpServer      *http.Server
}

// New constructs a Server. Call ListenAndServe to start accepting
// connections.
func New(s *store.Store, b *broadcast.Broadcaster, resolver homeserver.Resolver, creditParams credit.Params, shutdownTimeout time.Duration) *Server {
	return &Server{
		store:           s,
		broadcaster:     b,
		resolver:        resolver,
		creditParams:    creditParams,
		shutdownTimeout: shutdownTimeout,
	}
}

func (s *Server) nowMicros() int64 {
	return time.Now().UnixMicro()
}

// ListenAndServe starts the HTTP server on addr and blocks until it stops,
// either from an error or a call to Shutdown. http.ErrServerClosed is
// treated as a clean stop, not an error.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}

	logger.Infow("http api listening", "addr", addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http listen")
	}
	return nil
}

// Shutdown drains in-flight requests (including SSE streams, which observe
// context cancellation) within the configured budget, then forces a close.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful http shutdown timed out, forcing close", logger.FieldError, err)
		return s.httpServer.Close()
	}
	return nil
}
