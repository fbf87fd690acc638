// Package api exposes the daemon's internal HTTP surface: purge triggers,
// status and health.
package api

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/httputil"
	"github.com/purgeline/purged/internal/common/requestid"
)

// Path constants for internal endpoints
const (
	PathPurgeURLs       = "/internal/purge/urls"
	PathPurgeEverything = "/internal/purge/everything"
	PathPurgeTags       = "/internal/purge/tags"
	PathPurgeEntity     = "/internal/purge/entity"
	PathStatus          = "/internal/status"
	PathHealthz         = "/healthz"
)

// Server handles operator and adapter HTTP requests to the daemon
type Server struct {
	authKey   string
	routes    map[string]map[string]fasthttp.RequestHandler // method -> path -> handler
	server    *fasthttp.Server
	listener  net.Listener
	address   string
	logger    *zap.Logger
	startTime time.Time
}

// NewServer creates a new internal HTTP server
func NewServer(authKey string, logger *zap.Logger) *Server {
	return &Server{
		authKey:   authKey,
		routes:    make(map[string]map[string]fasthttp.RequestHandler),
		logger:    logger,
		startTime: time.Now().UTC(),
	}
}

// RegisterHandler registers a handler for a specific method and path
func (s *Server) RegisterHandler(method, path string, handler fasthttp.RequestHandler) {
	if s.routes[method] == nil {
		s.routes[method] = make(map[string]fasthttp.RequestHandler)
	}

	if _, exists := s.routes[method][path]; exists {
		s.logger.Warn("Overwriting existing handler registration",
			zap.String("method", method),
			zap.String("path", path))
	}

	s.routes[method][path] = handler
	s.logger.Debug("Registered internal handler",
		zap.String("method", method),
		zap.String("path", path))
}

// Start begins accepting HTTP requests on the given address
func (s *Server) Start(address string) error {
	s.address = address

	s.server = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "Purged-Internal",
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener

	s.logger.Info("Internal API server started",
		zap.String("address", address))

	return s.server.Serve(listener)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("Shutting down internal API server")
	return s.server.ShutdownWithContext(ctx)
}

// Handler returns the FastHTTP request handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := string(ctx.Path())

		reqID := requestid.FromHeader(string(ctx.Request.Header.Peek("X-Request-ID")))
		ctx.Response.Header.Set("X-Request-ID", reqID)

		// Health probes are unauthenticated
		if path != PathHealthz && !s.authenticate(ctx) {
			return
		}

		if methodRoutes, ok := s.routes[method]; ok {
			if handler, ok := methodRoutes[path]; ok {
				handler(ctx)
				return
			}
		}

		// Path exists for another method
		for _, methodRoutes := range s.routes {
			if _, ok := methodRoutes[path]; ok {
				httputil.JSONError(ctx, "method not allowed", fasthttp.StatusMethodNotAllowed)
				return
			}
		}

		httputil.JSONError(ctx, "not found", fasthttp.StatusNotFound)
	}
}

// authenticate validates the X-Internal-Auth header
func (s *Server) authenticate(ctx *fasthttp.RequestCtx) bool {
	authHeader := string(ctx.Request.Header.Peek("X-Internal-Auth"))

	if authHeader == "" {
		s.logger.Warn("Missing X-Internal-Auth header",
			zap.String("remote_addr", ctx.RemoteAddr().String()),
			zap.String("path", string(ctx.Path())))
		httputil.JSONError(ctx, "unauthorized", fasthttp.StatusUnauthorized)
		return false
	}

	if authHeader != s.authKey {
		s.logger.Warn("Invalid X-Internal-Auth header",
			zap.String("remote_addr", ctx.RemoteAddr().String()),
			zap.String("path", string(ctx.Path())))
		httputil.JSONError(ctx, "unauthorized", fasthttp.StatusUnauthorized)
		return false
	}

	return true
}

// GetStartTime returns the server start time
func (s *Server) GetStartTime() time.Time {
	return s.startTime
}

// GetAddress returns the address the server is listening on
func (s *Server) GetAddress() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
