package api

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/httputil"
	"github.com/purgeline/purged/internal/purge/dispatcher"
	"github.com/purgeline/purged/internal/purge/resolver"
)

// PurgeURLsRequest triggers a purge of explicit URLs
type PurgeURLsRequest struct {
	URLs []string `json:"urls"`
}

// PurgeTagsRequest triggers a purge by cache tag
type PurgeTagsRequest struct {
	Tags []string `json:"tags"`
}

// EntityEventRequest is an entity change notification from a framework
// adapter. URLs carry the entity's own addresses; dependency URLs are added
// by the resolver.
type EntityEventRequest struct {
	EntityType string   `json:"entity_type"`
	URLs       []string `json:"urls"`
}

// PurgeResponse reports the outcome of a purge trigger
type PurgeResponse struct {
	Skipped  bool `json:"skipped,omitempty"`
	Accepted bool `json:"accepted,omitempty"`
	Batches  int  `json:"batches,omitempty"`
	Deduped  bool `json:"deduped,omitempty"`
}

// StatusResponse is the daemon status summary
type StatusResponse struct {
	UptimeSeconds int      `json:"uptime_seconds"`
	PurgeEnabled  bool     `json:"purge_enabled"`
	Background    bool     `json:"background"`
	QueueDepth    int      `json:"queue_depth"`
	EntityTypes   []string `json:"entity_types"`
}

// PurgeHandlers wires purge endpoints onto the internal server. Duplicate
// entity events arriving within the dedup window are dropped.
type PurgeHandlers struct {
	dispatcher     *dispatcher.Dispatcher
	registry       *resolver.Registry
	enabled        bool
	background     bool
	requestTimeout time.Duration
	dedupWindow    time.Duration
	logger         *zap.Logger

	mu   sync.Mutex
	seen map[uint64]time.Time
}

// NewPurgeHandlers creates the handler set
func NewPurgeHandlers(
	d *dispatcher.Dispatcher,
	registry *resolver.Registry,
	enabled, background bool,
	requestTimeout, dedupWindow time.Duration,
	logger *zap.Logger,
) *PurgeHandlers {
	return &PurgeHandlers{
		dispatcher:     d,
		registry:       registry,
		enabled:        enabled,
		background:     background,
		requestTimeout: requestTimeout,
		dedupWindow:    dedupWindow,
		logger:         logger,
		seen:           make(map[uint64]time.Time),
	}
}

// RegisterEndpoints registers all purge endpoints with the server
func (h *PurgeHandlers) RegisterEndpoints(server *Server) {
	server.RegisterHandler("POST", PathPurgeURLs, h.handlePurgeURLs)
	server.RegisterHandler("POST", PathPurgeEverything, h.handlePurgeEverything)
	server.RegisterHandler("POST", PathPurgeTags, h.handlePurgeTags)
	server.RegisterHandler("POST", PathPurgeEntity, h.handleEntityEvent)
	server.RegisterHandler("GET", PathStatus, h.statusHandler(server))
	server.RegisterHandler("GET", PathHealthz, h.handleHealthz)
}

func (h *PurgeHandlers) handlePurgeURLs(ctx *fasthttp.RequestCtx) {
	var req PurgeURLsRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		httputil.JSONError(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}

	if len(req.URLs) == 0 {
		httputil.JSONError(ctx, "urls is required", fasthttp.StatusBadRequest)
		return
	}

	reqCtx, cancel := h.requestContext()
	defer cancel()

	outcome, err := h.dispatcher.PurgeURLs(reqCtx, req.URLs)
	h.respond(ctx, outcome, err)
}

func (h *PurgeHandlers) handlePurgeEverything(ctx *fasthttp.RequestCtx) {
	reqCtx, cancel := h.requestContext()
	defer cancel()

	h.logger.Info("Full zone purge requested",
		zap.String("remote_addr", ctx.RemoteAddr().String()))

	outcome, err := h.dispatcher.PurgeEverything(reqCtx)
	h.respond(ctx, outcome, err)
}

func (h *PurgeHandlers) handlePurgeTags(ctx *fasthttp.RequestCtx) {
	var req PurgeTagsRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		httputil.JSONError(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}

	if len(req.Tags) == 0 {
		httputil.JSONError(ctx, "tags is required", fasthttp.StatusBadRequest)
		return
	}

	reqCtx, cancel := h.requestContext()
	defer cancel()

	outcome, err := h.dispatcher.PurgeTags(reqCtx, req.Tags)
	h.respond(ctx, outcome, err)
}

func (h *PurgeHandlers) handleEntityEvent(ctx *fasthttp.RequestCtx) {
	var req EntityEventRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		httputil.JSONError(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}

	if req.EntityType == "" {
		httputil.JSONError(ctx, "entity_type is required", fasthttp.StatusBadRequest)
		return
	}

	if h.isDuplicate(req) {
		h.logger.Debug("Dropping duplicate entity event",
			zap.String("entity_type", req.EntityType))
		httputil.JSONData(ctx, PurgeResponse{Deduped: true}, fasthttp.StatusOK)
		return
	}

	reqCtx, cancel := h.requestContext()
	defer cancel()

	outcome, err := h.dispatcher.PurgeEntity(reqCtx, eventEntity{
		entityType: req.EntityType,
		urls:       req.URLs,
	})
	h.respond(ctx, outcome, err)
}

func (h *PurgeHandlers) statusHandler(server *Server) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		reqCtx, cancel := h.requestContext()
		defer cancel()

		depth, err := h.dispatcher.QueueDepth(reqCtx)
		if err != nil {
			h.logger.Warn("Failed to read queue depth for status", zap.Error(err))
			depth = -1
		}

		types := h.registry.RegisteredTypes()
		sort.Strings(types)

		httputil.JSONData(ctx, StatusResponse{
			UptimeSeconds: int(time.Since(server.GetStartTime()).Seconds()),
			PurgeEnabled:  h.enabled,
			Background:    h.background,
			QueueDepth:    depth,
			EntityTypes:   types,
		}, fasthttp.StatusOK)
	}
}

func (h *PurgeHandlers) handleHealthz(ctx *fasthttp.RequestCtx) {
	httputil.JSONSuccess(ctx, "ok", fasthttp.StatusOK)
}

func (h *PurgeHandlers) respond(ctx *fasthttp.RequestCtx, outcome *dispatcher.Outcome, err error) {
	if err != nil {
		h.logger.Error("Purge request failed", zap.Error(err))
		httputil.JSONError(ctx, err.Error(), fasthttp.StatusBadGateway)
		return
	}

	resp := PurgeResponse{
		Skipped:  outcome.Skipped,
		Accepted: outcome.Accepted,
		Batches:  len(outcome.Batches),
	}
	status := fasthttp.StatusOK
	if outcome.Accepted {
		status = fasthttp.StatusAccepted
	}
	httputil.JSONData(ctx, resp, status)
}

func (h *PurgeHandlers) requestContext() (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), h.requestTimeout)
}

// isDuplicate records the event fingerprint and reports whether an identical
// event was seen within the dedup window
func (h *PurgeHandlers) isDuplicate(req EntityEventRequest) bool {
	if h.dedupWindow <= 0 {
		return false
	}

	fingerprint := xxhash.Sum64String(req.EntityType + "\x00" + strings.Join(req.URLs, "\x00"))
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	for hash, seenAt := range h.seen {
		if now.Sub(seenAt) > h.dedupWindow {
			delete(h.seen, hash)
		}
	}

	if seenAt, ok := h.seen[fingerprint]; ok && now.Sub(seenAt) <= h.dedupWindow {
		return true
	}

	h.seen[fingerprint] = now
	return false
}

// eventEntity adapts an HTTP entity event to the resolver's entity interfaces
type eventEntity struct {
	entityType string
	urls       []string
}

func (e eventEntity) EntityType() string { return e.entityType }

func (e eventEntity) AbsoluteURLs() ([]string, error) { return e.urls, nil }
