package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/pkg/httputil"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
	syncsvc "github.com/ignite/klaviyo-sync/internal/sync"
)

// dashboardCacheTTL keeps portal reads cheap between syncs without serving
// stale data for long after one.
const dashboardCacheTTL = 5 * time.Minute

// syncRunTimeout bounds a manually triggered run; the campaign fallback
// path alone can take many minutes for a large account.
const syncRunTimeout = 30 * time.Minute

// Store is the slice of the persistence gateway the handlers consume.
// *store.Store satisfies it.
type Store interface {
	DB() *sql.DB
	GetClient(ctx context.Context, id string) (*store.Client, error)
	CampaignMetrics(ctx context.Context, clientID string, sinceDays int) []store.CampaignMetric
	RecentFlowMetrics(ctx context.Context, clientID string, windowDays int) []store.FlowRollup
	AudienceMetrics(ctx context.Context, clientID string, sinceDays int) []store.AudienceMetric
	LatestDeliverabilityMetric(ctx context.Context, clientID string) (*store.DeliverabilityMetric, error)
	LatestRevenueAttributionMetric(ctx context.Context, clientID string) (*store.RevenueAttributionMetric, error)
	CacheGet(ctx context.Context, key string, dest any) bool
	CacheSet(ctx context.Context, key string, val any, ttl time.Duration)
}

// Syncer triggers full sync runs. *sync.Service satisfies it.
type Syncer interface {
	SyncAll(ctx context.Context, client store.Client) (*syncsvc.RunReport, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store     Store
	syncer    Syncer
	scfg      config.SyncConfig
	startTime time.Time

	// newDiagAPI builds the per-request diagnostics client; swappable in
	// tests.
	newDiagAPI func(apiKey string) DiagAPI
	// credential unseals a stored API key blob; swappable in tests.
	credential func(blob string) (string, error)
}

// NewHandlers creates the handler set.
func NewHandlers(st Store, syncer Syncer, cfg *config.Config, key []byte) *Handlers {
	return &Handlers{
		store:     st,
		syncer:    syncer,
		scfg:      cfg.Sync,
		startTime: time.Now(),
		newDiagAPI: func(apiKey string) DiagAPI {
			return newDiagClient(cfg.Klaviyo, apiKey)
		},
		credential: func(blob string) (string, error) {
			return decryptCredential(blob, key)
		},
	}
}

// HandleHealth reports process and database health.
//
//	GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	dbStatus := "up"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if db := h.store.DB(); db == nil {
		dbStatus = "not_configured"
		status = "degraded"
	} else if err := db.PingContext(ctx); err != nil {
		dbStatus = "down"
		status = "unhealthy"
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"database": dbStatus,
		"uptime":   time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HandleTriggerSync starts a sync run for one client in the background and
// returns immediately with a request id for log correlation.
//
//	POST /api/sync/{clientID}
func (h *Handlers) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")

	client, err := h.store.GetClient(r.Context(), clientID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if client == nil {
		httputil.NotFound(w, "unknown client")
		return
	}

	requestID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncRunTimeout)
		defer cancel()

		report, err := h.syncer.SyncAll(ctx, *client)
		if err != nil {
			logger.Error("api: triggered sync failed",
				"request_id", requestID, "client_id", clientID, "error", err)
			return
		}
		logger.Info("api: triggered sync finished",
			"request_id", requestID, "run_id", report.RunID,
			"client_id", clientID, "failed", len(report.Failed()))
	}()

	httputil.Accepted(w, map[string]string{
		"status":     "started",
		"client_id":  clientID,
		"request_id": requestID,
	})
}

// Dashboard is the aggregate payload behind the portal overview page.
type Dashboard struct {
	ClientID       string                          `json:"client_id"`
	ClientName     string                          `json:"client_name"`
	Campaigns      []store.CampaignMetric          `json:"campaigns"`
	Flows          []store.FlowRollup              `json:"flows"`
	Audience       []store.AudienceMetric          `json:"audience"`
	Deliverability *store.DeliverabilityMetric     `json:"deliverability"`
	Revenue        *store.RevenueAttributionMetric `json:"revenue"`
	GeneratedAt    time.Time                       `json:"generated_at"`
}

// HandleDashboard serves the cached aggregate view for one client.
//
//	GET /api/clients/{clientID}/dashboard
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	ctx := r.Context()

	cacheKey := "dashboard:" + clientID
	var cached Dashboard
	if h.store.CacheGet(ctx, cacheKey, &cached) {
		httputil.OK(w, cached)
		return
	}

	client, err := h.store.GetClient(ctx, clientID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if client == nil {
		httputil.NotFound(w, "unknown client")
		return
	}

	deliverability, err := h.store.LatestDeliverabilityMetric(ctx, clientID)
	if err != nil {
		logger.Warn("api: deliverability read failed", "client_id", clientID, "error", err)
	}
	revenue, err := h.store.LatestRevenueAttributionMetric(ctx, clientID)
	if err != nil {
		logger.Warn("api: revenue read failed", "client_id", clientID, "error", err)
	}

	dash := Dashboard{
		ClientID:       client.ID,
		ClientName:     client.Name,
		Campaigns:      h.store.CampaignMetrics(ctx, clientID, h.scfg.CampaignWindowDays),
		Flows:          h.store.RecentFlowMetrics(ctx, clientID, h.scfg.FlowWindowDays),
		Audience:       h.store.AudienceMetrics(ctx, clientID, 30),
		Deliverability: deliverability,
		Revenue:        revenue,
		GeneratedAt:    time.Now().UTC(),
	}

	h.store.CacheSet(ctx, cacheKey, dash, dashboardCacheTTL)
	httputil.OK(w, dash)
}

// HandleFlows serves the weekly flow rollup for one client.
//
//	GET /api/clients/{clientID}/flows
func (h *Handlers) HandleFlows(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	ctx := r.Context()

	cacheKey := "flows:" + clientID
	var cached []store.FlowRollup
	if h.store.CacheGet(ctx, cacheKey, &cached) {
		httputil.OK(w, cached)
		return
	}

	client, err := h.store.GetClient(ctx, clientID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if client == nil {
		httputil.NotFound(w, "unknown client")
		return
	}

	rollup := h.store.RecentFlowMetrics(ctx, clientID, h.scfg.FlowWindowDays)
	h.store.CacheSet(ctx, cacheKey, rollup, dashboardCacheTTL)
	httputil.OK(w, rollup)
}
