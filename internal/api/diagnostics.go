package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/crypto"
	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/pkg/httputil"
)

// DiagAPI is the slice of the Klaviyo client the diagnostics endpoint
// exercises. *klaviyo.Client satisfies it.
type DiagAPI interface {
	ConversionMetricID(ctx context.Context) (string, error)
	CampaignsPage(ctx context.Context, cursor string) ([]klaviyo.Campaign, string, error)
	FlowsPage(ctx context.Context, cursor string) ([]klaviyo.Flow, string, error)
	Segments(ctx context.Context) ([]klaviyo.Segment, error)
	Lists(ctx context.Context) ([]klaviyo.List, error)
	Events(ctx context.Context, limit int) ([]klaviyo.Event, error)
}

func newDiagClient(cfg config.KlaviyoConfig, apiKey string) DiagAPI {
	return klaviyo.NewClient(cfg, apiKey)
}

func decryptCredential(blob string, key []byte) (string, error) {
	return crypto.Decrypt(blob, key)
}

// DiagCheck is one probe result.
type DiagCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
}

// DiagReport is the full diagnostics response. Nothing here is persisted;
// the endpoint exists to verify a client's API key and scopes.
type DiagReport struct {
	ClientID string      `json:"client_id"`
	OK       bool        `json:"ok"`
	Checks   []DiagCheck `json:"checks"`
}

// HandleTestKlaviyo probes the upstream API with the client's stored
// credential, one read per entity scope. An optional scope query parameter
// restricts the probe to a single check.
//
//	GET /api/test-klaviyo?client_id={id}&scope={name}
func (h *Handlers) HandleTestKlaviyo(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		httputil.BadRequest(w, "client_id is required")
		return
	}
	scope := r.URL.Query().Get("scope")

	client, err := h.store.GetClient(r.Context(), clientID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if client == nil {
		httputil.NotFound(w, "unknown client")
		return
	}

	apiKey, err := h.credential(client.EncryptedAPIKey)
	if err != nil {
		httputil.JSON(w, http.StatusOK, DiagReport{
			ClientID: clientID,
			OK:       false,
			Checks: []DiagCheck{{
				Name:  "credential",
				Error: err.Error(),
			}},
		})
		return
	}
	api := h.newDiagAPI(apiKey)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	probes := []struct {
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{"metrics", func(ctx context.Context) (int, error) {
			id, err := api.ConversionMetricID(ctx)
			if err != nil {
				return 0, err
			}
			if id == "" {
				return 0, fmt.Errorf("no conversion metric found")
			}
			return 1, nil
		}},
		{"campaigns", func(ctx context.Context) (int, error) {
			items, _, err := api.CampaignsPage(ctx, "")
			return len(items), err
		}},
		{"flows", func(ctx context.Context) (int, error) {
			items, _, err := api.FlowsPage(ctx, "")
			return len(items), err
		}},
		{"segments", func(ctx context.Context) (int, error) {
			items, err := api.Segments(ctx)
			return len(items), err
		}},
		{"lists", func(ctx context.Context) (int, error) {
			items, err := api.Lists(ctx)
			return len(items), err
		}},
		{"events", func(ctx context.Context) (int, error) {
			items, err := api.Events(ctx, 10)
			return len(items), err
		}},
	}

	report := DiagReport{ClientID: clientID, OK: true}
	for _, p := range probes {
		if scope != "" && scope != p.name {
			continue
		}
		check := DiagCheck{Name: p.name}
		count, err := p.run(ctx)
		if err != nil {
			check.Error = err.Error()
			report.OK = false
		} else {
			check.OK = true
			check.Count = count
		}
		report.Checks = append(report.Checks, check)
	}

	if scope != "" && len(report.Checks) == 0 {
		httputil.BadRequest(w, "unknown scope")
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
