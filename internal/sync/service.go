// Package sync orchestrates the per-client pull from the Klaviyo reporting
// API into the metrics store: campaigns, flows and segments in parallel,
// then audience and revenue attribution, then the deliverability snapshot
// derived from the freshly persisted rows.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/klaviyo-sync/internal/config"
	"github.com/ignite/klaviyo-sync/internal/crypto"
	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
)

// API is the slice of the Klaviyo client the syncers consume.
type API interface {
	CampaignsPage(ctx context.Context, cursor string) ([]klaviyo.Campaign, string, error)
	CampaignMessage(ctx context.Context, campaignID string) (*klaviyo.CampaignMessage, error)
	FlowsPage(ctx context.Context, cursor string) ([]klaviyo.Flow, string, error)
	Segments(ctx context.Context) ([]klaviyo.Segment, error)
	Lists(ctx context.Context) ([]klaviyo.List, error)
	ListProfilesPage(ctx context.Context, listID, cursor string) ([]klaviyo.Profile, string, error)
	ConversionMetricID(ctx context.Context) (string, error)
	CampaignValues(ctx context.Context, q klaviyo.CampaignValuesQuery) ([]klaviyo.CampaignStats, error)
	FlowSeries(ctx context.Context, q klaviyo.FlowSeriesQuery) (*klaviyo.FlowSeriesResult, error)
	MetricAggregate(ctx context.Context, q klaviyo.MetricAggregateQuery) (*klaviyo.MetricAggregateResult, error)
}

// Storage is the slice of the persistence gateway the syncers consume.
// *store.Store satisfies it.
type Storage interface {
	UpsertCampaignMetric(ctx context.Context, m store.CampaignMetric) error
	UpsertFlowMetric(ctx context.Context, m store.FlowMetric) error
	UpsertFlowMessageMetric(ctx context.Context, m store.FlowMessageMetric) error
	UpsertAudienceMetric(ctx context.Context, m store.AudienceMetric) error
	UpsertSegmentMetric(ctx context.Context, m store.SegmentMetric) error
	UpsertDeliverabilityMetric(ctx context.Context, m store.DeliverabilityMetric) error
	UpsertRevenueAttributionMetric(ctx context.Context, m store.RevenueAttributionMetric) error
	CampaignMetrics(ctx context.Context, clientID string, sinceDays int) []store.CampaignMetric
	FlowMetrics(ctx context.Context, clientID string) []store.FlowMetric
	LatestAudienceMetricBefore(ctx context.Context, clientID string, date time.Time) (*store.AudienceMetric, error)
	InvalidateClientCache(ctx context.Context, clientID string)
}

// Result is the outcome of one entity syncer within a run.
type Result struct {
	Syncer   string        `json:"syncer"`
	Items    int           `json:"items"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// RunReport is the structured multi-error report for one client sync run.
// Individual syncer failures are recorded here, never re-thrown.
type RunReport struct {
	RunID      string    `json:"run_id"`
	ClientID   string    `json:"client_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Failed returns the names of syncers that reported an error.
func (r *RunReport) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Syncer)
		}
	}
	return out
}

// Service runs full sync pipelines. Construct with New; all collaborators
// are passed in explicitly.
type Service struct {
	storage Storage
	kcfg    config.KlaviyoConfig
	scfg    config.SyncConfig
	key     []byte

	// newAPI builds the per-client API handle; swappable in tests.
	newAPI func(apiKey string) API
	// sleep paces the per-campaign analytics fallback; swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a sync Service. key is the decoded 32-byte credential key.
func New(storage Storage, kcfg config.KlaviyoConfig, scfg config.SyncConfig, key []byte) *Service {
	return &Service{
		storage: storage,
		kcfg:    kcfg,
		scfg:    scfg,
		key:     key,
		newAPI: func(apiKey string) API {
			return klaviyo.NewClient(kcfg, apiKey)
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// SyncAll runs the full pipeline for one client. The returned error is
// non-nil only for failures fatal to the whole run (a bad credential);
// per-syncer failures are recorded in the report.
func (s *Service) SyncAll(ctx context.Context, client store.Client) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		ClientID:  client.ID,
		StartedAt: time.Now().UTC(),
	}

	apiKey, err := crypto.Decrypt(client.EncryptedAPIKey, s.key)
	if err != nil {
		// Fatal: never fall back to an unencrypted or default key.
		return nil, fmt.Errorf("client %s credential: %w", client.ID, err)
	}
	api := s.newAPI(apiKey)

	conversionMetricID, err := api.ConversionMetricID(ctx)
	if err != nil {
		logger.Warn("sync: conversion metric unavailable, revenue fields will be zero",
			"client_id", client.ID, "error", err)
		conversionMetricID = ""
	}

	run := &clientRun{
		svc:                s,
		api:                api,
		clientID:           client.ID,
		conversionMetricID: conversionMetricID,
	}

	logger.Info("sync: run started", "run_id", report.RunID, "client_id", client.ID)

	// Independent entity syncers: all settle, none cancels the others.
	report.Results = append(report.Results, s.settle(ctx,
		task{"campaigns", run.syncCampaigns},
		task{"flows", run.syncFlows},
		task{"segments", run.syncSegments},
	)...)

	report.Results = append(report.Results, s.settle(ctx,
		task{"audience", run.syncAudience},
		task{"revenue_attribution", run.syncRevenueAttribution},
	)...)

	// Deliverability reads back the campaign/flow rows persisted above, so
	// it must run after the join.
	report.Results = append(report.Results, s.settle(ctx,
		task{"deliverability", run.syncDeliverability},
	)...)

	s.storage.InvalidateClientCache(ctx, client.ID)

	report.FinishedAt = time.Now().UTC()
	if failed := report.Failed(); len(failed) > 0 {
		logger.Warn("sync: run finished with failures",
			"run_id", report.RunID, "client_id", client.ID, "failed", fmt.Sprintf("%v", failed))
	} else {
		logger.Info("sync: run finished", "run_id", report.RunID, "client_id", client.ID)
	}
	return report, nil
}

type task struct {
	name string
	fn   func(ctx context.Context) (int, error)
}

// settle runs the tasks concurrently and collects every outcome, in task
// order. A failing task never cancels its siblings.
func (s *Service) settle(ctx context.Context, tasks ...task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			start := time.Now()
			items, err := t.fn(ctx)
			results[i] = Result{
				Syncer:   t.name,
				Items:    items,
				Duration: time.Since(start),
				Err:      err,
			}
			if err != nil {
				results[i].Error = err.Error()
				logger.Error("sync: syncer failed", "syncer", t.name, "error", err)
			} else {
				logger.Info("sync: syncer finished", "syncer", t.name, "items", items,
					"duration", time.Since(start).String())
			}
		}(i, t)
	}

	wg.Wait()
	return results
}

// clientRun carries the per-run state shared by the entity syncers.
type clientRun struct {
	svc                *Service
	api                API
	clientID           string
	conversionMetricID string
}

func midnightUTC(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func daysAgoUTC(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}
