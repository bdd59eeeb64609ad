package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/store"
)

func newRun(storage Storage, api API) *clientRun {
	svc := newTestService(storage, api)
	return &clientRun{svc: svc, api: api, clientID: "c-1", conversionMetricID: "metric-po"}
}

func campaignAt(id string, sent time.Time) klaviyo.Campaign {
	return klaviyo.Campaign{ID: id, Name: "Campaign " + id, SendTime: &sent}
}

func TestSyncCampaigns_StopsPagingPastWindowFloor(t *testing.T) {
	storage := &fakeStorage{}
	recent := time.Now().UTC().AddDate(0, 0, -10)
	ancient := time.Now().UTC().AddDate(0, 0, -400)

	pages := 0
	api := &fakeAPI{
		campaignsPage: func(cursor string) ([]klaviyo.Campaign, string, error) {
			pages++
			switch cursor {
			case "":
				return []klaviyo.Campaign{campaignAt("cmp-1", recent)}, "p2", nil
			case "p2":
				// Entire page is older than the window: paging must stop here
				// even though a next cursor exists.
				return []klaviyo.Campaign{campaignAt("cmp-old", ancient)}, "p3", nil
			default:
				t.Fatalf("unexpected cursor %q", cursor)
				return nil, "", nil
			}
		},
	}

	saved, err := newRun(storage, api).syncCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Equal(t, 2, pages)
	require.Len(t, storage.campaigns, 1)
	assert.Equal(t, "cmp-1", storage.campaigns[0].CampaignID)
}

func TestSyncCampaigns_SkipsArchived(t *testing.T) {
	storage := &fakeStorage{}
	recent := time.Now().UTC().AddDate(0, 0, -5)
	archived := campaignAt("cmp-arch", recent)
	archived.Archived = true

	api := &fakeAPI{
		campaignsPage: func(string) ([]klaviyo.Campaign, string, error) {
			return []klaviyo.Campaign{campaignAt("cmp-1", recent), archived}, "", nil
		},
	}

	saved, err := newRun(storage, api).syncCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
}

func TestSyncCampaigns_FirstPageFailureIsFatal(t *testing.T) {
	api := &fakeAPI{
		campaignsPage: func(string) ([]klaviyo.Campaign, string, error) {
			return nil, "", errors.New("upstream 502")
		},
	}

	_, err := newRun(&fakeStorage{}, api).syncCampaigns(context.Background())
	require.Error(t, err)
}

func TestSyncCampaigns_LaterPageFailureKeepsPartialList(t *testing.T) {
	storage := &fakeStorage{}
	recent := time.Now().UTC().AddDate(0, 0, -5)
	api := &fakeAPI{
		campaignsPage: func(cursor string) ([]klaviyo.Campaign, string, error) {
			if cursor == "" {
				return []klaviyo.Campaign{campaignAt("cmp-1", recent)}, "p2", nil
			}
			return nil, "", errors.New("upstream 500")
		},
	}

	saved, err := newRun(storage, api).syncCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
}

func TestSyncCampaigns_BatchStatsApplied(t *testing.T) {
	storage := &fakeStorage{}
	recent := time.Now().UTC().AddDate(0, 0, -5)
	api := &fakeAPI{
		campaignsPage: func(string) ([]klaviyo.Campaign, string, error) {
			return []klaviyo.Campaign{campaignAt("cmp-1", recent)}, "", nil
		},
		campaignValues: func(q klaviyo.CampaignValuesQuery) ([]klaviyo.CampaignStats, error) {
			assert.Equal(t, []string{"cmp-1"}, q.CampaignIDs)
			assert.Equal(t, "metric-po", q.ConversionMetricID)
			return []klaviyo.CampaignStats{{CampaignID: "cmp-1", Stats: map[string]float64{
				"recipients":       1000,
				"opens":            400,
				"open_rate":        0.4,
				"conversion_value": 1234.5,
			}}}, nil
		},
		campaignMessage: func(string) (*klaviyo.CampaignMessage, error) {
			return &klaviyo.CampaignMessage{Subject: "Hello", PreviewText: "pv", ImageURL: "img"}, nil
		},
	}

	_, err := newRun(storage, api).syncCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, storage.campaigns, 1)

	m := storage.campaigns[0]
	assert.Equal(t, int64(1000), m.Recipients)
	assert.Equal(t, int64(400), m.Opens)
	assert.InDelta(t, 0.4, m.OpenRate, 1e-9)
	assert.InDelta(t, 1234.5, m.Revenue, 1e-9)
	assert.Equal(t, "Hello", m.Subject)
}

func TestSyncCampaigns_FallbackPacesPerCampaignCalls(t *testing.T) {
	storage := &fakeStorage{}
	recent := time.Now().UTC().AddDate(0, 0, -5)

	var singleCalls [][]string
	api := &fakeAPI{
		campaignsPage: func(string) ([]klaviyo.Campaign, string, error) {
			return []klaviyo.Campaign{
				campaignAt("cmp-1", recent),
				campaignAt("cmp-2", recent),
				campaignAt("cmp-3", recent),
			}, "", nil
		},
		campaignValues: func(q klaviyo.CampaignValuesQuery) ([]klaviyo.CampaignStats, error) {
			if len(q.CampaignIDs) > 1 {
				return nil, errors.New("payload too large")
			}
			singleCalls = append(singleCalls, q.CampaignIDs)
			if q.CampaignIDs[0] == "cmp-2" {
				return nil, errors.New("rate limited")
			}
			return []klaviyo.CampaignStats{{CampaignID: q.CampaignIDs[0],
				Stats: map[string]float64{"opens": 7}}}, nil
		},
	}

	run := newRun(storage, api)
	var slept []time.Duration
	run.svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	saved, err := run.syncCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, saved)

	// One delay between each per-campaign call, none before the first.
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, slept)
	assert.Len(t, singleCalls, 3)

	// cmp-2 failed its individual call: persisted zeroed, others carry stats.
	byID := map[string]store.CampaignMetric{}
	for _, m := range storage.campaigns {
		byID[m.CampaignID] = m
	}
	assert.Equal(t, int64(7), byID["cmp-1"].Opens)
	assert.Equal(t, int64(0), byID["cmp-2"].Opens)
	assert.Equal(t, int64(7), byID["cmp-3"].Opens)
}

func TestSyncCampaigns_MessageDetailFailureStillPersists(t *testing.T) {
	storage := &fakeStorage{}
	recent := time.Now().UTC().AddDate(0, 0, -5)
	api := &fakeAPI{
		campaignsPage: func(string) ([]klaviyo.Campaign, string, error) {
			return []klaviyo.Campaign{campaignAt("cmp-1", recent)}, "", nil
		},
		campaignMessage: func(string) (*klaviyo.CampaignMessage, error) {
			return nil, errors.New("not found")
		},
	}

	saved, err := newRun(storage, api).syncCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Empty(t, storage.campaigns[0].Subject)
}
