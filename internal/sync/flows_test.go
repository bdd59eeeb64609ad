package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/klaviyo-sync/internal/klaviyo"
)

func TestSyncFlows_FiltersToLiveFlows(t *testing.T) {
	storage := &fakeStorage{}
	api := &fakeAPI{
		flowsPage: func(string) ([]klaviyo.Flow, string, error) {
			return []klaviyo.Flow{
				{ID: "f-1", Name: "Welcome", Status: "active"},
				{ID: "f-2", Name: "Winback", Status: "live"},
				{ID: "f-3", Name: "Draft", Status: "draft"},
				{ID: "f-4", Name: "Old", Status: "active", Archived: true},
			}, "", nil
		},
	}

	saved, err := newRun(storage, api).syncFlows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
}

func TestSyncFlows_PageCapHonored(t *testing.T) {
	storage := &fakeStorage{}
	pages := 0
	api := &fakeAPI{
		flowsPage: func(cursor string) ([]klaviyo.Flow, string, error) {
			pages++
			// Always report another page; the cap must stop the loop.
			return []klaviyo.Flow{{ID: "f", Status: "active"}}, "next", nil
		},
	}

	_, err := newRun(storage, api).syncFlows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, pages)
}

func TestSyncFlows_SeriesFailureProducesZeroedRow(t *testing.T) {
	storage := &fakeStorage{}
	api := &fakeAPI{
		flowsPage: func(string) ([]klaviyo.Flow, string, error) {
			return []klaviyo.Flow{{ID: "f-1", Name: "Welcome", Status: "active", TriggerType: "list"}}, "", nil
		},
		flowSeries: func(klaviyo.FlowSeriesQuery) (*klaviyo.FlowSeriesResult, error) {
			return nil, errors.New("report timeout")
		},
	}

	saved, err := newRun(storage, api).syncFlows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	require.Len(t, storage.flows, 1)
	m := storage.flows[0]
	assert.Equal(t, "Welcome", m.Name)
	assert.Equal(t, "list", m.TriggerType)
	assert.Equal(t, int64(0), m.Recipients)
	assert.Equal(t, 0.0, m.Revenue)
	assert.Empty(t, storage.flowMessages)
}

func TestSyncFlows_PersistsWeeklyRowsAndTotals(t *testing.T) {
	storage := &fakeStorage{}
	w1 := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	w2 := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	api := &fakeAPI{
		flowsPage: func(string) ([]klaviyo.Flow, string, error) {
			return []klaviyo.Flow{{ID: "f-1", Name: "Welcome", Status: "active"}}, "", nil
		},
		flowSeries: func(q klaviyo.FlowSeriesQuery) (*klaviyo.FlowSeriesResult, error) {
			assert.Equal(t, "f-1", q.FlowID)
			return &klaviyo.FlowSeriesResult{
				DateTimes: []time.Time{w1, w2},
				Results: []klaviyo.FlowSeriesRow{
					{FlowID: "f-1", FlowMessageID: "m-1", Statistics: map[string][]float64{
						"recipients":       {100, 50},
						"delivered":        {95, 48},
						"opens":            {40, 10},
						"clicks":           {8, 2},
						"conversions":      {4, 1},
						"conversion_value": {200, 50},
					}},
				},
			}, nil
		},
	}

	_, err := newRun(storage, api).syncFlows(context.Background())
	require.NoError(t, err)

	require.Len(t, storage.flowMessages, 2)
	assert.Equal(t, w1, storage.flowMessages[0].WeekDate)
	assert.Equal(t, int64(100), storage.flowMessages[0].Recipients)
	assert.Equal(t, int64(50), storage.flowMessages[1].Recipients)

	require.Len(t, storage.flows, 1)
	f := storage.flows[0]
	assert.Equal(t, int64(150), f.Recipients)
	assert.Equal(t, int64(50), f.Opens)
	assert.Equal(t, 250.0, f.Revenue)
	assert.InDelta(t, float64(50)/150, f.OpenRate, 1e-9)
	assert.InDelta(t, 250.0/150, f.RevenuePerRecipient, 1e-9)
	assert.InDelta(t, 50.0, f.AverageOrderValue, 1e-9)
}

func TestSumFlowSeries_ZeroRecipientsNoDivideByZero(t *testing.T) {
	storage := &fakeStorage{}
	api := &fakeAPI{
		flowsPage: func(string) ([]klaviyo.Flow, string, error) {
			return []klaviyo.Flow{{ID: "f-1", Status: "active"}}, "", nil
		},
		flowSeries: func(klaviyo.FlowSeriesQuery) (*klaviyo.FlowSeriesResult, error) {
			return &klaviyo.FlowSeriesResult{
				DateTimes: []time.Time{time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)},
				Results: []klaviyo.FlowSeriesRow{
					{FlowMessageID: "m-1", Statistics: map[string][]float64{
						"opens": {3},
					}},
				},
			}, nil
		},
	}

	_, err := newRun(storage, api).syncFlows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, storage.flows[0].OpenRate)
	assert.Equal(t, 0.0, storage.flows[0].AverageOrderValue)
}
