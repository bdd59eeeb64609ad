package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
)

// syncRevenueAttribution runs four attribution queries against the
// conversion metric in parallel: total, by channel, flow-attributed and
// campaign-attributed. A failed query leaves its slice of the snapshot at
// zero; the stored total is never reconciled against the sum of the splits.
func (r *clientRun) syncRevenueAttribution(ctx context.Context) (int, error) {
	if r.conversionMetricID == "" {
		return 0, fmt.Errorf("revenue attribution: no conversion metric")
	}

	start := daysAgoUTC(30)
	end := time.Now().UTC()
	tf := klaviyo.Timeframe{Start: &start, End: &end}

	queries := []struct {
		name string
		q    klaviyo.MetricAggregateQuery
	}{
		{"total", klaviyo.MetricAggregateQuery{
			MetricID: r.conversionMetricID, Timeframe: tf,
		}},
		{"by_channel", klaviyo.MetricAggregateQuery{
			MetricID: r.conversionMetricID, GroupBy: []string{"$attributed_channel"}, Timeframe: tf,
		}},
		{"flow", klaviyo.MetricAggregateQuery{
			MetricID: r.conversionMetricID, GroupBy: []string{"$attributed_flow"}, Timeframe: tf,
		}},
		{"campaign", klaviyo.MetricAggregateQuery{
			MetricID: r.conversionMetricID, GroupBy: []string{"$attributed_message"}, Timeframe: tf,
		}},
	}

	results := make([]*klaviyo.MetricAggregateResult, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, name string, q klaviyo.MetricAggregateQuery) {
			defer wg.Done()
			res, err := r.api.MetricAggregate(ctx, q)
			if err != nil {
				logger.Warn("sync: attribution query failed",
					"client_id", r.clientID, "query", name, "error", err)
				return
			}
			results[i] = res
		}(i, q.name, q.q)
	}
	wg.Wait()

	m := store.RevenueAttributionMetric{
		ClientID:        r.clientID,
		Date:            midnightUTC(time.Now()),
		TotalRevenue:    sumAllRevenue(results[0]),
		FlowRevenue:     sumAttributedRevenue(results[2]),
		CampaignRevenue: sumAttributedRevenue(results[3]),
	}
	m.EmailRevenue, m.SMSRevenue = channelRevenue(results[1])

	if channelTotal := m.EmailRevenue + m.SMSRevenue; channelTotal > 0 {
		m.EmailPercent = m.EmailRevenue / channelTotal * 100
		m.SMSPercent = m.SMSRevenue / channelTotal * 100
	}
	if typeTotal := m.FlowRevenue + m.CampaignRevenue; typeTotal > 0 {
		m.FlowPercent = m.FlowRevenue / typeTotal * 100
		m.CampaignPercent = m.CampaignRevenue / typeTotal * 100
	}

	if err := r.svc.storage.UpsertRevenueAttributionMetric(ctx, m); err != nil {
		return 0, fmt.Errorf("revenue upsert: %w", err)
	}
	return 1, nil
}

func rowRevenue(row klaviyo.MetricAggregateRow) float64 {
	var sum float64
	for _, v := range row.Measurements["sum_value"] {
		sum += v
	}
	return sum
}

// sumAllRevenue totals sum_value across every row of a result.
func sumAllRevenue(res *klaviyo.MetricAggregateResult) float64 {
	if res == nil {
		return 0
	}
	var sum float64
	for _, row := range res.Rows {
		sum += rowRevenue(row)
	}
	return sum
}

// sumAttributedRevenue totals revenue over rows with a non-empty attribution
// dimension, excluding the unattributed bucket the API reports alongside.
func sumAttributedRevenue(res *klaviyo.MetricAggregateResult) float64 {
	if res == nil {
		return 0
	}
	var sum float64
	for _, row := range res.Rows {
		if len(row.Dimensions) == 0 || row.Dimensions[0] == "" {
			continue
		}
		sum += rowRevenue(row)
	}
	return sum
}

// channelRevenue splits a by-channel result into email and SMS revenue.
func channelRevenue(res *klaviyo.MetricAggregateResult) (email, sms float64) {
	if res == nil {
		return 0, 0
	}
	for _, row := range res.Rows {
		if len(row.Dimensions) == 0 {
			continue
		}
		switch dim := strings.ToLower(row.Dimensions[0]); {
		case strings.Contains(dim, "email"):
			email += rowRevenue(row)
		case strings.Contains(dim, "sms"):
			sms += rowRevenue(row)
		}
	}
	return email, sms
}
