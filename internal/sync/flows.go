package sync

import (
	"context"
	"fmt"

	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
)

func flowLive(status string) bool {
	return status == "active" || status == "live"
}

// syncFlows pulls live flows (capped page count), fetches a weekly series
// per flow and persists both the per-message weekly rows and the per-flow
// aggregate. A flow whose series call fails still gets a zeroed row so the
// portal keeps listing it.
func (r *clientRun) syncFlows(ctx context.Context) (int, error) {
	flows, err := r.listFlows(ctx)
	if err != nil {
		return 0, err
	}

	windowDays := r.svc.scfg.FlowWindowDays
	dateStart := midnightUTC(daysAgoUTC(windowDays))

	saved := 0
	for _, f := range flows {
		m := store.FlowMetric{
			ClientID:    r.clientID,
			FlowID:      f.ID,
			Name:        f.Name,
			Status:      f.Status,
			TriggerType: f.TriggerType,
			DateStart:   dateStart,
		}

		series, err := r.api.FlowSeries(ctx, klaviyo.FlowSeriesQuery{
			FlowID:             f.ID,
			ConversionMetricID: r.conversionMetricID,
			Timeframe:          klaviyo.LastNDays(windowDays),
		})
		if err != nil {
			logger.Warn("sync: flow series unavailable, persisting zeroed row",
				"client_id", r.clientID, "flow_id", f.ID, "error", err)
		} else {
			r.persistFlowWeekly(ctx, f.ID, series)
			sumFlowSeries(&m, series)
		}

		if err := r.svc.storage.UpsertFlowMetric(ctx, m); err != nil {
			logger.Error("sync: flow upsert failed",
				"client_id", r.clientID, "flow_id", f.ID, "error", err)
			continue
		}
		saved++
	}
	return saved, nil
}

// listFlows pages through the flow list up to the configured page cap and
// keeps only live, unarchived flows.
func (r *clientRun) listFlows(ctx context.Context) ([]klaviyo.Flow, error) {
	var out []klaviyo.Flow
	cursor := ""
	for page := 0; page < r.svc.scfg.FlowPageCap; page++ {
		items, next, err := r.api.FlowsPage(ctx, cursor)
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("flow list: %w", err)
			}
			logger.Warn("sync: flow page failed, keeping partial list",
				"client_id", r.clientID, "page", page, "error", err)
			return out, nil
		}
		for _, f := range items {
			if flowLive(f.Status) && !f.Archived {
				out = append(out, f)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}

// persistFlowWeekly upserts one row per flow message per week from the
// series. Row-level failures are logged and skipped.
func (r *clientRun) persistFlowWeekly(ctx context.Context, flowID string, series *klaviyo.FlowSeriesResult) {
	for _, row := range series.Results {
		stat := func(key string, i int) float64 {
			vals := row.Statistics[key]
			if i >= len(vals) {
				return 0
			}
			return vals[i]
		}
		for i, week := range series.DateTimes {
			m := store.FlowMessageMetric{
				ClientID:    r.clientID,
				FlowID:      flowID,
				MessageID:   row.FlowMessageID,
				WeekDate:    midnightUTC(week),
				Recipients:  int64(stat("recipients", i)),
				Delivered:   int64(stat("delivered", i)),
				Opens:       int64(stat("opens", i)),
				Clicks:      int64(stat("clicks", i)),
				Conversions: int64(stat("conversions", i)),
				Revenue:     stat("conversion_value", i),
			}
			if err := r.svc.storage.UpsertFlowMessageMetric(ctx, m); err != nil {
				logger.Error("sync: flow message upsert failed",
					"client_id", r.clientID, "flow_id", flowID,
					"message_id", row.FlowMessageID, "error", err)
			}
		}
	}
}

// sumFlowSeries totals the series into the flow row and recomputes the
// rates from those totals.
func sumFlowSeries(m *store.FlowMetric, series *klaviyo.FlowSeriesResult) {
	total := func(key string) float64 {
		var sum float64
		for _, row := range series.Results {
			for _, v := range row.Statistics[key] {
				sum += v
			}
		}
		return sum
	}

	m.Recipients = int64(total("recipients"))
	m.Delivered = int64(total("delivered"))
	m.Opens = int64(total("opens"))
	m.Clicks = int64(total("clicks"))
	m.Conversions = int64(total("conversions"))
	m.Revenue = total("conversion_value")

	if m.Recipients > 0 {
		m.OpenRate = float64(m.Opens) / float64(m.Recipients)
		m.ClickRate = float64(m.Clicks) / float64(m.Recipients)
		m.RevenuePerRecipient = m.Revenue / float64(m.Recipients)
	}
	if m.Conversions > 0 {
		m.AverageOrderValue = m.Revenue / float64(m.Conversions)
	}
}
