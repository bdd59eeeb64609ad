package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
)

// syncCampaigns pulls the email campaign list, resolves analytics for the
// window in one batched report (falling back to paced per-campaign calls),
// enriches each row with message detail and upserts it.
func (r *clientRun) syncCampaigns(ctx context.Context) (int, error) {
	windowDays := r.svc.scfg.CampaignWindowDays
	floor := time.Now().UTC().AddDate(0, 0, -windowDays)

	campaigns, err := r.listCampaigns(ctx, floor)
	if err != nil {
		return 0, err
	}
	if len(campaigns) == 0 {
		return 0, nil
	}

	statsByID := r.campaignStats(ctx, campaigns, windowDays)

	saved := 0
	for _, c := range campaigns {
		m := store.CampaignMetric{
			ClientID:   r.clientID,
			CampaignID: c.ID,
			Name:       c.Name,
			SendDate:   c.SendTime,
		}
		applyCampaignStats(&m, statsByID[c.ID])

		// Message detail is display-only; an analytics-only row is still
		// worth persisting.
		if msg, err := r.api.CampaignMessage(ctx, c.ID); err != nil {
			logger.Warn("sync: campaign message detail unavailable",
				"client_id", r.clientID, "campaign_id", c.ID, "error", err)
		} else if msg != nil {
			m.Subject = msg.Subject
			m.PreviewText = msg.PreviewText
			m.ImageURL = msg.ImageURL
		}

		if err := r.svc.storage.UpsertCampaignMetric(ctx, m); err != nil {
			logger.Error("sync: campaign upsert failed",
				"client_id", r.clientID, "campaign_id", c.ID, "error", err)
			continue
		}
		saved++
	}
	return saved, nil
}

// listCampaigns pages through the campaign list, newest first, and stops as
// soon as an entire page falls before the window floor. A failure on the
// first page is fatal; later page failures keep the partial list.
func (r *clientRun) listCampaigns(ctx context.Context, floor time.Time) ([]klaviyo.Campaign, error) {
	var out []klaviyo.Campaign
	cursor := ""
	for page := 0; ; page++ {
		items, next, err := r.api.CampaignsPage(ctx, cursor)
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("campaign list: %w", err)
			}
			logger.Warn("sync: campaign page failed, keeping partial list",
				"client_id", r.clientID, "page", page, "error", err)
			return out, nil
		}

		pastWindow := len(items) > 0
		for _, c := range items {
			old := c.SendTime != nil && c.SendTime.Before(floor)
			if !old {
				pastWindow = false
				if !c.Archived {
					out = append(out, c)
				}
			}
		}
		if next == "" || pastWindow {
			return out, nil
		}
		cursor = next
	}
}

// campaignStats fetches analytics for the campaigns, preferring one batched
// report. When the batch fails, it falls back to one report per campaign
// with a fixed delay between calls; individual failures just leave that
// campaign's counters at zero.
func (r *clientRun) campaignStats(ctx context.Context, campaigns []klaviyo.Campaign, windowDays int) map[string]map[string]float64 {
	ids := make([]string, len(campaigns))
	for i, c := range campaigns {
		ids[i] = c.ID
	}

	statsByID := make(map[string]map[string]float64, len(ids))
	batch, err := r.api.CampaignValues(ctx, klaviyo.CampaignValuesQuery{
		CampaignIDs:        ids,
		ConversionMetricID: r.conversionMetricID,
		Timeframe:          klaviyo.LastNDays(windowDays),
	})
	if err == nil {
		for _, st := range batch {
			statsByID[st.CampaignID] = st.Stats
		}
		return statsByID
	}

	logger.Warn("sync: batched campaign report failed, falling back to per-campaign calls",
		"client_id", r.clientID, "campaigns", len(ids), "error", err)

	for i, id := range ids {
		if i > 0 {
			if err := r.svc.sleep(ctx, r.svc.scfg.FallbackDelay()); err != nil {
				logger.Warn("sync: campaign fallback interrupted",
					"client_id", r.clientID, "remaining", len(ids)-i, "error", err)
				return statsByID
			}
		}
		single, err := r.api.CampaignValues(ctx, klaviyo.CampaignValuesQuery{
			CampaignIDs:        []string{id},
			ConversionMetricID: r.conversionMetricID,
			Timeframe:          klaviyo.LastNDays(windowDays),
		})
		if err != nil {
			logger.Warn("sync: per-campaign report failed",
				"client_id", r.clientID, "campaign_id", id, "error", err)
			continue
		}
		for _, st := range single {
			statsByID[st.CampaignID] = st.Stats
		}
	}
	return statsByID
}

// applyCampaignStats maps the report statistics onto the metric row. Missing
// keys leave the zero value in place.
func applyCampaignStats(m *store.CampaignMetric, stats map[string]float64) {
	if stats == nil {
		return
	}
	count := func(key string) int64 { return int64(stats[key]) }

	m.Recipients = count("recipients")
	m.Delivered = count("delivered")
	m.Opens = count("opens")
	m.UniqueOpens = count("opens_unique")
	m.Clicks = count("clicks")
	m.UniqueClicks = count("clicks_unique")
	m.Bounced = count("bounced")
	m.Unsubscribes = count("unsubscribes")
	m.SpamComplaints = count("spam_complaints")
	m.Conversions = count("conversions")

	m.OpenRate = stats["open_rate"]
	m.ClickRate = stats["click_rate"]
	m.BounceRate = stats["bounce_rate"]
	m.UnsubscribeRate = stats["unsubscribe_rate"]
	m.SpamRate = stats["spam_complaint_rate"]
	m.ConversionRate = stats["conversion_rate"]
	m.Revenue = stats["conversion_value"]
	m.RevenuePerRecipient = stats["revenue_per_recipient"]
	m.AverageOrderValue = stats["average_order_value"]
}
