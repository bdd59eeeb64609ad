package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/klaviyo-sync/internal/klaviyo"
	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
	"github.com/ignite/klaviyo-sync/internal/store"
)

// syncAudience counts list members by consent state and persists a daily
// snapshot with day-over-day growth. Growth against an empty history (or a
// zero prior total) stays at zero.
func (r *clientRun) syncAudience(ctx context.Context) (int, error) {
	lists, err := r.api.Lists(ctx)
	if err != nil {
		return 0, fmt.Errorf("list inventory: %w", err)
	}

	var total, subscribed, unsubscribed int64
	for _, l := range lists {
		cursor := ""
		for {
			profiles, next, err := r.api.ListProfilesPage(ctx, l.ID, cursor)
			if err != nil {
				logger.Warn("sync: profile page failed, skipping rest of list",
					"client_id", r.clientID, "list_id", l.ID, "error", err)
				break
			}
			for _, p := range profiles {
				total++
				switch p.Consent {
				case klaviyo.ConsentSubscribed:
					subscribed++
				case klaviyo.ConsentUnsubscribed:
					unsubscribed++
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}

	today := midnightUTC(time.Now())
	m := store.AudienceMetric{
		ClientID:      r.clientID,
		Date:          today,
		TotalProfiles: total,
		Subscribed:    subscribed,
		Unsubscribed:  unsubscribed,
	}

	prev, err := r.svc.storage.LatestAudienceMetricBefore(ctx, r.clientID, today)
	if err != nil {
		logger.Warn("sync: previous audience snapshot unavailable",
			"client_id", r.clientID, "error", err)
	} else if prev != nil {
		m.NetGrowth = total - prev.TotalProfiles
		if prev.TotalProfiles > 0 {
			m.GrowthRate = float64(m.NetGrowth) / float64(prev.TotalProfiles) * 100
		}
	}

	if err := r.svc.storage.UpsertAudienceMetric(ctx, m); err != nil {
		return 0, fmt.Errorf("audience upsert: %w", err)
	}
	return 1, nil
}
