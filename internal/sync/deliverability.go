package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/klaviyo-sync/internal/store"
)

// syncDeliverability derives a daily sending-health snapshot from the
// campaign and flow rows already persisted this run. No upstream calls.
func (r *clientRun) syncDeliverability(ctx context.Context) (int, error) {
	campaigns := r.svc.storage.CampaignMetrics(ctx, r.clientID, r.svc.scfg.DeliverabilityDays)
	flows := r.svc.storage.FlowMetrics(ctx, r.clientID)

	var sent, delivered, bounced, spam int64
	for _, c := range campaigns {
		sent += c.Recipients
		delivered += c.Delivered
		bounced += c.Bounced
		spam += c.SpamComplaints
	}
	// Flow rows carry no bounce or spam counters; they contribute volume only.
	for _, f := range flows {
		sent += f.Recipients
		delivered += f.Delivered
	}

	m := store.DeliverabilityMetric{
		ClientID:       r.clientID,
		Date:           midnightUTC(time.Now()),
		TotalSent:      sent,
		TotalDelivered: delivered,
		TotalBounced:   bounced,
		TotalSpam:      spam,
		DeliveryRate:   percent(delivered, sent),
		BounceRate:     percent(bounced, sent),
		SpamRate:       percent(spam, sent),
	}
	m.ReputationScore = reputationScore(m.BounceRate, m.SpamRate)

	if err := r.svc.storage.UpsertDeliverabilityMetric(ctx, m); err != nil {
		return 0, fmt.Errorf("deliverability upsert: %w", err)
	}
	return 1, nil
}

// reputationScore starts at 100 and penalizes bounce rate above 5% and spam
// rate above 0.1%. The result is clamped to [0, 100].
func reputationScore(bounceRate, spamRate float64) float64 {
	score := 100.0
	if bounceRate > 5 {
		score -= (bounceRate - 5) * 2
	}
	if spamRate > 0.1 {
		score -= (spamRate - 0.1) * 50
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
