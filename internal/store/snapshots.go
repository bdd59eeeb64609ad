package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertAudienceMetric inserts or refreshes the per-day audience snapshot,
// keyed on (client_id, date).
func (s *Store) UpsertAudienceMetric(ctx context.Context, m AudienceMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audience_metrics (
			client_id, date, total_profiles, subscribed, unsubscribed,
			net_growth, growth_rate, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (client_id, date) DO UPDATE SET
			total_profiles = EXCLUDED.total_profiles,
			subscribed = EXCLUDED.subscribed,
			unsubscribed = EXCLUDED.unsubscribed,
			net_growth = EXCLUDED.net_growth,
			growth_rate = EXCLUDED.growth_rate,
			updated_at = NOW()
	`, m.ClientID, m.Date, m.TotalProfiles, m.Subscribed, m.Unsubscribed,
		m.NetGrowth, m.GrowthRate)
	if err != nil {
		return fmt.Errorf("upsert audience metric: %w", err)
	}
	return nil
}

// LatestAudienceMetricBefore returns the most recent snapshot strictly
// before the given date, or nil when none exists.
func (s *Store) LatestAudienceMetricBefore(ctx context.Context, clientID string, date time.Time) (*AudienceMetric, error) {
	m := &AudienceMetric{}
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, date, total_profiles, subscribed, unsubscribed,
		       net_growth, growth_rate
		FROM audience_metrics
		WHERE client_id = $1 AND date < $2
		ORDER BY date DESC
		LIMIT 1
	`, clientID, date).Scan(
		&m.ClientID, &m.Date, &m.TotalProfiles, &m.Subscribed, &m.Unsubscribed,
		&m.NetGrowth, &m.GrowthRate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest audience metric: %w", err)
	}
	return m, nil
}

// AudienceMetrics returns the last sinceDays of audience snapshots.
// Failures degrade to an empty result.
func (s *Store) AudienceMetrics(ctx context.Context, clientID string, sinceDays int) []AudienceMetric {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, date, total_profiles, subscribed, unsubscribed,
		       net_growth, growth_rate
		FROM audience_metrics
		WHERE client_id = $1 AND date >= $2
		ORDER BY date
	`, clientID, daysAgo(sinceDays))
	if err != nil {
		logDegraded("audience metrics", err)
		return []AudienceMetric{}
	}
	defer rows.Close()

	var out []AudienceMetric
	for rows.Next() {
		var m AudienceMetric
		if err := rows.Scan(&m.ClientID, &m.Date, &m.TotalProfiles, &m.Subscribed,
			&m.Unsubscribed, &m.NetGrowth, &m.GrowthRate); err != nil {
			logDegraded("audience metrics scan", err)
			return []AudienceMetric{}
		}
		out = append(out, m)
	}
	return out
}

// UpsertSegmentMetric inserts or refreshes one per-day segment identity row,
// keyed on (client_id, segment_id, date).
func (s *Store) UpsertSegmentMetric(ctx context.Context, m SegmentMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segment_metrics (
			client_id, segment_id, name, date, profile_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (client_id, segment_id, date) DO UPDATE SET
			name = EXCLUDED.name,
			profile_count = EXCLUDED.profile_count,
			updated_at = NOW()
	`, m.ClientID, m.SegmentID, m.Name, m.Date, m.ProfileCount)
	if err != nil {
		return fmt.Errorf("upsert segment metric %s: %w", m.SegmentID, err)
	}
	return nil
}

// UpsertDeliverabilityMetric inserts or refreshes the per-day
// deliverability snapshot, keyed on (client_id, date).
func (s *Store) UpsertDeliverabilityMetric(ctx context.Context, m DeliverabilityMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliverability_metrics (
			client_id, date, total_sent, total_delivered, total_bounced,
			total_spam, delivery_rate, bounce_rate, spam_rate,
			reputation_score, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (client_id, date) DO UPDATE SET
			total_sent = EXCLUDED.total_sent,
			total_delivered = EXCLUDED.total_delivered,
			total_bounced = EXCLUDED.total_bounced,
			total_spam = EXCLUDED.total_spam,
			delivery_rate = EXCLUDED.delivery_rate,
			bounce_rate = EXCLUDED.bounce_rate,
			spam_rate = EXCLUDED.spam_rate,
			reputation_score = EXCLUDED.reputation_score,
			updated_at = NOW()
	`, m.ClientID, m.Date, m.TotalSent, m.TotalDelivered, m.TotalBounced,
		m.TotalSpam, m.DeliveryRate, m.BounceRate, m.SpamRate, m.ReputationScore)
	if err != nil {
		return fmt.Errorf("upsert deliverability metric: %w", err)
	}
	return nil
}

// LatestDeliverabilityMetric returns the newest deliverability snapshot, or
// nil when none exists.
func (s *Store) LatestDeliverabilityMetric(ctx context.Context, clientID string) (*DeliverabilityMetric, error) {
	m := &DeliverabilityMetric{}
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, date, total_sent, total_delivered, total_bounced,
		       total_spam, delivery_rate, bounce_rate, spam_rate, reputation_score
		FROM deliverability_metrics
		WHERE client_id = $1
		ORDER BY date DESC
		LIMIT 1
	`, clientID).Scan(
		&m.ClientID, &m.Date, &m.TotalSent, &m.TotalDelivered, &m.TotalBounced,
		&m.TotalSpam, &m.DeliveryRate, &m.BounceRate, &m.SpamRate, &m.ReputationScore,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest deliverability metric: %w", err)
	}
	return m, nil
}

// UpsertRevenueAttributionMetric inserts or refreshes the per-day revenue
// split, keyed on (client_id, date).
func (s *Store) UpsertRevenueAttributionMetric(ctx context.Context, m RevenueAttributionMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revenue_attribution_metrics (
			client_id, date, total_revenue, email_revenue, sms_revenue,
			flow_revenue, campaign_revenue, email_percent, sms_percent,
			flow_percent, campaign_percent, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (client_id, date) DO UPDATE SET
			total_revenue = EXCLUDED.total_revenue,
			email_revenue = EXCLUDED.email_revenue,
			sms_revenue = EXCLUDED.sms_revenue,
			flow_revenue = EXCLUDED.flow_revenue,
			campaign_revenue = EXCLUDED.campaign_revenue,
			email_percent = EXCLUDED.email_percent,
			sms_percent = EXCLUDED.sms_percent,
			flow_percent = EXCLUDED.flow_percent,
			campaign_percent = EXCLUDED.campaign_percent,
			updated_at = NOW()
	`, m.ClientID, m.Date, m.TotalRevenue, m.EmailRevenue, m.SMSRevenue,
		m.FlowRevenue, m.CampaignRevenue, m.EmailPercent, m.SMSPercent,
		m.FlowPercent, m.CampaignPercent)
	if err != nil {
		return fmt.Errorf("upsert revenue attribution metric: %w", err)
	}
	return nil
}

// LatestRevenueAttributionMetric returns the newest revenue split, or nil
// when none exists.
func (s *Store) LatestRevenueAttributionMetric(ctx context.Context, clientID string) (*RevenueAttributionMetric, error) {
	m := &RevenueAttributionMetric{}
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, date, total_revenue, email_revenue, sms_revenue,
		       flow_revenue, campaign_revenue, email_percent, sms_percent,
		       flow_percent, campaign_percent
		FROM revenue_attribution_metrics
		WHERE client_id = $1
		ORDER BY date DESC
		LIMIT 1
	`, clientID).Scan(
		&m.ClientID, &m.Date, &m.TotalRevenue, &m.EmailRevenue, &m.SMSRevenue,
		&m.FlowRevenue, &m.CampaignRevenue, &m.EmailPercent, &m.SMSPercent,
		&m.FlowPercent, &m.CampaignPercent,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest revenue attribution metric: %w", err)
	}
	return m, nil
}
