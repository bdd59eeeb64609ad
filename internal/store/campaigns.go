package store

import (
	"context"
	"fmt"
)

// UpsertCampaignMetric inserts or refreshes one campaign row, keyed on
// (client_id, campaign_id). The stored HTML snapshot survives upserts that
// do not carry one.
func (s *Store) UpsertCampaignMetric(ctx context.Context, m CampaignMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_metrics (
			client_id, campaign_id, name, subject, preview_text, image_url,
			email_html, send_date,
			recipients, delivered, opens, unique_opens, clicks, unique_clicks,
			bounced, unsubscribes, spam_complaints, conversions,
			open_rate, click_rate, bounce_rate, unsubscribe_rate, spam_rate,
			conversion_rate, revenue, revenue_per_recipient, average_order_value,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, NOW()
		)
		ON CONFLICT (client_id, campaign_id) DO UPDATE SET
			name = EXCLUDED.name,
			subject = EXCLUDED.subject,
			preview_text = EXCLUDED.preview_text,
			image_url = EXCLUDED.image_url,
			email_html = COALESCE(NULLIF(EXCLUDED.email_html, ''), campaign_metrics.email_html),
			send_date = EXCLUDED.send_date,
			recipients = EXCLUDED.recipients,
			delivered = EXCLUDED.delivered,
			opens = EXCLUDED.opens,
			unique_opens = EXCLUDED.unique_opens,
			clicks = EXCLUDED.clicks,
			unique_clicks = EXCLUDED.unique_clicks,
			bounced = EXCLUDED.bounced,
			unsubscribes = EXCLUDED.unsubscribes,
			spam_complaints = EXCLUDED.spam_complaints,
			conversions = EXCLUDED.conversions,
			open_rate = EXCLUDED.open_rate,
			click_rate = EXCLUDED.click_rate,
			bounce_rate = EXCLUDED.bounce_rate,
			unsubscribe_rate = EXCLUDED.unsubscribe_rate,
			spam_rate = EXCLUDED.spam_rate,
			conversion_rate = EXCLUDED.conversion_rate,
			revenue = EXCLUDED.revenue,
			revenue_per_recipient = EXCLUDED.revenue_per_recipient,
			average_order_value = EXCLUDED.average_order_value,
			updated_at = NOW()
	`,
		m.ClientID, m.CampaignID, m.Name, m.Subject, m.PreviewText, m.ImageURL,
		m.EmailHTML, m.SendDate,
		m.Recipients, m.Delivered, m.Opens, m.UniqueOpens, m.Clicks, m.UniqueClicks,
		m.Bounced, m.Unsubscribes, m.SpamComplaints, m.Conversions,
		m.OpenRate, m.ClickRate, m.BounceRate, m.UnsubscribeRate, m.SpamRate,
		m.ConversionRate, m.Revenue, m.RevenuePerRecipient, m.AverageOrderValue,
	)
	if err != nil {
		return fmt.Errorf("upsert campaign metric %s: %w", m.CampaignID, err)
	}
	return nil
}

// CampaignMetrics returns all campaign rows for a client sent within the
// last sinceDays days. Failures degrade to an empty result.
func (s *Store) CampaignMetrics(ctx context.Context, clientID string, sinceDays int) []CampaignMetric {
	since := daysAgo(sinceDays)

	var out []CampaignMetric
	err := readPages(func(limit, offset int) (int, error) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT client_id, campaign_id, name, subject, preview_text, image_url,
			       COALESCE(email_html, ''), send_date,
			       recipients, delivered, opens, unique_opens, clicks, unique_clicks,
			       bounced, unsubscribes, spam_complaints, conversions,
			       open_rate, click_rate, bounce_rate, unsubscribe_rate, spam_rate,
			       conversion_rate, revenue, revenue_per_recipient, average_order_value
			FROM campaign_metrics
			WHERE client_id = $1 AND (send_date IS NULL OR send_date >= $2)
			ORDER BY send_date DESC NULLS LAST, campaign_id
			LIMIT $3 OFFSET $4
		`, clientID, since, limit, offset)
		if err != nil {
			return 0, err
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			var m CampaignMetric
			if err := rows.Scan(
				&m.ClientID, &m.CampaignID, &m.Name, &m.Subject, &m.PreviewText, &m.ImageURL,
				&m.EmailHTML, &m.SendDate,
				&m.Recipients, &m.Delivered, &m.Opens, &m.UniqueOpens, &m.Clicks, &m.UniqueClicks,
				&m.Bounced, &m.Unsubscribes, &m.SpamComplaints, &m.Conversions,
				&m.OpenRate, &m.ClickRate, &m.BounceRate, &m.UnsubscribeRate, &m.SpamRate,
				&m.ConversionRate, &m.Revenue, &m.RevenuePerRecipient, &m.AverageOrderValue,
			); err != nil {
				return n, err
			}
			out = append(out, m)
			n++
		}
		return n, rows.Err()
	})
	if err != nil {
		logDegraded("campaign metrics", err)
		return []CampaignMetric{}
	}
	return out
}
